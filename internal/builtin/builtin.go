// Package builtin provides the reference command set shipped with the
// framework. Application handlers (catalog operations, taggers, media
// scripts) register through the same table; these exist so a fresh install
// has something to run and so the async progress contract has a worked
// example.
package builtin

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"shellgw/internal/interp"
)

// RegisterAll installs the builtin command set into the registry.
func RegisterAll(reg *interp.Registry) error {
	commands := []interp.Command{
		{Name: "echo", Mode: interp.ModeSync, Help: "echo [args...] — print arguments", Handler: Echo},
		{Name: "walk", Mode: interp.ModeAsync, Help: "walk <root> — walk a directory tree, reporting progress", Handler: Walk},
		{Name: "sleep", Mode: interp.ModeAsync, Help: "sleep <duration> — sleep, for exercising polling", Handler: Sleep},
	}
	for _, cmd := range commands {
		if err := reg.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Echo prints its arguments, one line.
func Echo(_ context.Context, inv *interp.Invocation, out *interp.Output) error {
	out.Println(strings.Join(inv.Args, " "))
	return nil
}

// Walk walks the directory tree under its first argument. Each directory is
// reported incrementally so pollers can tail progress while the walk runs;
// the summary line lands with the rest of the captured output when the
// handler returns.
func Walk(ctx context.Context, inv *interp.Invocation, out *interp.Output) error {
	if len(inv.Args) != 1 {
		return fmt.Errorf("walk requires exactly one root directory")
	}
	root := inv.Args[0]

	var dirs, files int
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			dirs++
			out.Report("dir: " + path)
			return nil
		}
		files++
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", root, err)
	}

	out.Printf("walked %s: %d directories, %d files\n", root, dirs, files)
	return nil
}

// Sleep blocks for the given duration. It exists to exercise the poll
// contract; note it holds the interpreter lock the whole time, like any
// other handler.
func Sleep(ctx context.Context, inv *interp.Invocation, out *interp.Output) error {
	if len(inv.Args) != 1 {
		return fmt.Errorf("sleep requires a duration, e.g. sleep 5s")
	}
	d, err := time.ParseDuration(inv.Args[0])
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", inv.Args[0], err)
	}

	select {
	case <-time.After(d):
	case <-ctx.Done():
		return ctx.Err()
	}
	out.Printf("slept %s\n", d)
	return nil
}
