package builtin

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shellgw/internal/interp"
)

func TestRegisterAll(t *testing.T) {
	t.Parallel()

	reg := interp.NewRegistry()
	if err := RegisterAll(reg); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	for verb, mode := range map[string]interp.Mode{
		"echo":  interp.ModeSync,
		"walk":  interp.ModeAsync,
		"sleep": interp.ModeAsync,
	} {
		cmd, ok := reg.Get(verb)
		if !ok {
			t.Fatalf("verb %q not registered", verb)
		}
		if cmd.Mode != mode {
			t.Fatalf("verb %q: mode %s, want %s", verb, cmd.Mode, mode)
		}
	}
}

func TestEcho(t *testing.T) {
	t.Parallel()

	out := interp.NewOutput(nil)
	inv := &interp.Invocation{Verb: "echo", Args: []string{"hello", "world"}}
	if err := Echo(context.Background(), inv, out); err != nil {
		t.Fatalf("Echo: %v", err)
	}
	if out.String() != "hello world\n" {
		t.Fatalf("output: %q", out.String())
	}
}

func TestWalkReportsDirectoriesAndCounts(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	sub := filepath.Join(root, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(sub, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	var reported []string
	out := interp.NewOutput(func(line string) { reported = append(reported, line) })
	inv := &interp.Invocation{Verb: "walk", Args: []string{root}}
	if err := Walk(context.Background(), inv, out); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if len(reported) != 2 {
		t.Fatalf("expected 2 reported directories, got %#v", reported)
	}
	if !strings.Contains(out.String(), "2 directories, 2 files") {
		t.Fatalf("summary: %q", out.String())
	}
}

func TestWalkMissingRootFails(t *testing.T) {
	t.Parallel()

	out := interp.NewOutput(nil)
	inv := &interp.Invocation{Verb: "walk", Args: []string{"/no/such/dir"}}
	if err := Walk(context.Background(), inv, out); err == nil {
		t.Fatalf("expected error for missing root")
	}
}

func TestSleepRejectsBadDuration(t *testing.T) {
	t.Parallel()

	out := interp.NewOutput(nil)
	inv := &interp.Invocation{Verb: "sleep", Args: []string{"forever"}}
	if err := Sleep(context.Background(), inv, out); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}
