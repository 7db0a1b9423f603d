// Package interp owns the single shared command interpreter: the alias
// table, the history list, and the dispatch of parsed command lines to
// registered handlers.
//
// One exclusive mutex spans parse -> alias expansion -> handler invocation ->
// history append, so two commands' effects on interpreter state are totally
// ordered by lock acquisition. Output capture does not need the lock (each
// call carries its own sink), but alias/history consistency does.
package interp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"shellgw/internal/log"
)

// ErrUnknownVerb is returned when a line resolves to no registered command.
var ErrUnknownVerb = errors.New("unknown verb")

// Interpreter is the single mutable owner of the alias table and history
// list. All mutation happens under mu; handlers run with the lock held.
type Interpreter struct {
	mu       sync.Mutex
	registry *Registry
	aliases  map[string][]string
	history  []string

	aliasPath string
	aliasSum  [32]byte

	logger *slog.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithAliasFile persists the alias table to path: loaded at startup,
// rewritten whenever aliases change.
func WithAliasFile(path string) Option {
	return func(in *Interpreter) { in.aliasPath = path }
}

// New builds an Interpreter over the given registry and registers the
// interpreter-owned builtin verbs (alias, unalias, history).
func New(registry *Registry, opts ...Option) (*Interpreter, error) {
	in := &Interpreter{
		registry: registry,
		aliases:  make(map[string][]string),
		logger:   log.WithComponent("interp"),
	}
	for _, opt := range opts {
		opt(in)
	}

	if in.aliasPath != "" {
		aliases, err := loadAliasFile(in.aliasPath)
		if err != nil {
			return nil, err
		}
		in.aliases = aliases
		if data, err := marshalAliases(aliases); err == nil {
			in.aliasSum = aliasFingerprint(data)
		}
	}
	return in, nil
}

// builtin verbs are owned by the interpreter itself: they mutate alias and
// history state, so they run inside the locked execute path rather than
// through the registry.
var builtinModes = map[string]Mode{
	"alias":   ModeSync,
	"unalias": ModeSync,
	"history": ModeSync,
}

// IsBuiltin reports whether verb is an interpreter-owned builtin.
func IsBuiltin(verb string) bool {
	_, ok := builtinModes[verb]
	return ok
}

// Kind classifies the outcome of resolving a command line.
type Kind int

const (
	// KindResolved means the line maps to a runnable command.
	KindResolved Kind = iota
	// KindNoOp covers blank lines and recall tokens with no history match.
	KindNoOp
	// KindUnknown means the resolved verb has no registered handler.
	KindUnknown
	// KindParseError means the line failed tokenization.
	KindParseError
)

// Resolution is the explicit result of classifying a line, consumed by the
// dispatcher to pick the sync or async path without executing anything.
type Resolution struct {
	Kind Kind
	// Verb is the resolved verb after recall and alias expansion.
	Verb string
	// Mode is valid only when Kind is KindResolved.
	Mode Mode
	// Err carries the *ParseError when Kind is KindParseError.
	Err error
}

// Resolve classifies line without side effects: no handler runs, no history
// is appended, no alias is mutated. It takes the lock briefly so the alias
// table and history are read as a consistent snapshot.
func (in *Interpreter) Resolve(line string) Resolution {
	in.mu.Lock()
	defer in.mu.Unlock()

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Resolution{Kind: KindNoOp}
	}

	if strings.HasPrefix(trimmed, "!") {
		recalled, ok := in.recallLocked(trimmed)
		if !ok {
			return Resolution{Kind: KindNoOp}
		}
		trimmed = recalled
	}

	inv, err := Parse(trimmed)
	if err != nil {
		return Resolution{Kind: KindParseError, Err: err}
	}

	verb, _ := in.expandAliasLocked(inv.Verb, inv.Args)
	if mode, ok := builtinModes[verb]; ok {
		return Resolution{Kind: KindResolved, Verb: verb, Mode: mode}
	}
	cmd, ok := in.registry.Get(verb)
	if !ok {
		return Resolution{Kind: KindUnknown, Verb: verb}
	}
	return Resolution{Kind: KindResolved, Verb: verb, Mode: cmd.Mode}
}

// Execute runs one command line to completion: acquire the lock, resolve
// recall, parse, expand aliases, invoke the handler with the supplied sink,
// and append the original line to history. The lock is released on every
// exit path, including handler panics.
//
// Blank lines and recall misses are no-ops. History records the original
// line the caller typed, not the recalled or alias-expanded form, and is
// appended exactly once per execution whether the handler succeeds or fails.
func (in *Interpreter) Execute(ctx context.Context, line string, out *Output) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	original := strings.TrimSpace(line)
	if original == "" {
		return nil
	}

	effective := original
	if strings.HasPrefix(effective, "!") {
		recalled, ok := in.recallLocked(effective)
		if !ok {
			in.logger.Debug("recall miss", "token", effective)
			return nil
		}
		effective = recalled
	}

	inv, err := Parse(effective)
	if err != nil {
		return err
	}

	verb, args := in.expandAliasLocked(inv.Verb, inv.Args)
	inv.Verb = verb
	inv.Args = args

	herr := in.invokeLocked(ctx, inv, out)
	in.history = append(in.history, original)
	if herr != nil {
		return herr
	}
	return nil
}

func (in *Interpreter) invokeLocked(ctx context.Context, inv *Invocation, out *Output) (err error) {
	// Handler panics are confined here so one failing command can neither
	// poison the pool nor leave the lock held.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	switch inv.Verb {
	case "alias":
		return in.builtinAlias(inv, out)
	case "unalias":
		return in.builtinUnalias(inv, out)
	case "history":
		return in.builtinHistory(inv, out)
	}

	cmd, ok := in.registry.Get(inv.Verb)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVerb, inv.Verb)
	}
	return cmd.Handler(ctx, inv, out)
}
