package interp

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Mode declares how a verb's handler is scheduled.
type Mode string

const (
	// ModeSync handlers run inline on the caller's goroutine and return
	// their output directly.
	ModeSync Mode = "sync"
	// ModeAsync handlers run on the worker pool behind a job record.
	ModeAsync Mode = "async"
)

// HandlerFunc is a command handler. All output goes through the supplied
// sink; long-running handlers should use Output.Report so pollers can tail
// progress before the handler returns.
type HandlerFunc func(ctx context.Context, inv *Invocation, out *Output) error

// Command binds a verb to its handler and declared mode.
type Command struct {
	Name    string
	Mode    Mode
	Help    string
	Handler HandlerFunc
}

// Registry is the explicit verb -> (handler, mode) table built at startup.
// No reflection: a verb is async because its registration says so.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

func (r *Registry) Register(cmd Command) error {
	if cmd.Name == "" {
		return fmt.Errorf("command name is empty")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command %q has nil handler", cmd.Name)
	}
	if cmd.Mode != ModeSync && cmd.Mode != ModeAsync {
		return fmt.Errorf("command %q has invalid mode %q", cmd.Name, cmd.Mode)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[cmd.Name]; exists {
		return fmt.Errorf("command %q already registered", cmd.Name)
	}
	r.commands[cmd.Name] = cmd
	return nil
}

func (r *Registry) Get(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Names returns all registered verbs, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
