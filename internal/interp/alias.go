package interp

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// expandAliasLocked substitutes a known alias once, non-recursively. Each
// "$N" placeholder (1-indexed) in the alias body is replaced by the N-th
// caller argument; literal tokens pass through unchanged. A placeholder with
// no corresponding argument is dropped from the expansion. Caller holds the
// interpreter lock.
func (in *Interpreter) expandAliasLocked(verb string, args []string) (string, []string) {
	body, ok := in.aliases[verb]
	if !ok || len(body) == 0 {
		return verb, args
	}

	target := body[0]
	expanded := make([]string, 0, len(body)-1)
	for _, tok := range body[1:] {
		n, isPlaceholder := placeholderIndex(tok)
		if !isPlaceholder {
			expanded = append(expanded, tok)
			continue
		}
		if n < 1 || n > len(args) {
			in.logger.Debug("alias placeholder has no argument, dropped", "alias", verb, "placeholder", tok)
			continue
		}
		expanded = append(expanded, args[n-1])
	}
	return target, expanded
}

// ExpandAlias resolves verb through the alias table, substituting positional
// placeholders from args. Unknown verbs pass through untouched.
func (in *Interpreter) ExpandAlias(verb string, args []string) (string, []string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.expandAliasLocked(verb, args)
}

func placeholderIndex(tok string) (int, bool) {
	if len(tok) < 2 || tok[0] != '$' {
		return 0, false
	}
	n, err := strconv.Atoi(tok[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Aliases returns a copy of the alias table.
func (in *Interpreter) Aliases() map[string][]string {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make(map[string][]string, len(in.aliases))
	for name, body := range in.aliases {
		out[name] = append([]string(nil), body...)
	}
	return out
}

// builtinAlias implements the "alias" verb: with no arguments it lists the
// alias table; with "name target tok..." it defines an alias whose first body
// token is the target verb. Caller holds the lock.
func (in *Interpreter) builtinAlias(inv *Invocation, out *Output) error {
	if len(inv.Args) == 0 {
		names := make([]string, 0, len(in.aliases))
		for name := range in.aliases {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out.Printf("%s -> %s\n", name, strings.Join(in.aliases[name], " "))
		}
		return nil
	}
	if len(inv.Args) < 2 {
		return fmt.Errorf("alias requires a name and a target: alias <name> <verb> [tokens...]")
	}

	name := inv.Args[0]
	body := append([]string(nil), inv.Args[1:]...)
	if _, isAlias := in.aliases[body[0]]; isAlias {
		// An alias never expands to another alias.
		return fmt.Errorf("alias target %q is itself an alias", body[0])
	}

	in.aliases[name] = body
	out.Printf("alias %s -> %s\n", name, strings.Join(body, " "))
	return in.saveAliasesLocked()
}

// builtinUnalias removes an alias; removing an unknown name is an error so
// typos surface immediately.
func (in *Interpreter) builtinUnalias(inv *Invocation, out *Output) error {
	if len(inv.Args) != 1 {
		return fmt.Errorf("unalias requires exactly one name")
	}
	name := inv.Args[0]
	if _, ok := in.aliases[name]; !ok {
		return fmt.Errorf("unknown alias %q", name)
	}
	delete(in.aliases, name)
	out.Printf("unalias %s\n", name)
	return in.saveAliasesLocked()
}

// builtinHistory prints the numbered history list, oldest first, matching the
// 1-based indexes accepted by "!N" recall.
func (in *Interpreter) builtinHistory(_ *Invocation, out *Output) error {
	for i, entry := range in.history {
		out.Printf("%4d  %s\n", i+1, entry)
	}
	return nil
}
