package interp

import (
	"fmt"
	"strings"
)

// ParseError reports malformed quoting or tokenization. It carries the
// offending line; no partial tokens escape a failed parse.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s in %q", e.Reason, e.Line)
}

// Invocation is one parsed command line: a verb, positional arguments, and
// key=value keyword arguments. Line preserves the original trimmed input.
type Invocation struct {
	Verb   string
	Args   []string
	Kwargs map[string]string
	Line   string
}

type token struct {
	text string
	// eq is the index of the first unquoted '=' rune, or -1. Used to split
	// key=value keyword arguments without treating quoted '=' as a separator.
	eq int
}

// Parse tokenizes a command line using shell-style quoting: double-quoted
// segments preserve internal spaces and are stripped of their quotes. Tokens
// of the form key=value become keyword arguments (quoted values allowed).
func Parse(line string) (*Invocation, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, &ParseError{Line: line, Reason: "empty command"}
	}

	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, err
	}

	inv := &Invocation{
		Verb:   tokens[0].text,
		Kwargs: make(map[string]string),
		Line:   trimmed,
	}
	for _, tok := range tokens[1:] {
		if tok.eq > 0 {
			key := tok.text[:tok.eq]
			inv.Kwargs[key] = tok.text[tok.eq+1:]
			continue
		}
		inv.Args = append(inv.Args, tok.text)
	}
	return inv, nil
}

func tokenize(line string) ([]token, error) {
	var (
		tokens   []token
		cur      strings.Builder
		inQuote  bool
		started  bool
		eqIndex  = -1
		flushTok = func() {
			tokens = append(tokens, token{text: cur.String(), eq: eqIndex})
			cur.Reset()
			started = false
			eqIndex = -1
		}
	)

	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			started = true
		case r == ' ' || r == '\t':
			if inQuote {
				cur.WriteRune(r)
				continue
			}
			if started {
				flushTok()
			}
		case r == '=' && !inQuote && eqIndex < 0:
			eqIndex = cur.Len()
			cur.WriteRune(r)
			started = true
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, &ParseError{Line: line, Reason: "unterminated quote"}
	}
	if started {
		flushTok()
	}
	if len(tokens) == 0 {
		return nil, &ParseError{Line: line, Reason: "empty command"}
	}
	return tokens, nil
}
