package interp

import (
	"strconv"
	"strings"
)

// recallLocked resolves a history-reference token: "!!" is the most recent
// entry, "!N" a 1-based absolute index, "!prefix" the most recent entry whose
// text starts with prefix. The empty second return means no match; recall
// misses are no-ops, never errors. Caller holds the interpreter lock.
func (in *Interpreter) recallLocked(token string) (string, bool) {
	if !strings.HasPrefix(token, "!") || len(token) < 2 {
		return "", false
	}
	ref := token[1:]

	if ref == "!" {
		if len(in.history) == 0 {
			return "", false
		}
		return in.history[len(in.history)-1], true
	}

	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(in.history) {
			return "", false
		}
		return in.history[n-1], true
	}

	for i := len(in.history) - 1; i >= 0; i-- {
		if strings.HasPrefix(in.history[i], ref) {
			return in.history[i], true
		}
	}
	return "", false
}

// Recall resolves a recall token against the current history.
func (in *Interpreter) Recall(token string) (string, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.recallLocked(token)
}

// History returns a copy of the history list, oldest first.
func (in *Interpreter) History() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]string, len(in.history))
	copy(out, in.history)
	return out
}
