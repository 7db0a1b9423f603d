package interp

import (
	"bytes"
	"fmt"
)

// Output is the explicit writable sink threaded through handler calls,
// replacing any process-wide stream redirection. Writes accumulate in a
// buffer owned by the caller; Report additionally pushes a line through the
// optional report callback so pollers can see progress before the handler
// returns.
type Output struct {
	buf    bytes.Buffer
	report func(line string)
}

// NewOutput returns a sink. report may be nil; Report then falls back to
// buffering the line like any other write.
func NewOutput(report func(line string)) *Output {
	return &Output{report: report}
}

func (o *Output) Write(p []byte) (int, error) {
	return o.buf.Write(p)
}

func (o *Output) Printf(format string, args ...any) {
	fmt.Fprintf(&o.buf, format, args...)
}

func (o *Output) Println(s string) {
	o.buf.WriteString(s)
	o.buf.WriteByte('\n')
}

// Report emits one progress line. When a report callback is wired (async
// jobs), the line is persisted immediately and not buffered again, so the
// final captured output does not duplicate it.
func (o *Output) Report(line string) {
	if o.report != nil {
		o.report(line)
		return
	}
	o.Println(line)
}

// String returns the buffered output accumulated so far.
func (o *Output) String() string {
	return o.buf.String()
}
