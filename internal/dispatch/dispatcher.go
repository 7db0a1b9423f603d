package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"shellgw/internal/executor"
	"shellgw/internal/interp"
	"shellgw/internal/log"
)

// Result is the outcome of dispatching one command line. Async results carry
// the job id for polling; sync results carry the output directly.
type Result struct {
	Async bool

	// Async path.
	JobID string

	// Sync path.
	Output     string
	StatusCode int
}

// Dispatcher classifies a command line as sync or async from the handler's
// declared mode and routes it accordingly.
type Dispatcher struct {
	interp *interp.Interpreter
	exec   *executor.Executor
	logger *slog.Logger
}

func New(in *interp.Interpreter, exec *executor.Executor) *Dispatcher {
	return &Dispatcher{
		interp: in,
		exec:   exec,
		logger: log.WithComponent("dispatch"),
	}
}

// Dispatch routes line. Parse errors and unknown verbs are returned to the
// caller without creating a job; handler failures on the sync path surface
// in the result's status code, not as a dispatch error.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) (*Result, error) {
	res := d.interp.Resolve(line)
	switch res.Kind {
	case interp.KindParseError:
		d.logger.Debug("rejecting malformed line", "error", res.Err)
		return nil, res.Err
	case interp.KindUnknown:
		return nil, fmt.Errorf("%w: %q", interp.ErrUnknownVerb, res.Verb)
	case interp.KindNoOp:
		return &Result{}, nil
	}

	if res.Mode == interp.ModeAsync {
		id, err := d.exec.Submit(ctx, line)
		if err != nil {
			return nil, fmt.Errorf("dispatch async: %w", err)
		}
		d.logger.Info("job submitted", "job_id", id, "verb", res.Verb)
		return &Result{Async: true, JobID: id}, nil
	}

	sync, err := d.exec.RunSync(ctx, line)
	if err != nil {
		d.logger.Warn("sync command failed", "verb", res.Verb, "error", err)
	}
	return &Result{Output: sync.Output, StatusCode: sync.StatusCode}, nil
}
