// Package executor guarantees at most one command executes against the
// interpreter at any instant, whether submitted synchronously or
// asynchronously. A fixed pool of workers drains submitted jobs; the
// synchronous path contends for the same interpreter lock, so a sync call
// can block behind a slow background job.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"shellgw/internal/interp"
	"shellgw/internal/jobstore"
	"shellgw/internal/log"
)

// DefaultWorkers is the worker pool size when none is configured.
const DefaultWorkers = 5

// queueCapacity bounds how many submitted jobs can wait for a worker before
// Submit blocks.
const queueCapacity = 1024

// Publisher receives job lifecycle notifications. May be nil.
type Publisher interface {
	Publish(eventType string, data any)
}

type task struct {
	id   string
	line string
}

// SyncResult is what the inline path returns directly to the caller.
type SyncResult struct {
	Output     string `json:"output"`
	StatusCode int    `json:"status_code"`
}

type Executor struct {
	interp  *interp.Interpreter
	store   *jobstore.Store
	events  Publisher
	workers int

	tasks  chan task
	wg     sync.WaitGroup
	logger *slog.Logger
}

func New(in *interp.Interpreter, store *jobstore.Store, workers int, events Publisher) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Executor{
		interp:  in,
		store:   store,
		events:  events,
		workers: workers,
		tasks:   make(chan task, queueCapacity),
		logger:  log.WithComponent("executor"),
	}
}

// Start launches the worker pool. Workers run until ctx is cancelled; a job
// already dequeued finishes before its worker exits.
func (e *Executor) Start(ctx context.Context) {
	e.logger.Info("worker pool starting", "workers", e.workers)
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-e.tasks:
					e.runJob(t.id, t.line)
				}
			}
		}()
	}
}

// Wait blocks until all workers have exited after Start's context is
// cancelled.
func (e *Executor) Wait() {
	e.wg.Wait()
	e.logger.Info("worker pool stopped")
}

// Submit records a pending job for the command line, schedules it on the
// pool, and returns the job id immediately.
func (e *Executor) Submit(ctx context.Context, line string) (string, error) {
	id, err := e.store.StartJob(ctx, line)
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	e.tasks <- task{id: id, line: line}
	e.publish("job.submitted", map[string]any{
		"at":      time.Now().UTC().Format(time.RFC3339Nano),
		"job_id":  id,
		"command": line,
	})
	return id, nil
}

// runJob is the worker body: mark running, execute under the interpreter
// lock with a capture sink, persist the outcome. Nothing raised inside a
// handler may escape and kill a pool worker.
func (e *Executor) runJob(id, line string) {
	jobLogger := log.WithJob(id)
	defer func() {
		if r := recover(); r != nil {
			detail := fmt.Sprintf("error: internal panic: %v", r)
			jobLogger.Error("worker panic", "panic", r)
			e.failJob(id, detail)
		}
	}()

	ctx := context.Background()
	if err := e.store.MarkRunning(ctx, id); err != nil {
		jobLogger.Error("failed to mark job running", "error", err)
	}

	// Incremental progress lands in the store as soon as the handler
	// reports it, independent of whether the job has finished.
	out := interp.NewOutput(func(progress string) {
		if err := e.store.UpdateOutput(ctx, id, progress); err != nil {
			jobLogger.Error("failed to persist progress", "error", err)
		}
	})

	execErr := e.interp.Execute(ctx, line, out)

	if captured := out.String(); captured != "" {
		if err := e.store.UpdateOutput(ctx, id, captured); err != nil {
			jobLogger.Error("failed to persist output", "error", err)
		}
	}

	if execErr != nil {
		jobLogger.Warn("job failed", "error", execErr)
		e.failJob(id, fmt.Sprintf("error: %v", execErr))
		return
	}

	if err := e.store.SetMsg(ctx, id, "completed"); err != nil {
		jobLogger.Error("failed to set msg", "error", err)
	}
	if err := e.store.EndJob(ctx, id); err != nil {
		jobLogger.Error("failed to end job", "error", err)
	}
	jobLogger.Info("job completed")
	e.publish("job.completed", map[string]any{
		"at":     time.Now().UTC().Format(time.RFC3339Nano),
		"job_id": id,
	})
}

func (e *Executor) publish(eventType string, data map[string]any) {
	if e.events == nil {
		return
	}
	e.events.Publish(eventType, data)
}

func (e *Executor) failJob(id, detail string) {
	if err := e.store.ErrorJob(context.Background(), id, detail); err != nil {
		log.WithJob(id).Error("failed to mark job errored", "error", err)
	}
	e.publish("job.error", map[string]any{
		"at":     time.Now().UTC().Format(time.RFC3339Nano),
		"job_id": id,
		"detail": detail,
	})
}

// RunSync executes the line inline on the caller's goroutine with the same
// lock and capture discipline as the worker path, returning the output
// directly instead of via the job store. Status code 0 means success.
func (e *Executor) RunSync(ctx context.Context, line string) (*SyncResult, error) {
	out := interp.NewOutput(nil)
	if err := e.interp.Execute(ctx, line, out); err != nil {
		buffered := out.String()
		if buffered != "" && !strings.HasSuffix(buffered, "\n") {
			buffered += "\n"
		}
		return &SyncResult{
			Output:     buffered + fmt.Sprintf("error: %v", err),
			StatusCode: 1,
		}, err
	}
	return &SyncResult{Output: out.String(), StatusCode: 0}, nil
}
