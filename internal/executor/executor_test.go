package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shellgw/internal/interp"
	"shellgw/internal/jobstore"
	"shellgw/internal/storage"
)

func newTestExecutor(t *testing.T) (*Executor, *jobstore.Store, *interp.Registry) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "state.db")
	db, err := storage.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	reg := interp.NewRegistry()
	in, err := interp.New(reg)
	if err != nil {
		t.Fatalf("interp.New: %v", err)
	}

	store := jobstore.New(db)
	e := New(in, store, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)
	t.Cleanup(func() {
		cancel()
		e.Wait()
	})
	return e, store, reg
}

func waitForTerminal(t *testing.T, store *jobstore.Store, id string) *jobstore.JobView {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		view, err := store.GetStatus(context.Background(), id, nil, 0)
		if err != nil {
			t.Fatalf("GetStatus: %v", err)
		}
		if view.Status.Terminal() {
			return view
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", id)
	return nil
}

func TestSubmitRunsJobToCompletion(t *testing.T) {
	t.Parallel()

	e, store, reg := newTestExecutor(t)
	release := make(chan struct{})
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})
	if err := reg.Register(interp.Command{
		Name: "walk",
		Mode: interp.ModeAsync,
		Handler: func(_ context.Context, inv *interp.Invocation, out *interp.Output) error {
			<-release
			out.Report("visiting " + inv.Args[0])
			out.Println("done")
			return nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	id, err := e.Submit(context.Background(), "walk /tmp")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// While the handler is gated the job is pending or running, never done.
	view, err := store.GetStatus(context.Background(), id, []string{jobstore.FieldStatus}, 0)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if view.Status.Terminal() {
		t.Fatalf("job finished before its handler ran: %s", *view.Status)
	}
	close(release)

	final := waitForTerminal(t, store, id)
	if *final.Status != jobstore.StatusCompleted {
		t.Fatalf("status: got %s, want completed", *final.Status)
	}
	if !strings.Contains(*final.Output, "visiting /tmp") || !strings.Contains(*final.Output, "done") {
		t.Fatalf("output: %q", *final.Output)
	}
	if final.StartTime == nil || final.EndTime == nil {
		t.Fatalf("expected timestamps on finished job")
	}
	if *final.Msg != "completed" {
		t.Fatalf("msg: %q", *final.Msg)
	}
}

func TestHandlerErrorConfinedToItsJob(t *testing.T) {
	t.Parallel()

	e, store, reg := newTestExecutor(t)
	if err := reg.Register(interp.Command{
		Name: "fail",
		Mode: interp.ModeAsync,
		Handler: func(_ context.Context, _ *interp.Invocation, _ *interp.Output) error {
			return fmt.Errorf("disk on fire")
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(interp.Command{
		Name: "ok",
		Mode: interp.ModeAsync,
		Handler: func(_ context.Context, _ *interp.Invocation, out *interp.Output) error {
			out.Println("still alive")
			return nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	failID, err := e.Submit(context.Background(), "fail")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	failed := waitForTerminal(t, store, failID)
	if *failed.Status != jobstore.StatusError {
		t.Fatalf("status: got %s, want error", *failed.Status)
	}
	if !strings.Contains(*failed.Output, "disk on fire") {
		t.Fatalf("output should carry the failure text, got %q", *failed.Output)
	}

	// An unrelated job submitted afterwards still completes normally.
	okID, err := e.Submit(context.Background(), "ok")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitForTerminal(t, store, okID)
	if *done.Status != jobstore.StatusCompleted {
		t.Fatalf("status: got %s, want completed", *done.Status)
	}
}

func TestHandlerPanicBecomesErrorStatus(t *testing.T) {
	t.Parallel()

	e, store, reg := newTestExecutor(t)
	if err := reg.Register(interp.Command{
		Name: "explode",
		Mode: interp.ModeAsync,
		Handler: func(_ context.Context, _ *interp.Invocation, _ *interp.Output) error {
			panic("shrapnel")
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	id, err := e.Submit(context.Background(), "explode")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	final := waitForTerminal(t, store, id)
	if *final.Status != jobstore.StatusError {
		t.Fatalf("status: got %s, want error", *final.Status)
	}
	if !strings.Contains(*final.Output, "shrapnel") {
		t.Fatalf("output: %q", *final.Output)
	}
}

func TestProgressVisibleBeforeJobFinishes(t *testing.T) {
	t.Parallel()

	e, store, reg := newTestExecutor(t)
	release := make(chan struct{})
	reported := make(chan struct{})
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})
	if err := reg.Register(interp.Command{
		Name: "slow",
		Mode: interp.ModeAsync,
		Handler: func(_ context.Context, _ *interp.Invocation, out *interp.Output) error {
			out.Report("phase one")
			close(reported)
			<-release
			out.Report("phase two")
			return nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	id, err := e.Submit(context.Background(), "slow")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-reported

	view, err := store.GetStatus(context.Background(), id, []string{jobstore.FieldStatus, jobstore.FieldOutput, jobstore.FieldOutputLength}, 0)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if *view.Status != jobstore.StatusRunning {
		t.Fatalf("status: got %s, want running", *view.Status)
	}
	if *view.Output != "phase one" {
		t.Fatalf("partial output: %q", *view.Output)
	}

	// Tail from the cursor: only new bytes come back after phase two.
	cursor := *view.OutputLength
	close(release)
	final := waitForTerminal(t, store, id)
	if *final.Status != jobstore.StatusCompleted {
		t.Fatalf("status: got %s", *final.Status)
	}
	tail, err := store.GetStatus(context.Background(), id, []string{jobstore.FieldOutput}, cursor)
	if err != nil {
		t.Fatalf("GetStatus tail: %v", err)
	}
	if !strings.Contains(*tail.Output, "phase two") || strings.Contains(*tail.Output, "phase one") {
		t.Fatalf("tail: %q", *tail.Output)
	}
}

func TestRunSync(t *testing.T) {
	t.Parallel()

	e, _, reg := newTestExecutor(t)
	if err := reg.Register(interp.Command{
		Name: "echo",
		Mode: interp.ModeSync,
		Handler: func(_ context.Context, inv *interp.Invocation, out *interp.Output) error {
			out.Println(strings.Join(inv.Args, " "))
			return nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(interp.Command{
		Name: "fail",
		Mode: interp.ModeSync,
		Handler: func(_ context.Context, _ *interp.Invocation, _ *interp.Output) error {
			return fmt.Errorf("nope")
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := e.RunSync(context.Background(), "echo hello there")
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if res.StatusCode != 0 || res.Output != "hello there\n" {
		t.Fatalf("unexpected result %#v", res)
	}

	res, err = e.RunSync(context.Background(), "fail")
	if err == nil {
		t.Fatalf("expected handler error")
	}
	if res.StatusCode != 1 || !strings.Contains(res.Output, "nope") {
		t.Fatalf("unexpected failure result %#v", res)
	}
}

func TestRunSyncSeparatesPartialOutputFromError(t *testing.T) {
	t.Parallel()

	e, _, reg := newTestExecutor(t)
	if err := reg.Register(interp.Command{
		Name: "half",
		Mode: interp.ModeSync,
		Handler: func(_ context.Context, _ *interp.Invocation, out *interp.Output) error {
			out.Printf("partial")
			return fmt.Errorf("midway failure")
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := e.RunSync(context.Background(), "half")
	if err == nil {
		t.Fatalf("expected handler error")
	}
	if res.Output != "partial\nerror: midway failure" {
		t.Fatalf("output: %q", res.Output)
	}
}
