package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shellgw/internal/dispatch"
	"shellgw/internal/executor"
	"shellgw/internal/interp"
	"shellgw/internal/jobstore"
	"shellgw/internal/log"
	"shellgw/internal/storage"
)

func newTestServer(t *testing.T) (*httptest.Server, *interp.Registry) {
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
	hub := NewEventHub(64)
	exec := executor.New(in, store, 2, hub)

	ctx, cancel := context.WithCancel(context.Background())
	exec.Start(ctx)
	t.Cleanup(func() {
		cancel()
		exec.Wait()
	})

	srv := New(Config{Listen: "127.0.0.1:0", Workers: 2}, dispatch.New(in, exec), store, hub, log.WithComponent("api-test"))
	ts := httptest.NewServer(srv.setupRoutes())
	t.Cleanup(ts.Close)
	return ts, reg
}

func postCommand(t *testing.T, ts *httptest.Server, line string) *http.Response {
	t.Helper()

	body, _ := json.Marshal(CommandRequest{Line: line})
	resp, err := http.Post(ts.URL+"/command", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /command: %v", err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func registerEcho(t *testing.T, reg *interp.Registry) {
	t.Helper()
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
}

func TestCommandSyncPath(t *testing.T) {
	t.Parallel()

	ts, reg := newTestServer(t)
	registerEcho(t, reg)

	resp := postCommand(t, ts, "echo hello api")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	sync := decodeJSON[SyncResponse](t, resp)
	if sync.Output != "hello api\n" || sync.StatusCode != 0 {
		t.Fatalf("unexpected response %#v", sync)
	}
}

func TestCommandAsyncPathAndPolling(t *testing.T) {
	t.Parallel()

	ts, reg := newTestServer(t)
	if err := reg.Register(interp.Command{
		Name: "bg",
		Mode: interp.ModeAsync,
		Handler: func(_ context.Context, _ *interp.Invocation, out *interp.Output) error {
			out.Report("step 1")
			out.Println("finished")
			return nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	resp := postCommand(t, ts, "bg")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	async := decodeJSON[AsyncResponse](t, resp)
	if async.JobID == "" || async.Poll != "/job/"+async.JobID {
		t.Fatalf("unexpected response %#v", async)
	}

	// Poll until terminal.
	var view jobstore.JobView
	deadline := time.Now().Add(5 * time.Second)
	for {
		r, err := http.Get(ts.URL + async.Poll)
		if err != nil {
			t.Fatalf("GET %s: %v", async.Poll, err)
		}
		if r.StatusCode != http.StatusOK {
			t.Fatalf("poll status: %d", r.StatusCode)
		}
		view = decodeJSON[jobstore.JobView](t, r)
		if view.Status != nil && view.Status.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never finished: %#v", view)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if *view.Status != jobstore.StatusCompleted {
		t.Fatalf("status: %s", *view.Status)
	}
	if !strings.Contains(*view.Output, "step 1") || !strings.Contains(*view.Output, "finished") {
		t.Fatalf("output: %q", *view.Output)
	}

	// Tail with last_length: cursor at full length yields empty output.
	r, err := http.Get(fmt.Sprintf("%s%s?include=output&last_length=%d", ts.URL, async.Poll, *view.OutputLength))
	if err != nil {
		t.Fatalf("GET tail: %v", err)
	}
	tail := decodeJSON[jobstore.JobView](t, r)
	if tail.Output == nil || *tail.Output != "" {
		t.Fatalf("tail output: %#v", tail.Output)
	}
	if tail.Status != nil || tail.Command != nil {
		t.Fatalf("projection leaked fields: %#v", tail)
	}
}

func TestCommandErrors(t *testing.T) {
	t.Parallel()

	ts, reg := newTestServer(t)
	registerEcho(t, reg)

	cases := []struct {
		name string
		line string
		code int
	}{
		{"parse error", `echo "broken`, http.StatusBadRequest},
		{"unknown verb", "frobnicate", http.StatusNotFound},
		{"blank line", "   ", http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := postCommand(t, ts, tc.line)
		if resp.StatusCode != tc.code {
			t.Fatalf("%s: status %d, want %d", tc.name, resp.StatusCode, tc.code)
		}
		errResp := decodeJSON[ErrorResponse](t, resp)
		if errResp.Error == "" {
			t.Fatalf("%s: expected error body", tc.name)
		}
	}
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/job/does-not-exist")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	errResp := decodeJSON[ErrorResponse](t, resp)
	if errResp.Error != "job not found" {
		t.Fatalf("error body: %q", errResp.Error)
	}
}

func TestListAndClearJobs(t *testing.T) {
	t.Parallel()

	ts, reg := newTestServer(t)
	registerEcho(t, reg)
	if err := reg.Register(interp.Command{
		Name: "bg",
		Mode: interp.ModeAsync,
		Handler: func(_ context.Context, _ *interp.Invocation, _ *interp.Output) error {
			return nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	resp := postCommand(t, ts, "bg")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	r, err := http.Get(ts.URL + "/jobs?include=status")
	if err != nil {
		t.Fatalf("GET /jobs: %v", err)
	}
	views := decodeJSON[[]*jobstore.JobView](t, r)
	if len(views) != 1 {
		t.Fatalf("expected 1 job, got %d", len(views))
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/jobs", nil)
	dr, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /jobs: %v", err)
	}
	dr.Body.Close()
	if dr.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status: %d", dr.StatusCode)
	}

	r, err = http.Get(ts.URL + "/jobs")
	if err != nil {
		t.Fatalf("GET /jobs: %v", err)
	}
	views = decodeJSON[[]*jobstore.JobView](t, r)
	if len(views) != 0 {
		t.Fatalf("expected empty list after clear, got %d", len(views))
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	health := decodeJSON[HealthzResponse](t, resp)
	if health.Status != "ok" || health.Workers != 2 {
		t.Fatalf("unexpected health %#v", health)
	}
}
