package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the durable record of job lifecycle and accumulated output.
// Records may be read and written concurrently by any goroutine; every write
// against an id that no longer exists is a no-op, not an error.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// StartJob inserts a pending record with empty output and returns its id.
func (s *Store) StartJob(ctx context.Context, command string) (string, error) {
	if command == "" {
		return "", fmt.Errorf("command is empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO jobs(id, command, status, output, output_length, msg, created_at)
VALUES(?, ?, ?, '', 0, '', ?);
`, id, command, StatusPending, now)
	if err != nil {
		return "", fmt.Errorf("start job: %w", err)
	}
	return id, nil
}

// MarkRunning transitions pending -> running and stamps start_time.
// A job already past pending is left untouched.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE jobs SET status = ?, start_time = ?
WHERE id = ? AND status = ?;
`, StatusRunning, time.Now().UnixMilli(), id, StatusPending)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	return nil
}

// SetOutput replaces the job's output wholesale and recomputes output_length.
func (s *Store) SetOutput(ctx context.Context, id, text string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE jobs SET output = ?, output_length = ? WHERE id = ?;
`, text, len(text), id)
	if err != nil {
		return fmt.Errorf("set output: %w", err)
	}
	return nil
}

// UpdateOutput appends text to the job's output, preceded by a newline unless
// the output is currently empty. The append and the output_length recompute
// happen in one transaction so concurrent readers never observe a mismatch.
func (s *Store) UpdateOutput(ctx context.Context, id, text string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT output FROM jobs WHERE id = ?;", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read output: %w", err)
	}

	next := text
	if current != "" {
		next = current + "\n" + text
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE jobs SET output = ?, output_length = ? WHERE id = ?;
`, next, len(next), id); err != nil {
		return fmt.Errorf("append output: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SetMsg records the latest short status line, distinct from accumulated output.
func (s *Store) SetMsg(ctx context.Context, id, text string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE jobs SET msg = ? WHERE id = ?;", text, id)
	if err != nil {
		return fmt.Errorf("set msg: %w", err)
	}
	return nil
}

// EndJob transitions running -> completed and stamps end_time. Terminal
// statuses never regress, enforced by the status guard in the WHERE clause.
func (s *Store) EndJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE jobs SET status = ?, end_time = ?
WHERE id = ? AND status IN (?, ?);
`, StatusCompleted, time.Now().UnixMilli(), id, StatusPending, StatusRunning)
	if err != nil {
		return fmt.Errorf("end job: %w", err)
	}
	return nil
}

// ErrorJob transitions to error, stamps end_time, and appends detail to the
// output so pollers see the failure text.
func (s *Store) ErrorJob(ctx context.Context, id, detail string) error {
	if detail != "" {
		if err := s.UpdateOutput(ctx, id, detail); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE jobs SET status = ?, end_time = ?, msg = ?
WHERE id = ? AND status IN (?, ?);
`, StatusError, time.Now().UnixMilli(), detail, id, StatusPending, StatusRunning)
	if err != nil {
		return fmt.Errorf("error job: %w", err)
	}
	return nil
}

// GetStatus returns the requested fields for one job. When "output" is
// requested and lastLength > 0, only output[lastLength:] is returned; a cursor
// past the end yields an empty string, never an error. output_length always
// reports the full accumulated length so callers can advance their cursor.
func (s *Store) GetStatus(ctx context.Context, id string, include []string, lastLength int) (*JobView, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, command, status, output, output_length, msg, start_time, end_time
FROM jobs WHERE id = ?;
`, id)

	view, err := scanView(row, include, lastLength)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	return view, nil
}

// GetAllStatuses returns the same projection across all jobs, insertion-ordered.
func (s *Store) GetAllStatuses(ctx context.Context, include []string) ([]*JobView, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, command, status, output, output_length, msg, start_time, end_time
FROM jobs ORDER BY created_at ASC, rowid ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var views []*JobView
	for rows.Next() {
		view, err := scanView(rows, include, 0)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return views, nil
}

// ClearAllJobs hard-deletes every record. Test/ops use only.
func (s *Store) ClearAllJobs(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM jobs;"); err != nil {
		return fmt.Errorf("clear jobs: %w", err)
	}
	return nil
}

// CountByStatus returns job counts keyed by status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status;")
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Status(st)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// SweepStale marks jobs still running whose start_time is older than the
// threshold as error. Nothing is interrupted; the underlying goroutine, if it
// still exists, keeps going and its late writes land on a terminal record.
func (s *Store) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs SET status = ?, end_time = ?, msg = 'stale: still running at startup'
WHERE status = ? AND start_time IS NOT NULL AND start_time < ?;
`, StatusError, time.Now().UnixMilli(), StatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep stale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep stale rows: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanView(row rowScanner, include []string, lastLength int) (*JobView, error) {
	var (
		id        string
		command   string
		statusS   string
		output    string
		outputLen int
		msg       string
		startTime sql.NullInt64
		endTime   sql.NullInt64
	)
	if err := row.Scan(&id, &command, &statusS, &output, &outputLen, &msg, &startTime, &endTime); err != nil {
		return nil, err
	}

	want := func(field string) bool {
		if len(include) == 0 {
			return true
		}
		for _, f := range include {
			if f == field {
				return true
			}
		}
		return false
	}

	view := &JobView{ID: id}
	if want(FieldCommand) {
		view.Command = &command
	}
	if want(FieldStatus) {
		st := Status(statusS)
		view.Status = &st
	}
	if want(FieldOutput) {
		tail := output
		if lastLength > 0 {
			if lastLength >= len(output) {
				tail = ""
			} else {
				tail = output[lastLength:]
			}
		}
		view.Output = &tail
	}
	if want(FieldOutputLength) {
		view.OutputLength = &outputLen
	}
	if want(FieldMsg) {
		view.Msg = &msg
	}
	if want(FieldStartTime) && startTime.Valid {
		view.StartTime = &startTime.Int64
	}
	if want(FieldEndTime) && endTime.Valid {
		view.EndTime = &endTime.Int64
	}
	return view, nil
}
