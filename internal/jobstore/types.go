package jobstore

import "errors"

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether a job in this status can never transition again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

var ErrJobNotFound = errors.New("job not found")

// Field names accepted by the include projection on reads.
const (
	FieldCommand      = "command"
	FieldStatus       = "status"
	FieldOutput       = "output"
	FieldOutputLength = "output_length"
	FieldMsg          = "msg"
	FieldStartTime    = "start_time"
	FieldEndTime      = "end_time"
)

// JobView is a projection of a job record. Only requested fields are set;
// an empty include list selects everything. Timestamps are unix milliseconds.
type JobView struct {
	ID           string  `json:"id"`
	Command      *string `json:"command,omitempty"`
	Status       *Status `json:"status,omitempty"`
	Output       *string `json:"output,omitempty"`
	OutputLength *int    `json:"output_length,omitempty"`
	Msg          *string `json:"msg,omitempty"`
	StartTime    *int64  `json:"start_time,omitempty"`
	EndTime      *int64  `json:"end_time,omitempty"`
}
