package api

// CommandRequest is the JSON body for POST /command.
type CommandRequest struct {
	Line string `json:"line"`
}

// AsyncResponse is returned when a command was routed to the worker pool.
type AsyncResponse struct {
	JobID string `json:"job_id"`
	// Poll is the reference to poll for status and output.
	Poll string `json:"poll"`
}

// SyncResponse is returned when a command ran inline.
type SyncResponse struct {
	Output     string `json:"output"`
	StatusCode int    `json:"status_code"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Workers       int            `json:"workers"`
	Jobs          map[string]int `json:"jobs"`
}
