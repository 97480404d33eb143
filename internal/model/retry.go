package model

import "time"

// Warehouse statement states.
const (
	StatementSubmitted = "SUBMITTED"
	StatementRunning   = "RUNNING"
	StatementFinished  = "FINISHED"
	StatementFailed    = "FAILED"
	StatementAborted   = "ABORTED"
)

// StatementTerminal reports whether a statement in state s will not change
// state again.
func StatementTerminal(s string) bool {
	return s == StatementFinished || s == StatementFailed || s == StatementAborted
}

// Statement is one SQL statement submitted to the warehouse.
type Statement struct {
	SQL      string `json:"sql"`
	Database string `json:"database"`
}

// StatementDescription is the polled state of a submitted statement.
type StatementDescription struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	HasResult    bool      `json:"has_result"`
	RowsAffected int64     `json:"rows_affected"`
	SubmittedAt  time.Time `json:"submitted_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
}

// BackoffConfig bounds the wait between two polls of a running statement.
type BackoffConfig struct {
	InitialDelay      time.Duration `json:"initial_delay" yaml:"-"`
	MaxDelay          time.Duration `json:"max_delay" yaml:"-"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"-"`
}

// DefaultBackoff polls quickly at first and settles at five seconds.
var DefaultBackoff = BackoffConfig{
	InitialDelay:      250 * time.Millisecond,
	MaxDelay:          5 * time.Second,
	BackoffMultiplier: 2.0,
}
