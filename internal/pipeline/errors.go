package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinels matched with errors.Is.
var (
	ErrEmptySource       = errors.New("no records found in staging table after copy")
	ErrStatementTimeout  = errors.New("statement did not finish before deadline")
	ErrAttemptClosed     = errors.New("stage attempt already has a terminal status")
	ErrInvalidObjectName = errors.New("invalid file name pattern")
	ErrUnknownDataset    = errors.New("no dataset configured")
)

// ValidationError reports a record that is missing required fields or has
// malformed ones. It is scoped to a single record.
type ValidationError struct {
	Missing []string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required fields: [%s]", strings.Join(e.Missing, ", "))
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid field %s: %s", e.Field, e.Reason)
	}
	return "invalid record: " + e.Reason
}

// EncodingError is a failure to re-encode a record that already passed
// validation. It says nothing about the input's validity.
type EncodingError struct {
	RecordID string
	Err      error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode record %s: %v", e.RecordID, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// EmptySourceError is raised when a bulk load staged zero rows. An empty
// source is always an anomaly, never a successful no-op.
type EmptySourceError struct {
	SourceURI    string
	StagingTable string
}

func (e *EmptySourceError) Error() string {
	return fmt.Sprintf("%s: %s from %s", ErrEmptySource.Error(), e.StagingTable, e.SourceURI)
}

func (e *EmptySourceError) Unwrap() error { return ErrEmptySource }

// TimeoutError is raised when a statement is still running at the caller's
// deadline. The statement itself keeps running server-side.
type TimeoutError struct {
	StatementID string
	LastStatus  string
	Waited      time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("statement %s still %s after %v", e.StatementID, e.LastStatus, e.Waited)
}

func (e *TimeoutError) Unwrap() error { return ErrStatementTimeout }

// LoadError wraps any failure of a loader step: a statement that ended
// FAILED or ABORTED, a timeout, or a submission error.
type LoadError struct {
	Step        string
	StatementID string
	Status      string
	Err         error
}

func (e *LoadError) Error() string {
	msg := "load step " + e.Step
	if e.StatementID != "" {
		msg += " (statement " + e.StatementID + ")"
	}
	if e.Status != "" {
		msg += " ended " + e.Status
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// LedgerError is a failure to read or write the processed-file ledger.
// Callers treat it as retryable: nothing is marked, the file stays eligible.
type LedgerError struct {
	Op         string
	PipelineID string
	Err        error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s %s: %v", e.Op, e.PipelineID, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// Retryable is always true for ledger failures.
func (e *LedgerError) Retryable() bool { return true }

// TrackerError is a failure to append to the stage log. It is never
// swallowed.
type TrackerError struct {
	PipelineID string
	Stage      string
	Status     string
	Err        error
}

func (e *TrackerError) Error() string {
	return fmt.Sprintf("record stage %s/%s %s: %v", e.PipelineID, e.Stage, e.Status, e.Err)
}

func (e *TrackerError) Unwrap() error { return e.Err }

// NotificationError is a failed failure alert. It is logged and dropped.
type NotificationError struct {
	Subject string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("publish %q: %v", e.Subject, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
