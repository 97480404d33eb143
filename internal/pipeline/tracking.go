package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/metrics"
	"go-trip-pipeline/internal/model"
)

// terminalWriteTimeout bounds the write of a SUCCEEDED or FAILED record,
// which runs even when the caller's context is already done.
const terminalWriteTimeout = 30 * time.Second

// StageInfo is the descriptive part of a stage record, shared by every
// status an attempt goes through.
type StageInfo struct {
	PipelineName string
	PipelineType string
	S3Input      string
	S3Output     string
	DBTable      string
}

// Tracker writes the append-only stage log and raises an alert whenever a
// stage fails.
type Tracker struct {
	store         StageStore
	notifier      Notifier
	clock         Clock
	notifyTimeout time.Duration
	log           *logger.Logger
	metrics       *metrics.Metrics
}

// NewTracker creates a tracker. A nil notifier disables alerts.
func NewTracker(store StageStore, notifier Notifier, clock Clock, notifyTimeout time.Duration, log *logger.Logger, m *metrics.Metrics) *Tracker {
	if clock == nil {
		clock = SystemClock
	}
	if notifyTimeout <= 0 {
		notifyTimeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{
		store:         store,
		notifier:      notifier,
		clock:         clock,
		notifyTimeout: notifyTimeout,
		log:           log.With("component", "Tracker"),
		metrics:       m,
	}
}

// RecordStage appends rec to the stage log. A store failure is returned as
// a *TrackerError and must not be ignored. FAILED records are then
// published to the notifier; publishing problems are only logged.
func (t *Tracker) RecordStage(ctx context.Context, rec model.StageRecord) error {
	if !model.ValidStatus(rec.Status) {
		return &TrackerError{PipelineID: rec.PipelineID, Stage: rec.Stage, Status: rec.Status,
			Err: fmt.Errorf("invalid status %q", rec.Status)}
	}
	if rec.Executor == "" {
		rec.Executor = model.ExecutorService
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = t.clock.Now().UTC()
	}

	if err := t.store.Append(ctx, rec); err != nil {
		t.log.Error("stage log write failed",
			"pipeline_id", rec.PipelineID,
			"stage", rec.Stage,
			"status", rec.Status,
			"error", err,
		)
		return &TrackerError{PipelineID: rec.PipelineID, Stage: rec.Stage, Status: rec.Status, Err: err}
	}
	t.metrics.StageRecorded(rec.Stage, rec.Status)
	t.log.Info("stage recorded",
		"pipeline_id", rec.PipelineID,
		"stage", rec.Stage,
		"status", rec.Status,
		"attempt", rec.Attempt,
	)

	if rec.Status == model.StatusFailed {
		t.alert(ctx, rec)
	}
	return nil
}

// alert publishes a failed record. It never returns an error and never
// retries.
func (t *Tracker) alert(ctx context.Context, rec model.StageRecord) {
	if t.notifier == nil {
		return
	}
	subject := fmt.Sprintf("[FAILED] %s at %s", rec.PipelineID, rec.Stage)
	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		body = []byte(fmt.Sprintf("%+v", rec))
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.notifyTimeout)
	defer cancel()
	if err := t.notifier.Publish(nctx, subject, string(body)); err != nil {
		t.metrics.NotificationFailed()
		t.log.Warn("failure alert not delivered",
			"pipeline_id", rec.PipelineID,
			"stage", rec.Stage,
			"error", &NotificationError{Subject: subject, Err: err},
		)
	}
}

// History returns every record written for pipelineID, oldest first.
func (t *Tracker) History(ctx context.Context, pipelineID string) ([]model.StageRecord, error) {
	recs, err := t.store.List(ctx, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("list stages for %s: %w", pipelineID, err)
	}
	return recs, nil
}

// Start appends a STARTED record under a fresh attempt id. Retries of the
// same stage call Start again rather than reusing an attempt.
func (t *Tracker) Start(ctx context.Context, pipelineID, stage string, info StageInfo) (*Attempt, error) {
	a := &Attempt{
		tracker: t,
		base: model.StageRecord{
			PipelineID:   pipelineID,
			Stage:        stage,
			Attempt:      uuid.NewString(),
			PipelineName: info.PipelineName,
			PipelineType: info.PipelineType,
			S3Input:      info.S3Input,
			S3Output:     info.S3Output,
			DBTable:      info.DBTable,
		},
	}
	rec := a.base
	rec.Status = model.StatusStarted
	if err := t.RecordStage(ctx, rec); err != nil {
		return nil, err
	}
	return a, nil
}

// Attempt is one STARTED stage awaiting its single terminal record.
type Attempt struct {
	tracker *Tracker
	base    model.StageRecord

	mu     sync.Mutex
	closed bool
}

// ID returns the attempt id shared by the attempt's records.
func (a *Attempt) ID() string { return a.base.Attempt }

// PipelineID returns the pipeline id the attempt belongs to.
func (a *Attempt) PipelineID() string { return a.base.PipelineID }

// Succeed appends the SUCCEEDED record.
func (a *Attempt) Succeed(ctx context.Context, recordCount *int64, details map[string]interface{}) error {
	return a.finish(ctx, model.StatusSucceeded, recordCount, details)
}

// Fail appends the FAILED record with cause in its details and alerts.
func (a *Attempt) Fail(ctx context.Context, cause error, details map[string]interface{}) error {
	if cause != nil {
		if details == nil {
			details = map[string]interface{}{}
		}
		details["error"] = cause.Error()
	}
	return a.finish(ctx, model.StatusFailed, nil, details)
}

func (a *Attempt) finish(ctx context.Context, status string, recordCount *int64, details map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("%s/%s attempt %s: %w", a.base.PipelineID, a.base.Stage, a.base.Attempt, ErrAttemptClosed)
	}

	rec := a.base
	rec.Status = status
	rec.RecordCount = recordCount
	rec.Details = details

	// A cancelled run still closes the attempt it started.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()
	if err := a.tracker.RecordStage(wctx, rec); err != nil {
		return err
	}
	a.closed = true
	return nil
}
