package pipeline

import (
	"context"
	"time"

	"go-trip-pipeline/internal/model"
)

// ObjectLister lists the objects under a prefix of the source bucket.
type ObjectLister interface {
	List(ctx context.Context, prefix string) ([]model.SourceObject, error)
}

// LedgerStore is a key-value store keyed by pipeline id. Only point reads
// and writes are used.
type LedgerStore interface {
	Get(ctx context.Context, pipelineID string) (model.LedgerEntry, bool, error)
	Put(ctx context.Context, entry model.LedgerEntry) error
}

// StageStore is the append-only backing store of the stage log.
type StageStore interface {
	Append(ctx context.Context, rec model.StageRecord) error
	List(ctx context.Context, pipelineID string) ([]model.StageRecord, error)
}

// StatementExecutor submits SQL to the warehouse and reports on it
// asynchronously.
type StatementExecutor interface {
	Submit(ctx context.Context, stmt model.Statement) (string, error)
	Describe(ctx context.Context, id string) (model.StatementDescription, error)
	Result(ctx context.Context, id string) ([][]interface{}, error)
}

// Notifier publishes an operator alert. Delivery is best effort.
type Notifier interface {
	Publish(ctx context.Context, subject, message string) error
}

// Clock abstracts time for the poll loop and the audit timestamps.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now().UTC() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall clock in UTC.
var SystemClock Clock = systemClock{}
