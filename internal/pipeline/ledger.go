package pipeline

import (
	"context"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/model"
)

// Ledger records which source objects have been fully processed. An entry
// for a pipeline id means the object must not be loaded again.
type Ledger struct {
	store LedgerStore
	clock Clock
	log   *logger.Logger
}

// NewLedger wraps a key-value store as the processed-file ledger.
func NewLedger(store LedgerStore, clock Clock, log *logger.Logger) *Ledger {
	if clock == nil {
		clock = SystemClock
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Ledger{store: store, clock: clock, log: log.With("component", "Ledger")}
}

// Get is a point lookup of one ledger entry.
func (l *Ledger) Get(ctx context.Context, pipelineID string) (model.LedgerEntry, bool, error) {
	entry, found, err := l.store.Get(ctx, pipelineID)
	if err != nil {
		return model.LedgerEntry{}, false, &LedgerError{Op: "get", PipelineID: pipelineID, Err: err}
	}
	return entry, found, nil
}

// IsProcessed reports whether pipelineID already has a ledger entry.
func (l *Ledger) IsProcessed(ctx context.Context, pipelineID string) (bool, error) {
	_, found, err := l.Get(ctx, pipelineID)
	return found, err
}

// MarkProcessed writes the success entry for pipelineID. Writing it again
// overwrites the previous entry.
func (l *Ledger) MarkProcessed(ctx context.Context, pipelineID, pipelineType, datasetName, sourceURI, notes string) error {
	entry := model.LedgerEntry{
		PipelineID:   pipelineID,
		PipelineType: pipelineType,
		DatasetName:  datasetName,
		SourceURI:    sourceURI,
		Status:       model.LedgerStatusSuccess,
		ProcessedAt:  l.clock.Now().UTC(),
		Notes:        notes,
	}
	if err := l.store.Put(ctx, entry); err != nil {
		return &LedgerError{Op: "put", PipelineID: pipelineID, Err: err}
	}
	l.log.Info("marked processed", "pipeline_id", pipelineID, "dataset", datasetName)
	return nil
}
