package store

import (
	"context"
	"sync"

	"go-trip-pipeline/internal/model"
)

// MemoryLedger is an in-process ledger. Entries do not survive a restart of
// the process; it suits one-shot runs and tests.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]model.LedgerEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]model.LedgerEntry)}
}

func (m *MemoryLedger) Get(_ context.Context, pipelineID string) (model.LedgerEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[pipelineID]
	return e, ok, nil
}

func (m *MemoryLedger) Put(_ context.Context, e model.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.PipelineID] = e
	return nil
}

// Len returns the number of entries.
func (m *MemoryLedger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// MemoryStages is an in-process stage log.
type MemoryStages struct {
	mu      sync.RWMutex
	records []model.StageRecord
}

func NewMemoryStages() *MemoryStages {
	return &MemoryStages{}
}

func (m *MemoryStages) Append(_ context.Context, rec model.StageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryStages) List(_ context.Context, pipelineID string) ([]model.StageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.StageRecord
	for _, r := range m.records {
		if r.PipelineID == pipelineID {
			out = append(out, r)
		}
	}
	return out, nil
}

// All returns every record in append order.
func (m *MemoryStages) All() []model.StageRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.StageRecord(nil), m.records...)
}
