package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go-trip-pipeline/internal/model"
)

var testNow = time.Date(2024, 12, 13, 9, 0, 0, 0, time.UTC)

// fakeClock advances by the requested duration whenever After is called,
// so poll loops run instantly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: testNow} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// fakeExec is a scripted statement executor. Statements finish on submit
// unless their SQL starts with a prefix in fail or hang.
type fakeExec struct {
	mu        sync.Mutex
	stmts     []model.Statement
	descs     map[string]model.StatementDescription
	rows      map[string][][]interface{}
	counts    map[string]int64  // table -> COUNT(*) result
	fail      map[string]string // SQL prefix -> error message
	hang      string            // SQL prefix that never finishes
	submitErr error
	cancel    context.CancelFunc // cancels the caller's context on Describe
}

func newFakeExec() *fakeExec {
	return &fakeExec{
		descs:  make(map[string]model.StatementDescription),
		rows:   make(map[string][][]interface{}),
		counts: make(map[string]int64),
		fail:   make(map[string]string),
	}
}

func (f *fakeExec) Submit(_ context.Context, stmt model.Statement) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.stmts = append(f.stmts, stmt)
	id := fmt.Sprintf("stmt-%d", len(f.stmts))
	desc := model.StatementDescription{ID: id, Status: model.StatementFinished}

	switch {
	case f.hang != "" && strings.HasPrefix(stmt.SQL, f.hang):
		desc.Status = model.StatementRunning
	case f.failFor(stmt.SQL) != "":
		desc.Status = model.StatementFailed
		desc.Error = f.failFor(stmt.SQL)
	case strings.HasPrefix(stmt.SQL, "SELECT COUNT(*) FROM "):
		table := strings.TrimPrefix(stmt.SQL, "SELECT COUNT(*) FROM ")
		desc.HasResult = true
		f.rows[id] = [][]interface{}{{f.counts[table]}}
	}
	f.descs[id] = desc
	return id, nil
}

func (f *fakeExec) failFor(sql string) string {
	for prefix, msg := range f.fail {
		if strings.HasPrefix(sql, prefix) {
			return msg
		}
	}
	return ""
}

func (f *fakeExec) Describe(ctx context.Context, id string) (model.StatementDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
		return model.StatementDescription{}, ctx.Err()
	}
	d, ok := f.descs[id]
	if !ok {
		return model.StatementDescription{}, fmt.Errorf("unknown statement %s", id)
	}
	return d, nil
}

func (f *fakeExec) Result(_ context.Context, id string) ([][]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id], nil
}

func (f *fakeExec) sqls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.stmts))
	for i, s := range f.stmts {
		out[i] = s.SQL
	}
	return out
}

type fakeLister struct {
	objects []model.SourceObject
	err     error
}

func (l *fakeLister) List(_ context.Context, prefix string) ([]model.SourceObject, error) {
	if l.err != nil {
		return nil, l.err
	}
	var out []model.SourceObject
	for _, o := range l.objects {
		if strings.HasPrefix(o.Key, prefix) {
			out = append(out, o)
		}
	}
	return out, nil
}

var errStoreDown = errors.New("store unavailable")

type brokenLedgerStore struct{}

func (brokenLedgerStore) Get(context.Context, string) (model.LedgerEntry, bool, error) {
	return model.LedgerEntry{}, false, errStoreDown
}
func (brokenLedgerStore) Put(context.Context, model.LedgerEntry) error { return errStoreDown }

type brokenStageStore struct{}

func (brokenStageStore) Append(context.Context, model.StageRecord) error { return errStoreDown }
func (brokenStageStore) List(context.Context, string) ([]model.StageRecord, error) {
	return nil, errStoreDown
}

type alert struct {
	subject, message string
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []alert
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, subject, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert{subject, message})
	return n.err
}

func (n *recordingNotifier) sent() []alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]alert(nil), n.alerts...)
}

func testDataset() model.Dataset {
	cols := []string{"trip_id", "pickup_datetime", "fare_amount"}
	return model.Dataset{
		Name:                   "trip_events",
		PipelineName:           "streaming_trip_events",
		PipelineType:           model.PipelineTypeStreaming,
		Database:               "trips",
		StagingTable:           "trip_events_staging",
		FinalTable:             "trip_events",
		StagingColumns:         cols,
		Columns:                cols,
		Select:                 map[string]string{"pickup_datetime": "CAST(s.pickup_datetime AS TIMESTAMP)"},
		NaturalKey:             []string{"trip_id"},
		SourceFormat:           "parquet",
		ClearStagingAfterMerge: true,
	}
}
