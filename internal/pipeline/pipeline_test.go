package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-trip-pipeline/internal/model"
	"go-trip-pipeline/internal/store"
)

type harness struct {
	exec     *fakeExec
	lister   *fakeLister
	ledger   *store.MemoryLedger
	stages   *store.MemoryStages
	notifier *recordingNotifier
	orch     *Orchestrator
}

func yellowDataset() model.Dataset {
	cols := []string{"vendorid", "pickup_datetime", "pulocationid", "dolocationid", "fare_amount", "cab_type"}
	return model.Dataset{
		Name:         "yellow_tripdata",
		PipelineName: "batch_yellow_tripdata",
		PipelineType: model.PipelineTypeBatch,
		Database:     "trips",
		StagingTable: "yellow_trip_data_staging",
		FinalTable:   "taxi_trip_data",
		Columns:      cols,
		Select:       map[string]string{"cab_type": "'yellow'"},
		NaturalKey:   []string{"vendorid", "pickup_datetime", "pulocationid", "dolocationid"},
		SourceFormat: "parquet",
	}
}

func newHarness(stageStore StageStore) *harness {
	h := &harness{
		exec:     newFakeExec(),
		lister:   &fakeLister{},
		ledger:   store.NewMemoryLedger(),
		stages:   store.NewMemoryStages(),
		notifier: &recordingNotifier{},
	}
	if stageStore == nil {
		stageStore = h.stages
	}
	clock := newFakeClock()
	ledger := NewLedger(h.ledger, clock, nil)
	tracker := NewTracker(stageStore, h.notifier, clock, time.Second, nil, nil)
	h.orch = NewOrchestrator(OrchestratorConfig{
		Streaming:     testDataset(),
		Scope:         Scope{Prefix: "sink/"},
		Lookback:      0,
		BatchDatasets: map[string]model.Dataset{"yellow": yellowDataset()},
	},
		NewDiscoverer(h.lister, ledger, nil, clock, nil),
		ledger,
		NewLoader(h.exec, clock, LoaderConfig{StatementTimeout: time.Minute}, nil, nil),
		tracker, clock, nil, nil)
	return h
}

func (h *harness) history(t *testing.T, pipelineID string) []model.StageRecord {
	t.Helper()
	recs, err := h.stages.List(context.Background(), pipelineID)
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	return recs
}

func statuses(recs []model.StageRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Status
	}
	return out
}

func TestRunStreamingLoadsNewFiles(t *testing.T) {
	h := newHarness(nil)
	h.exec.counts["trip_events_staging"] = 5
	h.exec.counts["trip_events"] = 10
	h.lister.objects = []model.SourceObject{obj("sink/a.parquet", 2*time.Minute), obj("sink/b.parquet", time.Minute)}

	summary, err := h.orch.RunStreaming(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Discovered != 2 || summary.Succeeded != 2 || summary.Failed != 0 {
		t.Fatalf("summary: got %+v", summary)
	}
	if h.ledger.Len() != 2 {
		t.Fatalf("ledger entries: want=2 got=%d", h.ledger.Len())
	}

	for _, id := range []string{"sink/a.parquet", "sink/b.parquet"} {
		recs := h.history(t, id)
		if len(recs) != 2 || recs[0].Status != model.StatusStarted || recs[1].Status != model.StatusSucceeded {
			t.Fatalf("%s: want STARTED,SUCCEEDED got %v", id, statuses(recs))
		}
		if recs[1].Stage != model.StageCopyToWarehouse || recs[1].DBTable != "trip_events" {
			t.Fatalf("%s: unexpected record %+v", id, recs[1])
		}
		if *recs[1].RecordCount != 5 || recs[1].Details["final_row_count"] != int64(10) {
			t.Fatalf("%s: counts not recorded: %+v", id, recs[1])
		}
	}

	disc := h.history(t, summary.InvocationID)
	if len(disc) != 2 || disc[0].Stage != model.StageDiscovery || disc[1].Status != model.StatusSucceeded || *disc[1].RecordCount != 2 {
		t.Fatalf("discovery stage: got %+v", disc)
	}

	// A second run finds nothing new and submits no statements.
	before := len(h.exec.sqls())
	summary, err = h.orch.RunStreaming(context.Background())
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if summary.Discovered != 0 || len(h.exec.sqls()) != before {
		t.Fatalf("rerun must not load anything: %+v", summary)
	}
}

func TestRunStreamingEmptySourceNotMarked(t *testing.T) {
	h := newHarness(nil)
	h.lister.objects = []model.SourceObject{obj("sink/empty.parquet", time.Minute)}

	summary, err := h.orch.RunStreaming(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Failed != 1 || summary.Files[0].Status != model.StatusFailed {
		t.Fatalf("summary: got %+v", summary)
	}
	if h.ledger.Len() != 0 {
		t.Fatalf("an empty source must never be marked processed")
	}

	recs := h.history(t, "sink/empty.parquet")
	if len(recs) != 2 || recs[1].Status != model.StatusFailed {
		t.Fatalf("want STARTED,FAILED got %v", statuses(recs))
	}
	if recs[1].Details["empty_source"] != true {
		t.Fatalf("details must flag the empty source: %+v", recs[1].Details)
	}
	if len(h.notifier.sent()) != 1 {
		t.Fatalf("alerts: want=1 got=%d", len(h.notifier.sent()))
	}

	// Still eligible on the next run.
	summary, err = h.orch.RunStreaming(context.Background())
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if summary.Discovered != 1 {
		t.Fatalf("unmarked file must be rediscovered, got %+v", summary)
	}
}

func TestRunStreamingContinuesAfterFailure(t *testing.T) {
	h := newHarness(nil)
	h.exec.counts["trip_events_staging"] = 1
	h.exec.fail["INSERT INTO trip_events_staging (trip_id, pickup_datetime, fare_amount) SELECT trip_id, pickup_datetime, fare_amount FROM read_parquet('gs://b/sink/bad.parquet')"] = "corrupt file"
	h.lister.objects = []model.SourceObject{obj("sink/bad.parquet", 2*time.Minute), obj("sink/good.parquet", time.Minute)}

	summary, err := h.orch.RunStreaming(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Failed != 1 || summary.Succeeded != 1 {
		t.Fatalf("summary: got %+v", summary)
	}
	if ok, _ := NewLedger(h.ledger, nil, nil).IsProcessed(context.Background(), "sink/good.parquet"); !ok {
		t.Fatalf("good file must be marked")
	}
	if ok, _ := NewLedger(h.ledger, nil, nil).IsProcessed(context.Background(), "sink/bad.parquet"); ok {
		t.Fatalf("failed file must not be marked")
	}
}

func TestRunStreamingDiscoveryFailure(t *testing.T) {
	h := newHarness(nil)
	h.lister.err = errStoreDown

	summary, err := h.orch.RunStreaming(context.Background())
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("want wrapped list error, got %v", err)
	}
	recs := h.history(t, summary.InvocationID)
	if len(recs) != 2 || recs[1].Stage != model.StageDiscovery || recs[1].Status != model.StatusFailed {
		t.Fatalf("discovery failure must be recorded, got %v", statuses(recs))
	}
}

func TestRunStreamingTrackerFailureAborts(t *testing.T) {
	h := newHarness(brokenStageStore{})
	h.lister.objects = []model.SourceObject{obj("sink/a.parquet", time.Minute)}

	_, err := h.orch.RunStreaming(context.Background())
	var te *TrackerError
	if !errors.As(err, &te) {
		t.Fatalf("want TrackerError, got %v", err)
	}
	if len(h.exec.sqls()) != 0 {
		t.Fatalf("nothing may be loaded without a stage log")
	}
}

// ctxStages refuses writes on a done context, as the database/sql stores do.
type ctxStages struct {
	*store.MemoryStages
}

func (s ctxStages) Append(ctx context.Context, rec model.StageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStages.Append(ctx, rec)
}

func TestRunStreamingCancelledLoadIsClosed(t *testing.T) {
	stages := store.NewMemoryStages()
	h := newHarness(ctxStages{stages})
	h.lister.objects = []model.SourceObject{obj("sink/a.parquet", 2*time.Minute), obj("sink/b.parquet", time.Minute)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.exec.cancel = cancel

	summary, err := h.orch.RunStreaming(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	var te *TrackerError
	if errors.As(err, &te) {
		t.Fatalf("the stage log must still accept the terminal record: %v", err)
	}

	recs, _ := stages.List(context.Background(), "sink/a.parquet")
	if len(recs) != 2 || recs[0].Status != model.StatusStarted || recs[1].Status != model.StatusFailed {
		t.Fatalf("want STARTED,FAILED got %v", statuses(recs))
	}
	if recs[0].Attempt != recs[1].Attempt {
		t.Fatalf("terminal record must close the started attempt")
	}
	if recs, _ := stages.List(context.Background(), "sink/b.parquet"); len(recs) != 0 {
		t.Fatalf("no file may be started after cancellation, got %v", statuses(recs))
	}
	if summary.Failed != 1 || h.ledger.Len() != 0 {
		t.Fatalf("summary: got %+v", summary)
	}
	if len(h.notifier.sent()) != 1 {
		t.Fatalf("alerts: want=1 got=%d", len(h.notifier.sent()))
	}
}

func TestRunBatchRejectsInvalidName(t *testing.T) {
	h := newHarness(nil)
	summary, err := h.orch.RunBatch(context.Background(), []model.ObjectRef{{Bucket: "b", Key: "raw/notes.csv"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Rejected != 1 || summary.Files[0].PipelineID != "invalid_filename_raw/notes.csv" {
		t.Fatalf("summary: got %+v", summary)
	}
	recs := h.history(t, "invalid_filename_raw/notes.csv")
	if len(recs) != 2 || recs[0].Stage != model.StageTransformStart || recs[1].Status != model.StatusFailed {
		t.Fatalf("want transform_start STARTED,FAILED got %+v", recs)
	}
	if len(h.exec.sqls()) != 0 {
		t.Fatalf("a rejected object must never be loaded")
	}
}

func TestRunBatchLoadsOnce(t *testing.T) {
	h := newHarness(nil)
	h.exec.counts["yellow_trip_data_staging"] = 7
	h.exec.counts["taxi_trip_data"] = 7
	ref := model.ObjectRef{Bucket: "trips", Key: "raw/yellow_tripdata_2024-01.parquet"}

	summary, err := h.orch.RunBatch(context.Background(), []model.ObjectRef{ref})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("summary: got %+v", summary)
	}
	out := summary.Files[0]
	if out.PipelineID != "yellow_tripdata_2024-01" || out.SourceURI != "gs://trips/raw/yellow_tripdata_2024-01.parquet" {
		t.Fatalf("outcome: got %+v", out)
	}
	for _, sql := range h.exec.sqls() {
		if sql == "DELETE FROM yellow_trip_data_staging" {
			continue
		}
		if sql == ClearSQL("taxi_trip_data") {
			t.Fatalf("the final table must never be cleared")
		}
	}

	before := len(h.exec.sqls())
	summary, err = h.orch.RunBatch(context.Background(), []model.ObjectRef{ref})
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if summary.Skipped != 1 || len(h.exec.sqls()) != before {
		t.Fatalf("processed file must be skipped: %+v", summary)
	}
	if recs := h.history(t, "yellow_tripdata_2024-01"); len(recs) != 2 {
		t.Fatalf("a skip writes no stage records, got %v", statuses(recs))
	}
}

func TestRunBatchUnknownCabType(t *testing.T) {
	h := newHarness(nil)
	summary, err := h.orch.RunBatch(context.Background(), []model.ObjectRef{{Key: "raw/fhv_tripdata_2024-01.parquet"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("summary: got %+v", summary)
	}
	recs := h.history(t, "fhv_tripdata_2024-01")
	if len(recs) != 2 || recs[1].Status != model.StatusFailed {
		t.Fatalf("want STARTED,FAILED got %v", statuses(recs))
	}
	if len(h.exec.sqls()) != 0 {
		t.Fatalf("nothing may be loaded without a dataset")
	}
}

func TestBatchPipelineID(t *testing.T) {
	id, cab, ok := BatchPipelineID(DefaultBatchPattern, "raw/green_tripdata_2023-11.parquet")
	if !ok || id != "green_tripdata_2023-11" || cab != "green" {
		t.Fatalf("got id=%q cab=%q ok=%v", id, cab, ok)
	}
	for _, key := range []string{"green_tripdata_2023-11.parquet", "raw/green_tripdata_2023-11.csv", "raw/blue_tripdata_2023-11.parquet"} {
		if _, _, ok := BatchPipelineID(DefaultBatchPattern, key); ok {
			t.Fatalf("%s must not match", key)
		}
	}
}
