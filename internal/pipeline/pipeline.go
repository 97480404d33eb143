package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/metrics"
	"go-trip-pipeline/internal/model"
)

// DefaultBatchPattern admits monthly trip files; the groups are cab type,
// year and month.
var DefaultBatchPattern = regexp.MustCompile(`^raw/(yellow|green|fhv)_tripdata_(\d{4})-(\d{2})\.parquet$`)

// OrchestratorConfig describes what the orchestrator loads.
type OrchestratorConfig struct {
	// Streaming is the dataset loaded by RunStreaming.
	Streaming model.Dataset
	Scope     Scope
	Lookback  time.Duration

	// BatchDatasets maps a cab type captured by BatchPattern to its dataset.
	BatchDatasets map[string]model.Dataset
	BatchPattern  *regexp.Regexp
	// BatchURI turns a triggering object into a loadable URI.
	BatchURI func(ref model.ObjectRef) string
}

// Orchestrator drives discovery, load, mark and stage logging for each
// invocation. A failing file is recorded and skipped; only a stage log
// failure aborts the invocation.
type Orchestrator struct {
	cfg        OrchestratorConfig
	discoverer *Discoverer
	ledger     *Ledger
	loader     *Loader
	tracker    *Tracker
	clock      Clock
	log        *logger.Logger
	metrics    *metrics.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewOrchestrator wires the pipeline components together.
func NewOrchestrator(cfg OrchestratorConfig, discoverer *Discoverer, ledger *Ledger, loader *Loader, tracker *Tracker, clock Clock, log *logger.Logger, m *metrics.Metrics) *Orchestrator {
	if cfg.BatchPattern == nil {
		cfg.BatchPattern = DefaultBatchPattern
	}
	if cfg.BatchURI == nil {
		cfg.BatchURI = func(ref model.ObjectRef) string {
			if ref.Bucket == "" {
				return ref.Key
			}
			return "gs://" + ref.Bucket + "/" + ref.Key
		}
	}
	if clock == nil {
		clock = SystemClock
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		cfg:        cfg,
		discoverer: discoverer,
		ledger:     ledger,
		loader:     loader,
		tracker:    tracker,
		clock:      clock,
		log:        log.With("component", "Orchestrator"),
		metrics:    m,
		locks:      make(map[string]*sync.Mutex),
	}
}

// lockDataset serializes runs touching the same staging table.
func (o *Orchestrator) lockDataset(name string) func() {
	o.mu.Lock()
	l, ok := o.locks[name]
	if !ok {
		l = &sync.Mutex{}
		o.locks[name] = l
	}
	o.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (o *Orchestrator) newSummary(pipelineType string) model.RunSummary {
	return model.RunSummary{
		InvocationID: uuid.NewString(),
		PipelineType: pipelineType,
		StartedAt:    o.clock.Now().UTC(),
		Files:        []model.FileOutcome{},
	}
}

func (o *Orchestrator) finish(s *model.RunSummary) {
	s.Duration = o.clock.Now().Sub(s.StartedAt)
	o.log.Info("invocation finished",
		"invocation_id", s.InvocationID,
		"pipeline_type", s.PipelineType,
		"discovered", s.Discovered,
		"succeeded", s.Succeeded,
		"failed", s.Failed,
		"skipped", s.Skipped,
		"rejected", s.Rejected,
		"duration", s.Duration,
	)
}

// RunStreaming discovers new files of the streaming dataset and loads them
// one at a time.
func (o *Orchestrator) RunStreaming(ctx context.Context) (summary model.RunSummary, err error) {
	ds := o.cfg.Streaming
	summary = o.newSummary(model.PipelineTypeStreaming)
	defer o.finish(&summary)

	unlock := o.lockDataset(ds.Name)
	defer unlock()

	info := StageInfo{
		PipelineName: ds.PipelineName,
		PipelineType: model.PipelineTypeStreaming,
		S3Input:      o.cfg.Scope.Prefix,
	}
	att, err := o.tracker.Start(ctx, summary.InvocationID, model.StageDiscovery, info)
	if err != nil {
		return summary, err
	}
	objects, err := o.discoverer.Discover(ctx, o.cfg.Scope, o.cfg.Lookback)
	if err != nil {
		if ferr := att.Fail(ctx, err, nil); ferr != nil {
			return summary, ferr
		}
		return summary, fmt.Errorf("discover: %w", err)
	}
	found := int64(len(objects))
	if err := att.Succeed(ctx, &found, nil); err != nil {
		return summary, err
	}
	summary.Discovered = len(objects)

	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		outcome, err := o.processFile(ctx, ds, PipelineIDFor(obj), obj.URI)
		summary.Add(outcome)
		if err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// RunBatch loads the monthly files named by refs. Names not matching the
// batch pattern are rejected with a FAILED transform_start record and never
// loaded.
func (o *Orchestrator) RunBatch(ctx context.Context, refs []model.ObjectRef) (summary model.RunSummary, err error) {
	summary = o.newSummary(model.PipelineTypeBatch)
	defer o.finish(&summary)
	summary.Discovered = len(refs)

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		outcome, err := o.runBatchObject(ctx, ref)
		summary.Add(outcome)
		if err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// BatchPipelineID derives the pipeline id and cab type of a monthly file.
func BatchPipelineID(pattern *regexp.Regexp, key string) (pipelineID, cabType string, ok bool) {
	m := pattern.FindStringSubmatch(key)
	if len(m) != 4 {
		return "", "", false
	}
	return fmt.Sprintf("%s_tripdata_%s-%s", m[1], m[2], m[3]), m[1], true
}

func (o *Orchestrator) runBatchObject(ctx context.Context, ref model.ObjectRef) (model.FileOutcome, error) {
	uri := o.cfg.BatchURI(ref)
	pipelineID, cab, ok := BatchPipelineID(o.cfg.BatchPattern, ref.Key)
	if !ok {
		pipelineID = "invalid_filename_" + ref.Key
		out := model.FileOutcome{PipelineID: pipelineID, SourceURI: uri, Status: model.OutcomeRejected,
			Error: fmt.Sprintf("%s: %s", ErrInvalidObjectName, ref.Key)}
		o.metrics.FileProcessed("", model.OutcomeRejected)
		err := o.failImmediately(ctx, pipelineID, model.StageTransformStart, StageInfo{
			PipelineName: model.PipelineTypeBatch,
			PipelineType: model.PipelineTypeBatch,
			S3Input:      uri,
		}, fmt.Errorf("%w: %s", ErrInvalidObjectName, ref.Key))
		return out, err
	}

	ds, ok := o.cfg.BatchDatasets[cab]
	if !ok {
		cause := fmt.Errorf("%w for cab type %q", ErrUnknownDataset, cab)
		out := model.FileOutcome{PipelineID: pipelineID, SourceURI: uri, Status: model.StatusFailed, Error: cause.Error()}
		o.metrics.FileProcessed(cab, model.StatusFailed)
		err := o.failImmediately(ctx, pipelineID, model.StageCopyToWarehouse, StageInfo{
			PipelineType: model.PipelineTypeBatch,
			S3Input:      uri,
		}, cause)
		return out, err
	}

	done, err := o.ledger.IsProcessed(ctx, pipelineID)
	if err != nil {
		out := model.FileOutcome{PipelineID: pipelineID, SourceURI: uri, Dataset: ds.Name, Status: model.StatusFailed, Error: err.Error()}
		o.metrics.FileProcessed(ds.Name, model.StatusFailed)
		return out, o.failImmediately(ctx, pipelineID, model.StageCopyToWarehouse, o.stageInfo(ds, uri), err)
	}
	if done {
		o.log.Info("already processed, skipping", "pipeline_id", pipelineID, "source", uri)
		o.metrics.FileProcessed(ds.Name, model.OutcomeSkipped)
		return model.FileOutcome{PipelineID: pipelineID, SourceURI: uri, Dataset: ds.Name, Status: model.OutcomeSkipped}, nil
	}

	unlock := o.lockDataset(ds.Name)
	defer unlock()
	return o.processFile(ctx, ds, pipelineID, uri)
}

// failImmediately records a stage that fails before any work was done.
func (o *Orchestrator) failImmediately(ctx context.Context, pipelineID, stage string, info StageInfo, cause error) error {
	att, err := o.tracker.Start(ctx, pipelineID, stage, info)
	if err != nil {
		return err
	}
	return att.Fail(ctx, cause, nil)
}

func (o *Orchestrator) stageInfo(ds model.Dataset, uri string) StageInfo {
	return StageInfo{
		PipelineName: ds.PipelineName,
		PipelineType: ds.PipelineType,
		S3Input:      uri,
		DBTable:      ds.FinalTable,
	}
}

// processFile runs load, mark and the copy stage records for one file. The
// returned error is non-nil only for stage log failures.
func (o *Orchestrator) processFile(ctx context.Context, ds model.Dataset, pipelineID, uri string) (model.FileOutcome, error) {
	out := model.FileOutcome{PipelineID: pipelineID, SourceURI: uri, Dataset: ds.Name}
	log := o.log.With("pipeline_id", pipelineID, "dataset", ds.Name)

	att, err := o.tracker.Start(ctx, pipelineID, model.StageCopyToWarehouse, o.stageInfo(ds, uri))
	if err != nil {
		out.Status = model.StatusFailed
		out.Error = err.Error()
		return out, err
	}

	res, err := o.loader.Load(ctx, ds, uri)
	out.StagedRows, out.FinalRows = res.StagedRows, res.FinalRows
	if err == nil {
		err = o.ledger.MarkProcessed(ctx, pipelineID, ds.PipelineType, ds.Name, uri,
			fmt.Sprintf("loaded %d rows into %s", res.StagedRows, ds.FinalTable))
	}

	if err != nil {
		log.Error("file failed", "source", uri, "error", err)
		out.Status = model.StatusFailed
		out.Error = err.Error()
		o.metrics.FileProcessed(ds.Name, model.StatusFailed)
		details := map[string]interface{}{"staging_rows": res.StagedRows}
		var empty *EmptySourceError
		if errors.As(err, &empty) {
			details["empty_source"] = true
		}
		if ferr := att.Fail(ctx, err, details); ferr != nil {
			return out, ferr
		}
		return out, nil
	}

	out.Status = model.StatusSucceeded
	o.metrics.FileProcessed(ds.Name, model.StatusSucceeded)
	staged := res.StagedRows
	if err := att.Succeed(ctx, &staged, map[string]interface{}{
		"staging_rows":    res.StagedRows,
		"final_row_count": res.FinalRows,
	}); err != nil {
		return out, err
	}
	log.Info("file loaded", "source", uri, "staged_rows", res.StagedRows, "final_rows", res.FinalRows)
	return out, nil
}
