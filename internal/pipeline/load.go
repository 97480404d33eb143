package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/metrics"
	"go-trip-pipeline/internal/model"
	"go-trip-pipeline/pkg/utils"
)

// Loader steps, as reported in LoadError and statement metrics.
const (
	StepClearStaging = "clear_staging"
	StepCopy         = "copy"
	StepCountStaging = "count_staging"
	StepMerge        = "merge"
	StepClearAfter   = "clear_staging_after_merge"
	StepCountFinal   = "count_final"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// LoaderConfig bounds the wait on every statement the loader submits.
type LoaderConfig struct {
	StatementTimeout time.Duration
	Backoff          model.BackoffConfig
}

// LoadResult carries audit counts. They are never used for correctness.
type LoadResult struct {
	StagedRows int64 `json:"staged_rows"`
	FinalRows  int64 `json:"final_rows"`
}

// Loader copies a source file into a dataset's staging table and merges it
// into the final table. Re-loading the same file inserts no new rows.
type Loader struct {
	exec    StatementExecutor
	clock   Clock
	cfg     LoaderConfig
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewLoader creates a loader over a statement executor.
func NewLoader(exec StatementExecutor, clock Clock, cfg LoaderConfig, log *logger.Logger, m *metrics.Metrics) *Loader {
	if clock == nil {
		clock = SystemClock
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = 15 * time.Minute
	}
	if cfg.Backoff == (model.BackoffConfig{}) {
		cfg.Backoff = model.DefaultBackoff
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{
		exec:    exec,
		clock:   clock,
		cfg:     cfg,
		log:     log.With("component", "Loader"),
		metrics: m,
	}
}

// Load runs clear, copy, count, merge (and for streaming datasets a second
// clear) against the dataset's tables. Any step failing returns a
// *LoadError; zero staged rows returns an *EmptySourceError.
func (l *Loader) Load(ctx context.Context, ds model.Dataset, sourceURI string) (LoadResult, error) {
	var res LoadResult
	if err := ValidateDataset(ds); err != nil {
		return res, &LoadError{Step: "validate", Err: err}
	}
	copySQL, err := CopySQL(ds, sourceURI)
	if err != nil {
		return res, &LoadError{Step: StepCopy, Err: err}
	}
	log := l.log.With("dataset", ds.Name, "source", sourceURI)

	if _, err := l.run(ctx, StepClearStaging, ds.Database, ClearSQL(ds.StagingTable)); err != nil {
		return res, err
	}
	if _, err := l.run(ctx, StepCopy, ds.Database, copySQL); err != nil {
		return res, err
	}

	staged, err := l.count(ctx, StepCountStaging, ds.Database, CountSQL(ds.StagingTable))
	if err != nil {
		return res, err
	}
	res.StagedRows = staged
	log.Info("copied into staging", "staging_table", ds.StagingTable, "rows", staged)
	if staged == 0 {
		return res, &EmptySourceError{SourceURI: sourceURI, StagingTable: ds.StagingTable}
	}

	merged, err := l.run(ctx, StepMerge, ds.Database, MergeSQL(ds))
	if err != nil {
		return res, err
	}

	if ds.ClearStagingAfterMerge {
		if _, err := l.run(ctx, StepClearAfter, ds.Database, ClearSQL(ds.StagingTable)); err != nil {
			return res, err
		}
	}

	final, err := l.count(ctx, StepCountFinal, ds.Database, CountSQL(ds.FinalTable))
	if err != nil {
		return res, err
	}
	res.FinalRows = final

	l.metrics.LoadCompleted(ds.Name, staged, final)
	log.Info("merged into final table",
		"final_table", ds.FinalTable,
		"inserted", merged.RowsAffected,
		"final_rows", final,
	)
	return res, nil
}

// run submits one statement and waits for it to finish.
func (l *Loader) run(ctx context.Context, step, database, sql string) (model.StatementDescription, error) {
	start := l.clock.Now()
	id, err := l.exec.Submit(ctx, model.Statement{SQL: sql, Database: database})
	if err != nil {
		return model.StatementDescription{}, &LoadError{Step: step, Err: fmt.Errorf("submit: %w", err)}
	}
	l.log.Debug("statement submitted", "step", step, "statement_id", id)

	desc, err := WaitForStatement(ctx, l.exec, l.clock, id, l.cfg.StatementTimeout, l.cfg.Backoff)
	if err != nil {
		var te *TimeoutError
		if errors.As(err, &te) {
			l.metrics.ObserveStatement(step, "TIMEOUT", te.Waited)
			return desc, &LoadError{Step: step, StatementID: id, Status: te.LastStatus, Err: te}
		}
		return desc, &LoadError{Step: step, StatementID: id, Err: err}
	}
	l.metrics.ObserveStatement(step, desc.Status, l.clock.Now().Sub(start))

	if desc.Status != model.StatementFinished {
		var cause error
		if desc.Error != "" {
			cause = errors.New(desc.Error)
		}
		return desc, &LoadError{Step: step, StatementID: id, Status: desc.Status, Err: cause}
	}
	return desc, nil
}

// count runs a single-value COUNT(*) query and returns the value.
func (l *Loader) count(ctx context.Context, step, database, sql string) (int64, error) {
	desc, err := l.run(ctx, step, database, sql)
	if err != nil {
		return 0, err
	}
	rows, err := l.exec.Result(ctx, desc.ID)
	if err != nil {
		return 0, &LoadError{Step: step, StatementID: desc.ID, Err: fmt.Errorf("fetch result: %w", err)}
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, &LoadError{Step: step, StatementID: desc.ID, Err: errors.New("count returned no rows")}
	}
	f, ok := utils.Numeric(rows[0][0])
	if !ok {
		return 0, &LoadError{Step: step, StatementID: desc.ID, Err: fmt.Errorf("count returned %T", rows[0][0])}
	}
	n, ok := utils.Integral(f)
	if !ok {
		return 0, &LoadError{Step: step, StatementID: desc.ID, Err: fmt.Errorf("count returned %v", f)}
	}
	return n, nil
}

// ValidateDataset checks that a dataset's identifiers are safe to splice
// into SQL and that its natural key is written by the merge.
func ValidateDataset(ds model.Dataset) error {
	if ds.Name == "" {
		return errors.New("dataset name is required")
	}
	for _, ident := range []string{ds.StagingTable, ds.FinalTable} {
		if !identPattern.MatchString(ident) {
			return fmt.Errorf("dataset %s: invalid table name %q", ds.Name, ident)
		}
	}
	if ds.StagingTable == ds.FinalTable {
		return fmt.Errorf("dataset %s: staging and final table must differ", ds.Name)
	}
	if len(ds.Columns) == 0 {
		return fmt.Errorf("dataset %s: no columns", ds.Name)
	}
	if len(ds.NaturalKey) == 0 {
		return fmt.Errorf("dataset %s: no natural key", ds.Name)
	}
	cols := make(map[string]bool, len(ds.Columns))
	for _, c := range append(append([]string{}, ds.Columns...), ds.StagingColumns...) {
		if !identPattern.MatchString(c) {
			return fmt.Errorf("dataset %s: invalid column name %q", ds.Name, c)
		}
	}
	for _, c := range ds.Columns {
		cols[c] = true
	}
	for _, k := range ds.NaturalKey {
		if !cols[k] {
			return fmt.Errorf("dataset %s: natural key column %q is not a final column", ds.Name, k)
		}
	}
	for c := range ds.Select {
		if !cols[c] {
			return fmt.Errorf("dataset %s: select expression for unknown column %q", ds.Name, c)
		}
	}
	return nil
}

// ClearSQL empties a table.
func ClearSQL(table string) string {
	return "DELETE FROM " + table
}

// CountSQL counts the rows of a table.
func CountSQL(table string) string {
	return "SELECT COUNT(*) FROM " + table
}

// SourceExpr is the table function reading a source file of the given
// format. An empty format is inferred from the URI.
func SourceExpr(format, uri string) (string, error) {
	if format == "" {
		format = utils.GetFileType(uri)
	}
	quoted := "'" + strings.ReplaceAll(uri, "'", "''") + "'"
	switch strings.ToLower(format) {
	case "parquet":
		return "read_parquet(" + quoted + ")", nil
	case "csv":
		return "read_csv_auto(" + quoted + ", header=true)", nil
	case "json":
		return "read_json_auto(" + quoted + ")", nil
	default:
		return "", fmt.Errorf("unsupported source format %q for %s", format, uri)
	}
}

// CopySQL bulk-loads a source file into the dataset's staging table.
func CopySQL(ds model.Dataset, uri string) (string, error) {
	src, err := SourceExpr(ds.SourceFormat, uri)
	if err != nil {
		return "", err
	}
	if len(ds.StagingColumns) == 0 {
		return fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", ds.StagingTable, src), nil
	}
	cols := strings.Join(ds.StagingColumns, ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", ds.StagingTable, cols, cols, src), nil
}

// selectExpr is the staging-side expression producing final column c.
func selectExpr(ds model.Dataset, c string) string {
	if e, ok := ds.Select[c]; ok && strings.TrimSpace(e) != "" {
		return e
	}
	return "s." + c
}

// MergeSQL inserts the staging rows whose natural key is absent from the
// final table. Rows sharing a key within staging are inserted once.
func MergeSQL(ds model.Dataset) string {
	exprs := make([]string, len(ds.Columns))
	for i, c := range ds.Columns {
		exprs[i] = selectExpr(ds, c)
	}
	keys := make([]string, len(ds.NaturalKey))
	match := make([]string, len(ds.NaturalKey))
	for i, k := range ds.NaturalKey {
		keys[i] = selectExpr(ds, k)
		match[i] = fmt.Sprintf("t.%s IS NOT DISTINCT FROM %s", k, keys[i])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s)\n", ds.FinalTable, strings.Join(ds.Columns, ", "))
	fmt.Fprintf(&b, "SELECT %s\n", strings.Join(exprs, ", "))
	fmt.Fprintf(&b, "FROM (SELECT s.*, ROW_NUMBER() OVER (PARTITION BY %s) AS merge_rn FROM %s s) s\n",
		strings.Join(keys, ", "), ds.StagingTable)
	b.WriteString("WHERE s.merge_rn = 1\n")
	fmt.Fprintf(&b, "  AND NOT EXISTS (SELECT 1 FROM %s t WHERE %s)", ds.FinalTable, strings.Join(match, " AND "))
	return b.String()
}
