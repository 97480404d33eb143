package model

import "time"

// Pipeline types, as recorded in the ledger and the stage log.
const (
	PipelineTypeStreaming = "streaming"
	PipelineTypeBatch     = "batch"
)

// Dataset describes how one family of source files is loaded into the
// warehouse: which scratch table it is staged into, which final table it is
// merged into, and which natural key deduplicates it.
type Dataset struct {
	Name         string `json:"name" yaml:"name"`
	PipelineName string `json:"pipeline_name" yaml:"pipeline_name"`
	PipelineType string `json:"pipeline_type" yaml:"pipeline_type"` // streaming, batch
	Database     string `json:"database" yaml:"database"`
	StagingTable string `json:"staging_table" yaml:"staging_table"`
	FinalTable   string `json:"final_table" yaml:"final_table"`

	// StagingColumns are read from the source file into staging, in order.
	StagingColumns []string `json:"staging_columns" yaml:"staging_columns"`
	// Columns are the final-table columns written by the merge.
	Columns []string `json:"columns" yaml:"columns"`
	// Select maps a final column to the SQL expression producing it; columns
	// without an entry are copied from the staging row as s.<column>.
	Select map[string]string `json:"select,omitempty" yaml:"select,omitempty"`
	// NaturalKey identifies a real-world trip; rows whose key already exists
	// in the final table are never inserted again.
	NaturalKey []string `json:"natural_key" yaml:"natural_key"`

	SourceFormat string `json:"source_format" yaml:"source_format"` // parquet, csv; empty infers from the URI
	// ClearStagingAfterMerge empties the shared scratch table once the merge
	// succeeded. Batch datasets keep it for audit until the next load.
	ClearStagingAfterMerge bool `json:"clear_staging_after_merge" yaml:"clear_staging_after_merge"`
}

// ObjectRef names one object that triggered a batch run.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// FileOutcome is the result of attempting a single source file.
type FileOutcome struct {
	PipelineID string `json:"pipeline_id"`
	SourceURI  string `json:"source_uri"`
	Dataset    string `json:"dataset,omitempty"`
	Status     string `json:"status"` // SUCCEEDED, FAILED, SKIPPED, REJECTED
	StagedRows int64  `json:"staged_rows,omitempty"`
	FinalRows  int64  `json:"final_rows,omitempty"`
	Error      string `json:"error,omitempty"`
}

// File outcome statuses that are not stage statuses.
const (
	OutcomeSkipped  = "SKIPPED"
	OutcomeRejected = "REJECTED"
)

// RunSummary reports what one orchestrator invocation did.
type RunSummary struct {
	InvocationID string        `json:"invocation_id"`
	PipelineType string        `json:"pipeline_type"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Discovered   int           `json:"discovered"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Rejected     int           `json:"rejected"`
	Files        []FileOutcome `json:"files"`
}

// Add appends an outcome and updates the counters.
func (s *RunSummary) Add(o FileOutcome) {
	s.Files = append(s.Files, o)
	switch o.Status {
	case StatusSucceeded:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeRejected:
		s.Rejected++
	}
}
