package model

import "time"

// Stage statuses. A stage attempt moves STARTED -> SUCCEEDED or
// STARTED -> FAILED and nothing else.
const (
	StatusStarted   = "STARTED"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// Stage names written by the orchestrator.
const (
	StageDiscovery       = "discover_files"
	StageCopyToWarehouse = "copy_to_warehouse"
	StageTransformStart  = "transform_start"
)

// Executor recorded on stage records written by this service.
const ExecutorService = "go-trip-pipeline"

// StageRecord is one append-only entry of the execution audit log.
type StageRecord struct {
	PipelineID   string                 `json:"pipeline_id"`
	Stage        string                 `json:"stage"`
	Attempt      string                 `json:"attempt"`
	PipelineName string                 `json:"pipeline_name"`
	PipelineType string                 `json:"pipeline_type"`
	Executor     string                 `json:"executor"`
	Status       string                 `json:"status"`
	Timestamp    time.Time              `json:"timestamp"`
	RecordCount  *int64                 `json:"record_count,omitempty"`
	S3Input      string                 `json:"s3_input,omitempty"`
	S3Output     string                 `json:"s3_output,omitempty"`
	DBTable      string                 `json:"db_table,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// ValidStatus reports whether s is one of the three stage statuses.
func ValidStatus(s string) bool {
	return s == StatusStarted || s == StatusSucceeded || s == StatusFailed
}

// Ledger statuses.
const LedgerStatusSuccess = "success"

// LedgerEntry marks a source object as processed. At most one entry exists
// per PipelineID.
type LedgerEntry struct {
	PipelineID   string    `json:"pipeline_id"`
	PipelineType string    `json:"pipeline_type"`
	DatasetName  string    `json:"dataset_name"`
	SourceURI    string    `json:"source_uri"`
	Status       string    `json:"status"`
	ProcessedAt  time.Time `json:"processed_at"`
	Notes        string    `json:"notes,omitempty"`
}
