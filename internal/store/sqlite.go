package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go-trip-pipeline/internal/model"
)

// SQLiteLedger is the processed-file ledger on SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

func NewSQLiteLedger(db *sql.DB) *SQLiteLedger {
	return &SQLiteLedger{db: db}
}

// Get fetches one ledger entry by primary key.
func (s *SQLiteLedger) Get(ctx context.Context, pipelineID string) (model.LedgerEntry, bool, error) {
	var (
		e     model.LedgerEntry
		notes sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT pipeline_id, pipeline_type, dataset_name, source_uri, status, processed_at, notes
		FROM processed_files WHERE pipeline_id = ?`, pipelineID).
		Scan(&e.PipelineID, &e.PipelineType, &e.DatasetName, &e.SourceURI, &e.Status, &e.ProcessedAt, &notes)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LedgerEntry{}, false, nil
	}
	if err != nil {
		return model.LedgerEntry{}, false, err
	}
	e.Notes = notes.String
	e.ProcessedAt = e.ProcessedAt.UTC()
	return e, true, nil
}

// Put upserts an entry; a second write for the same id replaces the first.
func (s *SQLiteLedger) Put(ctx context.Context, e model.LedgerEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_files (pipeline_id, pipeline_type, dataset_name, source_uri, status, processed_at, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pipeline_id) DO UPDATE SET
			pipeline_type = excluded.pipeline_type,
			dataset_name  = excluded.dataset_name,
			source_uri    = excluded.source_uri,
			status        = excluded.status,
			processed_at  = excluded.processed_at,
			notes         = excluded.notes`,
		e.PipelineID, e.PipelineType, e.DatasetName, e.SourceURI, e.Status, e.ProcessedAt.UTC(), e.Notes)
	return err
}

// SQLiteStages is the append-only stage log on SQLite.
type SQLiteStages struct {
	db *sql.DB
}

func NewSQLiteStages(db *sql.DB) *SQLiteStages {
	return &SQLiteStages{db: db}
}

// Append inserts one stage record.
func (s *SQLiteStages) Append(ctx context.Context, rec model.StageRecord) error {
	details, err := encodeDetails(rec.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipeline_stages (pipeline_id, stage, attempt, pipeline_name, pipeline_type, executor,
			status, timestamp, record_count, s3_input, s3_output, db_table, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.PipelineID, rec.Stage, rec.Attempt, rec.PipelineName, rec.PipelineType, rec.Executor,
		rec.Status, rec.Timestamp.UTC(), nullInt(rec.RecordCount), rec.S3Input, rec.S3Output, rec.DBTable, details)
	return err
}

// List returns the records of pipelineID in insertion order.
func (s *SQLiteStages) List(ctx context.Context, pipelineID string) ([]model.StageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pipeline_id, stage, attempt, pipeline_name, pipeline_type, executor,
			status, timestamp, record_count, s3_input, s3_output, db_table, details
		FROM pipeline_stages WHERE pipeline_id = ? ORDER BY id`, pipelineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StageRecord
	for rows.Next() {
		var (
			rec                         model.StageRecord
			name, ptype, executor       sql.NullString
			s3In, s3Out, table, details sql.NullString
			count                       sql.NullInt64
			ts                          time.Time
		)
		if err := rows.Scan(&rec.PipelineID, &rec.Stage, &rec.Attempt, &name, &ptype, &executor,
			&rec.Status, &ts, &count, &s3In, &s3Out, &table, &details); err != nil {
			return nil, err
		}
		rec.PipelineName, rec.PipelineType, rec.Executor = name.String, ptype.String, executor.String
		rec.S3Input, rec.S3Output, rec.DBTable = s3In.String, s3Out.String, table.String
		rec.Timestamp = ts.UTC()
		if count.Valid {
			n := count.Int64
			rec.RecordCount = &n
		}
		if rec.Details, err = decodeDetails(details.String); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func encodeDetails(d map[string]interface{}) (sql.NullString, error) {
	if len(d) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeDetails(s string) (map[string]interface{}, error) {
	if s == "" {
		return nil, nil
	}
	var d map[string]interface{}
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return nil, err
	}
	return d, nil
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
