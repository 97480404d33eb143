package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-trip-pipeline/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS processed_files (
	pipeline_id   TEXT PRIMARY KEY,
	pipeline_type TEXT NOT NULL,
	dataset_name  TEXT NOT NULL,
	source_uri    TEXT NOT NULL,
	status        TEXT NOT NULL,
	processed_at  TIMESTAMPTZ NOT NULL,
	notes         TEXT
);

CREATE TABLE IF NOT EXISTS pipeline_stages (
	id            BIGSERIAL PRIMARY KEY,
	pipeline_id   TEXT NOT NULL,
	stage         TEXT NOT NULL,
	attempt       TEXT NOT NULL,
	pipeline_name TEXT,
	pipeline_type TEXT,
	executor      TEXT,
	status        TEXT NOT NULL,
	timestamp     TIMESTAMPTZ NOT NULL,
	record_count  BIGINT,
	s3_input      TEXT,
	s3_output     TEXT,
	db_table      TEXT,
	details       JSONB
);

CREATE INDEX IF NOT EXISTS idx_pipeline_stages_pipeline
	ON pipeline_stages (pipeline_id, stage, attempt);
`

// OpenPostgres connects a pool to dsn, pings it and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	return pool, nil
}

// PostgresLedger is the processed-file ledger on Postgres.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (s *PostgresLedger) Get(ctx context.Context, pipelineID string) (model.LedgerEntry, bool, error) {
	var (
		e     model.LedgerEntry
		notes *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT pipeline_id, pipeline_type, dataset_name, source_uri, status, processed_at, notes
		FROM processed_files WHERE pipeline_id = $1`, pipelineID).
		Scan(&e.PipelineID, &e.PipelineType, &e.DatasetName, &e.SourceURI, &e.Status, &e.ProcessedAt, &notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.LedgerEntry{}, false, nil
	}
	if err != nil {
		return model.LedgerEntry{}, false, err
	}
	if notes != nil {
		e.Notes = *notes
	}
	e.ProcessedAt = e.ProcessedAt.UTC()
	return e, true, nil
}

func (s *PostgresLedger) Put(ctx context.Context, e model.LedgerEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO processed_files (pipeline_id, pipeline_type, dataset_name, source_uri, status, processed_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (pipeline_id) DO UPDATE SET
			pipeline_type = EXCLUDED.pipeline_type,
			dataset_name  = EXCLUDED.dataset_name,
			source_uri    = EXCLUDED.source_uri,
			status        = EXCLUDED.status,
			processed_at  = EXCLUDED.processed_at,
			notes         = EXCLUDED.notes`,
		e.PipelineID, e.PipelineType, e.DatasetName, e.SourceURI, e.Status, e.ProcessedAt.UTC(), e.Notes)
	return err
}

// PostgresStages is the append-only stage log on Postgres.
type PostgresStages struct {
	pool *pgxpool.Pool
}

func NewPostgresStages(pool *pgxpool.Pool) *PostgresStages {
	return &PostgresStages{pool: pool}
}

func (s *PostgresStages) Append(ctx context.Context, rec model.StageRecord) error {
	details, err := encodeDetails(rec.Details)
	if err != nil {
		return err
	}
	var detailsArg *string
	if details.Valid {
		detailsArg = &details.String
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pipeline_stages (pipeline_id, stage, attempt, pipeline_name, pipeline_type, executor,
			status, timestamp, record_count, s3_input, s3_output, db_table, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb)`,
		rec.PipelineID, rec.Stage, rec.Attempt, rec.PipelineName, rec.PipelineType, rec.Executor,
		rec.Status, rec.Timestamp.UTC(), rec.RecordCount, rec.S3Input, rec.S3Output, rec.DBTable, detailsArg)
	return err
}

func (s *PostgresStages) List(ctx context.Context, pipelineID string) ([]model.StageRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pipeline_id, stage, attempt, COALESCE(pipeline_name, ''), COALESCE(pipeline_type, ''),
			COALESCE(executor, ''), status, timestamp, record_count, COALESCE(s3_input, ''),
			COALESCE(s3_output, ''), COALESCE(db_table, ''), COALESCE(details::text, '')
		FROM pipeline_stages WHERE pipeline_id = $1 ORDER BY id`, pipelineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StageRecord
	for rows.Next() {
		var (
			rec     model.StageRecord
			details string
		)
		if err := rows.Scan(&rec.PipelineID, &rec.Stage, &rec.Attempt, &rec.PipelineName, &rec.PipelineType,
			&rec.Executor, &rec.Status, &rec.Timestamp, &rec.RecordCount, &rec.S3Input,
			&rec.S3Output, &rec.DBTable, &details); err != nil {
			return nil, err
		}
		rec.Timestamp = rec.Timestamp.UTC()
		if rec.Details, err = decodeDetails(details); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
