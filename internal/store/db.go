package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS processed_files (
	pipeline_id   TEXT PRIMARY KEY,
	pipeline_type TEXT NOT NULL,
	dataset_name  TEXT NOT NULL,
	source_uri    TEXT NOT NULL,
	status        TEXT NOT NULL,
	processed_at  DATETIME NOT NULL,
	notes         TEXT
);

CREATE TABLE IF NOT EXISTS pipeline_stages (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	pipeline_id   TEXT NOT NULL,
	stage         TEXT NOT NULL,
	attempt       TEXT NOT NULL,
	pipeline_name TEXT,
	pipeline_type TEXT,
	executor      TEXT,
	status        TEXT NOT NULL,
	timestamp     DATETIME NOT NULL,
	record_count  INTEGER,
	s3_input      TEXT,
	s3_output     TEXT,
	db_table      TEXT,
	details       TEXT
);

CREATE INDEX IF NOT EXISTS idx_pipeline_stages_pipeline
	ON pipeline_stages (pipeline_id, stage, attempt);
`

// OpenSQLite opens (or creates) the SQLite database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" a single database and serializes
	// writers on the file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return db, nil
}
