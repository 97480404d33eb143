// Package warehouse runs load statements against an embedded DuckDB
// database behind an asynchronous submit/describe/result interface.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/model"
)

// Config configures the DuckDB warehouse.
type Config struct {
	// Path of the database file; empty opens an in-memory database.
	Path string `yaml:"path"`
	// Setup statements run once at open, e.g. INSTALL/LOAD httpfs.
	Setup []string `yaml:"setup"`
	// ApplySchema creates the trip tables if they do not exist.
	ApplySchema bool `yaml:"apply_schema"`
	// Retention is how long finished statements stay describable.
	Retention time.Duration `yaml:"-"`
}

type statement struct {
	desc model.StatementDescription
	rows [][]interface{}
}

// DuckDB executes submitted statements in the background. A submitted
// statement runs to completion even when the caller stops waiting.
type DuckDB struct {
	db        *sql.DB
	log       *logger.Logger
	retention time.Duration

	mu    sync.Mutex
	stmts map[string]*statement
	wg    sync.WaitGroup
}

// Open opens the database and runs the setup statements.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*DuckDB, error) {
	if log == nil {
		log = logger.Nop()
	}
	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DuckDB: %w", err)
	}

	setup := append([]string{}, cfg.Setup...)
	if cfg.ApplySchema {
		setup = append(setup, SchemaStatements()...)
	}
	for _, s := range setup {
		if _, err := db.ExecContext(ctx, s); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup %q: %w", firstLine(s), err)
		}
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = time.Hour
	}
	w := &DuckDB{
		db:        db,
		log:       log.With("component", "DuckDB"),
		retention: retention,
		stmts:     make(map[string]*statement),
	}
	w.log.Info("warehouse opened", "path", cfg.Path, "setup_statements", len(setup))
	return w, nil
}

// DB exposes the underlying handle for direct queries.
func (w *DuckDB) DB() *sql.DB { return w.db }

// Submit registers the statement and starts it. The returned id is valid
// for Describe and Result until the retention period after it finished.
func (w *DuckDB) Submit(ctx context.Context, stmt model.Statement) (string, error) {
	if strings.TrimSpace(stmt.SQL) == "" {
		return "", fmt.Errorf("empty statement")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	w.mu.Lock()
	w.prune(now)
	w.stmts[id] = &statement{desc: model.StatementDescription{
		ID:          id,
		Status:      model.StatementSubmitted,
		SubmittedAt: now,
	}}
	w.mu.Unlock()

	w.wg.Add(1)
	go w.execute(id, stmt)
	return id, nil
}

func (w *DuckDB) execute(id string, stmt model.Statement) {
	defer w.wg.Done()
	w.setStatus(id, model.StatementRunning)

	// Detached from the submitter: the caller's deadline only bounds its wait.
	ctx := context.Background()
	var (
		rows     [][]interface{}
		affected int64
		err      error
	)
	if returnsRows(stmt.SQL) {
		rows, err = w.query(ctx, stmt.SQL)
	} else {
		var res sql.Result
		res, err = w.db.ExecContext(ctx, stmt.SQL)
		if err == nil {
			affected, _ = res.RowsAffected()
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.stmts[id]
	if !ok {
		return
	}
	s.desc.FinishedAt = time.Now().UTC()
	if err != nil {
		s.desc.Status = model.StatementFailed
		s.desc.Error = err.Error()
		w.log.Warn("statement failed", "statement_id", id, "database", stmt.Database, "error", err)
		return
	}
	s.desc.Status = model.StatementFinished
	s.desc.RowsAffected = affected
	s.desc.HasResult = rows != nil
	s.rows = rows
}

func (w *DuckDB) query(ctx context.Context, q string) ([][]interface{}, error) {
	rs, err := w.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	out := [][]interface{}{}
	for rs.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rs.Err()
}

func (w *DuckDB) setStatus(id, status string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.stmts[id]; ok {
		s.desc.Status = status
	}
}

// prune drops finished statements past retention. Callers hold mu.
func (w *DuckDB) prune(now time.Time) {
	for id, s := range w.stmts {
		if model.StatementTerminal(s.desc.Status) && now.Sub(s.desc.FinishedAt) > w.retention {
			delete(w.stmts, id)
		}
	}
}

// Describe reports the current state of a statement.
func (w *DuckDB) Describe(_ context.Context, id string) (model.StatementDescription, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.stmts[id]
	if !ok {
		return model.StatementDescription{}, fmt.Errorf("statement %s not found", id)
	}
	return s.desc, nil
}

// Result returns the rows of a finished query.
func (w *DuckDB) Result(_ context.Context, id string) ([][]interface{}, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.stmts[id]
	if !ok {
		return nil, fmt.Errorf("statement %s not found", id)
	}
	if s.desc.Status != model.StatementFinished {
		return nil, fmt.Errorf("statement %s is %s", id, s.desc.Status)
	}
	if !s.desc.HasResult {
		return nil, fmt.Errorf("statement %s has no result set", id)
	}
	return s.rows, nil
}

// Close waits for running statements and closes the database.
func (w *DuckDB) Close() error {
	w.wg.Wait()
	return w.db.Close()
}

func returnsRows(q string) bool {
	head := strings.ToUpper(strings.TrimSpace(q))
	for _, p := range []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "PRAGMA", "FROM"} {
		if strings.HasPrefix(head, p) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
