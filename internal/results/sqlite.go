package results

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

const createTable = `
CREATE TABLE IF NOT EXISTS ids_results (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    window_id        INTEGER NOT NULL,
    bytes_per_sec    REAL NOT NULL,
    pkts_per_sec     REAL NOT NULL,
    syn_rate         REAL NOT NULL,
    failed_conn_rate REAL NOT NULL,
    label            INTEGER NOT NULL,
    run_ts           TEXT NOT NULL,
    run_id           TEXT NOT NULL,
    eval_n           INTEGER NOT NULL,
    eval_mode        TEXT NOT NULL,
    llm_enabled      INTEGER NOT NULL,
    llm_model        TEXT NOT NULL DEFAULT '',
    llm_version      TEXT NOT NULL DEFAULT '',
    z_thresh         REAL NOT NULL,
    z_pred           INTEGER NOT NULL,
    z_score          REAL NOT NULL,
    iforest_contam   REAL,
    iforest_pred     INTEGER,
    iforest_score    REAL,
    agent_pred       INTEGER NOT NULL,
    agent_rationale  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ids_results_run ON ids_results(run_id);
`

// SQLiteStore appends rows to the ids_results table of a SQLite database.
type SQLiteStore struct {
	path string
	db   *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create results dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create results table: %w", err)
	}
	return &SQLiteStore{path: path, db: db}, nil
}

// Location implements Store.
func (s *SQLiteStore) Location() string { return s.path }

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Append implements Store. All rows of one call land in a single transaction.
func (s *SQLiteStore) Append(ctx context.Context, rows []Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	insert := fmt.Sprintf("INSERT INTO ids_results (%s) VALUES (%s)",
		strings.Join(Columns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(Columns)), ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		var iContam, iPred, iScore any
		if r.IForest != nil {
			iContam, iPred, iScore = r.Run.IForestContam, r.IForest.Label, r.IForest.Score
		}
		_, err := stmt.ExecContext(ctx,
			r.Window.WindowID, r.Window.BytesPerSec, r.Window.PktsPerSec, r.Window.SynRate, r.Window.FailedConnRate, r.Window.Label,
			r.Run.RunTS, r.Run.RunID, r.Run.EvalN, r.Run.EvalMode, r.Run.LLMEnabled, r.Run.LLMModel, r.Run.LLMVersion,
			r.Run.ZThreshold, r.ZScore.Label, r.ZScore.Score,
			iContam, iPred, iScore,
			r.Agent.Label, r.Agent.Rationale,
		)
		if err != nil {
			return fmt.Errorf("insert window %d: %w", r.Window.WindowID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
