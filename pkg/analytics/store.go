package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_summaries (
	scope_key     TEXT    NOT NULL,
	window        TEXT    NOT NULL,
	bucket        TEXT    NOT NULL,
	provider      TEXT    NOT NULL,
	model         TEXT    NOT NULL,
	request_count INTEGER NOT NULL DEFAULT 0,
	input_units   INTEGER NOT NULL DEFAULT 0,
	output_units  INTEGER NOT NULL DEFAULT 0,
	cost          REAL    NOT NULL DEFAULT 0,
	updated_at    INTEGER NOT NULL,
	PRIMARY KEY (scope_key, window, bucket, provider, model)
);

CREATE INDEX IF NOT EXISTS idx_summaries_bucket
	ON usage_summaries(window, bucket);

CREATE TABLE IF NOT EXISTS summarized_requests (
	request_id TEXT PRIMARY KEY,
	applied_at INTEGER NOT NULL
);
`

// Summary is one aggregated usage row.
type Summary struct {
	ScopeKey     string
	Window       string
	Bucket       string
	Provider     string
	Model        string
	RequestCount int64
	InputUnits   int64
	OutputUnits  int64
	Cost         float64
}

// StoreConfig contains configuration for the analytics store.
type StoreConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 4
	MaxOpenConns int

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// Store keeps pre-aggregated usage summaries in SQLite. Summaries are
// additive rollups per (scope, window, bucket, provider, model), so
// dashboards read them without scanning raw spend records.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens the analytics database and creates the schema.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open analytics database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create analytics schema: %w", err)
	}

	logger := slog.Default().With("component", "analytics.store")
	logger.Info("analytics store initialized", "path", cfg.Path)

	return &Store{db: db, logger: logger}, nil
}

// Merge adds one request's usage to its summary rows. The request id is
// recorded first so replayed events cannot inflate the rollups; a replay
// returns without touching the summaries.
func (s *Store) Merge(ctx context.Context, requestID string, rows []Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO summarized_requests (request_id, applied_at) VALUES (?, ?)
		 ON CONFLICT (request_id) DO NOTHING`,
		requestID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record request id: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check request id insert: %w", err)
	}
	if affected == 0 {
		return nil
	}

	for _, row := range rows {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO usage_summaries
				(scope_key, window, bucket, provider, model,
				 request_count, input_units, output_units, cost, updated_at)
			 VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
			 ON CONFLICT (scope_key, window, bucket, provider, model) DO UPDATE SET
				request_count = request_count + 1,
				input_units   = input_units + excluded.input_units,
				output_units  = output_units + excluded.output_units,
				cost          = cost + excluded.cost,
				updated_at    = excluded.updated_at`,
			row.ScopeKey, row.Window, row.Bucket, row.Provider, row.Model,
			row.InputUnits, row.OutputUnits, row.Cost, time.Now().UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to merge summary for %s/%s: %w", row.ScopeKey, row.Window, err)
		}
	}

	return tx.Commit()
}

// Summaries returns the rollups for a scope and window, newest bucket
// first.
func (s *Store) Summaries(ctx context.Context, scopeKey, window string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scope_key, window, bucket, provider, model,
		        request_count, input_units, output_units, cost
		 FROM usage_summaries
		 WHERE scope_key = ? AND window = ?
		 ORDER BY bucket DESC, provider, model`,
		scopeKey, window)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ScopeKey, &sum.Window, &sum.Bucket, &sum.Provider, &sum.Model,
			&sum.RequestCount, &sum.InputUnits, &sum.OutputUnits, &sum.Cost); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close closes the analytics database.
func (s *Store) Close() error {
	return s.db.Close()
}
