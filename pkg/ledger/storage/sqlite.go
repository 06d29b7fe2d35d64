package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend implements Backend using SQLite for persistence.
//
// It uses WAL mode with a single-writer connection pool. Spend
// increments are pushed into the database as UPSERT arithmetic
// (total = total + ?), so concurrent CostRecorder workers can never
// lose an update to a read-modify-write race.
type SQLiteBackend struct {
	db                 *sql.DB
	dbPath             string
	checkpointInterval time.Duration
	done               chan struct{}
	closeOnce          sync.Once

	incrementStmt   *sql.Stmt
	getSpendStmt    *sql.Stmt
	markStmt        *sql.Stmt
	getAlertStmt    *sql.Stmt
	insertAlertStmt *sql.Stmt
	updateAlertStmt *sql.Stmt
	retireStmt      *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration
}

// NewSQLiteBackend creates a SQLite backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{DBPath: dbPath})
}

// NewSQLiteBackendWithConfig creates a SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:                 db,
		dbPath:             cfg.DBPath,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go backend.checkpointLoop()

	return backend, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS spend_records (
		scope_key TEXT NOT NULL,
		window TEXT NOT NULL,
		bucket TEXT NOT NULL,
		total REAL NOT NULL DEFAULT 0,
		retired INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (scope_key, window, bucket)
	);

	CREATE TABLE IF NOT EXISTS applied_requests (
		request_id TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS alert_states (
		scope_key TEXT NOT NULL,
		window TEXT NOT NULL,
		bucket TEXT NOT NULL,
		last_severity TEXT NOT NULL,
		last_notified INTEGER NOT NULL,
		version INTEGER NOT NULL,
		PRIMARY KEY (scope_key, window)
	);

	CREATE INDEX IF NOT EXISTS idx_spend_window_bucket ON spend_records(window, bucket);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.incrementStmt, err = s.db.Prepare(`
		INSERT INTO spend_records (scope_key, window, bucket, total, retired, updated_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT (scope_key, window, bucket) DO UPDATE SET
			total = total + excluded.total,
			updated_at = excluded.updated_at
		RETURNING total
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare increment statement: %w", err)
	}

	s.getSpendStmt, err = s.db.Prepare(`
		SELECT total FROM spend_records
		WHERE scope_key = ? AND window = ? AND bucket = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get-spend statement: %w", err)
	}

	s.markStmt, err = s.db.Prepare(`
		INSERT INTO applied_requests (request_id, applied_at)
		VALUES (?, ?)
		ON CONFLICT (request_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare mark statement: %w", err)
	}

	s.getAlertStmt, err = s.db.Prepare(`
		SELECT bucket, last_severity, last_notified, version
		FROM alert_states
		WHERE scope_key = ? AND window = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get-alert statement: %w", err)
	}

	s.insertAlertStmt, err = s.db.Prepare(`
		INSERT INTO alert_states (scope_key, window, bucket, last_severity, last_notified, version)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT (scope_key, window) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert-alert statement: %w", err)
	}

	s.updateAlertStmt, err = s.db.Prepare(`
		UPDATE alert_states
		SET bucket = ?, last_severity = ?, last_notified = ?, version = version + 1
		WHERE scope_key = ? AND window = ? AND version = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare update-alert statement: %w", err)
	}

	s.retireStmt, err = s.db.Prepare(`
		UPDATE spend_records
		SET retired = 1
		WHERE window = ? AND bucket < ? AND retired = 0
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare retire statement: %w", err)
	}

	return nil
}

// IncrementSpend atomically adds amount to the bucket total and returns
// the new total. The arithmetic happens inside SQLite, so concurrent
// writers serialize on the database rather than racing in process.
func (s *SQLiteBackend) IncrementSpend(ctx context.Context, scopeKey, window, bucket string, amount float64) (float64, error) {
	var total float64
	err := s.incrementStmt.QueryRowContext(ctx,
		scopeKey, window, bucket, amount, time.Now().Unix(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to increment spend: %w", err)
	}
	return total, nil
}

// GetSpend returns the bucket total, zero if the bucket has never been used.
func (s *SQLiteBackend) GetSpend(ctx context.Context, scopeKey, window, bucket string) (float64, error) {
	var total float64
	err := s.getSpendStmt.QueryRowContext(ctx, scopeKey, window, bucket).Scan(&total)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get spend: %w", err)
	}
	return total, nil
}

// ApplyUsage records the request id and applies all increments in one
// transaction. A failed increment rolls the mark back with it, so a
// redelivered event finds no mark and the merge runs again in full.
func (s *SQLiteBackend) ApplyUsage(ctx context.Context, requestID string, incs []Increment) ([]float64, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	result, err := tx.StmtContext(ctx, s.markStmt).ExecContext(ctx, requestID, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark request applied: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, false, nil
	}

	totals := make([]float64, len(incs))
	for i, inc := range incs {
		err := tx.StmtContext(ctx, s.incrementStmt).QueryRowContext(ctx,
			inc.ScopeKey, inc.Window, inc.Bucket, inc.Amount, now,
		).Scan(&totals[i])
		if err != nil {
			return nil, false, fmt.Errorf("failed to increment spend for %s/%s: %w", inc.ScopeKey, inc.Window, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit usage merge: %w", err)
	}
	return totals, true, nil
}

// GetAlertState returns the stored alert state or nil.
func (s *SQLiteBackend) GetAlertState(ctx context.Context, scopeKey, window string) (*AlertState, error) {
	var (
		bucket       string
		severity     string
		lastNotified int64
		version      int64
	)

	err := s.getAlertStmt.QueryRowContext(ctx, scopeKey, window).Scan(
		&bucket, &severity, &lastNotified, &version,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert state: %w", err)
	}

	return &AlertState{
		Bucket:       bucket,
		LastSeverity: severity,
		LastNotified: time.Unix(lastNotified, 0).UTC(),
		Version:      version,
	}, nil
}

// SetAlertState persists alert state with an optimistic version check.
func (s *SQLiteBackend) SetAlertState(ctx context.Context, scopeKey, window string, state AlertState) error {
	if state.Version == 0 {
		result, err := s.insertAlertStmt.ExecContext(ctx,
			scopeKey, window, state.Bucket, state.LastSeverity, state.LastNotified.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert alert state: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return ErrVersionConflict
		}
		return nil
	}

	result, err := s.updateAlertStmt.ExecContext(ctx,
		state.Bucket, state.LastSeverity, state.LastNotified.Unix(),
		scopeKey, window, state.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// RetireBuckets marks spend records before the cutoff as retired.
func (s *SQLiteBackend) RetireBuckets(ctx context.Context, window, before string) (int, error) {
	result, err := s.retireStmt.ExecContext(ctx, window, before)
	if err != nil {
		return 0, fmt.Errorf("failed to retire buckets: %w", err)
	}

	retired, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(retired), nil
}

// Close releases resources held by the backend.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		for _, stmt := range []*sql.Stmt{
			s.incrementStmt, s.getSpendStmt, s.markStmt,
			s.getAlertStmt, s.insertAlertStmt, s.updateAlertStmt, s.retireStmt,
		} {
			if stmt != nil {
				stmt.Close()
			}
		}

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}
