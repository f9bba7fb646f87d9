package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"lazythumb/internal/logging"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

const sqliteBackend = "sqlite"

// SQLiteStore persists thumbnails in a single SQLite table.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	quota  int64
}

// NewSQLiteStore opens (creating if needed) the database file at dbPath.
// The parent directory must exist and be writable.
func NewSQLiteStore(ctx context.Context, dbPath string, quota int64) (*SQLiteStore, error) {
	logging.Info("Cache database path: %s", dbPath)

	if dir := filepath.Dir(dbPath); dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("cache database directory: %w", err)
		}
	}

	// WAL lets readers proceed while a session writes; immediate transactions
	// avoid lock upgrades failing under concurrent Puts.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close cache database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db, dbPath: dbPath, quota: quota}
	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close cache database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	logging.Info("Cache database initialized at %s (quota: %d bytes)", dbPath, quota)
	return s, nil
}

func (s *SQLiteStore) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS thumbnails (
		url TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		size INTEGER NOT NULL,
		generated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, url string) (r Result, err error) {
	start := time.Now()
	defer func() { observe(sqliteBackend, "get", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var generatedAt int64
	err = s.db.QueryRowContext(ctx,
		`SELECT payload, generated_at FROM thumbnails WHERE url = ?`, url,
	).Scan(&r.Payload, &generatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, ErrNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("cache get %q: %w", url, err)
	}

	r.SourceURL = url
	r.GeneratedAt = time.UnixMilli(generatedAt)
	return r, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, url, payload string) (err error) {
	start := time.Now()
	defer func() { observe(sqliteBackend, "put", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache put: begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logging.Warn("cache put: rollback failed: %v", rbErr)
			}
		}
	}()

	newSize := int64(len(payload))
	if s.quota > 0 {
		var used, oldSize int64
		if err = tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM thumbnails`).Scan(&used); err != nil {
			return fmt.Errorf("cache put: usage: %w", err)
		}
		err = tx.QueryRowContext(ctx, `SELECT size FROM thumbnails WHERE url = ?`, url).Scan(&oldSize)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("cache put: existing entry: %w", err)
		}
		if !fits(s.quota, used, oldSize, newSize) {
			err = ErrQuotaExceeded
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO thumbnails (url, payload, size, generated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			payload = excluded.payload,
			size = excluded.size,
			generated_at = excluded.generated_at`,
		url, payload, newSize, now().UnixMilli())
	if err != nil {
		return fmt.Errorf("cache put %q: %w", url, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("cache put: commit: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, url string) (err error) {
	start := time.Now()
	defer func() { observe(sqliteBackend, "delete", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err = s.db.ExecContext(ctx, `DELETE FROM thumbnails WHERE url = ?`, url); err != nil {
		return fmt.Errorf("cache delete %q: %w", url, err)
	}
	return nil
}

// Stats implements Store.
func (s *SQLiteStore) Stats(ctx context.Context) (st Stats, err error) {
	start := time.Now()
	defer func() { observe(sqliteBackend, "stats", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM thumbnails`,
	).Scan(&st.Entries, &st.TotalBytes)
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	st.QuotaBytes = s.quota
	return st, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}
