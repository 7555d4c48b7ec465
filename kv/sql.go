package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLStore is a Store backed by SQLite or PostgreSQL, sharing one schema.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQL opens a SQL-backed store. The URL can be:
//   - A file path like "fedkit.db" → SQLite
//   - "sqlite:///path/to/file.db" → SQLite
//   - "postgres://..." → PostgreSQL
func OpenSQL(databaseURL string) (*SQLStore, error) {
	driver, dsn := detectDriver(databaseURL)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if driver == "sqlite" {
		// SQLite performs best with WAL mode and a single writer.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	slog.Debug("running kv migrations", "driver", s.driver)
	const ddl = `CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		expires_at BIGINT NOT NULL DEFAULT 0
	)`
	ddlDriver := ddl
	if s.driver == "postgres" {
		ddlDriver = strings.Replace(ddl, "BLOB", "BYTEA", 1)
	}
	if _, err := s.db.Exec(ddlDriver); err != nil {
		return fmt.Errorf("kv migration failed: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv WHERE key = `+s.ph(1), key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get: %w", err)
	}
	if expiresAt != 0 && time.Now().Unix() >= expiresAt {
		// Expired entries are reaped lazily.
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}
	return value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	// ttl == 0 means no expiry; a negative ttl stores an already-elapsed
	// timestamp rather than an immortal entry.
	var expiresAt int64
	if ttl != 0 {
		expiresAt = time.Now().Add(ttl).Unix()
	}
	var q string
	if s.driver == "sqlite" {
		q = `INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value=excluded.value, expires_at=excluded.expires_at`
	} else {
		q = `INSERT INTO kv (key, value, expires_at) VALUES ($1, $2, $3)
			ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, expires_at=EXCLUDED.expires_at`
	}
	if _, err := s.db.ExecContext(ctx, q, key, value, expiresAt); err != nil {
		return fmt.Errorf("kv set: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = `+s.ph(1), key); err != nil {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}

// ph returns the SQL placeholder token for argument n.
// SQLite uses ? and PostgreSQL uses $n.
func (s *SQLStore) ph(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func detectDriver(u string) (driver, dsn string) {
	if strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://") {
		return "postgres", u
	}
	if strings.HasPrefix(u, "sqlite://") {
		return "sqlite", strings.TrimPrefix(u, "sqlite://")
	}
	// Treat bare paths as SQLite file paths.
	return "sqlite", u
}
