package queue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLQueue is a durable Queue backed by SQLite or PostgreSQL. A polling
// worker claims due jobs in batches; failed jobs are pushed back with a
// redelivery delay, so delivery is at-least-once.
type SQLQueue struct {
	db     *sql.DB
	driver string

	// PollInterval controls how often the subscriber looks for due jobs.
	PollInterval time.Duration
	// BatchSize caps how many jobs one poll claims.
	BatchSize int
}

// OpenSQL opens a durable queue. URL handling matches kv.OpenSQL: bare paths
// and sqlite:// URLs select SQLite, postgres:// selects PostgreSQL.
func OpenSQL(databaseURL string) (*SQLQueue, error) {
	driver, dsn := detectDriver(databaseURL)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}

	q := &SQLQueue{
		db:           db,
		driver:       driver,
		PollInterval: time.Second,
		BatchSize:    64,
	}
	if err := q.migrate(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLQueue) migrate() error {
	slog.Debug("running queue migrations", "driver", q.driver)
	const ddl = `CREATE TABLE IF NOT EXISTS queue_jobs (
		id         TEXT PRIMARY KEY,
		body       BLOB NOT NULL,
		deliver_at BIGINT NOT NULL
	)`
	stmt := ddl
	if q.driver == "postgres" {
		stmt = strings.Replace(ddl, "BLOB", "BYTEA", 1)
	}
	if _, err := q.db.Exec(stmt); err != nil {
		return fmt.Errorf("queue migration failed: %w", err)
	}
	if _, err := q.db.Exec(`CREATE INDEX IF NOT EXISTS queue_jobs_due ON queue_jobs(deliver_at)`); err != nil {
		return fmt.Errorf("queue migration failed: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (q *SQLQueue) Close() error {
	return q.db.Close()
}

func (q *SQLQueue) Enqueue(ctx context.Context, body []byte, delay time.Duration) error {
	var ins string
	if q.driver == "sqlite" {
		ins = `INSERT INTO queue_jobs (id, body, deliver_at) VALUES (?, ?, ?)`
	} else {
		ins = `INSERT INTO queue_jobs (id, body, deliver_at) VALUES ($1, $2, $3)`
	}
	_, err := q.db.ExecContext(ctx, ins, uuid.NewString(), body, time.Now().Add(delay).Unix())
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

func (q *SQLQueue) Subscribe(ctx context.Context, h Handler) error {
	t := time.NewTicker(q.PollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := q.processBatch(ctx, h); err != nil {
				slog.Error("queue batch failed", "error", err)
			}
		}
	}
}

func (q *SQLQueue) processBatch(ctx context.Context, h Handler) error {
	var sel string
	if q.driver == "sqlite" {
		sel = `SELECT id, body FROM queue_jobs WHERE deliver_at <= ? ORDER BY deliver_at ASC LIMIT ?`
	} else {
		sel = `SELECT id, body FROM queue_jobs WHERE deliver_at <= $1 ORDER BY deliver_at ASC LIMIT $2`
	}
	rows, err := q.db.QueryContext(ctx, sel, time.Now().Unix(), q.BatchSize)
	if err != nil {
		return fmt.Errorf("poll jobs: %w", err)
	}

	type job struct {
		id   string
		body []byte
	}
	var batch []job
	for rows.Next() {
		var j job
		if err := rows.Scan(&j.id, &j.body); err != nil {
			rows.Close()
			return fmt.Errorf("scan job: %w", err)
		}
		batch = append(batch, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, j := range batch {
		if err := h(ctx, j.body); err != nil {
			slog.Warn("queue handler failed, redelivering", "job", j.id, "error", err)
			q.reschedule(ctx, j.id)
			continue
		}
		q.remove(ctx, j.id)
	}
	return nil
}

func (q *SQLQueue) reschedule(ctx context.Context, id string) {
	var upd string
	if q.driver == "sqlite" {
		upd = `UPDATE queue_jobs SET deliver_at = ? WHERE id = ?`
	} else {
		upd = `UPDATE queue_jobs SET deliver_at = $1 WHERE id = $2`
	}
	if _, err := q.db.ExecContext(ctx, upd, time.Now().Add(redeliveryInterval).Unix(), id); err != nil {
		slog.Error("failed to reschedule job", "job", id, "error", err)
	}
}

func (q *SQLQueue) remove(ctx context.Context, id string) {
	var del string
	if q.driver == "sqlite" {
		del = `DELETE FROM queue_jobs WHERE id = ?`
	} else {
		del = `DELETE FROM queue_jobs WHERE id = $1`
	}
	if _, err := q.db.ExecContext(ctx, del, id); err != nil {
		slog.Error("failed to remove job", "job", id, "error", err)
	}
}

func detectDriver(u string) (driver, dsn string) {
	if strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://") {
		return "postgres", u
	}
	if strings.HasPrefix(u, "sqlite://") {
		return "sqlite", strings.TrimPrefix(u, "sqlite://")
	}
	return "sqlite", u
}
