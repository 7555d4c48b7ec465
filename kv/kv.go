// Package kv defines the key-value store contract the framework persists
// through, plus an in-memory implementation and a SQL-backed one supporting
// both SQLite (default, no external dependencies) and PostgreSQL.
package kv

import (
	"context"
	"time"
)

// Store is the minimum persistence contract consumed by the framework.
// Reads and writes are atomic per key; CAS is not required.
type Store interface {
	// Get returns the value stored under key. The second return is false
	// if the key is absent or its TTL has expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A zero ttl means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
