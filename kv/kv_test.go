package kv

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "a", []byte("one"), 0))
	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("one"), v)

	require.NoError(t, s.Delete(ctx, "a"))
	_, ok, _ = s.Get(ctx, "a")
	assert.False(t, ok)
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "ttl", []byte("x"), 10*time.Millisecond))
	_, ok, _ := s.Get(ctx, "ttl")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok, _ = s.Get(ctx, "ttl")
	assert.False(t, ok, "entry should expire after its TTL")
}

func TestSQLStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQL(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "doc-cache/https://example.com/x", []byte(`{"a":1}`), time.Hour))
	v, ok, err := s.Get(ctx, "doc-cache/https://example.com/x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(v))

	// Overwrite keeps a single row.
	require.NoError(t, s.Set(ctx, "doc-cache/https://example.com/x", []byte(`{"a":2}`), time.Hour))
	v, _, _ = s.Get(ctx, "doc-cache/https://example.com/x")
	assert.JSONEq(t, `{"a":2}`, string(v))

	require.NoError(t, s.Delete(ctx, "doc-cache/https://example.com/x"))
	_, ok, _ = s.Get(ctx, "doc-cache/https://example.com/x")
	assert.False(t, ok)
}

func TestSQLStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQL(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	defer s.Close()

	// expires_at stores unix seconds, so use a TTL that already elapsed.
	require.NoError(t, s.Set(ctx, "gone", []byte("x"), -time.Second))
	_, ok, err := s.Get(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, ok)
}
