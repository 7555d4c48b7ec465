package queue

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue()
	require.NoError(t, q.Enqueue(ctx, []byte("one"), 0))
	require.NoError(t, q.Enqueue(ctx, []byte("two"), 0))

	got := make(chan string, 2)
	go q.Subscribe(ctx, func(_ context.Context, body []byte) error {
		got <- string(body)
		return nil
	})

	received := map[string]bool{}
	for range 2 {
		select {
		case m := <-got:
			received[m] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for messages")
		}
	}
	assert.True(t, received["one"])
	assert.True(t, received["two"])
}

func TestMemoryQueueHonorsDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue()
	start := time.Now()
	require.NoError(t, q.Enqueue(ctx, []byte("later"), 100*time.Millisecond))

	got := make(chan time.Time, 1)
	go q.Subscribe(ctx, func(_ context.Context, _ []byte) error {
		got <- time.Now()
		return nil
	})

	select {
	case at := <-got:
		assert.GreaterOrEqual(t, at.Sub(start), 90*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed message never arrived")
	}
}

func TestSQLQueueRedeliversOnError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	q, err := OpenSQL(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	defer q.Close()
	q.PollInterval = 10 * time.Millisecond

	require.NoError(t, q.Enqueue(ctx, []byte("retry-me"), 0))

	var calls atomic.Int32
	done := make(chan struct{})
	go q.Subscribe(ctx, func(_ context.Context, body []byte) error {
		assert.Equal(t, "retry-me", string(body))
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	// First attempt fails; the job must come back. The redelivery interval is
	// seconds-granular because deliver_at stores unix seconds.
	select {
	case <-done:
	case <-time.After(8 * time.Second):
		t.Fatal("job was not redelivered after handler error")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}
