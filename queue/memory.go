package queue

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryQueue is a process-local Queue ordered by due time. Messages do not
// survive a restart; use SQLQueue when durability matters.
type MemoryQueue struct {
	mu      sync.Mutex
	pending dueHeap
	wake    chan struct{}
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{wake: make(chan struct{}, 1)}
}

type dueMessage struct {
	body []byte
	due  time.Time
}

type dueHeap []dueMessage

func (h dueHeap) Len() int            { return len(h) }
func (h dueHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h dueHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *dueHeap) Push(x any)         { *h = append(*h, x.(dueMessage)) }
func (h *dueHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (q *MemoryQueue) Enqueue(_ context.Context, body []byte, delay time.Duration) error {
	q.mu.Lock()
	heap.Push(&q.pending, dueMessage{body: body, due: time.Now().Add(delay)})
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) Subscribe(ctx context.Context, h Handler) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		q.mu.Lock()
		var next *dueMessage
		if q.pending.Len() > 0 {
			next = &q.pending[0]
		}
		now := time.Now()
		if next != nil && !next.due.After(now) {
			msg := heap.Pop(&q.pending).(dueMessage)
			q.mu.Unlock()
			if err := h(ctx, msg.body); err != nil {
				slog.Warn("queue handler failed, redelivering", "error", err)
				_ = q.Enqueue(ctx, msg.body, redeliveryInterval)
			}
			continue
		}
		wait := time.Hour
		if next != nil {
			wait = next.due.Sub(now)
		}
		q.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		case <-timer.C:
		}
	}
}
