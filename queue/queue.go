// Package queue defines the message-queue contract that backs the outbound
// delivery pipeline, plus an in-memory implementation and a SQL-backed one.
// Delivery semantics are at-least-once: handlers must tolerate duplicates.
package queue

import (
	"context"
	"time"
)

// Handler consumes one message. A non-nil error causes redelivery after the
// queue's retry interval; nil removes the message.
type Handler func(ctx context.Context, body []byte) error

// Queue is the minimum contract required by the delivery pipeline.
type Queue interface {
	// Enqueue schedules body for delivery after the given delay
	// (zero = as soon as possible).
	Enqueue(ctx context.Context, body []byte, delay time.Duration) error

	// Subscribe consumes messages with h until ctx is cancelled.
	// Only one Subscribe call per Queue is supported.
	Subscribe(ctx context.Context, h Handler) error
}

// redeliveryInterval is how long a message waits after its handler fails
// before it is offered again.
const redeliveryInterval = 5 * time.Second
