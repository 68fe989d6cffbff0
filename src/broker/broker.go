// Package broker defines the stream client interface and provides
// implementations.
package broker

import (
	"context"
	"time"

	"sentinel-agent/src/contracts"
)

// Message is one entry delivered from a stream. Its ID is assigned by the
// broker at append time and is never reused.
type Message struct {
	ID     string
	Stream string
	Fields map[string]string
}

// Stream abstracts a durable, append-only log with consumer-group
// semantics. Implementations must be safe for concurrent use: the
// processor's read loop and its pool workers share one client.
//
// Delivery is at-least-once: a message read through ReadBatch stays
// pending for its consumer group until Ack'd, and a pending message left
// idle past the implementation's min-idle threshold is redelivered by a
// later ReadBatch call.
type Stream interface {
	// Append adds a record to a stream and returns the broker-assigned
	// message id.
	Append(ctx context.Context, stream string, fields map[string]string) (string, error)

	// EnsureGroup creates the consumer group at the beginning of the
	// stream. Idempotent: an existing group is a no-op, not an error.
	EnsureGroup(ctx context.Context, stream, group string) error

	// ReadBatch returns up to count messages for the consumer, blocking up
	// to block waiting for new entries when none are pending. A timeout
	// returns an empty batch and no error. Returned messages are pending
	// for the group until acknowledged or reclaimed.
	ReadBatch(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]Message, error)

	// Ack marks a delivered message as done. Idempotent.
	Ack(ctx context.Context, stream, group, id string) error

	// StreamInfo is best-effort introspection: it returns a zero-valued
	// info on failure rather than an error.
	StreamInfo(ctx context.Context, stream string) contracts.StreamInfo

	// Close shuts down the client.
	Close() error
}
