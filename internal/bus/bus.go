// Package bus provides a narrow, style-agnostic message bus abstraction:
// durable named queues with at-least-once delivery, multi-queue
// round-robin consumption, and explicit ack/nack. Callers are written
// once against the Envelope/Bus interfaces and can be pointed at either
// the JetStream-backed implementation or the in-memory test double.
package bus

import (
	"context"
	"fmt"
)

// Envelope is a single delivered message. Ack/Nack are idempotent:
// calling either after the underlying connection has closed is a no-op,
// never an error.
type Envelope interface {
	Payload() []byte
	Queue() string
	Ack() error
	Nack(requeue bool) error
}

// Bus publishes to and consumes from durable named queues.
type Bus interface {
	// Publish persists payload on queue. It survives broker restart.
	Publish(ctx context.Context, queue string, payload []byte) error

	// Consume returns a channel of envelopes for queues, a comma-separated
	// list consumed as a fair round-robin over the listed queue names.
	// The channel closes when ctx is canceled or Close is called.
	Consume(ctx context.Context, queues string) (<-chan Envelope, error)

	Close() error
}

// ErrEmptyQueueList is returned by Publish/Consume when no queue name
// was supplied.
var ErrEmptyQueueList = fmt.Errorf("bus: queue name list is empty")
