package ports

import "context"

// Publisher publishes payloads to named queues.
type Publisher interface {
	// Publish serialises payload and sends it to queue.
	Publish(ctx context.Context, queue string, payload any) error
}

// DeliveryHandler processes the raw body of one delivery.
type DeliveryHandler = func(ctx context.Context, body []byte) error

// Consumer consumes messages from named queues.
type Consumer interface {
	// Consume starts delivery of messages from queue; each body is passed to handler.
	// Blocks until ctx is cancelled or a fatal error occurs.
	Consume(ctx context.Context, queue string, handler DeliveryHandler) error
}
