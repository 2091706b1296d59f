// Package memory provides an in-process broker implementing ports.Publisher
// and ports.Consumer. It is used by tests and by the "memory" broker mode.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang-mq-duplex/internal/domain"
)

// ErrBrokerClosed is returned by Publish after Close.
var ErrBrokerClosed = errors.New("broker closed")

// Broker keeps one buffered channel per queue. Failed deliveries are logged
// and dropped.
type Broker struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	done   chan struct{}
	closed bool
	size   int
	seq    atomic.Int64
	log    *slog.Logger
}

// NewBroker creates a Broker whose queues buffer up to size messages.
func NewBroker(size int, log *slog.Logger) *Broker {
	return &Broker{
		queues: make(map[string]chan []byte),
		done:   make(chan struct{}),
		size:   size,
		log:    log,
	}
}

func (b *Broker) queue(name string) (chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	q, ok := b.queues[name]
	if !ok {
		q = make(chan []byte, b.size)
		b.queues[name] = q
	}
	return q, nil
}

// Publish JSON-encodes payload and enqueues it. It blocks while the queue is
// full, until ctx is done.
func (b *Broker) Publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	q, err := b.queue(queue)
	if err != nil {
		return err
	}

	select {
	case q <- body:
		return nil
	case <-b.done:
		return ErrBrokerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume delivers messages from queue to handler until ctx is cancelled or
// the broker is closed. Handlers receive a delivery-flagged context.
func (b *Broker) Consume(ctx context.Context, queue string, handler func(ctx context.Context, body []byte) error) error {
	q, err := b.queue(queue)
	if err != nil {
		return err
	}

	tag := fmt.Sprintf("memory-consumer-%d", b.seq.Add(1))
	var n int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-b.done:
			return nil

		case body := <-q:
			n++
			dctx := domain.WithCaller(ctx, tag)
			dctx = domain.WithDelivery(dctx, domain.Delivery{
				Queue:       queue,
				ConsumerTag: tag,
				MessageID:   fmt.Sprintf("%s-%d", tag, n),
			})

			if err := handler(dctx, body); err != nil {
				b.log.Error("handler error", "queue", queue, "consumer", tag, "err", err)
			}
		}
	}
}

// Depth returns the number of messages waiting in queue.
func (b *Broker) Depth(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue])
}

// Close stops all consumers. Messages still queued are discarded.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}
