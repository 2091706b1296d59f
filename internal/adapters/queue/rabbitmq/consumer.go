package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang-mq-duplex/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

// typeHeader carries the Go type name of the published payload.
const typeHeader = "type"

// Consumer implements ports.Consumer using RabbitMQ. Each Consume call uses
// its own channel.
type Consumer struct {
	conn     *amqp.Connection
	prefetch int
	seq      atomic.Int64
	log      *slog.Logger
}

// NewConsumer dials RabbitMQ and returns a Consumer.
func NewConsumer(amqpURL string, prefetch int, log *slog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	return &Consumer{conn: conn, prefetch: prefetch, log: log}, nil
}

// Consume declares queue, registers a consumer on it and calls handler for
// each delivery with a delivery-flagged context.
// It acknowledges the message only if the handler returns nil.
// It blocks until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context, queue string, handler func(ctx context.Context, body []byte) error) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	if err := declare(ch, queue); err != nil {
		return err
	}

	tag := fmt.Sprintf("amqp-consumer-%d", c.seq.Add(1))
	deliveries, err := ch.Consume(
		queue,
		tag,
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}

			err := handler(deliveryContext(ctx, queue, tag, d), d.Body)
			if err != nil {
				c.log.Error("handler error", "queue", queue, "msg_id", d.MessageId, "err", err)
			}
			if err := settle(d, err); err != nil {
				c.log.Error("settle delivery", "queue", queue, "msg_id", d.MessageId, "err", err)
			}
		}
	}
}

// Close cleanly shuts down the connection.
func (c *Consumer) Close() {
	c.conn.Close()
}

func deliveryContext(ctx context.Context, queue, tag string, d amqp.Delivery) context.Context {
	ctx = domain.WithCaller(ctx, tag)
	return domain.WithDelivery(ctx, domain.Delivery{
		Queue:       queue,
		ConsumerTag: tag,
		MessageID:   d.MessageId,
	})
}

// settle acks on success, dead-letters malformed payloads and requeues
// everything else for retry.
func settle(d amqp.Delivery, handlerErr error) error {
	switch {
	case handlerErr == nil:
		return d.Ack(false)
	case errors.Is(handlerErr, domain.ErrInvalidPayload):
		return d.Nack(false, false)
	default:
		return d.Nack(false, true)
	}
}
