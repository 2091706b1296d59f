package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// PublishHook adjusts an outgoing message before it is sent.
type PublishHook func(*amqp.Publishing)

// WithAppID stamps every message with the publishing application's ID.
func WithAppID(id string) PublishHook {
	return func(p *amqp.Publishing) { p.AppId = id }
}

// Publisher implements ports.Publisher using RabbitMQ. Payloads are sent to
// the default exchange with the queue name as routing key.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
	hooks   []PublishHook
}

// NewPublisher dials RabbitMQ and opens a publishing channel.
func NewPublisher(amqpURL string, hooks ...PublishHook) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	return &Publisher{conn: conn, channel: ch, hooks: hooks}, nil
}

// Declare idempotently declares the given queues.
func (p *Publisher) Declare(queues ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, q := range queues {
		if err := declare(p.channel, q); err != nil {
			return err
		}
	}
	return nil
}

// Publish serialises payload as JSON and sends it to queue.
func (p *Publisher) Publish(ctx context.Context, queue string, payload any) error {
	msg, err := newPublishing(payload, p.hooks)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(
		ctx,
		"",    // default exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		msg,
	)
}

// Close cleanly shuts down the channel and connection.
func (p *Publisher) Close() {
	p.channel.Close()
	p.conn.Close()
}

func newPublishing(payload any, hooks []PublishHook) (amqp.Publishing, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal payload: %w", err)
	}

	msg := amqp.Publishing{
		Headers:      amqp.Table{typeHeader: fmt.Sprintf("%T", payload)},
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Body:         body,
	}
	for _, hook := range hooks {
		hook(&msg)
	}
	return msg, nil
}

// declare idempotently declares a durable, non-exclusive queue.
func declare(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}
