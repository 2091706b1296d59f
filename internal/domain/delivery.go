package domain

import "context"

// Delivery describes the broker delivery a handler invocation originates from.
type Delivery struct {
	Queue       string
	ConsumerTag string
	MessageID   string
}

type deliveryKey struct{}

type callerKey struct{}

// WithDelivery marks ctx as a broker delivery context. Handlers invoked with
// such a context always run inline.
func WithDelivery(ctx context.Context, d Delivery) context.Context {
	return context.WithValue(ctx, deliveryKey{}, d)
}

// DeliveryFrom returns the delivery stored in ctx, if any.
func DeliveryFrom(ctx context.Context) (Delivery, bool) {
	d, ok := ctx.Value(deliveryKey{}).(Delivery)
	return d, ok
}

// WithCaller names the execution context a call is made from
// (e.g. "http-<request id>", "amqp-consumer-3").
func WithCaller(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, callerKey{}, name)
}

// CallerFrom returns the caller name stored in ctx, or "" when unnamed.
func CallerFrom(ctx context.Context) string {
	name, _ := ctx.Value(callerKey{}).(string)
	return name
}
