// Package listener runs the consumer side of duplex handlers.
//
// A handler bound with Bind is reachable two ways: the Container consumes its
// queues and calls it with a delivery context (always inline), and in-process
// callers use the returned function, which the dispatch interceptor may
// redirect to the broker.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang-mq-duplex/internal/dispatch"
	"golang-mq-duplex/internal/domain"
	"golang-mq-duplex/internal/ports"

	"golang.org/x/sync/errgroup"
)

// Listener is a named handler consuming one or more queues.
type Listener struct {
	Name   string
	Queues []string // Declared queue identifiers, placeholders unresolved
	Handle ports.DeliveryHandler
}

// Description reports a listener and its queues.
type Description struct {
	Name     string   `json:"name"`
	Queues   []string `json:"queues"`
	Resolved []string `json:"resolved,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Container owns the registered listeners and the consumer serving them.
type Container struct {
	consumer ports.Consumer
	resolver ports.KeyResolver
	log      *slog.Logger

	mu        sync.RWMutex
	listeners map[string]Listener
	order     []string
}

// NewContainer wires a Container with its dependencies.
func NewContainer(consumer ports.Consumer, resolver ports.KeyResolver, log *slog.Logger) *Container {
	return &Container{
		consumer:  consumer,
		resolver:  resolver,
		log:       log,
		listeners: make(map[string]Listener),
	}
}

// Register adds l. Listener names must be unique.
func (c *Container) Register(l Listener) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.listeners[l.Name]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateHandler, l.Name)
	}
	c.listeners[l.Name] = l
	c.order = append(c.order, l.Name)
	return nil
}

// Bind registers fn under spec.Name, consuming spec.Queues with JSON-decoded
// payloads of type T, and returns the dispatch-wrapped fn for in-process use.
func Bind[T any](c *Container, ic *dispatch.Interceptor, spec dispatch.Spec, fn func(context.Context, T) error) (func(context.Context, T) error, error) {
	wrapped := dispatch.Wrap(ic, spec, fn)

	err := c.Register(Listener{
		Name:   spec.Name,
		Queues: spec.Queues,
		Handle: func(ctx context.Context, body []byte) error {
			var arg T
			if err := json.Unmarshal(body, &arg); err != nil {
				return fmt.Errorf("%w: %s: %v", domain.ErrInvalidPayload, spec.Name, err)
			}
			return wrapped(ctx, arg)
		},
	})
	if err != nil {
		return nil, err
	}
	return wrapped, nil
}

// Invoke calls the listener registered under name with a JSON body, as an
// in-process caller would.
func (c *Container) Invoke(ctx context.Context, name string, body []byte) error {
	c.mu.RLock()
	l, ok := c.listeners[name]
	c.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownHandler, name)
	}
	return l.Handle(ctx, body)
}

// Describe lists the registered listeners in registration order.
func (c *Container) Describe() []Description {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Description, 0, len(c.order))
	for _, name := range c.order {
		l := c.listeners[name]
		d := Description{Name: l.Name, Queues: l.Queues}

		resolved, err := c.resolveAll(l.Queues)
		if err != nil {
			d.Error = err.Error()
		} else {
			d.Resolved = resolved
		}
		out = append(out, d)
	}
	return out
}

// Queues returns the resolved names of every consumed queue.
func (c *Container) Queues() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for _, name := range c.order {
		resolved, err := c.resolveAll(c.listeners[name].Queues)
		if err != nil {
			return nil, fmt.Errorf("listener %s: %w", name, err)
		}
		out = append(out, resolved...)
	}
	return out, nil
}

// Start consumes every declared queue of every listener, one goroutine per
// queue. It blocks until ctx is cancelled (returning nil) or a consumer fails.
func (c *Container) Start(ctx context.Context) error {
	c.mu.RLock()
	type binding struct {
		listener string
		queue    string
		handle   ports.DeliveryHandler
	}
	var bindings []binding
	for _, name := range c.order {
		l := c.listeners[name]
		resolved, err := c.resolveAll(l.Queues)
		if err != nil {
			c.mu.RUnlock()
			return fmt.Errorf("listener %s: %w", name, err)
		}
		for _, q := range resolved {
			bindings = append(bindings, binding{listener: name, queue: q, handle: l.Handle})
		}
	}
	c.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range bindings {
		g.Go(func() error {
			c.log.Info("listener started", "listener", b.listener, "queue", b.queue)
			if err := c.consumer.Consume(gctx, b.queue, b.handle); err != nil && gctx.Err() == nil {
				return fmt.Errorf("listener %s on %s: %w", b.listener, b.queue, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (c *Container) resolveAll(queues []string) ([]string, error) {
	out := make([]string, 0, len(queues))
	for _, q := range queues {
		resolved, err := c.resolver.Resolve(q)
		if err != nil {
			return nil, fmt.Errorf("resolve queue %q: %w", q, err)
		}
		out = append(out, resolved)
	}
	return out, nil
}
