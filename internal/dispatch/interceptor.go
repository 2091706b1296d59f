// Package dispatch decides, per call, whether a queue handler runs inline or
// has its single argument published to the handler's queue instead.
//
// A call is redirected to the broker only when all of the following hold:
//
//   - it does not originate from a broker delivery (see domain.WithDelivery and
//     the delivery marker matched against domain.CallerFrom);
//   - it carries exactly one argument;
//   - the handler declares at least one queue and the first one is not blank.
//
// Otherwise the handler body runs and its result is returned unchanged.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang-mq-duplex/internal/domain"
	"golang-mq-duplex/internal/ports"
)

// DefaultDeliveryMarker is the caller-name substring that identifies a broker
// delivery context.
const DefaultDeliveryMarker = "amqp"

// Path labels used in logs and metrics.
const (
	PathDirect   = "direct"
	PathRedirect = "redirect"
)

// Invocation describes a single intercepted call.
type Invocation struct {
	Handler string
	Queues  []string // Declared queue identifiers, placeholders unresolved
	Args    []any
}

// ProceedFunc executes the original handler body.
type ProceedFunc func(ctx context.Context) (any, error)

// Interceptor routes handler calls to direct execution or to the broker.
// It holds no per-call state and is safe for concurrent use.
type Interceptor struct {
	publisher ports.Publisher
	resolver  ports.KeyResolver
	marker    string
	log       *slog.Logger
	metrics   *Metrics
	journal   ports.Journal
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithDeliveryMarker overrides DefaultDeliveryMarker. An empty marker disables
// caller-name matching; the explicit delivery flag is still honoured.
func WithDeliveryMarker(marker string) Option {
	return func(i *Interceptor) { i.marker = marker }
}

// WithLogger sets the logger used for dispatch decisions.
func WithLogger(log *slog.Logger) Option {
	return func(i *Interceptor) { i.log = log }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(i *Interceptor) { i.metrics = m }
}

// WithJournal records every successful redirect.
func WithJournal(j ports.Journal) Option {
	return func(i *Interceptor) { i.journal = j }
}

// New wires an Interceptor with its collaborators.
func New(publisher ports.Publisher, resolver ports.KeyResolver, opts ...Option) *Interceptor {
	i := &Interceptor{
		publisher: publisher,
		resolver:  resolver,
		marker:    DefaultDeliveryMarker,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Intercept runs proceed, or publishes inv.Args[0] to the handler's first
// queue and returns (nil, nil) without running proceed.
//
// Errors from proceed, key resolution and publishing are returned to the
// caller; nothing is retried.
func (i *Interceptor) Intercept(ctx context.Context, inv Invocation, proceed ProceedFunc) (any, error) {
	if !i.ShouldRedirect(ctx, inv) {
		i.log.Debug("dispatch", "handler", inv.Handler, "path", PathDirect, "caller", domain.CallerFrom(ctx))
		i.metrics.observe(inv.Handler, PathDirect)

		out, err := proceed(ctx)
		if err != nil {
			i.metrics.fail(inv.Handler, stageHandler)
		}
		return out, err
	}

	raw := inv.Queues[0]
	queue, err := i.resolver.Resolve(raw)
	if err != nil {
		i.metrics.fail(inv.Handler, stageResolve)
		return nil, fmt.Errorf("resolve queue %q: %w", raw, err)
	}

	i.log.Debug("dispatch", "handler", inv.Handler, "path", PathRedirect, "queue", queue, "caller", domain.CallerFrom(ctx))
	i.metrics.observe(inv.Handler, PathRedirect)

	if err := i.publisher.Publish(ctx, queue, inv.Args[0]); err != nil {
		i.metrics.fail(inv.Handler, stagePublish)
		return nil, fmt.Errorf("publish to %s: %w", queue, err)
	}

	i.record(ctx, inv, raw, queue)
	return nil, nil
}

// ShouldRedirect reports whether inv would be published instead of executed.
func (i *Interceptor) ShouldRedirect(ctx context.Context, inv Invocation) bool {
	return !i.inDelivery(ctx) && len(inv.Args) == 1 && hasQueue(inv.Queues)
}

func (i *Interceptor) inDelivery(ctx context.Context) bool {
	if _, ok := domain.DeliveryFrom(ctx); ok {
		return true
	}
	return i.marker != "" && strings.Contains(domain.CallerFrom(ctx), i.marker)
}

func hasQueue(queues []string) bool {
	return len(queues) > 0 && strings.TrimSpace(queues[0]) != ""
}

// record writes the redirect to the journal. Journal failures are logged only.
func (i *Interceptor) record(ctx context.Context, inv Invocation, raw, queue string) {
	if i.journal == nil {
		return
	}

	payload, err := json.Marshal(inv.Args[0])
	if err != nil {
		i.log.Warn("journal: marshal payload", "handler", inv.Handler, "err", err)
		return
	}

	if err := i.journal.Record(ctx, domain.NewDispatch(inv.Handler, raw, queue, payload)); err != nil {
		i.log.Warn("journal: record dispatch", "handler", inv.Handler, "queue", queue, "err", err)
	}
}
