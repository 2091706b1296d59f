package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang-mq-duplex/internal/dispatch"
	"golang-mq-duplex/internal/listener"
)

// Declared queues of the demo handlers.
const (
	CheckQueue = "mytestqueue"
	AuditQueue = "${demo.audit.queue:demo.audit}"
)

// DemoService holds the handler bodies of the sample application.
type DemoService struct {
	log *slog.Logger
}

// NewDemoService wires the service with its dependencies.
func NewDemoService(log *slog.Logger) *DemoService {
	return &DemoService{log: log}
}

// CheckSome logs the received tag tuple.
func (s *DemoService) CheckSome(ctx context.Context, tags []string) error {
	s.log.WarnContext(ctx, "check here", "tags", tags)
	return nil
}

// AuditEvent is the payload of the audit handler.
type AuditEvent struct {
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	At     time.Time `json:"at"`
}

// Audit logs an audit event. Events without an action are rejected.
func (s *DemoService) Audit(ctx context.Context, ev AuditEvent) error {
	if ev.Action == "" {
		return fmt.Errorf("audit event from %q has no action", ev.Actor)
	}
	s.log.InfoContext(ctx, "audit", "actor", ev.Actor, "action", ev.Action, "at", ev.At)
	return nil
}

// Handlers are the dispatch-wrapped demo handlers. Calling them from outside
// a delivery context publishes the argument instead of running the body.
type Handlers struct {
	CheckSome func(context.Context, []string) error
	Audit     func(context.Context, AuditEvent) error
}

// Bind registers the demo handlers with the container.
func (s *DemoService) Bind(c *listener.Container, ic *dispatch.Interceptor) (Handlers, error) {
	check, err := listener.Bind(c, ic, dispatch.Spec{Name: "check-some", Queues: []string{CheckQueue}}, s.CheckSome)
	if err != nil {
		return Handlers{}, fmt.Errorf("bind check-some: %w", err)
	}

	audit, err := listener.Bind(c, ic, dispatch.Spec{Name: "audit", Queues: []string{AuditQueue}}, s.Audit)
	if err != nil {
		return Handlers{}, fmt.Errorf("bind audit: %w", err)
	}

	return Handlers{CheckSome: check, Audit: audit}, nil
}
