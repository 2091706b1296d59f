package transport

import (
	"context"
	"errors"
	"log/slog"

	"golang-mq-duplex/internal/app"
	"golang-mq-duplex/internal/domain"
	"golang-mq-duplex/internal/listener"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DispatchLister reads back journaled dispatches.
type DispatchLister interface {
	Recent(ctx context.Context, limit int) ([]domain.Dispatch, error)
}

// Handler holds all HTTP handlers of the duplex sample service.
type Handler struct {
	handlers   app.Handlers
	container  *listener.Container
	dispatches DispatchLister // nil when the journal is disabled
	log        *slog.Logger
}

// NewHandler wires up a Handler with its dependencies.
func NewHandler(handlers app.Handlers, container *listener.Container, dispatches DispatchLister, log *slog.Logger) *Handler {
	return &Handler{
		handlers:   handlers,
		container:  container,
		dispatches: dispatches,
		log:        log,
	}
}

// Register mounts all routes onto the given router.
func (h *Handler) Register(router fiber.Router) {
	router.Get("/check", h.Check)
	router.Post("/check", h.Check)

	api := router.Group("/api")
	api.Get("/handlers", h.ListHandlers)
	api.Post("/handlers/:name", h.InvokeHandler)
	api.Get("/dispatches", h.ListDispatches)
}

// RegisterMetrics exposes the Prometheus registry at /metrics.
func RegisterMetrics(router fiber.Router, gatherer prometheus.Gatherer) {
	router.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// callerName is the execution-context name of every HTTP request. It is fixed
// so no request header can make a request look like a broker delivery.
const callerName = "http"

func callerContext(c *fiber.Ctx) context.Context {
	return domain.WithCaller(c.UserContext(), callerName)
}

// ── Demo ──────────────────────────────────────────────────────────────────────

type checkRequest struct {
	Tags []string `json:"tags"`
}

var defaultTags = []string{"bar", "foo"}

// Check calls the check-some handler, which is redirected to its queue.
//
// GET|POST /check
// Body (optional): { "tags": ["...", ...] }
func (h *Handler) Check(c *fiber.Ctx) error {
	tags := defaultTags
	if len(c.Body()) > 0 {
		var req checkRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if len(req.Tags) > 0 {
			tags = req.Tags
		}
	}

	if err := h.handlers.CheckSome(callerContext(c), tags); err != nil {
		h.log.Error("check some", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(0)
}

// ── Handlers API ──────────────────────────────────────────────────────────────

// ListHandlers describes every registered handler and its queues.
//
// GET /api/handlers
func (h *Handler) ListHandlers(c *fiber.Ctx) error {
	return c.JSON(h.container.Describe())
}

// InvokeHandler calls a registered handler by name with the raw JSON body.
//
// POST /api/handlers/:name
func (h *Handler) InvokeHandler(c *fiber.Ctx) error {
	name := c.Params("name")

	err := h.container.Invoke(callerContext(c), name, c.Body())
	switch {
	case err == nil:
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"handler": name, "status": "accepted"})
	case errors.Is(err, domain.ErrUnknownHandler):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown handler"})
	case errors.Is(err, domain.ErrInvalidPayload):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	default:
		h.log.Error("invoke handler", "handler", name, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}

// ── Journal ───────────────────────────────────────────────────────────────────

type dispatchResponse struct {
	ID        string `json:"id"`
	Handler   string `json:"handler"`
	RawQueue  string `json:"raw_queue"`
	Queue     string `json:"queue"`
	Payload   any    `json:"payload"`
	CreatedAt string `json:"created_at"`
}

// ListDispatches returns the most recent journaled dispatches.
//
// GET /api/dispatches?limit=50
func (h *Handler) ListDispatches(c *fiber.Ctx) error {
	if h.dispatches == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "dispatch journal disabled"})
	}

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be between 1 and 500"})
	}

	records, err := h.dispatches.Recent(c.UserContext(), limit)
	if err != nil {
		h.log.Error("list dispatches", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	out := make([]dispatchResponse, 0, len(records))
	for _, d := range records {
		out = append(out, dispatchResponse{
			ID:        d.ID.String(),
			Handler:   d.Handler,
			RawQueue:  d.RawQueue,
			Queue:     d.Queue,
			Payload:   d.Payload,
			CreatedAt: d.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	return c.JSON(out)
}
