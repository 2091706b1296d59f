package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang-mq-duplex/internal/adapters/db/postgres"
	"golang-mq-duplex/internal/adapters/queue/memory"
	"golang-mq-duplex/internal/adapters/queue/rabbithttp"
	"golang-mq-duplex/internal/adapters/queue/rabbitmq"
	"golang-mq-duplex/internal/app"
	cfg "golang-mq-duplex/internal/config"
	"golang-mq-duplex/internal/dispatch"
	"golang-mq-duplex/internal/keys"
	"golang-mq-duplex/internal/listener"
	"golang-mq-duplex/internal/middleware"
	"golang-mq-duplex/internal/ports"
	"golang-mq-duplex/internal/transport"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const appName = "duplex-sample"

func main() {
	conf := cfg.FromEnv()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true, Level: conf.LogLevel}))
	if err := run(conf, log); err != nil {
		log.Error("application failed", "error", err)
		os.Exit(1)
	}
}

// broker bundles the publishing and consuming side of one transport.
type broker struct {
	publisher ports.Publisher
	consumer  ports.Consumer
	declare   func(queues ...string) error
	close     func()
}

func openBroker(conf cfg.Config, log *slog.Logger) (broker, error) {
	switch conf.Broker {
	case cfg.BrokerMemory:
		b := memory.NewBroker(1024, log)
		return broker{
			publisher: b,
			consumer:  b,
			declare:   func(...string) error { return nil },
			close:     b.Close,
		}, nil

	case cfg.BrokerAMQP:
		consumer, err := rabbitmq.NewConsumer(conf.AMQPURL, conf.Prefetch, log)
		if err != nil {
			return broker{}, fmt.Errorf("connect rabbitmq consumer: %w", err)
		}

		if conf.PublishVia == cfg.PublishViaHTTP {
			// Consumers declare their queues when they start.
			return broker{
				publisher: rabbithttp.New(conf.RabbitAPIURL, conf.RabbitVHost),
				consumer:  consumer,
				declare:   func(...string) error { return nil },
				close:     consumer.Close,
			}, nil
		}

		publisher, err := rabbitmq.NewPublisher(conf.AMQPURL, rabbitmq.WithAppID(appName))
		if err != nil {
			consumer.Close()
			return broker{}, fmt.Errorf("connect rabbitmq publisher: %w", err)
		}

		return broker{
			publisher: publisher,
			consumer:  consumer,
			declare:   publisher.Declare,
			close: func() {
				consumer.Close()
				publisher.Close()
			},
		}, nil

	default:
		return broker{}, fmt.Errorf("unknown broker %q", conf.Broker)
	}
}

func run(conf cfg.Config, log *slog.Logger) error {
	// ── Key resolution ───────────────────────────────────────────────────────
	props, err := cfg.LoadProperties(conf.PropertiesFile)
	if err != nil {
		return err
	}

	registry := keys.NewRegistry()
	registry.Register("app", appName)
	if host, err := os.Hostname(); err == nil {
		registry.Register("hostname", host)
	}
	resolver := keys.New(props, registry)

	// ── Adapters ─────────────────────────────────────────────────────────────
	b, err := openBroker(conf, log)
	if err != nil {
		return err
	}
	defer b.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []dispatch.Option{
		dispatch.WithLogger(log),
		dispatch.WithDeliveryMarker(conf.DeliveryMarker),
		dispatch.WithMetrics(dispatch.NewMetrics(reg)),
	}

	var dispatches transport.DispatchLister
	if conf.DatabaseURL != "" {
		journal, err := postgres.New(conf.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer journal.Close()

		opts = append(opts, dispatch.WithJournal(journal))
		dispatches = journal
	}

	// ── Handlers ─────────────────────────────────────────────────────────────
	ic := dispatch.New(b.publisher, resolver, opts...)
	container := listener.NewContainer(b.consumer, resolver, log)

	handlers, err := app.NewDemoService(log).Bind(container, ic)
	if err != nil {
		return err
	}

	queues, err := container.Queues()
	if err != nil {
		return err
	}
	if err := b.declare(queues...); err != nil {
		return err
	}

	// ── HTTP ─────────────────────────────────────────────────────────────────
	fiberApp := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           120 * time.Second,
		ServerHeader:          "",
		BodyLimit:             1 * 1024 * 1024, // 1MB
	})

	fiberApp.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	fiberApp.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} ${latency}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	fiberApp.Use(middleware.RequestID())
	fiberApp.Use(middleware.SecurityHeaders())
	fiberApp.Use(middleware.RateLimit(100, 1*time.Minute))

	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})
	transport.RegisterMetrics(fiberApp, reg)
	transport.NewHandler(handlers, container, dispatches, log).Register(fiberApp)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", conf.HTTPAddr)
		if err := fiberApp.Listen(conf.HTTPAddr); err != nil {
			errChan <- err
		}
	}()

	// Listeners must be joined before the deferred broker close.
	listenCtx, stopListeners := context.WithCancel(ctx)
	defer stopListeners()
	listenersDone := make(chan error, 1)
	go func() {
		log.Info("listeners starting", "broker", conf.Broker, "queues", queues)
		listenersDone <- container.Start(listenCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-errChan:
	case runErr = <-listenersDone:
		listenersDone = nil
		if runErr == nil {
			runErr = errors.New("listeners stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil && runErr == nil {
		runErr = errors.New("failed to shutdown gracefully: " + err.Error())
	}

	if listenersDone != nil {
		if err := stopAndWait(shutdownCtx, stopListeners, listenersDone); err != nil && runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		return runErr
	}

	log.Info(appName + " stopped gracefully")
	return nil
}

// stopAndWait cancels the listener container and blocks until its Start call
// has returned or ctx expires.
func stopAndWait(ctx context.Context, stop context.CancelFunc, done <-chan error) error {
	stop()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("listeners did not stop: %w", ctx.Err())
	}
}
