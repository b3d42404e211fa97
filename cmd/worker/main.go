package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/oms-lab/orderdesk/internal/config"
	"github.com/oms-lab/orderdesk/internal/logging"
	"github.com/oms-lab/orderdesk/internal/messaging"
	"github.com/oms-lab/orderdesk/internal/orders"
	"github.com/oms-lab/orderdesk/internal/telemetry"
	"github.com/oms-lab/orderdesk/internal/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load("orderdesk-worker")
	logger := logging.New(cfg.ServiceName, cfg.LogLevel)

	if cfg.PostgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}
	if len(cfg.KafkaBrokers) == 0 {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	// The consumers share this handle concurrently, so the schema rides in
	// the DSN where every pooled connection sees it.
	db, err := telemetry.OpenDB("postgres", config.WithSearchPath(cfg.PostgresURL, "orders"))
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	publisher := messaging.NewPublisher(cfg.KafkaBrokers, messaging.PublisherConfig{
		Confirms:       cfg.PublisherConfirms,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBackoff:   cfg.RetryBackoff,
		ConfirmTimeout: cfg.ConfirmTimeout,
	}, logger)
	defer func() { _ = publisher.Close() }()

	eventMetrics, err := telemetry.NewEventMetrics()
	if err != nil {
		logger.Error("failed to create event metrics", "error", err)
		os.Exit(1)
	}

	repo := orders.NewOrderRepository(db)
	service := orders.NewService(repo, publisher, logger, orders.WithEventMetrics(eventMetrics))
	registry := worker.NewRegistry(service, logger)

	dispatch := func(ctx context.Context, routingKey string, payload []byte) error {
		err := registry.Dispatch(ctx, routingKey, payload)
		eventMetrics.RecordConsumed(ctx, routingKey, err)
		return err
	}

	go serveMetrics(cfg, metricsHandler, logger)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting order worker", "brokers", cfg.KafkaBrokers, "topics", registry.Topics())

	var wg sync.WaitGroup
	for _, topic := range registry.Topics() {
		consumer := messaging.NewConsumer(cfg.KafkaBrokers, topic, cfg.ConsumerGroup, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { _ = consumer.Close() }()

			if err := consumer.Consume(ctx, dispatch); err != nil {
				if ctx.Err() == context.Canceled {
					return
				}
				logger.Error("consumer error", "topic", topic, "error", err)
				cancel()
			}
		}()
	}

	wg.Wait()
	logger.Info("all consumers stopped")
}

func serveMetrics(cfg config.Config, metricsHandler http.Handler, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info("serving worker metrics", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", "error", err)
	}
}
