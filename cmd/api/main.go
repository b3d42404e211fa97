package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/oms-lab/orderdesk/internal/config"
	"github.com/oms-lab/orderdesk/internal/logging"
	"github.com/oms-lab/orderdesk/internal/messaging"
	"github.com/oms-lab/orderdesk/internal/orders"
	"github.com/oms-lab/orderdesk/internal/telemetry"
)

func main() {
	ctx := context.Background()
	cfg := config.Load("orderdesk-api")
	logger := logging.New(cfg.ServiceName, cfg.LogLevel)

	if cfg.PostgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	// The schema rides in the DSN so every pooled connection sees it.
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

	var publisher *messaging.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = messaging.NewPublisher(cfg.KafkaBrokers, messaging.PublisherConfig{
			Confirms:       cfg.PublisherConfirms,
			RetryAttempts:  cfg.RetryAttempts,
			RetryBackoff:   cfg.RetryBackoff,
			ConfirmTimeout: cfg.ConfirmTimeout,
		}, logger)
		defer func() { _ = publisher.Close() }()
	}

	eventMetrics, err := telemetry.NewEventMetrics()
	if err != nil {
		logger.Error("failed to create event metrics", "error", err)
		os.Exit(1)
	}

	repo := orders.NewOrderRepository(db)

	var service *orders.Service
	if publisher != nil {
		service = orders.NewService(repo, publisher, logger, orders.WithEventMetrics(eventMetrics))
	} else {
		logger.Warn("KAFKA_BROKERS not set, events will not be published")
		service = orders.NewService(repo, nil, logger)
	}

	handler := orders.NewHandler(service, db, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(handler.HandleCreate))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(handler.HandleList))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(handler.HandleGet))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(handler.HandleUpdateStatus))
	mux.HandleFunc("DELETE /orders/{id}", telemetry.WithHTTPRoute(handler.HandleDelete))
	mux.HandleFunc("GET /healthz", handler.HandleHealthz)
	mux.HandleFunc("GET /readyz", handler.HandleReadyz)
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, cfg.ServiceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting order service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
