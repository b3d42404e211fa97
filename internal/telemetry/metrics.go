package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitMeterProvider sets the global meter provider backed by the Prometheus
// exporter. It returns the handler for the /metrics endpoint and a shutdown
// function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	return promhttp.Handler(), mp.Shutdown, nil
}

// EventMetrics counts outbound publishes and inbound event handling,
// partitioned by routing key and outcome.
type EventMetrics struct {
	published metric.Int64Counter
	consumed  metric.Int64Counter
}

func NewEventMetrics() (*EventMetrics, error) {
	meter := otel.Meter("orderdesk/events")

	published, err := meter.Int64Counter("orderdesk.events.published",
		metric.WithDescription("Domain events published to the broker."),
	)
	if err != nil {
		return nil, err
	}

	consumed, err := meter.Int64Counter("orderdesk.events.consumed",
		metric.WithDescription("Inbound broker events handled by the worker."),
	)
	if err != nil {
		return nil, err
	}

	return &EventMetrics{published: published, consumed: consumed}, nil
}

func (m *EventMetrics) RecordPublished(ctx context.Context, routingKey string, err error) {
	m.published.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("routing_key", routingKey),
			attribute.Bool("success", err == nil),
		),
	)
}

func (m *EventMetrics) RecordConsumed(ctx context.Context, routingKey string, err error) {
	m.consumed.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("routing_key", routingKey),
			attribute.Bool("success", err == nil),
		),
	)
}
