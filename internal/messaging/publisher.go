package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/oms-lab/orderdesk/internal/domain"
)

var publisherTracer = otel.Tracer("messaging/publisher")

// messageWriter is the slice of kafka.Writer the publisher needs. Tests
// substitute a fake to observe attempts.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// PublisherConfig controls retry and confirmation behaviour.
type PublisherConfig struct {
	// Confirms makes each attempt wait for acknowledgement from all
	// in-sync replicas, bounded by ConfirmTimeout.
	Confirms       bool
	RetryAttempts  int
	RetryBackoff   time.Duration
	ConfirmTimeout time.Duration
}

func (c PublisherConfig) withDefaults() PublisherConfig {
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 5 * time.Second
	}
	return c
}

// Publisher serializes events to JSON and writes them to the broker, one
// topic per routing key. A failed attempt is retried with exponential
// backoff; each retry is a fresh write, not a resend of a buffered message.
type Publisher struct {
	writer messageWriter
	cfg    PublisherConfig
	logger *slog.Logger
}

func NewPublisher(brokers []string, cfg PublisherConfig, logger *slog.Logger) *Publisher {
	cfg = cfg.withDefaults()

	acks := kafka.RequireOne
	if cfg.Confirms {
		acks = kafka.RequireAll
	}

	// MaxAttempts is 1 so the retry budget lives in Publish, not hidden
	// inside the writer.
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           acks,
		AllowAutoTopicCreation: true,
		MaxAttempts:            1,
		BatchTimeout:           100 * time.Millisecond,
	}

	return newPublisher(writer, cfg, logger)
}

func newPublisher(writer messageWriter, cfg PublisherConfig, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer: writer,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Publish serializes payload and writes it under routingKey, keyed by key
// for partition affinity. It blocks until the broker acknowledged the
// message or the retry budget is spent, in which case a *domain.PublishError
// is returned and the caller decides whether that is fatal.
func (p *Publisher) Publish(ctx context.Context, routingKey, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", routingKey, err)
	}

	msg := kafka.Message{
		Topic: routingKey,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "message_id", Value: []byte(uuid.New().String())},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}

	ctx, span := publisherTracer.Start(ctx, "send "+routingKey,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("send"),
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(routingKey),
			semconv.MessagingKafkaMessageKey(key),
		),
	)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, NewMessageCarrier(&msg))

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= p.cfg.RetryAttempts; attempt++ {
		attempts = attempt
		lastErr = p.writeOnce(ctx, msg)
		if lastErr == nil {
			return nil
		}

		p.logger.Warn("publish attempt failed",
			"routing_key", routingKey,
			"attempt", attempt,
			"error", lastErr,
		)

		if attempt == p.cfg.RetryAttempts {
			break
		}
		if err := p.backoff(ctx, attempt); err != nil {
			lastErr = err
			break
		}
	}

	// Attempts reflects the writes actually made; a cancelled context can
	// stop the loop before the budget is spent.
	pubErr := &domain.PublishError{RoutingKey: routingKey, Attempts: attempts, Err: lastErr}
	span.RecordError(pubErr)
	span.SetStatus(codes.Error, pubErr.Error())
	return pubErr
}

func (p *Publisher) writeOnce(ctx context.Context, msg kafka.Message) error {
	if p.cfg.Confirms {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ConfirmTimeout)
		defer cancel()
	}
	return p.writer.WriteMessages(ctx, msg)
}

// backoff sleeps for RetryBackoff doubled per completed attempt, honouring
// the caller's deadline.
func (p *Publisher) backoff(ctx context.Context, attempt int) error {
	delay := p.cfg.RetryBackoff << (attempt - 1)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Publisher) Close() error {
	if w, ok := p.writer.(*kafka.Writer); ok {
		return w.Close()
	}
	return nil
}
