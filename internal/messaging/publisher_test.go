package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/oms-lab/orderdesk/internal/domain"
)

type fakeWriter struct {
	attempts int
	messages []kafka.Message
	// failures is the number of leading attempts that fail.
	failures int
	// block makes every attempt wait for the context to expire, simulating
	// a broker that never acknowledges.
	block bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.attempts++

	if w.block {
		<-ctx.Done()
		return ctx.Err()
	}

	if w.attempts <= w.failures {
		return errors.New("broker unavailable")
	}

	w.messages = append(w.messages, msgs...)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisherPublish(t *testing.T) {
	t.Run("writes serialized payload with metadata headers", func(t *testing.T) {
		writer := &fakeWriter{}
		p := newPublisher(writer, PublisherConfig{RetryAttempts: 3, RetryBackoff: time.Millisecond}, testLogger())

		payload := map[string]string{"order_id": "order-1"}
		if err := p.Publish(context.Background(), "order.created", "order-1", payload); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if writer.attempts != 1 {
			t.Fatalf("expected 1 attempt, got %d", writer.attempts)
		}
		if len(writer.messages) != 1 {
			t.Fatalf("expected 1 message, got %d", len(writer.messages))
		}

		msg := writer.messages[0]
		if msg.Topic != "order.created" {
			t.Errorf("expected topic order.created, got %s", msg.Topic)
		}
		if string(msg.Key) != "order-1" {
			t.Errorf("expected key order-1, got %s", msg.Key)
		}
		if msg.Time.IsZero() {
			t.Error("expected message timestamp to be set")
		}

		var decoded map[string]string
		if err := json.Unmarshal(msg.Value, &decoded); err != nil {
			t.Fatalf("message value is not valid JSON: %v", err)
		}
		if decoded["order_id"] != "order-1" {
			t.Errorf("unexpected payload: %v", decoded)
		}

		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		if headers["message_id"] == "" {
			t.Error("expected message_id header")
		}
		if headers["content-type"] != "application/json" {
			t.Errorf("expected content-type application/json, got %q", headers["content-type"])
		}
	})

	t.Run("retries transient failures then succeeds", func(t *testing.T) {
		writer := &fakeWriter{failures: 2}
		p := newPublisher(writer, PublisherConfig{RetryAttempts: 3, RetryBackoff: time.Millisecond}, testLogger())

		if err := p.Publish(context.Background(), "order.updated", "order-1", struct{}{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if writer.attempts != 3 {
			t.Fatalf("expected 3 attempts, got %d", writer.attempts)
		}
	})

	t.Run("exhausts retry budget and surfaces PublishError", func(t *testing.T) {
		writer := &fakeWriter{failures: 100}
		p := newPublisher(writer, PublisherConfig{RetryAttempts: 3, RetryBackoff: time.Millisecond}, testLogger())

		err := p.Publish(context.Background(), "order.created", "order-1", struct{}{})

		var pubErr *domain.PublishError
		if !errors.As(err, &pubErr) {
			t.Fatalf("expected PublishError, got %v", err)
		}
		if pubErr.RoutingKey != "order.created" {
			t.Errorf("expected routing key order.created, got %s", pubErr.RoutingKey)
		}
		if pubErr.Attempts != 3 {
			t.Errorf("expected 3 attempts in error, got %d", pubErr.Attempts)
		}
		if writer.attempts != 3 {
			t.Fatalf("expected exactly 3 attempts, got %d", writer.attempts)
		}
	})

	t.Run("unacknowledged confirms count as transient failures", func(t *testing.T) {
		writer := &fakeWriter{block: true}
		p := newPublisher(writer, PublisherConfig{
			Confirms:       true,
			RetryAttempts:  3,
			RetryBackoff:   time.Millisecond,
			ConfirmTimeout: 10 * time.Millisecond,
		}, testLogger())

		err := p.Publish(context.Background(), "order.created", "order-1", struct{}{})

		var pubErr *domain.PublishError
		if !errors.As(err, &pubErr) {
			t.Fatalf("expected PublishError, got %v", err)
		}
		if writer.attempts != 3 {
			t.Fatalf("expected 3 attempts, got %d", writer.attempts)
		}
	})

	t.Run("caller cancellation stops the retry loop", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		writer := &fakeWriter{failures: 100}
		p := newPublisher(writer, PublisherConfig{RetryAttempts: 5, RetryBackoff: time.Minute}, testLogger())

		err := p.Publish(ctx, "order.created", "order-1", struct{}{})

		var pubErr *domain.PublishError
		if !errors.As(err, &pubErr) {
			t.Fatalf("expected PublishError, got %v", err)
		}
		if writer.attempts >= 5 {
			t.Fatalf("expected retry loop to stop early, got %d attempts", writer.attempts)
		}
		if pubErr.Attempts != writer.attempts {
			t.Fatalf("error must report the attempts actually made: %d != %d", pubErr.Attempts, writer.attempts)
		}
	})

	t.Run("unserializable payload fails without a write", func(t *testing.T) {
		writer := &fakeWriter{}
		p := newPublisher(writer, PublisherConfig{}, testLogger())

		err := p.Publish(context.Background(), "order.created", "order-1", make(chan int))
		if err == nil {
			t.Fatal("expected error")
		}
		if writer.attempts != 0 {
			t.Fatalf("expected no write attempts, got %d", writer.attempts)
		}
	})
}
