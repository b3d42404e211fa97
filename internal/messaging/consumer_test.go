package messaging

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/oms-lab/orderdesk/internal/domain"
)

var errDrained = errors.New("no more messages")

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(_ context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, errDrained
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func messageAt(offset int64) kafka.Message {
	return kafka.Message{Offset: offset, Value: []byte(fmt.Sprintf(`{"offset": %d}`, offset))}
}

func TestConsumerConsume(t *testing.T) {
	t.Run("commits handled messages in order", func(t *testing.T) {
		reader := &fakeReader{msgs: []kafka.Message{messageAt(0), messageAt(1)}}
		c := newConsumer(reader, "payment.processed", "orderdesk-worker", testLogger())

		var handled []int64
		err := c.Consume(context.Background(), func(_ context.Context, _ string, _ []byte) error {
			handled = append(handled, int64(len(handled)))
			return nil
		})
		if !errors.Is(err, errDrained) {
			t.Fatalf("expected drained reader error, got %v", err)
		}

		if len(handled) != 2 {
			t.Fatalf("expected 2 handled messages, got %d", len(handled))
		}
		if len(reader.committed) != 2 || reader.committed[0] != 0 || reader.committed[1] != 1 {
			t.Fatalf("unexpected commits: %v", reader.committed)
		}
	})

	t.Run("malformed payload is committed and the loop continues", func(t *testing.T) {
		reader := &fakeReader{msgs: []kafka.Message{messageAt(0), messageAt(1)}}
		c := newConsumer(reader, "payment.processed", "orderdesk-worker", testLogger())

		var calls int
		err := c.Consume(context.Background(), func(_ context.Context, routingKey string, _ []byte) error {
			calls++
			if calls == 1 {
				return &domain.DeserializationError{RoutingKey: routingKey, Err: errors.New("bad json")}
			}
			return nil
		})
		if !errors.Is(err, errDrained) {
			t.Fatalf("expected drained reader error, got %v", err)
		}

		if calls != 2 {
			t.Fatalf("expected both messages handled, got %d", calls)
		}
		if len(reader.committed) != 2 {
			t.Fatalf("malformed message must be committed, got commits %v", reader.committed)
		}
	})

	t.Run("stale transition is committed and the loop continues", func(t *testing.T) {
		reader := &fakeReader{msgs: []kafka.Message{messageAt(0), messageAt(1)}}
		c := newConsumer(reader, "payment.processed", "orderdesk-worker", testLogger())

		var calls int
		err := c.Consume(context.Background(), func(_ context.Context, _ string, _ []byte) error {
			calls++
			if calls == 1 {
				return fmt.Errorf("confirm order: %w", &domain.InvalidTransitionError{
					From: domain.OrderStatusProcessing,
					To:   domain.OrderStatusConfirmed,
				})
			}
			return nil
		})
		if !errors.Is(err, errDrained) {
			t.Fatalf("expected drained reader error, got %v", err)
		}

		if calls != 2 {
			t.Fatalf("a rejected transition must not wedge the topic, got %d calls", calls)
		}
		if len(reader.committed) != 2 {
			t.Fatalf("stale message must be committed, got commits %v", reader.committed)
		}
	})

	t.Run("transient failure aborts without committing", func(t *testing.T) {
		reader := &fakeReader{msgs: []kafka.Message{messageAt(0), messageAt(1)}}
		c := newConsumer(reader, "payment.processed", "orderdesk-worker", testLogger())

		handlerErr := errors.New("database unavailable")
		err := c.Consume(context.Background(), func(_ context.Context, _ string, _ []byte) error {
			return handlerErr
		})
		if !errors.Is(err, handlerErr) {
			t.Fatalf("expected handler error to surface, got %v", err)
		}

		if len(reader.committed) != 0 {
			t.Fatalf("failed message must not be committed, got commits %v", reader.committed)
		}
		if len(reader.msgs) != 1 {
			t.Fatalf("loop must stop at the failed message, %d left", len(reader.msgs))
		}
	})

	t.Run("close closes the reader", func(t *testing.T) {
		reader := &fakeReader{}
		c := newConsumer(reader, "payment.processed", "orderdesk-worker", testLogger())

		if err := c.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reader.closed {
			t.Fatal("reader must be closed")
		}
	})
}
