package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oms-lab/orderdesk/internal/domain"
)

// Repository is the slice of the persistence layer the service needs.
type Repository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) (*Page, error)
	Update(ctx context.Context, order *domain.Order) error
	Delete(ctx context.Context, id string) (bool, error)
}

// Publisher emits domain events to the broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey, key string, payload any) error
}

// EventMetrics observes publish outcomes. telemetry.EventMetrics satisfies it.
type EventMetrics interface {
	RecordPublished(ctx context.Context, routingKey string, err error)
}

// updateRetries bounds how often a status update is replayed after losing
// a version race against a concurrent writer.
const updateRetries = 3

// Service orchestrates repository, state machine and publisher. Events are
// published after the write committed; a publish failure is logged and never
// rolls back the write, so downstream consumers must tolerate missed events.
type Service struct {
	repo      Repository
	publisher Publisher
	metrics   EventMetrics
	logger    *slog.Logger
}

type ServiceOption func(*Service)

func WithEventMetrics(metrics EventMetrics) ServiceOption {
	return func(s *Service) {
		s.metrics = metrics
	}
}

func NewService(repo Repository, publisher Publisher, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateOrderInput struct {
	CustomerID    string
	Items         []domain.OrderItem
	Tax           int64
	ShippingCost  int64
	Discount      int64
	Currency      string
	ShippingAddr  domain.Address
	BillingAddr   domain.Address
	Actor         string
	CorrelationID string
}

func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	order, err := domain.NewOrder(input.CustomerID, input.Items, input.Tax, input.ShippingCost, input.Discount,
		input.Currency, input.ShippingAddr, input.BillingAddr, input.Actor)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	s.publishEvent(ctx, domain.RouteOrderCreated, order.ID, domain.OrderCreatedEvent{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		Status:        order.Status,
		Items:         order.Items,
		Total:         order.Total,
		Currency:      order.Currency,
		Actor:         input.Actor,
		CorrelationID: correlationID(input.CorrelationID),
		Timestamp:     order.CreatedAt,
	})

	s.logger.Info("order created", "order_id", order.ID, "order_number", order.OrderNumber, "customer_id", order.CustomerID)
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, filter ListFilter) (*Page, error) {
	return s.repo.List(ctx, filter)
}

// UpdateStatusInput carries everything beyond the target status. Mutate, if
// set, is applied to the loaded order after a successful transition and
// before the write; worker handlers use it to stamp payment state or a
// tracking number in the same update.
type UpdateStatusInput struct {
	Reason        string
	Actor         string
	CorrelationID string
	Mutate        func(*domain.Order)
}

// UpdateStatus loads the order, runs the state machine and persists the
// result under the optimistic-concurrency guard, replaying the transition on
// a version conflict. An idempotent terminal re-apply returns the unchanged
// order without a write or an event.
func (s *Service) UpdateStatus(ctx context.Context, id string, target domain.OrderStatus, input UpdateStatusInput) (*domain.Order, error) {
	var lastErr error

	for attempt := 0; attempt < updateRetries; attempt++ {
		order, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return nil, domain.ErrNotFound
		}

		previous := order.Status
		changed, err := order.Transition(target, input.Actor)
		if err != nil {
			return nil, err
		}
		if !changed {
			s.logger.Info("status already applied", "order_id", order.ID, "status", order.Status)
			return order, nil
		}

		if input.Mutate != nil {
			input.Mutate(order)
		}

		if err := s.repo.Update(ctx, order); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("persist status update: %w", err)
		}

		s.publishEvent(ctx, domain.StatusRoutingKey(target), order.ID, domain.OrderStatusChangedEvent{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			CustomerID:     order.CustomerID,
			PreviousStatus: previous,
			NewStatus:      order.Status,
			Reason:         input.Reason,
			Actor:          input.Actor,
			CorrelationID:  correlationID(input.CorrelationID),
			Timestamp:      order.UpdatedAt,
		})

		s.logger.Info("order status updated",
			"order_id", order.ID,
			"previous_status", previous,
			"new_status", order.Status,
		)
		return order, nil
	}

	return nil, fmt.Errorf("status update lost %d version races: %w", updateRetries, lastErr)
}

// DeleteOrder removes the order and emits order.deleted. A missing order is
// reported as (false, nil), not an error.
func (s *Service) DeleteOrder(ctx context.Context, id, actor, corrID string) (bool, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, nil
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	s.publishEvent(ctx, domain.RouteOrderDeleted, order.ID, domain.OrderDeletedEvent{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		Status:        order.Status,
		Actor:         actor,
		CorrelationID: correlationID(corrID),
		Timestamp:     time.Now().UTC(),
	})

	s.logger.Info("order deleted", "order_id", order.ID, "order_number", order.OrderNumber)
	return true, nil
}

// publishEvent is best-effort across all outbound event types: the write
// already committed, so a broker failure is logged and the request still
// succeeds. There is no outbox; consumers reconcile missed events out of
// band.
func (s *Service) publishEvent(ctx context.Context, routingKey, key string, payload any) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, routingKey, key, payload)
	if s.metrics != nil {
		s.metrics.RecordPublished(ctx, routingKey, err)
	}
	if err != nil {
		s.logger.Error("failed to publish event", "routing_key", routingKey, "order_id", key, "error", err)
	}
}

func correlationID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}
