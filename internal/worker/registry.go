package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oms-lab/orderdesk/internal/domain"
	"github.com/oms-lab/orderdesk/internal/orders"
)

// StatusUpdater is the slice of the order service the worker drives.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id string, target domain.OrderStatus, input orders.UpdateStatusInput) (*domain.Order, error)
}

// Registry routes inbound broker messages to their typed handlers. The
// mapping is a closed switch over the known routing keys; adding an event
// type is a compile-time change. Unknown keys are logged and dropped so new
// upstream event types do not break old workers.
//
// Each handler performs exactly one state-machine-mediated status update
// keyed by the event's order id. Handlers are idempotent under at-least-once
// delivery because same-status re-applies are no-ops in the state machine.
type Registry struct {
	service StatusUpdater
	logger  *slog.Logger
}

func NewRegistry(service StatusUpdater, logger *slog.Logger) *Registry {
	return &Registry{
		service: service,
		logger:  logger,
	}
}

// Topics lists the routing keys the worker subscribes to.
func (r *Registry) Topics() []string {
	return []string{
		domain.RoutePaymentProcessed,
		domain.RouteInventoryReserved,
		domain.RouteShippingPrepared,
		domain.RouteOrderCompleted,
		domain.RouteOrderFailed,
	}
}

func (r *Registry) Dispatch(ctx context.Context, routingKey string, payload []byte) error {
	switch routingKey {
	case domain.RoutePaymentProcessed:
		return r.handlePaymentProcessed(ctx, payload)
	case domain.RouteInventoryReserved:
		return r.handleInventoryReserved(ctx, payload)
	case domain.RouteShippingPrepared:
		return r.handleShippingPrepared(ctx, payload)
	case domain.RouteOrderCompleted:
		return r.handleOrderCompleted(ctx, payload)
	case domain.RouteOrderFailed:
		return r.handleOrderFailed(ctx, payload)
	default:
		r.logger.Warn("dropping message with unknown routing key", "routing_key", routingKey)
		return nil
	}
}

func (r *Registry) handlePaymentProcessed(ctx context.Context, payload []byte) error {
	var event domain.PaymentProcessedEvent
	if err := decodeEvent(domain.RoutePaymentProcessed, payload, &event, &event.OrderID); err != nil {
		return err
	}

	r.logger.Info("processing payment.processed", "order_id", event.OrderID, "payment_id", event.PaymentID)

	_, err := r.service.UpdateStatus(ctx, event.OrderID, domain.OrderStatusConfirmed, orders.UpdateStatusInput{
		Reason:        fmt.Sprintf("payment %s processed", event.PaymentID),
		Actor:         "payment-service",
		CorrelationID: event.CorrelationID,
		Mutate: func(o *domain.Order) {
			o.PaymentStatus = domain.PaymentStatusPaid
		},
	})
	if err != nil {
		return fmt.Errorf("confirm order %s: %w", event.OrderID, err)
	}
	return nil
}

func (r *Registry) handleInventoryReserved(ctx context.Context, payload []byte) error {
	var event domain.InventoryReservedEvent
	if err := decodeEvent(domain.RouteInventoryReserved, payload, &event, &event.OrderID); err != nil {
		return err
	}

	r.logger.Info("processing inventory.reserved", "order_id", event.OrderID, "reservation_id", event.ReservationID)

	_, err := r.service.UpdateStatus(ctx, event.OrderID, domain.OrderStatusProcessing, orders.UpdateStatusInput{
		Reason:        fmt.Sprintf("inventory reservation %s", event.ReservationID),
		Actor:         "inventory-service",
		CorrelationID: event.CorrelationID,
	})
	if err != nil {
		return fmt.Errorf("move order %s to processing: %w", event.OrderID, err)
	}
	return nil
}

func (r *Registry) handleShippingPrepared(ctx context.Context, payload []byte) error {
	var event domain.ShippingPreparedEvent
	if err := decodeEvent(domain.RouteShippingPrepared, payload, &event, &event.OrderID); err != nil {
		return err
	}

	r.logger.Info("processing shipping.prepared", "order_id", event.OrderID, "tracking_number", event.TrackingNumber)

	_, err := r.service.UpdateStatus(ctx, event.OrderID, domain.OrderStatusShipped, orders.UpdateStatusInput{
		Reason:        fmt.Sprintf("shipment %s prepared", event.ShippingID),
		Actor:         "shipping-service",
		CorrelationID: event.CorrelationID,
		Mutate: func(o *domain.Order) {
			o.ShippingStatus = domain.ShippingStatusPrepared
			o.TrackingNumber = event.TrackingNumber
		},
	})
	if err != nil {
		return fmt.Errorf("ship order %s: %w", event.OrderID, err)
	}
	return nil
}

func (r *Registry) handleOrderCompleted(ctx context.Context, payload []byte) error {
	var event domain.OrderCompletedEvent
	if err := decodeEvent(domain.RouteOrderCompleted, payload, &event, &event.OrderID); err != nil {
		return err
	}

	r.logger.Info("processing order.completed", "order_id", event.OrderID)

	_, err := r.service.UpdateStatus(ctx, event.OrderID, domain.OrderStatusDelivered, orders.UpdateStatusInput{
		Reason:        "order completed",
		Actor:         "fulfillment",
		CorrelationID: event.CorrelationID,
		Mutate: func(o *domain.Order) {
			o.ShippingStatus = domain.ShippingStatusDelivered
		},
	})
	if err != nil {
		return fmt.Errorf("deliver order %s: %w", event.OrderID, err)
	}
	return nil
}

func (r *Registry) handleOrderFailed(ctx context.Context, payload []byte) error {
	var event domain.OrderFailedEvent
	if err := decodeEvent(domain.RouteOrderFailed, payload, &event, &event.OrderID); err != nil {
		return err
	}

	r.logger.Info("processing order.failed", "order_id", event.OrderID, "reason", event.Reason)

	_, err := r.service.UpdateStatus(ctx, event.OrderID, domain.OrderStatusCancelled, orders.UpdateStatusInput{
		Reason:        event.Reason,
		Actor:         "fulfillment",
		CorrelationID: event.CorrelationID,
	})
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", event.OrderID, err)
	}
	return nil
}

// decodeEvent fails closed: both invalid JSON and a payload without an
// order id are deserialization failures, dead-lettered rather than retried.
func decodeEvent(routingKey string, payload []byte, target any, orderID *string) error {
	if err := json.Unmarshal(payload, target); err != nil {
		return &domain.DeserializationError{RoutingKey: routingKey, Err: err}
	}
	if *orderID == "" {
		return &domain.DeserializationError{RoutingKey: routingKey, Err: errors.New("missing order_id")}
	}
	return nil
}
