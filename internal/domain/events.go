package domain

import "time"

// Outbound routing keys. Status changes route to the dedicated key for
// cancelled/shipped/delivered and to RouteOrderUpdated otherwise.
const (
	RouteOrderCreated   = "order.created"
	RouteOrderUpdated   = "order.updated"
	RouteOrderCancelled = "order.cancelled"
	RouteOrderShipped   = "order.shipped"
	RouteOrderDelivered = "order.delivered"
	RouteOrderDeleted   = "order.deleted"
)

// Inbound routing keys consumed by the worker.
const (
	RoutePaymentProcessed  = "payment.processed"
	RouteInventoryReserved = "inventory.reserved"
	RouteShippingPrepared  = "shipping.prepared"
	RouteOrderCompleted    = "order.completed"
	RouteOrderFailed       = "order.failed"
)

// StatusRoutingKey maps a new order status to the outbound routing key for
// its status-changed event.
func StatusRoutingKey(status OrderStatus) string {
	switch status {
	case OrderStatusCancelled:
		return RouteOrderCancelled
	case OrderStatusShipped:
		return RouteOrderShipped
	case OrderStatusDelivered:
		return RouteOrderDelivered
	default:
		return RouteOrderUpdated
	}
}

// OrderCreatedEvent is the outbound snapshot emitted after an order is
// persisted. Events are built at mutation time and never mutated afterwards.
type OrderCreatedEvent struct {
	OrderID       string      `json:"order_id"`
	OrderNumber   string      `json:"order_number"`
	CustomerID    string      `json:"customer_id"`
	Status        OrderStatus `json:"status"`
	Items         []OrderItem `json:"items"`
	Total         int64       `json:"total"`
	Currency      string      `json:"currency"`
	Actor         string      `json:"actor,omitempty"`
	CorrelationID string      `json:"correlation_id"`
	Timestamp     time.Time   `json:"timestamp"`
}

type OrderStatusChangedEvent struct {
	OrderID        string      `json:"order_id"`
	OrderNumber    string      `json:"order_number"`
	CustomerID     string      `json:"customer_id"`
	PreviousStatus OrderStatus `json:"previous_status"`
	NewStatus      OrderStatus `json:"new_status"`
	Reason         string      `json:"reason,omitempty"`
	Actor          string      `json:"actor,omitempty"`
	CorrelationID  string      `json:"correlation_id"`
	Timestamp      time.Time   `json:"timestamp"`
}

type OrderDeletedEvent struct {
	OrderID       string      `json:"order_id"`
	OrderNumber   string      `json:"order_number"`
	CustomerID    string      `json:"customer_id"`
	Status        OrderStatus `json:"status"`
	Actor         string      `json:"actor,omitempty"`
	CorrelationID string      `json:"correlation_id"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Inbound event payloads, one per routing key in the worker's registry.

type PaymentProcessedEvent struct {
	OrderID       string    `json:"order_id"`
	CorrelationID string    `json:"correlation_id"`
	PaymentID     string    `json:"payment_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	ProcessedAt   time.Time `json:"processed_at"`
}

type InventoryReservedEvent struct {
	OrderID       string    `json:"order_id"`
	CorrelationID string    `json:"correlation_id"`
	ReservationID string    `json:"reservation_id"`
	ReservedAt    time.Time `json:"reserved_at"`
}

type ShippingPreparedEvent struct {
	OrderID        string    `json:"order_id"`
	CorrelationID  string    `json:"correlation_id"`
	ShippingID     string    `json:"shipping_id"`
	TrackingNumber string    `json:"tracking_number"`
	PreparedAt     time.Time `json:"prepared_at"`
}

type OrderCompletedEvent struct {
	OrderID       string    `json:"order_id"`
	CorrelationID string    `json:"correlation_id"`
	CompletedAt   time.Time `json:"completed_at"`
}

type OrderFailedEvent struct {
	OrderID       string    `json:"order_id"`
	CorrelationID string    `json:"correlation_id"`
	Reason        string    `json:"reason"`
	FailedAt      time.Time `json:"failed_at"`
}
