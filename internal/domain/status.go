package domain

import "time"

// OrderStatus is the lifecycle state of an order.
//
//	created -> confirmed -> processing -> shipped -> delivered
//
// cancelled and refunded are reachable from any non-terminal state.
// delivered, cancelled and refunded are terminal.
type OrderStatus string

const (
	OrderStatusCreated    OrderStatus = "created"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// statusTransitions is the fixed edge table. A target absent from the
// current status's set is an invalid move.
var statusTransitions = map[OrderStatus]map[OrderStatus]struct{}{
	OrderStatusCreated: {
		OrderStatusConfirmed: {},
		OrderStatusCancelled: {},
		OrderStatusRefunded:  {},
	},
	OrderStatusConfirmed: {
		OrderStatusProcessing: {},
		OrderStatusCancelled:  {},
		OrderStatusRefunded:   {},
	},
	OrderStatusProcessing: {
		OrderStatusShipped:   {},
		OrderStatusCancelled: {},
		OrderStatusRefunded:  {},
	},
	OrderStatusShipped: {
		OrderStatusDelivered: {},
		OrderStatusCancelled: {},
		OrderStatusRefunded:  {},
	},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
	OrderStatusRefunded:  {},
}

func (s OrderStatus) String() string {
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// Terminal reports whether no further transition is defined from s.
func (s OrderStatus) Terminal() bool {
	targets, ok := statusTransitions[s]
	return ok && len(targets) == 0
}

// CanTransitionTo reports whether the edge s -> target is in the table.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	_, ok := statusTransitions[s][target]
	return ok
}

// Transition applies target to the order. On success it updates Status,
// UpdatedBy and UpdatedAt and returns true when a mutation happened.
// Re-applying the current status, terminal or not, is a no-op success so
// that redelivered broker messages cannot corrupt state. On an invalid edge
// the order is left unmodified and an *InvalidTransitionError is returned.
//
// Transition neither persists nor publishes; that is the caller's job.
func (o *Order) Transition(target OrderStatus, actor string) (bool, error) {
	if !target.Valid() {
		return false, &InvalidTransitionError{From: o.Status, To: target}
	}

	if o.Status == target {
		return false, nil
	}

	if !o.Status.CanTransitionTo(target) {
		return false, &InvalidTransitionError{From: o.Status, To: target}
	}

	o.Status = target
	if actor != "" {
		o.UpdatedBy = actor
	}
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}
