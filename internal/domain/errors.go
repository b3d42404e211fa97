package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an order does not exist in the store.
	ErrNotFound = errors.New("order not found")

	// ErrVersionConflict is returned when a guarded update lost the race
	// against a concurrent writer. Callers reload and retry a bounded
	// number of times.
	ErrVersionConflict = errors.New("order version conflict")
)

// ValidationError rejects bad client input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError is returned by the status state machine when the
// requested move is not in the transition table. The order is left unmodified.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %q to %q", e.From, e.To)
}

// PublishError is returned after the publisher exhausted its retry budget.
// Whether it is fatal is the caller's decision, not the publisher's.
type PublishError struct {
	RoutingKey string
	Attempts   int
	Err        error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s failed after %d attempts: %v", e.RoutingKey, e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// DeserializationError marks an inbound message whose payload could not be
// decoded into the expected event shape. It is dead-lettered, not retried.
type DeserializationError struct {
	RoutingKey string
	Err        error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("cannot decode %s payload: %v", e.RoutingKey, e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}
