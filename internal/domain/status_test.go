package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusCreated,
		OrderStatusConfirmed,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
		OrderStatusRefunded,
	}
}

// validEdges mirrors the intended lifecycle independently of the
// implementation's table.
var validEdges = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:    {OrderStatusConfirmed, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

func isValidEdge(from, to OrderStatus) bool {
	for _, target := range validEdges[from] {
		if target == to {
			return true
		}
	}
	return false
}

func orderInStatus(t *testing.T, status OrderStatus) *Order {
	t.Helper()

	order, err := NewOrder("cust-1", []OrderItem{
		{ProductID: "prod-1", UnitPrice: 2999, Quantity: 2},
	}, 0, 0, 0, "USD", Address{}, Address{}, "test")
	require.NoError(t, err)

	order.Status = status
	return order
}

func TestTransitionTable(t *testing.T) {
	for _, from := range allStatuses() {
		for _, to := range allStatuses() {
			from, to := from, to
			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				order := orderInStatus(t, from)
				before := *order

				changed, err := order.Transition(to, "tester")

				switch {
				case from == to:
					// Idempotent re-apply, terminal or not.
					require.NoError(t, err)
					assert.False(t, changed)
					assert.Equal(t, before, *order)

				case isValidEdge(from, to):
					require.NoError(t, err)
					assert.True(t, changed)
					assert.Equal(t, to, order.Status)
					assert.True(t, order.UpdatedAt.After(before.UpdatedAt) || order.UpdatedAt.Equal(before.UpdatedAt))

				default:
					var transitionErr *InvalidTransitionError
					require.ErrorAs(t, err, &transitionErr)
					assert.Equal(t, from, transitionErr.From)
					assert.Equal(t, to, transitionErr.To)
					assert.Equal(t, before, *order, "order must be unmodified after a rejected transition")
				}
			})
		}
	}
}

func TestTransitionUnknownTarget(t *testing.T) {
	order := orderInStatus(t, OrderStatusCreated)
	before := *order

	changed, err := order.Transition(OrderStatus("bogus"), "tester")

	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.False(t, changed)
	assert.Equal(t, before, *order)
}

func TestSameStatusReapplyIsNoOp(t *testing.T) {
	for _, status := range allStatuses() {
		t.Run(string(status), func(t *testing.T) {
			order := orderInStatus(t, status)
			stamp := order.UpdatedAt

			changed, err := order.Transition(status, "redelivery")
			require.NoError(t, err)
			assert.False(t, changed)
			assert.Equal(t, status, order.Status)
			assert.Equal(t, stamp, order.UpdatedAt, "no-op must not touch the timestamp")
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, OrderStatusCreated.Terminal())
	assert.False(t, OrderStatusShipped.Terminal())
	assert.True(t, OrderStatusDelivered.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.True(t, OrderStatusRefunded.Terminal())
	assert.False(t, OrderStatus("bogus").Terminal())
}

func TestTransitionStampsActorAndTime(t *testing.T) {
	order := orderInStatus(t, OrderStatusCreated)
	order.UpdatedAt = time.Now().UTC().Add(-time.Hour)

	changed, err := order.Transition(OrderStatusConfirmed, "payment-service")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "payment-service", order.UpdatedBy)
	assert.WithinDuration(t, time.Now().UTC(), order.UpdatedAt, time.Minute)
}
