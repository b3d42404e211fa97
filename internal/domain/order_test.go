package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderComputesTotals(t *testing.T) {
	order, err := NewOrder("cust-1", []OrderItem{
		{ProductID: "prod-1", UnitPrice: 2999, Quantity: 2},
	}, 0, 0, 0, "USD", Address{}, Address{}, "tester")
	require.NoError(t, err)

	assert.Equal(t, int64(5998), order.Subtotal)
	assert.Equal(t, int64(5998), order.Total)
	assert.Equal(t, int64(5998), order.Items[0].LineTotal)
	assert.Equal(t, OrderStatusCreated, order.Status)
	assert.Equal(t, PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, 1, order.Version)
	assert.NotEmpty(t, order.ID)
	assert.NotEmpty(t, order.OrderNumber)
}

func TestNewOrderTotalIsExactSum(t *testing.T) {
	cases := []struct {
		name                        string
		tax, shippingCost, discount int64
	}{
		{"no adjustments", 0, 0, 0},
		{"tax only", 550, 0, 0},
		{"all adjustments", 550, 999, 500},
		{"discount exceeds subtotal contribution", 0, 0, 4000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order, err := NewOrder("cust-1", []OrderItem{
				{ProductID: "prod-1", UnitPrice: 1250, Quantity: 3},
				{ProductID: "prod-2", UnitPrice: 99, Quantity: 1},
			}, tc.tax, tc.shippingCost, tc.discount, "EUR", Address{}, Address{}, "tester")
			require.NoError(t, err)

			subtotal := int64(1250*3 + 99)
			assert.Equal(t, subtotal, order.Subtotal)
			assert.Equal(t, subtotal+tc.tax+tc.shippingCost-tc.discount, order.Total)
		})
	}
}

func TestNewOrderIgnoresClientSuppliedLineTotals(t *testing.T) {
	order, err := NewOrder("cust-1", []OrderItem{
		{ProductID: "prod-1", UnitPrice: 100, Quantity: 2, LineTotal: 999999},
	}, 0, 0, 0, "USD", Address{}, Address{}, "tester")
	require.NoError(t, err)

	assert.Equal(t, int64(200), order.Items[0].LineTotal)
	assert.Equal(t, int64(200), order.Total)
}

func TestNewOrderLineTotalsIncludeItemAdjustments(t *testing.T) {
	order, err := NewOrder("cust-1", []OrderItem{
		{ProductID: "prod-1", UnitPrice: 1000, Quantity: 2, Discount: 300, Tax: 150},
	}, 0, 0, 0, "USD", Address{}, Address{}, "tester")
	require.NoError(t, err)

	// unitPrice*quantity - discount + tax
	assert.Equal(t, int64(1850), order.Items[0].LineTotal)
	// Order subtotal intentionally stays the raw price*quantity sum.
	assert.Equal(t, int64(2000), order.Subtotal)
}

func TestNewOrderValidation(t *testing.T) {
	valid := []OrderItem{{ProductID: "prod-1", UnitPrice: 100, Quantity: 1}}

	cases := []struct {
		name       string
		customerID string
		items      []OrderItem
		tax        int64
	}{
		{"empty customer", "", valid, 0},
		{"no items", "cust-1", nil, 0},
		{"negative tax", "cust-1", valid, -1},
		{"zero unit price", "cust-1", []OrderItem{{ProductID: "prod-1", UnitPrice: 0, Quantity: 1}}, 0},
		{"negative quantity", "cust-1", []OrderItem{{ProductID: "prod-1", UnitPrice: 100, Quantity: -2}}, 0},
		{"missing product id", "cust-1", []OrderItem{{UnitPrice: 100, Quantity: 1}}, 0},
		{"duplicate product", "cust-1", []OrderItem{
			{ProductID: "prod-1", UnitPrice: 100, Quantity: 1},
			{ProductID: "prod-1", UnitPrice: 200, Quantity: 1},
		}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewOrder(tc.customerID, tc.items, tc.tax, 0, 0, "USD", Address{}, Address{}, "tester")

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestNewOrderDefaultsCurrency(t *testing.T) {
	order, err := NewOrder("cust-1", []OrderItem{
		{ProductID: "prod-1", UnitPrice: 100, Quantity: 1},
	}, 0, 0, 0, "", Address{}, Address{}, "tester")
	require.NoError(t, err)

	assert.Equal(t, "USD", order.Currency)
}

func TestRecomputeTotals(t *testing.T) {
	order := &Order{
		Items: []OrderItem{
			{ProductID: "prod-1", UnitPrice: 500, Quantity: 4},
		},
		Tax:          100,
		ShippingCost: 250,
		Discount:     50,
		// Client-supplied totals must be overwritten.
		Subtotal: 1,
		Total:    1,
	}

	order.RecomputeTotals()

	assert.Equal(t, int64(2000), order.Subtotal)
	assert.Equal(t, int64(2300), order.Total)
}

func TestStatusRoutingKey(t *testing.T) {
	assert.Equal(t, RouteOrderCancelled, StatusRoutingKey(OrderStatusCancelled))
	assert.Equal(t, RouteOrderShipped, StatusRoutingKey(OrderStatusShipped))
	assert.Equal(t, RouteOrderDelivered, StatusRoutingKey(OrderStatusDelivered))
	assert.Equal(t, RouteOrderUpdated, StatusRoutingKey(OrderStatusConfirmed))
	assert.Equal(t, RouteOrderUpdated, StatusRoutingKey(OrderStatusProcessing))
}
