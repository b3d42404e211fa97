package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type ShippingStatus string

const (
	ShippingStatusPending   ShippingStatus = "pending"
	ShippingStatusPrepared  ShippingStatus = "prepared"
	ShippingStatusDelivered ShippingStatus = "delivered"
)

// Address is a point-in-time snapshot; it is copied onto the order at
// creation and never resolved against a customer profile afterwards.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// OrderItem is a single line of an order. All monetary values are integer
// cents in the order's currency.
type OrderItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	Discount    int64  `json:"discount"`
	Tax         int64  `json:"tax"`
	LineTotal   int64  `json:"line_total"`
}

// Order is the aggregate root. Status only moves forward through the
// transition table in status.go; totals are always recomputed from the
// items, never trusted from client input.
type Order struct {
	ID             string         `json:"id"`
	OrderNumber    string         `json:"order_number"`
	CustomerID     string         `json:"customer_id"`
	Status         OrderStatus    `json:"status"`
	PaymentStatus  PaymentStatus  `json:"payment_status"`
	ShippingStatus ShippingStatus `json:"shipping_status"`
	Items          []OrderItem    `json:"items"`
	Subtotal       int64          `json:"subtotal"`
	Tax            int64          `json:"tax"`
	ShippingCost   int64          `json:"shipping_cost"`
	Discount       int64          `json:"discount"`
	Total          int64          `json:"total"`
	Currency       string         `json:"currency"`
	ShippingAddr   Address        `json:"shipping_address"`
	BillingAddr    Address        `json:"billing_address"`
	TrackingNumber string         `json:"tracking_number,omitempty"`
	CreatedBy      string         `json:"created_by,omitempty"`
	UpdatedBy      string         `json:"updated_by,omitempty"`
	Version        int            `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewOrder validates the input and builds an order in the initial status
// with server-side computed totals.
func NewOrder(customerID string, items []OrderItem, tax, shippingCost, discount int64, currency string, shippingAddr, billingAddr Address, createdBy string) (*Order, error) {
	if customerID == "" {
		return nil, &ValidationError{Field: "customer_id", Reason: "must not be empty"}
	}
	if len(items) == 0 {
		return nil, &ValidationError{Field: "items", Reason: "order must contain at least one item"}
	}
	if tax < 0 || shippingCost < 0 || discount < 0 {
		return nil, &ValidationError{Field: "amounts", Reason: "tax, shipping cost and discount must be non-negative"}
	}
	if currency == "" {
		currency = "USD"
	}

	seen := make(map[string]struct{}, len(items))
	for i := range items {
		item := &items[i]
		if item.ProductID == "" {
			return nil, &ValidationError{Field: "items", Reason: fmt.Sprintf("item %d has no product id", i)}
		}
		if _, dup := seen[item.ProductID]; dup {
			return nil, &ValidationError{Field: "items", Reason: fmt.Sprintf("duplicate product %s", item.ProductID)}
		}
		seen[item.ProductID] = struct{}{}
		if item.UnitPrice <= 0 {
			return nil, &ValidationError{Field: "items", Reason: fmt.Sprintf("item %s unit price must be positive", item.ProductID)}
		}
		if item.Quantity <= 0 {
			return nil, &ValidationError{Field: "items", Reason: fmt.Sprintf("item %s quantity must be positive", item.ProductID)}
		}
		if item.Discount < 0 || item.Tax < 0 {
			return nil, &ValidationError{Field: "items", Reason: fmt.Sprintf("item %s discount and tax must be non-negative", item.ProductID)}
		}
		item.LineTotal = item.UnitPrice*int64(item.Quantity) - item.Discount + item.Tax
	}

	now := time.Now().UTC()
	order := &Order{
		ID:             uuid.New().String(),
		OrderNumber:    newOrderNumber(now),
		CustomerID:     customerID,
		Status:         OrderStatusCreated,
		PaymentStatus:  PaymentStatusPending,
		ShippingStatus: ShippingStatusPending,
		Items:          items,
		Tax:            tax,
		ShippingCost:   shippingCost,
		Discount:       discount,
		Currency:       currency,
		ShippingAddr:   shippingAddr,
		BillingAddr:    billingAddr,
		CreatedBy:      createdBy,
		UpdatedBy:      createdBy,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	order.RecomputeTotals()

	return order, nil
}

// RecomputeTotals derives subtotal and total from the items and the
// order-level amounts. Total = subtotal + tax + shipping - discount.
func (o *Order) RecomputeTotals() {
	var subtotal int64
	for _, item := range o.Items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}
	o.Subtotal = subtotal
	o.Total = subtotal + o.Tax + o.ShippingCost - o.Discount
}

// newOrderNumber derives the human-facing order number. The uuid suffix
// keeps it unique without a database sequence round-trip.
func newOrderNumber(t time.Time) string {
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("ORD-%s-%s", t.Format("20060102"), suffix)
}
