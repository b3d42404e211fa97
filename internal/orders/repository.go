package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/oms-lab/orderdesk/internal/domain"
)

// ListFilter narrows and pages the order listing. Zero values mean "no
// constraint"; Page and PageSize are normalized by the repository.
type ListFilter struct {
	Status     domain.OrderStatus
	CustomerID string
	From       time.Time
	To         time.Time
	SortAsc    bool
	Page       int
	PageSize   int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (f ListFilter) normalized() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	return f
}

// Page is one page of the order listing plus paging metadata.
type Page struct {
	Orders     []domain.Order `json:"orders"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
}

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	shippingAddr, err := json.Marshal(order.ShippingAddr)
	if err != nil {
		return err
	}
	billingAddr, err := json.Marshal(order.BillingAddr)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, customer_id, status, payment_status, shipping_status,
			subtotal, tax, shipping_cost, discount, total, currency,
			shipping_address, billing_address, tracking_number,
			created_by, updated_by, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`, order.ID, order.OrderNumber, order.CustomerID, order.Status, order.PaymentStatus, order.ShippingStatus,
		order.Subtotal, order.Tax, order.ShippingCost, order.Discount, order.Total, order.Currency,
		shippingAddr, billingAddr, order.TrackingNumber,
		order.CreatedBy, order.UpdatedBy, order.Version, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, unit_price, quantity, discount, tax, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, uuid.New().String(), order.ID, item.ProductID, item.ProductName, item.UnitPrice, item.Quantity, item.Discount, item.Tax, item.LineTotal)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

const orderColumns = `
	id, order_number, customer_id, status, payment_status, shipping_status,
	subtotal, tax, shipping_cost, discount, total, currency,
	shipping_address, billing_address, tracking_number,
	created_by, updated_by, version, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	order := &domain.Order{}
	var shippingAddr, billingAddr []byte

	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.CustomerID, &order.Status, &order.PaymentStatus, &order.ShippingStatus,
		&order.Subtotal, &order.Tax, &order.ShippingCost, &order.Discount, &order.Total, &order.Currency,
		&shippingAddr, &billingAddr, &order.TrackingNumber,
		&order.CreatedBy, &order.UpdatedBy, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(shippingAddr, &order.ShippingAddr); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	if err := json.Unmarshal(billingAddr, &order.BillingAddr); err != nil {
		return nil, fmt.Errorf("decode billing address: %w", err)
	}

	return order, nil
}

// GetByID returns (nil, nil) when the order does not exist. Items are
// always loaded with the aggregate.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	order, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) GetByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber)

	order, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, order *domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, product_name, unit_price, quantity, discount, tax, line_total
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_id
	`, order.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.UnitPrice, &item.Quantity, &item.Discount, &item.Tax, &item.LineTotal); err != nil {
			return err
		}
		order.Items = append(order.Items, item)
	}

	return rows.Err()
}

// List returns one page of orders matching the filter, items included.
func (r *OrderRepository) List(ctx context.Context, filter ListFilter) (*Page, error) {
	filter = filter.normalized()

	var conditions []string
	var args []any

	addCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != "" {
		addCondition("status = $%d", filter.Status)
	}
	if filter.CustomerID != "" {
		addCondition("customer_id = $%d", filter.CustomerID)
	}
	if !filter.From.IsZero() {
		addCondition("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		addCondition("created_at <= $%d", filter.To)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&totalCount); err != nil {
		return nil, err
	}

	direction := "DESC"
	if filter.SortAsc {
		direction = "ASC"
	}

	offset := (filter.Page - 1) * filter.PageSize
	args = append(args, filter.PageSize, offset)
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at %s, id %s LIMIT $%d OFFSET $%d`,
		orderColumns, where, direction, direction, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &Page{
		Orders:     []domain.Order{},
		TotalCount: totalCount,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: (totalCount + filter.PageSize - 1) / filter.PageSize,
	}

	if len(orderIDs) == 0 {
		return page, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, unit_price, quantity, discount, tax, line_total
		FROM order_items
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.UnitPrice, &item.Quantity, &item.Discount, &item.Tax, &item.LineTotal); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	for _, id := range orderIDs {
		page.Orders = append(page.Orders, *orderMap[id])
	}

	return page, nil
}

// Update persists the mutable fields of an already-loaded order, guarded by
// the version it was read at. A concurrent write since the read surfaces as
// domain.ErrVersionConflict; the caller reloads and retries. On success the
// in-memory Version is advanced to match the row.
func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, payment_status = $2, shipping_status = $3, tracking_number = $4,
		    updated_by = $5, updated_at = $6, version = version + 1
		WHERE id = $7 AND version = $8
	`, order.Status, order.PaymentStatus, order.ShippingStatus, order.TrackingNumber,
		order.UpdatedBy, order.UpdatedAt, order.ID, order.Version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		exists, err := r.Exists(ctx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrVersionConflict
	}

	order.Version++
	return nil
}

// Delete removes the order and its items. It reports whether a row existed.
func (r *OrderRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

func (r *OrderRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
