package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-api/internal/domain/order"
)

const (
	orderColumns = `id, order_number, user_id, customer_email, customer_name, items,
		subtotal, discount, tax, shipping, total, coupon_code, status, payment_status,
		shipping_address, billing_address, tracking_number, notes,
		cancel_reason, cancelled_by, cancelled_at, created_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	updateOrderSQL = `UPDATE orders SET status = $2, payment_status = $3, tracking_number = $4,
		cancel_reason = $5, cancelled_by = $6, cancelled_at = $7
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL, for
// reads outside of transactions.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return fetchOrder(ctx, r.pool, getOrderSQL, id)
}

// orderTxStore implements order.TxStore on an open transaction.
type orderTxStore struct {
	tx pgx.Tx
}

var _ order.TxStore = (*orderTxStore)(nil)

// Create persists a new order. Items and addresses are serialized to JSONB.
func (s *orderTxStore) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	shippingJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}
	var billingJSON []byte
	if o.BillingAddress != nil {
		billingJSON, err = json.Marshal(o.BillingAddress)
		if err != nil {
			return fmt.Errorf("marshaling billing address: %w", err)
		}
	}

	var (
		cancelReason, cancelledBy *string
		cancelledAt               *time.Time
	)
	if o.Cancelled != nil {
		cancelReason = &o.Cancelled.Reason
		cancelledBy = &o.Cancelled.Actor
		cancelledAt = &o.Cancelled.At
	}

	_, err = s.tx.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.UserID, o.CustomerEmail, o.CustomerName, itemsJSON,
		o.Subtotal, o.Discount, o.Tax, o.Shipping, o.Total, o.CouponCode,
		string(o.Status), string(o.PaymentStatus),
		shippingJSON, billingJSON, o.TrackingNumber, o.Notes,
		cancelReason, cancelledBy, cancelledAt, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetForUpdate reads the order with a FOR UPDATE row lock.
func (s *orderTxStore) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return fetchOrder(ctx, s.tx, getOrderForUpdateSQL, id)
}

// Update persists the mutable fields: status, payment status, tracking, and
// cancellation metadata. Totals and items are immutable after creation.
func (s *orderTxStore) Update(ctx context.Context, o *order.Order) error {
	var (
		cancelReason, cancelledBy *string
		cancelledAt               *time.Time
	)
	if o.Cancelled != nil {
		cancelReason = &o.Cancelled.Reason
		cancelledBy = &o.Cancelled.Actor
		cancelledAt = &o.Cancelled.At
	}

	ct, err := s.tx.Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), string(o.PaymentStatus), o.TrackingNumber,
		cancelReason, cancelledBy, cancelledAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func fetchOrder(ctx context.Context, q querier, sql, id string) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                         order.Order
		status, paymentStatus     string
		itemsJSON, shippingJSON   []byte
		billingJSON               []byte
		cancelReason, cancelledBy *string
		cancelledAt               *time.Time
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.CustomerEmail, &o.CustomerName, &itemsJSON,
		&o.Subtotal, &o.Discount, &o.Tax, &o.Shipping, &o.Total, &o.CouponCode,
		&status, &paymentStatus,
		&shippingJSON, &billingJSON, &o.TrackingNumber, &o.Notes,
		&cancelReason, &cancelledBy, &cancelledAt, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}

	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(shippingJSON, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	if len(billingJSON) > 0 {
		o.BillingAddress = &order.Address{}
		if err := json.Unmarshal(billingJSON, o.BillingAddress); err != nil {
			return o, fmt.Errorf("unmarshaling billing address: %w", err)
		}
	}
	if cancelledAt != nil {
		o.Cancelled = &order.Cancellation{At: *cancelledAt}
		if cancelReason != nil {
			o.Cancelled.Reason = *cancelReason
		}
		if cancelledBy != nil {
			o.Cancelled.Actor = *cancelledBy
		}
	}
	return o, nil
}
