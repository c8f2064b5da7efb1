package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the fulfillment state of an order. Transitions are forward-only;
// see CanTransitionTo.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusShipped, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// PaymentStatus tracks the payment lifecycle independently of fulfillment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:  {PaymentPaid, PaymentFailed},
	PaymentFailed:   {PaymentPaid},
	PaymentPaid:     {PaymentRefunded},
	PaymentRefunded: {},
}

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	_, ok := paymentTransitions[p]
	return ok
}

// CanTransitionTo reports whether moving from p to next is allowed.
func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, t := range paymentTransitions[p] {
		if t == next {
			return true
		}
	}
	return false
}

// Address is a postal address stored on the order.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Item is one order line. Name and UnitPrice are snapshotted at order time
// so history stays stable if the product later changes or is deleted.
type Item struct {
	ProductID string          `json:"productId"`
	VariantID string          `json:"variantId,omitempty"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Cancellation records who cancelled an order, why, and when.
type Cancellation struct {
	Reason string
	Actor  string
	At     time.Time
}

// Order is a placed customer order. Totals are derived at placement and
// immutable afterwards; only status, payment status, tracking, and
// cancellation metadata change post-creation.
type Order struct {
	ID              string
	Number          string
	UserID          string
	CustomerEmail   string
	CustomerName    string
	Items           []Item
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Tax             decimal.Decimal
	Shipping        decimal.Decimal
	Total           decimal.Decimal
	CouponCode      string
	Status          Status
	PaymentStatus   PaymentStatus
	ShippingAddress Address
	BillingAddress  *Address
	TrackingNumber  string
	Notes           string
	Cancelled       *Cancellation
	CreatedAt       time.Time
}

// Sentinel errors for order operations.
var (
	ErrNotFound         = errors.New("order not found")
	ErrEmptyItems       = errors.New("items required")
	ErrCustomerRequired = errors.New("customer email required")
	ErrInvalidStatus    = errors.New("unknown status value")

	// ErrConcurrencyConflict is surfaced after the transaction retry budget
	// is exhausted. It is retryable from the caller's point of view.
	ErrConcurrencyConflict = errors.New("concurrent modification, retries exhausted")
)

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// InvalidTransitionError indicates a disallowed status change.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// InvalidPaymentTransitionError indicates a disallowed payment status change.
type InvalidPaymentTransitionError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *InvalidPaymentTransitionError) Error() string {
	return fmt.Sprintf("cannot transition payment from %s to %s", e.From, e.To)
}

// Repository provides order reads outside of transactions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
}

// TxStore provides order persistence inside a transaction.
type TxStore interface {
	Create(ctx context.Context, o *Order) error
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order) error
}
