package coupon

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
	// DiscountFreeShipping zeroes the shipping fee instead of reducing the subtotal.
	DiscountFreeShipping DiscountType = "free_shipping"
)

// ErrInvalidCoupon is returned when a coupon code is not found or inactive.
var ErrInvalidCoupon = errors.New("invalid coupon code")

// RejectionError carries a machine-readable code for a coupon that exists
// but cannot be applied to the current order.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string { return e.Message }

// Rejection reasons, checked in this order by Eligible.
var (
	ErrNotStarted            = &RejectionError{Code: "COUPON_NOT_STARTED", Message: "coupon is not active yet"}
	ErrExpired               = &RejectionError{Code: "COUPON_EXPIRED", Message: "coupon has expired"}
	ErrLimitReached          = &RejectionError{Code: "COUPON_LIMIT_REACHED", Message: "coupon usage limit reached"}
	ErrUserLimitReached      = &RejectionError{Code: "USER_LIMIT_REACHED", Message: "coupon usage limit for this user reached"}
	ErrMinimumNotMet         = &RejectionError{Code: "MINIMUM_NOT_MET", Message: "order total below coupon minimum"}
	ErrCategoryNotApplicable = &RejectionError{Code: "CATEGORY_NOT_APPLICABLE", Message: "coupon does not apply to these categories"}
	ErrProductNotApplicable  = &RejectionError{Code: "PRODUCT_NOT_APPLICABLE", Message: "coupon does not apply to these products"}
)

// Coupon defines a discount and its eligibility constraints. Uses is the
// global redemption counter; it only moves forward and is mutated solely by
// successful redemption.
type Coupon struct {
	ID             string
	Code           string
	Type           DiscountType
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	MaxDiscount    decimal.Decimal
	MaxUses        int
	MaxUsesPerUser int
	Uses           int
	Categories     []string
	ProductIDs     []string
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	Active         bool
}

// DiscountFor returns the monetary discount this coupon grants on the given
// subtotal: percentage discounts are capped at MaxDiscount (when set) and at
// the subtotal, fixed discounts at the subtotal, and free-shipping coupons
// grant no subtotal discount at all.
func (c *Coupon) DiscountFor(subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.Type {
	case DiscountPercentage:
		amount = subtotal.Mul(c.Value).Div(decimal.NewFromInt(100))
		if c.MaxDiscount.IsPositive() {
			amount = decimal.Min(amount, c.MaxDiscount)
		}
	case DiscountFixed:
		amount = c.Value
	case DiscountFreeShipping:
		return decimal.Zero
	default:
		return decimal.Zero
	}

	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}

// Usage is an append-only record of one redemption. It is never mutated
// after creation, not even when the order is later cancelled.
type Usage struct {
	ID        string
	CouponID  string
	OrderID   string
	UserID    string
	Discount  decimal.Decimal
	CreatedAt time.Time
}

// Cart describes the order context a coupon is validated against.
type Cart struct {
	Subtotal   decimal.Decimal
	UserID     string
	Categories []string
	ProductIDs []string
}

// Eligible runs the full check sequence against an already-loaded coupon:
// validity window, global and per-user usage limits, minimum order amount,
// and category/product applicability. The first failing check wins.
func Eligible(c *Coupon, userUses int, cart Cart, now time.Time) error {
	if !c.Active {
		return ErrInvalidCoupon
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return ErrNotStarted
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return ErrExpired
	}
	if c.MaxUses > 0 && c.Uses >= c.MaxUses {
		return ErrLimitReached
	}
	if c.MaxUsesPerUser > 0 && userUses >= c.MaxUsesPerUser {
		return ErrUserLimitReached
	}
	if c.MinOrderAmount.IsPositive() && cart.Subtotal.LessThan(c.MinOrderAmount) {
		return ErrMinimumNotMet
	}
	if len(c.Categories) > 0 && !intersects(c.Categories, cart.Categories) {
		return ErrCategoryNotApplicable
	}
	if len(c.ProductIDs) > 0 && !intersects(c.ProductIDs, cart.ProductIDs) {
		return ErrProductNotApplicable
	}
	return nil
}

func intersects(allowed, got []string) bool {
	for _, g := range got {
		if slices.Contains(allowed, g) {
			return true
		}
	}
	return false
}

// Repository provides coupon reads outside of order transactions.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	CountUsagesByUser(ctx context.Context, couponID, userID string) (int, error)
}

// TxStore provides coupon access inside an order transaction. GetForUpdate
// locks the coupon row so the usage-limit check and the increment cannot
// race with a concurrent redemption.
type TxStore interface {
	GetForUpdate(ctx context.Context, code string) (*Coupon, error)
	CountUsagesByUser(ctx context.Context, couponID, userID string) (int, error)

	// IncrementUses bumps the global counter, guarded so it can never
	// exceed MaxUses; the guard failing surfaces as ErrLimitReached.
	IncrementUses(ctx context.Context, couponID string) error

	RecordUsage(ctx context.Context, u *Usage) error
}
