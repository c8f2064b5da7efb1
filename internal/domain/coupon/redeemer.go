package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Redeemer implements the two-phase validate/redeem protocol. Validation is
// a plain read used before final price confirmation; redemption happens
// later, inside the order transaction, and re-checks usage limits against
// locked rows to close the race window between the two phases.
type Redeemer struct {
	repo Repository
	now  func() time.Time
}

// NewRedeemer creates a Redeemer backed by the given Repository.
func NewRedeemer(repo Repository) *Redeemer {
	return &Redeemer{repo: repo, now: time.Now}
}

// ValidationResult reports the outcome of a successful validation.
type ValidationResult struct {
	Coupon   *Coupon
	Discount decimal.Decimal
}

// Validate checks whether the code can be applied to the described cart and
// returns the discount it would grant. It performs no writes; the answer can
// be stale by the time the order commits, which is why Redeem re-checks.
func (r *Redeemer) Validate(ctx context.Context, code string, cart Cart) (*ValidationResult, error) {
	c, err := r.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	userUses := 0
	if cart.UserID != "" && c.MaxUsesPerUser > 0 {
		userUses, err = r.repo.CountUsagesByUser(ctx, c.ID, cart.UserID)
		if err != nil {
			return nil, errors.Wrap(err, "count user redemptions")
		}
	}

	if err := Eligible(c, userUses, cart, r.now()); err != nil {
		return nil, err
	}

	return &ValidationResult{
		Coupon:   c,
		Discount: c.DiscountFor(cart.Subtotal),
	}, nil
}

// Redeem consumes one use of the coupon inside the caller's transaction:
// it re-validates the usage limits against the locked coupon row, bumps the
// global counter, and appends the usage record. The caller supplies the
// coupon returned by s.GetForUpdate earlier in the same transaction.
func Redeem(ctx context.Context, s TxStore, c *Coupon, orderID, userID string, discount decimal.Decimal, now time.Time) (*Usage, error) {
	if c.MaxUses > 0 && c.Uses >= c.MaxUses {
		return nil, ErrLimitReached
	}
	if c.MaxUsesPerUser > 0 && userID != "" {
		userUses, err := s.CountUsagesByUser(ctx, c.ID, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count user redemptions")
		}
		if userUses >= c.MaxUsesPerUser {
			return nil, ErrUserLimitReached
		}
	}

	if err := s.IncrementUses(ctx, c.ID); err != nil {
		return nil, err
	}

	u := &Usage{
		ID:        uuid.New().String(),
		CouponID:  c.ID,
		OrderID:   orderID,
		UserID:    userID,
		Discount:  discount,
		CreatedAt: now,
	}
	if err := s.RecordUsage(ctx, u); err != nil {
		return nil, errors.Wrap(err, "record usage")
	}
	return u, nil
}
