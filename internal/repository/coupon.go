package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-api/internal/domain/coupon"
)

const (
	couponColumns = `id, code, discount_type, value, min_order_amount, max_discount,
		max_uses, max_uses_per_user, uses, categories, product_ids,
		valid_from, valid_until, active`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE UPPER(code) = UPPER($1) AND active = TRUE`

	getCouponForUpdateSQL = getCouponByCodeSQL + ` FOR UPDATE`

	countUsagesByUserSQL = `SELECT COUNT(*) FROM coupon_usages
		WHERE coupon_id = $1 AND user_id = $2`

	// Guarded increment: uses can never exceed max_uses (0 = unlimited).
	incrementCouponUsesSQL = `UPDATE coupons SET uses = uses + 1
		WHERE id = $1 AND (max_uses = 0 OR uses < max_uses)`

	recordUsageSQL = `INSERT INTO coupon_usages (id, coupon_id, order_id, user_id, discount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL, for
// the standalone validation endpoint.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon by its code (case-insensitive).
// Returns coupon.ErrInvalidCoupon when no matching active coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return fetchCoupon(ctx, r.pool, getCouponByCodeSQL, code)
}

// CountUsagesByUser returns how many times the user has redeemed the coupon.
func (r *CouponRepository) CountUsagesByUser(ctx context.Context, couponID, userID string) (int, error) {
	return countUsages(ctx, r.pool, couponID, userID)
}

// couponTxStore implements coupon.TxStore on an open transaction.
type couponTxStore struct {
	tx pgx.Tx
}

var _ coupon.TxStore = (*couponTxStore)(nil)

// GetForUpdate locks the coupon row for the remainder of the transaction so
// the limit check and increment cannot race with concurrent redemptions.
func (s *couponTxStore) GetForUpdate(ctx context.Context, code string) (*coupon.Coupon, error) {
	return fetchCoupon(ctx, s.tx, getCouponForUpdateSQL, code)
}

// CountUsagesByUser returns the user's redemption count inside the transaction.
func (s *couponTxStore) CountUsagesByUser(ctx context.Context, couponID, userID string) (int, error) {
	return countUsages(ctx, s.tx, couponID, userID)
}

// IncrementUses bumps the usage counter; the SQL guard refusing the update
// surfaces as coupon.ErrLimitReached.
func (s *couponTxStore) IncrementUses(ctx context.Context, couponID string) error {
	ct, err := s.tx.Exec(ctx, incrementCouponUsesSQL, couponID)
	if err != nil {
		return fmt.Errorf("incrementing uses for coupon %q: %w", couponID, err)
	}
	if ct.RowsAffected() == 0 {
		return coupon.ErrLimitReached
	}
	return nil
}

// RecordUsage appends one redemption record.
func (s *couponTxStore) RecordUsage(ctx context.Context, u *coupon.Usage) error {
	_, err := s.tx.Exec(ctx, recordUsageSQL,
		u.ID, u.CouponID, u.OrderID, u.UserID, u.Discount, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording usage for coupon %q: %w", u.CouponID, err)
	}
	return nil
}

func fetchCoupon(ctx context.Context, q querier, sql, code string) (*coupon.Coupon, error) {
	rows, err := q.Query(ctx, sql, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

func countUsages(ctx context.Context, q querier, couponID, userID string) (int, error) {
	rows, err := q.Query(ctx, countUsagesByUserSQL, couponID, userID)
	if err != nil {
		return 0, fmt.Errorf("counting usages for coupon %q: %w", couponID, err)
	}
	count, err := pgx.CollectExactlyOneRow(rows, pgx.RowTo[int])
	if err != nil {
		return 0, fmt.Errorf("counting usages for coupon %q: %w", couponID, err)
	}
	return count, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		value        decimal.Decimal
		minOrder     decimal.Decimal
		maxDiscount  decimal.Decimal
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &value, &minOrder, &maxDiscount,
		&c.MaxUses, &c.MaxUsesPerUser, &c.Uses, &c.Categories, &c.ProductIDs,
		&c.ValidFrom, &c.ValidUntil, &c.Active,
	)
	c.Type = coupon.DiscountType(discountType)
	c.Value = value
	c.MinOrderAmount = minOrder
	c.MaxDiscount = maxDiscount
	return c, err
}
