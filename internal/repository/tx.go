package repository

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-api/internal/domain/order"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 10 * time.Millisecond
)

var _ order.TxRunner = (*TxManager)(nil)

// TxManager runs units of work inside serializable PostgreSQL transactions.
// Serialization failures and order-number collisions are retried with
// jittered exponential backoff up to a bounded number of attempts;
// business-rule failures abort immediately and are never retried.
type TxManager struct {
	pool        *pgxpool.Pool
	maxAttempts int
	baseDelay   time.Duration
}

// NewTxManager creates a TxManager with the default retry budget.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{
		pool:        pool,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
}

// InTx implements order.TxRunner.
func (m *TxManager) InTx(ctx context.Context, fn func(ctx context.Context, s order.Stores) error) error {
	var lastErr error
	for attempt := range m.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoffDelay(m.baseDelay, attempt)):
			}
		}

		err := m.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return errors.Wrapf(order.ErrConcurrencyConflict, "%d attempts, last: %s", m.maxAttempts, lastErr)
}

func (m *TxManager) attempt(ctx context.Context, fn func(ctx context.Context, s order.Stores) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s := order.Stores{
		Products: &productTxStore{tx: tx},
		Coupons:  &couponTxStore{tx: tx},
		Orders:   &orderTxStore{tx: tx},
	}
	if err := fn(ctx, s); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// retryable reports whether the error is a transient store conflict worth
// re-running the whole transaction for: a serialization failure, a
// deadlock, or a duplicate randomly-generated order number.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return true
	case "23505":
		return pgErr.ConstraintName == "orders_order_number_key"
	}
	return false
}

// backoffDelay returns the sleep before the given retry attempt (1-based):
// exponential growth from base with up to 50% random jitter.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	jitter := time.Duration(rand.Int64N(int64(d)))
	return d/2 + jitter
}
