package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-api/internal/domain/coupon"
	"github.com/xenking/storefront-api/internal/domain/pricing"
	"github.com/xenking/storefront-api/internal/domain/product"
)

// Stores bundles the transaction-scoped stores handed to a unit of work.
type Stores struct {
	Products product.TxStore
	Coupons  coupon.TxStore
	Orders   TxStore
}

// TxRunner executes fn inside one isolated transaction: either every write
// fn performs becomes visible at commit, or none do. Implementations retry
// fn on transient store conflicts, so fn must be safe to re-execute, and
// return ErrConcurrencyConflict once the retry budget is exhausted.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

// Service is the public facade for order placement and fulfillment.
type Service struct {
	tx  TxRunner
	now func() time.Time
}

// NewService creates a Service on top of the given transaction runner.
func NewService(tx TxRunner) *Service {
	return &Service{tx: tx, now: time.Now}
}

// ItemRequest is one requested cart line.
type ItemRequest struct {
	ProductID string
	VariantID string
	Quantity  int
}

// PlaceOrderRequest holds the checkout input. Prices are deliberately
// absent: unit prices are always re-read from the store inside the
// transaction.
type PlaceOrderRequest struct {
	Items           []ItemRequest
	UserID          string
	CustomerEmail   string
	CustomerName    string
	ShippingAddress Address
	BillingAddress  *Address
	CouponCode      string
	Notes           string
}

// PlaceOrder converts a cart into a durable order: inside one transaction it
// re-reads every product, recomputes pricing from those reads, reserves
// stock with relative decrements, persists the order, and redeems the
// coupon if one was used. Any business-rule failure aborts the whole
// transaction, so partial stock decrements are never visible.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if req.CustomerEmail == "" {
		return nil, ErrCustomerRequired
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}

	var placed *Order
	err := s.tx.InTx(ctx, func(ctx context.Context, st Stores) error {
		now := s.now()

		// Resolve every line against the in-transaction product state.
		lines := make([]pricing.LineItem, 0, len(req.Items))
		var categories []string
		var productIDs []string
		for _, item := range req.Items {
			p, err := st.Products.GetForUpdate(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if !p.Active {
				return &product.InactiveError{ProductID: p.ID}
			}

			var v *product.Variant
			if item.VariantID != "" {
				var ok bool
				v, ok = p.Variant(item.VariantID)
				if !ok {
					return &product.VariantNotFoundError{ProductID: p.ID, VariantID: item.VariantID}
				}
			}

			// Availability is checked against the value read inside this
			// transaction, never a prior cached read.
			if avail := p.Available(v); avail < item.Quantity {
				return &product.InsufficientStockError{
					ProductID: p.ID,
					VariantID: item.VariantID,
					Requested: item.Quantity,
					Available: avail,
				}
			}

			lines = append(lines, pricing.LineItem{
				ProductID: p.ID,
				VariantID: item.VariantID,
				Name:      p.Name,
				UnitPrice: p.UnitPrice(v),
				Quantity:  item.Quantity,
			})
			categories = append(categories, p.Category)
			productIDs = append(productIDs, p.ID)
		}

		subtotal := decimal.Zero
		for _, li := range lines {
			subtotal = subtotal.Add(li.Subtotal())
		}

		// Coupon validation happens against the locked coupon row; the
		// later Redeem re-checks limits before incrementing.
		var cpn *coupon.Coupon
		if req.CouponCode != "" {
			c, err := st.Coupons.GetForUpdate(ctx, req.CouponCode)
			if err != nil {
				return err
			}
			userUses := 0
			if req.UserID != "" && c.MaxUsesPerUser > 0 {
				userUses, err = st.Coupons.CountUsagesByUser(ctx, c.ID, req.UserID)
				if err != nil {
					return errors.Wrap(err, "count user redemptions")
				}
			}
			cart := coupon.Cart{
				Subtotal:   subtotal,
				UserID:     req.UserID,
				Categories: categories,
				ProductIDs: productIDs,
			}
			if err := coupon.Eligible(c, userUses, cart, now); err != nil {
				return err
			}
			cpn = c
		}

		quote := pricing.Calculate(lines, cpn)

		// Reserve stock. Decrements are relative and individually guarded;
		// any failure aborts the transaction and rolls back earlier lines.
		for _, item := range req.Items {
			if err := st.Products.DecrementStock(ctx, item.ProductID, item.VariantID, item.Quantity); err != nil {
				return err
			}
		}

		items := make([]Item, len(lines))
		for i, li := range lines {
			items[i] = Item{
				ProductID: li.ProductID,
				VariantID: li.VariantID,
				Name:      li.Name,
				UnitPrice: li.UnitPrice,
				Quantity:  li.Quantity,
				Subtotal:  li.Subtotal().Round(2),
			}
		}

		o := &Order{
			ID:              uuid.New().String(),
			Number:          NewNumber(now),
			UserID:          req.UserID,
			CustomerEmail:   req.CustomerEmail,
			CustomerName:    req.CustomerName,
			Items:           items,
			Subtotal:        quote.Subtotal,
			Discount:        quote.Discount,
			Tax:             quote.Tax,
			Shipping:        quote.Shipping,
			Total:           quote.Total,
			CouponCode:      req.CouponCode,
			Status:          StatusPending,
			PaymentStatus:   PaymentPending,
			ShippingAddress: req.ShippingAddress,
			BillingAddress:  req.BillingAddress,
			Notes:           req.Notes,
			CreatedAt:       now,
		}
		if err := st.Orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		if cpn != nil {
			if _, err := coupon.Redeem(ctx, st.Coupons, cpn, o.ID, req.UserID, quote.Discount, now); err != nil {
				return err
			}
		}

		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// CancelRequest identifies who is cancelling an order and why.
// Authorization (owner vs admin) is the caller's responsibility.
type CancelRequest struct {
	Reason string
	Actor  string
}

// CancelOrder transitions a pending or processing order to cancelled and
// restores exactly the stock the order reserved, using the quantities
// snapshotted on the order rather than current product state. Coupon usage
// counters are intentionally left untouched.
func (s *Service) CancelOrder(ctx context.Context, orderID string, req CancelRequest) (*Order, error) {
	var cancelled *Order
	err := s.tx.InTx(ctx, func(ctx context.Context, st Stores) error {
		o, err := st.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransitionTo(StatusCancelled) {
			return &InvalidTransitionError{From: o.Status, To: StatusCancelled}
		}

		for _, item := range o.Items {
			if err := st.Products.IncrementStock(ctx, item.ProductID, item.VariantID, item.Quantity); err != nil {
				return err
			}
		}

		o.Status = StatusCancelled
		o.Cancelled = &Cancellation{
			Reason: req.Reason,
			Actor:  req.Actor,
			At:     s.now(),
		}
		if err := st.Orders.Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}

		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// FulfillmentUpdate describes a fulfillment change. Zero-valued fields are
// left unchanged.
type FulfillmentUpdate struct {
	Status         Status
	PaymentStatus  PaymentStatus
	TrackingNumber string
}

// UpdateFulfillment advances an order through the forward-only status
// machine and records payment/tracking changes. Cancellation is rejected
// here: it must go through CancelOrder so stock is restored.
func (s *Service) UpdateFulfillment(ctx context.Context, orderID string, upd FulfillmentUpdate) (*Order, error) {
	if upd.Status != "" && !upd.Status.Valid() {
		return nil, errors.Wrapf(ErrInvalidStatus, "%q", upd.Status)
	}
	if upd.PaymentStatus != "" && !upd.PaymentStatus.Valid() {
		return nil, errors.Wrapf(ErrInvalidStatus, "%q", upd.PaymentStatus)
	}

	var updated *Order
	err := s.tx.InTx(ctx, func(ctx context.Context, st Stores) error {
		o, err := st.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		if upd.Status != "" && upd.Status != o.Status {
			if upd.Status == StatusCancelled || !o.Status.CanTransitionTo(upd.Status) {
				return &InvalidTransitionError{From: o.Status, To: upd.Status}
			}
			o.Status = upd.Status
		}
		if upd.PaymentStatus != "" && upd.PaymentStatus != o.PaymentStatus {
			if !o.PaymentStatus.CanTransitionTo(upd.PaymentStatus) {
				return &InvalidPaymentTransitionError{From: o.PaymentStatus, To: upd.PaymentStatus}
			}
			o.PaymentStatus = upd.PaymentStatus
		}
		if upd.TrackingNumber != "" {
			o.TrackingNumber = upd.TrackingNumber
		}

		if err := st.Orders.Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}

		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RedeemRequest consumes one coupon use against an already-priced order.
type RedeemRequest struct {
	Code     string
	OrderID  string
	UserID   string
	Discount decimal.Decimal
}

// RedeemCoupon runs a standalone redemption in its own transaction. Order
// placement uses the same underlying coupon.Redeem inside its transaction.
func (s *Service) RedeemCoupon(ctx context.Context, req RedeemRequest) (*coupon.Usage, error) {
	var usage *coupon.Usage
	err := s.tx.InTx(ctx, func(ctx context.Context, st Stores) error {
		c, err := st.Coupons.GetForUpdate(ctx, req.Code)
		if err != nil {
			return err
		}
		usage, err = coupon.Redeem(ctx, st.Coupons, c, req.OrderID, req.UserID, req.Discount, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return usage, nil
}
