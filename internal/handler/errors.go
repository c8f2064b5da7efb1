package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-api/internal/domain/coupon"
	"github.com/xenking/storefront-api/internal/domain/order"
	"github.com/xenking/storefront-api/internal/domain/product"
)

// writeDomainError maps domain errors to HTTP responses: validation 400,
// missing references 404, stock/concurrency/state conflicts 409, coupon
// rejections 400 with their own codes, everything else 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrCustomerRequired),
		errors.Is(err, order.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error())

	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", err.Error())

	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "ORDER_NOT_FOUND", err.Error())

	case errors.Is(err, coupon.ErrInvalidCoupon):
		writeError(w, http.StatusNotFound, "COUPON_NOT_FOUND", err.Error())

	case errors.Is(err, order.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, "CONCURRENCY_CONFLICT",
			"the order could not be completed due to concurrent updates, please retry")

	default:
		var (
			quantityErr   *order.InvalidQuantityError
			transitionErr *order.InvalidTransitionError
			paymentErr    *order.InvalidPaymentTransitionError
			inactiveErr   *product.InactiveError
			variantErr    *product.VariantNotFoundError
			stockErr      *product.InsufficientStockError
			rejectionErr  *coupon.RejectionError
		)
		switch {
		case errors.As(err, &quantityErr):
			writeError(w, http.StatusBadRequest, "VALIDATION", quantityErr.Error())
		case errors.As(err, &inactiveErr):
			writeError(w, http.StatusBadRequest, "PRODUCT_INACTIVE", inactiveErr.Error())
		case errors.As(err, &variantErr):
			writeError(w, http.StatusNotFound, "VARIANT_NOT_FOUND", variantErr.Error())
		case errors.As(err, &stockErr):
			writeError(w, http.StatusConflict, "INSUFFICIENT_STOCK", stockErr.Error())
		case errors.As(err, &transitionErr):
			writeError(w, http.StatusConflict, "INVALID_STATE_TRANSITION", transitionErr.Error())
		case errors.As(err, &paymentErr):
			writeError(w, http.StatusConflict, "INVALID_STATE_TRANSITION", paymentErr.Error())
		case errors.As(err, &rejectionErr):
			writeError(w, http.StatusBadRequest, rejectionErr.Code, rejectionErr.Message)
		default:
			h.internalError(w, r, err)
		}
	}
}
