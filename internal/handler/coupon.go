package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-api/internal/domain/coupon"
)

type validateCouponRequest struct {
	Code       string   `json:"code"`
	OrderTotal float64  `json:"orderTotal"`
	UserID     string   `json:"userId,omitempty"`
	CategoryID string   `json:"categoryId,omitempty"`
	ProductIDs []string `json:"productIds,omitempty"`
}

type validateCouponResponse struct {
	Valid  bool           `json:"valid"`
	Coupon couponResponse `json:"coupon"`
}

type couponResponse struct {
	Code           string  `json:"code"`
	DiscountType   string  `json:"discountType"`
	DiscountAmount float64 `json:"discountAmount"`
}

// validateCoupon handles POST /api/coupons/validate. Validation performs no
// writes: redemption happens atomically at order placement.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION", "coupon code required")
		return
	}

	cart := coupon.Cart{
		Subtotal:   decimal.NewFromFloat(req.OrderTotal),
		UserID:     req.UserID,
		ProductIDs: req.ProductIDs,
	}
	if req.CategoryID != "" {
		cart.Categories = []string{req.CategoryID}
	}

	result, err := h.coupons.Validate(r.Context(), req.Code, cart)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, validateCouponResponse{
		Valid: true,
		Coupon: couponResponse{
			Code:           result.Coupon.Code,
			DiscountType:   string(result.Coupon.Type),
			DiscountAmount: result.Discount.InexactFloat64(),
		},
	})
}
