package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/xenking/storefront-api/internal/domain/order"
)

type orderItemRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity"`
}

type placeOrderRequest struct {
	Items           []orderItemRequest `json:"items"`
	UserID          string             `json:"userId,omitempty"`
	CustomerEmail   string             `json:"customerEmail"`
	CustomerName    string             `json:"customerName"`
	ShippingAddress order.Address      `json:"shippingAddress"`
	BillingAddress  *order.Address     `json:"billingAddress,omitempty"`
	CouponCode      string             `json:"couponCode,omitempty"`
	Notes           string             `json:"notes,omitempty"`
}

type orderItemResponse struct {
	ProductID string  `json:"productId"`
	VariantID string  `json:"variantId,omitempty"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
	Subtotal  float64 `json:"subtotal"`
}

type cancellationResponse struct {
	Reason string    `json:"reason,omitempty"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}

type orderResponse struct {
	ID              string                `json:"id"`
	OrderNumber     string                `json:"orderNumber"`
	UserID          string                `json:"userId,omitempty"`
	CustomerEmail   string                `json:"customerEmail"`
	CustomerName    string                `json:"customerName,omitempty"`
	Items           []orderItemResponse   `json:"items"`
	Subtotal        float64               `json:"subtotal"`
	Discount        float64               `json:"discount"`
	Tax             float64               `json:"tax"`
	Shipping        float64               `json:"shipping"`
	Total           float64               `json:"total"`
	CouponCode      string                `json:"couponCode,omitempty"`
	Status          string                `json:"status"`
	PaymentStatus   string                `json:"paymentStatus"`
	ShippingAddress order.Address         `json:"shippingAddress"`
	BillingAddress  *order.Address        `json:"billingAddress,omitempty"`
	TrackingNumber  string                `json:"trackingNumber,omitempty"`
	Notes           string                `json:"notes,omitempty"`
	Cancelled       *cancellationResponse `json:"cancelled,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal.InexactFloat64(),
		}
	}

	resp := orderResponse{
		ID:              o.ID,
		OrderNumber:     o.Number,
		UserID:          o.UserID,
		CustomerEmail:   o.CustomerEmail,
		CustomerName:    o.CustomerName,
		Items:           items,
		Subtotal:        o.Subtotal.InexactFloat64(),
		Discount:        o.Discount.InexactFloat64(),
		Tax:             o.Tax.InexactFloat64(),
		Shipping:        o.Shipping.InexactFloat64(),
		Total:           o.Total.InexactFloat64(),
		CouponCode:      o.CouponCode,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		TrackingNumber:  o.TrackingNumber,
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt,
	}
	if o.Cancelled != nil {
		resp.Cancelled = &cancellationResponse{
			Reason: o.Cancelled.Reason,
			Actor:  o.Cancelled.Actor,
			At:     o.Cancelled.At,
		}
	}
	return resp
}

// placeOrder handles POST /api/orders.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemRequest{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
		}
	}

	o, err := h.service.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		Items:           items,
		UserID:          req.UserID,
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		CouponCode:      req.CouponCode,
		Notes:           req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// getOrder handles GET /api/orders/{id}.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
	Actor  string `json:"actor,omitempty"`
}

// cancelOrder handles POST /api/orders/{id}/cancel.
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req cancelOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Actor == "" {
		req.Actor = "customer"
	}

	o, err := h.service.CancelOrder(r.Context(), id, order.CancelRequest{
		Reason: req.Reason,
		Actor:  req.Actor,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type updateFulfillmentRequest struct {
	Status         string `json:"status,omitempty"`
	PaymentStatus  string `json:"paymentStatus,omitempty"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
}

// updateFulfillment handles PATCH /api/orders/{id}/status.
func (h *Handler) updateFulfillment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req updateFulfillmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	o, err := h.service.UpdateFulfillment(r.Context(), id, order.FulfillmentUpdate{
		Status:         order.Status(req.Status),
		PaymentStatus:  order.PaymentStatus(req.PaymentStatus),
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
