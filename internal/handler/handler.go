// Package handler exposes the domain operations over HTTP. Route shapes are
// plain JSON over gorilla/mux; all business decisions live in the domain
// packages, the handlers only translate.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xenking/storefront-api/internal/domain/coupon"
	"github.com/xenking/storefront-api/internal/domain/order"
	"github.com/xenking/storefront-api/internal/domain/product"
)

// Handler wires the HTTP routes to the order service, coupon redeemer, and
// read repositories.
type Handler struct {
	products product.Repository
	orders   order.Repository
	service  *order.Service
	coupons  *coupon.Redeemer
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	orders order.Repository,
	service *order.Service,
	coupons *coupon.Redeemer,
) *Handler {
	return &Handler{
		products: products,
		orders:   orders,
		service:  service,
		coupons:  coupons,
	}
}

// Routes returns the API router mounted under /api.
func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/products", h.listProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.getProduct).Methods(http.MethodGet)

	api.HandleFunc("/orders", h.placeOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", h.getOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/cancel", h.cancelOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/status", h.updateFulfillment).Methods(http.MethodPatch)

	api.HandleFunc("/coupons/validate", h.validateCoupon).Methods(http.MethodPost)

	return r
}

// errorBody is the uniform error response: a stable machine-readable code
// plus a human-readable message.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// decodeBody parses the JSON request body into v, answering 400 itself on
// malformed input.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON")
		return false
	}
	return true
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
}
