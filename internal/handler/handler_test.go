package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-api/internal/domain/coupon"
	"github.com/xenking/storefront-api/internal/domain/order"
	"github.com/xenking/storefront-api/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	products []product.Product
	byID     map[string]*product.Product
	listErr  error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return m.products, m.listErr
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

type mockOrderRepo struct {
	byID map[string]*order.Order
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

type mockCouponRepo struct {
	byCode map[string]*coupon.Coupon
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.byCode[code]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	return c, nil
}

func (m *mockCouponRepo) CountUsagesByUser(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

// txStores is a minimal in-memory order.TxRunner so the Service can run
// real units of work against mock state.
type txStores struct {
	products *txProducts
	coupons  *txCoupons
	orders   *txOrders
}

func (s *txStores) InTx(ctx context.Context, fn func(ctx context.Context, st order.Stores) error) error {
	return fn(ctx, order.Stores{
		Products: s.products,
		Coupons:  s.coupons,
		Orders:   s.orders,
	})
}

type txProducts struct {
	byID map[string]*product.Product
}

func (s *txProducts) GetForUpdate(_ context.Context, id string) (*product.Product, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (s *txProducts) DecrementStock(_ context.Context, productID, _ string, qty int) error {
	p, ok := s.byID[productID]
	if !ok {
		return product.ErrNotFound
	}
	if p.Stock < qty {
		return &product.InsufficientStockError{ProductID: productID, Requested: qty, Available: p.Stock}
	}
	p.Stock -= qty
	return nil
}

func (s *txProducts) IncrementStock(_ context.Context, productID, _ string, qty int) error {
	if p, ok := s.byID[productID]; ok {
		p.Stock += qty
	}
	return nil
}

type txCoupons struct {
	byCode map[string]*coupon.Coupon
	usages []coupon.Usage
}

func (s *txCoupons) GetForUpdate(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := s.byCode[code]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	return c, nil
}

func (s *txCoupons) CountUsagesByUser(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

func (s *txCoupons) IncrementUses(_ context.Context, couponID string) error {
	for _, c := range s.byCode {
		if c.ID == couponID {
			c.Uses++
			return nil
		}
	}
	return coupon.ErrInvalidCoupon
}

func (s *txCoupons) RecordUsage(_ context.Context, u *coupon.Usage) error {
	s.usages = append(s.usages, *u)
	return nil
}

type txOrders struct {
	byID map[string]*order.Order
}

func (s *txOrders) Create(_ context.Context, o *order.Order) error {
	s.byID[o.ID] = o
	return nil
}

func (s *txOrders) GetForUpdate(_ context.Context, id string) (*order.Order, error) {
	o, ok := s.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (s *txOrders) Update(_ context.Context, o *order.Order) error {
	s.byID[o.ID] = o
	return nil
}

// --- Test fixture ---

type fixture struct {
	handler  *Handler
	products *txProducts
	orders   *txOrders
	coupons  *txCoupons
}

func newFixture() *fixture {
	price := decimal.RequireFromString("25.00")
	products := map[string]*product.Product{
		"p1": {ID: "p1", Name: "Widget", Price: price, Category: "tools", Active: true, Stock: 10},
	}
	coupons := map[string]*coupon.Coupon{
		"TEN": {
			ID:     "c1",
			Code:   "TEN",
			Type:   coupon.DiscountPercentage,
			Value:  decimal.NewFromInt(10),
			Active: true,
		},
	}
	orders := map[string]*order.Order{}

	txp := &txProducts{byID: products}
	txc := &txCoupons{byCode: coupons}
	txo := &txOrders{byID: orders}
	runner := &txStores{products: txp, coupons: txc, orders: txo}

	productList := make([]product.Product, 0, len(products))
	for _, p := range products {
		productList = append(productList, *p)
	}

	h := NewHandler(
		&mockProductRepo{products: productList, byID: products},
		&mockOrderRepo{byID: orders},
		order.NewService(runner),
		coupon.NewRedeemer(&mockCouponRepo{byCode: coupons}),
	)
	return &fixture{handler: h, products: txp, orders: txo, coupons: txc}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeResp[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func validOrderBody() map[string]any {
	return map[string]any{
		"items":         []map[string]any{{"productId": "p1", "quantity": 2}},
		"customerEmail": "buyer@example.com",
		"shippingAddress": map[string]any{
			"line1":      "1 Main St",
			"city":       "Springfield",
			"postalCode": "12345",
			"country":    "US",
		},
	}
}

// --- Products ---

func TestListProducts(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/products", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	products := decodeResp[[]productResponse](t, rec)
	require.Len(t, products, 1)
	assert.Equal(t, "Widget", products[0].Name)
	assert.Equal(t, 25.0, products[0].Price)
}

func TestGetProduct_NotFound(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/products/missing", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeResp[errorBody](t, rec)
	assert.Equal(t, "PRODUCT_NOT_FOUND", body.Error)
}

// --- Orders ---

func TestPlaceOrder(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/orders", validOrderBody())

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResp[orderResponse](t, rec)
	assert.Equal(t, 50.0, resp.Subtotal)
	assert.Equal(t, 5.0, resp.Tax)
	assert.Equal(t, 5.99, resp.Shipping)
	assert.Equal(t, "pending", resp.Status)
	assert.True(t, strings.HasPrefix(resp.OrderNumber, "ORD-"))

	assert.Equal(t, 8, f.products.byID["p1"].Stock)
}

func TestPlaceOrder_MalformedBody(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.handler.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeResp[errorBody](t, rec)
	assert.Equal(t, "INVALID_BODY", body.Error)
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	f := newFixture()
	body := validOrderBody()
	body["items"] = []map[string]any{}

	rec := f.do(t, http.MethodPost, "/api/orders", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResp[errorBody](t, rec)
	assert.Equal(t, "VALIDATION", resp.Error)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	f := newFixture()
	body := validOrderBody()
	body["items"] = []map[string]any{{"productId": "p1", "quantity": 99}}

	rec := f.do(t, http.MethodPost, "/api/orders", body)

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeResp[errorBody](t, rec)
	assert.Equal(t, "INSUFFICIENT_STOCK", resp.Error)
}

func TestPlaceOrder_WithCoupon(t *testing.T) {
	f := newFixture()
	body := validOrderBody()
	body["couponCode"] = "TEN"

	rec := f.do(t, http.MethodPost, "/api/orders", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResp[orderResponse](t, rec)
	assert.Equal(t, 5.0, resp.Discount)
	assert.Equal(t, 1, f.coupons.byCode["TEN"].Uses)
}

func TestPlaceOrder_UnknownCoupon(t *testing.T) {
	f := newFixture()
	body := validOrderBody()
	body["couponCode"] = "NOPE"

	rec := f.do(t, http.MethodPost, "/api/orders", body)

	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResp[errorBody](t, rec)
	assert.Equal(t, "COUPON_NOT_FOUND", resp.Error)
}

func TestGetOrder(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/orders", validOrderBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	placed := decodeResp[orderResponse](t, rec)

	rec = f.do(t, http.MethodGet, "/api/orders/"+placed.ID, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeResp[orderResponse](t, rec)
	assert.Equal(t, placed.ID, got.ID)
	assert.Equal(t, placed.Total, got.Total)
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/orders/missing", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeResp[errorBody](t, rec)
	assert.Equal(t, "ORDER_NOT_FOUND", body.Error)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/orders", validOrderBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	placed := decodeResp[orderResponse](t, rec)
	require.Equal(t, 8, f.products.byID["p1"].Stock)

	rec = f.do(t, http.MethodPost, "/api/orders/"+placed.ID+"/cancel",
		map[string]string{"reason": "duplicate order"})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResp[orderResponse](t, rec)
	assert.Equal(t, "cancelled", resp.Status)
	require.NotNil(t, resp.Cancelled)
	assert.Equal(t, "customer", resp.Cancelled.Actor)
	assert.Equal(t, 10, f.products.byID["p1"].Stock)
}

func TestCancelOrder_AlreadyCancelled(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/orders", validOrderBody())
	placed := decodeResp[orderResponse](t, rec)

	rec = f.do(t, http.MethodPost, "/api/orders/"+placed.ID+"/cancel", map[string]string{})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders/"+placed.ID+"/cancel", map[string]string{})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeResp[errorBody](t, rec)
	assert.Equal(t, "INVALID_STATE_TRANSITION", body.Error)
}

func TestUpdateFulfillment(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/orders", validOrderBody())
	placed := decodeResp[orderResponse](t, rec)

	rec = f.do(t, http.MethodPatch, "/api/orders/"+placed.ID+"/status",
		map[string]string{"status": "shipped", "trackingNumber": "TRACK-9"})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResp[orderResponse](t, rec)
	assert.Equal(t, "shipped", resp.Status)
	assert.Equal(t, "TRACK-9", resp.TrackingNumber)
}

func TestUpdateFulfillment_UnknownStatus(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/orders", validOrderBody())
	placed := decodeResp[orderResponse](t, rec)

	rec = f.do(t, http.MethodPatch, "/api/orders/"+placed.ID+"/status",
		map[string]string{"status": "teleported"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Coupons ---

func TestValidateCoupon(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/coupons/validate",
		map[string]any{"code": "TEN", "orderTotal": 80.0})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResp[validateCouponResponse](t, rec)
	assert.True(t, resp.Valid)
	assert.Equal(t, "TEN", resp.Coupon.Code)
	assert.Equal(t, 8.0, resp.Coupon.DiscountAmount)
	// Validation never consumes a use.
	assert.Equal(t, 0, f.coupons.byCode["TEN"].Uses)
}

func TestValidateCoupon_MissingCode(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/coupons/validate", map[string]any{"orderTotal": 80.0})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateCoupon_Unknown(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/coupons/validate",
		map[string]any{"code": "NOPE", "orderTotal": 80.0})

	require.Equal(t, http.StatusNotFound, rec.Code)
}
