package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/repository"
	"github.com/xenking/storefront/internal/storage/filestore"
)

// --- Helpers ---

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	products := product.NewService(
		repository.NewProductRepository(store),
		repository.NewReviewRepository(store),
	)
	coupons := coupon.NewService(repository.NewCouponRepository(store))
	orders := order.NewService(repository.NewOrderRepository(store), coupons)

	srv := httptest.NewServer(New(products, coupons, orders).Router())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, out
}

func doList(t *testing.T, srv *httptest.Server, path string) []map[string]any {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// --- Tests ---

func TestProducts(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodPost, "/api/products", map[string]any{
		"name":   "Widget",
		"price":  19.99,
		"stock":  4,
		"images": []string{"front.jpg", "back.jpg"},
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(1), body["id"])
	assert.Equal(t, 19.99, body["price"])
	assert.Equal(t, true, body["isLowStock"])
	assert.Equal(t, "front.jpg", body["mainImage"])

	status, body = do(t, srv, http.MethodPost, "/api/products/1/reviews", map[string]any{
		"userId": "u1", "rating": 4, "comment": "Solid and well made.",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, true, body["published"])

	status, body = do(t, srv, http.MethodGet, "/api/products/1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["reviewCount"])
	assert.Equal(t, float64(4), body["avgRating"])

	status, body = do(t, srv, http.MethodPatch, "/api/products/1", map[string]any{"active": false})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["active"])
	assert.Equal(t, "Widget", body["name"])

	assert.Len(t, doList(t, srv, "/api/products"), 1)
	assert.Empty(t, doList(t, srv, "/api/products?active=true"))

	status, _ = do(t, srv, http.MethodDelete, "/api/products/1", nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = do(t, srv, http.MethodGet, "/api/products/1", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["kind"])
	assert.Equal(t, float64(404), body["code"])
}

func TestProducts_Validation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{name: "missing name", method: http.MethodPost, path: "/api/products", body: map[string]any{"price": 1}, want: http.StatusBadRequest},
		{name: "negative price", method: http.MethodPost, path: "/api/products", body: map[string]any{"name": "x", "price": -1}, want: http.StatusBadRequest},
		{name: "bad id", method: http.MethodGet, path: "/api/products/abc", want: http.StatusBadRequest},
		{name: "bad active filter", method: http.MethodGet, path: "/api/products?active=maybe", want: http.StatusBadRequest},
		{name: "review for unknown product", method: http.MethodPost, path: "/api/products/9/reviews", body: map[string]any{"rating": 3}, want: http.StatusNotFound},
		{name: "review rating out of range", method: http.MethodPost, path: "/api/products/9/reviews", body: map[string]any{"rating": 6}, want: http.StatusBadRequest},
		{name: "update unknown product", method: http.MethodPatch, path: "/api/products/9", body: map[string]any{"name": "y"}, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestProducts_ByIDs(t *testing.T) {
	srv := newTestServer(t)
	for _, name := range []string{"Mug", "Lamp", "Desk"} {
		status, _ := do(t, srv, http.MethodPost, "/api/products", map[string]any{"name": name, "price": 5, "stock": 10})
		require.Equal(t, http.StatusCreated, status)
	}
	status, _ := do(t, srv, http.MethodPatch, "/api/products/2", map[string]any{"active": false})
	require.Equal(t, http.StatusOK, status)

	got := doList(t, srv, "/api/products?ids=3,%201,2")
	require.Len(t, got, 3)
	assert.Equal(t, "Desk", got[0]["name"])
	assert.Equal(t, "Mug", got[1]["name"])
	assert.Equal(t, "Lamp", got[2]["name"], "inactive products are returned by id")
	assert.Equal(t, float64(10), got[0]["realStock"])

	tooMany := strings.TrimSuffix(strings.Repeat("1,", maxBatchIDs+1), ",")
	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "missing product", path: "/api/products?ids=1,9", want: http.StatusNotFound},
		{name: "not a number", path: "/api/products?ids=1,abc", want: http.StatusBadRequest},
		{name: "zero id", path: "/api/products?ids=0", want: http.StatusBadRequest},
		{name: "empty list", path: "/api/products?ids=", want: http.StatusBadRequest},
		{name: "too many ids", path: "/api/products?ids=" + tooMany, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := do(t, srv, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestProducts_DeleteDropsReviews(t *testing.T) {
	srv := newTestServer(t)
	for _, name := range []string{"A", "B"} {
		status, _ := do(t, srv, http.MethodPost, "/api/products", map[string]any{"name": name, "price": 1})
		require.Equal(t, http.StatusCreated, status)
	}
	status, _ := do(t, srv, http.MethodPost, "/api/products/2/reviews", map[string]any{"rating": 1})
	require.Equal(t, http.StatusCreated, status)

	status, _ = do(t, srv, http.MethodDelete, "/api/products/2", nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body := do(t, srv, http.MethodPost, "/api/products", map[string]any{"name": "C", "price": 1})
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, float64(2), body["id"])

	status, body = do(t, srv, http.MethodGet, "/api/products/2", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["reviewCount"])
	assert.Equal(t, float64(0), body["avgRating"])
}

func TestCoupons_RenameToTakenCode(t *testing.T) {
	srv := newTestServer(t)
	for _, code := range []string{"SAVE10", "SAVE20"} {
		status, _ := do(t, srv, http.MethodPost, "/api/coupons", map[string]any{"code": code, "discountPercent": 10})
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := do(t, srv, http.MethodPatch, "/api/coupons/2", map[string]any{"code": "save10"})
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", body["kind"])

	status, body = do(t, srv, http.MethodPatch, "/api/coupons/2", map[string]any{"code": "SAVE25"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "SAVE25", body["code"])

	codes := map[any]bool{}
	for _, c := range doList(t, srv, "/api/coupons") {
		codes[c["code"]] = true
	}
	assert.Equal(t, map[any]bool{"SAVE10": true, "SAVE25": true}, codes)
}

func TestCoupons_ApplyAndAdmin(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodPost, "/api/coupons", map[string]any{
		"code": "SAVE10", "discountPercent": 10,
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, true, body["enabled"])

	status, body = do(t, srv, http.MethodPost, "/api/coupons", map[string]any{"code": "save10", "discountAmount": 1})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", body["kind"])

	status, body = do(t, srv, http.MethodPost, "/api/coupons/apply", map[string]any{"code": "SAVE10", "subtotal": 200})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(20), body["discount"])
	cp, ok := body["coupon"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), cp["usedCount"])

	status, _ = do(t, srv, http.MethodPut, "/api/coupons/1/enabled", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, status)

	status, body = do(t, srv, http.MethodPost, "/api/coupons/apply", map[string]any{"code": "SAVE10", "subtotal": 200})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "coupon is disabled", body["message"])

	status, body = do(t, srv, http.MethodPatch, "/api/coupons/1", map[string]any{"description": "ten off", "enabled": true})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ten off", body["description"])
	assert.Equal(t, true, body["enabled"])

	assert.Len(t, doList(t, srv, "/api/coupons"), 1)

	status, _ = do(t, srv, http.MethodDelete, "/api/coupons/1", nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = do(t, srv, http.MethodDelete, "/api/coupons/1", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCoupons_Validation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{name: "missing code", path: "/api/coupons", body: map[string]any{"discountPercent": 5}, want: http.StatusBadRequest},
		{name: "percent over 100", path: "/api/coupons", body: map[string]any{"code": "X", "discountPercent": 150}, want: http.StatusBadRequest},
		{name: "negative amount", path: "/api/coupons", body: map[string]any{"code": "X", "discountAmount": -1}, want: http.StatusBadRequest},
		{name: "apply unknown code", path: "/api/coupons/apply", body: map[string]any{"code": "NOPE", "subtotal": 10}, want: http.StatusNotFound},
		{name: "apply blank code", path: "/api/coupons/apply", body: map[string]any{"code": " ", "subtotal": 10}, want: http.StatusBadRequest},
		{name: "apply negative subtotal", path: "/api/coupons/apply", body: map[string]any{"code": "X", "subtotal": -5}, want: http.StatusBadRequest},
		{name: "malformed body", path: "/api/coupons/apply", body: "not an object", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, status)
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestOrders(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodPost, "/api/orders", map[string]any{
		"order": map[string]any{
			"userId": "u1",
			"items": []map[string]any{
				{"productId": 1, "quantity": 2, "unitPrice": 10},
				{"productId": 2, "quantity": 1, "unitPrice": 5},
			},
			"subtotal": 1,
			"total":    1,
			"shipping": 2,
			"tax":      1,
		},
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(25), body["subtotal"], "client subtotal is ignored")
	assert.Equal(t, float64(0), body["discount"])
	assert.Equal(t, float64(28), body["total"])
	assert.Equal(t, "pending", body["status"])
	assert.Nil(t, body["couponCode"])

	status, body = do(t, srv, http.MethodPut, "/api/orders/1/status", map[string]any{"status": "paid"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "paid", body["status"])

	status, body = do(t, srv, http.MethodPut, "/api/orders/1/status", map[string]any{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", body["kind"])

	status, _ = do(t, srv, http.MethodPut, "/api/orders/1/status", map[string]any{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, srv, http.MethodGet, "/api/orders/1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "paid", body["status"])

	assert.Len(t, doList(t, srv, "/api/orders"), 1)

	status, _ = do(t, srv, http.MethodDelete, "/api/orders/1", nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = do(t, srv, http.MethodGet, "/api/orders/1", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestOrders_WithCoupon(t *testing.T) {
	srv := newTestServer(t)

	status, _ := do(t, srv, http.MethodPost, "/api/coupons", map[string]any{"code": "FLAT5", "discountAmount": 5})
	require.Equal(t, http.StatusCreated, status)
	status, _ = do(t, srv, http.MethodPost, "/api/coupons", map[string]any{"code": "OLD", "discountAmount": 5, "expiresAt": "2000-01-01T00:00:00Z"})
	require.Equal(t, http.StatusCreated, status)

	status, body := do(t, srv, http.MethodPost, "/api/orders", map[string]any{
		"order": map[string]any{
			"items":      []map[string]any{{"productId": 1, "quantity": 1, "unitPrice": 3}},
			"couponCode": "OLD",
		},
		"couponCode": "flat5",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(3), body["discount"])
	assert.Equal(t, float64(0), body["total"])
	assert.Equal(t, "FLAT5", body["couponCode"])

	status, body = do(t, srv, http.MethodPost, "/api/orders", map[string]any{
		"order":      map[string]any{"items": []map[string]any{{"productId": 1, "quantity": 1, "unitPrice": 3}}},
		"couponCode": "OLD",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "coupon has expired", body["message"])
	assert.Len(t, doList(t, srv, "/api/orders"), 1, "rejected coupon must not create an order")
}

func TestOrders_Validation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "missing order", body: map[string]any{}},
		{name: "no items", body: map[string]any{"order": map[string]any{"items": []any{}}}},
		{name: "zero quantity", body: map[string]any{"order": map[string]any{"items": []map[string]any{{"productId": 1, "quantity": 0, "unitPrice": 1}}}}},
		{name: "negative tax", body: map[string]any{"order": map[string]any{"items": []map[string]any{{"productId": 1, "quantity": 1, "unitPrice": 1}}, "tax": -1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, http.MethodPost, "/api/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "validation", body["kind"])
		})
	}
}

type failingOrders struct{ OrderService }

func (failingOrders) List(context.Context) ([]order.Order, error) {
	return nil, errors.New("connection reset")
}

func TestWriteError_HidesInternalMessage(t *testing.T) {
	h := New(nil, nil, failingOrders{})
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	status, body := do(t, srv, http.MethodGet, "/api/orders", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal", body["kind"])
	assert.Equal(t, "Internal Server Error", body["message"])
}
