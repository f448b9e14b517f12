package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/metrics"
)

func newTestServices(t *testing.T) (Services, *storage.MemoryAdapter) {
	t.Helper()
	store := storage.NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, store.SaveItem(ctx, domain.ShopItem{ID: "A", Title: "Item A", Price: decimal.NewFromInt(10), AvailableCount: 5}))
	require.NoError(t, store.SaveItem(ctx, domain.ShopItem{ID: "B", Title: "Item B", Price: decimal.NewFromInt(20), AvailableCount: 2}))
	require.NoError(t, store.SaveCustomer(ctx, domain.Customer{ID: "cust-1", Name: "Ada", Email: "ada@example.com"}))

	return Services{
		Cart:      service.NewCartService(store, nil),
		Checkout:  service.NewCheckoutService(store, storage.NewMemoryCache(), nil, nil, service.CheckoutOptions{}),
		Orders:    service.NewOrderService(store),
		Customers: service.NewCustomerService(store),
		Catalog:   service.NewCatalogService(store),
	}, store
}

func newTestServer(t *testing.T) (*httptest.Server, *storage.MemoryAdapter) {
	t.Helper()
	svc, store := newTestServices(t)
	reg := prometheus.NewRegistry()
	h := NewHTTPHandler(svc, nil, zap.NewNop(), metrics.New(reg, reg))
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv, store
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if m, ok := out.(map[string]any); ok {
		return resp, m
	}
	return resp, map[string]any{"_": out}
}

func TestHTTP_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))
}

func TestHTTP_CartFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, srv, http.MethodPost, "/customer/cart", AddToCartHTTPRequest{CustomerID: "cust-1", ItemID: "A", Quantity: 3})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Item added to cart", body["message"])
	assert.Equal(t, []any{map[string]any{"itemId": "A", "quantity": float64(3)}}, body["cart"])

	resp, _ = do(t, srv, http.MethodPost, "/customer/cart", AddToCartHTTPRequest{CustomerID: "cust-1", ItemID: "B", Quantity: 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = do(t, srv, http.MethodDelete, "/customer/cart", RemoveFromCartHTTPRequest{CustomerID: "cust-1", ItemID: "B"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Cart updated successfully", body["message"])

	resp, body = do(t, srv, http.MethodGet, "/customer/cart/cust-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{
		map[string]any{"itemId": "A", "quantity": float64(3)},
		map[string]any{"itemId": "B", "quantity": float64(1)},
	}, body["cart"])

	resp, body = do(t, srv, http.MethodGet, "/customer/cart/cust-1?expand=items", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lines := body["cart"].([]any)
	require.Len(t, lines, 2)
	item := lines[0].(map[string]any)["item"].(map[string]any)
	assert.Equal(t, "Item A", item["title"])
}

func TestHTTP_CartErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown customer get", http.MethodGet, "/customer/cart/nobody", nil, http.StatusNotFound},
		{"unknown customer add", http.MethodPost, "/customer/cart", AddToCartHTTPRequest{CustomerID: "nobody", ItemID: "A", Quantity: 1}, http.StatusNotFound},
		{"unknown item", http.MethodPost, "/customer/cart", AddToCartHTTPRequest{CustomerID: "cust-1", ItemID: "Z", Quantity: 1}, http.StatusBadRequest},
		{"zero quantity", http.MethodPost, "/customer/cart", AddToCartHTTPRequest{CustomerID: "cust-1", ItemID: "A"}, http.StatusBadRequest},
		{"missing item", http.MethodPost, "/customer/cart", AddToCartHTTPRequest{CustomerID: "cust-1", Quantity: 1}, http.StatusBadRequest},
		{"missing customer", http.MethodPost, "/customer/cart", AddToCartHTTPRequest{ItemID: "A", Quantity: 1}, http.StatusBadRequest},
		{"item not in cart", http.MethodPut, "/customer/cart", RemoveFromCartHTTPRequest{CustomerID: "cust-1", ItemID: "A"}, http.StatusNotFound},
		{"empty cart checkout", http.MethodPost, "/customer/checkout", CheckoutHTTPRequest{CustomerID: "cust-1"}, http.StatusBadRequest},
		{"unknown customer checkout", http.MethodPost, "/customer/checkout", CheckoutHTTPRequest{CustomerID: "nobody"}, http.StatusNotFound},
		{"unknown customer orders", http.MethodGet, "/customer/orders/nobody", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestHTTP_InvalidBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Post(srv.URL+"/customer/cart", "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_CheckoutScenario(t *testing.T) {
	srv, store := newTestServer(t)

	do(t, srv, http.MethodPost, "/customer/cart", AddToCartHTTPRequest{CustomerID: "cust-1", ItemID: "A", Quantity: 3})
	do(t, srv, http.MethodPost, "/customer/cart", AddToCartHTTPRequest{CustomerID: "cust-1", ItemID: "B", Quantity: 2})

	resp, body := do(t, srv, http.MethodPost, "/customer/checkout", CheckoutHTTPRequest{CustomerID: "cust-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := body["order"].(map[string]any)
	assert.Equal(t, "70", order["totalBill"])
	assert.Equal(t, "cust-1", order["customerId"])

	a, err := store.GetItem(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 2, a.AvailableCount)
	b, err := store.GetItem(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, 0, b.AvailableCount)

	resp, body = do(t, srv, http.MethodGet, "/customer/cart/cust-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["cart"])

	for _, path := range []string{"/customer/orders?customerId=cust-1", "/customer/orders/cust-1"} {
		resp, body = do(t, srv, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		orders := body["_"].([]any)
		require.Len(t, orders, 1)
		assert.Equal(t, order["id"], orders[0].(map[string]any)["id"])
	}

	// B is sold out now.
	do(t, srv, http.MethodPost, "/customer/cart", AddToCartHTTPRequest{CustomerID: "cust-1", ItemID: "B", Quantity: 1})
	resp, body = do(t, srv, http.MethodPost, "/customer/checkout", CheckoutHTTPRequest{CustomerID: "cust-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["message"], "B")
}

func TestHTTP_CheckoutIdempotencyKey(t *testing.T) {
	srv, _ := newTestServer(t)

	do(t, srv, http.MethodPost, "/customer/cart", AddToCartHTTPRequest{CustomerID: "cust-1", ItemID: "A", Quantity: 1})
	resp, _ := do(t, srv, http.MethodPost, "/customer/checkout", CheckoutHTTPRequest{CustomerID: "cust-1"}, headerIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	do(t, srv, http.MethodPost, "/customer/cart", AddToCartHTTPRequest{CustomerID: "cust-1", ItemID: "A", Quantity: 1})
	resp, body := do(t, srv, http.MethodPost, "/customer/checkout", CheckoutHTTPRequest{CustomerID: "cust-1"}, headerIdempotencyKey, "key-1")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, domain.ErrDuplicateRequest.Error(), body["message"])
}

func TestHTTP_CustomerHeader(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := do(t, srv, http.MethodGet, "/customer/cart/cust-1", nil, headerCustomerID, "cust-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, srv, http.MethodGet, "/customer/cart/cust-1", nil, headerCustomerID, "someone-else")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "customer mismatch", body["message"])

	// The header alone identifies the customer.
	resp, _ = do(t, srv, http.MethodPost, "/customer/cart", AddToCartHTTPRequest{ItemID: "A", Quantity: 1}, headerCustomerID, "cust-1")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// A bearer token without a customer ID cannot be resolved by the header authenticator.
	resp, _ = do(t, srv, http.MethodGet, "/customer/cart/cust-1", nil, "Authorization", "Bearer abc")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTP_Profile(t *testing.T) {
	srv, _ := newTestServer(t)

	phone := "555-0100"
	resp, body := do(t, srv, http.MethodPut, "/customer/profile", UpdateProfileHTTPRequest{CustomerID: "cust-1", Phone: &phone})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "555-0100", body["phone"])
	assert.Equal(t, "Ada", body["name"])

	resp, body = do(t, srv, http.MethodGet, "/customer/profile/cust-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ada@example.com", body["email"])

	resp, _ = do(t, srv, http.MethodGet, "/customer/profile/nobody", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_Catalog(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, srv, http.MethodGet, "/shop-items", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["_"], 2)

	resp, body = do(t, srv, http.MethodGet, "/shop-items/B", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Item B", body["title"])
	assert.Equal(t, "20", body["price"])
	assert.NotContains(t, body, "Version")

	resp, _ = do(t, srv, http.MethodGet, "/shop-items/Z", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrItemNotInCart, http.StatusNotFound},
		{domain.ErrInvalidReference, http.StatusBadRequest},
		{domain.ErrEmptyCart, http.StatusBadRequest},
		{&domain.InsufficientStockError{ItemID: "A", Title: "Item A"}, http.StatusBadRequest},
		{domain.ErrDuplicateRequest, http.StatusConflict},
		{domain.ErrCheckoutInProgress, http.StatusConflict},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}

func TestWithRecover(t *testing.T) {
	h := NewHTTPHandler(Services{}, nil, zap.NewNop(), nil)
	mux := http.NewServeMux()
	h.handle(mux, "GET /boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
