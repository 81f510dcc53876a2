package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/identity"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/upload"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// tokenAuth treats the token text as the role; "bad" fails.
type tokenAuth struct{}

func (tokenAuth) Authenticate(token string) (identity.Caller, error) {
	switch token {
	case "customer":
		return identity.Caller{ID: 42, Role: identity.RoleCustomer}, nil
	case "admin":
		return identity.Caller{ID: 1, Role: identity.RoleAdmin}, nil
	}
	return identity.Caller{}, errors.New("bad token")
}

type stubOrders struct {
	placeErr  error
	got       orders.CartRequest
	gotCaller identity.Caller
	getCalls  int
}

func (s *stubOrders) PlaceOrder(_ context.Context, c identity.Caller, req orders.CartRequest) (orders.Placement, error) {
	s.got, s.gotCaller = req, c
	if s.placeErr != nil {
		return orders.Placement{}, s.placeErr
	}
	return orders.Placement{OrderID: 9, Total: decimal.RequireFromString("20")}, nil
}

func (s *stubOrders) SetOrderStatus(_ context.Context, c identity.Caller, id int64, st orders.Status) (orders.Order, error) {
	if !c.Is(identity.RoleAdmin) {
		return orders.Order{}, orders.ErrForbidden
	}
	return orders.Order{ID: id, Status: st}, nil
}

func (s *stubOrders) DeleteOrder(_ context.Context, c identity.Caller, _ int64) error {
	if !c.Is(identity.RoleAdmin) {
		return orders.ErrForbidden
	}
	return nil
}

func (s *stubOrders) GetOrder(_ context.Context, _ identity.Caller, id int64) (orders.Order, error) {
	s.getCalls++
	if id != 9 {
		return orders.Order{}, orders.ErrNotFound
	}
	return orders.Order{ID: 9, UserID: 42, Status: orders.StatusPending}, nil
}

func (s *stubOrders) ListOrders(context.Context, identity.Caller) ([]orders.Order, error) {
	return []orders.Order{{ID: 9}}, nil
}

func newOrdersRouter(t *testing.T, svc OrderService) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := NewRouter(zap.NewNop(), nil)
	(&OrdersHandler{Orders: svc, Redis: rdb}).Register(r, RequireAuth(tokenAuth{}))
	return r, mr
}

func do(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"].Kind
}

func TestPlaceOrderCreated(t *testing.T) {
	svc := &stubOrders{}
	h, _ := newOrdersRouter(t, svc)

	rec := do(h, http.MethodPost, "/orders", "customer",
		`{"items":[{"product_id":7,"quantity":2}],"shipping_address":"Jl. Merdeka 1"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp PlaceOrderResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(9), resp.OrderID)
	assert.Equal(t, "20.00", resp.Total)
	assert.Equal(t, []orders.CartItem{{ProductID: 7, Quantity: 2}}, svc.got.Items)
	assert.Equal(t, int64(42), svc.gotCaller.ID)
}

func TestPlaceOrderErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{orders.ErrForbidden, http.StatusForbidden},
		{orders.ErrInvalidRequest, http.StatusBadRequest},
		{orders.ErrProductUnavailable, http.StatusUnprocessableEntity},
		{orders.ErrInsufficientStock, http.StatusConflict},
		{orders.ErrStoreFailure, http.StatusInternalServerError},
		{errors.New("raw driver error"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.err.Error(), func(t *testing.T) {
			h, _ := newOrdersRouter(t, &stubOrders{placeErr: tc.err})
			rec := do(h, http.MethodPost, "/orders", "customer", `{"items":[{"product_id":7,"quantity":1}],"shipping_address":"x"}`)
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, string(orders.KindOf(tc.err)), errorKind(t, rec))
			assert.NotContains(t, rec.Body.String(), "raw driver error")
		})
	}
}

func TestPlaceOrderBadJSON(t *testing.T) {
	h, _ := newOrdersRouter(t, &stubOrders{})
	rec := do(h, http.MethodPost, "/orders", "customer", `{"items":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	h, _ := newOrdersRouter(t, &stubOrders{})

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/orders", "", "").Code)
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "/orders", "bad", "").Code)

	// bare token without the Bearer prefix is accepted
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "customer")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSetStatusAndDelete(t *testing.T) {
	h, _ := newOrdersRouter(t, &stubOrders{})

	rec := do(h, http.MethodPut, "/orders/9/status", "customer", `{"status":"paid"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, http.MethodPut, "/orders/9/status", "admin", `{"status":"paid"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var o orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, orders.StatusPaid, o.Status)

	assert.Equal(t, http.StatusNoContent, do(h, http.MethodDelete, "/orders/9", "admin", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodDelete, "/orders/abc", "admin", "").Code)
}

func TestOrderStatusUsesCache(t *testing.T) {
	svc := &stubOrders{}
	h, mr := newOrdersRouter(t, svc)

	rec := do(h, http.MethodGet, "/orders/9/status", "customer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending"`)
	assert.Equal(t, 1, svc.getCalls)
	assert.True(t, mr.Exists("order_status:9"))

	rec = do(h, http.MethodGet, "/orders/9/status", "customer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.getCalls)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/orders/10/status", "customer", "").Code)
}

type stubCatalog struct{}

func (stubCatalog) List(context.Context) ([]catalog.Product, error) {
	return []catalog.Product{{ID: 7, Name: "Mug", Price: decimal.RequireFromString("10"), IsActive: true}}, nil
}

func (stubCatalog) Get(_ context.Context, id int64) (catalog.Product, error) {
	if id != 7 {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return catalog.Product{ID: 7, Name: "Mug"}, nil
}

func (stubCatalog) Create(_ context.Context, c identity.Caller, in catalog.Input) (catalog.Product, error) {
	if !c.Is(identity.RoleAdmin) {
		return catalog.Product{}, catalog.ErrForbidden
	}
	if err := in.Validate(); err != nil {
		return catalog.Product{}, err
	}
	return catalog.Product{ID: 8, Name: in.Name, Price: in.Price}, nil
}

func (stubCatalog) Update(context.Context, identity.Caller, int64, catalog.Input) (catalog.Product, error) {
	return catalog.Product{}, errors.New("connection reset")
}

func (stubCatalog) Delete(context.Context, identity.Caller, int64) error { return nil }

func TestProductsRoutes(t *testing.T) {
	r := NewRouter(zap.NewNop(), nil)
	(&ProductsHandler{Catalog: stubCatalog{}, Log: zap.NewNop()}).Register(r, RequireAuth(tokenAuth{}))

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/products", "", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/products/7", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/products/8", "", "").Code)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/products", "", `{}`).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/products", "customer", `{"name":"x","price":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/products", "admin", `{"name":"","price":1}`).Code)
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/products", "admin", `{"name":"Cup","price":"4.50","stock":3}`).Code)

	rec := do(r, http.MethodPut, "/products/7", "admin", `{"name":"Cup","price":1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/products/7", "admin", "").Code)
}

func TestUploadImage(t *testing.T) {
	store, err := upload.NewStore(t.TempDir(), 1<<10)
	require.NoError(t, err)
	r := NewRouter(zap.NewNop(), nil)
	(&UploadHandler{Store: store, Log: zap.NewNop()}).Register(r, RequireAuth(tokenAuth{}))

	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	body, contentType := multipartBody(t, "image", "a.png", png)

	send := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusForbidden, send("customer").Code)

	rec := send("admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp["imageUrl"], "http://example.com/uploads/"), resp["imageUrl"])

	path := strings.TrimPrefix(resp["imageUrl"], "http://example.com")
	get := httptest.NewRecorder()
	r.ServeHTTP(get, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, png, get.Body.Bytes())
}

func multipartBody(t *testing.T, field, filename string, data []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

type countingOrders struct {
	stubOrders
	placed int
}

func (c *countingOrders) PlaceOrder(ctx context.Context, caller identity.Caller, req orders.CartRequest) (orders.Placement, error) {
	c.placed++
	return c.stubOrders.PlaceOrder(ctx, caller, req)
}

func TestPlaceOrderIdempotencyKey(t *testing.T) {
	svc := &countingOrders{}
	h, mr := newOrdersRouter(t, svc)
	body := `{"items":[{"product_id":7,"quantity":2}],"shipping_address":"x"}`

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		req.Header.Set("Authorization", "customer")
		req.Header.Set("Idempotency-Key", key)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send("abc")
	require.Equal(t, http.StatusCreated, first.Code)

	again := send("abc")
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), again.Body.String())
	assert.Equal(t, 1, svc.placed)

	assert.Equal(t, http.StatusCreated, send("other").Code)
	assert.Equal(t, 2, svc.placed)

	// a claim without a stored response means the first call is still running
	require.NoError(t, mr.Set("idem:order:create:42:busy", "1"))
	assert.Equal(t, http.StatusConflict, send("busy").Code)
	assert.Equal(t, 2, svc.placed)
}

func TestPlaceOrderIdempotencyKeyReleasedOnFailure(t *testing.T) {
	svc := &stubOrders{placeErr: orders.ErrInsufficientStock}
	h, mr := newOrdersRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/orders",
		strings.NewReader(`{"items":[{"product_id":7,"quantity":9}],"shipping_address":"x"}`))
	req.Header.Set("Authorization", "customer")
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, mr.Exists("idem:order:create:42:k1"))
}
