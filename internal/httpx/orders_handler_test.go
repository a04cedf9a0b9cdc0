package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ariefcatur/marketplace-orders/internal/metrics"
	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokens map[string]orders.Actor

func (t tokens) ResolveActor(tok string) (orders.Actor, error) {
	a, ok := t[tok]
	if !ok {
		return orders.Actor{}, errors.New("unknown token")
	}
	return a, nil
}

type fakeOrders struct {
	err        error
	lastActor  orders.Actor
	lastFilter orders.ListFilter
	lastTarget orders.Status
	lastItems  []orders.ItemInput
}

func (f *fakeOrders) CreateOrder(_ context.Context, buyerID string, items []orders.ItemInput) (orders.Order, error) {
	f.lastItems = items
	if f.err != nil {
		return orders.Order{}, f.err
	}
	return orders.Order{ID: "o1", BuyerID: buyerID, SellerID: "S1", Status: orders.StatusPending, Total: decimal.RequireFromString("25.00")}, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, a orders.Actor, id string) (orders.Order, error) {
	f.lastActor = a
	if f.err != nil {
		return orders.Order{}, f.err
	}
	return orders.Order{ID: id, Status: orders.StatusPending}, nil
}

func (f *fakeOrders) ListOrders(_ context.Context, a orders.Actor, lf orders.ListFilter) ([]orders.Order, error) {
	f.lastActor, f.lastFilter = a, lf
	return nil, f.err
}

func (f *fakeOrders) ChangeOrderStatus(_ context.Context, a orders.Actor, id string, to orders.Status) (orders.Order, error) {
	f.lastActor, f.lastTarget = a, to
	if f.err != nil {
		return orders.Order{}, f.err
	}
	return orders.Order{ID: id, Status: to}, nil
}

func newTestRouter(svc *fakeOrders) http.Handler {
	reg := metrics.NewRegistry()
	r := NewRouter(RouterDeps{Log: zerolog.Nop(), Metrics: metrics.NewServerMetrics(reg, "test"), Gatherer: reg})
	h := &OrdersHandler{
		Orders: svc,
		Auth: tokens{
			"buyer":  {ID: "B1", Role: orders.RoleBuyer},
			"seller": {ID: "S1", Role: orders.RoleSeller},
			"admin":  {ID: "root", Role: orders.RoleAdmin},
		},
		Log: zerolog.Nop(),
	}
	h.Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResp {
	t.Helper()
	var e ErrorResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestCreateOrder(t *testing.T) {
	svc := &fakeOrders{}
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodPost, "/orders", "buyer", `{"items":[{"product_id":"P","quantity":2}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var o orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, "B1", o.BuyerID)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("25")))
	assert.Equal(t, []orders.ItemInput{{ProductID: "P", Quantity: 2}}, svc.lastItems)
}

func TestCreateOrderRequiresBuyer(t *testing.T) {
	h := newTestRouter(&fakeOrders{})
	rec := do(t, h, http.MethodPost, "/orders", "seller", `{"items":[]}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, "/orders", "", `{"items":[]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/orders", "forged", `{"items":[]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/orders", "buyer", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		kind string
	}{
		{fmt.Errorf("%w: empty cart", orders.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{&orders.ProductNotFoundError{ProductID: "X"}, http.StatusUnprocessableEntity, "product_not_found"},
		{&orders.StockError{ProductID: "P", Requested: 9, Available: 5}, http.StatusConflict, "insufficient_stock"},
		{&orders.MixedSellerError{SellerIDs: []string{"S1", "S2"}}, http.StatusUnprocessableEntity, "mixed_seller_cart"},
		{fmt.Errorf("%w: o1", orders.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: nope", orders.ErrForbidden), http.StatusForbidden, "forbidden"},
		{fmt.Errorf("%w: begin: %w", orders.ErrTransactionFailed, errors.New("dial tcp")), http.StatusServiceUnavailable, "transaction_failed"},
		{errors.New("boom"), http.StatusInternalServerError, "other"},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			h := newTestRouter(&fakeOrders{err: tc.err})
			rec := do(t, h, http.MethodPost, "/orders", "buyer", `{"items":[{"product_id":"P","quantity":1}]}`)
			assert.Equal(t, tc.code, rec.Code)
			e := decodeError(t, rec)
			assert.Equal(t, tc.kind, e.Error)
			if tc.code >= http.StatusInternalServerError {
				assert.NotContains(t, e.Message, "dial tcp")
			}
		})
	}
}

func TestStockErrorDetails(t *testing.T) {
	h := newTestRouter(&fakeOrders{err: &orders.StockError{ProductID: "P", Requested: 9, Available: 5}})
	rec := do(t, h, http.MethodPost, "/orders", "buyer", `{"items":[{"product_id":"P","quantity":9}]}`)
	var body struct {
		Details orders.StockError `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, orders.StockError{ProductID: "P", Requested: 9, Available: 5}, body.Details)
}

func TestGetOrderPassesActor(t *testing.T) {
	svc := &fakeOrders{}
	h := newTestRouter(svc)
	rec := do(t, h, http.MethodGet, "/orders/o9", "seller", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.Actor{ID: "S1", Role: orders.RoleSeller}, svc.lastActor)
}

func TestListOrdersQuery(t *testing.T) {
	svc := &fakeOrders{}
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodGet, "/orders?status=shipped&limit=10&offset=20", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.ListFilter{Status: orders.StatusShipped, Limit: 10, Offset: 20}, svc.lastFilter)
	assert.JSONEq(t, `{"orders":[],"limit":10,"offset":20}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/orders?limit=5000", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxListLimit, svc.lastFilter.Limit)

	rec = do(t, h, http.MethodGet, "/orders?status=lost", "admin", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/orders?limit=ten", "admin", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangeStatus(t *testing.T) {
	svc := &fakeOrders{}
	h := newTestRouter(svc)

	for _, method := range []string{http.MethodPut, http.MethodPatch} {
		rec := do(t, h, method, "/orders/o1/status", "seller", `{"status":"shipped"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, orders.StatusShipped, svc.lastTarget)
	}

	svc.err = fmt.Errorf("%w: completed -> pending", orders.ErrIllegalTransition)
	rec := do(t, h, http.MethodPut, "/orders/o1/status", "buyer", `{"status":"pending"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "illegal_transition", decodeError(t, rec).Error)

	svc.err = orders.Transition(orders.StatusPending, orders.StatusShipped, orders.RelBuyer, orders.RoleBuyer)
	rec = do(t, h, http.MethodPatch, "/orders/o1/status", "buyer", `{"status":"shipped"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"from":"pending","to":"shipped","role":"buyer"}`, mustJSON(t, decodeError(t, rec).Details))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(&fakeOrders{})
	rec := do(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	do(t, h, http.MethodGet, "/orders/o1", "admin", "")
	rec = do(t, h, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/orders/{id}"`)
}
