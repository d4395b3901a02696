package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordway/order-service/internal/domain/order"
	"github.com/ordway/order-service/internal/domain/product"
)

// --- Mock implementations ---

type mockVerifier struct {
	snapshot *product.Product
	err      error
}

func (m *mockVerifier) Verify(_ context.Context, _ string) (*product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.snapshot, nil
}

type mockRepo struct {
	orders    []order.Order
	createErr error
	nextID    int64
}

func (m *mockRepo) Create(_ context.Context, params order.CreateParams) (*order.Order, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.nextID++
	o := order.Order{
		ID:        m.nextID,
		ProductID: params.ProductID,
		Quantity:  params.Quantity,
		Status:    order.StatusPending,
		CreatedAt: time.Now(),
	}
	m.orders = append(m.orders, o)
	return &o, nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*order.Order, error) {
	for i := range m.orders {
		if m.orders[i].ID == id {
			return &m.orders[i], nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *mockRepo) List(_ context.Context) ([]order.Order, error) {
	out := make([]order.Order, len(m.orders))
	for i := range m.orders {
		out[len(m.orders)-1-i] = m.orders[i]
	}
	return out, nil
}

func (m *mockRepo) FetchUndispatched(_ context.Context, _ int) ([]order.OutboxEvent, error) {
	return nil, nil
}
func (m *mockRepo) MarkDispatched(_ context.Context, _ string) error { return nil }
func (m *mockRepo) MarkFailed(_ context.Context, _ string, _ time.Duration) error {
	return nil
}

// --- Helpers ---

func newTestHandler(v product.Verifier, repo *mockRepo) http.Handler {
	return NewHandler(order.NewService(v, repo), repo).Routes()
}

func defaultVerifier() *mockVerifier {
	return &mockVerifier{snapshot: &product.Product{ID: "p-42", Name: "Widget"}}
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

// --- Tests ---

func TestCreateOrder_Created(t *testing.T) {
	repo := &mockRepo{}
	h := newTestHandler(defaultVerifier(), repo)

	rec := doJSON(t, h, http.MethodPost, "/", `{"productId":"p-42","quantity":3}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var o order.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, int64(1), o.ID)
	assert.Equal(t, "p-42", o.ProductID)
	assert.Equal(t, 3, o.Quantity)
	assert.Equal(t, order.StatusPending, o.Status)
}

func TestCreateOrder_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"productId":`},
		{"missing productId", `{"quantity":3}`},
		{"empty productId", `{"productId":"","quantity":3}`},
		{"zero quantity", `{"productId":"p-42","quantity":0}`},
		{"negative quantity", `{"productId":"p-42","quantity":-1}`},
		{"fractional quantity", `{"productId":"p-42","quantity":1.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{}
			h := newTestHandler(defaultVerifier(), repo)

			rec := doJSON(t, h, http.MethodPost, "/", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, CodeValidation, decodeError(t, rec).Code)
			assert.Empty(t, repo.orders, "no order persisted for invalid input")
		})
	}
}

func TestCreateOrder_ProductNotFound(t *testing.T) {
	repo := &mockRepo{}
	h := newTestHandler(&mockVerifier{err: product.ErrNotFound}, repo)

	rec := doJSON(t, h, http.MethodPost, "/", `{"productId":"p-99","quantity":2}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeProductNotFound, decodeError(t, rec).Code)
	assert.Empty(t, repo.orders, "no order persisted for unknown product")
}

func TestCreateOrder_ProductServiceUnavailable(t *testing.T) {
	h := newTestHandler(&mockVerifier{err: &product.UnavailableError{Status: 503}}, &mockRepo{})

	rec := doJSON(t, h, http.MethodPost, "/", `{"productId":"p-1","quantity":1}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, CodeProductUnavailable, decodeError(t, rec).Code)
}

func TestCreateOrder_ProductServiceTimeout(t *testing.T) {
	h := newTestHandler(&mockVerifier{err: product.ErrTimeout}, &mockRepo{})

	rec := doJSON(t, h, http.MethodPost, "/", `{"productId":"p-1","quantity":1}`)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, CodeProductTimeout, decodeError(t, rec).Code)
}

func TestCreateOrder_PersistenceError(t *testing.T) {
	repo := &mockRepo{createErr: errors.New("db write failed")}
	h := newTestHandler(defaultVerifier(), repo)

	rec := doJSON(t, h, http.MethodPost, "/", `{"productId":"p-42","quantity":1}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeInternal, decodeError(t, rec).Code)
}

func TestListOrders(t *testing.T) {
	repo := &mockRepo{}
	h := newTestHandler(defaultVerifier(), repo)

	for range 3 {
		rec := doJSON(t, h, http.MethodPost, "/", `{"productId":"p-42","quantity":1}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []order.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 3)
	assert.Equal(t, int64(3), list[0].ID, "most recent order first")
	assert.Equal(t, int64(1), list[2].ID)
}

func TestListOrders_Empty(t *testing.T) {
	h := newTestHandler(defaultVerifier(), &mockRepo{})

	rec := doJSON(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String(), "empty list, not null")
}

func TestGetOrder(t *testing.T) {
	repo := &mockRepo{}
	h := newTestHandler(defaultVerifier(), repo)

	rec := doJSON(t, h, http.MethodPost, "/", `{"productId":"p-42","quantity":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var o order.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, int64(1), o.ID)
}

func TestGetOrder_NotFound(t *testing.T) {
	h := newTestHandler(defaultVerifier(), &mockRepo{})

	for _, target := range []string{"/123", "/not-a-number"} {
		rec := doJSON(t, h, http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, CodeOrderNotFound, decodeError(t, rec).Code, target)
	}
}
