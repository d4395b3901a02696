package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordway/order-service/internal/domain/product"
)

// --- Mock implementations ---

type mockVerifier struct {
	snapshot *product.Product
	err      error
	calls    int
}

func (m *mockVerifier) Verify(_ context.Context, _ string) (*product.Product, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.snapshot, nil
}

type mockRepo struct {
	lastParams *CreateParams
	nextID     int64
	err        error
}

func (m *mockRepo) Create(_ context.Context, params CreateParams) (*Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.lastParams = &params
	m.nextID++
	return &Order{
		ID:        m.nextID,
		ProductID: params.ProductID,
		Quantity:  params.Quantity,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}, nil
}

func (m *mockRepo) GetByID(_ context.Context, _ int64) (*Order, error) { return nil, ErrNotFound }
func (m *mockRepo) List(_ context.Context) ([]Order, error)            { return nil, nil }
func (m *mockRepo) FetchUndispatched(_ context.Context, _ int) ([]OutboxEvent, error) {
	return nil, nil
}
func (m *mockRepo) MarkDispatched(_ context.Context, _ string) error { return nil }
func (m *mockRepo) MarkFailed(_ context.Context, _ string, _ time.Duration) error {
	return nil
}

func newTestSnapshot(id string) *product.Product {
	return &product.Product{
		ID:       id,
		Name:     "Widget",
		Price:    decimal.RequireFromString("9.99"),
		Category: "test",
	}
}

// --- Tests ---

func TestCreateOrder_MissingProduct(t *testing.T) {
	v := &mockVerifier{}
	svc := NewService(v, &mockRepo{})

	_, err := svc.CreateOrder(context.Background(), "", 3)
	require.ErrorIs(t, err, ErrMissingProduct)
	assert.Zero(t, v.calls, "no remote call on invalid input")
}

func TestCreateOrder_InvalidQuantity(t *testing.T) {
	for _, qty := range []int{0, -1, -42} {
		v := &mockVerifier{}
		repo := &mockRepo{}
		svc := NewService(v, repo)

		_, err := svc.CreateOrder(context.Background(), "p-1", qty)

		var iqErr *InvalidQuantityError
		require.ErrorAs(t, err, &iqErr)
		assert.Equal(t, qty, iqErr.Quantity)
		assert.Zero(t, v.calls, "no remote call on invalid input")
		assert.Nil(t, repo.lastParams, "no write on invalid input")
	}
}

func TestCreateOrder_ProductNotFound(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(&mockVerifier{err: product.ErrNotFound}, repo)

	_, err := svc.CreateOrder(context.Background(), "p-99", 2)
	require.ErrorIs(t, err, product.ErrNotFound)
	assert.Nil(t, repo.lastParams, "no order persisted for unknown product")
}

func TestCreateOrder_ProductServiceUnavailable(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(&mockVerifier{err: &product.UnavailableError{Status: 503}}, repo)

	_, err := svc.CreateOrder(context.Background(), "p-1", 1)

	var uErr *product.UnavailableError
	require.ErrorAs(t, err, &uErr)
	assert.Equal(t, 503, uErr.Status)
	assert.Nil(t, repo.lastParams)
}

func TestCreateOrder_ProductServiceTimeout(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(&mockVerifier{err: product.ErrTimeout}, repo)

	_, err := svc.CreateOrder(context.Background(), "p-1", 1)
	require.ErrorIs(t, err, product.ErrTimeout)
	assert.Nil(t, repo.lastParams)
}

func TestCreateOrder_Success(t *testing.T) {
	snapshot := newTestSnapshot("p-42")
	repo := &mockRepo{}
	svc := NewService(&mockVerifier{snapshot: snapshot}, repo)

	o, err := svc.CreateOrder(context.Background(), "p-42", 3)
	require.NoError(t, err)

	assert.Equal(t, int64(1), o.ID)
	assert.Equal(t, "p-42", o.ProductID)
	assert.Equal(t, 3, o.Quantity)
	assert.Equal(t, StatusPending, o.Status)

	require.NotNil(t, repo.lastParams)
	assert.Equal(t, *snapshot, repo.lastParams.Snapshot, "verified snapshot is passed to the store")
}

func TestCreateOrder_PersistenceError(t *testing.T) {
	svc := NewService(
		&mockVerifier{snapshot: newTestSnapshot("p-1")},
		&mockRepo{err: errors.New("db write failed")},
	)

	_, err := svc.CreateOrder(context.Background(), "p-1", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}
