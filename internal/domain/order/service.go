package order

import (
	"context"
	"fmt"

	"github.com/ordway/order-service/internal/domain/product"
)

// ErrMissingProduct is returned when the request carries no product id.
var ErrMissingProduct = fmt.Errorf("productId required")

// InvalidQuantityError indicates a non-positive order quantity.
type InvalidQuantityError struct {
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0, got %d", e.Quantity)
}

// Service coordinates a single order creation: validate the input, verify the
// product against the remote catalog, then persist the order together with its
// outbox event in one transaction. It holds no per-request state and is safe
// for concurrent use.
//
// Event delivery is not part of the request path: the dispatcher picks the
// outbox event up out-of-band, so a broker outage never fails order creation.
type Service struct {
	products product.Verifier
	orders   Repository
}

// NewService creates an order Service with the required dependencies.
func NewService(products product.Verifier, orders Repository) *Service {
	return &Service{
		products: products,
		orders:   orders,
	}
}

// CreateOrder runs the creation sequence and returns the persisted order with
// status PENDING. Validation failures are reported before any remote call or
// write; verification failures are returned unwrapped so callers can map
// product.ErrNotFound, product.ErrTimeout and product.UnavailableError to
// distinct responses.
func (s *Service) CreateOrder(ctx context.Context, productID string, quantity int) (*Order, error) {
	if productID == "" {
		return nil, ErrMissingProduct
	}
	if quantity <= 0 {
		return nil, &InvalidQuantityError{Quantity: quantity}
	}

	// Single verification attempt, fail fast. The snapshot is captured here
	// and never re-fetched.
	snapshot, err := s.products.Verify(ctx, productID)
	if err != nil {
		return nil, err
	}

	o, err := s.orders.Create(ctx, CreateParams{
		ProductID: productID,
		Quantity:  quantity,
		Snapshot:  *snapshot,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return o, nil
}
