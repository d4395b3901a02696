package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for catalog lookups.
var (
	// ErrNotFound is returned when the catalog confirms no such product exists.
	ErrNotFound = errors.New("product not found")

	// ErrTimeout is returned when the catalog did not answer within the
	// configured deadline. Callers translate this to 504, never 502.
	ErrTimeout = errors.New("product service timeout")
)

// UnavailableError indicates the catalog could not be reached or answered
// with an unexpected status. It is distinct from ErrNotFound: the product may
// well exist, we just could not find out.
type UnavailableError struct {
	Status int
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("product service unavailable: status %d", e.Status)
	}
	return fmt.Sprintf("product service unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Product is the catalog snapshot captured at verification time. It is
// embedded into the outbox event payload and never re-fetched afterwards.
type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category,omitempty"`
}

// Verifier confirms a product exists in the remote catalog and returns its
// snapshot. A single attempt per call; retry policy belongs to the caller.
type Verifier interface {
	Verify(ctx context.Context, id string) (*Product, error)
}
