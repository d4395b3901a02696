package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/ordway/order-service/internal/domain/product"
)

// Order status values. The creation path only ever produces StatusPending;
// later lifecycle transitions belong to downstream services.
const (
	StatusPending = "PENDING"
	StatusFailed  = "FAILED"
)

// ErrNotFound is returned when no order exists for a requested id.
var ErrNotFound = errors.New("order not found")

// Order is a persisted order record. ID is assigned by the store at insert
// time and is strictly increasing in creation order.
type Order struct {
	ID        int64     `json:"id"`
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// OutboxEvent is a to-be-delivered order.created event written in the same
// transaction as its order. EventID is stable across redelivery attempts and
// serves as the consumer-side deduplication key. Dispatched is the only field
// mutated after insert.
type OutboxEvent struct {
	EventID    string
	OrderID    int64
	Payload    []byte
	Dispatched bool
	Attempts   int
	CreatedAt  time.Time
}

// CreateParams carries everything the store needs for the atomic
// order-plus-event insert. Snapshot is the product state verified for this
// request; it is frozen into the event payload.
type CreateParams struct {
	ProductID string
	Quantity  int
	Snapshot  product.Product
}

// Repository defines persistence for orders and their outbox.
//
// Create must insert the order row and exactly one outbox event atomically:
// either both rows exist afterwards or neither does.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Order, error)
	GetByID(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context) ([]Order, error)

	// FetchUndispatched returns due, undispatched events oldest first.
	FetchUndispatched(ctx context.Context, limit int) ([]OutboxEvent, error)
	// MarkDispatched is idempotent: marking an already-dispatched event
	// again is a no-op.
	MarkDispatched(ctx context.Context, eventID string) error
	// MarkFailed bumps the attempt counter and defers the event's next
	// delivery attempt by retryAfter.
	MarkFailed(ctx context.Context, eventID string, retryAfter time.Duration) error
}
