package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordway/order-service/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// eventPayload is the wire snapshot frozen into the outbox event. The product
// part is whatever the catalog returned at verification time.
type eventPayload struct {
	OrderID   int64     `json:"orderId"`
	Product   any       `json:"product"`
	Quantity  int       `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// Create inserts the order row and its single outbox event in one
// transaction. The database assigns the strictly increasing order id; the
// event id is a fresh UUID, stable for all later delivery attempts.
func (r *OrderRepository) Create(ctx context.Context, params order.CreateParams) (*order.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	o := &order.Order{
		ProductID: params.ProductID,
		Quantity:  params.Quantity,
		Status:    order.StatusPending,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (product_id, quantity, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, o.ProductID, o.Quantity, o.Status).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	payload, err := json.Marshal(eventPayload{
		OrderID:   o.ID,
		Product:   params.Snapshot,
		Quantity:  o.Quantity,
		Timestamp: o.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, order_id, payload)
		VALUES ($1, $2, $3)
	`, uuid.New().String(), o.ID, payload)
	if err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return o, nil
}

// GetByID returns a single order. It returns order.ErrNotFound when no row
// matches.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	var o order.Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, product_id, quantity, status, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&o.ID, &o.ProductID, &o.Quantity, &o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	return &o, nil
}

// List returns all orders, most recent first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, product_id, quantity, status, created_at
		FROM orders
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		var o order.Order
		if err := rows.Scan(&o.ID, &o.ProductID, &o.Quantity, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading orders: %w", err)
	}
	return out, nil
}

// FetchUndispatched returns events that are due for delivery, oldest first.
// Events deferred by MarkFailed stay invisible until their next_attempt_at.
func (r *OrderRepository) FetchUndispatched(ctx context.Context, limit int) ([]order.OutboxEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT event_id, order_id, payload, dispatched, attempts, created_at
		FROM outbox_events
		WHERE dispatched = false AND next_attempt_at <= now()
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching undispatched events: %w", err)
	}
	defer rows.Close()

	var events []order.OutboxEvent
	for rows.Next() {
		var e order.OutboxEvent
		if err := rows.Scan(&e.EventID, &e.OrderID, &e.Payload, &e.Dispatched, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading outbox events: %w", err)
	}
	return events, nil
}

// MarkDispatched flags an event as delivered. Already-dispatched events are
// left untouched, so repeated calls are no-ops.
func (r *OrderRepository) MarkDispatched(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET dispatched = true
		WHERE event_id = $1 AND dispatched = false
	`, eventID)
	if err != nil {
		return fmt.Errorf("marking event %s dispatched: %w", eventID, err)
	}
	return nil
}

// MarkFailed records a failed delivery attempt and schedules the next one.
func (r *OrderRepository) MarkFailed(ctx context.Context, eventID string, retryAfter time.Duration) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1,
		    next_attempt_at = now() + $2
		WHERE event_id = $1 AND dispatched = false
	`, eventID, retryAfter)
	if err != nil {
		return fmt.Errorf("marking event %s failed: %w", eventID, err)
	}
	return nil
}
