// Package dispatch delivers outbox events to the message bus, decoupling
// order durability from broker availability.
package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ordway/order-service/internal/domain/order"
)

// Publisher sends one message to the bus. key is the event id and doubles as
// the consumer-side deduplication key; Publish must only return nil after the
// broker acknowledged the message.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Store is the slice of order.Repository the dispatcher needs.
type Store interface {
	FetchUndispatched(ctx context.Context, limit int) ([]order.OutboxEvent, error)
	MarkDispatched(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, retryAfter time.Duration) error
}

// Config tunes the dispatch loop.
type Config struct {
	Topic       string
	Interval    time.Duration
	BatchSize   int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (c *Config) setDefaults() {
	if c.Topic == "" {
		c.Topic = "order.created"
	}
	if c.Interval <= 0 {
		c.Interval = 500 * time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
}

// Dispatcher polls the outbox on a fixed interval and publishes due events.
// Run executes cycles on a single goroutine, so cycles never overlap. A
// failing event is deferred with exponential backoff and does not block the
// rest of its batch; delivery is at-least-once and the order row is never
// touched.
type Dispatcher struct {
	store Store
	pub   Publisher
	cfg   Config
	lg    *zap.Logger
}

// New creates a Dispatcher.
func New(store Store, pub Publisher, cfg Config, lg *zap.Logger) *Dispatcher {
	cfg.setDefaults()
	return &Dispatcher{
		store: store,
		pub:   pub,
		cfg:   cfg,
		lg:    lg,
	}
}

// Run loops until ctx is cancelled. Publish failures are logged and retried
// on later cycles; they are never surfaced to the caller.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.lg.Info("outbox dispatcher started",
		zap.Duration("interval", d.cfg.Interval),
		zap.Int("batch_size", d.cfg.BatchSize),
	)

	for {
		select {
		case <-ctx.Done():
			d.lg.Info("outbox dispatcher stopped")
			return ctx.Err()
		case <-ticker.C:
			d.runCycle(ctx)
		}
	}
}

// runCycle fetches one batch of due events and attempts each in order.
func (d *Dispatcher) runCycle(ctx context.Context) {
	events, err := d.store.FetchUndispatched(ctx, d.cfg.BatchSize)
	if err != nil {
		d.lg.Error("fetch undispatched events", zap.Error(err))
		return
	}

	for _, e := range events {
		if err := d.deliver(ctx, e); err != nil {
			d.lg.Warn("publish failed, will retry",
				zap.String("event_id", e.EventID),
				zap.Int64("order_id", e.OrderID),
				zap.Int("attempts", e.Attempts+1),
				zap.Error(err),
			)
			if mErr := d.store.MarkFailed(ctx, e.EventID, d.backoff(e.Attempts)); mErr != nil {
				d.lg.Error("record failed attempt", zap.String("event_id", e.EventID), zap.Error(mErr))
			}
			continue
		}

		// A crash between the broker ack and this update causes redelivery
		// with the same event id; consumers dedup on it.
		if err := d.store.MarkDispatched(ctx, e.EventID); err != nil {
			d.lg.Error("mark dispatched", zap.String("event_id", e.EventID), zap.Error(err))
			continue
		}

		d.lg.Debug("event dispatched",
			zap.String("event_id", e.EventID),
			zap.Int64("order_id", e.OrderID),
		)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e order.OutboxEvent) error {
	return d.pub.Publish(ctx, d.cfg.Topic, e.EventID, e.Payload)
}

// backoff returns the delay before the next attempt: base doubled per prior
// attempt, capped at MaxBackoff.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.cfg.BaseBackoff
	for i := 0; i < attempts && delay < d.cfg.MaxBackoff; i++ {
		delay *= 2
	}
	if delay > d.cfg.MaxBackoff {
		delay = d.cfg.MaxBackoff
	}
	return delay
}
