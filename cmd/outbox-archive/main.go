// Command outbox-archive moves dispatched outbox events older than a cutoff
// out of the hot table into a compressed NDJSON archive. Dispatched rows are
// kept (not deleted) by the service itself so duplicates stay observable;
// this tool is the retention policy.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"

	"github.com/ordway/order-service/internal/storage/postgres"
)

// archivedEvent is one NDJSON line in the archive file.
type archivedEvent struct {
	EventID   string          `json:"eventId"`
	OrderID   int64           `json:"orderId"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"createdAt"`
}

func main() {
	var (
		databaseURL string
		outFile     string
		olderThan   time.Duration
		purge       bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&outFile, "out", "outbox-archive.ndjson.gz", "archive output file")
	flag.DurationVar(&olderThan, "older-than", 7*24*time.Hour, "only archive events dispatched before now minus this duration")
	flag.BoolVar(&purge, "purge", false, "delete archived rows after a successful write")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, outFile, olderThan, purge); err != nil {
		slog.Error("archive failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("archive completed successfully")
}

func run(ctx context.Context, databaseURL, outFile string, olderThan time.Duration, purge bool) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	cutoff := time.Now().Add(-olderThan)
	slog.Info("archiving dispatched events",
		slog.Time("cutoff", cutoff),
		slog.String("out", outFile),
	)

	count, err := writeArchive(ctx, pool, outFile, cutoff)
	if err != nil {
		return err
	}
	slog.Info("events archived", slog.Int("count", count))

	if purge && count > 0 {
		tag, err := pool.Exec(ctx, `
			DELETE FROM outbox_events
			WHERE dispatched = true AND created_at < $1
		`, cutoff)
		if err != nil {
			return errors.Wrap(err, "purge archived rows")
		}
		slog.Info("rows purged", slog.Int64("count", tag.RowsAffected()))
	}

	return nil
}

func writeArchive(ctx context.Context, pool *pgxpool.Pool, outFile string, cutoff time.Time) (int, error) {
	f, err := os.Create(outFile)
	if err != nil {
		return 0, errors.Wrap(err, "create archive file")
	}
	defer f.Close()

	gz := pgzip.NewWriter(f)
	w := bufio.NewWriter(gz)
	enc := json.NewEncoder(w)

	rows, err := pool.Query(ctx, `
		SELECT event_id, order_id, payload, attempts, created_at
		FROM outbox_events
		WHERE dispatched = true AND created_at < $1
		ORDER BY created_at ASC
	`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "query dispatched events")
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var e archivedEvent
		if err := rows.Scan(&e.EventID, &e.OrderID, &e.Payload, &e.Attempts, &e.CreatedAt); err != nil {
			return 0, errors.Wrap(err, "scan event")
		}
		if err := enc.Encode(e); err != nil {
			return 0, errors.Wrap(err, "encode event")
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, errors.Wrap(err, "read events")
	}

	if err := w.Flush(); err != nil {
		return 0, errors.Wrap(err, "flush archive")
	}
	if err := gz.Close(); err != nil {
		return 0, errors.Wrap(err, "close gzip stream")
	}
	return count, errors.Wrap(f.Sync(), "sync archive file")
}
