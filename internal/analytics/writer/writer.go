// Package writer streams order_events rows into BigQuery.
package writer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/orderflow-backend/internal/analytics/types"
)

const (
	defaultBatchSize   = 1
	defaultMaxAttempts = 3
	defaultBackoff     = 250 * time.Millisecond
	defaultMaxBackoff  = 2 * time.Second
)

// Config for New. Zero values fall back to the defaults above.
type Config struct {
	Table       string
	BatchSize   int
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Backoff <= 0 {
		c.Backoff = defaultBackoff
	}
	if c.MaxBackoff < c.Backoff {
		c.MaxBackoff = max(c.Backoff, defaultMaxBackoff)
	}
	return c
}

type inserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter buffers rows and inserts them in batches. Pub/Sub callbacks
// call it concurrently.
type BigQueryWriter struct {
	client    inserter
	table     string
	batchSize int
	cfg       Config

	mu     sync.Mutex
	buffer []types.OrderEventRow
}

func New(client inserter, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	cfg.Table = strings.TrimSpace(cfg.Table)
	if cfg.Table == "" {
		return nil, errors.New("order events table is required")
	}
	cfg = cfg.withDefaults()
	return &BigQueryWriter{
		client:    client,
		table:     cfg.Table,
		batchSize: cfg.BatchSize,
		cfg:       cfg,
	}, nil
}

// Insert buffers row and flushes when the batch is full.
func (w *BigQueryWriter) Insert(ctx context.Context, row types.OrderEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer = append(w.buffer, row)
	if len(w.buffer) < w.batchSize {
		return nil
	}
	return w.flushLocked(ctx)
}

// Flush inserts whatever is buffered.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

func (w *BigQueryWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// flushLocked empties the buffer whatever the outcome. Rows of a failed
// insert come back when their messages are redelivered.
func (w *BigQueryWriter) flushLocked(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	savers := make([]any, 0, len(w.buffer))
	for i := range w.buffer {
		savers = append(savers, &bigquery.StructSaver{
			Struct:   &w.buffer[i],
			Schema:   types.OrderEventsSchema,
			InsertID: w.buffer[i].EventID,
		})
	}
	err := w.insert(ctx, savers)
	w.buffer = w.buffer[:0]
	return err
}

func (w *BigQueryWriter) insert(ctx context.Context, savers []any) error {
	wait := w.cfg.Backoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.client.InsertRows(ctx, w.table, savers)
		if err == nil {
			return nil
		}
		if attempt >= w.cfg.MaxAttempts || !Retryable(err) {
			return fmt.Errorf("insert %d rows into %s after %d attempts: %w", len(savers), w.table, attempt, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, w.cfg.MaxBackoff)
	}
}

// Retryable reports whether an insert error is transient. Row level errors
// are retryable only when every underlying cause is.
func Retryable(err error) bool {
	causes := unwrapInsertErrors(err)
	if len(causes) == 0 {
		return false
	}
	for _, cause := range causes {
		if !transient(cause) {
			return false
		}
	}
	return true
}

func unwrapInsertErrors(err error) []error {
	if err == nil {
		return nil
	}
	var putErr bigquery.PutMultiError
	if errors.As(err, &putErr) {
		var out []error
		for _, rowErr := range putErr {
			for _, inner := range rowErr.Errors {
				out = append(out, unwrapInsertErrors(inner)...)
			}
		}
		return out
	}
	var multi bigquery.MultiError
	if errors.As(err, &multi) {
		var out []error
		for _, inner := range multi {
			out = append(out, unwrapInsertErrors(inner)...)
		}
		return out
	}
	return []error{err}
}

func transient(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal,
			codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}
