package writer

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/orderflow-backend/internal/analytics/types"
)

func TestNewValidatesInput(t *testing.T) {
	_, err := New(nil, Config{Table: "order_events"})
	require.Error(t, err)
	_, err = New(&fakeInserter{}, Config{Table: " "})
	require.Error(t, err)

	w, err := New(&fakeInserter{}, Config{Table: "order_events"})
	require.NoError(t, err)
	require.Equal(t, defaultBatchSize, w.batchSize)
	require.Equal(t, defaultMaxAttempts, w.cfg.MaxAttempts)
	require.Equal(t, defaultMaxBackoff, w.cfg.MaxBackoff)
}

func TestInsertRetriesTransientFailures(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	fake.results = []error{&googleapi.Error{Code: http.StatusServiceUnavailable}, nil}

	require.NoError(t, w.Insert(context.Background(), types.OrderEventRow{EventID: "1"}))
	require.Len(t, fake.calls, 2)
	require.Equal(t, "order_events", fake.calls[1].table)
	require.Zero(t, w.Pending())
}

func TestInsertGivesUpOnPermanentFailure(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	fake.results = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	err := w.Insert(context.Background(), types.OrderEventRow{EventID: "1"})
	require.ErrorContains(t, err, "after 1 attempts")
	require.Len(t, fake.calls, 1)
	require.Zero(t, w.Pending())
}

func TestInsertStopsAtMaxAttempts(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	unavailable := status.Error(codes.Unavailable, "try later")
	fake.results = []error{unavailable, unavailable, unavailable, unavailable}

	err := w.Insert(context.Background(), types.OrderEventRow{EventID: "1"})
	require.ErrorIs(t, err, unavailable)
	require.Len(t, fake.calls, defaultMaxAttempts)
}

func TestSaverUsesEventIDAndSchema(t *testing.T) {
	w, fake := newTestWriter(t, 1)

	require.NoError(t, w.Insert(context.Background(), types.OrderEventRow{EventID: "evt-9"}))
	saver, ok := fake.lastRows[0].(*bigquery.StructSaver)
	require.True(t, ok, "got %T", fake.lastRows[0])
	require.Equal(t, "evt-9", saver.InsertID)
	require.Len(t, saver.Schema, len(types.OrderEventsSchema))
}

func TestBatchesUntilFullOrFlushed(t *testing.T) {
	w, fake := newTestWriter(t, 2)
	ctx := context.Background()

	require.NoError(t, w.Insert(ctx, types.OrderEventRow{EventID: "1"}))
	require.Empty(t, fake.calls)
	require.NoError(t, w.Insert(ctx, types.OrderEventRow{EventID: "2"}))
	require.Len(t, fake.calls, 1)
	require.Equal(t, 2, fake.calls[0].rows)

	require.NoError(t, w.Insert(ctx, types.OrderEventRow{EventID: "3"}))
	require.Equal(t, 1, w.Pending())
	require.NoError(t, w.Flush(ctx))
	require.Len(t, fake.calls, 2)
	require.Zero(t, w.Pending())

	require.NoError(t, w.Flush(ctx))
	require.Len(t, fake.calls, 2)
}

func TestRetryable(t *testing.T) {
	transientErr := &googleapi.Error{Code: http.StatusTooManyRequests}
	invalid := &googleapi.Error{Code: http.StatusBadRequest}

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"http 429", transientErr, true},
		{"http 400", invalid, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "x"), true},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "x"), false},
		{"all rows transient", bigquery.PutMultiError{
			{InsertID: "a", Errors: bigquery.MultiError{transientErr}},
			{InsertID: "b", Errors: bigquery.MultiError{transientErr}},
		}, true},
		{"one row invalid", bigquery.PutMultiError{
			{InsertID: "a", Errors: bigquery.MultiError{transientErr}},
			{InsertID: "b", Errors: bigquery.MultiError{invalid}},
		}, false},
		{"empty row errors", bigquery.PutMultiError{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}

type insertCall struct {
	table string
	rows  int
}

type fakeInserter struct {
	results  []error
	calls    []insertCall
	lastRows []any
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	var err error
	if n := len(f.calls); n < len(f.results) {
		err = f.results[n]
	}
	f.calls = append(f.calls, insertCall{table: table, rows: len(rows)})
	f.lastRows = rows
	return err
}

func newTestWriter(t *testing.T, batch int) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	fake := &fakeInserter{}
	w, err := New(fake, Config{
		Table:      "order_events",
		BatchSize:  batch,
		Backoff:    time.Nanosecond,
		MaxBackoff: time.Nanosecond,
	})
	require.NoError(t, err)
	return w, fake
}
