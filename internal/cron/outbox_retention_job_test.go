package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

type purgeRecorder struct {
	cutoffs []time.Time
	deleted int64
	err     error
}

func (p *purgeRecorder) DeletePublishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.deleted, p.err
}

func (p *purgeRecorder) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.deleted, p.err
}

func newRetentionJob(t *testing.T, params OutboxRetentionJobParams, now time.Time) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.New(logger.Options{ServiceName: "cron-test"})
	job, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	typed := job.(*outboxRetentionJob)
	typed.now = func() time.Time { return now }
	return typed
}

func TestOutboxRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		retention int
		want      time.Time
	}{
		{name: "default window", want: now.Add(-30 * 24 * time.Hour)},
		{name: "configured days", retention: 7, want: now.Add(-7 * 24 * time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, letters := &purgeRecorder{deleted: 7}, &purgeRecorder{deleted: 2}
			job := newRetentionJob(t, OutboxRetentionJobParams{Events: events, DeadLetters: letters, Retention: tc.retention}, now)

			require.NoError(t, job.Run(context.Background()))
			require.Equal(t, []time.Time{tc.want}, events.cutoffs)
			require.Equal(t, []time.Time{tc.want}, letters.cutoffs)
		})
	}
}

func TestOutboxRetentionWithoutDeadLetters(t *testing.T) {
	events := &purgeRecorder{}
	job := newRetentionJob(t, OutboxRetentionJobParams{Events: events}, time.Now())
	require.Len(t, job.targets, 1)
	require.NoError(t, job.Run(context.Background()))
	require.Len(t, events.cutoffs, 1)
}

func TestOutboxRetentionCollectsEveryFailure(t *testing.T) {
	events := &purgeRecorder{err: errors.New("events down")}
	letters := &purgeRecorder{err: errors.New("dlq down")}
	job := newRetentionJob(t, OutboxRetentionJobParams{Events: events, DeadLetters: letters}, time.Now())

	err := job.Run(context.Background())
	require.Len(t, multierr.Errors(err), 2)
	require.ErrorContains(t, err, "purge published_events: events down")
	require.ErrorContains(t, err, "purge dead_letters: dlq down")
	require.Len(t, letters.cutoffs, 1)
}

func TestNewOutboxRetentionJobValidation(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Events: &purgeRecorder{}})
	require.ErrorContains(t, err, "logger")
	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.New(logger.Options{ServiceName: "x"})})
	require.ErrorContains(t, err, "outbox repository")
}
