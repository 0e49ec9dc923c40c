package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
)

type fakeLock struct {
	held       bool
	acquireErr error
	released   int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.released++
	return nil
}

type countingJob struct {
	name string
	err  error
	runs int
	run  func(ctx context.Context) error
}

func (c *countingJob) Name() string { return c.name }

func (c *countingJob) Run(ctx context.Context) error {
	c.runs++
	if c.run != nil {
		return c.run(ctx)
	}
	return c.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return svc
}

func TestRunOnceRunsEveryJobEvenAfterFailure(t *testing.T) {
	failing := &countingJob{name: "outbox-retention", err: errors.New("boom")}
	ok := &countingJob{name: "payout-idempotency-retention"}
	lock := &fakeLock{}
	svc := newTestService(t, lock, failing, ok)

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"outbox-retention", "payout-idempotency-retention"}, report.Ran)
	require.Equal(t, []string{"outbox-retention"}, report.Failed)
	require.Equal(t, 1, failing.runs)
	require.Equal(t, 1, ok.runs)
	require.Equal(t, 1, lock.released)
	require.False(t, lock.held)
}

func TestRunOnceRecoversPanickingJob(t *testing.T) {
	panicking := &countingJob{name: "bad", run: func(context.Context) error { panic("nil map") }}
	after := &countingJob{name: "after"}
	svc := newTestService(t, &fakeLock{}, panicking, after)

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"bad"}, report.Failed)
	require.Equal(t, 1, after.runs)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &countingJob{name: "outbox-retention"}
	svc := newTestService(t, &fakeLock{held: true}, job)

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, report.Skipped)
	require.Zero(t, job.runs)
}

func TestRunOnceReturnsLockErrors(t *testing.T) {
	svc := newTestService(t, &fakeLock{acquireErr: errors.New("redis down")})
	_, err := svc.RunOnce(context.Background())
	require.ErrorContains(t, err, "redis down")
}

func TestJobsRunUnderTimeout(t *testing.T) {
	var deadline time.Time
	job := &countingJob{name: "deadline", run: func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}}
	svc := newTestService(t, &fakeLock{}, job)
	svc.jobTimeout = time.Minute

	_, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestRunStopsWhenContextCanceled(t *testing.T) {
	job := &countingJob{name: "once"}
	svc := newTestService(t, &fakeLock{}, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, svc.Run(ctx), context.Canceled)
	require.Zero(t, job.runs)
}

func TestNewServiceDefaults(t *testing.T) {
	svc, err := NewService(ServiceParams{Logger: logger.New(logger.Options{Output: io.Discard}), Lock: &fakeLock{}})
	require.NoError(t, err)
	require.Equal(t, defaultInterval, svc.interval)
	require.Equal(t, defaultJobTimeout, svc.jobTimeout)

	_, err = NewService(ServiceParams{Lock: &fakeLock{}})
	require.Error(t, err)
}
