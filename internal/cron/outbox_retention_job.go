package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const defaultOutboxRetention = 30 * 24 * time.Hour

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	Events      publishedEventPurger
	DeadLetters deadLetterPurger
	// Retention is in days.
	Retention int
}

type publishedEventPurger interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type deadLetterPurger interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type purgeFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// NewOutboxRetentionJob purges published outbox rows and dead letters older
// than the retention window. Unpublished rows are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("outbox retention: logger is required")
	}
	if params.Events == nil {
		return nil, errors.New("outbox retention: outbox repository is required")
	}
	job := &outboxRetentionJob{
		logg:   params.Logger,
		window: defaultOutboxRetention,
		now:    time.Now,
		targets: []purgeTarget{
			{name: "published_events", purge: params.Events.DeletePublishedBefore},
		},
	}
	if params.Retention > 0 {
		job.window = time.Duration(params.Retention) * 24 * time.Hour
	}
	if params.DeadLetters != nil {
		job.targets = append(job.targets, purgeTarget{name: "dead_letters", purge: params.DeadLetters.DeleteBefore})
	}
	return job, nil
}

type purgeTarget struct {
	name  string
	purge purgeFunc
}

type outboxRetentionJob struct {
	logg    *logger.Logger
	window  time.Duration
	targets []purgeTarget
	now     func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run purges every target with the same cutoff. A failing target does not
// stop the others.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	fields := map[string]any{"cutoff": cutoff, "retention": j.window.String()}
	var errs error
	for _, target := range j.targets {
		n, err := target.purge(ctx, cutoff)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("purge %s: %w", target.name, err))
			continue
		}
		fields[target.name+"_deleted"] = n
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention sweep finished")
	return errs
}
