package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 10
	publishTimeout      = 15 * time.Second
	maxBackoff          = 10 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

var errNoPublisher = errors.New("no publisher for topic")

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type eventStore interface {
	ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	Park(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error
}

type deadLetterStore interface {
	Insert(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publishMetrics interface {
	IncPublished(eventType string)
	IncFailed(eventType string)
	IncDeadLettered(eventType, reason string)
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func(topic string) publisher

type ServiceParams struct {
	Outbox      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	PubSub      topicSource
	Events      eventStore
	DeadLetters deadLetterStore
	Registry    resolver
	Metrics     publishMetrics
	// Publishers overrides the cached Pub/Sub publishers, for tests.
	Publishers publisherFactory
}

// Service drains outbox_events into Pub/Sub. Messages carry the aggregate id
// as ordering key. When one event of an aggregate fails, the aggregate's later
// events in the same batch are held back so consumers never see them out of
// order.
type Service struct {
	logg         *logger.Logger
	db           txRunner
	pubsub       topicSource
	events       eventStore
	deadLetters  deadLetterStore
	registry     resolver
	metrics      publishMetrics
	publisherFor publisherFactory
	pool         *publisherPool

	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	s := &Service{
		logg:         p.Logger,
		db:           p.DB,
		pubsub:       p.PubSub,
		events:       p.Events,
		deadLetters:  p.DeadLetters,
		registry:     p.Registry,
		metrics:      p.Metrics,
		batchSize:    positiveOr(p.Outbox.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(p.Outbox.MaxAttempts, defaultMaxAttempts),
		pollInterval: defaultPollInterval,
		pool:         &publisherPool{source: p.PubSub, byTopic: map[string]*gcppubsub.Publisher{}},
	}
	if p.Outbox.PollIntervalMS > 0 {
		s.pollInterval = time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond
	}
	if s.metrics == nil {
		s.metrics = (*metrics.OutboxMetrics)(nil)
	}
	s.publisherFor = p.Publishers
	if s.publisherFor == nil {
		s.publisherFor = s.pool.get
	}
	return s, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is canceled. A batch that delivered or dead-lettered
// something is followed immediately by the next one; an idle batch waits one
// poll interval and a failed one backs off exponentially.
func (s *Service) Run(ctx context.Context) error {
	defer s.pool.stop()

	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}

	wait := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.drain(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			wait = nextBackoff(wait, s.pollInterval, maxBackoff)
		case res.progressed():
			wait = s.pollInterval
			continue
		default:
			wait = s.pollInterval
		}
		if err := sleep(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

// batchResult tallies one drain pass.
type batchResult struct {
	published    int
	retried      int
	deadLettered int
	heldBack     int
}

func (b batchResult) progressed() bool {
	return b.published+b.deadLettered > 0
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLettered
)

// drain claims one batch and delivers it inside a single transaction, so the
// row locks hold until every outcome is recorded.
func (s *Service) drain(ctx context.Context) (batchResult, error) {
	var res batchResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		res = batchResult{}
		events, err := s.events.ClaimPending(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}

		held := make(map[uuid.UUID]struct{})
		for _, event := range events {
			if _, ok := held[event.AggregateID]; ok {
				res.heldBack++
				continue
			}
			out, err := s.deliver(ctx, tx, event)
			if err != nil {
				return err
			}
			switch out {
			case outcomePublished:
				res.published++
			case outcomeDeadLettered:
				res.deadLettered++
			case outcomeRetry:
				res.retried++
				held[event.AggregateID] = struct{}{}
			}
		}
		return nil
	})
	if err == nil && res.heldBack > 0 {
		s.logg.Debug(s.logg.WithField(ctx, "held_back", res.heldBack), "outbox rows held behind a failed aggregate")
	}
	return res, err
}

func (s *Service) deliver(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
	})

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcomeDeadLettered, s.deadLetter(logCtx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event_id": resolved.Envelope.EventID,
		"topic":    resolved.Descriptor.Topic,
	})

	err = s.publish(ctx, event, resolved)
	var nonRetryable registry.NonRetryableError
	switch {
	case err == nil:
		if err := s.events.MarkPublished(tx, event.ID); err != nil {
			return 0, fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Info(logCtx, "outbox event published")
		return outcomePublished, nil
	case errors.Is(err, errNoPublisher):
		return outcomeDeadLettered, s.deadLetter(logCtx, tx, event, enums.OutboxDLQReasonUnroutable, err)
	case errors.As(err, &nonRetryable):
		return outcomeDeadLettered, s.deadLetter(logCtx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}

	event.AttemptCount++
	logCtx = s.logg.WithField(logCtx, "attempt", event.AttemptCount)
	if event.AttemptCount >= s.maxAttempts {
		cause := fmt.Errorf("giving up after %d attempts: %w", event.AttemptCount, err)
		return outcomeDeadLettered, s.deadLetter(logCtx, tx, event, enums.OutboxDLQReasonMaxAttempts, cause)
	}

	s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "outbox publish failed, will retry")
	s.metrics.IncFailed(string(event.EventType))
	if err := s.events.RecordFailure(tx, event.ID, err); err != nil {
		return 0, fmt.Errorf("record failure %s: %w", event.ID, err)
	}
	return outcomeRetry, nil
}

// deadLetter copies the row into outbox_dlq and parks it at the attempt
// ceiling, both inside the batch transaction.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	}), "outbox event dead-lettered")

	msg := cause.Error()
	if err := s.deadLetters.Insert(tx, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.events.Park(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("park %s: %w", event.ID, err)
	}
	s.metrics.IncDeadLettered(string(event.EventType), string(reason))
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFor(topic)
	if pub == nil {
		return fmt.Errorf("%w %q", errNoPublisher, topic)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(ctx, message(event, resolved.Envelope))
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for %q returned no result", topic))
	}
	_, err := result.Get(ctx)
	return err
}

// message forwards the stored envelope as-is; attributes repeat the routing
// fields so consumers can filter without decoding the body.
func message(event models.OutboxEvent, env outbox.PayloadEnvelope) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       env.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"schema_version": strconv.Itoa(env.Version),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, ceiling time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, ceiling)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

// publisherPool caches one ordered publisher per topic.
type publisherPool struct {
	source  topicSource
	mu      sync.Mutex
	byTopic map[string]*gcppubsub.Publisher
}

func (p *publisherPool) get(topic string) publisher {
	p.mu.Lock()
	defer p.mu.Unlock()
	pub, ok := p.byTopic[topic]
	if !ok {
		pub = p.source.Publisher(topic)
		if pub == nil {
			return nil
		}
		pub.EnableMessageOrdering = true
		p.byTopic[topic] = pub
	}
	return orderedPublisher{pub}
}

// stop flushes outstanding messages and releases every cached publisher.
func (p *publisherPool) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for topic, pub := range p.byTopic {
		pub.Stop()
		delete(p.byTopic, topic)
	}
}

// orderedPublisher resumes an ordering key after a failed publish. Pub/Sub
// pauses the key on error and would reject the aggregate's retry otherwise.
type orderedPublisher struct {
	pub *gcppubsub.Publisher
}

func (o orderedPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return resumingResult{
		result: o.pub.Publish(ctx, msg),
		resume: func() { o.pub.ResumePublish(msg.OrderingKey) },
	}
}

type resumingResult struct {
	result *gcppubsub.PublishResult
	resume func()
}

func (r resumingResult) Get(ctx context.Context) (string, error) {
	id, err := r.result.Get(ctx)
	if err != nil {
		r.resume()
	}
	return id, err
}
