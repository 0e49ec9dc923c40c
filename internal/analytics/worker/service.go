package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/internal/analytics/router"
	"github.com/angelmondragon/orderflow-backend/internal/analytics/types"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
)

const (
	consumerName = "analytics"
	// maxSchemaVersion is the newest envelope version the row mappers understand.
	maxSchemaVersion = 1
)

// Handler turns one order event into analytics rows.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type deliveryMetrics interface {
	Observe(eventType, outcome string)
}

// Service consumes the analytics subscription. Every event is handled at most
// once per event id; failures release the id and nack for redelivery.
type Service struct {
	subscription *gcppubsub.Subscriber
	handler      Handler
	manager      idempotencyChecker
	metrics      deliveryMetrics
	logg         *logger.Logger
}

// NewService creates a new analytics worker service. Metrics are optional.
func NewService(subscription *gcppubsub.Subscriber, handler Handler, manager idempotencyChecker, logg *logger.Logger, opts ...Option) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("analytics subscription is required")
	}
	if handler == nil {
		return nil, errors.New("analytics handler is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	svc := &Service{
		subscription: subscription,
		handler:      handler,
		manager:      manager,
		metrics:      (*metrics.ConsumerMetrics)(nil),
		logg:         logg,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Option customizes a Service.
type Option func(*Service)

// WithMetrics records one outcome per delivery.
func WithMetrics(m deliveryMetrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Run consumes messages until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) == metrics.OutcomeRetry {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process returns the delivery outcome. Only OutcomeRetry nacks.
func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) string {
	logCtx := s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := buildEnvelope(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "invalid analytics envelope")
		return s.observe(msg.Attributes["event_type"], metrics.OutcomeInvalid)
	}
	eventType := string(envelope.EventType)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event_id":       envelope.EventID,
		"event_type":     eventType,
		"aggregate_type": envelope.AggregateType,
		"aggregate_id":   envelope.AggregateID,
		"schema_version": envelope.SchemaVersion,
		"occurred_at":    envelope.OccurredAt.Format(time.RFC3339Nano),
	})

	if envelope.SchemaVersion > maxSchemaVersion {
		// Newer producers are rolled out first; redeliver until this worker catches up.
		s.logg.Warn(logCtx, "analytics envelope version not supported yet")
		return s.observe(eventType, metrics.OutcomeRetry)
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "invalid event id")
		return s.observe(eventType, metrics.OutcomeInvalid)
	}

	already, err := s.manager.CheckAndMarkProcessed(logCtx, consumerName, eventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency check failed", err)
		return s.observe(eventType, metrics.OutcomeRetry)
	}
	if already {
		s.logg.Debug(logCtx, "event already processed")
		return s.observe(eventType, metrics.OutcomeDuplicate)
	}

	if err := s.handler.Handle(logCtx, *envelope); err != nil {
		if errors.Is(err, router.ErrUnsupportedEventType) {
			s.logg.Debug(logCtx, "event not tracked by analytics")
			return s.observe(eventType, metrics.OutcomeSkipped)
		}
		s.logg.Error(logCtx, "analytics handler failed", err)
		if delErr := s.manager.Delete(logCtx, consumerName, eventID); delErr != nil {
			s.logg.Error(logCtx, "release idempotency key", delErr)
		}
		return s.observe(eventType, metrics.OutcomeRetry)
	}

	s.logg.Info(logCtx, "analytics event handled")
	return s.observe(eventType, metrics.OutcomeHandled)
}

func (s *Service) observe(eventType, outcome string) string {
	s.metrics.Observe(strings.TrimSpace(eventType), outcome)
	return outcome
}

// buildEnvelope reads the routing attributes the outbox publisher sets and
// the stored payload envelope in the message body. Identity fields in the
// body take precedence over attributes.
func buildEnvelope(msg *gcppubsub.Message) (*types.Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}
	attrs := attributes(msg.Attributes)

	env := &types.Envelope{
		EventID:     firstNonEmpty(stored.EventID, attrs.get("event_id")),
		AggregateID: attrs.get("aggregate_id"),
		Payload:     stored.Data,
		OccurredAt:  stored.OccurredAt,
	}
	var err error
	if env.EventType, err = enums.ParseOutboxEventType(attrs.get("event_type")); err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}
	if env.AggregateType, err = enums.ParseOutboxAggregateType(attrs.get("aggregate_type")); err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}
	switch {
	case env.AggregateID == "":
		return nil, errors.New("aggregate_id missing")
	case env.EventID == "":
		return nil, errors.New("event_id missing")
	}

	if env.SchemaVersion, err = attrs.version(stored.Version); err != nil {
		return nil, err
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt, _ = time.Parse(time.RFC3339Nano, attrs.get("created_at"))
	}
	env.OccurredAt = env.OccurredAt.UTC()
	if stored.Actor != nil {
		env.ActorRole = stored.Actor.Role
	}
	return env, nil
}

type attributes map[string]string

func (a attributes) get(key string) string {
	return strings.TrimSpace(a[key])
}

// version prefers the body version, then the schema_version attribute. Old
// rows without either are version 1.
func (a attributes) version(body int) (int, error) {
	if body > 0 {
		return body, nil
	}
	raw := a.get("schema_version")
	if raw == "" {
		return 1, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("schema_version: %w", err)
	}
	return max(v, 1), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
