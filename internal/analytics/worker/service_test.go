package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/internal/analytics/router"
	"github.com/angelmondragon/orderflow-backend/internal/analytics/types"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
)

func TestBuildEnvelopeMergesBodyAndAttributes(t *testing.T) {
	payload := outbox.PayloadEnvelope{
		EventID:    "evt-1",
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Actor:      &outbox.ActorRef{UserID: uuid.New(), Role: string(enums.RoleCustomer)},
		Data:       json.RawMessage(`{"order_id":"ord-1"}`),
	}
	env, err := buildEnvelope(buildMessage(payload, map[string]string{
		"event_id":       "ignored",
		"event_type":     "order_created",
		"aggregate_type": "order",
		"aggregate_id":   " ord-1 ",
	}))
	require.NoError(t, err)
	require.Equal(t, enums.EventOrderCreated, env.EventType)
	require.Equal(t, enums.AggregateOrder, env.AggregateType)
	require.Equal(t, "ord-1", env.AggregateID)
	require.Equal(t, "evt-1", env.EventID)
	require.Equal(t, payload.OccurredAt, env.OccurredAt)
	require.Equal(t, string(enums.RoleCustomer), env.ActorRole)
	require.Equal(t, 1, env.SchemaVersion)
	require.JSONEq(t, `{"order_id":"ord-1"}`, string(env.Payload))
}

func TestBuildEnvelopeFallsBackToAttributes(t *testing.T) {
	created := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	env, err := buildEnvelope(buildMessage(outbox.PayloadEnvelope{}, map[string]string{
		"event_id":       "evt-attr",
		"event_type":     "payout_requested",
		"aggregate_type": "payout",
		"aggregate_id":   "p-1",
		"created_at":     created.Format(time.RFC3339Nano),
	}))
	require.NoError(t, err)
	require.Equal(t, "evt-attr", env.EventID)
	require.True(t, env.OccurredAt.Equal(created))
}

func TestBuildEnvelopeSchemaVersion(t *testing.T) {
	msg := buildMessage(outbox.PayloadEnvelope{EventID: uuid.NewString()}, map[string]string{
		"event_type":     "refund_settled",
		"aggregate_type": "refund",
		"aggregate_id":   "r-1",
		"schema_version": "2",
	})
	env, err := buildEnvelope(msg)
	require.NoError(t, err)
	require.Equal(t, 2, env.SchemaVersion)

	msg.Attributes["schema_version"] = "two"
	_, err = buildEnvelope(msg)
	require.ErrorContains(t, err, "schema_version")

	// The body version wins over the attribute.
	msg = buildMessage(outbox.PayloadEnvelope{EventID: uuid.NewString(), Version: 3}, msg.Attributes)
	env, err = buildEnvelope(msg)
	require.NoError(t, err)
	require.Equal(t, 3, env.SchemaVersion)
}

func TestBuildEnvelopeRejects(t *testing.T) {
	valid := map[string]string{
		"event_type":     "order_created",
		"aggregate_type": "order",
		"aggregate_id":   "ord-1",
	}
	with := func(key, value string) map[string]string {
		out := map[string]string{}
		for k, v := range valid {
			out[k] = v
		}
		out[key] = value
		return out
	}
	body := outbox.PayloadEnvelope{EventID: uuid.NewString()}

	for name, attrs := range map[string]map[string]string{
		"unknown event type":     with("event_type", "ad_click"),
		"unknown aggregate type": with("aggregate_type", "cart"),
		"missing aggregate id":   with("aggregate_id", " "),
	} {
		_, err := buildEnvelope(buildMessage(body, attrs))
		require.Error(t, err, name)
	}

	_, err := buildEnvelope(buildMessage(outbox.PayloadEnvelope{}, valid))
	require.EqualError(t, err, "event_id missing")
}

func TestProcessSkipsDuplicates(t *testing.T) {
	manager := &stubManager{checkResult: true}
	handler := &stubHandler{}
	svc := newTestService(handler, manager)

	require.Equal(t, metrics.OutcomeDuplicate, svc.process(context.Background(), buildAnalyticsMessage()))
	require.False(t, handler.called)
	require.Len(t, manager.checked, 1)
}

func TestProcessHandlerErrorReleasesAndRetries(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{err: errors.New("boom")}
	svc := newTestService(handler, manager)

	require.Equal(t, metrics.OutcomeRetry, svc.process(context.Background(), buildAnalyticsMessage()))
	require.True(t, handler.called)
	require.Len(t, manager.deleted, 1)
	require.Equal(t, manager.checked[0], manager.deleted[0])
}

func TestProcessDropsInvalidMessages(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{}
	svc := newTestService(handler, manager)

	require.Equal(t, metrics.OutcomeInvalid, svc.process(context.Background(), &gcppubsub.Message{Data: []byte("invalid json")}))

	notUUID := buildMessage(outbox.PayloadEnvelope{EventID: "evt-1"}, buildAnalyticsMessage().Attributes)
	require.Equal(t, metrics.OutcomeInvalid, svc.process(context.Background(), notUUID))

	require.False(t, handler.called)
	require.Empty(t, manager.checked)
}

func TestProcessAcksUnsupportedEvents(t *testing.T) {
	manager := &stubManager{}
	svc := newTestService(&stubHandler{err: router.ErrUnsupportedEventType}, manager)

	require.Equal(t, metrics.OutcomeSkipped, svc.process(context.Background(), buildAnalyticsMessage()))
	require.Empty(t, manager.deleted)
}

func TestProcessRetriesWhenIdempotencyStoreFails(t *testing.T) {
	handler := &stubHandler{}
	svc := newTestService(handler, &stubManager{checkErr: errors.New("redis down")})

	require.Equal(t, metrics.OutcomeRetry, svc.process(context.Background(), buildAnalyticsMessage()))
	require.False(t, handler.called)
}

func TestProcessNacksNewerSchemaWithoutMarking(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{}
	svc := newTestService(handler, manager)
	recorder := svc.metrics.(*recordingMetrics)

	msg := buildAnalyticsMessage()
	msg.Attributes["schema_version"] = "9"
	require.Equal(t, metrics.OutcomeRetry, svc.process(context.Background(), msg))
	require.Empty(t, manager.checked)
	require.False(t, handler.called)
	require.Equal(t, []string{"order_created/retry"}, recorder.outcomes)
}

func TestProcessHandledRecordsOutcome(t *testing.T) {
	handler := &stubHandler{}
	svc := newTestService(handler, &stubManager{})
	recorder := svc.metrics.(*recordingMetrics)

	require.Equal(t, metrics.OutcomeHandled, svc.process(context.Background(), buildAnalyticsMessage()))
	require.Equal(t, "abc-123", handler.envelope.AggregateID)
	require.Equal(t, []string{"order_created/handled"}, recorder.outcomes)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "analytics-test"})
	_, err := NewService(nil, &stubHandler{}, &stubManager{}, logg)
	require.EqualError(t, err, "analytics subscription is required")
}

func buildAnalyticsMessage() *gcppubsub.Message {
	payload := outbox.PayloadEnvelope{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"foo":"bar"}`),
	}
	return buildMessage(payload, map[string]string{
		"event_type":     "order_created",
		"aggregate_type": "order",
		"aggregate_id":   "abc-123",
	})
}

func buildMessage(payload outbox.PayloadEnvelope, attrs map[string]string) *gcppubsub.Message {
	data, _ := json.Marshal(payload)
	return &gcppubsub.Message{
		ID:         "msg-1",
		Data:       data,
		Attributes: attrs,
	}
}

func newTestService(handler Handler, manager *stubManager) *Service {
	return &Service{
		handler: handler,
		manager: manager,
		metrics: &recordingMetrics{},
		logg:    logger.New(logger.Options{ServiceName: "analytics-test"}),
	}
}

type recordingMetrics struct {
	outcomes []string
}

func (r *recordingMetrics) Observe(eventType, outcome string) {
	r.outcomes = append(r.outcomes, eventType+"/"+outcome)
}

type stubHandler struct {
	called   bool
	envelope types.Envelope
	err      error
}

func (h *stubHandler) Handle(ctx context.Context, envelope types.Envelope) error {
	h.called = true
	h.envelope = envelope
	return h.err
}

type stubManager struct {
	checkResult bool
	checkErr    error
	deleteErr   error
	checked     []uuid.UUID
	deleted     []uuid.UUID
}

func (s *stubManager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	s.checked = append(s.checked, eventID)
	return s.checkResult, s.checkErr
}

func (s *stubManager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	s.deleted = append(s.deleted, eventID)
	return s.deleteErr
}
