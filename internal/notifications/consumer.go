package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

const consumerName = "notifications"

type inbox interface {
	Save(ctx context.Context, n *models.Notification) (bool, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type deliveryMetrics interface {
	Observe(eventType, outcome string)
}

// Consumer turns notification_requested events into inbox rows.
type Consumer struct {
	inbox        inbox
	subscription *gcppubsub.Subscriber
	idempotency  idempotencyChecker
	metrics      deliveryMetrics
	logg         *logger.Logger
}

// NewConsumer builds the inbox consumer. Metrics are optional.
func NewConsumer(repo inbox, subscription *gcppubsub.Subscriber, manager idempotencyChecker, m deliveryMetrics, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, errors.New("notifications repository required")
	}
	if subscription == nil {
		return nil, errors.New("notification subscription required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if m == nil {
		m = (*metrics.ConsumerMetrics)(nil)
	}
	return &Consumer{
		inbox:        repo,
		subscription: subscription,
		idempotency:  manager,
		metrics:      m,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if c.process(ctx, msg) == metrics.OutcomeRetry {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) process(ctx context.Context, msg *gcppubsub.Message) string {
	eventType := strings.TrimSpace(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventNotificationRequested) {
		c.logg.Debug(logCtx, "skipping non-notification event")
		return c.observe(eventType, metrics.OutcomeSkipped)
	}

	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "invalid notification envelope")
		return c.observe(eventType, metrics.OutcomeInvalid)
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Warn(logCtx, "invalid event id")
		return c.observe(eventType, metrics.OutcomeInvalid)
	}
	notification, err := fromPayload(envelope.Data)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "invalid notification payload")
		return c.observe(eventType, metrics.OutcomeInvalid)
	}
	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id":          eventID.String(),
		"notification_id":   notification.ID.String(),
		"notification_type": notification.Type,
		"audience":          notification.Audience,
	})

	already, err := c.idempotency.CheckAndMarkProcessed(logCtx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return c.observe(eventType, metrics.OutcomeRetry)
	}
	if already {
		c.logg.Debug(logCtx, "event already processed")
		return c.observe(eventType, metrics.OutcomeDuplicate)
	}

	created, err := c.inbox.Save(logCtx, notification)
	if err != nil {
		c.logg.Error(logCtx, "notification save failed", err)
		if delErr := c.idempotency.Delete(logCtx, consumerName, eventID); delErr != nil {
			c.logg.Error(logCtx, "release idempotency key", delErr)
		}
		return c.observe(eventType, metrics.OutcomeRetry)
	}
	if !created {
		c.logg.Debug(logCtx, "notification already stored")
		return c.observe(eventType, metrics.OutcomeDuplicate)
	}
	c.logg.Info(logCtx, "notification stored")
	return c.observe(eventType, metrics.OutcomeHandled)
}

func (c *Consumer) observe(eventType, outcome string) string {
	c.metrics.Observe(eventType, outcome)
	return outcome
}

func fromPayload(raw json.RawMessage) (*models.Notification, error) {
	var event payloads.NotificationRequestedEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	switch {
	case event.NotificationID == uuid.Nil:
		return nil, errors.New("notification_id missing")
	case !event.Audience.IsValid():
		return nil, fmt.Errorf("unknown audience %q", event.Audience)
	case event.Audience == enums.AudienceUser && (event.UserID == nil || *event.UserID == uuid.Nil):
		return nil, errors.New("user_id missing")
	case strings.TrimSpace(string(event.Type)) == "":
		return nil, errors.New("type missing")
	case strings.TrimSpace(event.Title) == "":
		return nil, errors.New("title missing")
	}

	n := &models.Notification{
		ID:       event.NotificationID,
		Audience: event.Audience,
		Type:     event.Type,
		Title:    event.Title,
		Body:     event.Body,
	}
	if event.Audience == enums.AudienceUser {
		n.UserID = event.UserID
	}
	if len(event.Data) > 0 {
		data, err := json.Marshal(event.Data)
		if err != nil {
			return nil, fmt.Errorf("encode data: %w", err)
		}
		n.Data = data
	}
	return n, nil
}
