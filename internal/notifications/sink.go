package notifications

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

// Notification is a message for one user.
type Notification struct {
	UserID uuid.UUID
	Type   enums.NotificationType
	Title  string
	Body   string
	Data   map[string]any
}

// Sink queues notification_requested events. Delivery is best effort: a
// failure is logged and never aborts the caller's transaction.
type Sink struct {
	emitter outbox.Emitter
	logg    *logger.Logger
}

func NewSink(emitter outbox.Emitter, logg *logger.Logger) *Sink {
	return &Sink{emitter: emitter, logg: logg}
}

// Notify addresses a single user.
func (s *Sink) Notify(ctx context.Context, tx *gorm.DB, n Notification) {
	userID := n.UserID
	s.emit(ctx, tx, payloads.NotificationRequestedEvent{
		NotificationID: uuid.New(),
		Audience:       enums.AudienceUser,
		UserID:         &userID,
		Type:           n.Type,
		Title:          n.Title,
		Body:           n.Body,
		Data:           n.Data,
	})
}

// NotifyAdmins fans out to every admin and CS account downstream.
func (s *Sink) NotifyAdmins(ctx context.Context, tx *gorm.DB, n Notification) {
	s.emit(ctx, tx, payloads.NotificationRequestedEvent{
		NotificationID: uuid.New(),
		Audience:       enums.AudienceAdmins,
		Type:           n.Type,
		Title:          n.Title,
		Body:           n.Body,
		Data:           n.Data,
	})
}

func (s *Sink) emit(ctx context.Context, tx *gorm.DB, event payloads.NotificationRequestedEvent) {
	if s == nil || s.emitter == nil || tx == nil {
		return
	}
	// savepoint keeps a failed insert from poisoning the outer transaction
	err := tx.Transaction(func(sp *gorm.DB) error {
		return s.emitter.Emit(ctx, sp, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   event.NotificationID,
			Data:          event,
		})
	})
	if err != nil && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"notification_type": event.Type,
			"audience":          event.Audience,
		})
		s.logg.Error(logCtx, "notification dropped", err)
	}
}
