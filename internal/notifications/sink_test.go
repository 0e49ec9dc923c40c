package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

func TestNotifyQueuesOutboxEvent(t *testing.T) {
	conn := dbtest.Open(t)
	sink := NewSink(outbox.NewService(outbox.NewRepository(conn), nil), nil)
	userID := uuid.New()

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		sink.Notify(context.Background(), tx, Notification{
			UserID: userID,
			Type:   enums.NotificationOrderConfirm,
			Title:  "Order OD1 confirmed",
			Body:   "total 225000 VND",
			Data:   map[string]any{"orderCode": "OD1"},
		})
		return nil
	}))

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, enums.EventNotificationRequested, rows[0].EventType)
	require.Equal(t, enums.AggregateNotification, rows[0].AggregateType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	var event payloads.NotificationRequestedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &event))
	require.Equal(t, enums.AudienceUser, event.Audience)
	require.NotNil(t, event.UserID)
	require.Equal(t, userID, *event.UserID)
	require.Equal(t, rows[0].AggregateID, event.NotificationID)
}

func TestNotifyAdminsHasNoUser(t *testing.T) {
	conn := dbtest.Open(t)
	sink := NewSink(outbox.NewService(outbox.NewRepository(conn), nil), nil)

	sink.NotifyAdmins(context.Background(), conn, Notification{Type: enums.NotificationDisputeRevision, Title: "revision"})

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	var event payloads.NotificationRequestedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &event))
	require.Equal(t, enums.AudienceAdmins, event.Audience)
	require.Nil(t, event.UserID)
}

func TestNotifyFailureDoesNotAbortTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	sink := NewSink(failingEmitter{}, nil)
	shop := models.Shop{OwnerID: uuid.New(), Name: "kept", Status: enums.ShopStatusActive}

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&shop).Error; err != nil {
			return err
		}
		sink.Notify(context.Background(), tx, Notification{UserID: uuid.New(), Type: enums.NotificationOrderUpdate})
		return nil
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.Shop{}).Where("id = ?", shop.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestNilSinkIsNoop(t *testing.T) {
	var sink *Sink
	sink.Notify(context.Background(), nil, Notification{})
}
