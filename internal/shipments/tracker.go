package shipments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

const (
	CarrierMock = "MOCK"

	handoverMessage = "handed over to carrier"
)

// Tracker owns shipments and their append-only event log.
type Tracker struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db, now: time.Now}
}

// Create opens the order's shipment in SHIPPED with its first event. A second
// call for the same order is a conflict.
func (t *Tracker) Create(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, carrier string) (*models.Shipment, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	carrier = strings.TrimSpace(carrier)
	if carrier == "" {
		carrier = CarrierMock
	}

	var count int64
	if err := tx.WithContext(ctx).Model(&models.Shipment{}).Where("order_id = ?", orderID).Count(&count).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check shipment")
	}
	if count > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "shipment already exists")
	}

	shippedAt := t.now().UTC()
	shipment := models.Shipment{
		OrderID:      orderID,
		Carrier:      carrier,
		TrackingCode: t.trackingCode(),
		Status:       enums.ShipmentStatusShipped,
		ShippedAt:    &shippedAt,
	}
	if err := tx.WithContext(ctx).Create(&shipment).Error; err != nil {
		if db.IsUniqueViolation(err, "shipments_order_id_key") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "shipment already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shipment")
	}
	message := handoverMessage
	event := models.ShipmentEvent{ShipmentID: shipment.ID, Status: shipment.Status, Message: &message}
	if err := tx.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shipment event")
	}
	shipment.Events = []models.ShipmentEvent{event}
	return &shipment, nil
}

// Append records a new tracking event and projects it onto the shipment.
// Without override the status must move forward.
func (t *Tracker) Append(ctx context.Context, tx *gorm.DB, shipment *models.Shipment, status enums.ShipmentStatus, message string, override bool) (*models.ShipmentEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if shipment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid shipment status")
	}
	if !override && !shipment.Status.Advances(status) {
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "shipment cannot move from %s to %s", shipment.Status, status)
	}

	now := t.now().UTC()
	updates := map[string]any{"status": status}
	if status == enums.ShipmentStatusDelivered {
		updates["delivered_at"] = now
	}
	res := tx.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ? AND status = ?", shipment.ID, shipment.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update shipment")
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "shipment changed concurrently")
	}

	event := models.ShipmentEvent{ShipmentID: shipment.ID, Status: status}
	if msg := strings.TrimSpace(message); msg != "" {
		event.Message = &msg
	}
	if err := tx.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shipment event")
	}

	shipment.Status = status
	if status == enums.ShipmentStatusDelivered {
		shipment.DeliveredAt = &now
	}
	shipment.Events = append(shipment.Events, event)
	return &event, nil
}

// ForOrder returns the shipment with events oldest first, or nil.
func (t *Tracker) ForOrder(ctx context.Context, conn *gorm.DB, orderID uuid.UUID) (*models.Shipment, error) {
	if conn == nil {
		conn = t.db
	}
	var shipment models.Shipment
	err := conn.WithContext(ctx).
		Preload("Events", func(q *gorm.DB) *gorm.DB {
			return q.Order("created_at ASC, id ASC")
		}).
		Where("order_id = ?", orderID).
		First(&shipment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
	}
	return &shipment, nil
}

func (t *Tracker) trackingCode() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return fmt.Sprintf("TRK%d%s", t.now().UnixMilli(), suffix)
}
