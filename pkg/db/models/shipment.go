package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Shipment is 1:1 with an order. Status mirrors the latest ShipmentEvent.
type Shipment struct {
	ID           uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      uuid.UUID            `gorm:"column:order_id;type:uuid;not null;uniqueIndex:shipments_order_id_key"`
	Carrier      string               `gorm:"column:carrier;not null"`
	TrackingCode string               `gorm:"column:tracking_code;not null;uniqueIndex:shipments_tracking_code_key"`
	Status       enums.ShipmentStatus `gorm:"column:status;type:shipment_status;not null"`
	ShippedAt    *time.Time           `gorm:"column:shipped_at"`
	DeliveredAt  *time.Time           `gorm:"column:delivered_at"`
	Events       []ShipmentEvent      `gorm:"foreignKey:ShipmentID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Shipment) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}

// ShipmentEvent is append-only.
type ShipmentEvent struct {
	ID         uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	ShipmentID uuid.UUID            `gorm:"column:shipment_id;type:uuid;not null;index:shipment_events_shipment_id_idx"`
	Status     enums.ShipmentStatus `gorm:"column:status;type:shipment_status;not null"`
	Message    *string              `gorm:"column:message"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (e *ShipmentEvent) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}
