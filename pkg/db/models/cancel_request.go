package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// CancelRequest remembers the order status it interrupted so a rejection can restore it.
type CancelRequest struct {
	ID             uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;uniqueIndex:cancel_requests_order_id_key"`
	UserID         uuid.UUID                 `gorm:"column:user_id;type:uuid;not null"`
	Reason         string                    `gorm:"column:reason;not null"`
	Status         enums.CancelRequestStatus `gorm:"column:status;type:cancel_request_status;not null"`
	PreviousStatus enums.OrderStatus         `gorm:"column:previous_status;type:order_status;not null"`
	DecisionNote   *string                   `gorm:"column:decision_note"`
	ResolvedBy     *uuid.UUID                `gorm:"column:resolved_by;type:uuid"`
	ResolvedAt     *time.Time                `gorm:"column:resolved_at"`
	CreatedAt      time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *CancelRequest) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}
