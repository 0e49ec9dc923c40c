package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Dispute allows a single post-decision revision request, tracked by EditCount.
type Dispute struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex:disputes_order_id_key"`
	UserID         uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	Type           enums.DisputeType   `gorm:"column:type;not null"`
	Message        string              `gorm:"column:message;not null"`
	Status         enums.DisputeStatus `gorm:"column:status;type:dispute_status;not null"`
	PreviousStatus enums.OrderStatus   `gorm:"column:previous_status;type:order_status;not null"`
	SellerResponse *string             `gorm:"column:seller_response"`
	Resolution     *string             `gorm:"column:resolution"`
	EditCount      int                 `gorm:"column:edit_count;not null;default:0"`
	ResolvedBy     *uuid.UUID          `gorm:"column:resolved_by;type:uuid"`
	ResolvedAt     *time.Time          `gorm:"column:resolved_at"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (d *Dispute) BeforeCreate(*gorm.DB) error {
	assignID(&d.ID)
	return nil
}
