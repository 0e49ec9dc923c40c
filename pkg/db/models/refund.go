package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Refund is the single refund record of an order, upserted by every refund-producing workflow.
type Refund struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      uuid.UUID              `gorm:"column:order_id;type:uuid;not null;uniqueIndex:refunds_order_id_key"`
	Amount       int64                  `gorm:"column:amount;not null"`
	Reason       *string                `gorm:"column:reason"`
	Status       enums.RefundStatus     `gorm:"column:status;type:refund_status;not null"`
	Provider     *enums.PaymentProvider `gorm:"column:provider"`
	ProviderRef  *string                `gorm:"column:provider_ref"`
	FailReason   *string                `gorm:"column:fail_reason"`
	DecisionNote *string                `gorm:"column:decision_note"`
	ProcessedBy  *uuid.UUID             `gorm:"column:processed_by;type:uuid"`
	ProcessedAt  *time.Time             `gorm:"column:processed_at"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Refund) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}
