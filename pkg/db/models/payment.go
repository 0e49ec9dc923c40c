package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Payment is the single payment value of an order; retries replace it.
type Payment struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID             `gorm:"column:order_id;type:uuid;not null;uniqueIndex:payments_order_id_key"`
	Method      enums.PaymentMethod   `gorm:"column:method;type:payment_method;not null"`
	Status      enums.PaymentStatus   `gorm:"column:status;type:payment_status;not null"`
	Amount      int64                 `gorm:"column:amount;not null"`
	Provider    enums.PaymentProvider `gorm:"column:provider;not null"`
	ProviderRef *string               `gorm:"column:provider_ref"`
	PaidAt      *time.Time            `gorm:"column:paid_at"`
	RefundedAt  *time.Time            `gorm:"column:refunded_at"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
