package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// ReturnRequest carries the buyer's claim and, once approved, the seller's policy decision.
type ReturnRequest struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;uniqueIndex:return_requests_order_id_key"`
	UserID        uuid.UUID                 `gorm:"column:user_id;type:uuid;not null"`
	Reason        string                    `gorm:"column:reason;not null"`
	EvidenceURLs  []string                  `gorm:"column:evidence_urls;type:jsonb;serializer:json"`
	Status        enums.ReturnRequestStatus `gorm:"column:status;type:return_request_status;not null"`
	Resolution    *enums.ReturnResolution   `gorm:"column:resolution"`
	ShippingPayer *enums.ShippingPayer      `gorm:"column:shipping_payer"`
	RestockingFee int64                     `gorm:"column:restocking_fee;not null;default:0"`
	RefundAmount  *int64                    `gorm:"column:refund_amount"`
	DecisionNote  *string                   `gorm:"column:decision_note"`
	ResolvedBy    *uuid.UUID                `gorm:"column:resolved_by;type:uuid"`
	ResolvedAt    *time.Time                `gorm:"column:resolved_at"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *ReturnRequest) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}
