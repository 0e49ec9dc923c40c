package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Voucher is a discount code. ShopID scopes it to one shop when set.
type Voucher struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Code           string            `gorm:"column:code;not null;uniqueIndex:vouchers_code_key"`
	ShopID         *uuid.UUID        `gorm:"column:shop_id;type:uuid"`
	Type           enums.VoucherType `gorm:"column:type;type:voucher_type;not null"`
	Value          int64             `gorm:"column:value;not null"`
	MinSubtotal    int64             `gorm:"column:min_subtotal;not null;default:0"`
	MaxDiscount    *int64            `gorm:"column:max_discount"`
	StartAt        *time.Time        `gorm:"column:start_at"`
	EndAt          *time.Time        `gorm:"column:end_at"`
	UsageLimit     *int              `gorm:"column:usage_limit"`
	UsedCount      int               `gorm:"column:used_count;not null;default:0"`
	FirstOrderOnly bool              `gorm:"column:first_order_only;not null;default:false"`
	IsActive       bool              `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Voucher) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}
