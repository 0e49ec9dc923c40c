package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Shop is a seller storefront; orders are always scoped to exactly one shop.
type Shop struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID   uuid.UUID        `gorm:"column:owner_id;type:uuid;not null;uniqueIndex:shops_owner_id_key"`
	Name      string           `gorm:"column:name;not null"`
	Status    enums.ShopStatus `gorm:"column:status;type:shop_status;not null;default:'PENDING'"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Shop) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}
