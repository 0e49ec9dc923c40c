package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Address is an entry in the buyer's address book.
type Address struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index:addresses_user_id_idx" json:"user_id"`
	FullName  string    `gorm:"column:full_name;not null" json:"full_name"`
	Phone     string    `gorm:"column:phone;not null" json:"phone"`
	Line1     string    `gorm:"column:line1;not null" json:"line1"`
	Ward      *string   `gorm:"column:ward" json:"ward,omitempty"`
	District  *string   `gorm:"column:district" json:"district,omitempty"`
	Province  *string   `gorm:"column:province" json:"province,omitempty"`
	IsDefault bool      `gorm:"column:is_default;not null;default:false" json:"is_default"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (a *Address) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}
