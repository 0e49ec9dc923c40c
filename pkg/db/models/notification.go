package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Notification is an inbox entry. UserID is nil for rows addressed to every
// staff account.
type Notification struct {
	ID        uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    *uuid.UUID                 `gorm:"column:user_id;type:uuid;index:notifications_user_idx" json:"user_id,omitempty"`
	Audience  enums.NotificationAudience `gorm:"column:audience;not null" json:"audience"`
	Type      enums.NotificationType     `gorm:"column:type;not null" json:"type"`
	Title     string                     `gorm:"column:title;not null" json:"title"`
	Body      string                     `gorm:"column:body;not null" json:"body"`
	Data      json.RawMessage            `gorm:"column:data;type:jsonb" json:"data,omitempty"`
	ReadAt    *time.Time                 `gorm:"column:read_at" json:"read_at,omitempty"`
	CreatedAt time.Time                  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	assignID(&n.ID)
	return nil
}
