package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// PayoutAccount is the bank destination for a shop's withdrawals.
type PayoutAccount struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ShopID        uuid.UUID `gorm:"column:shop_id;type:uuid;not null;uniqueIndex:payout_accounts_shop_id_key" json:"shop_id"`
	BankName      string    `gorm:"column:bank_name;not null" json:"bank_name"`
	AccountName   string    `gorm:"column:account_name;not null" json:"account_name"`
	AccountNumber string    `gorm:"column:account_number;not null" json:"account_number"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (a *PayoutAccount) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}

type Payout struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ShopID      uuid.UUID          `gorm:"column:shop_id;type:uuid;not null;index:payouts_shop_id_idx" json:"shop_id"`
	Amount      int64              `gorm:"column:amount;not null" json:"amount"`
	Status      enums.PayoutStatus `gorm:"column:status;type:payout_status;not null" json:"status"`
	Note        *string            `gorm:"column:note" json:"note,omitempty"`
	ProcessedBy *uuid.UUID         `gorm:"column:processed_by;type:uuid" json:"processed_by,omitempty"`
	ProcessedAt *time.Time         `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (p *Payout) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// PayoutIdempotencyKey deduplicates payout requests per shop until ExpiresAt.
type PayoutIdempotencyKey struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ShopID      uuid.UUID `gorm:"column:shop_id;type:uuid;not null;uniqueIndex:payout_idempotency_keys_shop_key_uniq,priority:1"`
	Key         string    `gorm:"column:idempotency_key;not null;uniqueIndex:payout_idempotency_keys_shop_key_uniq,priority:2"`
	RequestHash string    `gorm:"column:request_hash;not null"`
	PayoutID    uuid.UUID `gorm:"column:payout_id;type:uuid;not null"`
	ExpiresAt   time.Time `gorm:"column:expires_at;not null;index:payout_idempotency_keys_expires_at_idx"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (k *PayoutIdempotencyKey) BeforeCreate(*gorm.DB) error {
	assignID(&k.ID)
	return nil
}
