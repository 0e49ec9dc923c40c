package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// ShippingSnapshot is the destination copied onto the order at checkout.
type ShippingSnapshot struct {
	FullName string  `gorm:"column:full_name" json:"full_name"`
	Phone    string  `gorm:"column:phone" json:"phone"`
	Line1    string  `gorm:"column:line1" json:"line1"`
	Ward     *string `gorm:"column:ward" json:"ward,omitempty"`
	District *string `gorm:"column:district" json:"district,omitempty"`
	Province *string `gorm:"column:province" json:"province,omitempty"`
}

// Order is one shop's slice of a checkout. Money columns are minor units and
// satisfy total = subtotal + shipping_fee - discount.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Code          string              `gorm:"column:code;not null;uniqueIndex:orders_code_key"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index:orders_user_id_idx"`
	ShopID        uuid.UUID           `gorm:"column:shop_id;type:uuid;not null;index:orders_shop_id_idx"`
	Status        enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'PLACED'"`
	Subtotal      int64               `gorm:"column:subtotal;not null"`
	ShippingFee   int64               `gorm:"column:shipping_fee;not null;default:0"`
	Discount      int64               `gorm:"column:discount;not null;default:0"`
	Total         int64               `gorm:"column:total;not null"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null"`
	VoucherID     *uuid.UUID          `gorm:"column:voucher_id;type:uuid"`
	VoucherCode   *string             `gorm:"column:voucher_code"`
	Note          *string             `gorm:"column:note"`
	Shipping      ShippingSnapshot    `gorm:"embedded;embeddedPrefix:ship_"`
	Items         []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment       *Payment            `gorm:"foreignKey:OrderID"`
	Shipment      *Shipment           `gorm:"foreignKey:OrderID"`
	CancelRequest *CancelRequest      `gorm:"foreignKey:OrderID"`
	ReturnRequest *ReturnRequest      `gorm:"foreignKey:OrderID"`
	Refund        *Refund             `gorm:"foreignKey:OrderID"`
	Dispute       *Dispute            `gorm:"foreignKey:OrderID"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// Balanced reports whether the money columns satisfy the order invariants.
func (o Order) Balanced() bool {
	return o.Subtotal >= 0 &&
		o.Discount >= 0 &&
		o.Discount <= o.Subtotal &&
		o.ShippingFee >= 0 &&
		o.Total == o.Subtotal+o.ShippingFee-o.Discount
}
