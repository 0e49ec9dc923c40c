package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once per shop order produced by a checkout.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	Code          string              `json:"code"`
	UserID        uuid.UUID           `json:"user_id"`
	ShopID        uuid.UUID           `json:"shop_id"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Subtotal      int64               `json:"subtotal"`
	ShippingFee   int64               `json:"shipping_fee"`
	Discount      int64               `json:"discount"`
	Total         int64               `json:"total"`
	VoucherCode   *string             `json:"voucher_code,omitempty"`
	ItemCount     int                 `json:"item_count"`
}

// OrderStateChangedEvent records one applied state machine transition.
type OrderStateChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	Code    string            `json:"code"`
	UserID  uuid.UUID         `json:"user_id"`
	ShopID  uuid.UUID         `json:"shop_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
	Action  string            `json:"action"`
	Role    enums.Role        `json:"role"`
	Total   int64             `json:"total"`
}

// ShipmentUpdatedEvent mirrors an appended shipment tracking event.
type ShipmentUpdatedEvent struct {
	ShipmentID   uuid.UUID            `json:"shipment_id"`
	OrderID      uuid.UUID            `json:"order_id"`
	Code         string               `json:"code"`
	TrackingCode string               `json:"tracking_code"`
	Status       enums.ShipmentStatus `json:"status"`
	Message      string               `json:"message,omitempty"`
}

// RefundSettledEvent reports the outcome of a refund attempt.
type RefundSettledEvent struct {
	RefundID    uuid.UUID          `json:"refund_id"`
	OrderID     uuid.UUID          `json:"order_id"`
	Code        string             `json:"code"`
	ShopID      uuid.UUID          `json:"shop_id"`
	Amount      int64              `json:"amount"`
	Status      enums.RefundStatus `json:"status"`
	Provider    string             `json:"provider,omitempty"`
	ProviderRef string             `json:"provider_ref,omitempty"`
	FailReason  string             `json:"fail_reason,omitempty"`
	SettledAt   time.Time          `json:"settled_at"`
}

// PayoutRequestedEvent is emitted when a seller withdraws funds.
type PayoutRequestedEvent struct {
	PayoutID uuid.UUID          `json:"payout_id"`
	ShopID   uuid.UUID          `json:"shop_id"`
	Amount   int64              `json:"amount"`
	Status   enums.PayoutStatus `json:"status"`
}

// NotificationRequestedEvent asks the notification consumer to deliver a message.
type NotificationRequestedEvent struct {
	NotificationID uuid.UUID                  `json:"notification_id"`
	Audience       enums.NotificationAudience `json:"audience"`
	UserID         *uuid.UUID                 `json:"user_id,omitempty"`
	Type           enums.NotificationType     `json:"type"`
	Title          string                     `json:"title"`
	Body           string                     `json:"body"`
	Data           map[string]any             `json:"data,omitempty"`
}
