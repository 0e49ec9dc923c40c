package router

import (
	"bytes"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/internal/analytics/types"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

func text(value string) bigquery.NullString {
	value = strings.TrimSpace(value)
	return bigquery.NullString{StringVal: value, Valid: value != ""}
}

func id(value uuid.UUID) bigquery.NullString {
	if value == uuid.Nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: value.String(), Valid: true}
}

func amount(value int64) bigquery.NullInt64 {
	return bigquery.NullInt64{Int64: value, Valid: true}
}

// newRow fills the columns shared by every event. The payload column keeps
// the event body as it was published.
func newRow(envelope types.Envelope) types.OrderEventRow {
	row := types.OrderEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt,
		ActorRole:  text(envelope.ActorRole),
	}
	if raw := bytes.TrimSpace(envelope.Payload); len(raw) > 0 {
		row.Payload = bigquery.NullJSON{JSONVal: string(raw), Valid: true}
	}
	return row
}

func mismatch(envelope types.Envelope, payload any) error {
	return fmt.Errorf("%s decoded to %T", envelope.EventType, payload)
}

func orderCreatedRow(envelope types.Envelope, payload any) (types.OrderEventRow, error) {
	event, ok := payload.(*payloads.OrderCreatedEvent)
	if !ok {
		return types.OrderEventRow{}, mismatch(envelope, payload)
	}
	row := newRow(envelope)
	row.OrderID = id(event.OrderID)
	row.OrderCode = text(event.Code)
	row.ShopID = id(event.ShopID)
	row.UserID = id(event.UserID)
	row.ToStatus = text(string(event.Status))
	row.PaymentMethod = text(string(event.PaymentMethod))
	if event.VoucherCode != nil {
		row.VoucherCode = text(*event.VoucherCode)
	}
	row.ItemCount = amount(int64(event.ItemCount))
	row.Subtotal = amount(event.Subtotal)
	row.ShippingFee = amount(event.ShippingFee)
	row.Discount = amount(event.Discount)
	row.Total = amount(event.Total)
	return row, nil
}

func stateChangedRow(envelope types.Envelope, payload any) (types.OrderEventRow, error) {
	event, ok := payload.(*payloads.OrderStateChangedEvent)
	if !ok {
		return types.OrderEventRow{}, mismatch(envelope, payload)
	}
	row := newRow(envelope)
	row.OrderID = id(event.OrderID)
	row.OrderCode = text(event.Code)
	row.ShopID = id(event.ShopID)
	row.UserID = id(event.UserID)
	row.FromStatus = text(string(event.From))
	row.ToStatus = text(string(event.To))
	row.Action = text(event.Action)
	// The role that drove the transition beats the outbox actor.
	if role := text(string(event.Role)); role.Valid {
		row.ActorRole = role
	}
	row.Total = amount(event.Total)
	return row, nil
}

func shipmentRow(envelope types.Envelope, payload any) (types.OrderEventRow, error) {
	event, ok := payload.(*payloads.ShipmentUpdatedEvent)
	if !ok {
		return types.OrderEventRow{}, mismatch(envelope, payload)
	}
	row := newRow(envelope)
	row.OrderID = id(event.OrderID)
	row.OrderCode = text(event.Code)
	row.ToStatus = text(string(event.Status))
	return row, nil
}

func refundRow(envelope types.Envelope, payload any) (types.OrderEventRow, error) {
	event, ok := payload.(*payloads.RefundSettledEvent)
	if !ok {
		return types.OrderEventRow{}, mismatch(envelope, payload)
	}
	row := newRow(envelope)
	row.OrderID = id(event.OrderID)
	row.OrderCode = text(event.Code)
	row.ShopID = id(event.ShopID)
	row.RefundAmount = amount(event.Amount)
	row.RefundStatus = text(string(event.Status))
	if !event.SettledAt.IsZero() {
		row.OccurredAt = event.SettledAt.UTC()
	}
	return row, nil
}

func payoutRow(envelope types.Envelope, payload any) (types.OrderEventRow, error) {
	event, ok := payload.(*payloads.PayoutRequestedEvent)
	if !ok {
		return types.OrderEventRow{}, mismatch(envelope, payload)
	}
	row := newRow(envelope)
	row.ShopID = id(event.ShopID)
	row.PayoutAmount = amount(event.Amount)
	return row, nil
}
