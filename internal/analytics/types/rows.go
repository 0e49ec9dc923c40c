package types

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// OrderEventRow is one row of order_events. Amounts are VND minor units and
// columns that do not apply to the event stay NULL.
type OrderEventRow struct {
	EventID       string              `bigquery:"event_id"`
	EventType     string              `bigquery:"event_type"`
	OccurredAt    time.Time           `bigquery:"occurred_at"`
	OrderID       bigquery.NullString `bigquery:"order_id"`
	OrderCode     bigquery.NullString `bigquery:"order_code"`
	ShopID        bigquery.NullString `bigquery:"shop_id"`
	UserID        bigquery.NullString `bigquery:"user_id"`
	ActorRole     bigquery.NullString `bigquery:"actor_role"`
	FromStatus    bigquery.NullString `bigquery:"from_status"`
	ToStatus      bigquery.NullString `bigquery:"to_status"`
	Action        bigquery.NullString `bigquery:"action"`
	PaymentMethod bigquery.NullString `bigquery:"payment_method"`
	VoucherCode   bigquery.NullString `bigquery:"voucher_code"`
	ItemCount     bigquery.NullInt64  `bigquery:"item_count"`
	Subtotal      bigquery.NullInt64  `bigquery:"subtotal"`
	ShippingFee   bigquery.NullInt64  `bigquery:"shipping_fee"`
	Discount      bigquery.NullInt64  `bigquery:"discount"`
	Total         bigquery.NullInt64  `bigquery:"total"`
	RefundAmount  bigquery.NullInt64  `bigquery:"refund_amount"`
	RefundStatus  bigquery.NullString `bigquery:"refund_status"`
	PayoutAmount  bigquery.NullInt64  `bigquery:"payout_amount"`
	Payload       bigquery.NullJSON   `bigquery:"payload"`
}

const OrderEventsPartitionField = "occurred_at"

// OrderEventsClustering serves per-shop revenue queries.
var OrderEventsClustering = []string{"shop_id", "event_type"}

func column(name string, kind bigquery.FieldType) *bigquery.FieldSchema {
	return &bigquery.FieldSchema{Name: name, Type: kind}
}

func requiredColumn(name string, kind bigquery.FieldType) *bigquery.FieldSchema {
	f := column(name, kind)
	f.Required = true
	return f
}

// OrderEventsSchema is sent with every insert and used to create the table.
var OrderEventsSchema = bigquery.Schema{
	requiredColumn("event_id", bigquery.StringFieldType),
	requiredColumn("event_type", bigquery.StringFieldType),
	requiredColumn("occurred_at", bigquery.TimestampFieldType),
	column("order_id", bigquery.StringFieldType),
	column("order_code", bigquery.StringFieldType),
	column("shop_id", bigquery.StringFieldType),
	column("user_id", bigquery.StringFieldType),
	column("actor_role", bigquery.StringFieldType),
	column("from_status", bigquery.StringFieldType),
	column("to_status", bigquery.StringFieldType),
	column("action", bigquery.StringFieldType),
	column("payment_method", bigquery.StringFieldType),
	column("voucher_code", bigquery.StringFieldType),
	column("item_count", bigquery.IntegerFieldType),
	column("subtotal", bigquery.IntegerFieldType),
	column("shipping_fee", bigquery.IntegerFieldType),
	column("discount", bigquery.IntegerFieldType),
	column("total", bigquery.IntegerFieldType),
	column("refund_amount", bigquery.IntegerFieldType),
	column("refund_status", bigquery.StringFieldType),
	column("payout_amount", bigquery.IntegerFieldType),
	column("payload", bigquery.JSONFieldType),
}
