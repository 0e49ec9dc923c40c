package models

// All lists every persisted model in dependency order. It backs the sqlite
// schema used by repository tests; production schema lives in goose migrations.
func All() []any {
	return []any{
		&Shop{},
		&Product{},
		&Variant{},
		&Cart{},
		&CartItem{},
		&Address{},
		&Voucher{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&Shipment{},
		&ShipmentEvent{},
		&CancelRequest{},
		&ReturnRequest{},
		&Refund{},
		&Dispute{},
		&PayoutAccount{},
		&Payout{},
		&PayoutIdempotencyKey{},
		&AuditLog{},
		&Notification{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
