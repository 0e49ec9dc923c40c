package enums

import "testing"

func TestTerminalStatuses(t *testing.T) {
	terminal := map[OrderStatus]bool{
		OrderStatusCompleted: true,
		OrderStatusCancelled: true,
		OrderStatusRefunded:  true,
	}
	for _, status := range validOrderStatuses {
		if status.IsTerminal() != terminal[status] {
			t.Fatalf("status %s terminal=%v", status, status.IsTerminal())
		}
	}
}

func TestCountableStatusesExcludeSettledAndPreDelivery(t *testing.T) {
	excluded := []OrderStatus{
		OrderStatusPendingPayment,
		OrderStatusPlaced,
		OrderStatusConfirmed,
		OrderStatusPacking,
		OrderStatusShipped,
		OrderStatusCancelRequested,
		OrderStatusCancelled,
		OrderStatusReturnReceived,
		OrderStatusRefunded,
	}
	for _, status := range excluded {
		if status.IsCountable() {
			t.Fatalf("status %s must not be countable", status)
		}
	}
	for _, status := range CountableOrderStatuses {
		if !status.IsValid() {
			t.Fatalf("countable status %s is not a valid order status", status)
		}
	}
}

func TestShipmentStatusAdvances(t *testing.T) {
	tests := []struct {
		from, to ShipmentStatus
		want     bool
	}{
		{ShipmentStatusShipped, ShipmentStatusInTransit, true},
		{ShipmentStatusInTransit, ShipmentStatusDelivered, true},
		{ShipmentStatusShipped, ShipmentStatusDelivered, true},
		{ShipmentStatusDelivered, ShipmentStatusInTransit, false},
		{ShipmentStatusShipped, ShipmentStatusShipped, false},
		{ShipmentStatusDelivered, ShipmentStatusReturned, true},
		{ShipmentStatusPending, ShipmentStatusReturned, false},
		{ShipmentStatusReturned, ShipmentStatusDelivered, false},
	}
	for _, tt := range tests {
		if got := tt.from.Advances(tt.to); got != tt.want {
			t.Fatalf("%s -> %s: expected %v got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestParseOrderStatus(t *testing.T) {
	if _, err := ParseOrderStatus("SHIPPED"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatalf("expected error for lowercase status")
	}
}

func TestEveryEventHasAnAggregate(t *testing.T) {
	for event, aggregate := range eventAggregates {
		if !aggregate.IsValid() {
			t.Fatalf("event %s maps to invalid aggregate %q", event, aggregate)
		}
		if parsed, err := ParseOutboxEventType(string(event)); err != nil || parsed != event {
			t.Fatalf("parse %s: %v", event, err)
		}
	}
	if OutboxEventType("order_deleted").Aggregate() != "" {
		t.Fatalf("unknown events must not map to an aggregate")
	}
	if _, err := ParseOutboxAggregateType("cart"); err == nil {
		t.Fatalf("expected unknown aggregate to fail")
	}
}
