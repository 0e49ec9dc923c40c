package enums

import "fmt"

// OutboxAggregateType is the kind of record an outbox event is keyed on.
// Values match aggregate_type_enum.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateShipment     OutboxAggregateType = "shipment"
	AggregateRefund       OutboxAggregateType = "refund"
	AggregatePayout       OutboxAggregateType = "payout"
	AggregateNotification OutboxAggregateType = "notification"
)

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateOrder, AggregateShipment, AggregateRefund, AggregatePayout, AggregateNotification:
		return true
	}
	return false
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if a := OutboxAggregateType(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event. Values match event_type_enum.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderStateChanged     OutboxEventType = "order_state_changed"
	EventShipmentUpdated       OutboxEventType = "shipment_updated"
	EventRefundSettled         OutboxEventType = "refund_settled"
	EventPayoutRequested       OutboxEventType = "payout_requested"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

// eventAggregates pairs every event with the aggregate it must be keyed on.
// The publisher orders messages per aggregate id, so a mismatch would break
// per-order ordering downstream.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderCreated:          AggregateOrder,
	EventOrderStateChanged:     AggregateOrder,
	EventShipmentUpdated:       AggregateShipment,
	EventRefundSettled:         AggregateRefund,
	EventPayoutRequested:       AggregatePayout,
	EventNotificationRequested: AggregateNotification,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e is emitted for, or "" when e is unknown.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
