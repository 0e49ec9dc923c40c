package enums

import "fmt"

// ShipmentStatus maps to the shipment_status enum in Postgres.
type ShipmentStatus string

const (
	ShipmentStatusPending     ShipmentStatus = "PENDING"
	ShipmentStatusReadyToShip ShipmentStatus = "READY_TO_SHIP"
	ShipmentStatusShipped     ShipmentStatus = "SHIPPED"
	ShipmentStatusInTransit   ShipmentStatus = "IN_TRANSIT"
	ShipmentStatusDelivered   ShipmentStatus = "DELIVERED"
	ShipmentStatusReturned    ShipmentStatus = "RETURNED"
)

// Rank orders the forward progression; RETURNED sits outside it.
var shipmentStatusRank = map[ShipmentStatus]int{
	ShipmentStatusPending:     0,
	ShipmentStatusReadyToShip: 1,
	ShipmentStatusShipped:     2,
	ShipmentStatusInTransit:   3,
	ShipmentStatusDelivered:   4,
	ShipmentStatusReturned:    5,
}

func (s ShipmentStatus) String() string {
	return string(s)
}

func (s ShipmentStatus) IsValid() bool {
	_, ok := shipmentStatusRank[s]
	return ok
}

// Advances reports whether moving from s to next is a forward step.
func (s ShipmentStatus) Advances(next ShipmentStatus) bool {
	if next == ShipmentStatusReturned {
		return s == ShipmentStatusShipped || s == ShipmentStatusInTransit || s == ShipmentStatusDelivered
	}
	if s == ShipmentStatusReturned {
		return false
	}
	return shipmentStatusRank[next] > shipmentStatusRank[s]
}

func ParseShipmentStatus(value string) (ShipmentStatus, error) {
	candidate := ShipmentStatus(value)
	if candidate.IsValid() {
		return candidate, nil
	}
	return "", fmt.Errorf("invalid shipment status %q", value)
}
