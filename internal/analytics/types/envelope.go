package types

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Envelope is one delivery from the analytics subscription after the message
// attributes and the stored outbox payload have been merged.
type Envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	SchemaVersion int
	OccurredAt    time.Time
	ActorRole     string
	Payload       json.RawMessage
}
