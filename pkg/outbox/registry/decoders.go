package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

// ErrNoDecoder means no decoder is registered for the event at that version.
var ErrNoDecoder = errors.New("no payload decoder")

// payloadTypes holds the schema v1 payload struct of every outbox event.
var payloadTypes = map[enums.OutboxEventType]func() any{
	enums.EventOrderCreated:          func() any { return &payloads.OrderCreatedEvent{} },
	enums.EventOrderStateChanged:     func() any { return &payloads.OrderStateChangedEvent{} },
	enums.EventShipmentUpdated:       func() any { return &payloads.ShipmentUpdatedEvent{} },
	enums.EventRefundSettled:         func() any { return &payloads.RefundSettledEvent{} },
	enums.EventPayoutRequested:       func() any { return &payloads.PayoutRequestedEvent{} },
	enums.EventNotificationRequested: func() any { return &payloads.NotificationRequestedEvent{} },
}

// DecodeFunc turns the data field of an envelope into a typed payload.
type DecodeFunc func(data json.RawMessage) (any, error)

type decoderKey struct {
	event   enums.OutboxEventType
	version int
}

// Decoders maps (event type, schema version) to a payload decoder for
// consumers. Later schema versions are added with Register.
type Decoders struct {
	mu    sync.RWMutex
	byKey map[decoderKey]DecodeFunc
}

// NewDecoders registers the v1 decoder of each listed event, or of every
// event when none are listed.
func NewDecoders(events ...enums.OutboxEventType) (*Decoders, error) {
	if len(events) == 0 {
		for event := range payloadTypes {
			events = append(events, event)
		}
	}
	d := &Decoders{byKey: make(map[decoderKey]DecodeFunc, len(events))}
	for _, event := range events {
		factory, ok := payloadTypes[event]
		if !ok {
			return nil, fmt.Errorf("no payload type for %s", event)
		}
		d.Register(event, 1, into(factory))
	}
	return d, nil
}

func into(factory func() any) DecodeFunc {
	return func(data json.RawMessage) (any, error) {
		target := factory()
		if err := json.Unmarshal(data, target); err != nil {
			return nil, err
		}
		return target, nil
	}
}

func (d *Decoders) Register(event enums.OutboxEventType, version int, fn DecodeFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byKey[decoderKey{event: event, version: version}] = fn
}

// Decode decodes data written at schema version. Version 0 is read as 1.
func (d *Decoders) Decode(event enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	if version <= 0 {
		version = 1
	}
	d.mu.RLock()
	fn, ok := d.byKey[decoderKey{event: event, version: version}]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s v%d", ErrNoDecoder, event, version)
	}
	out, err := fn(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s v%d payload: %w", event, version, err)
	}
	return out, nil
}
