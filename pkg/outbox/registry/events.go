// Package registry knows the payload type and Pub/Sub topic of every outbox
// event. The publisher resolves rows through EventRegistry; consumers decode
// payloads through Decoders.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
)

// NonRetryableError marks a row that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable outbox row"
	}
	return "non-retryable: " + e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// EventDescriptor is where an event type is published and what it is keyed on.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is a validated outbox row with its decoded payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry routes order lifecycle, shipment, refund and payout events
// to the orders topic and notifications to their own topic.
type EventRegistry struct {
	descriptors map[enums.OutboxEventType]EventDescriptor
	decoders    *Decoders
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	orders := strings.TrimSpace(cfg.OrdersTopic)
	notifications := strings.TrimSpace(cfg.NotificationTopic)
	if orders == "" {
		return nil, errors.New("orders topic is required")
	}
	if notifications == "" {
		return nil, errors.New("notification topic is required")
	}
	decoders, err := NewDecoders()
	if err != nil {
		return nil, err
	}

	reg := &EventRegistry{
		descriptors: make(map[enums.OutboxEventType]EventDescriptor, len(payloadTypes)),
		decoders:    decoders,
	}
	for event := range payloadTypes {
		topic := orders
		if event == enums.EventNotificationRequested {
			topic = notifications
		}
		reg.descriptors[event] = EventDescriptor{EventType: event, AggregateType: event.Aggregate(), Topic: topic}
	}
	return reg, nil
}

func (r *EventRegistry) Descriptor(event enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.descriptors[event]
	return desc, ok
}

// Topics lists, sorted, every topic the registry publishes to.
func (r *EventRegistry) Topics() []string {
	var out []string
	for _, desc := range r.descriptors {
		if !slices.Contains(out, desc.Topic) {
			out = append(out, desc.Topic)
		}
	}
	slices.Sort(out)
	return out
}

// Resolve validates an outbox row and decodes its payload. Every failure is a
// NonRetryableError: retrying an unchanged row cannot fix it.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.descriptors[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %q", event.EventType))
	case event.AggregateType != desc.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("%s keyed on %s aggregate, want %s", event.EventType, event.AggregateType, desc.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	env, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload, err := r.decoders.Decode(event.EventType, env.Version, env.Data)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
