// Package router maps analytics deliveries to order_events rows.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/orderflow-backend/internal/analytics/types"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/registry"
)

// ErrUnsupportedEventType marks events the warehouse does not track. The
// worker acks them.
var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer stores rows, possibly buffering them.
type Writer interface {
	Insert(ctx context.Context, row types.OrderEventRow) error
}

// RowBuilder maps one decoded payload to a row.
type RowBuilder func(envelope types.Envelope, payload any) (types.OrderEventRow, error)

// Router decodes each envelope at its schema version and writes one row.
type Router struct {
	writer   Writer
	logg     *logger.Logger
	decoders *registry.Decoders
	builders map[enums.OutboxEventType]RowBuilder
}

type Option func(*Router)

// WithBuilder replaces the row builder of an event already tracked.
func WithBuilder(event enums.OutboxEventType, build RowBuilder) Option {
	return func(r *Router) {
		if _, ok := r.builders[event]; ok && build != nil {
			r.builders[event] = build
		}
	}
}

// WithDecoder adds a payload decoder for a newer schema version.
func WithDecoder(event enums.OutboxEventType, version int, fn registry.DecodeFunc) Option {
	return func(r *Router) {
		if fn != nil {
			r.decoders.Register(event, version, fn)
		}
	}
}

// NewRouter tracks order, shipment, refund and payout events. Notification
// events never reach the warehouse.
func NewRouter(writer Writer, logg *logger.Logger, opts ...Option) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	builders := map[enums.OutboxEventType]RowBuilder{
		enums.EventOrderCreated:      orderCreatedRow,
		enums.EventOrderStateChanged: stateChangedRow,
		enums.EventShipmentUpdated:   shipmentRow,
		enums.EventRefundSettled:     refundRow,
		enums.EventPayoutRequested:   payoutRow,
	}
	tracked := make([]enums.OutboxEventType, 0, len(builders))
	for event := range builders {
		tracked = append(tracked, event)
	}
	decoders, err := registry.NewDecoders(tracked...)
	if err != nil {
		return nil, err
	}

	r := &Router{writer: writer, logg: logg, decoders: decoders, builders: builders}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Handle writes the row for one envelope. Decode and build failures are
// returned as is so the worker retries them.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	build, ok := r.builders[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	payload, err := r.decoders.Decode(envelope.EventType, envelope.SchemaVersion, envelope.Payload)
	if err != nil {
		return err
	}

	row, err := build(envelope, payload)
	if err != nil {
		return fmt.Errorf("build %s row: %w", envelope.EventType, err)
	}
	if err := r.writer.Insert(ctx, row); err != nil {
		return fmt.Errorf("write %s row: %w", envelope.EventType, err)
	}
	r.logg.Debug(r.logg.WithField(ctx, "order_id", row.OrderID.StringVal), "order event row written")
	return nil
}
