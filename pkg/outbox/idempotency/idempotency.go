package idempotency

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// markerStore is the Redis surface the guard needs.
type markerStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

var (
	errStoreRequired    = errors.New("idempotency store is required")
	errNegativeTTL      = errors.New("ttl must be non-negative")
	errConsumerRequired = errors.New("consumer name is required")
	errEventIDRequired  = errors.New("event id is required")
)

// Manager records which outbox events a Pub/Sub consumer has already
// handled. Markers live at of:idempotency:evt:processed:<consumer>:<event_id>
// and hold the unix second they were written.
type Manager struct {
	store markerStore
	ttl   time.Duration
	now   func() time.Time
}

// NewManager builds a guard whose markers expire after ttl. Zero keeps them
// until evicted.
func NewManager(store markerStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errStoreRequired
	}
	if ttl < 0 {
		return nil, errNegativeTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMarkProcessed claims eventID for consumer. It returns true when a
// marker already existed, i.e. the delivery is a duplicate.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.markerKey(consumer, eventID)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, strconv.FormatInt(m.now().Unix(), 10), m.ttl)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// Delete drops the marker so a redelivery after a failed handler runs again.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.markerKey(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) markerKey(consumer string, eventID uuid.UUID) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", errConsumerRequired
	}
	if eventID == uuid.Nil {
		return "", errEventIDRequired
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID.String()), nil
}
