package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	values  map[string]string
	ttls    map[string]time.Duration
	setErr  error
	deleted []string
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *memStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.setErr != nil {
		return false, s.setErr
	}
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value.(string)
	s.ttls[key] = ttl
	return true, nil
}

func (s *memStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.values, key)
		s.deleted = append(s.deleted, key)
	}
	return nil
}

func (s *memStore) IdempotencyKey(scope, id string) string {
	return "of:idempotency:" + scope + ":" + id
}

func newTestManager(t *testing.T, store *memStore, ttl time.Duration) *Manager {
	t.Helper()
	manager, err := NewManager(store, ttl)
	require.NoError(t, err)
	manager.now = func() time.Time { return time.Unix(1_780_000_000, 0) }
	return manager
}

func TestFirstDeliveryClaimsMarker(t *testing.T) {
	store := newMemStore()
	manager := newTestManager(t, store, 720*time.Hour)
	eventID := uuid.New()

	duplicate, err := manager.CheckAndMarkProcessed(context.Background(), "analytics", eventID)
	require.NoError(t, err)
	require.False(t, duplicate)

	key := "of:idempotency:evt:processed:analytics:" + eventID.String()
	require.Equal(t, "1780000000", store.values[key])
	require.Equal(t, 720*time.Hour, store.ttls[key])
}

func TestRedeliveryIsDuplicateUntilDeleted(t *testing.T) {
	store := newMemStore()
	manager := newTestManager(t, store, time.Hour)
	ctx := context.Background()
	eventID := uuid.New()

	_, err := manager.CheckAndMarkProcessed(ctx, "analytics", eventID)
	require.NoError(t, err)
	duplicate, err := manager.CheckAndMarkProcessed(ctx, "analytics", eventID)
	require.NoError(t, err)
	require.True(t, duplicate)

	require.NoError(t, manager.Delete(ctx, "analytics", eventID))
	duplicate, err = manager.CheckAndMarkProcessed(ctx, "analytics", eventID)
	require.NoError(t, err)
	require.False(t, duplicate, "a released marker must let the retry through")
}

func TestMarkersAreScopedPerConsumer(t *testing.T) {
	store := newMemStore()
	manager := newTestManager(t, store, time.Hour)
	ctx := context.Background()
	eventID := uuid.New()

	_, err := manager.CheckAndMarkProcessed(ctx, "analytics", eventID)
	require.NoError(t, err)
	duplicate, err := manager.CheckAndMarkProcessed(ctx, "notifications", eventID)
	require.NoError(t, err)
	require.False(t, duplicate)
}

func TestStoreErrorsPropagate(t *testing.T) {
	store := newMemStore()
	store.setErr = errors.New("redis down")
	manager := newTestManager(t, store, time.Hour)

	_, err := manager.CheckAndMarkProcessed(context.Background(), "analytics", uuid.New())
	require.ErrorIs(t, err, store.setErr)
}

func TestRejectsMissingIdentityAndBadConfig(t *testing.T) {
	manager := newTestManager(t, newMemStore(), time.Hour)
	_, err := manager.CheckAndMarkProcessed(context.Background(), " ", uuid.New())
	require.ErrorIs(t, err, errConsumerRequired)
	require.ErrorIs(t, manager.Delete(context.Background(), "analytics", uuid.Nil), errEventIDRequired)

	_, err = NewManager(nil, time.Hour)
	require.ErrorIs(t, err, errStoreRequired)
	_, err = NewManager(newMemStore(), -time.Second)
	require.ErrorIs(t, err, errNegativeTTL)
}
