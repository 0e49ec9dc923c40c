package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const schedulerKey = "of:lock:cron:scheduler:test"

type leaseMap struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newLeaseMap() *leaseMap {
	return &leaseMap{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *leaseMap) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, taken := m.values[key]; taken {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *leaseMap) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.values[key] != expected {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockExcludesSecondWorker(t *testing.T) {
	ctx := context.Background()
	store := newLeaseMap()
	first, err := NewRedisLock(store, schedulerKey, 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, schedulerKey, 0)
	require.NoError(t, err)

	won, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, won)
	require.Equal(t, defaultLockTTL, store.ttls[schedulerKey])
	require.Contains(t, store.values[schedulerKey], "/")

	won, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, won)

	require.NoError(t, second.Release(ctx))
	require.Contains(t, store.values, schedulerKey)

	require.NoError(t, first.Release(ctx))
	require.Empty(t, store.values)

	won, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, won)
}

func TestRedisLockLeavesTakenOverLease(t *testing.T) {
	ctx := context.Background()
	store := newLeaseMap()
	lock, err := NewRedisLock(store, schedulerKey, time.Minute)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx)
	require.NoError(t, err)
	store.values[schedulerKey] = "other-host/token"

	require.NoError(t, lock.Release(ctx))
	require.Equal(t, "other-host/token", store.values[schedulerKey])
	// a second release is a no-op
	require.NoError(t, lock.Release(ctx))
}

func TestNewRedisLockValidation(t *testing.T) {
	_, err := NewRedisLock(nil, schedulerKey, 0)
	require.Error(t, err)
	_, err = NewRedisLock(newLeaseMap(), "", 0)
	require.Error(t, err)
}

func TestRedisLockWrapsStoreErrors(t *testing.T) {
	boom := errors.New("redis down")
	store := newLeaseMap()
	store.err = boom
	lock, err := NewRedisLock(store, schedulerKey, time.Minute)
	require.NoError(t, err)

	_, err = lock.Acquire(context.Background())
	require.ErrorIs(t, err, boom)
	require.True(t, strings.HasPrefix(err.Error(), "acquire lease "+schedulerKey))
}
