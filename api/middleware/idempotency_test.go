package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

type memoryReplayStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryReplayStore() *memoryReplayStore {
	return &memoryReplayStore{data: map[string]string{}}
}

func (m *memoryReplayStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryReplayStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryReplayStore) CompareAndSwap(_ context.Context, key, expected, value string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != expected {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *memoryReplayStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; !ok || v != expected {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *memoryReplayStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

func (m *memoryReplayStore) values() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.data))
	for _, v := range m.data {
		out = append(out, v)
	}
	return out
}

// routed builds a request as chi would hand it to the middleware once the
// pattern is resolved.
func routed(pattern, url, key, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(http.MethodPost, url, reader)
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func serve(store *memoryReplayStore, handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	Idempotency(store, nil)(handler).ServeHTTP(rec, req)
	return rec
}

func TestLookupReplayRoute(t *testing.T) {
	cases := []struct {
		method   string
		target   string
		ttl      time.Duration
		matched  bool
		required bool
	}{
		{http.MethodPost, "/api/v1/checkout", moneyReplayTTL, true, true},
		{http.MethodPost, "/api/v1/orders/{code}/cancel-request", standardReplayTTL, true, false},
		{http.MethodPost, "/api/v1/orders/OD1/dispute/revision", standardReplayTTL, true, false},
		{http.MethodPost, "/api/v1/seller/orders/{code}/confirm", standardReplayTTL, true, false},
		{http.MethodPost, "/api/v1/admin/refunds/{code}/manual", moneyReplayTTL, true, false},
		{http.MethodPost, "/api/v1/admin/refunds/{code}/approve", standardReplayTTL, true, false},
		{http.MethodPost, "/api/v1/admin/payouts/{id}/mark-paid", moneyReplayTTL, true, false},
		{http.MethodPost, "/api/v1/seller/payouts", 0, false, false},
		{http.MethodGet, "/api/v1/orders/{code}/tracking", 0, false, false},
	}
	for _, tc := range cases {
		route, ok := lookupReplayRoute(tc.method, tc.target)
		require.Equal(t, tc.matched, ok, tc.target)
		require.Equal(t, tc.ttl, route.ttl, tc.target)
		require.Equal(t, tc.required, route.required, tc.target)
	}
}

func TestCheckoutWithoutKeyIsRejected(t *testing.T) {
	called := false
	rec := serve(newMemoryReplayStore(), func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, routed("/api/v1/checkout", "/api/v1/checkout", "", `{"foo":"bar"}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, called)
}

func TestOversizedKeyIsRejected(t *testing.T) {
	rec := serve(newMemoryReplayStore(), func(http.ResponseWriter, *http.Request) {},
		routed("/api/v1/checkout", "/api/v1/checkout", strings.Repeat("k", maxClientKeyLen+1), `{}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRepeatedKeyReplaysFirstResponse(t *testing.T) {
	store := newMemoryReplayStore()
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"foo":"bar"}`, string(body))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}

	first := serve(store, handler, routed("/api/v1/checkout", "/api/v1/checkout", "abc", `{"foo":"bar"}`))
	require.Equal(t, http.StatusAccepted, first.Code)
	require.Empty(t, first.Header().Get(replayHeader))

	again := serve(store, handler, routed("/api/v1/checkout", "/api/v1/checkout", "abc", `{"foo":"bar"}`))
	require.Equal(t, http.StatusAccepted, again.Code)
	require.Equal(t, "application/json", again.Header().Get("Content-Type"))
	require.Equal(t, "true", again.Header().Get(replayHeader))
	require.Equal(t, `{"ok":true}`, again.Body.String())
	require.Equal(t, 1, calls)
}

func TestReusedKeyWithDifferentBodyConflicts(t *testing.T) {
	store := newMemoryReplayStore()
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

	serve(store, ok, routed("/api/v1/checkout", "/api/v1/checkout", "xyz", `{"foo":"bar"}`))
	rec := serve(store, ok, routed("/api/v1/checkout", "/api/v1/checkout", "xyz", `{"foo":"diff"}`))

	require.Equal(t, http.StatusConflict, rec.Code)
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, string(pkgerrors.CodeIdempotency), payload.Error.Code)
}

func TestKeysAreScopedPerPath(t *testing.T) {
	store := newMemoryReplayStore()
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}
	serve(store, handler, routed("/api/v1/orders/{code}/cancel-request", "/api/v1/orders/OD1/cancel-request", "k", `{}`))
	serve(store, handler, routed("/api/v1/orders/{code}/cancel-request", "/api/v1/orders/OD2/cancel-request", "k", `{}`))
	require.Equal(t, 2, calls)
}

func TestOptionalKeyPassesThrough(t *testing.T) {
	store := newMemoryReplayStore()
	calls := 0
	for i := 0; i < 2; i++ {
		rec := serve(store, func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusOK)
		}, routed("/api/v1/orders/{code}/confirm-received", "/api/v1/orders/OD1/confirm-received", "", ""))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Equal(t, 2, calls)
	require.Empty(t, store.values())
}

func TestServerErrorReleasesKey(t *testing.T) {
	store := newMemoryReplayStore()
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	for i := 0; i < 2; i++ {
		serve(store, handler, routed("/api/v1/admin/refunds/{code}/manual", "/api/v1/admin/refunds/OD1/manual", "refund-1", `{}`))
	}
	require.Equal(t, 2, calls)
	require.Empty(t, store.values())
}

func TestDuplicateWhileInFlightGetsConflict(t *testing.T) {
	store := newMemoryReplayStore()
	calls := 0
	var duplicate *httptest.ResponseRecorder

	var handler http.HandlerFunc
	handler = func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			duplicate = serve(store, handler, routed("/api/v1/checkout", "/api/v1/checkout", "dup", `{"cart":1}`))
		}
		w.WriteHeader(http.StatusCreated)
	}

	rec := serve(store, handler, routed("/api/v1/checkout", "/api/v1/checkout", "dup", `{"cart":1}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, duplicate)
	require.Equal(t, http.StatusConflict, duplicate.Code)
	require.Equal(t, 1, calls)

	stored := store.values()
	require.Len(t, stored, 1)
	require.Contains(t, stored[0], `"state":"complete"`)
}
