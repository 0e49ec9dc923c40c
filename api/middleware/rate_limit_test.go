package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

type counterStore struct {
	counts map[string]int64
}

func (c *counterStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[key]++
	return c.counts[key], nil
}

func (c *counterStore) RateLimitKey(scope string) string {
	return "rl:" + scope
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRateLimitPerUser(t *testing.T) {
	store := &counterStore{}
	handler := RateLimit(NewRateLimitPolicy("Checkout", time.Minute, 0, 2), store, nil)(http.HandlerFunc(okHandler))

	hit := func(userID uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
		req = req.WithContext(WithIdentity(req.Context(), userID, enums.RoleCustomer))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	userID := uuid.New()
	require.Equal(t, http.StatusOK, hit(userID).Code)
	require.Equal(t, http.StatusOK, hit(userID).Code)
	blocked := hit(userID)
	require.Equal(t, http.StatusTooManyRequests, blocked.Code)
	require.Equal(t, "60", blocked.Header().Get("Retry-After"))
	require.Equal(t, int64(3), store.counts["rl:checkout:user:"+userID.String()])

	require.Equal(t, http.StatusOK, hit(uuid.New()).Code, "other users keep their own budget")
}

func TestRateLimitPerAddressBehindRealIP(t *testing.T) {
	store := &counterStore{}
	handler := chimw.RealIP(RateLimit(NewRateLimitPolicy("payouts", time.Minute, 1, 0), store, nil)(http.HandlerFunc(okHandler)))

	for _, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code)
	}
	require.Equal(t, int64(2), store.counts["rl:payouts:ip:203.0.113.7"])
}

func TestRateLimitSkipsAnonymousUserDimension(t *testing.T) {
	store := &counterStore{}
	handler := RateLimit(NewRateLimitPolicy("checkout", time.Minute, 0, 1), store, nil)(http.HandlerFunc(okHandler))
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Empty(t, store.counts)
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	store := &counterStore{}
	for _, policy := range []RateLimitPolicy{
		NewRateLimitPolicy("off", 0, 1, 1),
		NewRateLimitPolicy("off", time.Minute, 0, 0),
	} {
		handler := RateLimit(policy, store, nil)(http.HandlerFunc(okHandler))
		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusOK, rec.Code)
		}
	}
	require.Empty(t, store.counts)
}
