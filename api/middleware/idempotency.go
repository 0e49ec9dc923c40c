package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/orderflow-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "X-Idempotent-Replay"
	maxClientKeyLen   = 255

	standardReplayTTL = 24 * time.Hour
	moneyReplayTTL    = 7 * 24 * time.Hour
	reservationTTL    = 2 * time.Minute

	statePending  = "pending"
	stateComplete = "complete"
)

type replayRoute struct {
	pattern  string
	ttl      time.Duration
	required bool
}

// replayRoutes are POST targets matched with path.Match, first match wins.
// Payout requests are not listed: the finance service keeps its own durable
// key table and must see every retry.
var replayRoutes = []replayRoute{
	{pattern: "/api/v1/checkout", ttl: moneyReplayTTL, required: true},
	{pattern: "/api/v1/orders/*/*", ttl: standardReplayTTL},
	{pattern: "/api/v1/orders/*/dispute/revision", ttl: standardReplayTTL},
	{pattern: "/api/v1/seller/orders/*/*", ttl: standardReplayTTL},
	{pattern: "/api/v1/admin/orders/*/*", ttl: standardReplayTTL},
	{pattern: "/api/v1/admin/disputes/*/*", ttl: standardReplayTTL},
	{pattern: "/api/v1/admin/refunds/*/manual", ttl: moneyReplayTTL},
	{pattern: "/api/v1/admin/refunds/*/*", ttl: standardReplayTTL},
	{pattern: "/api/v1/admin/payouts/*/*", ttl: moneyReplayTTL},
}

func lookupReplayRoute(method, target string) (replayRoute, bool) {
	if method != http.MethodPost || target == "" {
		return replayRoute{}, false
	}
	for _, route := range replayRoutes {
		if ok, _ := path.Match(route.pattern, target); ok {
			return route, true
		}
	}
	return replayRoute{}, false
}

// replayTarget is the chi pattern once routing has resolved it, otherwise
// the raw path. Mounted routers report a partial "/*" pattern until then.
func replayTarget(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

// storedResponse is the value kept under an idempotency key. A pending value
// reserves the key while the first request runs; Owner makes it unique.
type storedResponse struct {
	State       string `json:"state"`
	Owner       string `json:"owner,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func (s storedResponse) encode() (string, error) {
	raw, err := json.Marshal(s)
	return string(raw), err
}

func (s storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(replayHeader, "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

// Idempotency replays the first response for a repeated Idempotency-Key on
// replayRoutes. A duplicate that arrives while the first request runs gets
// 409, a reused key with a different body gets IDEMPOTENCY_CONFLICT, and 5xx
// responses release the key so the client can retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := lookupReplayRoute(r.Method, replayTarget(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case clientKey == "" && route.required:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case clientKey == "":
				next.ServeHTTP(w, r)
				return
			case len(clientKey) > maxClientKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key is too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			guard := &reservation{
				store:       store,
				key:         store.IdempotencyKey(callerID(ctx)+"|"+r.URL.Path, clientKey),
				fingerprint: fingerprint(body),
			}
			held, err := guard.acquire(ctx)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !held {
				guard.answerDuplicate(ctx, logg, w)
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			var captured bytes.Buffer
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			if err := guard.settle(ctx, responseStatus(ww), ww.Header().Get("Content-Type"), captured.Bytes(), route.ttl); err != nil && logg != nil {
				logg.Error(logg.WithField(ctx, "idempotency_key", clientKey), "settle idempotency key", err)
			}
		})
	}
}

type reservation struct {
	store       pkgredis.IdempotencyStore
	key         string
	fingerprint string
	pending     string
}

func (g *reservation) acquire(ctx context.Context) (bool, error) {
	pending, err := storedResponse{State: statePending, Owner: uuid.NewString(), Fingerprint: g.fingerprint}.encode()
	if err != nil {
		return false, err
	}
	ok, err := g.store.SetNX(ctx, g.key, pending, reservationTTL)
	if err != nil || !ok {
		return false, err
	}
	g.pending = pending
	return true, nil
}

// settle swaps the reservation for the response, or drops it after a 5xx.
// Both are compare-and-set so an expired reservation taken over by another
// request is left alone.
func (g *reservation) settle(ctx context.Context, status int, contentType string, body []byte, ttl time.Duration) error {
	if status >= http.StatusInternalServerError {
		_, err := g.store.CompareAndDelete(ctx, g.key, g.pending)
		return err
	}
	final, err := storedResponse{
		State:       stateComplete,
		Fingerprint: g.fingerprint,
		Status:      status,
		ContentType: contentType,
		Body:        body,
	}.encode()
	if err != nil {
		return err
	}
	swapped, err := g.store.CompareAndSwap(ctx, g.key, g.pending, final, ttl)
	if err == nil && !swapped {
		err = errors.New("reservation expired before the response was stored")
	}
	return err
}

func (g *reservation) answerDuplicate(ctx context.Context, logg *logger.Logger, w http.ResponseWriter) {
	raw, err := g.store.Get(ctx, g.key)
	if errors.Is(err, redis.Nil) {
		// Released by a failed first attempt between SETNX and GET.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is being retried, try again"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case stored.Fingerprint != g.fingerprint:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case stored.State == statePending:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
	default:
		stored.replay(w)
	}
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
