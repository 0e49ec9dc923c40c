package middleware

import (
	"cmp"
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

// RateLimiterStore counts hits in fixed windows.
type RateLimiterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

type rateDimension struct {
	name    string
	limit   int64
	subject func(*http.Request) string
}

// RateLimitPolicy is a named set of fixed-window limits.
type RateLimitPolicy struct {
	name   string
	window time.Duration
	limits []rateDimension
}

// NewRateLimitPolicy limits hits per client address and per authenticated
// user within window. A zero limit disables that dimension.
func NewRateLimitPolicy(name string, window time.Duration, ipLimit, userLimit int) RateLimitPolicy {
	p := RateLimitPolicy{
		name:   cmp.Or(strings.ToLower(strings.TrimSpace(name)), "api"),
		window: window,
	}
	if ipLimit > 0 {
		p.limits = append(p.limits, rateDimension{name: "ip", limit: int64(ipLimit), subject: remoteHost})
	}
	if userLimit > 0 {
		p.limits = append(p.limits, rateDimension{name: "user", limit: int64(userLimit), subject: func(r *http.Request) string {
			return callerID(r.Context())
		}})
	}
	return p
}

// RateLimit enforces policy. The user dimension only applies behind Auth and
// the address dimension relies on chi's RealIP having run.
func RateLimit(policy RateLimitPolicy, store RateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || policy.window <= 0 || len(policy.limits) == 0 {
			return next
		}
		retryAfter := strconv.Itoa(int(math.Ceil(policy.window.Seconds())))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, dim := range policy.limits {
				subject := dim.subject(r)
				if subject == "" {
					continue
				}
				hits, err := store.IncrWithTTL(ctx, store.RateLimitKey(policy.name+":"+dim.name+":"+subject), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if hits <= dim.limit {
					continue
				}
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy":    policy.name,
						"dimension": dim.name,
						"hits":      hits,
						"limit":     dim.limit,
					}), "rate limit exceeded")
				}
				w.Header().Set("Retry-After", retryAfter)
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
