package actorctx

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/api/middleware"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Scoper turns an authenticated caller into an order actor. Sellers are
// bound to their shop.
type Scoper interface {
	Scope(ctx context.Context, userID uuid.UUID, role enums.Role) (orders.Actor, error)
}

// ResolveActor extracts the caller from the request context and scopes it.
func ResolveActor(r *http.Request, scoper Scoper) (orders.Actor, error) {
	userID, role, ok := middleware.Identity(r.Context())
	if !ok {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if scoper == nil {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeInternal, "order scope unavailable")
	}
	return scoper.Scope(r.Context(), userID, role)
}

// ResolveUser returns the caller's user id without shop scoping.
func ResolveUser(r *http.Request) (uuid.UUID, error) {
	userID, _, ok := middleware.Identity(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return userID, nil
}

// OrderCode reads the {code} path parameter.
func OrderCode(r *http.Request) (string, error) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order code is required")
	}
	return code, nil
}

// PathUUID reads a uuid path parameter.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is required", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}
