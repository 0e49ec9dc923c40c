package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/auth"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

type ctxKey int

const (
	principalKey ctxKey = iota
	requestIDKey
)

// WithPrincipal stores the verified caller.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the caller stored by Auth.
func PrincipalFrom(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(auth.Principal)
	return p, ok && p.UserID != uuid.Nil
}

// Identity is PrincipalFrom reduced to the fields handlers scope by.
func Identity(ctx context.Context) (uuid.UUID, enums.Role, bool) {
	p, ok := PrincipalFrom(ctx)
	if !ok || !p.Role.IsValid() {
		return uuid.Nil, "", false
	}
	return p.UserID, p.Role, true
}

// WithIdentity is WithPrincipal for callers that only know the user and role.
func WithIdentity(ctx context.Context, userID uuid.UUID, role enums.Role) context.Context {
	return WithPrincipal(ctx, auth.Principal{UserID: userID, Role: role})
}

// callerID is the authenticated user id, or "" for anonymous requests.
func callerID(ctx context.Context) string {
	if p, ok := PrincipalFrom(ctx); ok {
		return p.UserID.String()
	}
	return ""
}
