package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/auth"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

func testTokens(t *testing.T, issuer string) *auth.Tokens {
	t.Helper()
	tokens, err := auth.NewTokens(config.JWTConfig{Secret: "secret", Issuer: issuer, ExpirationMinutes: 10})
	require.NoError(t, err)
	return tokens
}

func serveAuth(tokens TokenVerifier, header string, next http.HandlerFunc) *httptest.ResponseRecorder {
	if next == nil {
		next = func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	Auth(tokens, nil)(next).ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Message
}

func TestAuthRejectsMissingOrMalformedHeader(t *testing.T) {
	tokens := testTokens(t, "issuer")
	for _, header := range []string{"", "Basic dXNlcg==", "Bearer "} {
		rec := serveAuth(tokens, header, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, header)
		require.Equal(t, "missing credentials", errorMessage(t, rec))
	}
}

func TestAuthRejectsBadTokens(t *testing.T) {
	tokens := testTokens(t, "issuer")
	foreign, err := testTokens(t, "someone-else").Issue(time.Now(), uuid.New(), enums.RoleCustomer)
	require.NoError(t, err)
	expired, err := tokens.Issue(time.Now().Add(-time.Hour), uuid.New(), enums.RoleCustomer)
	require.NoError(t, err)

	rec := serveAuth(tokens, "Bearer invalid", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serveAuth(tokens, "Bearer "+foreign, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid token", errorMessage(t, rec))

	rec = serveAuth(tokens, "Bearer "+expired, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token expired", errorMessage(t, rec))
}

func TestAuthStoresPrincipal(t *testing.T) {
	tokens := testTokens(t, "issuer")
	userID := uuid.New()
	raw, err := tokens.Issue(time.Now(), userID, enums.RoleSeller)
	require.NoError(t, err)

	var got auth.Principal
	rec := serveAuth(tokens, "bearer "+raw, func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, userID, got.UserID)
	require.Equal(t, enums.RoleSeller, got.Role)
	require.NotEmpty(t, got.TokenID)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.RoleAdmin, enums.RoleCS)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		role enums.Role
		want int
	}{
		{enums.RoleAdmin, http.StatusNoContent},
		{enums.RoleCS, http.StatusNoContent},
		{enums.RoleSeller, http.StatusForbidden},
		{enums.RoleCustomer, http.StatusForbidden},
		{"", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.role != "" {
			req = req.WithContext(WithIdentity(req.Context(), uuid.New(), tc.role))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, tc.want, rec.Code, string(tc.role))
	}
}
