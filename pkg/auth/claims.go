// Package auth issues and verifies the HS256 access tokens presented to the
// API. The user id travels in the standard sub claim.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Claims is the token body.
type Claims struct {
	Role enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal is a verified caller.
type Principal struct {
	UserID    uuid.UUID
	Role      enums.Role
	TokenID   string
	ExpiresAt time.Time
}

func (c *Claims) principal() (Principal, error) {
	userID, err := uuid.Parse(c.Subject)
	if err != nil || userID == uuid.Nil {
		return Principal{}, errMissingSubject
	}
	if !c.Role.IsValid() {
		return Principal{}, errUnknownRole
	}
	p := Principal{UserID: userID, Role: c.Role, TokenID: c.ID}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	return p, nil
}
