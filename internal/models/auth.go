package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims the backend puts in access tokens. The client
// reads them for identity and expiry; only the backend enforces them.
type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the user id, falling back to the standard sub claim.
func (c *TokenClaims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}
