package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/pinguard/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// TokenInspector reads claims from backend-issued access tokens.
//
// Without a secret the signature is not checked: the device cannot verify
// tokens it did not sign, and the claims are only used for display, audit
// and expiry hints. With a secret (tests, single-tenant deployments that
// share one) HS256 signatures are verified as well.
type TokenInspector struct {
	secret []byte
	parser *jwt.Parser
	now    func() time.Time
}

func NewTokenInspector(secret string, now func() time.Time) *TokenInspector {
	if now == nil {
		now = time.Now
	}
	ti := &TokenInspector{now: now}
	if secret != "" {
		ti.secret = []byte(secret)
	}
	ti.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(now),
	)
	return ti
}

// Parse returns the token's claims. Expired tokens are reported with
// models.ErrUnauthorized.
func (ti *TokenInspector) Parse(tokenString string) (*models.TokenClaims, error) {
	if tokenString == "" {
		return nil, models.ErrUnauthorized
	}
	claims := &models.TokenClaims{}

	if ti.secret == nil {
		if _, _, err := ti.parser.ParseUnverified(tokenString, claims); err != nil {
			return nil, fmt.Errorf("failed to parse token: %w", err)
		}
		if claims.ExpiresAt != nil && !ti.now().Before(claims.ExpiresAt.Time) {
			return nil, models.ErrUnauthorized
		}
		return claims, nil
	}

	token, err := ti.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ti.secret, nil
	})
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, models.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	return claims, nil
}
