package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/pinguard/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultBridgeRateLimit covers ordinary bridge traffic (120 requests per minute)
func DefaultBridgeRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Requests: 120,
		Window:   time.Minute,
	}
}

// CredentialRateLimit is applied to PIN and verification endpoints on top of
// the lockout policy (10 requests per minute).
func CredentialRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Requests: 10,
		Window:   time.Minute,
	}
}

// RateLimitByClient creates a middleware that rate limits requests by client IP
func RateLimitByClient(config RateLimitConfig) func(next http.Handler) http.Handler {
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests, slow down")
		}),
	)
}
