package auth

import (
	"net/http"
	"strings"

	pkghttp "github.com/BradenHooton/pinguard/pkg/http"
)

// BridgeAuth rejects bridge requests that do not carry the launch token as a
// Bearer credential.
func BridgeAuth(m *BridgeTokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				pkghttp.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			if !m.Verify(parts[1]) {
				pkghttp.WriteUnauthorized(w, "invalid bridge token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
