package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkghttp "github.com/BradenHooton/pinguard/pkg/http"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// TestRateLimitByClient_EnforcesLimit verifies the request after the limit is rejected
func TestRateLimitByClient_EnforcesLimit(t *testing.T) {
	handler := RateLimitByClient(RateLimitConfig{Requests: 3, Window: time.Minute})(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/lock/verify", nil)
		req.RemoteAddr = "127.0.0.1:50001"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("request %d: got status %d, want 200", i+1, w.Code)
		}
	}

	req := httptest.NewRequest("POST", "/lock/verify", nil)
	req.RemoteAddr = "127.0.0.1:50001"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("got status %d, want 429", w.Code)
	}

	var resp pkghttp.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Error != "rate_limit_exceeded" {
		t.Errorf("error code: got %q, want rate_limit_exceeded", resp.Error)
	}
}

// TestRateLimitByClient_SeparateClients verifies limits are tracked per client
func TestRateLimitByClient_SeparateClients(t *testing.T) {
	handler := RateLimitByClient(RateLimitConfig{Requests: 1, Window: time.Minute})(okHandler())

	for _, addr := range []string{"10.0.0.1:1000", "10.0.0.2:1000"} {
		req := httptest.NewRequest("GET", "/lock/status", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("client %s: got status %d, want 200", addr, w.Code)
		}
	}
}

func TestRateLimitDefaults(t *testing.T) {
	if got := DefaultBridgeRateLimit(); got.Requests != 120 || got.Window != time.Minute {
		t.Errorf("DefaultBridgeRateLimit() = %+v", got)
	}
	if got := CredentialRateLimit(); got.Requests != 10 || got.Window != time.Minute {
		t.Errorf("CredentialRateLimit() = %+v", got)
	}
}
