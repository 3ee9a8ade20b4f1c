package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/pinguard/internal/biometric"
	"github.com/BradenHooton/pinguard/internal/models"
	pkghttp "github.com/BradenHooton/pinguard/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockLockService implements LockServiceInterface for testing
type MockLockService struct {
	StatusValue                   models.LockStatus
	SetupPinFunc                  func(ctx context.Context, pin string, enableBiometric bool) error
	VerifyPinFunc                 func(ctx context.Context, pin string) error
	RemovePinFunc                 func(ctx context.Context) error
	AuthenticateWithBiometricFunc func(ctx context.Context, prompt string) error
	SetBiometricEnabledFunc       func(ctx context.Context, enabled bool) error
	LockFunc                      func(ctx context.Context, reason models.LockReason)
	UnlockFunc                    func(ctx context.Context) error
	SetInactivityTimeoutFunc      func(ctx context.Context, d time.Duration) error
}

func (m *MockLockService) Status() models.LockStatus {
	return m.StatusValue
}

func (m *MockLockService) SetupPin(ctx context.Context, pin string, enableBiometric bool) error {
	if m.SetupPinFunc != nil {
		return m.SetupPinFunc(ctx, pin, enableBiometric)
	}
	return nil
}

func (m *MockLockService) VerifyPin(ctx context.Context, pin string) error {
	if m.VerifyPinFunc != nil {
		return m.VerifyPinFunc(ctx, pin)
	}
	return nil
}

func (m *MockLockService) RemovePin(ctx context.Context) error {
	if m.RemovePinFunc != nil {
		return m.RemovePinFunc(ctx)
	}
	return nil
}

func (m *MockLockService) AuthenticateWithBiometric(ctx context.Context, prompt string) error {
	if m.AuthenticateWithBiometricFunc != nil {
		return m.AuthenticateWithBiometricFunc(ctx, prompt)
	}
	return nil
}

func (m *MockLockService) SetBiometricEnabled(ctx context.Context, enabled bool) error {
	if m.SetBiometricEnabledFunc != nil {
		return m.SetBiometricEnabledFunc(ctx, enabled)
	}
	return nil
}

func (m *MockLockService) Lock(ctx context.Context, reason models.LockReason) {
	if m.LockFunc != nil {
		m.LockFunc(ctx, reason)
	}
}

func (m *MockLockService) Unlock(ctx context.Context) error {
	if m.UnlockFunc != nil {
		return m.UnlockFunc(ctx)
	}
	return nil
}

func (m *MockLockService) SetInactivityTimeout(ctx context.Context, d time.Duration) error {
	if m.SetInactivityTimeoutFunc != nil {
		return m.SetInactivityTimeoutFunc(ctx, d)
	}
	return nil
}

// MockSessionService implements SessionServiceInterface for testing
type MockSessionService struct {
	StatusValue    models.SessionStatus
	StartFunc      func(ctx context.Context, userID string) (models.SessionStatus, error)
	ExtendFunc     func(ctx context.Context) error
	LogoutFunc     func(ctx context.Context) error
	ConcurrentFunc func(ctx context.Context) error
}

func (m *MockSessionService) Start(ctx context.Context, userID string) (models.SessionStatus, error) {
	if m.StartFunc != nil {
		return m.StartFunc(ctx, userID)
	}
	return models.SessionStatus{Phase: models.SessionActive}, nil
}

func (m *MockSessionService) Extend(ctx context.Context) error {
	if m.ExtendFunc != nil {
		return m.ExtendFunc(ctx)
	}
	return nil
}

func (m *MockSessionService) Logout(ctx context.Context) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx)
	}
	return nil
}

func (m *MockSessionService) ReportConcurrentSession(ctx context.Context) error {
	if m.ConcurrentFunc != nil {
		return m.ConcurrentFunc(ctx)
	}
	return nil
}

func (m *MockSessionService) Status() models.SessionStatus {
	return m.StatusValue
}

// MockTokenStore implements TokenStoreInterface for testing
type MockTokenStore struct {
	SetTokensFunc      func(ctx context.Context, tokens models.Tokens) error
	GetCurrentUserFunc func(ctx context.Context) (models.CurrentUser, error)
}

func (m *MockTokenStore) SetTokens(ctx context.Context, tokens models.Tokens) error {
	if m.SetTokensFunc != nil {
		return m.SetTokensFunc(ctx, tokens)
	}
	return nil
}

func (m *MockTokenStore) GetCurrentUser(ctx context.Context) (models.CurrentUser, error) {
	if m.GetCurrentUserFunc != nil {
		return m.GetCurrentUserFunc(ctx)
	}
	return models.CurrentUser{}, models.ErrNotFound
}

// MockActivityRecorder implements ActivityRecorder for testing
type MockActivityRecorder struct {
	TouchFunc func(ctx context.Context) error
}

func (m *MockActivityRecorder) Touch(ctx context.Context) error {
	if m.TouchFunc != nil {
		return m.TouchFunc(ctx)
	}
	return nil
}

// MockLifecycleService implements LifecycleServiceInterface for testing
type MockLifecycleService struct {
	State                models.AppState
	HandleTransitionFunc func(ctx context.Context, next models.AppState) error
}

func (m *MockLifecycleService) HandleTransition(ctx context.Context, next models.AppState) error {
	if m.HandleTransitionFunc != nil {
		if err := m.HandleTransitionFunc(ctx, next); err != nil {
			return err
		}
	}
	m.State = next
	return nil
}

func (m *MockLifecycleService) Current() models.AppState {
	return m.State
}

// MockVerificationService implements VerificationServiceInterface for testing
type MockVerificationService struct {
	RequestVerificationFunc func(ctx context.Context, req models.VerificationRequest) error
}

func (m *MockVerificationService) RequestVerification(ctx context.Context, req models.VerificationRequest) error {
	if m.RequestVerificationFunc != nil {
		return m.RequestVerificationFunc(ctx, req)
	}
	return nil
}

// MockBiometricRelay implements BiometricRelayInterface for testing
type MockBiometricRelay struct {
	Capability  biometric.Capability
	Prompt      *biometric.Prompt
	ResolveFunc func(id string, outcome biometric.Outcome) error
}

func (m *MockBiometricRelay) SetCapability(c biometric.Capability) {
	m.Capability = c
}

func (m *MockBiometricRelay) Pending() (biometric.Prompt, bool) {
	if m.Prompt == nil {
		return biometric.Prompt{}, false
	}
	return *m.Prompt, true
}

func (m *MockBiometricRelay) Resolve(id string, outcome biometric.Outcome) error {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(id, outcome)
	}
	return nil
}

// MockCapabilityRefresher implements CapabilityRefresher for testing
type MockCapabilityRefresher struct {
	Calls       int
	RefreshFunc func(ctx context.Context) error
}

func (m *MockCapabilityRefresher) RefreshBiometricCapability(ctx context.Context) error {
	m.Calls++
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx)
	}
	return nil
}
