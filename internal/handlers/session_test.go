package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/pinguard/internal/handlers"
	"github.com/BradenHooton/pinguard/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestStartSession_ExplicitUser(t *testing.T) {
	var gotUser string
	sessions := &handlers.MockSessionService{
		StartFunc: func(ctx context.Context, userID string) (models.SessionStatus, error) {
			gotUser = userID
			return models.SessionStatus{SessionID: "s-1", Phase: models.SessionActive}, nil
		},
	}
	handler := handlers.NewSessionHandler(sessions, &handlers.MockTokenStore{}, discardLogger())

	w := httptest.NewRecorder()
	handler.Start(w, handlers.NewTestRequest(t, http.MethodPost, "/session/start", handlers.StartSessionRequest{UserID: "user-1"}))

	var resp models.SessionStatus
	handlers.AssertJSONResponse(t, w, http.StatusCreated, &resp)
	assert.Equal(t, "user-1", gotUser)
	assert.Equal(t, "s-1", resp.SessionID)
}

func TestStartSession_UserFromTokens(t *testing.T) {
	tests := []struct {
		name           string
		userErr        error
		expectedStatus int
		expectedError  string
	}{
		{"resolved", nil, http.StatusCreated, ""},
		{"no tokens", models.ErrNotFound, http.StatusUnauthorized, "unauthorized"},
		{"expired token", models.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"storage failure", models.ErrStorageFailure, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser string
			sessions := &handlers.MockSessionService{
				StartFunc: func(ctx context.Context, userID string) (models.SessionStatus, error) {
					gotUser = userID
					return models.SessionStatus{Phase: models.SessionActive}, nil
				},
			}
			tokens := &handlers.MockTokenStore{
				GetCurrentUserFunc: func(ctx context.Context) (models.CurrentUser, error) {
					if tt.userErr != nil {
						return models.CurrentUser{}, tt.userErr
					}
					return models.CurrentUser{ID: "from-token"}, nil
				},
			}
			handler := handlers.NewSessionHandler(sessions, tokens, discardLogger())

			w := httptest.NewRecorder()
			handler.Start(w, handlers.NewTestRequest(t, http.MethodPost, "/session/start", handlers.StartSessionRequest{}))

			if tt.expectedError != "" {
				handlers.AssertErrorResponse(t, w, tt.expectedStatus, tt.expectedError)
				assert.Empty(t, gotUser)
				return
			}
			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "from-token", gotUser)
		})
	}
}

func TestStartSession_AlreadyActive(t *testing.T) {
	sessions := &handlers.MockSessionService{
		StartFunc: func(ctx context.Context, userID string) (models.SessionStatus, error) {
			return models.SessionStatus{}, models.ErrSessionAlreadyActive
		},
	}
	handler := handlers.NewSessionHandler(sessions, &handlers.MockTokenStore{}, discardLogger())

	w := httptest.NewRecorder()
	handler.Start(w, handlers.NewTestRequest(t, http.MethodPost, "/session/start", handlers.StartSessionRequest{UserID: "user-1"}))

	handlers.AssertErrorResponse(t, w, http.StatusConflict, "session_active")
}

func TestExtendSession_Expired(t *testing.T) {
	sessions := &handlers.MockSessionService{
		ExtendFunc: func(ctx context.Context) error {
			return &models.SessionExpiredError{Reason: models.ReasonInactivity}
		},
	}
	handler := handlers.NewSessionHandler(sessions, &handlers.MockTokenStore{}, discardLogger())

	w := httptest.NewRecorder()
	handler.Extend(w, httptest.NewRequest(http.MethodPost, "/session/extend", nil))

	resp := handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "session_expired")
	assert.Equal(t, string(models.ReasonInactivity), resp.Details)
}

func TestLogout_NoSession(t *testing.T) {
	sessions := &handlers.MockSessionService{
		LogoutFunc: func(ctx context.Context) error { return models.ErrNoActiveSession },
	}
	handler := handlers.NewSessionHandler(sessions, &handlers.MockTokenStore{}, discardLogger())

	w := httptest.NewRecorder()
	handler.Logout(w, httptest.NewRequest(http.MethodPost, "/session/logout", nil))

	handlers.AssertErrorResponse(t, w, http.StatusConflict, "no_active_session")
}

func TestReportConcurrent(t *testing.T) {
	called := false
	sessions := &handlers.MockSessionService{
		StatusValue: models.SessionStatus{Phase: models.SessionTerminated, Reason: models.ReasonConcurrentSession},
		ConcurrentFunc: func(ctx context.Context) error {
			called = true
			return nil
		},
	}
	handler := handlers.NewSessionHandler(sessions, &handlers.MockTokenStore{}, discardLogger())

	w := httptest.NewRecorder()
	handler.ReportConcurrent(w, httptest.NewRequest(http.MethodPost, "/session/concurrent", nil))

	var resp models.SessionStatus
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, called)
	assert.Equal(t, models.ReasonConcurrentSession, resp.Reason)
}

func TestSetTokens(t *testing.T) {
	var got models.Tokens
	tokens := &handlers.MockTokenStore{
		SetTokensFunc: func(ctx context.Context, tk models.Tokens) error {
			got = tk
			return nil
		},
	}
	handler := handlers.NewSessionHandler(&handlers.MockSessionService{}, tokens, discardLogger())

	w := httptest.NewRecorder()
	handler.SetTokens(w, handlers.NewTestRequest(t, http.MethodPut, "/session/tokens", handlers.SetTokensRequest{
		AccessToken:  "access",
		RefreshToken: "refresh",
	}))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, models.Tokens{AccessToken: "access", RefreshToken: "refresh"}, got)

	w = httptest.NewRecorder()
	handler.SetTokens(w, handlers.NewTestRequest(t, http.MethodPut, "/session/tokens", handlers.SetTokensRequest{}))
	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestSetTokens_StorageFailure(t *testing.T) {
	tokens := &handlers.MockTokenStore{
		SetTokensFunc: func(ctx context.Context, tk models.Tokens) error {
			return errors.Join(models.ErrStorageFailure, errors.New("locked database"))
		},
	}
	handler := handlers.NewSessionHandler(&handlers.MockSessionService{}, tokens, discardLogger())

	w := httptest.NewRecorder()
	handler.SetTokens(w, handlers.NewTestRequest(t, http.MethodPut, "/session/tokens", handlers.SetTokensRequest{AccessToken: "a"}))

	handlers.AssertErrorResponse(t, w, http.StatusServiceUnavailable, "unavailable")
}
