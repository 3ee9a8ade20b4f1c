package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/pinguard/internal/models"
	pkghttp "github.com/BradenHooton/pinguard/pkg/http"
	pkglogger "github.com/BradenHooton/pinguard/pkg/logger"
)

// SessionServiceInterface is the part of the session tracker the bridge drives.
type SessionServiceInterface interface {
	Start(ctx context.Context, userID string) (models.SessionStatus, error)
	Extend(ctx context.Context) error
	Logout(ctx context.Context) error
	ReportConcurrentSession(ctx context.Context) error
	Status() models.SessionStatus
}

// TokenStoreInterface holds the backend credentials for the signed-in user.
type TokenStoreInterface interface {
	SetTokens(ctx context.Context, tokens models.Tokens) error
	GetCurrentUser(ctx context.Context) (models.CurrentUser, error)
}

type SessionHandler struct {
	service SessionServiceInterface
	tokens  TokenStoreInterface
	logger  *slog.Logger
}

func NewSessionHandler(service SessionServiceInterface, tokens TokenStoreInterface, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{service: service, tokens: tokens, logger: logger}
}

// StartSessionRequest starts a session. An empty user id is resolved from the
// stored access token.
type StartSessionRequest struct {
	UserID string `json:"user_id" validate:"omitempty,max=128"`
}

type SetTokensRequest struct {
	AccessToken  string `json:"access_token" validate:"required,max=8192"`
	RefreshToken string `json:"refresh_token" validate:"omitempty,max=8192"`
}

// SetTokens handles PUT /session/tokens. The shell calls it after login.
func (h *SessionHandler) SetTokens(w http.ResponseWriter, r *http.Request) {
	var req SetTokensRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.tokens.SetTokens(r.Context(), models.Tokens{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Start handles POST /session/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	userID := req.UserID
	if userID == "" {
		user, err := h.tokens.GetCurrentUser(r.Context())
		switch {
		case err == nil:
			userID = user.ID
			if user.Email != "" {
				h.logger.Info("session user resolved from stored token",
					slog.String("email", pkglogger.SanitizedEmail(user.Email)),
				)
			}
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "Sign in before starting a session")
			return
		case errors.Is(err, models.ErrStorageFailure):
			writeServiceError(w, h.logger, err)
			return
		default:
			h.logger.Warn("stored access token rejected", slog.String("error", err.Error()))
			pkghttp.WriteUnauthorized(w, "Stored credentials are invalid")
			return
		}
	}

	status, err := h.service.Start(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, status)
}

// Extend handles POST /session/extend
func (h *SessionHandler) Extend(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Extend(r.Context()); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, h.service.Status())
}

// Logout handles POST /session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context()); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, h.service.Status())
}

// ReportConcurrent handles POST /session/concurrent. The shell calls it when
// the backend reports a sign-in elsewhere.
func (h *SessionHandler) ReportConcurrent(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ReportConcurrentSession(r.Context()); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, h.service.Status())
}

// GetStatus handles GET /session/status
func (h *SessionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.service.Status())
}
