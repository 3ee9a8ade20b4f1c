package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/pinguard/internal/models"
	pkghttp "github.com/BradenHooton/pinguard/pkg/http"
)

// LockServiceInterface is the part of the lock engine the bridge drives.
type LockServiceInterface interface {
	Status() models.LockStatus
	SetupPin(ctx context.Context, pin string, enableBiometric bool) error
	VerifyPin(ctx context.Context, pin string) error
	RemovePin(ctx context.Context) error
	AuthenticateWithBiometric(ctx context.Context, prompt string) error
	SetBiometricEnabled(ctx context.Context, enabled bool) error
	Lock(ctx context.Context, reason models.LockReason)
	Unlock(ctx context.Context) error
	SetInactivityTimeout(ctx context.Context, d time.Duration) error
}

// LockHandler handles PIN, biometric and lock requests from the UI shell.
type LockHandler struct {
	service LockServiceInterface
	logger  *slog.Logger
}

func NewLockHandler(service LockServiceInterface, logger *slog.Logger) *LockHandler {
	return &LockHandler{service: service, logger: logger}
}

// PIN format is checked by the engine so that malformed input during
// verification still counts as an attempt.
type SetupPinRequest struct {
	Pin             string `json:"pin" validate:"required,max=16"`
	EnableBiometric bool   `json:"enable_biometric"`
}

type VerifyPinRequest struct {
	Pin string `json:"pin" validate:"required,max=16"`
}

type BiometricChallengeRequest struct {
	Prompt string `json:"prompt" validate:"max=200"`
}

type BiometricToggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type LockRequest struct {
	Reason string `json:"reason" validate:"omitempty,oneof=explicit inactivity background"`
}

type InactivityTimeoutRequest struct {
	Seconds int `json:"seconds" validate:"required,min=1,max=86400"`
}

// GetStatus handles GET /lock/status
func (h *LockHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.service.Status())
}

// SetupPin handles PUT /lock/pin
func (h *LockHandler) SetupPin(w http.ResponseWriter, r *http.Request) {
	var req SetupPinRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.SetupPin(r.Context(), req.Pin, req.EnableBiometric); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, h.service.Status())
}

// RemovePin handles DELETE /lock/pin
func (h *LockHandler) RemovePin(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemovePin(r.Context()); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, h.service.Status())
}

// VerifyPin handles POST /lock/verify
func (h *LockHandler) VerifyPin(w http.ResponseWriter, r *http.Request) {
	var req VerifyPinRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.VerifyPin(r.Context(), req.Pin); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, h.service.Status())
}

// AuthenticateBiometric handles POST /lock/biometric. The request stays open
// until the shell resolves the prompt or the client goes away.
func (h *LockHandler) AuthenticateBiometric(w http.ResponseWriter, r *http.Request) {
	var req BiometricChallengeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.AuthenticateWithBiometric(r.Context(), req.Prompt); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, h.service.Status())
}

// SetBiometricEnabled handles PUT /lock/biometric
func (h *LockHandler) SetBiometricEnabled(w http.ResponseWriter, r *http.Request) {
	var req BiometricToggleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.SetBiometricEnabled(r.Context(), *req.Enabled); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, h.service.Status())
}

// Lock handles POST /lock/lock
func (h *LockHandler) Lock(w http.ResponseWriter, r *http.Request) {
	var req LockRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	reason := models.LockReasonExplicit
	if req.Reason != "" {
		reason = models.LockReason(req.Reason)
	}
	h.service.Lock(r.Context(), reason)

	pkghttp.WriteJSON(w, http.StatusOK, h.service.Status())
}

// Unlock handles POST /lock/unlock
func (h *LockHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Unlock(r.Context()); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, h.service.Status())
}

// SetInactivityTimeout handles PUT /lock/timeout
func (h *LockHandler) SetInactivityTimeout(w http.ResponseWriter, r *http.Request) {
	var req InactivityTimeoutRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.SetInactivityTimeout(r.Context(), time.Duration(req.Seconds)*time.Second); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, h.service.Status())
}
