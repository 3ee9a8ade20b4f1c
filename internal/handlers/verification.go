package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/pinguard/internal/models"
	pkghttp "github.com/BradenHooton/pinguard/pkg/http"
)

type VerificationServiceInterface interface {
	RequestVerification(ctx context.Context, req models.VerificationRequest) error
}

type VerificationHandler struct {
	service VerificationServiceInterface
	logger  *slog.Logger
}

func NewVerificationHandler(service VerificationServiceInterface, logger *slog.Logger) *VerificationHandler {
	return &VerificationHandler{service: service, logger: logger}
}

type VerificationRequest struct {
	Action       string `json:"action" validate:"required,max=64"`
	Message      string `json:"message" validate:"max=200"`
	Pin          string `json:"pin" validate:"omitempty,max=16"`
	UseBiometric bool   `json:"use_biometric"`
}

type VerificationResponse struct {
	Verified bool   `json:"verified"`
	Action   string `json:"action"`
}

// Verify handles POST /verification. It is called before a sensitive action
// such as a payment or a settings change.
func (h *VerificationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerificationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.service.RequestVerification(r.Context(), models.VerificationRequest{
		Action:       req.Action,
		Message:      req.Message,
		Pin:          req.Pin,
		UseBiometric: req.UseBiometric,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, VerificationResponse{Verified: true, Action: req.Action})
}
