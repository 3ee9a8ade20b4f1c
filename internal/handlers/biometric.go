package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/pinguard/internal/biometric"
	"github.com/BradenHooton/pinguard/internal/models"
	pkghttp "github.com/BradenHooton/pinguard/pkg/http"
)

// BiometricRelayInterface is the shell-facing side of the biometric relay.
type BiometricRelayInterface interface {
	SetCapability(c biometric.Capability)
	Pending() (biometric.Prompt, bool)
	Resolve(id string, outcome biometric.Outcome) error
}

// CapabilityRefresher re-reads sensor capability into lock state.
type CapabilityRefresher interface {
	RefreshBiometricCapability(ctx context.Context) error
}

type BiometricHandler struct {
	relay  BiometricRelayInterface
	engine CapabilityRefresher
	logger *slog.Logger
}

func NewBiometricHandler(relay BiometricRelayInterface, engine CapabilityRefresher, logger *slog.Logger) *BiometricHandler {
	return &BiometricHandler{relay: relay, engine: engine, logger: logger}
}

type CapabilityRequest struct {
	HasHardware bool     `json:"has_hardware"`
	Enrolled    bool     `json:"enrolled"`
	Kinds       []string `json:"kinds" validate:"max=3,dive,oneof=fingerprint face iris"`
}

type BiometricResultRequest struct {
	ID      string `json:"id" validate:"required,uuid4"`
	Outcome string `json:"outcome" validate:"required,oneof=succeeded failed cancelled"`
}

// SetCapability handles PUT /biometric/capability
func (h *BiometricHandler) SetCapability(w http.ResponseWriter, r *http.Request) {
	var req CapabilityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	kinds := make([]models.BiometricKind, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		kinds = append(kinds, models.BiometricKind(k))
	}
	h.relay.SetCapability(biometric.Capability{
		HasHardware: req.HasHardware,
		Enrolled:    req.Enrolled,
		Kinds:       kinds,
	})

	if err := h.engine.RefreshBiometricCapability(r.Context()); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetPrompt handles GET /biometric/prompt. 204 means nothing is waiting.
func (h *BiometricHandler) GetPrompt(w http.ResponseWriter, r *http.Request) {
	prompt, ok := h.relay.Pending()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, prompt)
}

// SubmitResult handles POST /biometric/result
func (h *BiometricHandler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	var req BiometricResultRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.relay.Resolve(req.ID, biometric.Outcome(req.Outcome)); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
