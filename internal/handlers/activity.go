package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/pinguard/internal/models"
	pkghttp "github.com/BradenHooton/pinguard/pkg/http"
)

// ActivityRecorder fans a user interaction out to every activity listener.
type ActivityRecorder interface {
	Touch(ctx context.Context) error
}

// LifecycleServiceInterface receives platform lifecycle signals.
type LifecycleServiceInterface interface {
	HandleTransition(ctx context.Context, next models.AppState) error
	Current() models.AppState
}

type ActivityHandler struct {
	activity  ActivityRecorder
	lifecycle LifecycleServiceInterface
	logger    *slog.Logger
}

func NewActivityHandler(activity ActivityRecorder, lifecycle LifecycleServiceInterface, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{activity: activity, lifecycle: lifecycle, logger: logger}
}

type LifecycleRequest struct {
	State string `json:"state" validate:"required,oneof=active inactive background"`
}

type LifecycleResponse struct {
	State models.AppState `json:"state"`
}

// RecordActivity handles POST /activity. The shell posts on user input,
// debounced on its side.
func (h *ActivityHandler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	if err := h.activity.Touch(r.Context()); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transition handles POST /lifecycle
func (h *ActivityHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req LifecycleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.lifecycle.HandleTransition(r.Context(), models.AppState(req.State)); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LifecycleResponse{State: h.lifecycle.Current()})
}
