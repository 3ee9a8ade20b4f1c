package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/pinguard/internal/models"
	pkghttp "github.com/BradenHooton/pinguard/pkg/http"
)

// writeServiceError maps lock, session and verification errors to bridge
// responses. Typed results carry their payload.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		lockedOut *models.LockedOutError
		wrongPin  *models.WrongPinError
		expired   *models.SessionExpiredError
		verr      *models.VerificationError
	)

	switch {
	case errors.As(err, &verr):
		resp := pkghttp.ErrorResponse{Error: "verification_failed", Message: verr.Message}
		status := http.StatusForbidden
		if errors.As(err, &lockedOut) {
			resp.SecondsRemaining = &lockedOut.SecondsRemaining
		}
		if errors.As(err, &wrongPin) {
			resp.AttemptsRemaining = &wrongPin.AttemptsRemaining
		}
		if errors.Is(err, models.ErrAppLocked) {
			resp.Error = "app_locked"
			status = http.StatusLocked
		}
		pkghttp.WriteErrorResponse(w, status, resp)

	case errors.As(err, &lockedOut):
		pkghttp.WriteErrorResponse(w, http.StatusLocked, pkghttp.ErrorResponse{
			Error:            "locked_out",
			Message:          lockedOut.Error(),
			SecondsRemaining: &lockedOut.SecondsRemaining,
		})
	case errors.As(err, &wrongPin):
		pkghttp.WriteErrorResponse(w, http.StatusUnauthorized, pkghttp.ErrorResponse{
			Error:             "wrong_pin",
			Message:           "Incorrect PIN",
			AttemptsRemaining: &wrongPin.AttemptsRemaining,
		})
	case errors.As(err, &expired):
		pkghttp.WriteErrorWithDetails(w, http.StatusUnauthorized, "session_expired", "Your session has ended", string(expired.Reason))

	case errors.Is(err, models.ErrInvalidPinLength), errors.Is(err, models.ErrInvalidPinFormat):
		pkghttp.WriteError(w, http.StatusBadRequest, "invalid_pin", err.Error())
	case errors.Is(err, models.ErrNoPinConfigured):
		pkghttp.WriteError(w, http.StatusConflict, "no_pin_configured", "No PIN is configured")
	case errors.Is(err, models.ErrUnauthenticatedUnlock):
		pkghttp.WriteForbidden(w, "Verify your PIN before unlocking")
	case errors.Is(err, models.ErrAppLocked):
		pkghttp.WriteLocked(w, "app_locked", "Unlock the app before continuing")
	case errors.Is(err, models.ErrBiometricUnavailable):
		pkghttp.WriteError(w, http.StatusConflict, "biometric_unavailable", "Biometric authentication is not available")
	case errors.Is(err, models.ErrBiometricCancelled):
		pkghttp.WriteError(w, http.StatusConflict, "biometric_cancelled", "Biometric authentication was cancelled")
	case errors.Is(err, models.ErrBiometricFailed):
		pkghttp.WriteError(w, http.StatusUnauthorized, "biometric_failed", "Biometric authentication failed")
	case errors.Is(err, models.ErrNoActiveSession):
		pkghttp.WriteError(w, http.StatusConflict, "no_active_session", "No active session")
	case errors.Is(err, models.ErrSessionAlreadyActive):
		pkghttp.WriteError(w, http.StatusConflict, "session_active", "A session is already active")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Credentials are missing or expired")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Conflict")
	case errors.Is(err, models.ErrStorageFailure), errors.Is(err, models.ErrEngineClosed):
		logger.Error("bridge request failed", slog.String("error", err.Error()))
		pkghttp.WriteServiceUnavailable(w, "Secure storage is unavailable")
	default:
		logger.Error("unexpected bridge error", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
