package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BradenHooton/pinguard/internal/models"
	"github.com/BradenHooton/pinguard/pkg/logger"
)

const unlockFirstMessage = "Unlock the app before continuing"

// LockStatusReader is the part of the lock engine the gate consults.
type LockStatusReader interface {
	PinConfigured() bool
	IsLocked() bool
}

// Challenger runs the PIN or biometric challenge for a verification request.
type Challenger interface {
	Challenge(ctx context.Context, req models.VerificationRequest) error
}

// EngineChallenger challenges against the lock engine.
type EngineChallenger struct {
	Engine *LockEngine
}

func (c EngineChallenger) Challenge(ctx context.Context, req models.VerificationRequest) error {
	if req.UseBiometric {
		prompt := req.Message
		if prompt == "" {
			prompt = "Confirm it's you"
		}
		return c.Engine.AuthenticateWithBiometric(ctx, prompt)
	}
	if req.Pin == "" {
		return models.ErrBadRequest
	}
	return c.Engine.VerifyPin(ctx, req.Pin)
}

// VerificationGate re-authenticates the user before a sensitive action.
type VerificationGate struct {
	lock       LockStatusReader
	challenger Challenger
	audit      *logger.AuditLogger
	logger     *slog.Logger
}

func NewVerificationGate(lock LockStatusReader, challenger Challenger, audit *logger.AuditLogger, logger *slog.Logger) *VerificationGate {
	return &VerificationGate{
		lock:       lock,
		challenger: challenger,
		audit:      audit,
		logger:     logger,
	}
}

// RequestVerification passes immediately when no PIN is configured, refuses
// while the app is locked, and otherwise runs one challenge.
func (g *VerificationGate) RequestVerification(ctx context.Context, req models.VerificationRequest) error {
	if !g.lock.PinConfigured() {
		g.audit.LogVerification(req.Action, true, "")
		return nil
	}
	if g.lock.IsLocked() {
		g.audit.LogVerification(req.Action, false, "app_locked")
		return &models.VerificationError{Message: unlockFirstMessage, Err: models.ErrAppLocked}
	}

	if err := g.challenger.Challenge(ctx, req); err != nil {
		g.audit.LogVerification(req.Action, false, failureReason(err))
		g.logger.Info("verification failed", slog.String("action", req.Action))
		return &models.VerificationError{Message: verificationMessage(req, err), Err: err}
	}

	g.audit.LogVerification(req.Action, true, "")
	return nil
}

func verificationMessage(req models.VerificationRequest, err error) string {
	msg := "Verification failed"
	switch {
	case errors.Is(err, models.ErrBiometricCancelled):
		msg = "Verification cancelled"
	case errors.Is(err, models.ErrAppLocked):
		return unlockFirstMessage
	}
	if req.Message != "" {
		return msg + ": " + req.Message
	}
	return msg
}
