package services

import (
	"context"
	"time"

	"github.com/BradenHooton/pinguard/internal/models"
)

// LockStore persists the durable part of the lock state.
type LockStore interface {
	Load(ctx context.Context) (models.LockState, error)
	Save(ctx context.Context, s models.LockState) error
}

// BackgroundMarkStore persists when the app entered the background.
type BackgroundMarkStore interface {
	SetBackgroundEnteredAt(ctx context.Context, at time.Time) error
	BackgroundEnteredAt(ctx context.Context) (time.Time, error)
	ClearBackgroundEnteredAt(ctx context.Context) error
}

// SessionStore persists the session so it can survive a restart.
type SessionStore interface {
	Load(ctx context.Context) (models.SessionState, error)
	Save(ctx context.Context, s models.SessionState) error
	SaveActivity(ctx context.Context, at time.Time) error
	Clear(ctx context.Context) error
}

// BiometricSensor is the platform biometric API.
type BiometricSensor interface {
	HasHardware(ctx context.Context) (bool, error)
	IsEnrolled(ctx context.Context) (bool, error)
	SupportedKinds(ctx context.Context) ([]models.BiometricKind, error)
	// Authenticate runs a single challenge. It returns nil on success,
	// models.ErrBiometricCancelled if the user or ctx cancelled, and
	// models.ErrBiometricFailed otherwise.
	Authenticate(ctx context.Context, prompt string) error
}

// RemoteAuth is the device side of the backend auth API.
type RemoteAuth interface {
	GetTokens(ctx context.Context) (models.Tokens, error)
	GetCurrentUser(ctx context.Context) (models.CurrentUser, error)
	Logout(ctx context.Context) error
	ClearTokens(ctx context.Context) error
}

// PinHasher hashes and compares PINs.
type PinHasher interface {
	Hash(pin string) ([]byte, error)
	Compare(hash []byte, pin string) error
}
