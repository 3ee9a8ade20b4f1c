package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("resource already exists")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")

	// PIN and lock errors
	ErrInvalidPinLength      = errors.New("pin must be 4 or 6 digits")
	ErrInvalidPinFormat      = errors.New("pin must contain digits only")
	ErrNoPinConfigured       = errors.New("no pin configured")
	ErrUnauthenticatedUnlock = errors.New("unlock requires a successful pin or biometric verification")
	ErrAppLocked             = errors.New("app is locked")

	// Biometric errors
	ErrBiometricUnavailable = errors.New("biometric authentication unavailable")
	ErrBiometricFailed      = errors.New("biometric authentication failed")
	ErrBiometricCancelled   = errors.New("biometric authentication cancelled")

	// Session errors
	ErrNoActiveSession      = errors.New("no active session")
	ErrSessionAlreadyActive = errors.New("session already active")

	// Infrastructure errors
	ErrStorageFailure = errors.New("credential storage failure")
	ErrEngineClosed   = errors.New("engine closed")
)

// WrongPinError is returned when a PIN does not match and attempts remain.
type WrongPinError struct {
	AttemptsRemaining int
}

func (e *WrongPinError) Error() string {
	return fmt.Sprintf("wrong pin: %d attempts remaining", e.AttemptsRemaining)
}

// LockedOutError is returned while PIN verification is refused.
type LockedOutError struct {
	SecondsRemaining int
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("too many failed attempts: try again in %d seconds", e.SecondsRemaining)
}

// SessionExpiredError reports why a session is no longer valid. Callers must
// route the user back to login when they see it.
type SessionExpiredError struct {
	Reason TerminationReason
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired: %s", e.Reason)
}

// VerificationError is returned by the verification gate. Message is safe to
// show to the user.
type VerificationError struct {
	Message string
	Err     error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}
