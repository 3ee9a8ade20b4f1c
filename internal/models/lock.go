package models

import (
	"time"
)

// PinLength is the number of digits in a configured PIN.
type PinLength int

const (
	PinLengthFour PinLength = 4
	PinLengthSix  PinLength = 6
)

// Valid reports whether n is a supported PIN length.
func (n PinLength) Valid() bool {
	return n == PinLengthFour || n == PinLengthSix
}

// BiometricKind is a biometric modality reported by the sensor.
type BiometricKind string

const (
	BiometricFingerprint BiometricKind = "fingerprint"
	BiometricFace        BiometricKind = "face"
	BiometricIris        BiometricKind = "iris"
)

// BiometricState describes sensor capability and the user's opt-in.
type BiometricState struct {
	Available      bool            `json:"available"`
	Enrolled       bool            `json:"enrolled"`
	Enabled        bool            `json:"enabled"`
	SupportedKinds []BiometricKind `json:"supported_kinds"`
}

// Usable reports whether a biometric challenge may be attempted.
func (b BiometricState) Usable() bool {
	return b.Available && b.Enrolled && b.Enabled
}

// LockReason records why the app was locked.
type LockReason string

const (
	LockReasonExplicit   LockReason = "explicit"
	LockReasonInactivity LockReason = "inactivity"
	LockReasonBackground LockReason = "background"
	LockReasonStartup    LockReason = "startup"
	LockReasonStorage    LockReason = "storage_unreadable"
	LockReasonLockout    LockReason = "lockout"
)

// LockState is the state owned by the lock engine.
type LockState struct {
	PinConfigured  bool
	PinHash        []byte // bcrypt hash, never the raw PIN
	PinLength      PinLength
	Locked         bool
	FailedAttempts int
	MaxAttempts    int
	LockoutUntil   *time.Time
	LockoutCount   int // lockouts since the last successful verification
	Biometric      BiometricState

	LastActivity      time.Time
	InactivityTimeout time.Duration

	// UnlockGranted is set by a successful PIN or biometric verification and
	// cleared by any lock. Unlock is refused without it.
	UnlockGranted bool
}

// LockedOut reports whether verification is refused at now.
func (s *LockState) LockedOut(now time.Time) bool {
	return s.LockoutUntil != nil && now.Before(*s.LockoutUntil)
}

// LockoutRemaining returns the time left in the lockout window.
func (s *LockState) LockoutRemaining(now time.Time) time.Duration {
	if !s.LockedOut(now) {
		return 0
	}
	return s.LockoutUntil.Sub(now)
}

// Clone returns a deep copy safe to hand to callers.
func (s LockState) Clone() LockState {
	out := s
	if s.PinHash != nil {
		out.PinHash = append([]byte(nil), s.PinHash...)
	}
	if s.LockoutUntil != nil {
		until := *s.LockoutUntil
		out.LockoutUntil = &until
	}
	if s.Biometric.SupportedKinds != nil {
		out.Biometric.SupportedKinds = append([]BiometricKind(nil), s.Biometric.SupportedKinds...)
	}
	return out
}

// LockStatus is the public, hash-free view of LockState.
type LockStatus struct {
	PinConfigured     bool           `json:"pin_configured"`
	PinLength         PinLength      `json:"pin_length,omitempty"`
	Locked            bool           `json:"locked"`
	FailedAttempts    int            `json:"failed_attempts"`
	AttemptsRemaining int            `json:"attempts_remaining"`
	LockedOut         bool           `json:"locked_out"`
	LockoutSeconds    int            `json:"lockout_seconds_remaining,omitempty"`
	Biometric         BiometricState `json:"biometric"`
	LastActivity      time.Time      `json:"last_activity"`
	InactivityTimeout time.Duration  `json:"inactivity_timeout_ns"`
}

// AppState is a platform lifecycle signal.
type AppState string

const (
	AppStateActive     AppState = "active"
	AppStateInactive   AppState = "inactive"
	AppStateBackground AppState = "background"
)

// Valid reports whether s is a known lifecycle state.
func (s AppState) Valid() bool {
	switch s {
	case AppStateActive, AppStateInactive, AppStateBackground:
		return true
	}
	return false
}
