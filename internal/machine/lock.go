package machine

import (
	"time"

	"github.com/BradenHooton/pinguard/internal/models"
)

// LockEvent is an input to ReduceLock.
type LockEvent interface {
	lockEvent()
}

// PinSet installs a new PIN hash.
type PinSet struct {
	Hash            []byte
	Length          models.PinLength
	EnableBiometric bool
	At              time.Time
}

// PinCleared resets the PIN and biometric opt-in.
type PinCleared struct {
	At time.Time
}

// PinAttempted carries the outcome of comparing a PIN against the stored hash.
type PinAttempted struct {
	Matched bool
	At      time.Time
}

// BiometricAttempted carries the outcome of a single sensor challenge.
type BiometricAttempted struct {
	Succeeded bool
	At        time.Time
}

// LockRequested locks the app if a PIN is configured.
type LockRequested struct {
	Reason models.LockReason
	At     time.Time
}

// UnlockRequested clears the locked flag when an unlock grant exists.
type UnlockRequested struct {
	At time.Time
}

// ActivityRecorded moves the inactivity baseline forward.
type ActivityRecorded struct {
	At time.Time
}

// IdleChecked locks the app when the inactivity timeout has elapsed.
type IdleChecked struct {
	At time.Time
}

// BiometricCapabilityChanged records what the sensor reports.
type BiometricCapabilityChanged struct {
	Available bool
	Enrolled  bool
	Kinds     []models.BiometricKind
}

// BiometricToggled sets the user's biometric opt-in.
type BiometricToggled struct {
	Enabled bool
}

// TimeoutChanged sets the inactivity timeout.
type TimeoutChanged struct {
	Timeout time.Duration
}

func (PinSet) lockEvent()                     {}
func (PinCleared) lockEvent()                 {}
func (PinAttempted) lockEvent()               {}
func (BiometricAttempted) lockEvent()         {}
func (LockRequested) lockEvent()              {}
func (UnlockRequested) lockEvent()            {}
func (ActivityRecorded) lockEvent()           {}
func (IdleChecked) lockEvent()                {}
func (BiometricCapabilityChanged) lockEvent() {}
func (BiometricToggled) lockEvent()           {}
func (TimeoutChanged) lockEvent()             {}

// LockTransition is the result of applying a LockEvent.
type LockTransition struct {
	State models.LockState
	// Events to emit once the new state is committed.
	Events []models.Event
	// Err is the user-facing outcome: WrongPinError, LockedOutError and so on.
	Err error
	// Changed reports whether State differs from the input and must be persisted.
	Changed bool
}

// ReduceLock applies ev to s. The input state is never modified.
func ReduceLock(s models.LockState, ev LockEvent, policy LockoutPolicy) LockTransition {
	next := s.Clone()
	t := LockTransition{State: next}

	switch e := ev.(type) {
	case PinSet:
		if !e.Length.Valid() {
			t.Err = models.ErrInvalidPinLength
			return t
		}
		if s.PinConfigured && s.Locked {
			t.Err = models.ErrAppLocked
			return t
		}
		t.State.PinConfigured = true
		t.State.PinHash = append([]byte(nil), e.Hash...)
		t.State.PinLength = e.Length
		t.State.Biometric.Enabled = e.EnableBiometric
		t.State.Locked = false
		t.State.UnlockGranted = true
		t.State.LastActivity = e.At
		clearLockout(&t.State)
		t.Changed = true
		t.Events = append(t.Events, models.Event{Type: models.EventPinConfigured, At: e.At})

	case PinCleared:
		if !s.PinConfigured {
			return t
		}
		wasLocked := s.Locked
		t.State.PinConfigured = false
		t.State.PinHash = nil
		t.State.PinLength = 0
		t.State.Locked = false
		t.State.UnlockGranted = false
		t.State.Biometric.Enabled = false
		clearLockout(&t.State)
		t.Changed = true
		t.Events = append(t.Events, models.Event{Type: models.EventPinRemoved, At: e.At})
		if wasLocked {
			t.Events = append(t.Events, models.Event{Type: models.EventUnlocked, At: e.At})
		}

	case PinAttempted:
		if !s.PinConfigured {
			t.Err = models.ErrNoPinConfigured
			return t
		}
		if s.LockedOut(e.At) {
			t.Err = &models.LockedOutError{SecondsRemaining: ceilSeconds(s.LockoutRemaining(e.At))}
			return t
		}
		if s.LockoutUntil != nil {
			t.State.LockoutUntil = nil
			t.State.FailedAttempts = 0
			t.Changed = true
		}
		if e.Matched {
			grant(&t, e.At)
			return t
		}

		t.State.FailedAttempts++
		t.Changed = true
		if t.State.FailedAttempts < t.State.MaxAttempts {
			t.Err = &models.WrongPinError{AttemptsRemaining: t.State.MaxAttempts - t.State.FailedAttempts}
			return t
		}

		t.State.LockoutCount++
		window := policy.Duration(t.State.LockoutCount)
		until := e.At.Add(window)
		t.State.LockoutUntil = &until
		secs := ceilSeconds(window)
		t.Err = &models.LockedOutError{SecondsRemaining: secs}
		t.Events = append(t.Events, models.Event{Type: models.EventLockedOut, At: e.At, SecondsRemaining: secs})
		if !t.State.Locked {
			t.State.Locked = true
			t.State.UnlockGranted = false
			t.Events = append(t.Events, models.Event{Type: models.EventLocked, At: e.At, LockReason: models.LockReasonLockout})
		}

	case BiometricAttempted:
		if !s.PinConfigured {
			t.Err = models.ErrNoPinConfigured
			return t
		}
		if !s.Biometric.Usable() {
			t.Err = models.ErrBiometricUnavailable
			return t
		}
		if !e.Succeeded {
			t.Err = models.ErrBiometricFailed
			return t
		}
		grant(&t, e.At)

	case LockRequested:
		if !s.PinConfigured || s.Locked {
			return t
		}
		t.State.Locked = true
		t.State.UnlockGranted = false
		t.Changed = true
		t.Events = append(t.Events, models.Event{Type: models.EventLocked, At: e.At, LockReason: e.Reason})

	case UnlockRequested:
		if !s.PinConfigured {
			return t
		}
		if !s.UnlockGranted {
			t.Err = models.ErrUnauthenticatedUnlock
			return t
		}
		t.State.LastActivity = e.At
		t.Changed = true
		if s.Locked {
			t.State.Locked = false
			t.Events = append(t.Events, models.Event{Type: models.EventUnlocked, At: e.At})
		}

	case ActivityRecorded:
		if e.At.After(s.LastActivity) {
			t.State.LastActivity = e.At
			t.Changed = true
		}

	case IdleChecked:
		if !s.PinConfigured || s.Locked || s.InactivityTimeout <= 0 {
			return t
		}
		if e.At.Sub(s.LastActivity) < s.InactivityTimeout {
			return t
		}
		return ReduceLock(s, LockRequested{Reason: models.LockReasonInactivity, At: e.At}, policy)

	case BiometricCapabilityChanged:
		t.State.Biometric.Available = e.Available
		t.State.Biometric.Enrolled = e.Enrolled
		t.State.Biometric.SupportedKinds = append([]models.BiometricKind(nil), e.Kinds...)
		t.Changed = true

	case BiometricToggled:
		if !s.PinConfigured {
			t.Err = models.ErrNoPinConfigured
			return t
		}
		if e.Enabled && !(s.Biometric.Available && s.Biometric.Enrolled) {
			t.Err = models.ErrBiometricUnavailable
			return t
		}
		if s.Biometric.Enabled != e.Enabled {
			t.State.Biometric.Enabled = e.Enabled
			t.Changed = true
		}

	case TimeoutChanged:
		if e.Timeout <= 0 {
			t.Err = models.ErrBadRequest
			return t
		}
		t.State.InactivityTimeout = e.Timeout
		t.Changed = true
	}

	return t
}

// grant applies a successful PIN or biometric verification.
func grant(t *LockTransition, at time.Time) {
	wasLocked := t.State.Locked
	clearLockout(&t.State)
	t.State.Locked = false
	t.State.UnlockGranted = true
	t.State.LastActivity = at
	t.Changed = true
	if wasLocked {
		t.Events = append(t.Events, models.Event{Type: models.EventUnlocked, At: at})
	}
}

func clearLockout(s *models.LockState) {
	s.FailedAttempts = 0
	s.LockoutUntil = nil
	s.LockoutCount = 0
}
