package models

import (
	"time"
)

// EventType names an event emitted to the UI and navigation layers.
type EventType string

const (
	EventSessionStarted            EventType = "session_started"
	EventSessionExtended           EventType = "session_extended"
	EventSessionWarning            EventType = "session_warning"
	EventSessionExpired            EventType = "session_expired"
	EventSessionTerminated         EventType = "session_terminated"
	EventConcurrentSessionDetected EventType = "concurrent_session_detected"

	EventLocked        EventType = "locked"
	EventUnlocked      EventType = "unlocked"
	EventLockedOut     EventType = "locked_out"
	EventPinConfigured EventType = "pin_configured"
	EventPinRemoved    EventType = "pin_removed"
)

// Event is a single notification. Only the fields relevant to Type are set.
type Event struct {
	Type             EventType         `json:"type"`
	At               time.Time         `json:"at"`
	SessionID        string            `json:"session_id,omitempty"`
	Reason           TerminationReason `json:"reason,omitempty"`
	TimeRemaining    time.Duration     `json:"time_remaining_ns,omitempty"`
	LockReason       LockReason        `json:"lock_reason,omitempty"`
	SecondsRemaining int               `json:"seconds_remaining,omitempty"`
}

// VerificationRequest asks the gate to re-authenticate before a sensitive action.
type VerificationRequest struct {
	// Action is a short machine name such as "payment" or "settings_change".
	Action string
	// Message is shown to the user in the challenge prompt.
	Message string
	// Pin is set when the caller already collected a PIN.
	Pin string
	// UseBiometric asks for a biometric challenge instead of a PIN.
	UseBiometric bool
}
