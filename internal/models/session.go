package models

import (
	"time"
)

// SessionPhase is the session tracker's state.
type SessionPhase string

const (
	SessionNone       SessionPhase = "none"
	SessionActive     SessionPhase = "active"
	SessionWarned     SessionPhase = "warned"
	SessionTerminated SessionPhase = "terminated"
)

// Live reports whether the phase accepts activity.
func (p SessionPhase) Live() bool {
	return p == SessionActive || p == SessionWarned
}

// TerminationReason explains why a session ended or is about to.
type TerminationReason string

const (
	ReasonSessionLength     TerminationReason = "session_length"
	ReasonInactivity        TerminationReason = "inactivity"
	ReasonUserLogout        TerminationReason = "user_logout"
	ReasonConcurrentSession TerminationReason = "concurrent_session"
	ReasonRestoreInvalid    TerminationReason = "restore_invalid"
)

// Expiry reports whether the reason is a timer expiry rather than an explicit action.
func (r TerminationReason) Expiry() bool {
	return r == ReasonSessionLength || r == ReasonInactivity
}

// SessionState is the state owned by the session tracker.
type SessionState struct {
	SessionID    string
	UserID       string
	StartedAt    time.Time
	LastActivity time.Time
	MaxSession   time.Duration
	MaxInactive  time.Duration
	WarningLead  time.Duration
	Phase        SessionPhase
	Reason       TerminationReason // set once Phase is terminated

	// Deadlines for which a warning has already been emitted.
	LengthWarnedFor     time.Time
	InactivityWarnedFor time.Time
}

// LengthDeadline is the absolute end of the session.
func (s *SessionState) LengthDeadline() time.Time {
	return s.StartedAt.Add(s.MaxSession)
}

// InactivityDeadline is the sliding end of the session.
func (s *SessionState) InactivityDeadline() time.Time {
	return s.LastActivity.Add(s.MaxInactive)
}

// ValidAt applies the validity invariant: both deadlines must be in the future.
func (s *SessionState) ValidAt(now time.Time) bool {
	if s.SessionID == "" || s.StartedAt.IsZero() || s.LastActivity.IsZero() {
		return false
	}
	return now.Sub(s.StartedAt) < s.MaxSession && now.Sub(s.LastActivity) < s.MaxInactive
}

// ExpiryReason returns which deadline has passed at now, or "" if neither.
// The absolute deadline wins when both have passed.
func (s *SessionState) ExpiryReason(now time.Time) TerminationReason {
	if now.Sub(s.StartedAt) >= s.MaxSession {
		return ReasonSessionLength
	}
	if now.Sub(s.LastActivity) >= s.MaxInactive {
		return ReasonInactivity
	}
	return ""
}

// SessionStatus is the public view of SessionState.
type SessionStatus struct {
	SessionID           string            `json:"session_id,omitempty"`
	Phase               SessionPhase      `json:"phase"`
	StartedAt           *time.Time        `json:"started_at,omitempty"`
	LastActivity        *time.Time        `json:"last_activity,omitempty"`
	RemainingLength     time.Duration     `json:"remaining_length_ns"`
	RemainingInactivity time.Duration     `json:"remaining_inactivity_ns"`
	Reason              TerminationReason `json:"reason,omitempty"`
}

// Tokens are the server-issued credentials held by the remote auth adapter.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// CurrentUser is the identity behind the active tokens.
type CurrentUser struct {
	ID    string
	Email string
}
