package machine

import (
	"time"

	"github.com/BradenHooton/pinguard/internal/models"
)

// SessionEvent is an input to ReduceSession.
type SessionEvent interface {
	sessionEvent()
}

// SessionStarted begins a new session after login.
type SessionStarted struct {
	SessionID   string
	UserID      string
	MaxSession  time.Duration
	MaxInactive time.Duration
	WarningLead time.Duration
	At          time.Time
}

// SessionExtended records user activity.
type SessionExtended struct {
	At time.Time
}

// WarningDue fires WarningLead before one of the deadlines.
type WarningDue struct {
	Reason models.TerminationReason
	At     time.Time
}

// DeadlineDue fires at one of the deadlines.
type DeadlineDue struct {
	At time.Time
}

// LoggedOut ends the session at the user's request.
type LoggedOut struct {
	At time.Time
}

// ConcurrentSessionDetected ends the session because another device signed in.
type ConcurrentSessionDetected struct {
	At time.Time
}

func (SessionStarted) sessionEvent()            {}
func (SessionExtended) sessionEvent()           {}
func (WarningDue) sessionEvent()                {}
func (DeadlineDue) sessionEvent()               {}
func (LoggedOut) sessionEvent()                 {}
func (ConcurrentSessionDetected) sessionEvent() {}

// SessionTransition is the result of applying a SessionEvent.
type SessionTransition struct {
	State   models.SessionState
	Events  []models.Event
	Err     error
	Changed bool
	// Terminated is set on the transition that ends the session.
	Terminated bool
}

// ReduceSession applies ev to s.
func ReduceSession(s models.SessionState, ev SessionEvent) SessionTransition {
	t := SessionTransition{State: s}

	switch e := ev.(type) {
	case SessionStarted:
		if s.Phase.Live() {
			t.Err = models.ErrSessionAlreadyActive
			return t
		}
		t.State = models.SessionState{
			SessionID:    e.SessionID,
			UserID:       e.UserID,
			StartedAt:    e.At,
			LastActivity: e.At,
			MaxSession:   e.MaxSession,
			MaxInactive:  e.MaxInactive,
			WarningLead:  e.WarningLead,
			Phase:        models.SessionActive,
		}
		t.Changed = true
		t.Events = append(t.Events, models.Event{Type: models.EventSessionStarted, At: e.At, SessionID: e.SessionID})

	case SessionExtended:
		if !s.Phase.Live() {
			t.Err = models.ErrNoActiveSession
			return t
		}
		if reason := s.ExpiryReason(e.At); reason != "" {
			t = expire(s, reason, e.At)
			t.Err = &models.SessionExpiredError{Reason: reason}
			return t
		}
		t.State.LastActivity = e.At
		t.State.Phase = models.SessionActive
		t.Changed = true
		t.Events = append(t.Events, models.Event{Type: models.EventSessionExtended, At: e.At, SessionID: s.SessionID})

	case WarningDue:
		if !s.Phase.Live() {
			return t
		}
		var deadline time.Time
		switch e.Reason {
		case models.ReasonSessionLength:
			deadline = s.LengthDeadline()
			if s.LengthWarnedFor.Equal(deadline) {
				return t
			}
			t.State.LengthWarnedFor = deadline
		case models.ReasonInactivity:
			deadline = s.InactivityDeadline()
			if s.InactivityWarnedFor.Equal(deadline) {
				return t
			}
			t.State.InactivityWarnedFor = deadline
		default:
			return t
		}
		remaining := deadline.Sub(e.At)
		// A stale timer from an earlier cycle, or one that lost the race with the deadline.
		if remaining <= 0 || remaining > s.WarningLead {
			return SessionTransition{State: s}
		}
		t.State.Phase = models.SessionWarned
		t.Changed = true
		t.Events = append(t.Events, models.Event{
			Type:          models.EventSessionWarning,
			At:            e.At,
			SessionID:     s.SessionID,
			Reason:        e.Reason,
			TimeRemaining: remaining,
		})

	case DeadlineDue:
		if !s.Phase.Live() {
			return t
		}
		if reason := s.ExpiryReason(e.At); reason != "" {
			return expire(s, reason, e.At)
		}

	case LoggedOut:
		if !s.Phase.Live() {
			t.Err = models.ErrNoActiveSession
			return t
		}
		return terminate(s, models.ReasonUserLogout, e.At)

	case ConcurrentSessionDetected:
		if !s.Phase.Live() {
			t.Err = models.ErrNoActiveSession
			return t
		}
		t = terminate(s, models.ReasonConcurrentSession, e.At)
		t.Events = append([]models.Event{{
			Type:      models.EventConcurrentSessionDetected,
			At:        e.At,
			SessionID: s.SessionID,
			Reason:    models.ReasonConcurrentSession,
		}}, t.Events...)
	}

	return t
}

func expire(s models.SessionState, reason models.TerminationReason, at time.Time) SessionTransition {
	t := terminate(s, reason, at)
	t.Events = append([]models.Event{{
		Type:      models.EventSessionExpired,
		At:        at,
		SessionID: s.SessionID,
		Reason:    reason,
	}}, t.Events...)
	return t
}

func terminate(s models.SessionState, reason models.TerminationReason, at time.Time) SessionTransition {
	next := s
	next.Phase = models.SessionTerminated
	next.Reason = reason
	return SessionTransition{
		State:      next,
		Changed:    true,
		Terminated: true,
		Events: []models.Event{{
			Type:      models.EventSessionTerminated,
			At:        at,
			SessionID: s.SessionID,
			Reason:    reason,
		}},
	}
}
