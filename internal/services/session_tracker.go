package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/pinguard/internal/clock"
	"github.com/BradenHooton/pinguard/internal/machine"
	"github.com/BradenHooton/pinguard/internal/models"
	"github.com/BradenHooton/pinguard/pkg/logger"
	"github.com/google/uuid"
)

// SessionConfig holds session policy.
type SessionConfig struct {
	MaxSession  time.Duration
	MaxInactive time.Duration
	WarningLead time.Duration
}

// DefaultSessionConfig returns the default session policy.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxSession:  8 * time.Hour,
		MaxInactive: 15 * time.Minute,
		WarningLead: 2 * time.Minute,
	}
}

// SessionTracker owns the session state for one identity and runs its
// warning and deadline timers.
type SessionTracker struct {
	mu     sync.Mutex
	state  models.SessionState
	gen    uint64 // bumped on every re-arm; stale timer callbacks compare against it
	timers []clock.Timer
	closed bool

	store  SessionStore
	remote RemoteAuth
	bus    *EventBus
	audit  *logger.AuditLogger
	clock  clock.Clock
	config SessionConfig
	logger *slog.Logger
}

func NewSessionTracker(
	store SessionStore,
	remote RemoteAuth,
	bus *EventBus,
	audit *logger.AuditLogger,
	clk clock.Clock,
	config SessionConfig,
	logger *slog.Logger,
) *SessionTracker {
	return &SessionTracker{
		state:  models.SessionState{Phase: models.SessionNone},
		store:  store,
		remote: remote,
		bus:    bus,
		audit:  audit,
		clock:  clk,
		config: config,
		logger: logger,
	}
}

// Start begins a session for userID after a successful login.
func (t *SessionTracker) Start(ctx context.Context, userID string) (models.SessionStatus, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return models.SessionStatus{}, models.ErrEngineClosed
	}

	tr := machine.ReduceSession(t.state, machine.SessionStarted{
		SessionID:   uuid.NewString(),
		UserID:      userID,
		MaxSession:  t.config.MaxSession,
		MaxInactive: t.config.MaxInactive,
		WarningLead: t.config.WarningLead,
		At:          t.clock.Now(),
	})
	if tr.Err != nil {
		t.mu.Unlock()
		return models.SessionStatus{}, tr.Err
	}
	if err := t.store.Save(ctx, tr.State); err != nil {
		t.mu.Unlock()
		t.logger.Error("failed to persist new session", slog.String("error", err.Error()))
		return models.SessionStatus{}, err
	}
	t.state = tr.State
	t.armLocked()
	status := t.statusLocked()
	t.mu.Unlock()

	t.logger.Info("session started", slog.String("session_id", logger.MaskID(tr.State.SessionID)))
	t.emit(tr.State, tr.Events)
	return status, nil
}

// Extend records activity and restarts the inactivity cycle. Activity after a
// deadline has passed expires the session instead.
func (t *SessionTracker) Extend(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return models.ErrEngineClosed
	}

	now := t.clock.Now()
	tr := machine.ReduceSession(t.state, machine.SessionExtended{At: now})
	if tr.Terminated {
		return errors.Join(tr.Err, t.finish(tr))
	}
	if tr.Err != nil {
		t.mu.Unlock()
		return tr.Err
	}
	t.state = tr.State
	t.armLocked()
	t.mu.Unlock()

	t.bus.Publish(tr.Events...)
	if err := t.store.SaveActivity(ctx, now); err != nil {
		t.logger.Error("failed to persist session activity", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// RecordActivity implements ActivityListener. Activity without a session is
// not an error.
func (t *SessionTracker) RecordActivity(ctx context.Context) error {
	err := t.Extend(ctx)
	if errors.Is(err, models.ErrNoActiveSession) {
		return nil
	}
	return err
}

// Logout ends the session at the user's request and revokes the tokens.
func (t *SessionTracker) Logout(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return models.ErrEngineClosed
	}
	tr := machine.ReduceSession(t.state, machine.LoggedOut{At: t.clock.Now()})
	if tr.Err != nil {
		t.mu.Unlock()
		return tr.Err
	}

	var remoteErr error
	if t.remote != nil {
		if err := t.remote.Logout(ctx); err != nil {
			t.logger.Warn("remote logout failed", slog.String("error", err.Error()))
			remoteErr = err
		}
	}
	return errors.Join(remoteErr, t.finish(tr))
}

// ReportConcurrentSession ends the session because the backend saw a newer
// sign-in for the same account.
func (t *SessionTracker) ReportConcurrentSession(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return models.ErrEngineClosed
	}
	tr := machine.ReduceSession(t.state, machine.ConcurrentSessionDetected{At: t.clock.Now()})
	if tr.Err != nil {
		t.mu.Unlock()
		return tr.Err
	}
	return t.finish(tr)
}

// Restore reloads a persisted session after a restart. It reports whether a
// session is now live. Partial, expired or token-less sessions are discarded.
func (t *SessionTracker) Restore(ctx context.Context) (bool, error) {
	persisted, err := t.store.Load(ctx)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return false, nil
	case err != nil:
		t.logger.Warn("discarding unreadable session", slog.String("error", err.Error()))
		t.discard(ctx)
		return false, nil
	}

	if t.remote != nil {
		if _, err := t.remote.GetTokens(ctx); err != nil {
			t.logger.Warn("discarding session without tokens", slog.String("error", err.Error()))
			t.discard(ctx)
			return false, nil
		}
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false, models.ErrEngineClosed
	}
	if t.state.Phase.Live() {
		t.mu.Unlock()
		return true, nil
	}

	now := t.clock.Now()
	if reason := persisted.ExpiryReason(now); reason != "" || !persisted.ValidAt(now) {
		if reason == "" {
			reason = models.ReasonRestoreInvalid
		}
		t.mu.Unlock()
		t.logger.Info("persisted session no longer valid", slog.String("reason", string(reason)))
		t.discard(ctx)
		events := []models.Event{{
			Type:      models.EventSessionTerminated,
			At:        now,
			SessionID: persisted.SessionID,
			Reason:    reason,
		}}
		if reason.Expiry() {
			events = append([]models.Event{{
				Type:      models.EventSessionExpired,
				At:        now,
				SessionID: persisted.SessionID,
				Reason:    reason,
			}}, events...)
		}
		t.emit(persisted, events)
		return false, nil
	}

	t.state = persisted
	t.armLocked()
	t.mu.Unlock()

	t.logger.Info("session restored", slog.String("session_id", logger.MaskID(persisted.SessionID)))
	return true, nil
}

// Validate checks the session against the clock. A live session whose
// deadline has passed without its timer firing, for example while the
// process was suspended, is expired here.
func (t *SessionTracker) Validate(ctx context.Context) error {
	t.mu.Lock()
	switch t.state.Phase {
	case models.SessionNone:
		t.mu.Unlock()
		return models.ErrNoActiveSession
	case models.SessionTerminated:
		reason := t.state.Reason
		t.mu.Unlock()
		return &models.SessionExpiredError{Reason: reason}
	}

	tr := machine.ReduceSession(t.state, machine.DeadlineDue{At: t.clock.Now()})
	if !tr.Terminated {
		t.mu.Unlock()
		return nil
	}
	t.finish(tr)
	return &models.SessionExpiredError{Reason: tr.State.Reason}
}

// Status returns a snapshot of the session.
func (t *SessionTracker) Status() models.SessionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *SessionTracker) statusLocked() models.SessionStatus {
	s := t.state
	status := models.SessionStatus{
		SessionID: s.SessionID,
		Phase:     s.Phase,
		Reason:    s.Reason,
	}
	if s.Phase == "" {
		status.Phase = models.SessionNone
	}
	if !s.StartedAt.IsZero() {
		started, last := s.StartedAt, s.LastActivity
		status.StartedAt = &started
		status.LastActivity = &last
	}
	if s.Phase.Live() {
		now := t.clock.Now()
		status.RemainingLength = max(s.LengthDeadline().Sub(now), 0)
		status.RemainingInactivity = max(s.InactivityDeadline().Sub(now), 0)
	}
	return status
}

// Close stops every timer. Later calls return ErrEngineClosed.
func (t *SessionTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	t.stopTimersLocked()
}

func (t *SessionTracker) stopTimersLocked() {
	t.gen++
	for _, timer := range t.timers {
		timer.Stop()
	}
	t.timers = t.timers[:0]
}

// armLocked replaces the timers with ones for the current deadlines.
func (t *SessionTracker) armLocked() {
	t.stopTimersLocked()
	if !t.state.Phase.Live() {
		return
	}

	gen := t.gen
	now := t.clock.Now()
	s := t.state

	schedule := func(at time.Time, ev func(time.Time) machine.SessionEvent) {
		d := max(at.Sub(now), 0)
		t.timers = append(t.timers, t.clock.AfterFunc(d, func() {
			t.fire(gen, ev)
		}))
	}

	if s.WarningLead > 0 {
		length := s.LengthDeadline()
		if !s.LengthWarnedFor.Equal(length) {
			schedule(length.Add(-s.WarningLead), func(at time.Time) machine.SessionEvent {
				return machine.WarningDue{Reason: models.ReasonSessionLength, At: at}
			})
		}
		inactivity := s.InactivityDeadline()
		if !s.InactivityWarnedFor.Equal(inactivity) {
			schedule(inactivity.Add(-s.WarningLead), func(at time.Time) machine.SessionEvent {
				return machine.WarningDue{Reason: models.ReasonInactivity, At: at}
			})
		}
	}

	deadline := s.LengthDeadline()
	if inactivity := s.InactivityDeadline(); inactivity.Before(deadline) {
		deadline = inactivity
	}
	schedule(deadline, func(at time.Time) machine.SessionEvent {
		return machine.DeadlineDue{At: at}
	})
}

// fire runs a timer callback. Callbacks from an earlier generation are dropped.
func (t *SessionTracker) fire(gen uint64, ev func(time.Time) machine.SessionEvent) {
	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		return
	}

	e := ev(t.clock.Now())
	tr := machine.ReduceSession(t.state, e)
	if tr.Terminated {
		t.finish(tr)
		return
	}
	if tr.Changed {
		t.state = tr.State
	}
	if _, ok := e.(machine.DeadlineDue); ok {
		// Fired early; the deadline is still ahead.
		t.armLocked()
	}
	t.mu.Unlock()

	t.emit(tr.State, tr.Events)
}

// finish commits a terminating transition, clears persisted state and tokens,
// and publishes the events. It is called with mu held and releases it.
func (t *SessionTracker) finish(tr machine.SessionTransition) error {
	t.state = tr.State
	t.stopTimersLocked()
	t.mu.Unlock()

	// Termination must not be cut short by the caller's deadline.
	ctx := context.Background()
	var errs []error
	if err := t.store.Clear(ctx); err != nil {
		t.logger.Error("failed to clear persisted session", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if t.remote != nil {
		if err := t.remote.ClearTokens(ctx); err != nil {
			t.logger.Error("failed to clear tokens", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	t.logger.Info("session terminated",
		slog.String("session_id", logger.MaskID(tr.State.SessionID)),
		slog.String("reason", string(tr.State.Reason)),
	)
	t.emit(tr.State, tr.Events)
	return errors.Join(errs...)
}

// discard removes persisted session data that cannot be restored.
func (t *SessionTracker) discard(ctx context.Context) {
	if err := t.store.Clear(ctx); err != nil {
		t.logger.Error("failed to clear persisted session", slog.String("error", err.Error()))
	}
	if t.remote != nil {
		if err := t.remote.ClearTokens(ctx); err != nil {
			t.logger.Error("failed to clear tokens", slog.String("error", err.Error()))
		}
	}
}

func (t *SessionTracker) emit(s models.SessionState, events []models.Event) {
	for _, ev := range events {
		t.audit.LogSessionEvent(logger.AuditEvent{
			EventType: string(ev.Type),
			SessionID: ev.SessionID,
			UserID:    s.UserID,
			Reason:    string(ev.Reason),
			Success:   true,
		})
	}
	t.bus.Publish(events...)
}
