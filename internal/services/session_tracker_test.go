package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/pinguard/internal/clock"
	"github.com/BradenHooton/pinguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTracker_InactivityWarningThenExtend(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, SessionConfig{
		MaxSession:  8 * time.Hour,
		MaxInactive: 15 * time.Minute,
		WarningLead: 2 * time.Minute,
	})

	_, err := f.tracker.Start(ctx, "user-1")
	require.NoError(t, err)
	f.events.reset()

	f.clock.Advance(13 * time.Minute)
	events := f.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventSessionWarning, events[0].Type)
	assert.Equal(t, models.ReasonInactivity, events[0].Reason)
	assert.Equal(t, 2*time.Minute, events[0].TimeRemaining)
	assert.Equal(t, models.SessionWarned, f.tracker.Status().Phase)

	require.NoError(t, f.tracker.Extend(ctx))
	f.clock.Advance(2 * time.Minute)

	assert.Equal(t, []models.EventType{models.EventSessionWarning, models.EventSessionExtended}, f.events.types())
	assert.Equal(t, models.SessionActive, f.tracker.Status().Phase)

	persisted, err := f.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(13*time.Minute).UnixMilli(), persisted.LastActivity.UnixMilli())
}

func TestSessionTracker_InactivityExpiry(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, DefaultSessionConfig())

	status, err := f.tracker.Start(ctx, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, status.SessionID)
	f.events.reset()

	f.clock.Advance(15 * time.Minute)

	assert.Equal(t, []models.EventType{
		models.EventSessionWarning,
		models.EventSessionExpired,
		models.EventSessionTerminated,
	}, f.events.types())
	for _, ev := range f.events.all()[1:] {
		assert.Equal(t, models.ReasonInactivity, ev.Reason)
		assert.Equal(t, status.SessionID, ev.SessionID)
	}

	assert.Equal(t, models.SessionTerminated, f.tracker.Status().Phase)
	_, err = f.repo.Load(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, clears := f.remote.counts()
	assert.Equal(t, 1, clears)

	// Terminated is absorbing until a fresh start.
	assert.ErrorIs(t, f.tracker.Extend(ctx), models.ErrNoActiveSession)
	_, err = f.tracker.Start(ctx, "user-1")
	assert.NoError(t, err)
}

func TestSessionTracker_LengthDeadlineWins(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, SessionConfig{
		MaxSession:  20 * time.Minute,
		MaxInactive: 15 * time.Minute,
		WarningLead: 2 * time.Minute,
	})

	_, err := f.tracker.Start(ctx, "user-1")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	require.NoError(t, f.tracker.Extend(ctx))
	f.events.reset()

	f.clock.Advance(10 * time.Minute)

	events := f.events.all()
	require.Len(t, events, 3)
	assert.Equal(t, models.EventSessionWarning, events[0].Type)
	assert.Equal(t, models.ReasonSessionLength, events[0].Reason)
	assert.Equal(t, models.EventSessionExpired, events[1].Type)
	assert.Equal(t, models.ReasonSessionLength, events[1].Reason)
	assert.Equal(t, models.ReasonSessionLength, events[2].Reason)
}

func TestSessionTracker_ExtendAfterDeadline(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, DefaultSessionConfig())
	_, err := f.tracker.Start(ctx, "user-1")
	require.NoError(t, err)

	// Stop timers from firing so Extend sees the passed deadline first.
	f.tracker.mu.Lock()
	f.tracker.stopTimersLocked()
	f.tracker.mu.Unlock()
	f.clock.Advance(16 * time.Minute)

	err = f.tracker.Extend(ctx)
	var expired *models.SessionExpiredError
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, models.ReasonInactivity, expired.Reason)
	assert.Equal(t, models.SessionTerminated, f.tracker.Status().Phase)
}

func TestSessionTracker_ExtendAfterDeadlineReportsCleanupFailure(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, DefaultSessionConfig())
	_, err := f.tracker.Start(ctx, "user-1")
	require.NoError(t, err)

	clearErr := errors.New("keychain unavailable")
	f.tracker.remote = &MockRemoteAuth{
		ClearTokensFunc: func(ctx context.Context) error { return clearErr },
	}
	f.tracker.mu.Lock()
	f.tracker.stopTimersLocked()
	f.tracker.mu.Unlock()
	f.clock.Advance(16 * time.Minute)

	err = f.tracker.Extend(ctx)
	var expired *models.SessionExpiredError
	require.ErrorAs(t, err, &expired)
	assert.ErrorIs(t, err, clearErr)
	assert.Equal(t, models.SessionTerminated, f.tracker.Status().Phase)
}

func TestSessionTracker_Logout(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, DefaultSessionConfig())
	_, err := f.tracker.Start(ctx, "user-1")
	require.NoError(t, err)
	f.events.reset()

	require.NoError(t, f.tracker.Logout(ctx))

	assert.Equal(t, []models.EventType{models.EventSessionTerminated}, f.events.types())
	assert.Equal(t, models.ReasonUserLogout, f.events.all()[0].Reason)
	logouts, clears := f.remote.counts()
	assert.Equal(t, 1, logouts)
	assert.Equal(t, 1, clears)

	// No timer outlives the session.
	assert.Zero(t, f.clock.Pending())
	f.clock.Advance(9 * time.Hour)
	assert.Len(t, f.events.all(), 1)

	assert.ErrorIs(t, f.tracker.Logout(ctx), models.ErrNoActiveSession)
}

func TestSessionTracker_ConcurrentSession(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, DefaultSessionConfig())
	_, err := f.tracker.Start(ctx, "user-1")
	require.NoError(t, err)
	f.events.reset()

	require.NoError(t, f.tracker.ReportConcurrentSession(ctx))

	assert.Equal(t, []models.EventType{
		models.EventConcurrentSessionDetected,
		models.EventSessionTerminated,
	}, f.events.types())
	assert.Equal(t, models.ReasonConcurrentSession, f.tracker.Status().Reason)
	logouts, clears := f.remote.counts()
	assert.Zero(t, logouts)
	assert.Equal(t, 1, clears)
}

func TestSessionTracker_StartTwice(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, DefaultSessionConfig())
	_, err := f.tracker.Start(ctx, "user-1")
	require.NoError(t, err)

	_, err = f.tracker.Start(ctx, "user-1")
	assert.ErrorIs(t, err, models.ErrSessionAlreadyActive)
}

func TestSessionTracker_Restore(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultSessionConfig()

	t.Run("valid session resumes", func(t *testing.T) {
		f := newSessionFixture(t, cfg)
		status, err := f.tracker.Start(ctx, "user-1")
		require.NoError(t, err)

		clk := clock.NewManual(t0.Add(5 * time.Minute))
		restarted := newSessionFixtureAt(t, cfg, f.creds, clk)
		ok, err := restarted.tracker.Restore(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		got := restarted.tracker.Status()
		assert.Equal(t, status.SessionID, got.SessionID)
		assert.Equal(t, models.SessionActive, got.Phase)
		assert.Equal(t, 10*time.Minute, got.RemainingInactivity)

		// Timers were re-armed from the persisted deadlines.
		clk.Advance(10 * time.Minute)
		assert.Equal(t, models.SessionTerminated, restarted.tracker.Status().Phase)
	})

	t.Run("expired session discarded", func(t *testing.T) {
		f := newSessionFixture(t, cfg)
		_, err := f.tracker.Start(ctx, "user-1")
		require.NoError(t, err)

		clk := clock.NewManual(t0.Add(20 * time.Minute))
		restarted := newSessionFixtureAt(t, cfg, f.creds, clk)
		ok, err := restarted.tracker.Restore(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []models.EventType{models.EventSessionExpired, models.EventSessionTerminated}, restarted.events.types())

		_, err = restarted.repo.Load(ctx)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("session without tokens discarded", func(t *testing.T) {
		f := newSessionFixture(t, cfg)
		_, err := f.tracker.Start(ctx, "user-1")
		require.NoError(t, err)

		restarted := newSessionFixtureAt(t, cfg, f.creds, clock.NewManual(t0))
		restarted.tracker.remote = &MockRemoteAuth{
			GetTokensFunc: func(ctx context.Context) (models.Tokens, error) {
				return models.Tokens{}, models.ErrNotFound
			},
		}
		ok, err := restarted.tracker.Restore(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, models.SessionNone, restarted.tracker.Status().Phase)
	})

	t.Run("partial session discarded", func(t *testing.T) {
		f := newSessionFixture(t, cfg)
		_, err := f.tracker.Start(ctx, "user-1")
		require.NoError(t, err)
		require.NoError(t, f.creds.RemoveItem(ctx, "test.session.started_at"))

		restarted := newSessionFixtureAt(t, cfg, f.creds, clock.NewManual(t0))
		ok, err := restarted.tracker.Restore(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = restarted.repo.Load(ctx)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("nothing stored", func(t *testing.T) {
		f := newSessionFixture(t, cfg)
		ok, err := f.tracker.Restore(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSessionTracker_Validate(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, DefaultSessionConfig())

	assert.ErrorIs(t, f.tracker.Validate(ctx), models.ErrNoActiveSession)

	_, err := f.tracker.Start(ctx, "user-1")
	require.NoError(t, err)
	assert.NoError(t, f.tracker.Validate(ctx))

	require.NoError(t, f.tracker.Logout(ctx))
	var expired *models.SessionExpiredError
	require.ErrorAs(t, f.tracker.Validate(ctx), &expired)
	assert.Equal(t, models.ReasonUserLogout, expired.Reason)
}

func TestSessionTracker_CloseStopsTimers(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, DefaultSessionConfig())
	_, err := f.tracker.Start(ctx, "user-1")
	require.NoError(t, err)
	f.events.reset()

	f.tracker.Close()
	f.clock.Advance(9 * time.Hour)

	assert.Empty(t, f.events.all())
	assert.Zero(t, f.clock.Pending())
	assert.ErrorIs(t, f.tracker.Extend(ctx), models.ErrEngineClosed)
}

func TestSessionTracker_RecordActivityWithoutSession(t *testing.T) {
	f := newSessionFixture(t, DefaultSessionConfig())

	assert.NoError(t, f.tracker.RecordActivity(context.Background()))
	assert.True(t, errors.Is(f.tracker.Extend(context.Background()), models.ErrNoActiveSession))
}
