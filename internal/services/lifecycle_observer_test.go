package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/BradenHooton/pinguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newObserver(t *testing.T, f *lockFixture, marks BackgroundMarkStore) *LifecycleObserver {
	t.Helper()
	if marks == nil {
		marks = f.repo
	}
	return NewLifecycleObserver(f.engine, nil, marks, f.clock, testLogger())
}

func TestLifecycleObserver_BackgroundDuration(t *testing.T) {
	tests := []struct {
		name       string
		away       time.Duration
		wantLocked bool
	}{
		{"short trip stays unlocked", 100 * time.Second, false},
		{"long trip locks", 400 * time.Second, true},
		{"exactly the timeout locks", 300 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newLockFixture(t, nil)
			require.NoError(t, f.engine.SetupPin(ctx, "1234", false))
			require.NoError(t, f.engine.SetInactivityTimeout(ctx, 300*time.Second))
			o := newObserver(t, f, nil)
			f.events.reset()

			require.NoError(t, o.HandleTransition(ctx, models.AppStateBackground))
			f.clock.Advance(tt.away)
			require.NoError(t, o.HandleTransition(ctx, models.AppStateActive))

			assert.Equal(t, tt.wantLocked, f.engine.IsLocked())
			if tt.wantLocked {
				require.NotEmpty(t, f.events.all())
				assert.Equal(t, models.LockReasonBackground, f.events.all()[0].LockReason)
			}

			_, err := f.repo.BackgroundEnteredAt(ctx)
			assert.ErrorIs(t, err, models.ErrNotFound)
		})
	}
}

func TestLifecycleObserver_InactiveIsTransient(t *testing.T) {
	ctx := context.Background()
	f := newLockFixture(t, nil)
	require.NoError(t, f.engine.SetupPin(ctx, "1234", false))
	o := newObserver(t, f, nil)

	require.NoError(t, o.HandleTransition(ctx, models.AppStateInactive))
	f.clock.Advance(time.Minute)
	require.NoError(t, o.HandleTransition(ctx, models.AppStateActive))

	assert.False(t, f.engine.IsLocked())
	assert.Equal(t, models.AppStateActive, o.Current())
}

func TestLifecycleObserver_KilledInBackground(t *testing.T) {
	ctx := context.Background()
	f := newLockFixture(t, nil)
	require.NoError(t, f.engine.SetupPin(ctx, "1234", false))
	require.NoError(t, newObserver(t, f, nil).HandleTransition(ctx, models.AppStateBackground))

	// A new process starts with only the persisted mark.
	restarted := newLockFixtureWithRepo(t, nil, f.creds, f.repo)
	require.NoError(t, restarted.engine.Load(ctx))
	require.NoError(t, restarted.engine.VerifyPin(ctx, "1234"))
	restarted.clock.Advance(10 * time.Minute)
	restarted.engine.UpdateActivity(ctx)

	o := newObserver(t, restarted, nil)
	require.NoError(t, o.HandleTransition(ctx, models.AppStateActive))
	assert.True(t, restarted.engine.IsLocked())
}

func TestLifecycleObserver_MarkFailuresLock(t *testing.T) {
	ctx := context.Background()

	t.Run("write failure", func(t *testing.T) {
		f := newLockFixture(t, nil)
		require.NoError(t, f.engine.SetupPin(ctx, "1234", false))
		o := newObserver(t, f, &MockBackgroundMarkStore{
			Inner: f.repo,
			SetFunc: func(ctx context.Context, at time.Time) error {
				return fmt.Errorf("%w: disk full", models.ErrStorageFailure)
			},
		})

		err := o.HandleTransition(ctx, models.AppStateBackground)
		assert.ErrorIs(t, err, models.ErrStorageFailure)
		assert.True(t, f.engine.IsLocked())
	})

	t.Run("read failure", func(t *testing.T) {
		f := newLockFixture(t, nil)
		require.NoError(t, f.engine.SetupPin(ctx, "1234", false))
		o := newObserver(t, f, &MockBackgroundMarkStore{
			Inner: f.repo,
			GetFunc: func(ctx context.Context) (time.Time, error) {
				return time.Time{}, fmt.Errorf("%w: corrupt", models.ErrStorageFailure)
			},
		})

		require.NoError(t, o.HandleTransition(ctx, models.AppStateActive))
		assert.True(t, f.engine.IsLocked())
		assert.Equal(t, models.LockReasonStorage, f.events.all()[len(f.events.all())-1].LockReason)
	})

	t.Run("clock moved backwards", func(t *testing.T) {
		f := newLockFixture(t, nil)
		require.NoError(t, f.engine.SetupPin(ctx, "1234", false))
		o := newObserver(t, f, nil)

		require.NoError(t, f.repo.SetBackgroundEnteredAt(ctx, t0.Add(time.Hour)))
		require.NoError(t, o.HandleTransition(ctx, models.AppStateActive))
		assert.True(t, f.engine.IsLocked())
	})
}

func TestLifecycleObserver_ResumeExpiresStaleSession(t *testing.T) {
	ctx := context.Background()
	f := newLockFixture(t, nil)
	s := newSessionFixtureAt(t, DefaultSessionConfig(), f.creds, f.clock)
	_, err := s.tracker.Start(ctx, "user-1")
	require.NoError(t, err)

	// Simulate a suspended process: timers did not run while away.
	s.tracker.mu.Lock()
	s.tracker.stopTimersLocked()
	s.tracker.mu.Unlock()

	o := NewLifecycleObserver(f.engine, s.tracker, f.repo, f.clock, testLogger())
	require.NoError(t, o.HandleTransition(ctx, models.AppStateBackground))
	f.clock.Advance(20 * time.Minute)
	require.NoError(t, o.HandleTransition(ctx, models.AppStateActive))

	assert.Equal(t, models.SessionTerminated, s.tracker.Status().Phase)
	assert.Contains(t, s.events.types(), models.EventSessionExpired)
}

func TestLifecycleObserver_InvalidState(t *testing.T) {
	f := newLockFixture(t, nil)
	o := newObserver(t, f, nil)

	assert.ErrorIs(t, o.HandleTransition(context.Background(), models.AppState("paused")), models.ErrBadRequest)
}

func TestLifecycleObserver_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newLockFixture(t, nil)
	require.NoError(t, f.engine.SetupPin(ctx, "1234", false))
	o := newObserver(t, f, nil)

	ch := make(chan models.AppState)
	done := make(chan struct{})
	go func() {
		o.Run(ctx, ch)
		close(done)
	}()

	ch <- models.AppStateBackground
	ch <- models.AppStateInactive
	close(ch)
	<-done

	assert.Equal(t, models.AppStateInactive, o.Current())
	_, err := f.repo.BackgroundEnteredAt(ctx)
	assert.NoError(t, err)
}
