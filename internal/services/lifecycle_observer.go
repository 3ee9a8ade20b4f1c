package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/BradenHooton/pinguard/internal/clock"
	"github.com/BradenHooton/pinguard/internal/models"
)

// LifecycleObserver turns platform foreground/background signals into locks.
// The background timestamp is persisted so a process killed while in the
// background still locks on the next launch.
type LifecycleObserver struct {
	mu      sync.Mutex
	current models.AppState

	engine   *LockEngine
	sessions *SessionTracker // optional
	marks    BackgroundMarkStore
	clock    clock.Clock
	logger   *slog.Logger
}

func NewLifecycleObserver(engine *LockEngine, sessions *SessionTracker, marks BackgroundMarkStore, clk clock.Clock, logger *slog.Logger) *LifecycleObserver {
	return &LifecycleObserver{
		engine:   engine,
		sessions: sessions,
		marks:    marks,
		clock:    clk,
		logger:   logger,
	}
}

// Current returns the last state handled.
func (o *LifecycleObserver) Current() models.AppState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// HandleTransition applies one lifecycle signal.
func (o *LifecycleObserver) HandleTransition(ctx context.Context, next models.AppState) error {
	if !next.Valid() {
		return models.ErrBadRequest
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	prev := o.current
	o.current = next

	switch next {
	case models.AppStateBackground:
		if prev == models.AppStateBackground {
			return nil
		}
		if err := o.marks.SetBackgroundEnteredAt(ctx, o.clock.Now()); err != nil {
			// Without a mark the elapsed time cannot be measured on resume.
			o.logger.Error("failed to record background entry, locking", slog.String("error", err.Error()))
			o.engine.Lock(ctx, models.LockReasonStorage)
			return err
		}

	case models.AppStateActive:
		o.resume(ctx)
	}
	return nil
}

// resume runs on every transition to active, including the first one after
// launch, so a mark left by a killed process is honoured.
func (o *LifecycleObserver) resume(ctx context.Context) {
	enteredAt, err := o.marks.BackgroundEnteredAt(ctx)
	switch {
	case errors.Is(err, models.ErrNotFound):
	case err != nil:
		o.logger.Error("background mark unreadable, locking", slog.String("error", err.Error()))
		o.engine.Lock(ctx, models.LockReasonStorage)
	default:
		elapsed := o.clock.Now().Sub(enteredAt)
		timeout := o.engine.InactivityTimeout()
		// A negative elapsed time means the wall clock moved backwards.
		if elapsed < 0 || elapsed >= timeout {
			o.logger.Info("locking after background",
				slog.Duration("elapsed", elapsed),
				slog.Duration("timeout", timeout),
			)
			o.engine.Lock(ctx, models.LockReasonBackground)
		}
	}

	if !errors.Is(err, models.ErrNotFound) {
		if err := o.marks.ClearBackgroundEnteredAt(ctx); err != nil {
			o.logger.Warn("failed to clear background mark", slog.String("error", err.Error()))
		}
	}

	o.engine.CheckInactivity(ctx)

	if o.sessions != nil {
		var expired *models.SessionExpiredError
		if err := o.sessions.Validate(ctx); errors.As(err, &expired) {
			o.logger.Info("session expired while away", slog.String("reason", string(expired.Reason)))
		}
	}
}

// Run handles states from ch until ctx is done or ch is closed.
func (o *LifecycleObserver) Run(ctx context.Context, ch <-chan models.AppState) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-ch:
			if !ok {
				return
			}
			if err := o.HandleTransition(ctx, state); err != nil {
				o.logger.Warn("lifecycle transition failed",
					slog.String("state", string(state)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
