package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/pinguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_OnAndClose(t *testing.T) {
	bus := NewEventBus(testLogger())

	var locked, all []models.EventType
	sub := bus.On(models.EventLocked, func(ev models.Event) { locked = append(locked, ev.Type) })
	bus.OnAll(func(ev models.Event) { all = append(all, ev.Type) })

	bus.Publish(models.Event{Type: models.EventLocked}, models.Event{Type: models.EventUnlocked})
	assert.Equal(t, []models.EventType{models.EventLocked}, locked)
	assert.Equal(t, []models.EventType{models.EventLocked, models.EventUnlocked}, all)

	sub.Close()
	sub.Close()
	bus.Publish(models.Event{Type: models.EventLocked})
	assert.Len(t, locked, 1)
	assert.Len(t, all, 3)
	assert.Equal(t, 1, bus.Len())
}

func TestEventBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := NewEventBus(testLogger())

	delivered := false
	bus.OnAll(func(models.Event) { panic("boom") })
	bus.OnAll(func(models.Event) { delivered = true })

	require.NotPanics(t, func() { bus.Publish(models.Event{Type: models.EventLocked}) })
	assert.True(t, delivered)
}

func TestEventBus_HandlerMayCallBack(t *testing.T) {
	ctx := context.Background()
	f := newLockFixture(t, nil)
	require.NoError(t, f.engine.SetupPin(ctx, "1234", false))

	var sawLocked bool
	f.bus.On(models.EventLocked, func(models.Event) {
		// The engine lock is released before handlers run.
		sawLocked = f.engine.IsLocked()
	})

	f.engine.Lock(ctx, models.LockReasonExplicit)
	assert.True(t, sawLocked)
}

type listenerFunc func(ctx context.Context) error

func (f listenerFunc) RecordActivity(ctx context.Context) error { return f(ctx) }

func TestActivityHub_Touch(t *testing.T) {
	ctx := context.Background()
	f := newLockFixture(t, nil)
	s := newSessionFixtureAt(t, DefaultSessionConfig(), f.creds, f.clock)
	hub := NewActivityHub(testLogger(), f.engine, s.tracker)

	// No session yet is not an error.
	require.NoError(t, hub.Touch(ctx))

	require.NoError(t, f.engine.SetupPin(ctx, "1234", false))
	_, err := s.tracker.Start(ctx, "user-1")
	require.NoError(t, err)

	f.clock.Advance(4 * time.Minute)
	require.NoError(t, hub.Touch(ctx))
	assert.Equal(t, f.clock.Now(), f.engine.Status().LastActivity)
	assert.Equal(t, 15*time.Minute, s.tracker.Status().RemainingInactivity)

	boom := errors.New("boom")
	hub.Add(listenerFunc(func(context.Context) error { return boom }))
	assert.ErrorIs(t, hub.Touch(ctx), boom)
}
