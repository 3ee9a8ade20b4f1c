package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IdleChecker is the part of the lock engine the monitor drives.
type IdleChecker interface {
	CheckInactivity(ctx context.Context) bool
	PinConfigured() bool
	IsLocked() bool
}

// MonitorState is what the monitor is currently doing.
type MonitorState string

const (
	// Watching: a PIN is configured and the app is unlocked.
	StateWatching MonitorState = "watching"
	// Idle: nothing to watch, either no PIN or already locked.
	StateIdle MonitorState = "idle"
)

// InactivityMonitor periodically locks the app once the user has been idle
// for the inactivity timeout
type InactivityMonitor struct {
	engine   IdleChecker
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewInactivityMonitor creates a new inactivity monitor
func NewInactivityMonitor(engine IdleChecker, logger *slog.Logger, interval time.Duration) *InactivityMonitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &InactivityMonitor{
		engine:   engine,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start polls until Stop is called or ctx is done
func (m *InactivityMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("inactivity monitor started", slog.Duration("interval", m.interval))

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-m.stopCh:
			m.logger.Info("inactivity monitor stopped")
			return
		case <-ctx.Done():
			m.logger.Info("inactivity monitor context cancelled")
			return
		}
	}
}

// Check runs one poll and reports whether it locked the app
func (m *InactivityMonitor) Check(ctx context.Context) bool {
	if m.State() == StateIdle {
		return false
	}
	if m.engine.CheckInactivity(ctx) {
		m.logger.Info("locked after inactivity")
		return true
	}
	return false
}

// State reports whether the monitor has anything to watch
func (m *InactivityMonitor) State() MonitorState {
	if m.engine.PinConfigured() && !m.engine.IsLocked() {
		return StateWatching
	}
	return StateIdle
}

// Stop signals the monitor to stop. It is safe to call more than once.
func (m *InactivityMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}
