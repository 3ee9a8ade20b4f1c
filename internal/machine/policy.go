// Package machine holds the pure transition functions for lock and session
// state. Nothing here reads the clock, touches storage or runs callbacks;
// services wrap these functions with timers and persistence.
package machine

import (
	"math"
	"time"
)

// LockoutPolicy controls how long verification is refused after MaxAttempts
// consecutive failures.
type LockoutPolicy struct {
	Window     time.Duration
	Multiplier float64       // 1.0 keeps every lockout at Window
	MaxWindow  time.Duration // zero means uncapped
}

// DefaultLockoutPolicy is a fixed 30 second window.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		Window:     30 * time.Second,
		Multiplier: 1.0,
		MaxWindow:  30 * time.Minute,
	}
}

// Duration returns the window for the nth lockout (1-based) since the last
// successful verification.
func (p LockoutPolicy) Duration(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(p.Window) * math.Pow(mult, float64(n-1))
	if p.MaxWindow > 0 && d > float64(p.MaxWindow) {
		return p.MaxWindow
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// ceilSeconds rounds a positive duration up to whole seconds.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
