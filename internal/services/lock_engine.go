package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/pinguard/internal/auth"
	"github.com/BradenHooton/pinguard/internal/clock"
	"github.com/BradenHooton/pinguard/internal/machine"
	"github.com/BradenHooton/pinguard/internal/models"
	pkgauth "github.com/BradenHooton/pinguard/pkg/auth"
	"github.com/BradenHooton/pinguard/pkg/logger"
)

// LockEngineConfig holds lock policy.
type LockEngineConfig struct {
	MaxAttempts       int
	Lockout           machine.LockoutPolicy
	InactivityTimeout time.Duration
	HashCost          int
	Timing            auth.TimingConfig
}

// DefaultLockEngineConfig returns the default lock policy.
func DefaultLockEngineConfig() LockEngineConfig {
	return LockEngineConfig{
		MaxAttempts:       3,
		Lockout:           machine.DefaultLockoutPolicy(),
		InactivityTimeout: 5 * time.Minute,
		HashCost:          pkgauth.DefaultPinCost,
	}
}

// LockEngine owns the lock state for one identity. Every read and write of
// the counters and the locked flag happens under mu, including the hash
// comparison, so concurrent verifications are serialized with timer locks.
type LockEngine struct {
	mu       sync.Mutex
	state    models.LockState
	degraded bool // persisted state could not be read
	closed   bool

	store  LockStore
	sensor BiometricSensor
	hasher PinHasher
	delay  *auth.TimingDelay
	bus    *EventBus
	audit  *logger.AuditLogger
	clock  clock.Clock
	config LockEngineConfig
	logger *slog.Logger

	closeCtx    context.Context
	closeCancel context.CancelFunc
}

func NewLockEngine(
	store LockStore,
	sensor BiometricSensor,
	bus *EventBus,
	audit *logger.AuditLogger,
	clk clock.Clock,
	config LockEngineConfig,
	logger *slog.Logger,
) *LockEngine {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	closeCtx, cancel := context.WithCancel(context.Background())

	return &LockEngine{
		state: models.LockState{
			MaxAttempts:       config.MaxAttempts,
			InactivityTimeout: config.InactivityTimeout,
			LastActivity:      clk.Now(),
		},
		store:       store,
		sensor:      sensor,
		hasher:      BcryptHasher{Cost: config.HashCost},
		delay:       auth.NewTimingDelay(config.Timing),
		bus:         bus,
		audit:       audit,
		clock:       clk,
		config:      config,
		logger:      logger,
		closeCtx:    closeCtx,
		closeCancel: cancel,
	}
}

// WithHasher replaces the PIN hasher. Used by tests to avoid bcrypt cost.
func (e *LockEngine) WithHasher(h PinHasher) *LockEngine {
	e.hasher = h
	return e
}

// Load reads the persisted state. A configured PIN always starts locked. If
// the store cannot be read the engine starts locked as if a PIN existed and
// retries the read on the next verification.
func (e *LockEngine) Load(ctx context.Context) error {
	if err := e.RefreshBiometricCapability(ctx); err != nil {
		return err
	}

	persisted, err := e.store.Load(ctx)

	e.mu.Lock()
	if err != nil {
		e.degraded = true
		e.state.PinConfigured = true
		e.state.Locked = true
		e.state.UnlockGranted = false
		now := e.clock.Now()
		e.mu.Unlock()

		e.logger.Error("lock state unreadable, starting locked", slog.String("error", err.Error()))
		e.emit([]models.Event{{Type: models.EventLocked, At: now, LockReason: models.LockReasonStorage}})
		return err
	}

	events := e.adoptLocked(persisted)
	e.mu.Unlock()

	e.emit(events)
	return nil
}

// adoptLocked installs persisted fields over the runtime fields.
func (e *LockEngine) adoptLocked(p models.LockState) []models.Event {
	now := e.clock.Now()

	next := e.state.Clone()
	next.PinConfigured = p.PinConfigured
	next.PinHash = p.PinHash
	next.PinLength = p.PinLength
	next.FailedAttempts = p.FailedAttempts
	next.LockoutUntil = p.LockoutUntil
	next.LockoutCount = p.LockoutCount
	next.Biometric.Enabled = p.Biometric.Enabled
	if p.InactivityTimeout > 0 {
		next.InactivityTimeout = p.InactivityTimeout
	}
	next.MaxAttempts = e.config.MaxAttempts
	next.LastActivity = now
	next.Locked = p.PinConfigured
	next.UnlockGranted = false

	e.state = next
	e.degraded = false

	if next.Locked {
		return []models.Event{{Type: models.EventLocked, At: now, LockReason: models.LockReasonStartup}}
	}
	return nil
}

// retryLoadLocked re-reads a store that failed at startup.
func (e *LockEngine) retryLoadLocked(ctx context.Context) error {
	persisted, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}
	e.adoptLocked(persisted)
	e.logger.Info("lock state recovered after storage failure")
	return nil
}

// SetupPin stores a new PIN. The engine ends unlocked with an unlock grant.
func (e *LockEngine) SetupPin(ctx context.Context, pin string, enableBiometric bool) error {
	if err := pkgauth.ValidatePin(pin); err != nil {
		return mapPinError(err)
	}
	hash, err := e.hasher.Hash(pin)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return models.ErrEngineClosed
	}
	if e.degraded {
		if err := e.retryLoadLocked(ctx); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	now := e.clock.Now()
	tr := machine.ReduceLock(e.state, machine.PinSet{
		Hash:            hash,
		Length:          models.PinLength(len(pin)),
		EnableBiometric: enableBiometric,
		At:              now,
	}, e.config.Lockout)
	if tr.Err != nil {
		e.mu.Unlock()
		return tr.Err
	}
	if err := e.commitLocked(ctx, tr, false); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	e.emit(tr.Events)
	e.audit.LogLockEvent(logger.AuditEvent{
		EventType: "pin_setup",
		Success:   true,
		Metadata:  map[string]string{"pin_length": fmt.Sprint(len(pin))},
	})
	return nil
}

// VerifyPin checks pin against the stored hash. The comparison runs under the
// engine lock. Failed attempts are committed in memory even when the write
// fails, and the storage error is joined with the user-facing result.
func (e *LockEngine) VerifyPin(ctx context.Context, pin string) error {
	start := time.Now()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return models.ErrEngineClosed
	}
	if e.degraded {
		if err := e.retryLoadLocked(ctx); err != nil {
			e.mu.Unlock()
			e.logger.Error("pin verification refused, lock state unreadable", slog.String("error", err.Error()))
			return err
		}
	}

	now := e.clock.Now()
	matched := false
	// No comparison when the outcome is already decided.
	if e.state.PinConfigured && !e.state.LockedOut(now) {
		matched = e.compareLocked(pin)
	}

	tr := machine.ReduceLock(e.state, machine.PinAttempted{Matched: matched, At: now}, e.config.Lockout)
	persistErr := e.commitLocked(ctx, tr, !matched)
	if matched && persistErr != nil {
		e.mu.Unlock()
		e.logger.Error("failed to persist successful verification", slog.String("error", persistErr.Error()))
		return persistErr
	}
	e.mu.Unlock()

	e.emit(tr.Events)
	e.auditVerify("pin_verify", tr.Err)

	result := tr.Err
	if persistErr != nil {
		result = errors.Join(tr.Err, persistErr)
	}
	_ = e.delay.WaitFrom(ctx, start, result == nil)
	return result
}

// compareLocked reports whether pin matches. Input that cannot be a PIN
// counts as a wrong guess so the response does not reveal the PIN length.
func (e *LockEngine) compareLocked(pin string) bool {
	if pkgauth.ValidatePin(pin) != nil {
		return false
	}
	err := e.hasher.Compare(e.state.PinHash, pin)
	if err != nil && !errors.Is(err, pkgauth.ErrPinMismatch) {
		e.logger.Error("pin hash comparison failed", slog.String("error", err.Error()))
	}
	return err == nil
}

// RemovePin clears the PIN and the biometric opt-in. It fails only when the
// store cannot be written.
func (e *LockEngine) RemovePin(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return models.ErrEngineClosed
	}
	// A degraded engine reports a PIN, so clearing it also overwrites the
	// unreadable store.
	tr := machine.ReduceLock(e.state, machine.PinCleared{At: e.clock.Now()}, e.config.Lockout)
	if err := e.commitLocked(ctx, tr, false); err != nil {
		e.mu.Unlock()
		return err
	}
	e.degraded = false
	e.mu.Unlock()

	e.emit(tr.Events)
	e.audit.LogLockEvent(logger.AuditEvent{EventType: "pin_removed", Success: true})
	return nil
}

// AuthenticateWithBiometric runs one sensor challenge. The sensor is called
// without holding the engine lock; a result that arrives after Close is
// discarded. A failed challenge never counts as a PIN guess.
func (e *LockEngine) AuthenticateWithBiometric(ctx context.Context, prompt string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return models.ErrEngineClosed
	}
	switch {
	case !e.state.PinConfigured:
		e.mu.Unlock()
		return models.ErrNoPinConfigured
	case e.degraded || !e.state.Biometric.Usable():
		e.mu.Unlock()
		return models.ErrBiometricUnavailable
	}
	e.mu.Unlock()

	challengeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.closeCtx, cancel)
	defer stop()

	sensorErr := e.sensor.Authenticate(challengeCtx, prompt)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return models.ErrEngineClosed
	}
	if sensorErr != nil {
		e.mu.Unlock()
		e.auditVerify("biometric_verify", sensorErr)
		if errors.Is(sensorErr, models.ErrBiometricCancelled) || errors.Is(sensorErr, context.Canceled) {
			return models.ErrBiometricCancelled
		}
		if errors.Is(sensorErr, models.ErrBiometricUnavailable) {
			return models.ErrBiometricUnavailable
		}
		if !errors.Is(sensorErr, models.ErrBiometricFailed) {
			e.logger.Warn("biometric sensor error", slog.String("error", sensorErr.Error()))
		}
		return models.ErrBiometricFailed
	}

	tr := machine.ReduceLock(e.state, machine.BiometricAttempted{Succeeded: true, At: e.clock.Now()}, e.config.Lockout)
	if tr.Err != nil {
		e.mu.Unlock()
		return tr.Err
	}
	if err := e.commitLocked(ctx, tr, false); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	e.emit(tr.Events)
	e.auditVerify("biometric_verify", nil)
	return nil
}

// Lock locks the app if a PIN is configured. It is a no-op otherwise.
func (e *LockEngine) Lock(ctx context.Context, reason models.LockReason) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	tr := machine.ReduceLock(e.state, machine.LockRequested{Reason: reason, At: e.clock.Now()}, e.config.Lockout)
	if err := e.commitLocked(ctx, tr, true); err != nil {
		e.logger.Error("failed to persist lock", slog.String("error", err.Error()))
	}
	e.mu.Unlock()

	e.emit(tr.Events)
}

// Unlock clears the locked flag. It requires an unlock grant from a
// successful PIN or biometric verification since the last lock.
func (e *LockEngine) Unlock(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return models.ErrEngineClosed
	}
	tr := machine.ReduceLock(e.state, machine.UnlockRequested{At: e.clock.Now()}, e.config.Lockout)
	if tr.Err != nil {
		e.mu.Unlock()
		e.audit.LogLockEvent(logger.AuditEvent{EventType: "unlock", Success: false, FailureReason: "no_grant"})
		return tr.Err
	}
	if err := e.commitLocked(ctx, tr, false); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	e.emit(tr.Events)
	return nil
}

// UpdateActivity moves the inactivity baseline to now. It never unlocks.
func (e *LockEngine) UpdateActivity(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	tr := machine.ReduceLock(e.state, machine.ActivityRecorded{At: e.clock.Now()}, e.config.Lockout)
	e.state = tr.State
}

// RecordActivity implements ActivityListener.
func (e *LockEngine) RecordActivity(ctx context.Context) error {
	e.UpdateActivity(ctx)
	return nil
}

// CheckInactivity locks the app if the inactivity timeout has elapsed and
// reports whether it did.
func (e *LockEngine) CheckInactivity(ctx context.Context) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	tr := machine.ReduceLock(e.state, machine.IdleChecked{At: e.clock.Now()}, e.config.Lockout)
	if err := e.commitLocked(ctx, tr, true); err != nil {
		e.logger.Error("failed to persist inactivity lock", slog.String("error", err.Error()))
	}
	e.mu.Unlock()

	e.emit(tr.Events)
	return len(tr.Events) > 0
}

// SetBiometricEnabled records the user's biometric opt-in.
func (e *LockEngine) SetBiometricEnabled(ctx context.Context, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return models.ErrEngineClosed
	}
	tr := machine.ReduceLock(e.state, machine.BiometricToggled{Enabled: enabled}, e.config.Lockout)
	if tr.Err != nil {
		return tr.Err
	}
	return e.commitLocked(ctx, tr, false)
}

// RefreshBiometricCapability asks the sensor what it supports. If enrollment
// was removed the opt-in is kept but biometric unlock stops being usable.
func (e *LockEngine) RefreshBiometricCapability(ctx context.Context) error {
	if e.sensor == nil {
		return nil
	}

	hasHardware, err := e.sensor.HasHardware(ctx)
	if err != nil {
		e.logger.Warn("biometric hardware query failed", slog.String("error", err.Error()))
		hasHardware = false
	}
	var enrolled bool
	var kinds []models.BiometricKind
	if hasHardware {
		if enrolled, err = e.sensor.IsEnrolled(ctx); err != nil {
			e.logger.Warn("biometric enrollment query failed", slog.String("error", err.Error()))
			enrolled = false
		}
		if kinds, err = e.sensor.SupportedKinds(ctx); err != nil {
			e.logger.Warn("biometric kinds query failed", slog.String("error", err.Error()))
			kinds = nil
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return models.ErrEngineClosed
	}
	tr := machine.ReduceLock(e.state, machine.BiometricCapabilityChanged{
		Available: hasHardware,
		Enrolled:  enrolled,
		Kinds:     kinds,
	}, e.config.Lockout)
	e.state = tr.State
	return nil
}

// SetInactivityTimeout changes the idle lock timeout.
func (e *LockEngine) SetInactivityTimeout(ctx context.Context, d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return models.ErrEngineClosed
	}
	tr := machine.ReduceLock(e.state, machine.TimeoutChanged{Timeout: d}, e.config.Lockout)
	if tr.Err != nil {
		return tr.Err
	}
	return e.commitLocked(ctx, tr, false)
}

// InactivityTimeout returns the current idle lock timeout.
func (e *LockEngine) InactivityTimeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.InactivityTimeout
}

func (e *LockEngine) PinConfigured() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.PinConfigured
}

func (e *LockEngine) IsLocked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.PinConfigured && e.state.Locked
}

// Status returns a hash-free snapshot.
func (e *LockEngine) Status() models.LockStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	s := e.state
	failed := s.FailedAttempts
	// An expired lockout is reset by the next verification; report it as reset.
	if s.LockoutUntil != nil && !s.LockedOut(now) {
		failed = 0
	}
	remaining := s.MaxAttempts - failed
	if remaining < 0 || s.LockedOut(now) {
		remaining = 0
	}
	status := models.LockStatus{
		PinConfigured:     s.PinConfigured,
		PinLength:         s.PinLength,
		Locked:            s.PinConfigured && s.Locked,
		FailedAttempts:    failed,
		AttemptsRemaining: remaining,
		LockedOut:         s.LockedOut(now),
		Biometric:         s.Clone().Biometric,
		LastActivity:      s.LastActivity,
		InactivityTimeout: s.InactivityTimeout,
	}
	if status.LockedOut {
		status.LockoutSeconds = int((s.LockoutRemaining(now) + time.Second - 1) / time.Second)
	}
	return status
}

// Snapshot returns a copy of the full state.
func (e *LockEngine) Snapshot() models.LockState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Close cancels any running biometric challenge. Later calls return
// ErrEngineClosed.
func (e *LockEngine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.closeCancel()
}

// commitLocked installs tr.State, writing durable fields to the store when
// they changed. Transitions that tighten security are applied in memory even
// if the write fails; all others are applied only after a successful write.
func (e *LockEngine) commitLocked(ctx context.Context, tr machine.LockTransition, tighten bool) error {
	if !tr.Changed {
		return nil
	}
	dirty := !durableEqual(e.state, tr.State)

	if tighten {
		e.state = tr.State
	}
	if dirty {
		if err := e.store.Save(ctx, tr.State); err != nil {
			return err
		}
	}
	e.state = tr.State
	return nil
}

// durableEqual reports whether a and b persist identically.
func durableEqual(a, b models.LockState) bool {
	if a.PinConfigured != b.PinConfigured ||
		!bytes.Equal(a.PinHash, b.PinHash) ||
		a.PinLength != b.PinLength ||
		a.FailedAttempts != b.FailedAttempts ||
		a.LockoutCount != b.LockoutCount ||
		a.Biometric.Enabled != b.Biometric.Enabled ||
		a.InactivityTimeout != b.InactivityTimeout {
		return false
	}
	switch {
	case a.LockoutUntil == nil && b.LockoutUntil == nil:
		return true
	case a.LockoutUntil == nil || b.LockoutUntil == nil:
		return false
	}
	return a.LockoutUntil.Equal(*b.LockoutUntil)
}

func (e *LockEngine) emit(events []models.Event) {
	if len(events) == 0 {
		return
	}
	for _, ev := range events {
		switch ev.Type {
		case models.EventLocked, models.EventUnlocked, models.EventLockedOut:
			e.audit.LogLockEvent(logger.AuditEvent{
				EventType: string(ev.Type),
				Reason:    string(ev.LockReason),
				Success:   ev.Type != models.EventLockedOut,
			})
		}
	}
	e.bus.Publish(events...)
}

func (e *LockEngine) auditVerify(eventType string, err error) {
	event := logger.AuditEvent{EventType: eventType, Success: err == nil}
	if err != nil {
		event.FailureReason = failureReason(err)
	}
	e.audit.LogLockEvent(event)
}

func failureReason(err error) string {
	var wrong *models.WrongPinError
	var out *models.LockedOutError
	switch {
	case errors.As(err, &out):
		return "locked_out"
	case errors.As(err, &wrong):
		return "wrong_pin"
	case errors.Is(err, models.ErrNoPinConfigured):
		return "no_pin"
	case errors.Is(err, models.ErrBiometricCancelled):
		return "cancelled"
	case errors.Is(err, models.ErrBiometricUnavailable):
		return "unavailable"
	case errors.Is(err, models.ErrBiometricFailed):
		return "biometric_failed"
	case errors.Is(err, models.ErrStorageFailure):
		return "storage"
	}
	return "error"
}
