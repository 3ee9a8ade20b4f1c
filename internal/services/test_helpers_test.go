package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/pinguard/internal/clock"
	"github.com/BradenHooton/pinguard/internal/models"
	"github.com/BradenHooton/pinguard/internal/repositories"
	pkgauth "github.com/BradenHooton/pinguard/pkg/auth"
	"github.com/BradenHooton/pinguard/pkg/logger"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// plainHasher skips bcrypt so tests stay fast.
type plainHasher struct{}

func (plainHasher) Hash(pin string) ([]byte, error) {
	return []byte("plain:" + pin), nil
}

func (plainHasher) Compare(hash []byte, pin string) error {
	if string(hash) != "plain:"+pin {
		return pkgauth.ErrPinMismatch
	}
	return nil
}

// MockLockStore implements LockStore for testing. Unset funcs fall through
// to Inner.
type MockLockStore struct {
	Inner    LockStore
	LoadFunc func(ctx context.Context) (models.LockState, error)
	SaveFunc func(ctx context.Context, s models.LockState) error
}

func (m *MockLockStore) Load(ctx context.Context) (models.LockState, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx)
	}
	return m.Inner.Load(ctx)
}

func (m *MockLockStore) Save(ctx context.Context, s models.LockState) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, s)
	}
	return m.Inner.Save(ctx, s)
}

// MockBackgroundMarkStore implements BackgroundMarkStore for testing.
type MockBackgroundMarkStore struct {
	Inner     BackgroundMarkStore
	SetFunc   func(ctx context.Context, at time.Time) error
	GetFunc   func(ctx context.Context) (time.Time, error)
	ClearFunc func(ctx context.Context) error
}

func (m *MockBackgroundMarkStore) SetBackgroundEnteredAt(ctx context.Context, at time.Time) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, at)
	}
	return m.Inner.SetBackgroundEnteredAt(ctx, at)
}

func (m *MockBackgroundMarkStore) BackgroundEnteredAt(ctx context.Context) (time.Time, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx)
	}
	return m.Inner.BackgroundEnteredAt(ctx)
}

func (m *MockBackgroundMarkStore) ClearBackgroundEnteredAt(ctx context.Context) error {
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx)
	}
	return m.Inner.ClearBackgroundEnteredAt(ctx)
}

// MockBiometricSensor implements BiometricSensor for testing
type MockBiometricSensor struct {
	HasHardwareFunc    func(ctx context.Context) (bool, error)
	IsEnrolledFunc     func(ctx context.Context) (bool, error)
	SupportedKindsFunc func(ctx context.Context) ([]models.BiometricKind, error)
	AuthenticateFunc   func(ctx context.Context, prompt string) error
}

func (m *MockBiometricSensor) HasHardware(ctx context.Context) (bool, error) {
	if m.HasHardwareFunc != nil {
		return m.HasHardwareFunc(ctx)
	}
	return false, nil
}

func (m *MockBiometricSensor) IsEnrolled(ctx context.Context) (bool, error) {
	if m.IsEnrolledFunc != nil {
		return m.IsEnrolledFunc(ctx)
	}
	return false, nil
}

func (m *MockBiometricSensor) SupportedKinds(ctx context.Context) ([]models.BiometricKind, error) {
	if m.SupportedKindsFunc != nil {
		return m.SupportedKindsFunc(ctx)
	}
	return nil, nil
}

func (m *MockBiometricSensor) Authenticate(ctx context.Context, prompt string) error {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, prompt)
	}
	return models.ErrBiometricUnavailable
}

// enrolledSensor reports a fingerprint sensor with an enrolled finger.
func enrolledSensor(auth func(ctx context.Context, prompt string) error) *MockBiometricSensor {
	return &MockBiometricSensor{
		HasHardwareFunc: func(ctx context.Context) (bool, error) { return true, nil },
		IsEnrolledFunc:  func(ctx context.Context) (bool, error) { return true, nil },
		SupportedKindsFunc: func(ctx context.Context) ([]models.BiometricKind, error) {
			return []models.BiometricKind{models.BiometricFingerprint}, nil
		},
		AuthenticateFunc: auth,
	}
}

// MockRemoteAuth implements RemoteAuth for testing and counts calls.
type MockRemoteAuth struct {
	mu               sync.Mutex
	GetTokensFunc    func(ctx context.Context) (models.Tokens, error)
	ClearTokensFunc  func(ctx context.Context) error
	LogoutCalls      int
	ClearTokensCalls int
}

func (m *MockRemoteAuth) GetTokens(ctx context.Context) (models.Tokens, error) {
	if m.GetTokensFunc != nil {
		return m.GetTokensFunc(ctx)
	}
	return models.Tokens{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *MockRemoteAuth) GetCurrentUser(ctx context.Context) (models.CurrentUser, error) {
	return models.CurrentUser{ID: "user-1", Email: "user@example.com"}, nil
}

func (m *MockRemoteAuth) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LogoutCalls++
	return nil
}

func (m *MockRemoteAuth) ClearTokens(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearTokensCalls++
	if m.ClearTokensFunc != nil {
		return m.ClearTokensFunc(ctx)
	}
	return nil
}

func (m *MockRemoteAuth) counts() (logout, clear int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LogoutCalls, m.ClearTokensCalls
}

// eventRecorder collects everything published on a bus.
type eventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func recordEvents(bus *EventBus) *eventRecorder {
	r := &eventRecorder{}
	bus.OnAll(func(ev models.Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
	return r
}

func (r *eventRecorder) all() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...)
}

func (r *eventRecorder) types() []models.EventType {
	events := r.all()
	out := make([]models.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// lockFixture wires a LockEngine to an in-memory credential store.
type lockFixture struct {
	engine *LockEngine
	clock  *clock.Manual
	store  *MockLockStore
	repo   *repositories.LockStateRepository
	creds  *repositories.MemoryStore
	bus    *EventBus
	events *eventRecorder
}

func newLockFixture(t *testing.T, sensor BiometricSensor) *lockFixture {
	t.Helper()

	creds := repositories.NewMemoryStore()
	repo := repositories.NewLockStateRepository(creds, "test")
	return newLockFixtureWithRepo(t, sensor, creds, repo)
}

func newLockFixtureWithRepo(t *testing.T, sensor BiometricSensor, creds *repositories.MemoryStore, repo *repositories.LockStateRepository) *lockFixture {
	t.Helper()

	clk := clock.NewManual(t0)
	bus := NewEventBus(testLogger())
	store := &MockLockStore{Inner: repo}
	if sensor == nil {
		sensor = &MockBiometricSensor{}
	}
	engine := NewLockEngine(store, sensor, bus, logger.NewAuditLogger(testLogger(), "test"), clk,
		DefaultLockEngineConfig(), testLogger()).WithHasher(plainHasher{})
	t.Cleanup(engine.Close)

	return &lockFixture{
		engine: engine,
		clock:  clk,
		store:  store,
		repo:   repo,
		creds:  creds,
		bus:    bus,
		events: recordEvents(bus),
	}
}

// sessionFixture wires a SessionTracker to an in-memory credential store.
type sessionFixture struct {
	tracker *SessionTracker
	clock   *clock.Manual
	repo    *repositories.SessionStateRepository
	creds   *repositories.MemoryStore
	remote  *MockRemoteAuth
	bus     *EventBus
	events  *eventRecorder
}

func newSessionFixture(t *testing.T, cfg SessionConfig) *sessionFixture {
	t.Helper()
	creds := repositories.NewMemoryStore()
	return newSessionFixtureAt(t, cfg, creds, clock.NewManual(t0))
}

func newSessionFixtureAt(t *testing.T, cfg SessionConfig, creds *repositories.MemoryStore, clk *clock.Manual) *sessionFixture {
	t.Helper()

	repo := repositories.NewSessionStateRepository(creds, "test")
	remote := &MockRemoteAuth{}
	bus := NewEventBus(testLogger())
	tracker := NewSessionTracker(repo, remote, bus, logger.NewAuditLogger(testLogger(), "test"), clk, cfg, testLogger())
	t.Cleanup(tracker.Close)

	return &sessionFixture{
		tracker: tracker,
		clock:   clk,
		repo:    repo,
		creds:   creds,
		remote:  remote,
		bus:     bus,
		events:  recordEvents(bus),
	}
}
