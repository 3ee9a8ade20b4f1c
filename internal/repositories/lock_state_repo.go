package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/pinguard/internal/models"
)

const (
	keyPinHash           = "pin_hash"
	keyPinLength         = "pin_length"
	keyBiometricEnabled  = "biometric_enabled"
	keyFailedAttempts    = "failed_attempts"
	keyLockoutUntil      = "lockout_until"
	keyLockoutCount      = "lockout_count"
	keyInactivityTimeout = "inactivity_timeout_ms"
	keyBackgroundAt      = "background_entered_at"
)

var pinKeys = []string{
	keyPinHash,
	keyPinLength,
	keyBiometricEnabled,
	keyFailedAttempts,
	keyLockoutUntil,
	keyLockoutCount,
}

var lockKeys = append(append([]string{}, pinKeys...), keyInactivityTimeout)

// LockStateRepository persists the durable part of models.LockState. The
// locked flag and unlock grant are never stored: a restart always locks.
type LockStateRepository struct {
	store CredentialStore
	ns    string
}

func NewLockStateRepository(store CredentialStore, namespace string) *LockStateRepository {
	return &LockStateRepository{store: store, ns: namespace + ".lock."}
}

func (r *LockStateRepository) key(k string) string {
	return r.ns + k
}

func (r *LockStateRepository) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = r.key(k)
	}
	return out
}

// Load returns the persisted state. Any read or decode failure is reported
// as models.ErrStorageFailure so the caller can fail safe.
func (r *LockStateRepository) Load(ctx context.Context) (models.LockState, error) {
	items, err := r.store.MultiGet(ctx, r.keys(lockKeys))
	if err != nil {
		return models.LockState{}, fmt.Errorf("%w: read lock state: %w", models.ErrStorageFailure, err)
	}
	get := func(k string) ([]byte, bool) {
		v, ok := items[r.key(k)]
		return v, ok
	}

	var s models.LockState
	if v, ok := get(keyInactivityTimeout); ok {
		ms, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil || ms <= 0 {
			return models.LockState{}, corrupt(keyInactivityTimeout)
		}
		s.InactivityTimeout = time.Duration(ms) * time.Millisecond
	}

	hash, hasHash := get(keyPinHash)
	lengthRaw, hasLength := get(keyPinLength)
	if !hasHash && !hasLength {
		return s, nil
	}
	if !hasHash || !hasLength || len(hash) == 0 {
		return models.LockState{}, corrupt(keyPinHash)
	}

	n, err := strconv.Atoi(string(lengthRaw))
	if err != nil || !models.PinLength(n).Valid() {
		return models.LockState{}, corrupt(keyPinLength)
	}
	s.PinConfigured = true
	s.PinHash = hash
	s.PinLength = models.PinLength(n)

	if v, ok := get(keyBiometricEnabled); ok {
		s.Biometric.Enabled, err = strconv.ParseBool(string(v))
		if err != nil {
			return models.LockState{}, corrupt(keyBiometricEnabled)
		}
	}
	if v, ok := get(keyFailedAttempts); ok {
		if s.FailedAttempts, err = strconv.Atoi(string(v)); err != nil || s.FailedAttempts < 0 {
			return models.LockState{}, corrupt(keyFailedAttempts)
		}
	}
	if v, ok := get(keyLockoutCount); ok {
		if s.LockoutCount, err = strconv.Atoi(string(v)); err != nil || s.LockoutCount < 0 {
			return models.LockState{}, corrupt(keyLockoutCount)
		}
	}
	if v, ok := get(keyLockoutUntil); ok && len(v) > 0 {
		ms, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return models.LockState{}, corrupt(keyLockoutUntil)
		}
		until := time.UnixMilli(ms)
		s.LockoutUntil = &until
	}

	return s, nil
}

// Save writes the durable fields of s. An unconfigured state removes every
// PIN key.
func (r *LockStateRepository) Save(ctx context.Context, s models.LockState) error {
	items := map[string][]byte{}
	if s.InactivityTimeout > 0 {
		items[r.key(keyInactivityTimeout)] = []byte(strconv.FormatInt(s.InactivityTimeout.Milliseconds(), 10))
	}

	if !s.PinConfigured {
		if err := r.store.MultiRemove(ctx, r.keys(pinKeys)); err != nil {
			return fmt.Errorf("%w: clear pin: %w", models.ErrStorageFailure, err)
		}
	} else {
		until := []byte{}
		if s.LockoutUntil != nil {
			until = []byte(strconv.FormatInt(s.LockoutUntil.UnixMilli(), 10))
		}
		items[r.key(keyPinHash)] = s.PinHash
		items[r.key(keyPinLength)] = []byte(strconv.Itoa(int(s.PinLength)))
		items[r.key(keyBiometricEnabled)] = []byte(strconv.FormatBool(s.Biometric.Enabled))
		items[r.key(keyFailedAttempts)] = []byte(strconv.Itoa(s.FailedAttempts))
		items[r.key(keyLockoutCount)] = []byte(strconv.Itoa(s.LockoutCount))
		items[r.key(keyLockoutUntil)] = until
	}

	if len(items) == 0 {
		return nil
	}
	if err := r.store.MultiSet(ctx, items); err != nil {
		return fmt.Errorf("%w: write lock state: %w", models.ErrStorageFailure, err)
	}
	return nil
}

// SetBackgroundEnteredAt durably records when the app left the foreground.
func (r *LockStateRepository) SetBackgroundEnteredAt(ctx context.Context, at time.Time) error {
	v := []byte(strconv.FormatInt(at.UnixMilli(), 10))
	if err := r.store.SetItem(ctx, r.key(keyBackgroundAt), v); err != nil {
		return fmt.Errorf("%w: write background mark: %w", models.ErrStorageFailure, err)
	}
	return nil
}

// BackgroundEnteredAt returns models.ErrNotFound when no mark is stored.
func (r *LockStateRepository) BackgroundEnteredAt(ctx context.Context) (time.Time, error) {
	v, err := r.store.GetItem(ctx, r.key(keyBackgroundAt))
	if errors.Is(err, models.ErrNotFound) {
		return time.Time{}, models.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: read background mark: %w", models.ErrStorageFailure, err)
	}
	ms, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return time.Time{}, corrupt(keyBackgroundAt)
	}
	return time.UnixMilli(ms), nil
}

func (r *LockStateRepository) ClearBackgroundEnteredAt(ctx context.Context) error {
	if err := r.store.RemoveItem(ctx, r.key(keyBackgroundAt)); err != nil {
		return fmt.Errorf("%w: clear background mark: %w", models.ErrStorageFailure, err)
	}
	return nil
}

func corrupt(key string) error {
	return fmt.Errorf("%w: corrupt value for %s", models.ErrStorageFailure, key)
}
