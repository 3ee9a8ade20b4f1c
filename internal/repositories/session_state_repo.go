package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/pinguard/internal/models"
)

// ErrIncompleteSession means some but not all session fields were stored.
var ErrIncompleteSession = errors.New("persisted session is incomplete")

const (
	keySessionID    = "session_id"
	keyUserID       = "user_id"
	keyStartedAt    = "started_at"
	keyLastActivity = "last_activity"
	keyMaxSession   = "max_session_ms"
	keyMaxInactive  = "max_inactive_ms"
	keyWarningLead  = "warning_lead_ms"
)

var sessionKeys = []string{
	keySessionID,
	keyUserID,
	keyStartedAt,
	keyLastActivity,
	keyMaxSession,
	keyMaxInactive,
	keyWarningLead,
}

// SessionStateRepository persists models.SessionState so a session can
// survive a restart.
type SessionStateRepository struct {
	store CredentialStore
	ns    string
}

func NewSessionStateRepository(store CredentialStore, namespace string) *SessionStateRepository {
	return &SessionStateRepository{store: store, ns: namespace + ".session."}
}

func (r *SessionStateRepository) key(k string) string {
	return r.ns + k
}

func (r *SessionStateRepository) allKeys() []string {
	out := make([]string, len(sessionKeys))
	for i, k := range sessionKeys {
		out[i] = r.key(k)
	}
	return out
}

// Load returns models.ErrNotFound when nothing is stored and
// ErrIncompleteSession when any field is missing or unreadable.
func (r *SessionStateRepository) Load(ctx context.Context) (models.SessionState, error) {
	items, err := r.store.MultiGet(ctx, r.allKeys())
	if err != nil {
		return models.SessionState{}, fmt.Errorf("%w: read session: %w", models.ErrStorageFailure, err)
	}
	if len(items) == 0 {
		return models.SessionState{}, models.ErrNotFound
	}
	if len(items) != len(sessionKeys) {
		return models.SessionState{}, ErrIncompleteSession
	}

	millis := func(k string) (int64, error) {
		return strconv.ParseInt(string(items[r.key(k)]), 10, 64)
	}

	s := models.SessionState{
		SessionID: string(items[r.key(keySessionID)]),
		UserID:    string(items[r.key(keyUserID)]),
		Phase:     models.SessionActive,
	}
	if s.SessionID == "" {
		return models.SessionState{}, ErrIncompleteSession
	}

	var values [5]int64
	for i, k := range []string{keyStartedAt, keyLastActivity, keyMaxSession, keyMaxInactive, keyWarningLead} {
		v, err := millis(k)
		if err != nil || v < 0 {
			return models.SessionState{}, ErrIncompleteSession
		}
		values[i] = v
	}
	s.StartedAt = time.UnixMilli(values[0])
	s.LastActivity = time.UnixMilli(values[1])
	s.MaxSession = time.Duration(values[2]) * time.Millisecond
	s.MaxInactive = time.Duration(values[3]) * time.Millisecond
	s.WarningLead = time.Duration(values[4]) * time.Millisecond

	return s, nil
}

func (r *SessionStateRepository) Save(ctx context.Context, s models.SessionState) error {
	ms := func(d time.Duration) []byte { return []byte(strconv.FormatInt(d.Milliseconds(), 10)) }
	at := func(t time.Time) []byte { return []byte(strconv.FormatInt(t.UnixMilli(), 10)) }

	items := map[string][]byte{
		r.key(keySessionID):    []byte(s.SessionID),
		r.key(keyUserID):       []byte(s.UserID),
		r.key(keyStartedAt):    at(s.StartedAt),
		r.key(keyLastActivity): at(s.LastActivity),
		r.key(keyMaxSession):   ms(s.MaxSession),
		r.key(keyMaxInactive):  ms(s.MaxInactive),
		r.key(keyWarningLead):  ms(s.WarningLead),
	}
	if err := r.store.MultiSet(ctx, items); err != nil {
		return fmt.Errorf("%w: write session: %w", models.ErrStorageFailure, err)
	}
	return nil
}

// SaveActivity updates only the sliding activity timestamp.
func (r *SessionStateRepository) SaveActivity(ctx context.Context, at time.Time) error {
	v := []byte(strconv.FormatInt(at.UnixMilli(), 10))
	if err := r.store.SetItem(ctx, r.key(keyLastActivity), v); err != nil {
		return fmt.Errorf("%w: write session activity: %w", models.ErrStorageFailure, err)
	}
	return nil
}

func (r *SessionStateRepository) Clear(ctx context.Context) error {
	if err := r.store.MultiRemove(ctx, r.allKeys()); err != nil {
		return fmt.Errorf("%w: clear session: %w", models.ErrStorageFailure, err)
	}
	return nil
}
