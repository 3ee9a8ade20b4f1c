package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/pinguard/internal/models"
	"github.com/BradenHooton/pinguard/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStateRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewSessionStateRepository(newSQLiteStore(t), "acct")

	_, err := repo.Load(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	in := models.SessionState{
		SessionID:    "3f1c8a52-0000-4000-8000-000000000001",
		UserID:       "user-7",
		StartedAt:    time.UnixMilli(1_700_000_000_000),
		LastActivity: time.UnixMilli(1_700_000_060_000),
		MaxSession:   8 * time.Hour,
		MaxInactive:  15 * time.Minute,
		WarningLead:  2 * time.Minute,
		Phase:        models.SessionWarned,
	}
	require.NoError(t, repo.Save(ctx, in))

	out, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in.SessionID, out.SessionID)
	assert.Equal(t, in.UserID, out.UserID)
	assert.True(t, in.StartedAt.Equal(out.StartedAt))
	assert.True(t, in.LastActivity.Equal(out.LastActivity))
	assert.Equal(t, in.MaxSession, out.MaxSession)
	assert.Equal(t, in.MaxInactive, out.MaxInactive)
	assert.Equal(t, in.WarningLead, out.WarningLead)
	assert.Equal(t, models.SessionActive, out.Phase)

	later := time.UnixMilli(1_700_000_120_000)
	require.NoError(t, repo.SaveActivity(ctx, later))
	out, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.True(t, later.Equal(out.LastActivity))

	require.NoError(t, repo.Clear(ctx))
	_, err = repo.Load(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSessionStateRepository_PartialStateRejected(t *testing.T) {
	ctx := context.Background()
	store := repositories.NewMemoryStore()
	require.NoError(t, store.MultiSet(ctx, map[string][]byte{
		"acct.session.session_id": []byte("s-1"),
		"acct.session.started_at": []byte("1700000000000"),
	}))

	_, err := repositories.NewSessionStateRepository(store, "acct").Load(ctx)
	assert.ErrorIs(t, err, repositories.ErrIncompleteSession)
}
