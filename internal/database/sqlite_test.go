package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/BradenHooton/pinguard/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSQLite_CreatesCredentialTable(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := OpenSQLite(ctx, ":memory:", logger)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, MigrateSQLite(ctx, db, logger))
	// A second run is a no-op.
	require.NoError(t, MigrateSQLite(ctx, db, logger))

	var name string
	err = db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='credential_items'",
	).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "credential_items", name)
}

func TestMapError(t *testing.T) {
	assert.Nil(t, MapError(nil))
	assert.ErrorIs(t, MapError(sql.ErrNoRows), models.ErrNotFound)
	assert.ErrorIs(t, MapError(fmt.Errorf("scan: %w", pgx.ErrNoRows)), models.ErrNotFound)
	assert.ErrorIs(t, MapError(&pgconn.PgError{Code: "23505"}), models.ErrConflict)

	other := errors.New("disk I/O error")
	assert.Equal(t, other, MapError(other))
}
