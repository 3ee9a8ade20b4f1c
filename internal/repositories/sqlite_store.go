package repositories

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/BradenHooton/pinguard/internal/database"
)

// SQLiteStore is the on-device CredentialStore.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const sqliteUpsert = `
	INSERT INTO credential_items (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`

func (s *SQLiteStore) GetItem(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM credential_items WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return nil, database.MapError(err)
	}
	return value, nil
}

func (s *SQLiteStore) SetItem(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, sqliteUpsert, key, value, time.Now().UnixMilli())
	return database.MapError(err)
}

func (s *SQLiteStore) RemoveItem(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credential_items WHERE key = ?`, key)
	return database.MapError(err)
}

func (s *SQLiteStore) MultiGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	query := `SELECT key, value FROM credential_items WHERE key IN (` + placeholders(len(keys)) + `)`
	rows, err := s.db.QueryContext(ctx, query, stringArgs(keys)...)
	if err != nil {
		return nil, database.MapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, database.MapError(err)
		}
		out[key] = value
	}
	return out, database.MapError(rows.Err())
}

func (s *SQLiteStore) MultiSet(ctx context.Context, items map[string][]byte) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()

	return database.WithSQLTransaction(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
		if err != nil {
			return database.MapError(err)
		}
		defer stmt.Close()

		for k, v := range items {
			if _, err := stmt.ExecContext(ctx, k, v, now); err != nil {
				return database.MapError(err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) MultiRemove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	query := `DELETE FROM credential_items WHERE key IN (` + placeholders(len(keys)) + `)`
	_, err := s.db.ExecContext(ctx, query, stringArgs(keys)...)
	return database.MapError(err)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(keys []string) []any {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return args
}
