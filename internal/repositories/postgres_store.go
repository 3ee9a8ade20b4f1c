package repositories

import (
	"context"

	"github.com/BradenHooton/pinguard/internal/database"
	"github.com/jackc/pgx/v5"
)

// PostgresStore is a CredentialStore for managed devices that keep
// credential state on a local Postgres instance.
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const postgresUpsert = `
	INSERT INTO credential_items (key, value, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
`

func (s *PostgresStore) GetItem(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.Pool.QueryRow(ctx, `SELECT value FROM credential_items WHERE key = $1`, key).Scan(&value)
	if err != nil {
		return nil, database.MapError(err)
	}
	return value, nil
}

func (s *PostgresStore) SetItem(ctx context.Context, key string, value []byte) error {
	_, err := s.db.Pool.Exec(ctx, postgresUpsert, key, value)
	return database.MapError(err)
}

func (s *PostgresStore) RemoveItem(ctx context.Context, key string) error {
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM credential_items WHERE key = $1`, key)
	return database.MapError(err)
}

func (s *PostgresStore) MultiGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := s.db.Pool.Query(ctx, `SELECT key, value FROM credential_items WHERE key = ANY($1)`, keys)
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

func (s *PostgresStore) MultiSet(ctx context.Context, items map[string][]byte) error {
	if len(items) == 0 {
		return nil
	}

	return s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for k, v := range items {
			batch.Queue(postgresUpsert, k, v)
		}
		return database.MapError(tx.SendBatch(ctx, batch).Close())
	})
}

func (s *PostgresStore) MultiRemove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM credential_items WHERE key = ANY($1)`, keys)
	return database.MapError(err)
}
