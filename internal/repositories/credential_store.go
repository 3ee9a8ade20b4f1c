package repositories

import (
	"context"
)

// CredentialStore is durable key-value storage for credentials and flags.
// It holds no business logic.
type CredentialStore interface {
	// GetItem returns models.ErrNotFound for an absent key.
	GetItem(ctx context.Context, key string) ([]byte, error)
	SetItem(ctx context.Context, key string, value []byte) error
	RemoveItem(ctx context.Context, key string) error
	// MultiGet omits absent keys from the result.
	MultiGet(ctx context.Context, keys []string) (map[string][]byte, error)
	// MultiSet writes all items or none.
	MultiSet(ctx context.Context, items map[string][]byte) error
	MultiRemove(ctx context.Context, keys []string) error
}
