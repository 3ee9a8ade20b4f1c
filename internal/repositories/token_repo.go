package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/pinguard/internal/models"
)

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
)

// ClaimsParser extracts identity claims from an access token.
type ClaimsParser interface {
	Parse(token string) (*models.TokenClaims, error)
}

// TokenRepository holds the backend-issued tokens in the credential store.
// It is the device side of the remote auth API: the UI shell performs the
// network login and hands the tokens over.
type TokenRepository struct {
	store  CredentialStore
	ns     string
	parser ClaimsParser
}

func NewTokenRepository(store CredentialStore, namespace string, parser ClaimsParser) *TokenRepository {
	return &TokenRepository{store: store, ns: namespace + ".tokens.", parser: parser}
}

func (r *TokenRepository) key(k string) string {
	return r.ns + k
}

// SetTokens stores a fresh token pair after login or refresh.
func (r *TokenRepository) SetTokens(ctx context.Context, tokens models.Tokens) error {
	if tokens.AccessToken == "" {
		return models.ErrBadRequest
	}
	items := map[string][]byte{
		r.key(keyAccessToken):  []byte(tokens.AccessToken),
		r.key(keyRefreshToken): []byte(tokens.RefreshToken),
	}
	if err := r.store.MultiSet(ctx, items); err != nil {
		return fmt.Errorf("%w: write tokens: %w", models.ErrStorageFailure, err)
	}
	return nil
}

// GetTokens returns models.ErrNotFound when no access token is stored.
func (r *TokenRepository) GetTokens(ctx context.Context) (models.Tokens, error) {
	items, err := r.store.MultiGet(ctx, []string{r.key(keyAccessToken), r.key(keyRefreshToken)})
	if err != nil {
		return models.Tokens{}, fmt.Errorf("%w: read tokens: %w", models.ErrStorageFailure, err)
	}
	access, ok := items[r.key(keyAccessToken)]
	if !ok || len(access) == 0 {
		return models.Tokens{}, models.ErrNotFound
	}
	return models.Tokens{
		AccessToken:  string(access),
		RefreshToken: string(items[r.key(keyRefreshToken)]),
	}, nil
}

// GetCurrentUser reads the identity from the stored access token.
func (r *TokenRepository) GetCurrentUser(ctx context.Context) (models.CurrentUser, error) {
	tokens, err := r.GetTokens(ctx)
	if err != nil {
		return models.CurrentUser{}, err
	}
	claims, err := r.parser.Parse(tokens.AccessToken)
	if err != nil {
		return models.CurrentUser{}, err
	}
	if claims.Identity() == "" {
		return models.CurrentUser{}, fmt.Errorf("%w: token has no subject", models.ErrUnauthorized)
	}
	return models.CurrentUser{ID: claims.Identity(), Email: claims.Email}, nil
}

// Logout forgets the device's credentials. Server-side revocation is the
// shell's job; it has already happened or will be retried by the shell.
func (r *TokenRepository) Logout(ctx context.Context) error {
	return r.ClearTokens(ctx)
}

func (r *TokenRepository) ClearTokens(ctx context.Context) error {
	err := r.store.MultiRemove(ctx, []string{r.key(keyAccessToken), r.key(keyRefreshToken)})
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%w: clear tokens: %w", models.ErrStorageFailure, err)
	}
	return nil
}
