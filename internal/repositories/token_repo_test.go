package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/pinguard/internal/auth"
	"github.com/BradenHooton/pinguard/internal/models"
	"github.com/BradenHooton/pinguard/internal/repositories"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, userID, email string, exp time.Time) string {
	t.Helper()
	claims := &models.TokenClaims{
		Type:   "access",
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(exp.Add(-15 * time.Minute)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return s
}

func TestTokenRepository_CurrentUserFromAccessToken(t *testing.T) {
	ctx := context.Background()
	inspector := auth.NewTokenInspector("", nil)
	repo := repositories.NewTokenRepository(repositories.NewMemoryStore(), "acct", inspector)

	_, err := repo.GetCurrentUser(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	access := signedToken(t, "user-42", "pat@example.com", time.Now().Add(10*time.Minute))
	require.NoError(t, repo.SetTokens(ctx, models.Tokens{AccessToken: access, RefreshToken: "r-1"}))

	user, err := repo.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-42", user.ID)
	assert.Equal(t, "pat@example.com", user.Email)

	tokens, err := repo.GetTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r-1", tokens.RefreshToken)
}

func TestTokenRepository_ClearTokens(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewTokenRepository(repositories.NewMemoryStore(), "acct", auth.NewTokenInspector("", nil))

	require.NoError(t, repo.SetTokens(ctx, models.Tokens{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, repo.ClearTokens(ctx))

	_, err := repo.GetTokens(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Clearing twice is fine.
	assert.NoError(t, repo.Logout(ctx))
}

func TestTokenRepository_RejectsEmptyAccessToken(t *testing.T) {
	repo := repositories.NewTokenRepository(repositories.NewMemoryStore(), "acct", auth.NewTokenInspector("", nil))
	assert.ErrorIs(t, repo.SetTokens(context.Background(), models.Tokens{}), models.ErrBadRequest)
}
