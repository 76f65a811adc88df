package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	"aigate/internal/models"
	"aigate/internal/storage"
	"aigate/internal/utils"
)

func newTestAuthenticator(t *testing.T, username, password string, enabled bool) *Authenticator {
	t.Helper()
	store := storage.NewMemoryStore()
	hash, err := utils.HashPasswordArgon2(password)
	require.NoError(t, err)
	require.NoError(t, store.CreateAdmin(context.Background(), &models.AdminUser{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hash,
		Enabled:      enabled,
	}))
	return NewAuthenticator(store)
}

func TestVerifyCredentials(t *testing.T) {
	auth := newTestAuthenticator(t, "ops", "correct horse battery", true)

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, auth.VerifyCredentials(context.Background(), "ops", "correct horse battery"))
	})

	t.Run("wrong password", func(t *testing.T) {
		err := auth.VerifyCredentials(context.Background(), "ops", "wrong")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("unknown user", func(t *testing.T) {
		err := auth.VerifyCredentials(context.Background(), "nobody", "correct horse battery")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("case-insensitive username", func(t *testing.T) {
		assert.NoError(t, auth.VerifyCredentials(context.Background(), "OPS", "correct horse battery"))
	})
}

func TestVerifyCredentialsDisabledAccount(t *testing.T) {
	auth := newTestAuthenticator(t, "ops", "secret-password", false)
	err := auth.VerifyCredentials(context.Background(), "ops", "secret-password")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
