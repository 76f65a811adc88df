package admin

import (
	"context"
	"errors"
	"fmt"

	"aigate/internal/storage"
	"aigate/internal/utils"
)

// ErrUnauthorized is returned when admin credentials do not match.
var ErrUnauthorized = errors.New("invalid admin credentials")

// Authenticator verifies operator credentials against stored argon2id
// hashes. There is no session or token issuance; every admin call
// presents credentials and is verified independently.
type Authenticator struct {
	admins storage.AdminStore
	logger *utils.Logger
}

// NewAuthenticator creates an authenticator backed by an admin store.
func NewAuthenticator(admins storage.AdminStore) *Authenticator {
	return &Authenticator{
		admins: admins,
		logger: utils.NewLogger("admin-auth"),
	}
}

// VerifyCredentials checks a username/password pair. Unknown users,
// disabled accounts, and wrong passwords all report ErrUnauthorized so
// callers cannot distinguish them.
func (a *Authenticator) VerifyCredentials(ctx context.Context, username, password string) error {
	user, err := a.admins.GetAdminByUsername(ctx, username)
	if errors.Is(err, storage.ErrAdminNotFound) {
		return ErrUnauthorized
	}
	if err != nil {
		return fmt.Errorf("failed to load admin user: %w", err)
	}
	if !user.IsValid() {
		a.logger.Warn("login attempt on disabled admin account", "username", username)
		return ErrUnauthorized
	}

	ok, err := utils.VerifyPasswordArgon2(password, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify admin password: %w", err)
	}
	if !ok {
		a.logger.Warn("failed admin login", "username", username)
		return ErrUnauthorized
	}
	return nil
}
