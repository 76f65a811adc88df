package models

import (
	"time"

	"github.com/google/uuid"
)

// AdminUser is a privileged operator account. The set is small and static;
// accounts are provisioned at startup (see cmd/init-admin) and verified by
// comparing a salted argon2id hash of the supplied secret.
type AdminUser struct {
	ID           uuid.UUID `db:"id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"` // argon2id encoded
	Enabled      bool      `db:"enabled"`
	CreatedAt    time.Time `db:"created_at"`
}

// IsValid checks if the account may authenticate.
func (u *AdminUser) IsValid() bool {
	return u.Enabled
}
