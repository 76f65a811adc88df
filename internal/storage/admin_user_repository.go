package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"aigate/internal/models"
)

// AdminUserRepository handles operator account database operations.
type AdminUserRepository struct {
	db *DB
}

var _ AdminStore = (*AdminUserRepository)(nil)

// NewAdminUserRepository creates a new admin user repository.
func NewAdminUserRepository(db *DB) *AdminUserRepository {
	return &AdminUserRepository{db: db}
}

// CreateAdmin persists a new operator account.
func (r *AdminUserRepository) CreateAdmin(ctx context.Context, user *models.AdminUser) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	query := `
		INSERT INTO admin_users (id, username, password_hash, enabled)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := r.db.conn.QueryRowxContext(ctx, query,
		user.ID, user.Username, user.PasswordHash, user.Enabled,
	).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAdminExists
		}
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	return nil
}

// GetAdminByUsername retrieves an operator account by username.
func (r *AdminUserRepository) GetAdminByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	var user models.AdminUser
	query := `
		SELECT id, username, password_hash, enabled, created_at
		FROM admin_users
		WHERE LOWER(username) = LOWER($1)
	`
	err := r.db.conn.GetContext(ctx, &user, query, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to get admin user: %w", err)
	}
	return &user, nil
}

// ListAdmins returns all operator accounts.
func (r *AdminUserRepository) ListAdmins(ctx context.Context) ([]*models.AdminUser, error) {
	var users []*models.AdminUser
	query := `
		SELECT id, username, password_hash, enabled, created_at
		FROM admin_users
		ORDER BY username ASC
	`
	if err := r.db.conn.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("failed to list admin users: %w", err)
	}
	return users, nil
}
