package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roadwatch/roadwatch/internal/apperror"
)

// AdminRepository defines the data access contract for admin credentials.
// All SQL lives in the concrete implementation -- no SQL leaks out. The
// repository is the sole source of truth for stored password hashes; it
// never sees plaintext passwords.
type AdminRepository interface {
	FindByEmail(ctx context.Context, email string) (*Admin, error)
	EmailExists(ctx context.Context, email string) (bool, error)

	// UpdatePassword replaces the stored hash for an existing identity.
	// Returns apperror.NotFound when no credential row exists -- password
	// reset never creates accounts.
	UpdatePassword(ctx context.Context, email, passwordHash string) error
}

// adminRepository implements AdminRepository with hand-written MariaDB queries.
type adminRepository struct {
	db *sql.DB
}

// NewAdminRepository creates a new admin repository backed by the given DB pool.
func NewAdminRepository(db *sql.DB) AdminRepository {
	return &adminRepository{db: db}
}

// FindByEmail retrieves an admin by email address.
// Returns apperror.NotFound if no admin exists with this email.
func (r *adminRepository) FindByEmail(ctx context.Context, email string) (*Admin, error) {
	query := `SELECT id, email, password_hash, created_at FROM admins WHERE email = ?`

	admin := &Admin{}
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&admin.ID,
		&admin.Email,
		&admin.PasswordHash,
		&admin.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("admin not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying admin by email: %w", err)
	}

	return admin, nil
}

// EmailExists returns true if an admin with the given email exists. Used by
// the recovery flow's email-verification step.
func (r *adminRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM admins WHERE email = ?)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}

	return exists, nil
}

// UpdatePassword sets a new password hash for the admin with the given
// email. The hash is persisted only after hashing completed in the service
// layer; plaintext never reaches this method.
func (r *adminRepository) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	query := `UPDATE admins SET password_hash = ? WHERE email = ?`

	result, err := r.db.ExecContext(ctx, query, passwordHash, email)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("admin not found")
	}

	return nil
}
