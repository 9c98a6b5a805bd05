package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/lib/pq"
)

const userColumns = `id, email, password_hash, role, password_changed_at, created_at`

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		"SELECT "+userColumns+" FROM users WHERE email = $1", email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", email, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// PasswordChangedAt returns when the user's credentials last changed
func (s *Store) PasswordChangedAt(ctx context.Context, userID int64) (time.Time, error) {
	var changedAt time.Time
	err := s.db.GetContext(ctx, &changedAt,
		"SELECT password_changed_at FROM users WHERE id = $1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("user %d: %w", userID, models.ErrNotFound)
	}
	return changedAt, err
}

// EnsureAdmin creates the admin account unless one with that email exists.
// Reports whether a row was inserted.
func (s *Store) EnsureAdmin(ctx context.Context, email, passwordHash string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING`,
		email, passwordHash, models.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("failed to ensure admin: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// CreateUser inserts a user. A taken email is reported as invalid input.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id, password_changed_at, created_at`,
		user.Email, user.PasswordHash, user.Role).
		Scan(&user.ID, &user.PasswordChangedAt, &user.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: email %q is already registered", models.ErrInvalidInput, user.Email)
	}
	return err
}

// UpdatePassword replaces the password hash and bumps password_changed_at,
// which invalidates every token issued before now
func (s *Store) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = $1, password_changed_at = NOW() WHERE id = $2",
		passwordHash, userID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %d: %w", userID, models.ErrNotFound)
	}
	return nil
}
