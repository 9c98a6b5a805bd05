package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt rejects input longer than 72 bytes
const (
	minPasswordLength = 8
	maxPasswordLength = 72
)

func validatePassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be %d-%d bytes", models.ErrInvalidInput, minPasswordLength, maxPasswordLength)
	}
	return nil
}

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// UserStore persists accounts
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
}

// AccountService handles sign-up, login and password changes
type AccountService struct {
	users  UserStore
	issuer *Issuer
	logger *zap.Logger
}

func NewAccountService(users UserStore, issuer *Issuer) *AccountService {
	return &AccountService{users: users, issuer: issuer, logger: util.GetLogger()}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a customer account
func (s *AccountService) Register(ctx context.Context, email, password string) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Register")
	defer span.End()

	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", models.ErrInvalidInput)
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{Email: email, PasswordHash: hash, Role: models.RoleCustomer}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User registered", zap.Int64("user_id", user.ID))
	return user, nil
}

// Login returns a signed token. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Login")
	defer span.End()

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", fmt.Errorf("%w: email and password are required", models.ErrInvalidInput)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return "", models.ErrUnauthorized
	}
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("Rejected login", zap.Int64("user_id", user.ID))
		return "", models.ErrUnauthorized
	}

	return s.issuer.Issue(user.ID, user.Role)
}

// ChangePassword replaces the user's password. Every token issued before
// the change stops verifying; the returned token is issued after it.
func (s *AccountService) ChangePassword(ctx context.Context, userID int64, current, next string) (string, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.ChangePassword")
	defer span.End()

	if err := validatePassword(next); err != nil {
		return "", err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return "", models.ErrUnauthorized
	}
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return "", models.ErrUnauthorized
	}

	hash, err := HashPassword(next)
	if err != nil {
		return "", err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return "", err
	}

	s.logger.Info("Password changed", zap.Int64("user_id", userID))
	return s.issuer.Issue(user.ID, user.Role)
}
