// Package auth implements accounts, sessions and password hashing for the
// reference applications.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/crud-e2e/internal/db"
	"github.com/kuitang/crud-e2e/internal/obs"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// Errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidEmail       = errors.New("email is invalid")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordMismatch   = errors.New("passwords don't match")
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// User represents a user account.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// UserService handles account registration and login.
type UserService struct {
	db     *sql.DB
	hasher PasswordHasher
	clock  Clock
}

// NewUserService creates a user service over a database opened with
// db.AuthSchema. A nil hasher selects Argon2Hasher.
func NewUserService(database *db.DB, hasher PasswordHasher) *UserService {
	if hasher == nil {
		hasher = Argon2Hasher{}
	}
	return &UserService{
		db:     database.SQL(),
		hasher: hasher,
		clock:  realClock{},
	}
}

// SetClock replaces the clock used by the service. Intended for testing.
func (s *UserService) SetClock(c Clock) {
	s.clock = c
}

// ValidateRegistration checks email format, password strength and that the
// confirmation matches, in that order.
func ValidateRegistration(email, password, confirm string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return err
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}

// ValidateEmail performs a minimal local@domain check.
func ValidateEmail(email string) error {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" || domain == "" || strings.ContainsAny(domain, "@ ") {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePasswordStrength checks if a password meets minimum requirements.
func ValidatePasswordStrength(password string) error {
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// Register creates a new account. Returns ErrAccountExists when the email
// is already registered (case-insensitive).
func (s *UserService) Register(ctx context.Context, email, password, confirm string) (*User, error) {
	email = strings.TrimSpace(email)
	if err := ValidateRegistration(email, password, confirm); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: s.clock.Now().UTC().Truncate(time.Millisecond),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Email, passwordHash, user.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	obs.From(ctx).With("pkg", "auth").Debug("user_registered", "user_id", user.ID)
	return user, nil
}

// Login verifies email/password credentials. Returns ErrInvalidCredentials
// when the account doesn't exist or the password is wrong.
func (s *UserService) Login(ctx context.Context, email, password string) (*User, error) {
	var (
		user         User
		passwordHash string
		createdAt    int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`,
		strings.TrimSpace(email)).Scan(&user.ID, &user.Email, &passwordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	if !s.hasher.VerifyPassword(password, passwordHash) {
		return nil, ErrInvalidCredentials
	}

	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &user, nil
}

// GetByID loads a user by ID.
func (s *UserService) GetByID(ctx context.Context, id string) (*User, error) {
	var (
		user      User
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, created_at FROM users WHERE id = ?`, id).Scan(&user.ID, &user.Email, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &user, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
