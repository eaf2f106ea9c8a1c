package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kuitang/crud-e2e/internal/db"
)

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
)

// Session configuration
const (
	DefaultSessionDuration = 24 * time.Hour
	SessionIDLength        = 32 // 256 bits
	SessionCookieName      = "session_id"

	// AuthorizationHeader carries the access token for the JSON API.
	AuthorizationHeader = "X-Authorization"
)

// SessionService handles session management. Tokens are stored as
// sha3(token, 256) and never persisted in plaintext.
type SessionService struct {
	db       *sql.DB
	duration time.Duration
	clock    Clock
}

// NewSessionService creates a new session service. A non-positive duration
// selects DefaultSessionDuration.
func NewSessionService(database *db.DB, duration time.Duration) *SessionService {
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	return &SessionService{
		db:       database.SQL(),
		duration: duration,
		clock:    realClock{},
	}
}

// SetClock replaces the clock used by the service. Intended for testing.
func (s *SessionService) SetClock(c Clock) {
	s.clock = c
}

// Duration returns how long new sessions stay valid.
func (s *SessionService) Duration() time.Duration {
	return s.duration
}

// Create creates a new session for a user and returns its token.
func (s *SessionService) Create(ctx context.Context, userID string) (string, error) {
	token, err := generateSessionID()
	if err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}

	now := s.clock.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (token_hash, user_id, expires_at, created_at) VALUES (sha3(?, 256), ?, ?, ?)`,
		token, userID, now.Add(s.duration).Unix(), now.Unix())
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	return token, nil
}

// Validate checks if a session is valid and returns the user ID.
func (s *SessionService) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrSessionNotFound
	}
	var userID string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM sessions WHERE token_hash = sha3(?, 256) AND expires_at > ?`,
		token, s.clock.Now().Unix()).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("get session: %w", err)
	}
	return userID, nil
}

// Delete removes a session (logout). Returns ErrSessionNotFound when the
// token does not name a live session.
func (s *SessionService) Delete(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = sha3(?, 256)`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Cleanup removes all expired sessions.
func (s *SessionService) Cleanup(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, s.clock.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Cookie helpers

// SetCookie sets the session cookie on the response.
func SetCookie(w http.ResponseWriter, token string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})
}

// ClearCookie removes the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// TokenFromCookie retrieves the session token from the request cookie.
func TokenFromCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrSessionNotFound
		}
		return "", err
	}
	if cookie.Value == "" {
		return "", ErrSessionNotFound
	}
	return cookie.Value, nil
}

// TokenFromHeader retrieves the access token from the X-Authorization header.
func TokenFromHeader(r *http.Request) (string, error) {
	token := strings.TrimSpace(r.Header.Get(AuthorizationHeader))
	if token == "" {
		return "", ErrSessionNotFound
	}
	return token, nil
}

func generateSessionID() (string, error) {
	bytes := make([]byte, SessionIDLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
