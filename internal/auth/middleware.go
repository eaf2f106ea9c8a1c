package auth

import (
	"context"
	"net/http"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	tokenKey  contextKey = "token"
)

// TokenExtractor reads a session token from a request.
type TokenExtractor func(r *http.Request) (string, error)

// Middleware provides authentication middleware for HTTP handlers.
type Middleware struct {
	sessions     *SessionService
	extract      TokenExtractor
	unauthorized http.HandlerFunc
}

// NewMiddleware creates auth middleware. unauthorized writes the response
// for requests without a valid session; nil writes a plain 401.
func NewMiddleware(sessions *SessionService, extract TokenExtractor, unauthorized http.HandlerFunc) *Middleware {
	if unauthorized == nil {
		unauthorized = func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		}
	}
	return &Middleware{sessions: sessions, extract: extract, unauthorized: unauthorized}
}

// RequireAuth is middleware that requires a valid session.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, ok := m.authenticate(r)
		if !ok {
			m.unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth adds the user to the context when a valid session is present
// and continues either way.
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ctx, ok := m.authenticate(r); ok {
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) authenticate(r *http.Request) (context.Context, bool) {
	token, err := m.extract(r)
	if err != nil {
		return nil, false
	}
	userID, err := m.sessions.Validate(r.Context(), token)
	if err != nil {
		return nil, false
	}
	ctx := context.WithValue(r.Context(), userIDKey, userID)
	ctx = context.WithValue(ctx, tokenKey, token)
	return ctx, true
}

// GetUserID retrieves the user ID from the request context.
// Returns empty string if no user is authenticated.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

// GetToken retrieves the validated session token from the request context.
func GetToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

// IsAuthenticated checks if the context has an authenticated user.
func IsAuthenticated(ctx context.Context) bool {
	return GetUserID(ctx) != ""
}
