package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware_RequireAndOptionalAuth(t *testing.T) {
	users, sessions, _ := newTestSessions(t)
	ctx := context.Background()

	user, err := users.Register(ctx, "abv42@abv.bg", "123456", "123456")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	token, err := sessions.Create(ctx, user.ID)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var seenUser, seenToken string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = GetUserID(r.Context())
		seenToken = GetToken(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	mw := NewMiddleware(sessions, TokenFromHeader, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mw.RequireAuth(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(AuthorizationHeader, token)
	rec = httptest.NewRecorder()
	mw.RequireAuth(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with token, got %d", rec.Code)
	}
	if seenUser != user.ID || seenToken != token {
		t.Fatalf("context mismatch: user=%q token=%q", seenUser, seenToken)
	}

	seenUser = "unset"
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(AuthorizationHeader, "bogus")
	rec = httptest.NewRecorder()
	mw.OptionalAuth(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seenUser != "" {
		t.Fatalf("optional auth with bad token: code=%d user=%q", rec.Code, seenUser)
	}
}

func TestMiddleware_CustomUnauthorized(t *testing.T) {
	_, sessions, _ := newTestSessions(t)

	redirect := func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
	mw := NewMiddleware(sessions, TokenFromCookie, redirect)

	rec := httptest.NewRecorder()
	mw.RequireAuth(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/create", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}
