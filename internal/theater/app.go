// Package theater is the MyTheater reference application: a single-page
// client over a JSON users/data API.
package theater

import (
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/kuitang/crud-e2e/internal/auth"
	"github.com/kuitang/crud-e2e/internal/db"
	"github.com/kuitang/crud-e2e/internal/errs"
	"github.com/kuitang/crud-e2e/internal/obs"
	"github.com/kuitang/crud-e2e/internal/ratelimit"
)

//go:embed static
var staticFS embed.FS

// spaRoutes are client-side routes that all serve index.html.
var spaRoutes = []string{
	"GET /{$}",
	"GET /login",
	"GET /register",
	"GET /create",
	"GET /profile",
	"GET /details/{id}",
	"GET /edit/{id}",
}

// Options configures the application.
type Options struct {
	Hasher          auth.PasswordHasher // nil selects Argon2
	SessionDuration time.Duration
	RateLimit       ratelimit.Config
}

// App serves the SPA and its API.
type App struct {
	api     *Handler
	limiter *ratelimit.RateLimiter
	sweeper *auth.Sweeper
	authMW  *auth.Middleware
	static  fs.FS
}

// OpenDB opens the MyTheater database with all schemas applied.
func OpenDB(path string) (*db.DB, error) {
	return db.Open(path, db.AuthSchema, db.TheatersSchema)
}

// New creates the application over database. Call Close to stop background
// work.
func New(database *db.DB, opts Options) (*App, error) {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}
	if opts.RateLimit.RPS <= 0 {
		opts.RateLimit = ratelimit.DefaultConfig
	}

	a := &App{
		api: &Handler{
			users:    auth.NewUserService(database, opts.Hasher),
			sessions: auth.NewSessionService(database, opts.SessionDuration),
			store:    NewStore(database),
			logger:   obs.Pkg("theater"),
		},
		limiter: ratelimit.NewRateLimiter(opts.RateLimit),
		static:  static,
	}
	a.authMW = auth.NewMiddleware(a.api.sessions, auth.TokenFromHeader, a.unauthorized)
	a.sweeper = a.api.sessions.StartSweeper(auth.DefaultSweepInterval)
	return a, nil
}

// Close stops the rate limiter cleanup and the session sweeper.
func (a *App) Close() {
	a.limiter.Stop()
	a.sweeper.Stop()
}

// Handler returns the application's routes wrapped in request logging.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	limited := ratelimit.Middleware(a.limiter, a.limiter.ClientKey(), func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Code: errs.RateLimited, Message: "Too many requests"})
	})
	a.api.RegisterRoutes(mux, a.authMW.RequireAuth, limited)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	for _, route := range spaRoutes {
		mux.HandleFunc(route, a.serveIndex)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(a.static)))

	h := obs.AccessLogMiddleware("theater", mux)
	return obs.RequestContextMiddleware(h)
}

func (a *App) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFileFS(w, r, a.static, "index.html")
}

func (a *App) unauthorized(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.TokenFromHeader(r); err != nil {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Code: errs.Unauthenticated, Message: "Unauthorized"})
		return
	}
	writeJSON(w, http.StatusForbidden, ErrorResponse{Code: errs.PermissionDenied, Message: "Invalid access token"})
}
