// Package drones is the DroneDeals reference application: a server-rendered
// drone marketplace with cookie sessions.
package drones

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kuitang/crud-e2e/internal/auth"
	"github.com/kuitang/crud-e2e/internal/db"
	"github.com/kuitang/crud-e2e/internal/obs"
	"github.com/kuitang/crud-e2e/internal/ratelimit"
)

// Options configures the application.
type Options struct {
	Hasher          auth.PasswordHasher // nil selects Argon2
	SessionDuration time.Duration
	RateLimit       ratelimit.Config
	SecureCookies   bool
}

// App wires the stores, sessions and templates behind one http.Handler.
type App struct {
	users    *auth.UserService
	sessions *auth.SessionService
	store    *Store
	renderer *Renderer
	limiter  *ratelimit.RateLimiter
	sweeper  *auth.Sweeper
	authMW   *auth.Middleware
	secure   bool
	logger   *slog.Logger
}

// OpenDB opens the DroneDeals database with all schemas applied.
func OpenDB(path string) (*db.DB, error) {
	return db.Open(path, db.AuthSchema, db.DronesSchema)
}

// New creates the application over database. Call Close to stop background
// work.
func New(database *db.DB, opts Options) (*App, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	if opts.RateLimit.RPS <= 0 {
		opts.RateLimit = ratelimit.DefaultConfig
	}

	a := &App{
		users:    auth.NewUserService(database, opts.Hasher),
		sessions: auth.NewSessionService(database, opts.SessionDuration),
		store:    NewStore(database),
		renderer: renderer,
		limiter:  ratelimit.NewRateLimiter(opts.RateLimit),
		secure:   opts.SecureCookies,
		logger:   obs.Pkg("drones"),
	}
	a.authMW = auth.NewMiddleware(a.sessions, auth.TokenFromCookie, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})
	a.sweeper = a.sessions.StartSweeper(auth.DefaultSweepInterval)
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

	limited := ratelimit.Middleware(a.limiter, a.limiter.ClientKey(), a.rateLimited)

	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /{$}", a.handleHome)

	mux.HandleFunc("GET /register", a.handleRegisterPage)
	mux.Handle("POST /register", limited(http.HandlerFunc(a.handleRegister)))
	mux.HandleFunc("GET /login", a.handleLoginPage)
	mux.Handle("POST /login", limited(http.HandlerFunc(a.handleLogin)))
	mux.HandleFunc("GET /logout", a.handleLogout)

	mux.HandleFunc("GET /catalog", a.handleCatalog)
	mux.HandleFunc("GET /catalog/{id}", a.handleDetails)
	mux.Handle("GET /create", a.authMW.RequireAuth(http.HandlerFunc(a.handleCreatePage)))
	mux.Handle("POST /create", a.authMW.RequireAuth(http.HandlerFunc(a.handleCreate)))
	mux.Handle("GET /catalog/{id}/edit", a.authMW.RequireAuth(http.HandlerFunc(a.handleEditPage)))
	mux.Handle("POST /catalog/{id}/edit", a.authMW.RequireAuth(http.HandlerFunc(a.handleEdit)))
	mux.Handle("POST /catalog/{id}/delete", a.authMW.RequireAuth(http.HandlerFunc(a.handleDelete)))

	mux.HandleFunc("/", a.handleNotFound)

	var h http.Handler = a.authMW.OptionalAuth(mux)
	h = obs.AccessLogMiddleware("drones", h)
	return obs.RequestContextMiddleware(h)
}
