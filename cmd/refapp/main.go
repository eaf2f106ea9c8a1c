// Command refapp serves the DroneDeals or MyTheater reference application
// the browser suites run against.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuitang/crud-e2e/internal/config"
	"github.com/kuitang/crud-e2e/internal/db"
	"github.com/kuitang/crud-e2e/internal/drones"
	"github.com/kuitang/crud-e2e/internal/obs"
	"github.com/kuitang/crud-e2e/internal/theater"
)

const shutdownTimeout = 10 * time.Second

type flags struct {
	addr          string
	dbPath        string
	logLevel      string
	secureCookies bool
}

// app is a built reference application and its cleanup.
type app struct {
	handler http.Handler
	close   func()
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   "refapp",
		Short: "Serve a reference application for the CRUD browser suites",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			obs.Init()
			obs.SetLevel(obs.ParseLevel(f.logLevel))
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&f.addr, "addr", "", "listen address (default $LISTEN_ADDR or :3000)")
	root.PersistentFlags().StringVar(&f.dbPath, "db", "", "SQLite database path (default $DATABASE_PATH or a temporary database)")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", os.Getenv("LOG_LEVEL"), "log level: debug, info, warn, error")

	dronesCmd := &cobra.Command{
		Use:   "drones",
		Short: "Serve DroneDeals, the server-rendered drone marketplace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), "drones", f, buildDrones)
		},
	}
	dronesCmd.Flags().BoolVar(&f.secureCookies, "secure-cookies", false, "mark the session cookie Secure (serve behind TLS)")

	theaterCmd := &cobra.Command{
		Use:   "theater",
		Short: "Serve MyTheater, the single-page event listing over a JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), "theater", f, buildTheater)
		},
	}

	root.AddCommand(dronesCmd, theaterCmd)
	return root
}

type builder func(database *db.DB, cfg *config.ServerConfig, f *flags) (*app, error)

func buildDrones(database *db.DB, cfg *config.ServerConfig, f *flags) (*app, error) {
	a, err := drones.New(database, drones.Options{
		SessionDuration: cfg.SessionDuration,
		RateLimit:       cfg.RateLimitConfig,
		SecureCookies:   f.secureCookies,
	})
	if err != nil {
		return nil, err
	}
	return &app{handler: a.Handler(), close: a.Close}, nil
}

func buildTheater(database *db.DB, cfg *config.ServerConfig, _ *flags) (*app, error) {
	a, err := theater.New(database, theater.Options{
		SessionDuration: cfg.SessionDuration,
		RateLimit:       cfg.RateLimitConfig,
	})
	if err != nil {
		return nil, err
	}
	return &app{handler: a.Handler(), close: a.Close}, nil
}

func openDB(name, path string) (*db.DB, error) {
	if name == "drones" {
		return drones.OpenDB(path)
	}
	return theater.OpenDB(path)
}

func run(ctx context.Context, name string, f *flags, build builder) error {
	logger := obs.Pkg("refapp").With("app", name)

	cfg, err := config.LoadServerConfig(f.addr)
	if err != nil {
		return err
	}
	if f.dbPath != "" {
		cfg.DatabasePath = f.dbPath
	}

	database, err := openDB(name, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	a, err := build(database, cfg, f)
	if err != nil {
		return fmt.Errorf("build %s: %w", name, err)
	}
	defer a.close()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("listening", "addr", ln.Addr().String(), "database", database.Path())
	return serve(ctx, ln, a.handler)
}

// serve runs an HTTP server on ln until ctx is done, then shuts it down
// gracefully.
func serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	logger := obs.Pkg("refapp")
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("stopped")
	return nil
}
