// Package browsertest drives a real browser through playwright-go for the
// CRUD end-to-end suites. A Suite owns one driver and one browser; each test
// gets an isolated Fixture (browser context plus page).
package browsertest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/crud-e2e/internal/artifacts"
	"github.com/kuitang/crud-e2e/internal/config"
	"github.com/kuitang/crud-e2e/internal/obs"
)

// Suite is the browser shared by every test of one suite.
type Suite struct {
	Name    string
	BaseURL string

	cfg     *config.SuiteConfig
	pw      *playwright.Playwright
	browser playwright.Browser
	store   artifacts.Store
	expect  playwright.PlaywrightAssertions
	logger  *slog.Logger

	closeOnce sync.Once
}

// StartSuite starts the playwright driver and launches the configured
// browser against baseURL. The test is skipped when playwright or the
// browser is not available. The suite is closed when t finishes.
func StartSuite(t *testing.T, name, baseURL string, cfg *config.SuiteConfig) *Suite {
	t.Helper()

	logger := obs.Pkg("browsertest").With("suite", name)

	if cfg.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{cfg.Browser}}); err != nil {
			t.Skip("Could not install playwright:", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		t.Skip("Playwright not available:", err)
	}

	browserType, err := selectBrowser(pw, cfg.Browser)
	if err != nil {
		_ = pw.Stop()
		t.Fatalf("%v", err)
	}
	browser, err := browserType.Launch(launchOptions(cfg))
	if err != nil {
		_ = pw.Stop()
		t.Skip("Could not launch browser:", err)
	}

	store, err := artifacts.FromConfig(context.Background(), cfg)
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		t.Fatalf("Failed to configure artifact store: %v", err)
	}

	s := &Suite{
		Name:    name,
		BaseURL: baseURL,
		cfg:     cfg,
		pw:      pw,
		browser: browser,
		store:   store,
		expect:  playwright.NewPlaywrightAssertions(timeoutMS(cfg)),
		logger:  logger,
	}
	t.Cleanup(s.Close)

	logger.Info("browser started",
		"browser", cfg.Browser,
		"headless", cfg.Headless,
		"slow_mo_ms", cfg.SlowMo.Milliseconds(),
		"base_url", baseURL,
	)
	return s
}

// Close closes the browser and stops the driver. Safe to call twice.
func (s *Suite) Close() {
	s.closeOnce.Do(func() {
		if err := s.browser.Close(); err != nil {
			s.logger.Warn("browser close failed", "error", err)
		}
		if err := s.pw.Stop(); err != nil {
			s.logger.Warn("playwright stop failed", "error", err)
		}
		s.logger.Info("browser stopped")
	})
}

func selectBrowser(pw *playwright.Playwright, name string) (playwright.BrowserType, error) {
	switch name {
	case "", "chromium":
		return pw.Chromium, nil
	case "firefox":
		return pw.Firefox, nil
	case "webkit":
		return pw.WebKit, nil
	default:
		return nil, fmt.Errorf("browsertest: unknown browser %q", name)
	}
}

func launchOptions(cfg *config.SuiteConfig) playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
	}
	if cfg.SlowMo > 0 {
		opts.SlowMo = playwright.Float(float64(cfg.SlowMo.Milliseconds()))
	}
	return opts
}

func timeoutMS(cfg *config.SuiteConfig) float64 {
	return float64(cfg.BrowserTimeout.Milliseconds())
}
