// Package config loads configuration for the browser suites and the
// reference application server from environment variables, validates it,
// and provides the defaults the suites were written against.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/crud-e2e/internal/ratelimit"
)

const (
	defaultListenAddr     = ":3000"
	defaultBrowser        = "chromium"
	defaultBrowserTimeout = 5 * time.Second
	defaultArtifactsDir   = "test-artifacts"
)

// Browsers lists the browser engines playwright can drive.
var Browsers = []string{"chromium", "firefox", "webkit"}

// SuiteConfig holds the configuration of a browser suite run.
type SuiteConfig struct {
	// Targets. Empty means serve the in-process reference app.
	DronesBaseURL  string // DRONES_BASE_URL
	TheaterBaseURL string // THEATER_BASE_URL

	// Browser
	Headless       bool          // HEADLESS (default true)
	SlowMo         time.Duration // SLOW_MO, milliseconds
	Browser        string        // BROWSER
	BrowserTimeout time.Duration // BROWSER_TIMEOUT
	Install        bool          // PLAYWRIGHT_INSTALL: download the driver and browser on start

	// Failure artifacts
	ArtifactsDir    string // ARTIFACTS_DIR
	ArtifactsBucket string // ARTIFACTS_BUCKET, uploads go to S3 when set
	AWSEndpointS3   string // AWS_ENDPOINT_URL_S3, empty uses AWS S3
	AWSRegion       string // AWS_REGION, empty uses the SDK default chain
	RunID           string // RUN_ID, prefix of artifact keys
}

// ServerConfig holds the configuration of a reference application server.
type ServerConfig struct {
	ListenAddr      string        // LISTEN_ADDR
	DatabasePath    string        // DATABASE_PATH, empty means a temporary database
	SessionDuration time.Duration // SESSION_DURATION
	RateLimitConfig ratelimit.Config

	invalidProxies []string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// LoadSuiteConfig loads the suite configuration from the environment.
func LoadSuiteConfig() (*SuiteConfig, error) {
	cfg := &SuiteConfig{
		DronesBaseURL:   strings.TrimRight(strings.TrimSpace(os.Getenv("DRONES_BASE_URL")), "/"),
		TheaterBaseURL:  strings.TrimRight(strings.TrimSpace(os.Getenv("THEATER_BASE_URL")), "/"),
		Headless:        parseBoolOrDefault("HEADLESS", true),
		SlowMo:          time.Duration(parseIntOrDefault("SLOW_MO", 0)) * time.Millisecond,
		Browser:         strings.ToLower(getEnvOrDefault("BROWSER", defaultBrowser)),
		BrowserTimeout:  parseDurationOrDefault("BROWSER_TIMEOUT", defaultBrowserTimeout),
		Install:         parseBoolOrDefault("PLAYWRIGHT_INSTALL", false),
		ArtifactsDir:    getEnvOrDefault("ARTIFACTS_DIR", defaultArtifactsDir),
		ArtifactsBucket: strings.TrimSpace(os.Getenv("ARTIFACTS_BUCKET")),
		AWSEndpointS3:   strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3")),
		AWSRegion:       strings.TrimSpace(os.Getenv("AWS_REGION")),
		RunID:           getEnvOrDefault("RUN_ID", time.Now().UTC().Format("20060102T150405Z")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the suite configuration.
func (c *SuiteConfig) Validate() error {
	var errs []string

	if !isKnownBrowser(c.Browser) {
		errs = append(errs, fmt.Sprintf("BROWSER must be one of %s, got %q", strings.Join(Browsers, ", "), c.Browser))
	}
	if c.BrowserTimeout <= 0 {
		errs = append(errs, "BROWSER_TIMEOUT must be positive")
	}
	if c.SlowMo < 0 {
		errs = append(errs, "SLOW_MO must not be negative")
	}
	for name, u := range map[string]string{"DRONES_BASE_URL": c.DronesBaseURL, "THEATER_BASE_URL": c.TheaterBaseURL} {
		if u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			errs = append(errs, name+" must be an http(s) URL")
		}
	}
	if c.AWSEndpointS3 != "" && !strings.HasPrefix(c.AWSEndpointS3, "http://") && !strings.HasPrefix(c.AWSEndpointS3, "https://") {
		errs = append(errs, "AWS_ENDPOINT_URL_S3 must be an http(s) URL")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// LoadServerConfig loads the server configuration from the environment.
// A non-empty addr overrides LISTEN_ADDR.
func LoadServerConfig(addr string) (*ServerConfig, error) {
	cfg := &ServerConfig{
		ListenAddr:      getEnvOrDefault("LISTEN_ADDR", defaultListenAddr),
		DatabasePath:    strings.TrimSpace(os.Getenv("DATABASE_PATH")),
		SessionDuration: parseDurationOrDefault("SESSION_DURATION", 24*time.Hour),
		RateLimitConfig: ratelimit.Config{
			RPS:             parseFloat64OrDefault("RATE_LIMIT_RPS", ratelimit.DefaultConfig.RPS),
			Burst:           parseIntOrDefault("RATE_LIMIT_BURST", ratelimit.DefaultConfig.Burst),
			CleanupInterval: parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", ratelimit.DefaultConfig.CleanupInterval),
		},
	}
	cfg.RateLimitConfig.TrustedProxies, cfg.invalidProxies = parsePrefixList(os.Getenv("TRUSTED_PROXIES"))
	if addr != "" {
		cfg.ListenAddr = addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	var errs []string

	if c.ListenAddr == "" {
		errs = append(errs, "LISTEN_ADDR must not be empty")
	}
	if c.SessionDuration <= 0 {
		errs = append(errs, "SESSION_DURATION must be positive")
	}
	if c.RateLimitConfig.RPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitConfig.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}
	for _, entry := range c.invalidProxies {
		errs = append(errs, fmt.Sprintf("TRUSTED_PROXIES entry %q is not an IP or CIDR", entry))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// parsePrefixList parses a comma separated list of CIDRs and bare IPs.
func parsePrefixList(value string) ([]netip.Prefix, []string) {
	var prefixes []netip.Prefix
	var invalid []string
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if p, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		invalid = append(invalid, entry)
	}
	return prefixes, invalid
}

func isKnownBrowser(name string) bool {
	for _, b := range Browsers {
		if b == name {
			return true
		}
	}
	return false
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
