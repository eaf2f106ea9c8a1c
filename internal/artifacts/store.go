// Package artifacts stores failure artifacts (screenshots, page HTML)
// captured by the browser suites, either in a local directory or in
// S3-compatible object storage.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kuitang/crud-e2e/internal/config"
)

// Store persists one artifact under key and returns where it ended up.
type Store interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Key builds "<run-id>/<test-name>/<file>". Subtest separators in the test
// name become path segments; other unsafe characters are replaced by "_".
func Key(runID, testName, file string) string {
	parts := []string{sanitize(runID)}
	for _, seg := range strings.Split(testName, "/") {
		if s := sanitize(seg); s != "" {
			parts = append(parts, s)
		}
	}
	parts = append(parts, sanitize(file))
	return path.Join(parts...)
}

func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, "_")
	if s == "." || s == ".." {
		return "_"
	}
	return s
}

// DirStore writes artifacts below a local directory.
type DirStore struct {
	Root string
}

// Upload writes body to Root/key, creating parent directories.
func (d DirStore) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	dest := filepath.Join(d.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("artifacts: create dir for %q: %w", key, err)
	}
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return "", fmt.Errorf("artifacts: write %q: %w", key, err)
	}
	return dest, nil
}

// MultiStore uploads to every store and returns the first location. All
// stores are attempted even if one fails.
type MultiStore []Store

func (m MultiStore) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	var first string
	var errs []error
	for _, s := range m {
		loc, err := s.Upload(ctx, key, body, contentType)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if first == "" {
			first = loc
		}
	}
	if len(errs) > 0 {
		return first, errors.Join(errs...)
	}
	return first, nil
}

// FromConfig returns the directory store for cfg.ArtifactsDir, combined with
// an S3 store when cfg.ArtifactsBucket is set.
func FromConfig(ctx context.Context, cfg *config.SuiteConfig) (Store, error) {
	dir := DirStore{Root: cfg.ArtifactsDir}
	if cfg.ArtifactsBucket == "" {
		return dir, nil
	}
	remote, err := NewS3Store(ctx, s3ConfigFrom(cfg))
	if err != nil {
		return nil, err
	}
	return MultiStore{dir, remote}, nil
}

// s3ConfigFrom maps suite settings to an S3Config. Custom endpoints are
// S3-compatible servers, which want path-style addressing and accept the
// "auto" region.
func s3ConfigFrom(cfg *config.SuiteConfig) S3Config {
	out := S3Config{
		Endpoint: cfg.AWSEndpointS3,
		Region:   cfg.AWSRegion,
		Bucket:   cfg.ArtifactsBucket,
	}
	if out.Endpoint != "" {
		out.UsePathStyle = true
		if out.Region == "" {
			out.Region = "auto"
		}
	}
	return out
}
