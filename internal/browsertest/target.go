package browsertest

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// Target returns externalURL when set. Otherwise it serves the handler
// built by start on a local test server closed when t finishes.
func Target(t *testing.T, externalURL string, start func(t *testing.T) http.Handler) string {
	t.Helper()

	if externalURL != "" {
		return externalURL
	}
	srv := httptest.NewServer(start(t))
	t.Cleanup(srv.Close)
	return srv.URL
}
