package browsertest

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/tidwall/gjson"

	"github.com/kuitang/crud-e2e/internal/logutil"
)

// maxLoggedBody caps the response body preview in debug logs.
const maxLoggedBody = 2048

// ResponseMatch selects the response an action is expected to produce.
type ResponseMatch struct {
	URLContains string
	Status      int    // zero matches any status
	Method      string // empty matches any method
}

func (m ResponseMatch) matches(url, method string, status int) bool {
	if !strings.Contains(url, m.URLContains) {
		return false
	}
	if m.Status != 0 && status != m.Status {
		return false
	}
	return m.Method == "" || strings.EqualFold(m.Method, method)
}

func (m ResponseMatch) String() string {
	method := m.Method
	if method == "" {
		method = "*"
	}
	status := "any"
	if m.Status != 0 {
		status = strconv.Itoa(m.Status)
	}
	return fmt.Sprintf("%s *%s* -> %s", method, m.URLContains, status)
}

// CapturedResponse is a network response captured while an action ran.
type CapturedResponse struct {
	URL         string
	Method      string
	Status      int
	Ok          bool
	ContentType string
	Body        []byte

	RequestHeaders map[string]string
	Headers        map[string]string
}

// logAttrs renders the capture for debug logs with credentials redacted.
func (c *CapturedResponse) logAttrs() []any {
	return []any{
		"method", c.Method,
		"url", c.URL,
		"status", c.Status,
		"request_headers", logutil.RedactHeaders(c.RequestHeaders),
		"response_headers", logutil.RedactHeaders(c.Headers),
		"body", logutil.FormatBody(c.ContentType, c.Body, maxLoggedBody),
	}
}

// Field looks up a gjson path in the JSON body.
func (c *CapturedResponse) Field(path string) gjson.Result {
	return gjson.GetBytes(c.Body, path)
}

// RequireFields fails t unless every path in want exists in the body with
// the given string value. All mismatches are reported together.
func (c *CapturedResponse) RequireFields(t testing.TB, want map[string]string) {
	t.Helper()

	if !gjson.ValidBytes(c.Body) {
		t.Fatalf("%s %s: body is not JSON: %s", c.Method, c.URL, logutil.Truncate(string(c.Body), 200))
	}
	if mismatches := c.fieldMismatches(want); len(mismatches) > 0 {
		t.Fatalf("%s %s: unexpected JSON fields:\n  %s", c.Method, c.URL, strings.Join(mismatches, "\n  "))
	}
}

func (c *CapturedResponse) fieldMismatches(want map[string]string) []string {
	paths := make([]string, 0, len(want))
	for path := range want {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var mismatches []string
	for _, path := range paths {
		got := c.Field(path)
		switch {
		case !got.Exists():
			mismatches = append(mismatches, fmt.Sprintf("%s: missing, want %q", path, want[path]))
		case got.String() != want[path]:
			mismatches = append(mismatches, fmt.Sprintf("%s: got %q, want %q", path, got.String(), want[path]))
		}
	}
	return mismatches
}

// ExpectJSONResponse runs action and waits for a response matching m.
// The test fails if action fails or no matching response arrives in time.
func (f *Fixture) ExpectJSONResponse(m ResponseMatch, action func() error) *CapturedResponse {
	f.T.Helper()

	resp, err := f.Page.ExpectResponse(func(r playwright.Response) bool {
		return m.matches(r.URL(), r.Request().Method(), r.Status())
	}, action)
	if err != nil {
		f.fail("expected response %s: %v", m, err)
	}

	headers := resp.Headers()
	captured := &CapturedResponse{
		URL:            resp.URL(),
		Method:         resp.Request().Method(),
		Status:         resp.Status(),
		Ok:             resp.Ok(),
		ContentType:    headers["content-type"],
		RequestHeaders: resp.Request().Headers(),
		Headers:        headers,
	}
	if captured.Status != http.StatusNoContent {
		body, err := resp.Body()
		if err != nil {
			f.fail("reading body of %s %s: %v", captured.Method, captured.URL, err)
		}
		captured.Body = body
	}

	f.logger.Debug("response captured", captured.logAttrs()...)
	return captured
}
