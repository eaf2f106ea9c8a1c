package browsertest

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/kuitang/crud-e2e/internal/config"
)

func TestNewCredentials_Shape(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.SampledFrom([]string{"user_", "abv"}).Draw(t, "prefix")
		creds := NewCredentials(prefix, "abv.bg")

		pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `[0-9]{1,4}@abv\.bg$`)
		if !pattern.MatchString(creds.Email) {
			t.Fatalf("email %q does not match %s", creds.Email, pattern)
		}
		if creds.Password != DefaultPassword || creds.ConfirmPassword != DefaultPassword {
			t.Fatalf("unexpected passwords %q/%q", creds.Password, creds.ConfirmPassword)
		}
	})
}

func TestRandomName(t *testing.T) {
	t.Parallel()

	pattern := regexp.MustCompile(`^Drone_[0-9]{1,4}$`)
	for i := 0; i < 100; i++ {
		if name := RandomName("Drone"); !pattern.MatchString(name) {
			t.Fatalf("RandomName = %q", name)
		}
	}
}

func TestSelectors(t *testing.T) {
	t.Parallel()

	cases := []struct{ got, want string }{
		{TextSelector("Edit"), `text="Edit"`},
		{TextSelector(`say "hi"`), `text="say \"hi\""`},
		{Nav("Create Event"), `nav >> text="Create Event"`},
		{Field("model"), `input[name="model"], #model`},
		{Field("description", "textarea", "input"), `textarea[name="description"], input[name="description"], #description`},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("selector = %s, want %s", tc.got, tc.want)
		}
	}
}

func TestResponseMatch(t *testing.T) {
	t.Parallel()

	m := ResponseMatch{URLContains: "/data/theaters", Status: http.StatusOK, Method: http.MethodPut}
	cases := []struct {
		url    string
		method string
		status int
		want   bool
	}{
		{"http://localhost:3000/data/theaters/abc", "PUT", 200, true},
		{"http://localhost:3000/data/theaters/abc", "put", 200, true},
		{"http://localhost:3000/data/theaters/abc", "GET", 200, false},
		{"http://localhost:3000/data/theaters/abc", "PUT", 403, false},
		{"http://localhost:3000/users/login", "PUT", 200, false},
	}
	for _, tc := range cases {
		if got := m.matches(tc.url, tc.method, tc.status); got != tc.want {
			t.Errorf("matches(%s %s %d) = %v, want %v", tc.method, tc.url, tc.status, got, tc.want)
		}
	}

	anyMethod := ResponseMatch{URLContains: "/users/logout", Status: http.StatusNoContent}
	if !anyMethod.matches("http://x/users/logout", "GET", 204) {
		t.Error("empty Method should match any method")
	}
	if got := anyMethod.String(); got != "* */users/logout* -> 204" {
		t.Errorf("String() = %q", got)
	}

	anyStatus := ResponseMatch{URLContains: "/users/register", Method: http.MethodPost}
	if !anyStatus.matches("http://x/users/register", "POST", 409) || !anyStatus.matches("http://x/users/register", "POST", 200) {
		t.Error("zero Status should match any status")
	}
	if got := anyStatus.String(); got != "POST */users/register* -> any" {
		t.Errorf("String() = %q", got)
	}
}

func TestCapturedResponse_Fields(t *testing.T) {
	t.Parallel()

	c := &CapturedResponse{
		URL:    "http://localhost:3000/users/register",
		Method: "POST",
		Status: http.StatusOK,
		Ok:     true,
		Body:   []byte(`{"email":"abv1@abv.bg","password":"123456","_id":"u1","_createdOn":1700000000000}`),
	}
	if got := c.Field("email").String(); got != "abv1@abv.bg" {
		t.Fatalf("Field(email) = %q", got)
	}
	if got := c.Field("_createdOn").Int(); got != 1700000000000 {
		t.Fatalf("Field(_createdOn) = %d", got)
	}

	if mismatches := c.fieldMismatches(map[string]string{"email": "abv1@abv.bg", "password": "123456"}); len(mismatches) != 0 {
		t.Fatalf("unexpected mismatches: %v", mismatches)
	}

	mismatches := c.fieldMismatches(map[string]string{"email": "other@abv.bg", "title": "x", "_id": "u1"})
	if len(mismatches) != 2 {
		t.Fatalf("mismatches = %v, want 2", mismatches)
	}
	if !strings.HasPrefix(mismatches[0], "email: got") || !strings.HasPrefix(mismatches[1], "title: missing") {
		t.Fatalf("mismatches not sorted by path: %v", mismatches)
	}
}

func TestCapturedResponse_LogAttrsRedactCredentials(t *testing.T) {
	t.Parallel()

	c := &CapturedResponse{
		URL:            "http://localhost:3000/users/login",
		Method:         "POST",
		Status:         http.StatusOK,
		ContentType:    "application/json",
		Body:           []byte(`{"email":"abv1@abv.bg","password":"123456","accessToken":"tok-in-body"}`),
		RequestHeaders: map[string]string{"x-authorization": "tok-in-header", "content-type": "application/json"},
		Headers:        map[string]string{"set-cookie": "session_id=tok-in-cookie", "content-type": "application/json"},
	}
	rendered := fmt.Sprint(c.logAttrs()...)
	for _, secret := range []string{"123456", "tok-in-body", "tok-in-header", "tok-in-cookie"} {
		if strings.Contains(rendered, secret) {
			t.Fatalf("log attrs leak %q: %s", secret, rendered)
		}
	}
	if !strings.Contains(rendered, "abv1@abv.bg") || !strings.Contains(rendered, `content-type="application/json"`) {
		t.Fatalf("log attrs dropped non-sensitive values: %s", rendered)
	}
}

func TestLaunchOptions(t *testing.T) {
	t.Parallel()

	opts := launchOptions(&config.SuiteConfig{Headless: true})
	if opts.Headless == nil || !*opts.Headless {
		t.Fatal("expected headless launch")
	}
	if opts.SlowMo != nil {
		t.Fatalf("SlowMo = %v, want unset", *opts.SlowMo)
	}

	opts = launchOptions(&config.SuiteConfig{Headless: false, SlowMo: 250 * time.Millisecond})
	if opts.Headless == nil || *opts.Headless {
		t.Fatal("expected headed launch")
	}
	if opts.SlowMo == nil || *opts.SlowMo != 250 {
		t.Fatalf("SlowMo = %v, want 250", opts.SlowMo)
	}
}

func TestTarget_External(t *testing.T) {
	started := false
	got := Target(t, "http://localhost:3000", func(*testing.T) http.Handler {
		started = true
		return http.NotFoundHandler()
	})
	if got != "http://localhost:3000" || started {
		t.Fatalf("Target = %q, started = %v", got, started)
	}
}

func TestTarget_InProcess(t *testing.T) {
	got := Target(t, "", func(*testing.T) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
	})
	resp, err := http.Get(got + "/")
	if err != nil {
		t.Fatalf("GET %s: %v", got, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
