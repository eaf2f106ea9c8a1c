package drones

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/crud-e2e/internal/auth"
	"github.com/kuitang/crud-e2e/internal/ratelimit"
)

type testServer struct {
	*httptest.Server
	app *App
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	database, err := OpenDB("")
	require.NoError(t, err)
	if opts.Hasher == nil {
		opts.Hasher = auth.FakeInsecureHasher{}
	}
	app, err := New(database, opts)
	require.NoError(t, err)

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		srv.Close()
		app.Close()
		database.Close()
	})
	return &testServer{Server: srv, app: app}
}

// browserClient keeps cookies and follows redirects like a browser.
func (s *testServer) browserClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

type page struct {
	Status int
	Path   string
	Body   string
}

func do(t *testing.T, c *http.Client, method, target string, form url.Values) page {
	t.Helper()
	var resp *http.Response
	var err error
	if method == http.MethodPost {
		resp, err = c.PostForm(target, form)
	} else {
		resp, err = c.Get(target)
	}
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return page{Status: resp.StatusCode, Path: resp.Request.URL.Path, Body: string(body)}
}

func navLinks(body string) []string {
	start := strings.Index(body, "<nav>")
	end := strings.Index(body, "</nav>")
	if start < 0 || end < start {
		return nil
	}
	re := regexp.MustCompile(`>([^<>]+)</a>`)
	var out []string
	for _, m := range re.FindAllStringSubmatch(body[start:end], -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

func register(t *testing.T, s *testServer, c *http.Client, email string) page {
	t.Helper()
	return do(t, c, http.MethodPost, s.URL+"/register", url.Values{
		"email": {email}, "password": {"123456"}, "rePassword": {"123456"},
	})
}

func createDrone(t *testing.T, s *testServer, c *http.Client, model string) page {
	t.Helper()
	in := validInput()
	return do(t, c, http.MethodPost, s.URL+"/create", url.Values{
		"model": {model}, "imageUrl": {in.ImageURL}, "price": {in.Price}, "weight": {in.Weight},
		"phone": {in.Phone}, "condition": {in.Condition}, "description": {in.Description},
	})
}

var detailsLink = regexp.MustCompile(`href="/catalog/([0-9a-f-]{36})">Details</a>`)

func TestNavigation_GuestAndUser(t *testing.T) {
	s := newTestServer(t, Options{})
	c := s.browserClient(t)

	home := do(t, c, http.MethodGet, s.URL+"/", nil)
	require.Equal(t, http.StatusOK, home.Status)
	assert.Equal(t, []string{"DroneDeals", "Marketplace", "Login", "Register"}, navLinks(home.Body))

	got := register(t, s, c, "user_1@abv.bg")
	require.Equal(t, http.StatusOK, got.Status)
	assert.Equal(t, "/", got.Path)
	assert.Equal(t, []string{"DroneDeals", "Marketplace", "Sell", "Logout"}, navLinks(got.Body))

	out := do(t, c, http.MethodGet, s.URL+"/logout", nil)
	assert.Equal(t, "/", out.Path)
	assert.Contains(t, navLinks(out.Body), "Login")

	in := do(t, c, http.MethodPost, s.URL+"/login", url.Values{"email": {"user_1@abv.bg"}, "password": {"123456"}})
	assert.Equal(t, "/", in.Path)
	assert.Contains(t, navLinks(in.Body), "Logout")
}

func TestRegisterForm_InputOrder(t *testing.T) {
	s := newTestServer(t, Options{})
	body := do(t, s.browserClient(t), http.MethodGet, s.URL+"/register", nil).Body

	names := regexp.MustCompile(`<input[^>]*name="([^"]+)"`).FindAllStringSubmatch(body, -1)
	require.Len(t, names, 3)
	assert.Equal(t, "email", names[0][1])
	assert.Equal(t, "password", names[1][1])
	assert.Equal(t, "rePassword", names[2][1])
}

func TestRegister_Rejections(t *testing.T) {
	s := newTestServer(t, Options{})
	c := s.browserClient(t)

	require.Equal(t, "/", register(t, s, c, "dup@abv.bg").Path)
	do(t, c, http.MethodGet, s.URL+"/logout", nil)

	dup := register(t, s, c, "dup@abv.bg")
	assert.Equal(t, http.StatusConflict, dup.Status)
	assert.Contains(t, dup.Body, "already exists")

	mismatch := do(t, c, http.MethodPost, s.URL+"/register", url.Values{
		"email": {"new@abv.bg"}, "password": {"123456"}, "rePassword": {"654321"},
	})
	assert.Equal(t, http.StatusBadRequest, mismatch.Status)
	assert.Contains(t, mismatch.Body, "Passwords don&#39;t match.")
	assert.Contains(t, mismatch.Body, `value="new@abv.bg"`)

	weak := do(t, c, http.MethodPost, s.URL+"/register", url.Values{
		"email": {"new@abv.bg"}, "password": {"123"}, "rePassword": {"123"},
	})
	assert.Equal(t, http.StatusBadRequest, weak.Status)

	bad := do(t, c, http.MethodPost, s.URL+"/login", url.Values{"email": {"dup@abv.bg"}, "password": {"nope12"}})
	assert.Equal(t, http.StatusUnauthorized, bad.Status)
	assert.Contains(t, bad.Body, "Invalid email or password.")
}

func TestCreate_RequiresLogin(t *testing.T) {
	s := newTestServer(t, Options{})
	got := do(t, s.browserClient(t), http.MethodGet, s.URL+"/create", nil)
	assert.Equal(t, "/login", got.Path)
}

func TestDroneLifecycle(t *testing.T) {
	s := newTestServer(t, Options{})
	c := s.browserClient(t)
	register(t, s, c, "seller@abv.bg")

	created := createDrone(t, s, c, "Drone_7")
	require.Equal(t, http.StatusOK, created.Status)
	assert.Equal(t, "/catalog", created.Path)
	assert.Contains(t, created.Body, "<h3>Drone_7</h3>")
	assert.Contains(t, created.Body, `<p class="excerpt">Test description</p>`)

	m := detailsLink.FindStringSubmatch(created.Body)
	require.NotNil(t, m, "catalog has no Details link")
	id := m[1]

	details := do(t, c, http.MethodGet, s.URL+"/catalog/"+id, nil)
	assert.Contains(t, details.Body, ">Edit</a>")
	assert.Contains(t, details.Body, `method="post" action="/catalog/`+id+`/delete"`)
	assert.Contains(t, details.Body, "return confirm(")
	assert.Contains(t, details.Body, "<p>Test description</p>")

	edited := do(t, c, http.MethodPost, s.URL+"/catalog/"+id+"/edit", url.Values{
		"model": {"Edited Drone Model"}, "imageUrl": {validInput().ImageURL}, "price": {"1500"}, "weight": {"1200"},
		"phone": {"0888888888"}, "condition": {"New"}, "description": {"Test description"},
	})
	assert.Equal(t, "/catalog/"+id, edited.Path)
	assert.Contains(t, edited.Body, "<h1>Edited Drone Model</h1>")

	viaLink := do(t, c, http.MethodGet, s.URL+"/catalog/"+id+"/delete", nil)
	assert.Equal(t, http.StatusNotFound, viaLink.Status, "GET must not delete")
	still := do(t, c, http.MethodGet, s.URL+"/catalog/"+id, nil)
	require.Equal(t, http.StatusOK, still.Status)

	deleted := do(t, c, http.MethodPost, s.URL+"/catalog/"+id+"/delete", url.Values{})
	assert.Equal(t, "/catalog", deleted.Path)
	assert.NotContains(t, deleted.Body, "Edited Drone Model")
	assert.Contains(t, deleted.Body, "No drones for sale yet.")

	gone := do(t, c, http.MethodGet, s.URL+"/catalog/"+id, nil)
	assert.Equal(t, http.StatusNotFound, gone.Status)
}

func TestCreate_InvalidInputRerendersForm(t *testing.T) {
	s := newTestServer(t, Options{})
	c := s.browserClient(t)
	register(t, s, c, "seller@abv.bg")

	got := do(t, c, http.MethodPost, s.URL+"/create", url.Values{"model": {"Drone_8"}, "price": {"0"}})
	assert.Equal(t, http.StatusBadRequest, got.Status)
	assert.Contains(t, got.Body, `data-field="price"`)
	assert.Contains(t, got.Body, `value="Drone_8"`)
}

func TestCreate_NonFinitePriceRerendersForm(t *testing.T) {
	s := newTestServer(t, Options{})
	c := s.browserClient(t)
	register(t, s, c, "seller@abv.bg")

	for _, value := range []string{"NaN", "Inf"} {
		in := validInput()
		got := do(t, c, http.MethodPost, s.URL+"/create", url.Values{
			"model": {"Drone_10"}, "imageUrl": {in.ImageURL}, "price": {value}, "weight": {value},
			"phone": {in.Phone}, "condition": {in.Condition}, "description": {in.Description},
		})
		assert.Equal(t, http.StatusBadRequest, got.Status, value)
		assert.Contains(t, got.Body, `data-field="price"`, value)
		assert.Contains(t, got.Body, `data-field="weight"`, value)
	}

	catalog := do(t, c, http.MethodGet, s.URL+"/catalog", nil)
	assert.Contains(t, catalog.Body, "No drones for sale yet.")
}

func TestOnlyOwnerCanChangeListing(t *testing.T) {
	s := newTestServer(t, Options{})
	seller := s.browserClient(t)
	register(t, s, seller, "seller@abv.bg")
	created := createDrone(t, s, seller, "Drone_9")
	id := detailsLink.FindStringSubmatch(created.Body)[1]

	other := s.browserClient(t)
	register(t, s, other, "buyer@abv.bg")

	details := do(t, other, http.MethodGet, s.URL+"/catalog/"+id, nil)
	assert.Equal(t, http.StatusOK, details.Status)
	assert.NotContains(t, details.Body, ">Edit</a>")

	assert.Equal(t, http.StatusForbidden, do(t, other, http.MethodGet, s.URL+"/catalog/"+id+"/edit", nil).Status)
	assert.Equal(t, http.StatusForbidden, do(t, other, http.MethodPost, s.URL+"/catalog/"+id+"/delete", url.Values{}).Status)
}

func TestLogin_RateLimited(t *testing.T) {
	s := newTestServer(t, Options{RateLimit: ratelimit.Config{RPS: 0.001, Burst: 2, CleanupInterval: time.Hour}})
	c := s.browserClient(t)

	form := url.Values{"email": {"nobody@abv.bg"}, "password": {"123456"}}
	do(t, c, http.MethodPost, s.URL+"/login", form)
	do(t, c, http.MethodPost, s.URL+"/login", form)
	got := do(t, c, http.MethodPost, s.URL+"/login", form)
	assert.Equal(t, http.StatusTooManyRequests, got.Status)
}

func TestHealthAndNotFound(t *testing.T) {
	s := newTestServer(t, Options{})
	c := s.browserClient(t)

	health := do(t, c, http.MethodGet, s.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, health.Status)
	assert.JSONEq(t, `{"status":"ok"}`, health.Body)

	assert.Equal(t, http.StatusNotFound, do(t, c, http.MethodGet, s.URL+"/nope", nil).Status)
}
