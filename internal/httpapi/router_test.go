package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vitadrop/vitaauth"
	"github.com/vitadrop/vitaauth/internal/logging"
	"github.com/vitadrop/vitaauth/metrics/export/prometheus"
	"github.com/vitadrop/vitaauth/middleware"
	"github.com/vitadrop/vitaauth/tokenstore"
	"github.com/vitadrop/vitaauth/userstore"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	srv   *httptest.Server
	clock *testClock
	users *userstore.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	users := userstore.NewMemoryStore(userstore.WithClock(clock.Now))

	cfg := vitaauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.BcryptCost = 4
	cfg.Session.CookieSecure = false

	engine, err := vitaauth.New().
		WithConfig(cfg).
		WithUserProvider(users).
		WithTokenStore(tokenstore.NewMemoryStore(tokenstore.WithClock(clock.Now))).
		WithClock(clock.Now).
		WithLogger(logging.Discard().Slog()).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	srv := httptest.NewServer(NewRouter(engine, Options{
		Prefix:  "/api/users",
		Logger:  logging.Discard().Slog(),
		Metrics: prometheus.NewExporter(engine).Handler(),
	}))
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, clock: clock, users: users}
}

type call struct {
	method  string
	path    string
	token   string
	body    any
	cookies []*http.Cookie
}

func (f *fixture) do(t *testing.T, c call) (*http.Response, map[string]any) {
	t.Helper()

	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(c.method, f.srv.URL+c.path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func cookieNamed(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func registerBody(email string) map[string]any {
	return map[string]any{
		"fullName":   "Rahim Uddin",
		"email":      email,
		"password":   "secret1",
		"bloodGroup": "O+",
		"location":   map[string]string{"division": "Dhaka", "district": "Dhaka"},
	}
}

func (f *fixture) register(t *testing.T, email string) (string, *http.Cookie, string) {
	t.Helper()
	resp, body := f.do(t, call{method: http.MethodPost, path: "/api/users/register", body: registerBody(email)})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	user := body["user"].(map[string]any)
	return body["accessToken"].(string), cookieNamed(resp, "refreshToken"), user["id"].(string)
}

func TestRegisterSetsCookiesAndHidesHash(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, call{method: http.MethodPost, path: "/api/users/register", body: registerBody("A@X.com")})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, true, body["success"])
	require.NotEmpty(t, body["accessToken"])

	user := body["user"].(map[string]any)
	require.Equal(t, "a@x.com", user["email"])
	require.Equal(t, "donor", user["role"])
	require.NotContains(t, user, "passwordHash")
	require.NotContains(t, user, "PasswordHash")

	access := cookieNamed(resp, "accessToken")
	refresh := cookieNamed(resp, "refreshToken")
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	require.True(t, access.HttpOnly)
	require.True(t, refresh.HttpOnly)
	require.Equal(t, body["accessToken"], access.Value)
	require.Equal(t, int((15 * time.Minute).Seconds()), access.MaxAge)
	require.Equal(t, int((7 * 24 * time.Hour).Seconds()), refresh.MaxAge)
}

func TestRegisterConflictAndValidation(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com")

	resp, body := f.do(t, call{method: http.MethodPost, path: "/api/users/register", body: registerBody("a@x.com")})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, middleware.CodeAccountExists, body["code"])
	require.Equal(t, middleware.CodeAccountExists, resp.Header.Get(middleware.HeaderAuthError))

	bad := registerBody("b@x.com")
	bad["password"] = "123"
	bad["role"] = "admin"
	resp, body = f.do(t, call{method: http.MethodPost, path: "/api/users/register", body: bad})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	fields := body["fields"].(map[string]any)
	require.Contains(t, fields, "password")
	require.Contains(t, fields, "role")
}

func TestLoginFailureIsUniform(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com")

	for _, creds := range []loginRequest{
		{Email: "a@x.com", Password: "wrong-pass"},
		{Email: "nobody@x.com", Password: "secret1"},
	} {
		resp, body := f.do(t, call{method: http.MethodPost, path: "/api/users/login", body: creds})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, middleware.CodeInvalidCredentials, body["code"])
		require.Nil(t, cookieNamed(resp, "refreshToken"))
	}
}

func TestExpiredAccessRefreshesAndProfileSucceeds(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com")

	resp, body := f.do(t, call{method: http.MethodPost, path: "/api/users/login",
		body: loginRequest{Email: "a@x.com", Password: "secret1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	access := body["accessToken"].(string)
	refresh := cookieNamed(resp, "refreshToken")
	userID := body["user"].(map[string]any)["id"]

	resp, body = f.do(t, call{method: http.MethodGet, path: "/api/users/profile", token: access})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, userID, body["user"].(map[string]any)["id"])

	f.clock.Advance(16 * time.Minute)

	resp, body = f.do(t, call{method: http.MethodGet, path: "/api/users/profile", token: access})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, middleware.CodeTokenExpired, resp.Header.Get(middleware.HeaderAuthError))

	resp, body = f.do(t, call{method: http.MethodPost, path: "/api/users/refreshToken", cookies: []*http.Cookie{refresh}})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	fresh := body["accessToken"].(string)
	require.NotEqual(t, access, fresh)
	require.Equal(t, fresh, cookieNamed(resp, "accessToken").Value)
	require.Nil(t, cookieNamed(resp, "refreshToken"), "refresh cookie untouched without rotation")

	resp, body = f.do(t, call{method: http.MethodGet, path: "/api/users/profile", token: fresh})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, userID, body["user"].(map[string]any)["id"])
}

func TestProtectedRouteRejections(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, call{method: http.MethodGet, path: "/api/users/profile"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, middleware.CodeNoToken, resp.Header.Get(middleware.HeaderAuthError))

	resp, _ = f.do(t, call{method: http.MethodGet, path: "/api/users/profile", token: "not-a-jwt"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, middleware.CodeTokenMalformed, resp.Header.Get(middleware.HeaderAuthError))

	access, _, _ := f.register(t, "a@x.com")
	i := strings.LastIndex(access, ".") + 1
	swap := "A"
	if access[i:i+1] == "A" {
		swap = "B"
	}
	tampered := access[:i] + swap + access[i+1:]
	resp, _ = f.do(t, call{method: http.MethodGet, path: "/api/users/profile", token: tampered})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, middleware.CodeTokenBadSignature, resp.Header.Get(middleware.HeaderAuthError))
}

func TestLogoutRevokesRefresh(t *testing.T) {
	f := newFixture(t)
	access, refresh, _ := f.register(t, "a@x.com")

	resp, body := f.do(t, call{method: http.MethodPost, path: "/api/users/logout", token: access})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	cleared := cookieNamed(resp, "refreshToken")
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
	require.Negative(t, cleared.MaxAge)

	resp, body = f.do(t, call{method: http.MethodPost, path: "/api/users/refreshToken", cookies: []*http.Cookie{refresh}})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, middleware.CodeRefreshRevoked, body["code"])

	resp, _ = f.do(t, call{method: http.MethodPost, path: "/api/users/refreshToken"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, middleware.CodeNoToken, resp.Header.Get(middleware.HeaderAuthError))
}

func TestProfileUpdateAndAdminRoutes(t *testing.T) {
	f := newFixture(t)
	donorToken, _, donorID := f.register(t, "donor@x.com")
	_, _, otherID := f.register(t, "other@x.com")

	resp, _ := f.do(t, call{method: http.MethodPut, path: "/api/users/profile/" + otherID, token: donorToken,
		body: map[string]any{"fullName": "Someone Else"}})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := f.do(t, call{method: http.MethodPut, path: "/api/users/profile/" + donorID, token: donorToken,
		body: map[string]any{"fullName": "Karim Uddin", "phone": "+880 1711-000000"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.Equal(t, "Karim Uddin", body["user"].(map[string]any)["fullName"])

	resp, body = f.do(t, call{method: http.MethodGet, path: "/api/users/profile/" + otherID, token: donorToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "other@x.com", body["user"].(map[string]any)["email"])

	resp, _ = f.do(t, call{method: http.MethodGet, path: "/api/users/profile/missing", token: donorToken})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, call{method: http.MethodGet, path: "/api/users/all", token: donorToken})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	require.NoError(t, f.users.SetRole(otherID, vitaauth.RoleAdmin))
	resp, body = f.do(t, call{method: http.MethodPost, path: "/api/users/login",
		body: loginRequest{Email: "other@x.com", Password: "secret1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	adminToken := body["accessToken"].(string)

	resp, body = f.do(t, call{method: http.MethodGet, path: "/api/users/all", token: adminToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["users"], 2)

	resp, body = f.do(t, call{method: http.MethodPut, path: "/api/users/profile/" + donorID, token: adminToken,
		body: map[string]any{"bloodGroup": "AB-"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.Equal(t, "AB-", body["user"].(map[string]any)["bloodGroup"])
}

func TestSessionReportsVerifiedClaims(t *testing.T) {
	f := newFixture(t)
	access, _, id := f.register(t, "a@x.com")

	resp, body := f.do(t, call{method: http.MethodGet, path: "/api/users/session", token: access})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session := body["session"].(map[string]any)
	require.Equal(t, id, session["userId"])
	require.Equal(t, "donor", session["role"])
	require.Equal(t, "active", session["status"])

	require.NoError(t, f.users.SetStatus(id, vitaauth.StatusSuspended))
	resp, body = f.do(t, call{method: http.MethodGet, path: "/api/users/session", token: access})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "suspended", body["session"].(map[string]any)["status"])
}

func TestMetricsAndHealth(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com")

	resp, _ := f.do(t, call{method: http.MethodGet, path: "/health"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/metrics", nil)
	require.NoError(t, err)
	mresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer mresp.Body.Close()
	raw, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), "vitaauth_register_success_total 1")
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/users/login", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
