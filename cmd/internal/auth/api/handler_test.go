package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"todolist/cmd/identity"
	"todolist/cmd/internal/auth/session"
	"todolist/cmd/security/password"
)

type testEnv struct {
	srv      *httptest.Server
	users    *identity.Service
	sessions *session.Manager
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, store session.Store) *testEnv {
	t.Helper()
	users, err := identity.NewService(identity.NewMemoryStore(), password.FastConfig())
	if err != nil {
		t.Fatalf("identity.NewService: %v", err)
	}
	if store == nil {
		store = session.NewMemoryStore()
	}
	sessions := session.NewManager(session.DefaultConfig(), store, nil)

	cfg := DefaultConfig()
	h, err := NewHandler(testLogger(), cfg, users, sessions)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	gate := NewGate(testLogger(), sessions, cfg)

	r := chi.NewRouter()
	r.Use(gate.Middleware)
	h.Mount(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, users: users, sessions: sessions}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any, tok string) (*http.Response, resultResponse) {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, strings.NewReader(string(b)))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: tok})
	}
	return e.do(t, req)
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) (*http.Response, resultResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(t, req)
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, resultResponse) {
	t.Helper()
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()
	var out resultResponse
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func (e *testEnv) get(t *testing.T, path, tok string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if tok != "" {
		req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: tok})
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer res.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func sessionCookie(res *http.Response) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == DefaultCookieName {
			return c
		}
	}
	return nil
}

func (e *testEnv) register(t *testing.T, username, pw string) {
	t.Helper()
	if _, err := e.users.Register(context.Background(), time.Now().UTC(), username, pw); err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
}

func (e *testEnv) login(t *testing.T, username, pw string) string {
	t.Helper()
	res, body := e.postJSON(t, "/login", map[string]any{"username": username, "password": pw}, "")
	if res.StatusCode != http.StatusOK || body.Result != resultSuccess {
		t.Fatalf("login %s: status=%d body=%+v", username, res.StatusCode, body)
	}
	c := sessionCookie(res)
	if c == nil || c.Value == "" {
		t.Fatalf("login %s: no session cookie", username)
	}
	return c.Value
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t, nil)

	res, body := env.postJSON(t, "/register", map[string]any{
		"username": "alice", "password": "secret1", "password_confirm": "secret1",
	}, "")
	if res.StatusCode != http.StatusCreated || body.Result != resultSuccess {
		t.Fatalf("register: status=%d body=%+v", res.StatusCode, body)
	}

	res, body = env.postForm(t, "/register", url.Values{
		"reg-username": {"ALICE"}, "reg-password": {"secret1"}, "reg-password-confirm": {"secret1"},
	})
	if res.StatusCode != http.StatusConflict || body.Reason != "username_taken" {
		t.Fatalf("duplicate: status=%d body=%+v", res.StatusCode, body)
	}

	res, body = env.postJSON(t, "/register", map[string]any{
		"username": "bob", "password": "secret1", "password_confirm": "secret2",
	}, "")
	if res.StatusCode != http.StatusBadRequest || body.Message != "passwords do not match" {
		t.Fatalf("mismatch: status=%d body=%+v", res.StatusCode, body)
	}

	res, body = env.postJSON(t, "/register", map[string]any{
		"username": "b", "password": "secret1", "password_confirm": "secret1",
	}, "")
	if res.StatusCode != http.StatusBadRequest || body.Reason != "invalid_input" {
		t.Fatalf("short username: status=%d body=%+v", res.StatusCode, body)
	}
}

func TestCheckUsername(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "secret1")

	cases := []struct {
		username string
		want     int
	}{
		{"bob", http.StatusOK},
		{"Alice", http.StatusConflict},
		{"ab", http.StatusBadRequest},
		{"", http.StatusBadRequest},
	}
	for _, tc := range cases {
		res, body := env.postForm(t, "/check_username", url.Values{"username": {tc.username}})
		if res.StatusCode != tc.want {
			t.Fatalf("%q: status=%d want %d body=%+v", tc.username, res.StatusCode, tc.want, body)
		}
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "secret1")

	res, body := env.postJSON(t, "/login", map[string]any{"username": "alice"}, "")
	if res.StatusCode != http.StatusBadRequest || body.Reason != "missing_fields" {
		t.Fatalf("missing password: status=%d body=%+v", res.StatusCode, body)
	}

	res, body = env.postJSON(t, "/login", map[string]any{"username": "alice", "password": "wrong"}, "")
	if res.StatusCode != http.StatusUnauthorized || body.Reason != "invalid_credentials" {
		t.Fatalf("bad password: status=%d body=%+v", res.StatusCode, body)
	}
	if sessionCookie(res) != nil {
		t.Fatalf("cookie set on failed login")
	}

	res, body = env.postJSON(t, "/login", map[string]any{"username": "nobody", "password": "secret1"}, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown user: status=%d body=%+v", res.StatusCode, body)
	}

	tok := env.login(t, "ALICE", "secret1")
	res, info := env.get(t, "/api/user-info", tok)
	if res.StatusCode != http.StatusOK || info["username"] != "alice" || info["user_id"] == "" {
		t.Fatalf("user-info: status=%d body=%v", res.StatusCode, info)
	}
}

func TestLogin_RememberMeCookieLifetime(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "secret1")

	start := time.Now()
	res, body := env.postForm(t, "/login", url.Values{
		"username": {"alice"}, "password": {"secret1"}, "remember_me": {"true"},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: status=%d body=%+v", res.StatusCode, body)
	}
	c := sessionCookie(res)
	if c == nil || !c.HttpOnly {
		t.Fatalf("cookie = %+v", c)
	}
	if c.Expires.Before(start.Add(29 * 24 * time.Hour)) {
		t.Fatalf("remember-me cookie expires %v", c.Expires)
	}

	res, _ = env.postJSON(t, "/login", map[string]any{"username": "alice", "password": "secret1", "remember_me": "false"}, "")
	c = sessionCookie(res)
	if c == nil || c.Expires.After(start.Add(25*time.Hour)) {
		t.Fatalf("regular cookie = %+v", c)
	}
}

func TestLogin_Throttled(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "secret1")

	for i := 0; i < 5; i++ {
		res, _ := env.postJSON(t, "/login", map[string]any{"username": "alice", "password": "wrong"}, "")
		if res.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status=%d", i, res.StatusCode)
		}
	}

	res, body := env.postJSON(t, "/login", map[string]any{"username": "alice", "password": "secret1"}, "")
	if res.StatusCode != http.StatusTooManyRequests || body.Reason != "rate_limited" {
		t.Fatalf("expected 429, got status=%d body=%+v", res.StatusCode, body)
	}
	if res.Header.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
}

func TestSessionInfo(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "secret1")
	tok := env.login(t, "alice", "secret1")

	res, info := env.get(t, "/api/session-info", tok)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", res.StatusCode)
	}
	if info["username"] != "alice" || info["ip_address"] != "127.0.0.1" {
		t.Fatalf("session-info = %v", info)
	}
	for _, k := range []string{"login_time", "last_activity"} {
		if s, _ := info[k].(string); s == "" {
			t.Fatalf("missing %s in %v", k, info)
		}
	}

	res, info = env.get(t, "/api/session-info", "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous: status=%d body=%v", res.StatusCode, info)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "secret1")
	tok := env.login(t, "alice", "secret1")

	res, body := env.postJSON(t, "/logout", map[string]any{}, tok)
	if res.StatusCode != http.StatusOK || body.Result != resultSuccess {
		t.Fatalf("logout: status=%d body=%+v", res.StatusCode, body)
	}
	if c := sessionCookie(res); c == nil || c.MaxAge >= 0 {
		t.Fatalf("cookie not expired: %+v", c)
	}

	res, _ = env.get(t, "/api/user-info", tok)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("token still valid after logout: %d", res.StatusCode)
	}
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "secret1")
	env.register(t, "bob", "secret1")

	a1 := env.login(t, "alice", "secret1")
	a2 := env.login(t, "alice", "secret1")
	a3 := env.login(t, "alice", "secret1")
	b1 := env.login(t, "bob", "secret1")

	res, body := env.postJSON(t, "/logout-all", map[string]any{}, a1)
	if res.StatusCode != http.StatusOK || body.Terminated == nil || *body.Terminated != 3 {
		t.Fatalf("logout-all: status=%d body=%+v", res.StatusCode, body)
	}

	for _, tok := range []string{a1, a2, a3} {
		if res, _ := env.get(t, "/api/user-info", tok); res.StatusCode != http.StatusUnauthorized {
			t.Fatalf("alice token survived: %d", res.StatusCode)
		}
	}
	if res, _ := env.get(t, "/api/user-info", b1); res.StatusCode != http.StatusOK {
		t.Fatalf("bob token revoked: %d", res.StatusCode)
	}
}

type brokenSessionStore struct{}

var errStoreDown = errors.New("store down")

func (brokenSessionStore) Put(context.Context, session.Record) error { return errStoreDown }
func (brokenSessionStore) Get(context.Context, string) (session.Record, error) {
	return session.Record{}, errStoreDown
}
func (brokenSessionStore) UpdateFields(context.Context, string, session.Fields) error {
	return errStoreDown
}
func (brokenSessionStore) Deactivate(context.Context, string, time.Time) error { return errStoreDown }
func (brokenSessionStore) DeactivateAll(context.Context, string, string, time.Time) (int, error) {
	return 0, errStoreDown
}
func (brokenSessionStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, errStoreDown
}

func TestLogin_SessionStoreUnavailable(t *testing.T) {
	env := newTestEnv(t, brokenSessionStore{})
	env.register(t, "alice", "secret1")

	res, body := env.postJSON(t, "/login", map[string]any{"username": "alice", "password": "secret1"}, "")
	if res.StatusCode != http.StatusServiceUnavailable || body.Reason != "store_unavailable" {
		t.Fatalf("status=%d body=%+v", res.StatusCode, body)
	}
	if sessionCookie(res) != nil {
		t.Fatalf("cookie set without a session")
	}
}
