package authapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSetSessionCookie(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CookieSecure = true

	rr := httptest.NewRecorder()
	exp := time.Now().UTC().Add(30 * time.Minute)
	setSessionCookie(rr, cfg, "tok-123", exp)

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != DefaultCookieName || c.Value != "tok-123" || !c.HttpOnly || !c.Secure {
		t.Fatalf("unexpected cookie: %+v", c)
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("SameSite = %v", c.SameSite)
	}
}

func TestExpireSessionCookie(t *testing.T) {
	rr := httptest.NewRecorder()
	expireSessionCookie(rr, DefaultConfig())

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 || cookies[0].Value != "" {
		t.Fatalf("unexpected cookies: %+v", cookies)
	}
}

func TestSessionToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/cards", nil)
	if got := sessionToken(req, DefaultCookieName); got != "" {
		t.Fatalf("expected no token, got %q", got)
	}

	req.Header.Set("Authorization", "bearer abc")
	if got := sessionToken(req, DefaultCookieName); got != "abc" {
		t.Fatalf("bearer token = %q", got)
	}

	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "from-cookie"})
	if got := sessionToken(req, DefaultCookieName); got != "from-cookie" {
		t.Fatalf("cookie should win, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	if got := sessionToken(req, DefaultCookieName); got != "" {
		t.Fatalf("basic auth accepted as bearer: %q", got)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := clientIP(req, false); got != "10.1.2.3" {
		t.Fatalf("untrusted clientIP = %q", got)
	}
	if got := clientIP(req, true); got != "203.0.113.9" {
		t.Fatalf("trusted clientIP = %q", got)
	}
}

func TestClientAgentTruncates(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", strings.Repeat("a", 500))
	if got := clientAgent(req); len(got) != maxClientAgentLen {
		t.Fatalf("len = %d", len(got))
	}
}
