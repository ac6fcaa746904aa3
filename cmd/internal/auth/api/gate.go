package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"todolist/cmd/internal/auth/session"
	"todolist/cmd/internal/httpx"
)

// Identity is the authenticated user of a request.
type Identity struct {
	UserID   string
	Username string
}

type ctxKey int

const (
	identityKey ctxKey = iota
	sessionKey
	tokenKey
)

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func SessionFromContext(ctx context.Context) (session.Record, bool) {
	rec, ok := ctx.Value(sessionKey).(session.Record)
	return rec, ok
}

// TokenFromContext returns the plain session token the request presented.
func TokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenKey).(string)
	return tok, ok && tok != ""
}

// WithIdentity attaches an authenticated identity to ctx, as Gate does.
func WithIdentity(ctx context.Context, id Identity, rec session.Record, token string) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	ctx = context.WithValue(ctx, sessionKey, rec)
	return context.WithValue(ctx, tokenKey, token)
}

// SessionValidator is the part of session.Manager the gate needs.
type SessionValidator interface {
	Validate(ctx context.Context, now time.Time, plain string) (session.Record, error)
}

// Gate authorizes requests before they reach protected routes.
//
// Requests without a token get 401 not_authenticated. A token that does
// not name a valid session gets its cookie expired and 401 session_expired.
// A failing session store yields 503 and never counts as logged out.
type Gate struct {
	log      *slog.Logger
	sessions SessionValidator
	cfg      Config
	now      func() time.Time

	exact    map[string]struct{}
	prefixes []string
}

type GateOption func(*Gate)

// WithExemptPaths adds paths that bypass the gate. A path ending in "/"
// exempts everything below it.
func WithExemptPaths(paths ...string) GateOption {
	return func(g *Gate) {
		for _, p := range paths {
			g.exempt(p)
		}
	}
}

func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

func NewGate(log *slog.Logger, sessions SessionValidator, cfg Config, opts ...GateOption) *Gate {
	if log == nil {
		log = slog.Default()
	}
	g := &Gate{
		log:      log,
		sessions: sessions,
		cfg:      cfg.normalized(),
		now:      func() time.Time { return time.Now().UTC() },
		exact:    make(map[string]struct{}),
	}
	for _, p := range []string{"/login", "/register", "/check_username", "/static/"} {
		g.exempt(p)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

func (g *Gate) exempt(p string) {
	p = strings.TrimSpace(p)
	if p == "" {
		return
	}
	if strings.HasSuffix(p, "/") {
		g.prefixes = append(g.prefixes, p)
		g.exact[strings.TrimSuffix(p, "/")] = struct{}{}
		return
	}
	g.exact[p] = struct{}{}
}

// Exempt reports whether path bypasses the gate.
func (g *Gate) Exempt(path string) bool {
	if _, ok := g.exact[path]; ok {
		return true
	}
	for _, p := range g.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Exempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tok := sessionToken(r, g.cfg.CookieName)
		if tok == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "not_authenticated", "not logged in")
			return
		}

		rec, err := g.sessions.Validate(r.Context(), g.now(), tok)
		if err != nil {
			switch {
			case session.IsAuthFailure(err):
				expireSessionCookie(w, g.cfg)
				httpx.WriteError(w, http.StatusUnauthorized, "session_expired", "session expired")
			case errors.Is(err, session.ErrStoreUnavailable):
				g.log.Error("auth.gate.store.fail", "err", err, "path", r.URL.Path)
				httpx.WriteError(w, http.StatusServiceUnavailable, "store_unavailable", "session store unavailable")
			default:
				g.log.Error("auth.gate.fail", "err", err, "path", r.URL.Path)
				httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error")
			}
			return
		}

		ctx := WithIdentity(r.Context(), Identity{UserID: rec.UserID, Username: rec.Handle}, rec, tok)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the authenticated user id of r, or "".
func UserID(r *http.Request) string {
	id, _ := IdentityFromContext(r.Context())
	return id.UserID
}
