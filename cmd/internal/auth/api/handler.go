package authapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"todolist/cmd/identity"
	"todolist/cmd/internal/auth/session"
	"todolist/cmd/internal/httpx"
)

// Users is the account service the handlers need.
type Users interface {
	Register(ctx context.Context, now time.Time, username, password string) (identity.User, error)
	Authenticate(ctx context.Context, username, password string) (identity.User, error)
	CheckUsername(ctx context.Context, username string) error
}

// Sessions is the session service the handlers need.
type Sessions interface {
	SessionValidator
	Config() session.Config
	Create(ctx context.Context, now time.Time, in session.CreateInput) (string, error)
	Invalidate(ctx context.Context, now time.Time, plain string) error
	InvalidateAllForUser(ctx context.Context, now time.Time, userID, exceptPlain string) (int, error)
}

// Handler serves the login, registration and session endpoints.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	users    Users
	sessions Sessions
	validate *validator.Validate
	throttle *loginThrottle
	now      func() time.Time
}

type HandlerOption func(*Handler)

func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(log *slog.Logger, cfg Config, users Users, sessions Sessions, opts ...HandlerOption) (*Handler, error) {
	if users == nil || sessions == nil {
		return nil, errors.New("authapi: nil users or sessions")
	}
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.normalized()
	h := &Handler{
		log:      log,
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		validate: newValidator(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	if cfg.ThrottleEnabled {
		h.throttle = newLoginThrottle(cfg)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Mount registers the auth routes on r. The session routes expect Gate to
// run first.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/register", h.handleRegister)
	r.Post("/check_username", h.handleCheckUsername)
	r.Post("/logout", h.handleLogout)
	r.Post("/logout-all", h.handleLogoutAll)
	r.Get("/api/session-info", h.handleSessionInfo)
	r.Get("/api/user-info", h.handleUserInfo)
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(w, r, &req, req.fromForm); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeFail(w, http.StatusBadRequest, "missing_fields", "username and password are required")
		return
	}

	ctx := r.Context()
	now := h.now()
	ip := clientIP(r, h.cfg.TrustProxy)
	identifier := identity.NormalizeUsername(req.Username)

	if blocked, retry := h.throttle.check(ip, identifier, now); blocked {
		h.auditLoginRateLimited(ctx, r, identifier, retry)
		writeRateLimited(w, retry)
		return
	}

	u, err := h.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			h.throttle.fail(ip, identifier, now)
			h.auditLoginFailed(ctx, r, identifier, "invalid_credentials")
			writeFail(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
			return
		}
		h.log.Error("auth.login.lookup.fail", "err", err)
		writeFail(w, http.StatusServiceUnavailable, "store_unavailable", "login is temporarily unavailable")
		return
	}

	rememberMe := bool(req.RememberMe)
	tok, err := h.sessions.Create(ctx, now, session.CreateInput{
		UserID:      u.ID,
		Handle:      u.Username,
		RememberMe:  rememberMe,
		ClientIP:    ip,
		ClientAgent: clientAgent(r),
	})
	if err != nil {
		h.log.Error("auth.login.session.fail", "user_id", u.ID, "err", err)
		writeFail(w, http.StatusServiceUnavailable, "store_unavailable", "could not create session")
		return
	}

	h.throttle.succeed(identifier)
	h.auditLoginSuccess(ctx, r, u.ID, identifier, rememberMe)

	ttl := h.sessions.Config().TTL
	if rememberMe {
		ttl = h.sessions.Config().RememberTTL
	}
	setSessionCookie(w, h.cfg, tok, now.Add(ttl))
	writeResult(w, http.StatusOK, resultResponse{Result: resultSuccess, Message: "login successful"})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(w, r, &req, req.fromForm); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid_input", validationMessage(err))
		return
	}

	ctx := r.Context()
	u, err := h.users.Register(ctx, h.now(), req.Username, req.Password)
	if err != nil {
		switch {
		case identity.IsConflict(err):
			writeFail(w, http.StatusConflict, "username_taken", "username already exists")
		case identity.IsInvalidInput(err):
			writeFail(w, http.StatusBadRequest, "invalid_input", identity.InputMessage(err))
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeFail(w, http.StatusServiceUnavailable, "store_unavailable", "registration is temporarily unavailable")
		}
		return
	}

	h.auditRegister(ctx, r, u.ID, u.Username)
	writeResult(w, http.StatusCreated, resultResponse{Result: resultSuccess, Message: "registration successful"})
}

func (h *Handler) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	var req checkUsernameRequest
	if err := h.decode(w, r, &req, req.fromForm); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid_input", validationMessage(err))
		return
	}

	err := h.users.CheckUsername(r.Context(), req.Username)
	switch {
	case err == nil:
		writeResult(w, http.StatusOK, resultResponse{Result: resultSuccess, Message: "username is available"})
	case identity.IsConflict(err):
		writeFail(w, http.StatusConflict, "username_taken", "username already exists")
	case identity.IsInvalidInput(err):
		writeFail(w, http.StatusBadRequest, "invalid_input", identity.InputMessage(err))
	default:
		h.log.Error("auth.check_username.fail", "err", err)
		writeFail(w, http.StatusServiceUnavailable, "store_unavailable", "please retry later")
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, tok, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := h.sessions.Invalidate(ctx, h.now(), tok); err != nil {
		h.log.Error("auth.logout.fail", "user_id", id.UserID, "err", err)
		writeFail(w, http.StatusServiceUnavailable, "store_unavailable", "logout failed, please retry")
		return
	}

	h.auditLogout(ctx, r, id.UserID)
	expireSessionCookie(w, h.cfg)
	writeResult(w, http.StatusOK, resultResponse{Result: resultSuccess, Message: "logged out"})
}

// handleLogoutAll ends every session of the user, the current one last.
func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	id, tok, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	now := h.now()

	others, err := h.sessions.InvalidateAllForUser(ctx, now, id.UserID, tok)
	if err == nil {
		err = h.sessions.Invalidate(ctx, now, tok)
	}
	if err != nil {
		h.log.Error("auth.logout_all.fail", "user_id", id.UserID, "err", err)
		writeFail(w, http.StatusServiceUnavailable, "store_unavailable", "logout failed, please retry")
		return
	}

	terminated := others + 1
	h.auditLogoutAll(ctx, r, id.UserID, terminated)
	expireSessionCookie(w, h.cfg)
	writeResult(w, http.StatusOK, resultResponse{
		Result:     resultSuccess,
		Message:    fmt.Sprintf("logged out on all devices (%d sessions ended)", terminated),
		Terminated: &terminated,
	})
}

func (h *Handler) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	rec, ok := SessionFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "not_authenticated", "not logged in")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionInfoResponse{
		Username:     rec.Handle,
		LoginTime:    rec.CreatedAt.UTC(),
		LastActivity: rec.LastActivityAt.UTC(),
		IPAddress:    rec.ClientIP,
	})
}

func (h *Handler) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "not_authenticated", "not logged in")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userInfoResponse{Username: id.Username, UserID: id.UserID})
}

// ---- helpers ----

// decode reads a JSON body, or form fields for any other content type.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, fromForm func(url.Values)) error {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		return httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, dst)
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return err
	}
	fromForm(r.PostForm)
	return nil
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (Identity, string, bool) {
	id, ok := IdentityFromContext(r.Context())
	tok, hasTok := TokenFromContext(r.Context())
	if !ok || !hasTok {
		httpx.WriteError(w, http.StatusUnauthorized, "not_authenticated", "not logged in")
		return Identity{}, "", false
	}
	return id, tok, true
}

func writeResult(w http.ResponseWriter, status int, resp resultResponse) {
	httpx.WriteJSON(w, status, resp)
}

func writeFail(w http.ResponseWriter, status int, reason, msg string) {
	writeResult(w, status, resultResponse{Result: resultFail, Reason: reason, Message: msg})
}
