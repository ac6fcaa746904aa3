package authapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Audit records are plain log lines named audit.<action>.

func (h *Handler) auditLoginFailed(ctx context.Context, r *http.Request, identifier, reason string) {
	h.audit(ctx, r, "auth.login.failed", slog.String("identifier", identifier), slog.String("reason", reason))
}

func (h *Handler) auditLoginSuccess(ctx context.Context, r *http.Request, userID, identifier string, rememberMe bool) {
	h.audit(ctx, r, "auth.login.success",
		slog.String("user_id", userID),
		slog.String("identifier", identifier),
		slog.Bool("remember_me", rememberMe),
	)
}

func (h *Handler) auditLoginRateLimited(ctx context.Context, r *http.Request, identifier string, retryAfter time.Duration) {
	h.audit(ctx, r, "auth.login.rate_limited",
		slog.String("identifier", identifier),
		slog.Int64("retry_after_s", int64(retryAfter.Seconds())),
	)
}

func (h *Handler) auditRegister(ctx context.Context, r *http.Request, userID, username string) {
	h.audit(ctx, r, "auth.register", slog.String("user_id", userID), slog.String("username", username))
}

func (h *Handler) auditLogout(ctx context.Context, r *http.Request, userID string) {
	h.audit(ctx, r, "auth.logout", slog.String("user_id", userID))
}

func (h *Handler) auditLogoutAll(ctx context.Context, r *http.Request, userID string, terminated int) {
	h.audit(ctx, r, "auth.logout_all", slog.String("user_id", userID), slog.Int("terminated", terminated))
}

func (h *Handler) audit(ctx context.Context, r *http.Request, action string, attrs ...slog.Attr) {
	attrs = append(attrs,
		slog.String("ip", clientIP(r, h.cfg.TrustProxy)),
		slog.String("user_agent", clientAgent(r)),
	)
	h.log.LogAttrs(ctx, slog.LevelInfo, "audit."+action, attrs...)
}
