package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"todolist/cmd/security/token"
)

// maxTokenLen bounds presented tokens before hashing.
const maxTokenLen = 512

type CreateInput struct {
	UserID      string
	Handle      string
	RememberMe  bool
	ClientIP    string
	ClientAgent string
}

// Manager applies session policy over a Store.
type Manager struct {
	cfg     Config
	store   Store
	log     *slog.Logger
	metrics *Metrics
}

type ManagerOption func(*Manager)

func WithMetrics(m *Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

func NewManager(cfg Config, store Store, log *slog.Logger, opts ...ManagerOption) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{cfg: cfg, store: store, log: log}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *Manager) Config() Config { return m.cfg }

// Create starts a session and returns its plain token. When the store
// cannot take the record no token is returned and the error wraps
// ErrStoreUnavailable.
func (m *Manager) Create(ctx context.Context, now time.Time, in CreateInput) (string, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return "", errors.New("session: missing user id")
	}

	plain, hash, err := token.NewSessionToken(m.cfg.TokenBytes)
	if err != nil {
		return "", err
	}

	ttl := m.cfg.TTL
	if in.RememberMe {
		ttl = m.cfg.RememberTTL
	}

	rec := Record{
		TokenHash:      hash,
		UserID:         in.UserID,
		Handle:         in.Handle,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
		ClientIP:       in.ClientIP,
		ClientAgent:    in.ClientAgent,
		Active:         true,
	}
	if err := m.store.Put(ctx, rec); err != nil {
		m.log.Warn("session.create.fail", "user_id", in.UserID, "err", err)
		return "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	m.metrics.incCreated()
	return plain, nil
}

// Validate resolves a presented token. On success last activity is set to
// now (best-effort) and the refreshed record is returned.
func (m *Manager) Validate(ctx context.Context, now time.Time, plain string) (Record, error) {
	plain = strings.TrimSpace(plain)
	if plain == "" || len(plain) > maxTokenLen {
		m.metrics.observeValidation("not_found")
		return Record{}, ErrSessionNotFound
	}
	key := token.HashSessionTokenHex(plain)

	rec, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			m.metrics.observeValidation("not_found")
			return Record{}, ErrSessionNotFound
		}
		m.metrics.observeValidation("store_error")
		return Record{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	switch {
	case !rec.Active:
		m.metrics.observeValidation("revoked")
		return Record{}, ErrSessionRevoked
	case !now.Before(rec.ExpiresAt):
		m.metrics.observeValidation("expired")
		return Record{}, ErrSessionExpired
	}

	if err := m.store.UpdateFields(ctx, key, Fields{LastActivityAt: &now}); err != nil {
		m.log.Debug("session.touch.fail", "user_id", rec.UserID, "err", err)
	}
	rec.LastActivityAt = now

	m.metrics.observeValidation("ok")
	return rec, nil
}

// Invalidate ends the session named by plain. Unknown or already ended
// sessions are not an error.
func (m *Manager) Invalidate(ctx context.Context, now time.Time, plain string) error {
	plain = strings.TrimSpace(plain)
	if plain == "" || len(plain) > maxTokenLen {
		return nil
	}
	if err := m.store.Deactivate(ctx, token.HashSessionTokenHex(plain), now); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	m.metrics.addInvalidated(1)
	return nil
}

// InvalidateAllForUser ends every active session of userID except the one
// named by exceptPlain (empty ends all) and returns how many were ended.
func (m *Manager) InvalidateAllForUser(ctx context.Context, now time.Time, userID, exceptPlain string) (int, error) {
	exceptKey := ""
	if p := strings.TrimSpace(exceptPlain); p != "" {
		exceptKey = token.HashSessionTokenHex(p)
	}
	n, err := m.store.DeactivateAll(ctx, userID, exceptKey, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	m.metrics.addInvalidated(n)
	return n, nil
}

// Sweep removes sessions that expired at or before now.
func (m *Manager) Sweep(ctx context.Context, now time.Time) (int, error) {
	n, err := m.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	m.metrics.addSwept(n)
	return n, nil
}
