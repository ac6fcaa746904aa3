package session

import (
	"context"
	"time"
)

// Record is one stored session. TokenHash is the storage key; the plain
// token is never persisted.
type Record struct {
	TokenHash      string     `json:"token_hash"`
	UserID         string     `json:"user_id"`
	Handle         string     `json:"handle"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	ClientIP       string     `json:"client_ip"`
	ClientAgent    string     `json:"client_agent"`
	Active         bool       `json:"active"`
	DeactivatedAt  *time.Time `json:"deactivated_at,omitempty"`
}

// Fields is a partial update. Nil members are left unchanged.
type Fields struct {
	LastActivityAt *time.Time
	ClientIP       *string
	ClientAgent    *string
}

// Store persists session records keyed by token hash. It holds no policy.
//
// Contract:
//   - Get returns ErrSessionNotFound for an unknown key.
//   - UpdateFields applies only to active records and returns
//     ErrSessionNotFound when none matched.
//   - Deactivate is idempotent and a no-op for unknown keys.
//   - DeactivateAll deactivates every active record of userID except
//     exceptKey (which may be empty) and returns how many changed.
//   - DeleteExpired removes records with ExpiresAt <= now.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, key string) (Record, error)
	UpdateFields(ctx context.Context, key string, f Fields) error
	Deactivate(ctx context.Context, key string, now time.Time) error
	DeactivateAll(ctx context.Context, userID, exceptKey string, now time.Time) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

func (f Fields) apply(r *Record) {
	if f.LastActivityAt != nil {
		r.LastActivityAt = *f.LastActivityAt
	}
	if f.ClientIP != nil {
		r.ClientIP = *f.ClientIP
	}
	if f.ClientAgent != nil {
		r.ClientAgent = *f.ClientAgent
	}
}

func (r *Record) deactivate(now time.Time) bool {
	if !r.Active {
		return false
	}
	r.Active = false
	t := now
	r.DeactivatedAt = &t
	return true
}
