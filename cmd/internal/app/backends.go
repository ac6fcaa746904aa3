package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"todolist/cmd/identity"
	"todolist/cmd/internal/auth/session"
	"todolist/cmd/internal/cards"
)

// backends are the stores selected by StoreBackend and SessionBackend. The
// app owns the pool and the redis client; the stores only borrow them.
type backends struct {
	users    identity.Store
	cards    cards.Repository
	sessions session.Store

	pool  *pgxpool.Pool
	redis *redis.Client
}

func openBackends(ctx context.Context, cfg Config, log *slog.Logger) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	if cfg.StoreBackend == BackendPostgres || cfg.SessionBackend == BackendPostgres {
		if b.pool, err = openDB(ctx, cfg, log); err != nil {
			return nil, err
		}
		log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
	}
	if cfg.SessionBackend == BackendRedis {
		if b.redis, err = NewRedisClient(ctx, cfg.RedisURL); err != nil {
			return nil, err
		}
		log.Info("redis.enabled.session_store", "prefix", cfg.RedisKeyPrefix)
	}

	switch cfg.StoreBackend {
	case BackendPostgres:
		if b.users, err = identity.NewPostgresStore(b.pool, identity.WithSchema(cfg.DBSchema)); err != nil {
			return nil, err
		}
		if b.cards, err = cards.NewPostgresStore(b.pool, cards.WithSchema(cfg.DBSchema)); err != nil {
			return nil, err
		}
	case BackendFile:
		if b.users, err = identity.NewFileStore(filepath.Join(cfg.DataDir, "users.json")); err != nil {
			return nil, err
		}
		if b.cards, err = cards.NewFileStore(filepath.Join(cfg.DataDir, "cards.json")); err != nil {
			return nil, err
		}
	case BackendMemory:
		b.users = identity.NewMemoryStore()
		b.cards = cards.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	switch cfg.SessionBackend {
	case BackendPostgres:
		if b.sessions, err = session.NewPostgresStore(b.pool, session.WithSchema(cfg.DBSchema)); err != nil {
			return nil, err
		}
	case BackendRedis:
		b.sessions = session.NewRedisStore(b.redis, cfg.RedisKeyPrefix)
	case BackendFile:
		if b.sessions, err = session.NewFileStore(filepath.Join(cfg.DataDir, "sessions.json")); err != nil {
			return nil, err
		}
	case BackendMemory:
		b.sessions = session.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}

	log.Info("store.backends", "store", cfg.StoreBackend, "sessions", cfg.SessionBackend)
	return b, nil
}

// ready pings whichever external services are in use.
func (b *backends) ready(ctx context.Context) error {
	if b.pool != nil {
		if err := PingDB(ctx, b.pool, 2*time.Second); err != nil {
			return fmt.Errorf("db: %w", err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (b *backends) Close() {
	if b == nil {
		return
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}
