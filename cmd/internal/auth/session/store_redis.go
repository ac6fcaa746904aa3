package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisMaxTxRetries = 5

// redisGetter is satisfied by both *redis.Client and *redis.Tx.
type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore keeps each session as a JSON value whose key expires with the
// session, plus a per-user set of token hashes for logout-all.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore uses prefix (default "todolist:") for every key it writes.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "todolist:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) sessionKey(hash string) string { return s.prefix + "session:" + hash }
func (s *RedisStore) userKey(userID string) string  { return s.prefix + "user_sessions:" + userID }

func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SetArgs(ctx, s.sessionKey(rec.TokenHash), raw, redis.SetArgs{ExpireAt: rec.ExpiresAt})
		p.SAdd(ctx, s.userKey(rec.UserID), rec.TokenHash)
		return nil
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	return s.get(ctx, s.client, key)
}

func (s *RedisStore) get(ctx context.Context, c redisGetter, key string) (Record, error) {
	raw, err := c.Get(ctx, s.sessionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrSessionNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *RedisStore) UpdateFields(ctx context.Context, key string, f Fields) error {
	_, err := s.mutate(ctx, key, func(r *Record) (bool, error) {
		if !r.Active {
			return false, ErrSessionNotFound
		}
		f.apply(r)
		return true, nil
	})
	return err
}

func (s *RedisStore) Deactivate(ctx context.Context, key string, now time.Time) error {
	_, err := s.mutate(ctx, key, func(r *Record) (bool, error) {
		return r.deactivate(now), nil
	})
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	return err
}

func (s *RedisStore) DeactivateAll(ctx context.Context, userID, exceptKey string, now time.Time) (int, error) {
	keys, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, key := range keys {
		if key == exceptKey {
			continue
		}
		changed, err := s.mutate(ctx, key, func(r *Record) (bool, error) {
			return r.deactivate(now), nil
		})
		switch {
		case errors.Is(err, ErrSessionNotFound):
			_ = s.client.SRem(ctx, s.userKey(userID), key).Err()
		case err != nil:
			return n, err
		case changed:
			n++
		}
	}
	return n, nil
}

// DeleteExpired prunes per-user sets of keys Redis already expired and
// deletes records whose expiry passed by the caller's clock.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"user_sessions:*", 100).Iterator()
	for iter.Next(ctx) {
		setKey := iter.Val()
		members, err := s.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return n, err
		}
		for _, key := range members {
			rec, err := s.Get(ctx, key)
			switch {
			case errors.Is(err, ErrSessionNotFound):
			case err != nil:
				return n, err
			case rec.ExpiresAt.After(now):
				continue
			default:
				if err := s.client.Del(ctx, s.sessionKey(key)).Err(); err != nil {
					return n, err
				}
			}
			if err := s.client.SRem(ctx, setKey, key).Err(); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, iter.Err()
}

// mutate applies fn to the stored record under WATCH so concurrent writers
// cannot lose each other's updates. The key's TTL is kept.
func (s *RedisStore) mutate(ctx context.Context, key string, fn func(*Record) (bool, error)) (bool, error) {
	sk := s.sessionKey(key)
	for i := 0; i < redisMaxTxRetries; i++ {
		changed := false
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			rec, err := s.get(ctx, tx, key)
			if err != nil {
				return err
			}
			ok, err := fn(&rec)
			if err != nil || !ok {
				return err
			}
			raw, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.SetArgs(ctx, sk, raw, redis.SetArgs{KeepTTL: true})
				return nil
			})
			if err == nil {
				changed = true
			}
			return err
		}, sk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return changed, err
	}
	return false, redis.TxFailedErr
}
