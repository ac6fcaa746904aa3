package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over <schema>.sessions.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier %q", schema)
		}
		s.table = pgx.Identifier{schema, "sessions"}.Sanitize()
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool, table: pgx.Identifier{"todolist", "sessions"}.Sanitize()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return s, nil
}

func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (
			token_hash, user_id, handle,
			created_at, last_activity_at, expires_at,
			client_ip, client_agent, active, deactivated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.TokenHash, rec.UserID, rec.Handle,
		rec.CreatedAt, rec.LastActivityAt, rec.ExpiresAt,
		rec.ClientIP, rec.ClientAgent, rec.Active, rec.DeactivatedAt)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Record, error) {
	var r Record
	err := s.pool.QueryRow(ctx, `
		SELECT token_hash, user_id, handle,
		       created_at, last_activity_at, expires_at,
		       client_ip, client_agent, active, deactivated_at
		  FROM `+s.table+`
		 WHERE token_hash = $1
	`, key).Scan(
		&r.TokenHash, &r.UserID, &r.Handle,
		&r.CreatedAt, &r.LastActivityAt, &r.ExpiresAt,
		&r.ClientIP, &r.ClientAgent, &r.Active, &r.DeactivatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrSessionNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return r, nil
}

func (s *PostgresStore) UpdateFields(ctx context.Context, key string, f Fields) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		   SET last_activity_at = COALESCE($2, last_activity_at),
		       client_ip = COALESCE($3, client_ip),
		       client_agent = COALESCE($4, client_agent)
		 WHERE token_hash = $1 AND active
	`, key, f.LastActivityAt, f.ClientIP, f.ClientAgent)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Deactivate keeps the first deactivation time on repeated calls.
func (s *PostgresStore) Deactivate(ctx context.Context, key string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		   SET active = FALSE,
		       deactivated_at = COALESCE(deactivated_at, $2)
		 WHERE token_hash = $1
	`, key, now)
	return err
}

func (s *PostgresStore) DeactivateAll(ctx context.Context, userID, exceptKey string, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		   SET active = FALSE,
		       deactivated_at = $3
		 WHERE user_id = $1 AND active AND token_hash <> $2
	`, userID, exceptKey, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
