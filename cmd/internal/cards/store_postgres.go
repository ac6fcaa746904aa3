package cards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Repository over <schema>.cards. Items are kept
// as a JSONB array.
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
			return fmt.Errorf("cards: invalid schema identifier %q", schema)
		}
		s.table = pgx.Identifier{schema, "cards"}.Sanitize()
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool, table: pgx.Identifier{"todolist", "cards"}.Sanitize()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.pool == nil {
		return nil, fmt.Errorf("cards: nil pool")
	}
	return s, nil
}

const cardColumns = `id, owner_id, owner_handle, title, subtitle, items, public, deadline, created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, c Card) error {
	items, err := encodeItems(c.Items)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (`+cardColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.OwnerID, c.OwnerHandle, c.Title, c.Subtitle, items, c.Public, c.Deadline, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]Card, error) {
	return s.query(ctx, `
		SELECT `+cardColumns+` FROM `+s.table+`
		 WHERE owner_id = $1
		 ORDER BY created_at DESC, id DESC
	`, ownerID)
}

func (s *PostgresStore) ListPublicExcept(ctx context.Context, ownerID string) ([]Card, error) {
	return s.query(ctx, `
		SELECT `+cardColumns+` FROM `+s.table+`
		 WHERE public AND owner_id <> $1
		 ORDER BY created_at DESC, id DESC
	`, ownerID)
}

func (s *PostgresStore) UpdateOwned(ctx context.Context, id, ownerID string, p Patch) (Card, error) {
	var items []byte
	if p.Items != nil {
		b, err := encodeItems(*p.Items)
		if err != nil {
			return Card{}, err
		}
		items = b
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE `+s.table+` SET
			title      = COALESCE($3::text, title),
			subtitle   = COALESCE($4::text, subtitle),
			items      = COALESCE($5::jsonb, items),
			public     = COALESCE($6::boolean, public),
			deadline   = CASE WHEN $7::boolean THEN NULL ELSE COALESCE($8::bigint, deadline) END,
			updated_at = $9
		 WHERE id = $1 AND owner_id = $2
		RETURNING `+cardColumns,
		id, ownerID, p.Title, p.Subtitle, items, p.Public, p.ClearDeadline, p.Deadline, p.UpdatedAt,
	)
	c, err := scanCard(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Card{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) DeleteOwned(ctx context.Context, id, ownerID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CompletionStats(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT owner_handle, count(*)
		  FROM `+s.table+`
		 WHERE public
		   AND owner_handle <> ''
		   AND jsonb_array_length(items) > 0
		   AND NOT EXISTS (
		       SELECT 1 FROM jsonb_array_elements(items) e
		        WHERE NOT COALESCE((e->>'completed')::boolean, false)
		   )
		 GROUP BY owner_handle
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var handle string
		var n int64
		if err := rows.Scan(&handle, &n); err != nil {
			return nil, err
		}
		stats[handle] = int(n)
	}
	return stats, rows.Err()
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]Card, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCard(row pgx.Row) (Card, error) {
	var (
		c     Card
		items []byte
	)
	err := row.Scan(&c.ID, &c.OwnerID, &c.OwnerHandle, &c.Title, &c.Subtitle, &items, &c.Public, &c.Deadline, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Card{}, err
	}
	c.Items = []Item{}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &c.Items); err != nil {
			return Card{}, fmt.Errorf("cards: decode items of %s: %w", c.ID, err)
		}
	}
	return c, nil
}

func encodeItems(items []Item) ([]byte, error) {
	if items == nil {
		items = []Item{}
	}
	return json.Marshal(items)
}
