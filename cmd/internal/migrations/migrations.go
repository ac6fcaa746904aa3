// Package migrations carries the PostgreSQL schema as embedded SQL files.
//
// Files are applied in lexical order on every start. Each statement is
// idempotent, so no version table is kept. The {{schema}} placeholder is
// replaced by the quoted target schema, which lets tests run against a
// throwaway schema.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sql/*.sql
var files embed.FS

// Names returns the embedded migration file names in apply order.
func Names() ([]string, error) {
	entries, err := files.ReadDir("sql")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Render returns the SQL of one migration with the schema substituted.
func Render(name, schema string) (string, error) {
	raw, err := files.ReadFile("sql/" + name)
	if err != nil {
		return "", fmt.Errorf("read migration %s: %w", name, err)
	}
	return strings.ReplaceAll(string(raw), "{{schema}}", pgx.Identifier{schema}.Sanitize()), nil
}

// Apply creates schema if needed and runs every migration against it.
func Apply(ctx context.Context, pool *pgxpool.Pool, schema string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	if _, err := pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	names, err := Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		sql, err := Render(name, schema)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		log.Debug("db.migration.applied", "migration", name, "schema", schema)
	}
	log.Info("db.migrations.done", "count", len(names), "schema", schema)
	return nil
}
