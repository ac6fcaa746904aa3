package session

import (
	"testing"

	"todolist/cmd/internal/pgtest"
)

func TestPostgresStore_Contract(t *testing.T) {
	pool, schema := pgtest.Pool(t)
	st, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	exerciseStore(t, st)
}
