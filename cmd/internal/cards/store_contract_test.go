package cards

import (
	"context"
	"errors"
	"testing"
	"time"

	"todolist/cmd/identity/ids"
)

func newID(t *testing.T, at time.Time) string {
	t.Helper()
	id, err := ids.NewULID(at)
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	return id
}

func ptr[T any](v T) *T { return &v }

// exerciseRepository runs the Repository contract against any implementation.
func exerciseRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	mk := func(owner, handle string, age int, public bool, items ...Item) Card {
		at := base.Add(time.Duration(age) * time.Minute)
		if items == nil {
			items = []Item{}
		}
		return Card{
			ID: newID(t, at), OwnerID: owner, OwnerHandle: handle,
			Title: "t", Items: items, Public: public,
			CreatedAt: at.Unix(), UpdatedAt: at.Unix(),
		}
	}
	done := Item{Text: "x", Completed: true}
	open := Item{Text: "y"}

	a1 := mk("ua", "alice", 1, true, done)
	a2 := mk("ua", "alice", 2, false, done)
	a3 := mk("ua", "alice", 3, true, done, open)
	b1 := mk("ub", "bob", 4, true, done, done)
	b2 := mk("ub", "bob", 5, true)
	for _, c := range []Card{a1, a2, a3, b1, b2} {
		if err := repo.Insert(ctx, c); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	mine, err := repo.ListByOwner(ctx, "ua")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if got := cardIDs(mine); !equalIDs(got, []string{a3.ID, a2.ID, a1.ID}) {
		t.Fatalf("ListByOwner order = %v", got)
	}
	if len(mine[0].Items) != 2 || mine[0].Items[1] != open {
		t.Fatalf("items not round-tripped: %+v", mine[0].Items)
	}

	others, err := repo.ListPublicExcept(ctx, "ub")
	if err != nil {
		t.Fatalf("ListPublicExcept: %v", err)
	}
	if got := cardIDs(others); !equalIDs(got, []string{a3.ID, a1.ID}) {
		t.Fatalf("ListPublicExcept = %v", got)
	}

	stats, err := repo.CompletionStats(ctx)
	if err != nil {
		t.Fatalf("CompletionStats: %v", err)
	}
	if stats["alice"] != 1 || stats["bob"] != 1 || len(stats) != 2 {
		t.Fatalf("CompletionStats = %v", stats)
	}

	// Wrong owner looks exactly like a missing card.
	if _, err := repo.UpdateOwned(ctx, a1.ID, "ub", Patch{Title: ptr("stolen"), UpdatedAt: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateOwned by non-owner = %v", err)
	}
	if err := repo.DeleteOwned(ctx, a1.ID, "ub"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteOwned by non-owner = %v", err)
	}

	dl := int64(1_800_000_000)
	updated, err := repo.UpdateOwned(ctx, a2.ID, "ua", Patch{
		Subtitle:  ptr("sub"),
		Items:     &[]Item{open},
		Public:    ptr(true),
		Deadline:  &dl,
		UpdatedAt: base.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("UpdateOwned: %v", err)
	}
	if updated.Title != "t" || updated.Subtitle != "sub" || !updated.Public {
		t.Fatalf("updated = %+v", updated)
	}
	if updated.Deadline == nil || *updated.Deadline != dl {
		t.Fatalf("deadline = %v", updated.Deadline)
	}
	if len(updated.Items) != 1 || updated.Items[0] != open {
		t.Fatalf("items = %+v", updated.Items)
	}
	if updated.CreatedAt != a2.CreatedAt || updated.UpdatedAt != base.Add(time.Hour).Unix() {
		t.Fatalf("timestamps = %d/%d", updated.CreatedAt, updated.UpdatedAt)
	}

	cleared, err := repo.UpdateOwned(ctx, a2.ID, "ua", Patch{ClearDeadline: true, UpdatedAt: updated.UpdatedAt})
	if err != nil {
		t.Fatalf("UpdateOwned clear: %v", err)
	}
	if cleared.Deadline != nil || cleared.Subtitle != "sub" {
		t.Fatalf("cleared = %+v", cleared)
	}

	if err := repo.DeleteOwned(ctx, b1.ID, "ub"); err != nil {
		t.Fatalf("DeleteOwned: %v", err)
	}
	if err := repo.DeleteOwned(ctx, b1.ID, "ub"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second DeleteOwned = %v", err)
	}
	stats, _ = repo.CompletionStats(ctx)
	if _, ok := stats["bob"]; ok {
		t.Fatalf("bob still ranked after delete: %v", stats)
	}
}

func cardIDs(cs []Card) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
