package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

// exerciseStore runs the Store contract against any implementation.
func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	mk := func(hash, user string, ttl time.Duration) Record {
		return Record{
			TokenHash:      hash,
			UserID:         user,
			Handle:         "h-" + user,
			CreatedAt:      now,
			LastActivityAt: now,
			ExpiresAt:      now.Add(ttl),
			ClientIP:       "10.0.0.1",
			ClientAgent:    "test/1.0",
			Active:         true,
		}
	}

	a1 := mk(hex64('a'), "user-a", time.Hour)
	a2 := mk(hex64('b'), "user-a", time.Hour)
	a3 := mk(hex64('c'), "user-a", time.Hour)
	b1 := mk(hex64('d'), "user-b", time.Hour)
	for _, r := range []Record{a1, a2, a3, b1} {
		if err := st.Put(ctx, r); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got, err := st.Get(ctx, a1.TokenHash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserID != "user-a" || got.Handle != "h-user-a" || !got.Active || !got.ExpiresAt.Equal(a1.ExpiresAt) {
		t.Fatalf("Get returned %+v", got)
	}

	if _, err := st.Get(ctx, hex64('z')); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get unknown: expected ErrSessionNotFound, got %v", err)
	}

	later := now.Add(5 * time.Minute)
	if err := st.UpdateFields(ctx, a1.TokenHash, Fields{LastActivityAt: &later}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, _ = st.Get(ctx, a1.TokenHash)
	if !got.LastActivityAt.Equal(later) || !got.ExpiresAt.Equal(a1.ExpiresAt) {
		t.Fatalf("touch changed wrong fields: %+v", got)
	}

	if err := st.Deactivate(ctx, a2.TokenHash, later); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if err := st.Deactivate(ctx, a2.TokenHash, later.Add(time.Minute)); err != nil {
		t.Fatalf("Deactivate again: %v", err)
	}
	if err := st.Deactivate(ctx, hex64('y'), later); err != nil {
		t.Fatalf("Deactivate unknown: %v", err)
	}
	got, _ = st.Get(ctx, a2.TokenHash)
	if got.Active || got.DeactivatedAt == nil || !got.DeactivatedAt.Equal(later) {
		t.Fatalf("expected a2 inactive since %v, got %+v", later, got)
	}
	if err := st.UpdateFields(ctx, a2.TokenHash, Fields{LastActivityAt: &later}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("UpdateFields on inactive: expected ErrSessionNotFound, got %v", err)
	}

	n, err := st.DeactivateAll(ctx, "user-a", a1.TokenHash, later)
	if err != nil {
		t.Fatalf("DeactivateAll: %v", err)
	}
	if n != 1 {
		t.Fatalf("DeactivateAll count = %d, want 1 (a3 only)", n)
	}
	if got, _ := st.Get(ctx, a1.TokenHash); !got.Active {
		t.Fatalf("excepted session must stay active")
	}
	if got, _ := st.Get(ctx, a3.TokenHash); got.Active {
		t.Fatalf("a3 must be inactive")
	}
	if got, _ := st.Get(ctx, b1.TokenHash); !got.Active {
		t.Fatalf("other user's session must stay active")
	}

	short := mk(hex64('e'), "user-b", time.Minute)
	if err := st.Put(ctx, short); err != nil {
		t.Fatalf("Put short: %v", err)
	}
	removed, err := st.DeleteExpired(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if removed < 1 {
		t.Fatalf("DeleteExpired removed %d, want >= 1", removed)
	}
	if _, err := st.Get(ctx, short.TokenHash); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expired record should be gone, got %v", err)
	}
	if _, err := st.Get(ctx, b1.TokenHash); err != nil {
		t.Fatalf("unexpired record must survive sweep: %v", err)
	}
}

func hex64(c byte) string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = c
	}
	return string(b)
}
