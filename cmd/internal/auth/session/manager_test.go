package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"todolist/cmd/security/token"
)

type failingStore struct{}

var errBoom = errors.New("boom")

func (failingStore) Put(context.Context, Record) error                 { return errBoom }
func (failingStore) Get(context.Context, string) (Record, error)       { return Record{}, errBoom }
func (failingStore) UpdateFields(context.Context, string, Fields) error { return errBoom }
func (failingStore) Deactivate(context.Context, string, time.Time) error {
	return errBoom
}
func (failingStore) DeactivateAll(context.Context, string, string, time.Time) (int, error) {
	return 0, errBoom
}
func (failingStore) DeleteExpired(context.Context, time.Time) (int, error) { return 0, errBoom }

func newTestManager(t *testing.T) (*Manager, *MemoryStore) {
	t.Helper()
	st := NewMemoryStore()
	return NewManager(DefaultConfig(), st, nil), st
}

func TestCreate_Expiry(t *testing.T) {
	ctx := context.Background()
	m, st := newTestManager(t)
	now := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	cases := []struct {
		remember bool
		want     time.Duration
	}{
		{false, 24 * time.Hour},
		{true, 30 * 24 * time.Hour},
	}
	for _, tc := range cases {
		tok, err := m.Create(ctx, now, CreateInput{UserID: "u1", Handle: "alice", RememberMe: tc.remember})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		rec, err := st.Get(ctx, token.HashSessionTokenHex(tok))
		if err != nil {
			t.Fatalf("stored record: %v", err)
		}
		if got := rec.ExpiresAt.Sub(now); got != tc.want {
			t.Fatalf("remember=%v: ttl = %v, want %v", tc.remember, got, tc.want)
		}
		if !rec.Active || rec.Handle != "alice" || !rec.LastActivityAt.Equal(now) {
			t.Fatalf("unexpected record: %+v", rec)
		}
	}
}

func TestCreate_NeverStoresPlainToken(t *testing.T) {
	ctx := context.Background()
	m, st := newTestManager(t)

	tok, err := m.Create(ctx, time.Now(), CreateInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := st.Get(ctx, tok); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("plain token must not be a storage key")
	}
}

func TestCreate_StoreFailureWithholdsToken(t *testing.T) {
	m := NewManager(DefaultConfig(), failingStore{}, nil)
	tok, err := m.Create(context.Background(), time.Now(), CreateInput{UserID: "u1"})
	if tok != "" {
		t.Fatalf("expected no token, got %q", tok)
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	t0 := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	tok, err := m.Create(ctx, t0, CreateInput{UserID: "u1", Handle: "alice", ClientIP: "1.2.3.4"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	t1 := t0.Add(3 * time.Hour)
	rec, err := m.Validate(ctx, t1, tok)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if rec.UserID != "u1" || rec.Handle != "alice" || rec.ClientIP != "1.2.3.4" {
		t.Fatalf("unexpected identity: %+v", rec)
	}
	if !rec.LastActivityAt.Equal(t1) {
		t.Fatalf("last activity = %v, want %v", rec.LastActivityAt, t1)
	}
	if !rec.ExpiresAt.Equal(t0.Add(24 * time.Hour)) {
		t.Fatalf("expiry must not slide: %v", rec.ExpiresAt)
	}

	again, err := m.Validate(ctx, t1.Add(time.Minute), tok)
	if err != nil || !again.LastActivityAt.Equal(t1.Add(time.Minute)) {
		t.Fatalf("second validate: %+v, %v", again, err)
	}

	if _, err := m.Validate(ctx, t0.Add(24*time.Hour), tok); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("at expiry: expected ErrSessionExpired, got %v", err)
	}
	if _, err := m.Validate(ctx, t1, "unknown-token"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown: expected ErrSessionNotFound, got %v", err)
	}
	if _, err := m.Validate(ctx, t1, "   "); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("blank: expected ErrSessionNotFound, got %v", err)
	}
}

func TestValidate_StoreFailure(t *testing.T) {
	m := NewManager(DefaultConfig(), failingStore{}, nil)
	_, err := m.Validate(context.Background(), time.Now(), "some-token")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if IsAuthFailure(err) {
		t.Fatalf("store failure must not read as an auth failure")
	}
}

func TestInvalidate_Idempotent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	now := time.Now().UTC()

	tok, err := m.Create(ctx, now, CreateInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := m.Invalidate(ctx, now, tok); err != nil {
			t.Fatalf("Invalidate #%d: %v", i+1, err)
		}
	}
	if err := m.Invalidate(ctx, now, "never-issued"); err != nil {
		t.Fatalf("Invalidate unknown: %v", err)
	}
	if _, err := m.Validate(ctx, now, tok); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestInvalidateAllForUser(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	now := time.Now().UTC()

	var mine []string
	for i := 0; i < 3; i++ {
		tok, err := m.Create(ctx, now, CreateInput{UserID: "u1"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		mine = append(mine, tok)
	}
	other, err := m.Create(ctx, now, CreateInput{UserID: "u2"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := m.InvalidateAllForUser(ctx, now, "u1", mine[0])
	if err != nil {
		t.Fatalf("InvalidateAllForUser: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
	if _, err := m.Validate(ctx, now, mine[0]); err != nil {
		t.Fatalf("excepted session must stay valid: %v", err)
	}
	for _, tok := range mine[1:] {
		if _, err := m.Validate(ctx, now, tok); !errors.Is(err, ErrSessionRevoked) {
			t.Fatalf("expected revoked, got %v", err)
		}
	}
	if _, err := m.Validate(ctx, now, other); err != nil {
		t.Fatalf("other user's session must stay valid: %v", err)
	}

	n, err = m.InvalidateAllForUser(ctx, now, "u1", "")
	if err != nil || n != 1 {
		t.Fatalf("second pass = %d, %v; want 1", n, err)
	}
}

func TestSweepAndMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	st := NewMemoryStore()
	m := NewManager(DefaultConfig(), st, nil, WithMetrics(metrics))
	t0 := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	short, err := m.Create(ctx, t0, CreateInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create(ctx, t0, CreateInput{UserID: "u1", RememberMe: true}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Validate(ctx, t0, short); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	n, err := m.Sweep(ctx, t0.Add(25*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v; want 1", n, err)
	}
	if st.Len() != 1 {
		t.Fatalf("store len = %d, want 1", st.Len())
	}

	if got := testutil.ToFloat64(metrics.created); got != 2 {
		t.Fatalf("created_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.validations.WithLabelValues("ok")); got != 1 {
		t.Fatalf("validations ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.swept); got != 1 {
		t.Fatalf("swept_total = %v, want 1", got)
	}
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop")
	}
}
