package authapi

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// maxTrackedFailures caps the failure history kept per key.
const maxTrackedFailures = 64

type lockoutTier struct {
	Threshold int
	Duration  time.Duration
}

// evaluateWindowThrottle blocks when at least max failures fall inside the
// trailing window. retry is how long until the oldest of them leaves it.
func evaluateWindowThrottle(now time.Time, failures []time.Time, max int, window time.Duration) (bool, time.Duration) {
	if max <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	count := 0
	var oldest time.Time
	for _, f := range failures {
		if !f.After(cut) {
			continue
		}
		count++
		if oldest.IsZero() || f.Before(oldest) {
			oldest = f
		}
	}
	if count < max {
		return false, 0
	}
	return true, oldest.Add(window).Sub(now)
}

// evaluateProgressiveLockout picks the highest tier whose threshold the
// failure count reaches. The lockout runs from the latest failure for the
// tier's duration.
func evaluateProgressiveLockout(now time.Time, failures []time.Time, tiers []lockoutTier) (bool, time.Duration) {
	if len(failures) == 0 {
		return false, 0
	}
	var latest time.Time
	for _, f := range failures {
		if f.After(latest) {
			latest = f
		}
	}

	sorted := append([]lockoutTier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold > sorted[j].Threshold })

	for _, t := range sorted {
		if t.Threshold <= 0 || t.Duration <= 0 || len(failures) < t.Threshold {
			continue
		}
		if until := latest.Add(t.Duration); until.After(now) {
			return true, until.Sub(now)
		}
		return false, 0
	}
	return false, 0
}

// loginThrottle tracks failed logins in memory, per client IP (sliding
// window) and per normalized username (progressive lockout).
type loginThrottle struct {
	ipMax      int
	ipWindow   time.Duration
	userWindow time.Duration
	tiers      []lockoutTier

	mu     sync.Mutex
	byIP   map[string][]time.Time
	byUser map[string][]time.Time
}

func newLoginThrottle(cfg Config) *loginThrottle {
	t := &loginThrottle{
		ipMax:      cfg.LoginIPMax,
		ipWindow:   cfg.LoginIPWindow,
		userWindow: cfg.LoginUserWindow,
		tiers:      cfg.lockoutTiers(),
		byIP:       make(map[string][]time.Time),
		byUser:     make(map[string][]time.Time),
	}
	// User history must outlive the longest lockout or it would lift early.
	for _, tier := range t.tiers {
		if tier.Duration > t.userWindow {
			t.userWindow = tier.Duration
		}
	}
	return t
}

// check reports whether a login attempt from ip for user must be refused.
func (t *loginThrottle) check(ip, user string, now time.Time) (bool, time.Duration) {
	if t == nil {
		return false, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if ip != "" {
		fs := prune(t.byIP, ip, now.Add(-t.ipWindow))
		if blocked, retry := evaluateWindowThrottle(now, fs, t.ipMax, t.ipWindow); blocked {
			return true, retry
		}
	}
	if user != "" {
		fs := prune(t.byUser, user, now.Add(-t.userWindow))
		if blocked, retry := evaluateProgressiveLockout(now, fs, t.tiers); blocked {
			return true, retry
		}
	}
	return false, 0
}

func (t *loginThrottle) fail(ip, user string, now time.Time) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if ip != "" {
		t.byIP[ip] = appendCapped(t.byIP[ip], now)
	}
	if user != "" {
		t.byUser[user] = appendCapped(t.byUser[user], now)
	}
}

// succeed clears the username history. IP history is kept so one valid
// account cannot reset a spraying client.
func (t *loginThrottle) succeed(user string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.byUser, user)
	t.mu.Unlock()
}

func prune(m map[string][]time.Time, key string, cut time.Time) []time.Time {
	fs := m[key]
	kept := fs[:0]
	for _, f := range fs {
		if f.After(cut) {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		delete(m, key)
		return nil
	}
	m[key] = kept
	return kept
}

func appendCapped(fs []time.Time, now time.Time) []time.Time {
	fs = append(fs, now)
	if len(fs) > maxTrackedFailures {
		fs = fs[len(fs)-maxTrackedFailures:]
	}
	return fs
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeResult(w, http.StatusTooManyRequests, resultResponse{
		Result:  resultFail,
		Reason:  "rate_limited",
		Message: "too many attempts, try again later",
	})
}
