package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultCookieName = "todolist_session"

	defaultMaxBodyBytes = 64 << 10
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	ThrottleEnabled bool
	LoginIPMax      int
	LoginIPWindow   time.Duration
	LoginUserWindow time.Duration

	LockoutShortThreshold  int
	LockoutShortDuration   time.Duration
	LockoutLongThreshold   int
	LockoutLongDuration    time.Duration
	LockoutSevereThreshold int
	LockoutSevereDuration  time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:           defaultMaxBodyBytes,
		CookieName:             DefaultCookieName,
		CookiePath:             "/",
		CookieSameSite:         http.SameSiteLaxMode,
		ThrottleEnabled:        true,
		LoginIPMax:             20,
		LoginIPWindow:          5 * time.Minute,
		LoginUserWindow:        15 * time.Minute,
		LockoutShortThreshold:  5,
		LockoutShortDuration:   5 * time.Minute,
		LockoutLongThreshold:   10,
		LockoutLongDuration:    30 * time.Minute,
		LockoutSevereThreshold: 20,
		LockoutSevereDuration:  2 * time.Hour,
	}
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	d := DefaultConfig()
	cfg := Config{
		TrustProxy:             envBool("TODOLIST_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:           envInt64("TODOLIST_AUTH_MAX_BODY_BYTES", d.MaxBodyBytes),
		CookieName:             envString("TODOLIST_COOKIE_NAME", d.CookieName),
		CookiePath:             envString("TODOLIST_COOKIE_PATH", d.CookiePath),
		CookieDomain:           envString("TODOLIST_COOKIE_DOMAIN", ""),
		CookieSecure:           envBool("TODOLIST_COOKIE_SECURE", false),
		CookieSameSite:         parseSameSite(envString("TODOLIST_COOKIE_SAMESITE", "lax")),
		ThrottleEnabled:        envBool("TODOLIST_AUTH_THROTTLE", d.ThrottleEnabled),
		LoginIPMax:             envInt("TODOLIST_AUTH_LOGIN_IP_MAX", d.LoginIPMax),
		LoginIPWindow:          envDuration("TODOLIST_AUTH_LOGIN_IP_WINDOW", d.LoginIPWindow),
		LoginUserWindow:        envDuration("TODOLIST_AUTH_LOGIN_USER_WINDOW", d.LoginUserWindow),
		LockoutShortThreshold:  envInt("TODOLIST_AUTH_LOCKOUT_SHORT_THRESHOLD", d.LockoutShortThreshold),
		LockoutShortDuration:   envDuration("TODOLIST_AUTH_LOCKOUT_SHORT_DURATION", d.LockoutShortDuration),
		LockoutLongThreshold:   envInt("TODOLIST_AUTH_LOCKOUT_LONG_THRESHOLD", d.LockoutLongThreshold),
		LockoutLongDuration:    envDuration("TODOLIST_AUTH_LOCKOUT_LONG_DURATION", d.LockoutLongDuration),
		LockoutSevereThreshold: envInt("TODOLIST_AUTH_LOCKOUT_SEVERE_THRESHOLD", d.LockoutSevereThreshold),
		LockoutSevereDuration:  envDuration("TODOLIST_AUTH_LOCKOUT_SEVERE_DURATION", d.LockoutSevereDuration),
	}
	return cfg.normalized()
}

// normalized fills zero values from DefaultConfig and applies cookie
// guardrails: browsers drop SameSite=None cookies that are not Secure.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if strings.TrimSpace(c.CookieName) == "" {
		c.CookieName = d.CookieName
	}
	if c.CookiePath == "" {
		c.CookiePath = d.CookiePath
	}
	if c.CookieSameSite == 0 {
		c.CookieSameSite = d.CookieSameSite
	}
	if c.CookieSameSite == http.SameSiteNoneMode {
		c.CookieSecure = true
	}
	if c.LoginIPWindow <= 0 {
		c.LoginIPWindow = d.LoginIPWindow
	}
	if c.LoginUserWindow <= 0 {
		c.LoginUserWindow = d.LoginUserWindow
	}
	return c
}

func (c Config) lockoutTiers() []lockoutTier {
	return []lockoutTier{
		{Threshold: c.LockoutSevereThreshold, Duration: c.LockoutSevereDuration},
		{Threshold: c.LockoutLongThreshold, Duration: c.LockoutLongDuration},
		{Threshold: c.LockoutShortThreshold, Duration: c.LockoutShortDuration},
	}
}

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
