package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("TODOLIST_CONFIG_FILE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.StoreBackend != BackendMemory || cfg.SessionBackend != BackendMemory {
		t.Fatalf("backends = %q/%q", cfg.StoreBackend, cfg.SessionBackend)
	}
	if cfg.HubQueueSize != 100 || cfg.HubRepeatDelay != 100*time.Millisecond {
		t.Fatalf("hub defaults = %d/%v", cfg.HubQueueSize, cfg.HubRepeatDelay)
	}
	if cfg.deadlineLocation() != time.Local {
		t.Fatalf("deadline location should default to local time")
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "todolist.yaml")
	raw := `
server:
  addr: "127.0.0.1:9000"
  write_timeout: 30s
log:
  level: debug
storage:
  backend: file
  data_dir: ` + dir + `
realtime:
  queue_size: 16
  repeat_delay: 250ms
cards:
  deadline_location: UTC
cors:
  allowed_origins: ["https://app.example.com"]
  allow_credentials: true
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TODOLIST_CONFIG_FILE", path)
	t.Setenv("TODOLIST_LOG_LEVEL", "warn")
	t.Setenv("TODOLIST_HUB_QUEUE_SIZE", "32")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9000" || cfg.WriteTimeout != 30*time.Second {
		t.Fatalf("server section not applied: %+v", cfg)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("env should override file: log level %q", cfg.LogLevel)
	}
	if cfg.StoreBackend != BackendFile || cfg.DataDir != dir {
		t.Fatalf("storage section not applied: %q %q", cfg.StoreBackend, cfg.DataDir)
	}
	if cfg.HubQueueSize != 32 || cfg.HubRepeatDelay != 250*time.Millisecond {
		t.Fatalf("realtime = %d/%v", cfg.HubQueueSize, cfg.HubRepeatDelay)
	}
	if cfg.deadlineLocation() != time.UTC {
		t.Fatalf("deadline location = %v", cfg.deadlineLocation())
	}
	if len(cfg.CORSAllowedOrigins) != 1 || !cfg.CORSAllowCredentials {
		t.Fatalf("cors = %v/%v", cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials)
	}
}

func TestLoadConfig_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [nope"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TODOLIST_CONFIG_FILE", path)
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected parse error")
	}

	t.Setenv("TODOLIST_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.StoreBackend = "mongo" }, wantErr: "unknown store backend"},
		{name: "redis store rejected", mutate: func(c *Config) { c.StoreBackend = BackendRedis }, wantErr: "unknown store backend"},
		{name: "unknown sessions", mutate: func(c *Config) { c.SessionBackend = "etcd" }, wantErr: "unknown session backend"},
		{name: "postgres without url", mutate: func(c *Config) { c.StoreBackend = BackendPostgres }, wantErr: "TODOLIST_DATABASE_URL"},
		{name: "redis without url", mutate: func(c *Config) { c.SessionBackend = BackendRedis }, wantErr: "TODOLIST_REDIS_URL"},
		{name: "redis with url", mutate: func(c *Config) {
			c.SessionBackend = BackendRedis
			c.RedisURL = "redis://127.0.0.1:6379/0"
		}},
		{name: "file without dir", mutate: func(c *Config) {
			c.SessionBackend = BackendFile
			c.DataDir = " "
		}, wantErr: "TODOLIST_DATA_DIR"},
		{name: "bad location", mutate: func(c *Config) { c.DeadlineLocation = "Mars/Olympus" }, wantErr: "deadline location"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestEnvHelpers_InvalidFallsBack(t *testing.T) {
	t.Setenv("TODOLIST_TEST_INT", "-4")
	t.Setenv("TODOLIST_TEST_DUR", "soon")
	t.Setenv("TODOLIST_TEST_BOOL", "maybe")
	t.Setenv("TODOLIST_TEST_CSV", " , ")

	if got := EnvInt("TODOLIST_TEST_INT", 7); got != 7 {
		t.Fatalf("EnvInt = %d", got)
	}
	if got := EnvDuration("TODOLIST_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("EnvDuration = %v", got)
	}
	if got := EnvBool("TODOLIST_TEST_BOOL", true); !got {
		t.Fatalf("EnvBool = %v", got)
	}
	if got := EnvCSV("TODOLIST_TEST_CSV", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Fatalf("EnvCSV = %v", got)
	}

	t.Setenv("TODOLIST_TEST_CSV", "a, b,,c")
	if got := EnvCSV("TODOLIST_TEST_CSV", nil); strings.Join(got, "|") != "a|b|c" {
		t.Fatalf("EnvCSV = %v", got)
	}
}
