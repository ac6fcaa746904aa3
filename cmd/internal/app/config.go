package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends. Sessions additionally accept BackendRedis.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the resolved runtime configuration: defaults, then the optional
// YAML file named by TODOLIST_CONFIG_FILE, then the environment.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	DatabaseURL    string
	DBSchema       string
	DBMaxConns     int32
	DBMinConns     int32
	DBAutoMigrate  bool
	RedisURL       string
	RedisKeyPrefix string

	// StoreBackend holds users and cards; SessionBackend holds sessions.
	StoreBackend   string
	SessionBackend string
	DataDir        string
	StaticDir      string

	HubQueueSize     int
	HubRepeatDelay   time.Duration
	StreamHeartbeat  time.Duration
	DeadlineLocation string

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	MetricsEnabled bool

	// /readyz returns 503 unless the database is configured and reachable.
	ReadinessRequireDB bool

	// TODOLIST_TOKEN_HMAC_KEY must be set (>= 32 bytes) when true.
	RequireTokenHMAC bool
}

// configFile mirrors the YAML schema. Zero values leave defaults alone.
type configFile struct {
	Server struct {
		Addr              string        `yaml:"addr"`
		ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
		ReadTimeout       time.Duration `yaml:"read_timeout"`
		WriteTimeout      time.Duration `yaml:"write_timeout"`
		IdleTimeout       time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
		StaticDir         string        `yaml:"static_dir"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Storage struct {
		Backend        string `yaml:"backend"`
		SessionBackend string `yaml:"session_backend"`
		DataDir        string `yaml:"data_dir"`
	} `yaml:"storage"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		DBSchema    string `yaml:"db_schema"`
		AutoMigrate *bool  `yaml:"auto_migrate"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	Realtime struct {
		QueueSize   int           `yaml:"queue_size"`
		RepeatDelay time.Duration `yaml:"repeat_delay"`
		Heartbeat   time.Duration `yaml:"heartbeat"`
	} `yaml:"realtime"`
	Cards struct {
		DeadlineLocation string `yaml:"deadline_location"`
	} `yaml:"cards"`
	CORS struct {
		AllowedOrigins   []string `yaml:"allowed_origins"`
		AllowCredentials bool     `yaml:"allow_credentials"`
		MaxAgeSeconds    int      `yaml:"max_age_seconds"`
	} `yaml:"cors"`
}

func DefaultConfig() Config {
	return Config{
		HTTPAddr:          "0.0.0.0:8080",
		LogLevel:          "info",
		LogFormat:         "json",
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		DBSchema:          "todolist",
		DBMaxConns:        10,
		DBAutoMigrate:     true,
		RedisKeyPrefix:    "todolist:",
		StoreBackend:      BackendMemory,
		SessionBackend:    BackendMemory,
		DataDir:           "data",
		HubQueueSize:      100,
		HubRepeatDelay:    100 * time.Millisecond,
		StreamHeartbeat:   25 * time.Second,
		CORSMaxAgeSeconds: 600,
		MetricsEnabled:    true,
	}
}

// LoadConfig resolves defaults -> YAML file -> environment and validates
// the result.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := EnvString("TODOLIST_CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.applyYAML(raw); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyYAML(raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&c.HTTPAddr, f.Server.Addr)
	setDuration(&c.ReadHeaderTimeout, f.Server.ReadHeaderTimeout)
	setDuration(&c.ReadTimeout, f.Server.ReadTimeout)
	setDuration(&c.WriteTimeout, f.Server.WriteTimeout)
	setDuration(&c.IdleTimeout, f.Server.IdleTimeout)
	setDuration(&c.ShutdownTimeout, f.Server.ShutdownTimeout)
	setString(&c.StaticDir, f.Server.StaticDir)

	setString(&c.LogLevel, f.Log.Level)
	setString(&c.LogFormat, f.Log.Format)

	setString(&c.StoreBackend, f.Storage.Backend)
	setString(&c.SessionBackend, f.Storage.SessionBackend)
	setString(&c.DataDir, f.Storage.DataDir)

	setString(&c.DatabaseURL, f.Dependencies.PostgresURL)
	setString(&c.DBSchema, f.Dependencies.DBSchema)
	if f.Dependencies.AutoMigrate != nil {
		c.DBAutoMigrate = *f.Dependencies.AutoMigrate
	}
	setString(&c.RedisURL, f.Dependencies.RedisURL)

	if f.Realtime.QueueSize > 0 {
		c.HubQueueSize = f.Realtime.QueueSize
	}
	setDuration(&c.HubRepeatDelay, f.Realtime.RepeatDelay)
	setDuration(&c.StreamHeartbeat, f.Realtime.Heartbeat)

	setString(&c.DeadlineLocation, f.Cards.DeadlineLocation)

	if len(f.CORS.AllowedOrigins) > 0 {
		c.CORSAllowedOrigins = f.CORS.AllowedOrigins
	}
	c.CORSAllowCredentials = c.CORSAllowCredentials || f.CORS.AllowCredentials
	if f.CORS.MaxAgeSeconds > 0 {
		c.CORSMaxAgeSeconds = f.CORS.MaxAgeSeconds
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = EnvString("TODOLIST_HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = EnvString("TODOLIST_LOG_LEVEL", c.LogLevel)
	c.LogFormat = EnvString("TODOLIST_LOG_FORMAT", c.LogFormat)

	c.ReadHeaderTimeout = EnvDuration("TODOLIST_HTTP_READ_HEADER_TIMEOUT", c.ReadHeaderTimeout)
	c.ReadTimeout = EnvDuration("TODOLIST_HTTP_READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = EnvDuration("TODOLIST_HTTP_WRITE_TIMEOUT", c.WriteTimeout)
	c.IdleTimeout = EnvDuration("TODOLIST_HTTP_IDLE_TIMEOUT", c.IdleTimeout)
	c.ShutdownTimeout = EnvDuration("TODOLIST_HTTP_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.MaxHeaderBytes = EnvInt("TODOLIST_HTTP_MAX_HEADER_BYTES", c.MaxHeaderBytes)

	c.DatabaseURL = EnvString("TODOLIST_DATABASE_URL", c.DatabaseURL)
	c.DBSchema = EnvString("TODOLIST_DB_SCHEMA", c.DBSchema)
	c.DBMaxConns = EnvInt32("TODOLIST_DB_MAX_CONNS", c.DBMaxConns)
	c.DBMinConns = EnvInt32("TODOLIST_DB_MIN_CONNS", c.DBMinConns)
	c.DBAutoMigrate = EnvBool("TODOLIST_DB_AUTO_MIGRATE", c.DBAutoMigrate)
	c.RedisURL = EnvString("TODOLIST_REDIS_URL", c.RedisURL)
	c.RedisKeyPrefix = EnvString("TODOLIST_REDIS_KEY_PREFIX", c.RedisKeyPrefix)

	c.StoreBackend = strings.ToLower(EnvString("TODOLIST_STORE_BACKEND", c.StoreBackend))
	c.SessionBackend = strings.ToLower(EnvString("TODOLIST_SESSION_BACKEND", c.SessionBackend))
	c.DataDir = EnvString("TODOLIST_DATA_DIR", c.DataDir)
	c.StaticDir = EnvString("TODOLIST_STATIC_DIR", c.StaticDir)

	c.HubQueueSize = EnvInt("TODOLIST_HUB_QUEUE_SIZE", c.HubQueueSize)
	c.HubRepeatDelay = EnvDuration("TODOLIST_HUB_REPEAT_DELAY", c.HubRepeatDelay)
	c.StreamHeartbeat = EnvDuration("TODOLIST_STREAM_HEARTBEAT", c.StreamHeartbeat)
	c.DeadlineLocation = EnvString("TODOLIST_DEADLINE_LOCATION", c.DeadlineLocation)

	c.CORSAllowedOrigins = EnvCSV("TODOLIST_CORS_ALLOWED_ORIGINS", c.CORSAllowedOrigins)
	c.CORSAllowCredentials = EnvBool("TODOLIST_CORS_ALLOW_CREDENTIALS", c.CORSAllowCredentials)
	c.CORSMaxAgeSeconds = EnvInt("TODOLIST_CORS_MAX_AGE_SECONDS", c.CORSMaxAgeSeconds)

	c.MetricsEnabled = EnvBool("TODOLIST_METRICS_ENABLED", c.MetricsEnabled)
	c.ReadinessRequireDB = EnvBool("TODOLIST_READINESS_REQUIRE_DB", c.ReadinessRequireDB)
	c.RequireTokenHMAC = EnvBool("TODOLIST_REQUIRE_TOKEN_HMAC", c.RequireTokenHMAC)
}

// Validate rejects backend combinations that cannot start.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendFile, BackendPostgres:
	default:
		return fmt.Errorf("config: unknown store backend %q", c.StoreBackend)
	}
	switch c.SessionBackend {
	case BackendMemory, BackendFile, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("config: unknown session backend %q", c.SessionBackend)
	}

	if (c.StoreBackend == BackendPostgres || c.SessionBackend == BackendPostgres) && c.DatabaseURL == "" {
		return errors.New("config: postgres backend requires TODOLIST_DATABASE_URL")
	}
	if c.SessionBackend == BackendRedis && c.RedisURL == "" {
		return errors.New("config: redis session backend requires TODOLIST_REDIS_URL")
	}
	if (c.StoreBackend == BackendFile || c.SessionBackend == BackendFile) && strings.TrimSpace(c.DataDir) == "" {
		return errors.New("config: file backend requires TODOLIST_DATA_DIR")
	}
	if c.DeadlineLocation != "" {
		if _, err := time.LoadLocation(c.DeadlineLocation); err != nil {
			return fmt.Errorf("config: deadline location: %w", err)
		}
	}
	return nil
}

// deadlineLocation is the zone deadline strings are read in; server local
// time unless configured.
func (c Config) deadlineLocation() *time.Location {
	if c.DeadlineLocation == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.DeadlineLocation)
	if err != nil {
		return time.Local
	}
	return loc
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
