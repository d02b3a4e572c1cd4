package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// Values come from environment variables, then an optional TOML file, then defaults.
type Config struct {
	// Server
	Env      string
	Port     int
	LogLevel string

	// Database
	DBDriver          string
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	AutoMigrate       bool

	// Coordination and events
	RedisURL     string
	AMQPURL      string
	AMQPExchange string

	// Mail
	MailAPIURL  string
	MailAPIKey  string
	MailFrom    string
	FrontendURL string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// JWT / Auth
	JWTSecret        string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration
	PasswordResetTTL time.Duration

	// Budgets and recurring
	AlertDedupWindow time.Duration
	WorkerInterval   time.Duration

	CORSAllowedOrigins []string
}

// source resolves a key from the process environment first and the TOML
// overlay second.
type source struct {
	file map[string]any
}

// Load reads configuration. A .env file in the working directory is applied
// without overriding variables that are already set, and VANTAGE_CONFIG may
// point at a TOML file whose keys are the lower-cased variable names.
func Load() (*Config, error) {
	_ = godotenv.Load()

	src := source{}
	if path := os.Getenv("VANTAGE_CONFIG"); path != "" {
		file := map[string]any{}
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		src.file = file
	}
	return src.build(), nil
}

func (s source) build() *Config {
	return &Config{
		Env:      s.getString("APP_ENV", "development"),
		Port:     s.getInt("PORT", 8080),
		LogLevel: s.getString("LOG_LEVEL", "info"),

		DBDriver:          s.getString("DB_DRIVER", "sqlite"),
		DatabaseURL:       s.getString("DATABASE_URL", "file:vantage.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"),
		DBMaxOpenConns:    s.getInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    s.getInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: s.getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		AutoMigrate:       s.getBool("AUTO_MIGRATE", true),

		RedisURL:     s.getString("REDIS_URL", ""),
		AMQPURL:      s.getString("AMQP_URL", ""),
		AMQPExchange: s.getString("AMQP_EXCHANGE", "vantage.events"),

		MailAPIURL:  s.getString("MAIL_API_URL", ""),
		MailAPIKey:  s.getString("MAIL_API_KEY", ""),
		MailFrom:    s.getString("MAIL_FROM", "no-reply@vantage.local"),
		FrontendURL: strings.TrimRight(s.getString("FRONTEND_URL", "http://localhost:3000"), "/"),

		HTTPTimeout: s.getDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     s.getInt("MAX_RETRIES", 3),
		InitialBackoff: s.getDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: s.getInt("MAX_CONCURRENCY", 50),

		CacheTTL: s.getDuration("CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: s.getString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		JWTSecret:        s.getString("JWT_SECRET", ""),
		JWTAccessTTL:     s.getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL:    s.getDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		PasswordResetTTL: s.getDuration("PASSWORD_RESET_TTL", 2*time.Hour),

		AlertDedupWindow: s.getDuration("ALERT_DEDUP_WINDOW", 24*time.Hour),
		WorkerInterval:   s.getDuration("WORKER_INTERVAL", time.Hour),

		CORSAllowedOrigins: s.getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

// IsDevelopment reports whether the app runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "test"
}

// Validate checks settings that would otherwise fail late at runtime.
// A missing JWT secret in development is replaced with a fixed dev secret.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q (want sqlite or mysql)", c.DBDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		if !c.IsDevelopment() {
			return fmt.Errorf("config: JWT_SECRET is required when APP_ENV=%s", c.Env)
		}
		c.JWTSecret = "vantage-dev-secret-change-me"
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		return fmt.Errorf("config: token TTLs must be positive")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Port)
	}
	if c.WorkerInterval <= 0 {
		return fmt.Errorf("config: WORKER_INTERVAL must be positive")
	}
	return nil
}

func (s source) lookup(key string) (string, bool) {
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	if s.file == nil {
		return "", false
	}
	v, ok := s.file[strings.ToLower(key)]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ","), true
	default:
		return fmt.Sprint(t), true
	}
}

func (s source) getString(key, fallback string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return fallback
}

func (s source) getInt(key string, fallback int) int {
	if v, ok := s.lookup(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func (s source) getBool(key string, fallback bool) bool {
	if v, ok := s.lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func (s source) getDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := s.lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func (s source) getList(key string, fallback []string) []string {
	v, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
