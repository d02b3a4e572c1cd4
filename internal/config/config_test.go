package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VANTAGE_CONFIG", "")
	t.Setenv("PORT", "")
	t.Setenv("DB_DRIVER", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.DBDriver != "sqlite" {
		t.Errorf("expected sqlite driver, got %s", cfg.DBDriver)
	}
	if cfg.JWTAccessTTL != 15*time.Minute || cfg.JWTRefreshTTL != 168*time.Hour {
		t.Errorf("unexpected token TTLs: %v / %v", cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	}
	if cfg.AlertDedupWindow != 24*time.Hour {
		t.Errorf("expected 24h dedup window, got %v", cfg.AlertDedupWindow)
	}
}

func TestLoad_TOMLOverlayAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vantage.toml")
	content := `
port = 9090
db_driver = "mysql"
database_url = "user:pw@tcp(db:3306)/vantage?parseTime=true"
worker_interval = "15m"
cors_allowed_origins = ["https://a.example", "https://b.example"]
auto_migrate = false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VANTAGE_CONFIG", path)
	t.Setenv("PORT", "7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 7070 {
		t.Errorf("expected env to win with 7070, got %d", cfg.Port)
	}
	if cfg.DBDriver != "mysql" {
		t.Errorf("expected mysql from file, got %s", cfg.DBDriver)
	}
	if cfg.WorkerInterval != 15*time.Minute {
		t.Errorf("expected 15m worker interval, got %v", cfg.WorkerInterval)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.AutoMigrate {
		t.Error("expected auto_migrate=false from file")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("VANTAGE_CONFIG", filepath.Join(t.TempDir(), "nope.toml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.DBDriver = "postgres" }, true},
		{"prod without secret", func(c *Config) { c.Env = "production" }, true},
		{"prod with secret", func(c *Config) { c.Env = "production"; c.JWTSecret = "s3cret" }, false},
		{"bad port", func(c *Config) { c.Port = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := source{}.build()
			c.JWTSecret = ""
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_DevSecretFallback(t *testing.T) {
	c := source{}.build()
	c.JWTSecret = ""
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.JWTSecret == "" {
		t.Error("expected a development secret to be set")
	}
}
