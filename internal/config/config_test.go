package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"turfbook/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("TURF_DB_PATH", "test.db")
	yamlContent := `
database:
  path: "${TURF_DB_PATH}"
booking:
  timezone: "Asia/Kolkata"
  default_slot_minutes: 60
  pending_ttl: 20m
api:
  auth:
    api_keys:
      - key: "k1"
        name: "admin"
        permissions: ["admin"]
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Path != "test.db" {
		t.Errorf("expected database path test.db, got %s", cfg.Database.Path)
	}
	if cfg.Booking.DefaultSlotMinutes != 60 {
		t.Errorf("expected slot minutes 60, got %d", cfg.Booking.DefaultSlotMinutes)
	}
	if cfg.Booking.PendingTTL != 20*time.Minute {
		t.Errorf("expected pending ttl 20m, got %s", cfg.Booking.PendingTTL)
	}
	if cfg.Booking.Location().String() != "Asia/Kolkata" {
		t.Errorf("expected Asia/Kolkata location, got %s", cfg.Booking.Location())
	}
	if cfg.Payments.Provider != "offline" {
		t.Errorf("expected offline payments by default, got %s", cfg.Payments.Provider)
	}
	if len(cfg.API.Auth.APIKeys) != 1 || cfg.API.Auth.APIKeys[0].Permissions[0] != "admin" {
		t.Errorf("expected one admin api key")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	if got := PathFromEnv(); got != DefaultPath {
		t.Errorf("expected %s, got %s", DefaultPath, got)
	}
	t.Setenv("CONFIG_PATH", "/etc/turfbook.yaml")
	if got := PathFromEnv(); got != "/etc/turfbook.yaml" {
		t.Errorf("expected CONFIG_PATH value, got %s", got)
	}
}

func validConfig() Config {
	cfg := Config{Database: DatabaseConfig{Path: "path"}}
	cfg.applyDefaults()
	return cfg
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing database", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "slot minutes not dividing day", mutate: func(c *Config) { c.Booking.DefaultSlotMinutes = 50 }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Booking.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "stripe without key", mutate: func(c *Config) { c.Payments.Provider = "stripe" }, wantErr: true},
		{name: "stripe with key", mutate: func(c *Config) {
			c.Payments.Provider = "stripe"
			c.Payments.SecretKey = "sk_test_1"
		}},
		{name: "unknown provider", mutate: func(c *Config) { c.Payments.Provider = "cash" }, wantErr: true},
		{name: "telegram without token", mutate: func(c *Config) { c.Telegram.Enabled = true }, wantErr: true},
		{name: "google without sheet", mutate: func(c *Config) {
			c.Google.Enabled = true
			c.Google.GoogleCredentialsFile = "creds.json"
		}, wantErr: true},
		{name: "duplicate api key", mutate: func(c *Config) {
			c.API.Auth.APIKeys = []APIClientKey{{Key: "a", Name: "one"}, {Key: "a", Name: "two"}}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Booking.DefaultSlotMinutes != models.DefaultSlotMinutes {
		t.Errorf("expected default slot minutes %d, got %d", models.DefaultSlotMinutes, cfg.Booking.DefaultSlotMinutes)
	}
	if cfg.API.GRPC.Port != 8081 {
		t.Errorf("expected default gRPC port 8081, got %d", cfg.API.GRPC.Port)
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.API.Auth.HeaderAPIKey)
	}
	if cfg.Booking.Location() != time.UTC {
		t.Errorf("expected UTC when timezone is unset")
	}
	if cfg.Booking.HoldTTL != 30*time.Second {
		t.Errorf("expected hold ttl 30s, got %s", cfg.Booking.HoldTTL)
	}
}
