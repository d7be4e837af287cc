package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")

	cfg, err := LoadFromEnv("test")
	if err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.StoreDriver != StoreMemory {
		t.Errorf("StoreDriver = %q", cfg.StoreDriver)
	}
	if cfg.HoldTTL != DefaultHoldTTL || cfg.PaymentTimeout != DefaultPaymentTimeout {
		t.Errorf("unexpected TTLs: hold=%s payment=%s", cfg.HoldTTL, cfg.PaymentTimeout)
	}
	if cfg.DefaultCurrency != "PLN" {
		t.Errorf("DefaultCurrency = %q", cfg.DefaultCurrency)
	}
	if cfg.Log == nil || cfg.Client == nil {
		t.Fatal("logger and client must always be set")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvStoreDriver, "Postgres")
	t.Setenv(EnvHoldTTL, "2m")
	t.Setenv(EnvDefaultCurrency, "eur")
	t.Setenv(EnvSweepBatchSize, "50")

	cfg, err := LoadFromEnv("test")
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.StoreDriver != StorePostgres {
		t.Errorf("StoreDriver = %q", cfg.StoreDriver)
	}
	if cfg.HoldTTL != 2*time.Minute {
		t.Errorf("HoldTTL = %s", cfg.HoldTTL)
	}
	if cfg.DefaultCurrency != "EUR" {
		t.Errorf("DefaultCurrency = %q", cfg.DefaultCurrency)
	}
	if cfg.SweepBatchSize != 50 {
		t.Errorf("SweepBatchSize = %d", cfg.SweepBatchSize)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown driver", func(c *Config) { c.StoreDriver = "sqlite" }, "StoreDriver"},
		{"bad postgres url", func(c *Config) { c.StoreDriver = StorePostgres; c.PostgresURL = "mysql://x" }, "PostgresURL"},
		{"bad mongo uri", func(c *Config) { c.StoreDriver = StoreMongo; c.MongoURI = "http://localhost" }, "MongoURI"},
		{"max ttl below ttl", func(c *Config) { c.MaxHoldTTL = time.Minute }, "MaxHoldTTL"},
		{"bad currency", func(c *Config) { c.DefaultCurrency = "zloty" }, "DefaultCurrency"},
		{"short session key", func(c *Config) { c.SessionHashKey = []byte("short") }, "SessionHashKey"},
		{"plain admin token", func(c *Config) { c.AdminTokenHash = "secret" }, "AdminTokenHash"},
		{"kafka without topic", func(c *Config) { c.KafkaEnabled = true; c.KafkaBookingTopic = "" }, "KafkaBookingTopic"},
		{"zero sweep interval", func(c *Config) { c.SweepInterval = 0 }, "SweepInterval"},
		{"bad port", func(c *Config) { c.Port = "99999" }, "Port"},
		{"address limit below session limit", func(c *Config) { c.RateLimitAddressRequests = 5 }, "RateLimitAddressRequests"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvLogLevel, "error")
			cfg, err := LoadFromEnv("test")
			if err != nil {
				t.Fatalf("LoadFromEnv: %v", err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("postgres://user:pa55@db:5432/slotkeeper")
	if strings.Contains(got, "pa55") || !strings.HasPrefix(got, "postgres://***:***@") {
		t.Errorf("redactURL = %q", got)
	}
}
