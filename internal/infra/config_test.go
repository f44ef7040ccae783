package infra

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("BROKERAGE_AUTH_SECRET", "test-secret")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Session.MaxSubscriptions != 50 {
		t.Errorf("max subscriptions = %d, want 50", cfg.Session.MaxSubscriptions)
	}
	if cfg.Simulator.PriceIntervalMS != 2000 {
		t.Errorf("price interval = %d, want 2000", cfg.Simulator.PriceIntervalMS)
	}
	if len(cfg.Market.Symbols) != 17 {
		t.Errorf("symbols = %d, want 17", len(cfg.Market.Symbols))
	}
	if cfg.Auth.Secret != "test-secret" {
		t.Errorf("secret not taken from env")
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv("BROKERAGE_AUTH_SECRET", "test-secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  listen_addr: ":9100"
simulator:
  price_interval_ms: 500
session:
  max_subscriptions: 5
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":9100" {
		t.Errorf("listen addr = %s", cfg.Server.ListenAddr)
	}
	if cfg.Simulator.PriceIntervalMS != 500 {
		t.Errorf("price interval = %d", cfg.Simulator.PriceIntervalMS)
	}
	if cfg.Session.MaxSubscriptions != 5 {
		t.Errorf("max subscriptions = %d", cfg.Session.MaxSubscriptions)
	}
	// untouched fields keep defaults
	if cfg.Orders.CommissionCap != "9.99" {
		t.Errorf("commission cap = %s", cfg.Orders.CommissionCap)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no secret", func(c *Config) { c.Auth.Secret = "" }, true},
		{"zero interval", func(c *Config) { c.Simulator.MatchingIntervalMS = 0 }, true},
		{"no symbols", func(c *Config) { c.Market.Symbols = nil }, true},
		{"bad base price", func(c *Config) { c.Market.Symbols[0].BasePrice = -1 }, true},
		{"zero cap", func(c *Config) { c.Session.MaxSubscriptions = 0 }, true},
		{"bad chance", func(c *Config) { c.Simulator.EventChance = 1.5 }, true},
		{"bad ws path", func(c *Config) { c.Server.WSPath = "ws" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Auth.Secret = "s"
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
