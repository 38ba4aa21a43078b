package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every variable applyEnvOverrides reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ORBITER_DATA_DIR", "ORBITER_STORAGE_BACKEND", "ORBITER_SQLITE_PATH",
		"ORBITER_PORT", "ORBITER_MAX_WORKERS", "ALPACA_DATA_URL", "ALPACA_FEED",
		"LOG_LEVEL", "LOG_FORMAT", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  backend: sqlite
  data_dir: /tmp/orbiter-data
  sqlite_path: /tmp/orbiter.db
server:
  host: 127.0.0.1
  port: 8081
  grpc_port: 9091
alpaca:
  api_key: test-key
  api_secret: test-secret
  feed: iex
logging:
  level: debug
  format: text
backtest:
  initial_balance: 5000
  fee_pct: 0.002
  truncate_nominals: true
  entry_time: next_day
  max_workers: 8
market_data:
  rate_limit_per_min: 100
  max_attempts: 5
  retry_delay: 2s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, "sqlite")
	}
	if cfg.Storage.SQLitePath != "/tmp/orbiter.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/orbiter.db")
	}
	if cfg.Server.Port != 8081 || cfg.Server.GRPCPort != 9091 {
		t.Errorf("Server ports = %d/%d, want 8081/9091", cfg.Server.Port, cfg.Server.GRPCPort)
	}
	if cfg.Alpaca.APIKey != "test-key" || cfg.Alpaca.Feed != "iex" {
		t.Errorf("Alpaca = %+v", cfg.Alpaca)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Backtest.InitialBalance != 5000 || cfg.Backtest.FeePct != 0.002 || !cfg.Backtest.TruncateNominals {
		t.Errorf("Backtest = %+v", cfg.Backtest)
	}
	if cfg.Backtest.EntryTime != "next_day" || cfg.Backtest.MaxWorkers != 8 {
		t.Errorf("Backtest = %+v", cfg.Backtest)
	}
	if cfg.MarketData.RetryDelay != 2*time.Second || cfg.MarketData.MaxAttempts != 5 {
		t.Errorf("MarketData = %+v", cfg.MarketData)
	}
	// Unset fields keep their defaults.
	if cfg.Alpaca.DataURL != "https://data.alpaca.markets" {
		t.Errorf("Alpaca.DataURL = %q, want default", cfg.Alpaca.DataURL)
	}
	if cfg.Backtest.WarmupBars != 10 {
		t.Errorf("Backtest.WarmupBars = %d, want default 10", cfg.Backtest.WarmupBars)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") returned error: %v", err)
	}
	if cfg.Storage.Backend != "parquet" || cfg.Server.Port != 8080 {
		t.Errorf("Load(\"\") = %+v, want defaults", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: /original/data
alpaca:
  api_key: yaml-key
logging:
  level: info
`)

	t.Setenv("ORBITER_DATA_DIR", "/override/data")
	t.Setenv("ORBITER_STORAGE_BACKEND", "NONE")
	t.Setenv("ORBITER_PORT", "7070")
	t.Setenv("APCA_API_KEY_ID", "env-key")
	t.Setenv("APCA_API_SECRET_KEY", "env-secret")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/override/data" {
		t.Errorf("Storage.DataDir = %q, want env override %q", cfg.Storage.DataDir, "/override/data")
	}
	if cfg.Storage.Backend != "none" {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, "none")
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Alpaca.APIKey != "env-key" || cfg.Alpaca.APISecret != "env-secret" {
		t.Errorf("Alpaca credentials = %q/%q, want env overrides", cfg.Alpaca.APIKey, cfg.Alpaca.APISecret)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load should fail for a missing file")
	}
	if _, err := Load(writeConfig(t, "server: [")); err == nil {
		t.Error("Load should fail for malformed YAML")
	}
	if _, err := Load(writeConfig(t, "storage:\n  backend: s3\n")); err == nil {
		t.Error("Load should reject an unknown storage backend")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"parquet without dir", func(c *Config) { c.Storage.DataDir = "" }},
		{"sqlite without path", func(c *Config) { c.Storage.Backend = "sqlite"; c.Storage.SQLitePath = "" }},
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"grpc port", func(c *Config) { c.Server.GRPCPort = 70000 }},
		{"workers", func(c *Config) { c.Backtest.MaxWorkers = 0 }},
		{"fee", func(c *Config) { c.Backtest.FeePct = 1 }},
		{"attempts", func(c *Config) { c.MarketData.MaxAttempts = 0 }},
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
