package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
environment: test
backend:
  type: clickhouse
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	th := c.Forecast.Thresholds
	if th.VIXElevated != 25 || th.VIXCrisis != 40 {
		t.Fatalf("vix defaults: expected 25/40, got %v/%v", th.VIXElevated, th.VIXCrisis)
	}
	if th.SpreadElevated != 150 || th.SpreadCrisis != 200 {
		t.Fatalf("spread defaults: expected 150/200, got %v/%v", th.SpreadElevated, th.SpreadCrisis)
	}
	if len(c.Forecast.Quantiles) != 3 || c.Forecast.Quantiles[1] != 0.50 {
		t.Fatalf("quantile defaults: got %v", c.Forecast.Quantiles)
	}
	if c.Forecast.MinTrainingRows != 30 {
		t.Fatalf("min_training_rows default: expected 30, got %d", c.Forecast.MinTrainingRows)
	}
	if c.Forecast.ModelVersion != "1.0" {
		t.Fatalf("model_version default: expected 1.0, got %s", c.Forecast.ModelVersion)
	}
	if c.Forecast.CacheTTL.Forecast != time.Hour {
		t.Fatalf("forecast ttl default: expected 1h, got %s", c.Forecast.CacheTTL.Forecast)
	}
	if c.Forecast.CacheTTL.Regime != 5*time.Minute {
		t.Fatalf("regime ttl default: expected 5m, got %s", c.Forecast.CacheTTL.Regime)
	}
	if c.Forecast.HorizonDays != 1 {
		t.Fatalf("horizon default: expected 1, got %d", c.Forecast.HorizonDays)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	c, err := Load(writeConfig(t, `
environment: production
backend:
  type: kafka
  batch_size: 500
kafka:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  topic: txns
forecast:
  horizon_days: 7
  thresholds:
    vix_elevated: 20
    vix_crisis: 35
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Backend.Type != "kafka" || c.Backend.BatchSize != 500 {
		t.Fatalf("backend overrides lost: %+v", c.Backend)
	}
	if len(c.Kafka.Brokers) != 2 {
		t.Fatalf("expected 2 brokers, got %v", c.Kafka.Brokers)
	}
	if c.Forecast.Thresholds.VIXElevated != 20 || c.Forecast.Thresholds.VIXCrisis != 35 {
		t.Fatalf("threshold overrides lost: %+v", c.Forecast.Thresholds)
	}
	if c.Forecast.Thresholds.SpreadCrisis != 200 {
		t.Fatalf("unset thresholds should keep defaults, got %v", c.Forecast.Thresholds.SpreadCrisis)
	}
	if c.Forecast.HorizonDays != 7 {
		t.Fatalf("horizon override lost: %d", c.Forecast.HorizonDays)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing environment", "backend:\n  type: kafka\n"},
		{"missing backend", "environment: test\n"},
		{"bad backend", "environment: test\nbackend:\n  type: postgres\n"},
		{"inverted vix thresholds", minimalYAML + `
forecast:
  thresholds:
    vix_elevated: 40
    vix_crisis: 25
`},
		{"inverted spread thresholds", minimalYAML + `
forecast:
  thresholds:
    spread_elevated: 200
    spread_crisis: 150
`},
		{"quantile out of range", minimalYAML + `
forecast:
  quantiles: [0.05, 1.5]
`},
		{"horizon too long", minimalYAML + `
forecast:
  horizon_days: 45
`},
	}
	for _, c := range cases {
		if _, err := Load(writeConfig(t, c.body)); err == nil {
			t.Fatalf("%s: expected validation error", c.name)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("MARKET_DATA_API_KEY", "secret-key")
	t.Setenv("BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("REDIS_ADDR", "redis-ha:6379")

	c, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.MarketData.APIKey != "secret-key" {
		t.Fatalf("api key env override lost: %q", c.MarketData.APIKey)
	}
	if c.Backend.Type != "kafka" {
		t.Fatalf("backend env override lost: %q", c.Backend.Type)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[0] != "a:9092" {
		t.Fatalf("broker env override lost: %v", c.Kafka.Brokers)
	}
	if c.Forecast.Redis.Addr != "redis-ha:6379" {
		t.Fatalf("redis env override lost: %q", c.Forecast.Redis.Addr)
	}
}
