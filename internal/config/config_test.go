package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Timezone != "Europe/Kyiv" {
		t.Fatalf("timezone = %q", cfg.Timezone)
	}
	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Fatalf("interval = %v", cfg.Scheduler.Interval)
	}
	if cfg.Signals.MinConfidence != 0.7 {
		t.Fatalf("min_confidence = %v", cfg.Signals.MinConfidence)
	}
	if cfg.Signals.EntryDelay != 2*time.Minute {
		t.Fatalf("entry_delay = %v", cfg.Signals.EntryDelay)
	}
	if len(cfg.Signals.Assets) != 3 {
		t.Fatalf("assets = %v", cfg.Signals.Assets)
	}
	if cfg.LLM.Model != "llama-3.3-70b-versatile" {
		t.Fatalf("model = %q", cfg.LLM.Model)
	}
	if cfg.Location().String() != "Europe/Kyiv" {
		t.Fatalf("location = %v", cfg.Location())
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
timezone: UTC
signals:
  assets:
    - EURUSD_otc
  min_confidence: 0.8
scheduler:
  interval: 10m
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timezone != "UTC" {
		t.Fatalf("timezone = %q", cfg.Timezone)
	}
	if len(cfg.Signals.Assets) != 1 || cfg.Signals.Assets[0] != "EURUSD_otc" {
		t.Fatalf("assets = %v", cfg.Signals.Assets)
	}
	if cfg.Signals.MinConfidence != 0.8 {
		t.Fatalf("min_confidence = %v", cfg.Signals.MinConfidence)
	}
	if cfg.Scheduler.Interval != 10*time.Minute {
		t.Fatalf("interval = %v", cfg.Scheduler.Interval)
	}
	// Defaults still apply to untouched sections.
	if cfg.Signals.MaxDuration != 5 {
		t.Fatalf("max_duration = %d", cfg.Signals.MaxDuration)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("POCKETBOT_LLM_API_KEY", "sk-test")
	t.Setenv("POCKETBOT_BROKER_SSID", "session-token")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("api key not picked up from env: %q", cfg.LLM.APIKey)
	}
	if cfg.Broker.SSID != "session-token" {
		t.Fatalf("ssid not picked up from env: %q", cfg.Broker.SSID)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return cfg
	}

	cfg := base()
	cfg.Scheduler.Interval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero interval should fail")
	}

	cfg = base()
	cfg.Signals.Assets = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty assets should fail")
	}

	cfg = base()
	cfg.Signals.MinConfidence = 1.4
	if err := cfg.Validate(); err == nil {
		t.Fatal("confidence above 1 should fail")
	}

	cfg = base()
	cfg.Timezone = "Atlantis/Central"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown timezone should fail")
	}

	cfg = base()
	cfg.Alerting.Telegram.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled telegram without token should fail")
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.ResolveMaxPoints(0); got != cfg.Export.MaxDataPoints {
		t.Fatalf("default = %d", got)
	}
	if got := cfg.ResolveMaxPoints(42); got != 42 {
		t.Fatalf("override = %d", got)
	}
}
