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
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval default = %v", cfg.PollInterval)
	}
	if cfg.HealthRetries != 5 {
		t.Errorf("HealthRetries default = %d", cfg.HealthRetries)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel default = %s", cfg.LogLevel)
	}
	if cfg.StateDir == "" {
		t.Error("StateDir default empty")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AIFCTL_LOG_LEVEL", "debug")
	t.Setenv("AIFCTL_HEALTH_RETRIES", "9")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Env override ignored: %s", cfg.LogLevel)
	}
	if cfg.HealthRetries != 9 {
		t.Errorf("Env override ignored: %d", cfg.HealthRetries)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := "state_dir: /srv/aif\npoll_interval: 30s\nlog_json: true\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StateDir != "/srv/aif" {
		t.Errorf("StateDir = %s", cfg.StateDir)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if !cfg.LogJSON {
		t.Error("LogJSON not set from file")
	}
	// Unset keys keep their defaults.
	if cfg.HealthRetries != 5 {
		t.Errorf("HealthRetries = %d", cfg.HealthRetries)
	}
}

func TestLoadMalformedConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(":\n  - ["), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed config file")
	}
}

func TestLoadMalformedDiscoveredConfigFile(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, ".aifctl")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(":\n  - ["), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("HOME", home)

	if _, err := Load(""); err == nil {
		t.Error("Expected error for malformed discovered config file")
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{StateDir: "/srv/aif", ResultsDir: "/srv/aif/results"}

	if cfg.JobStorePath() != "/srv/aif/jobs.json" {
		t.Errorf("JobStorePath = %s", cfg.JobStorePath())
	}
	if cfg.BenchmarkResultsDir() != "/srv/aif/results/benchmarks" {
		t.Errorf("BenchmarkResultsDir = %s", cfg.BenchmarkResultsDir())
	}
	if cfg.MonitoringResultsDir() != "/srv/aif/results/monitoring" {
		t.Errorf("MonitoringResultsDir = %s", cfg.MonitoringResultsDir())
	}
}
