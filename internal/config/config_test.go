// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Run from a temp dir so no stray config.yaml is picked up.
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Listen != ":8080" {
		t.Errorf("server.listen = %s, want :8080", cfg.Server.Listen)
	}
	if cfg.DDoS.MaxPerSecond != 20 {
		t.Errorf("ddos.max_per_second = %d, want 20", cfg.DDoS.MaxPerSecond)
	}
	if cfg.DDoS.MaxPerMinute != 300 {
		t.Errorf("ddos.max_per_minute = %d, want 300", cfg.DDoS.MaxPerMinute)
	}
	if cfg.DDoS.BlockDuration != 5*time.Minute {
		t.Errorf("ddos.block_duration = %v, want 5m", cfg.DDoS.BlockDuration)
	}
	if !cfg.WAF.Enabled {
		t.Error("waf should be enabled by default")
	}
	if cfg.WAF.BlockHighSeverity {
		t.Error("waf.block_high_severity should default to false")
	}
	if cfg.Anomaly.FailedLoginThreshold != 5 {
		t.Errorf("anomaly.failed_login_threshold = %d, want 5", cfg.Anomaly.FailedLoginThreshold)
	}
	if cfg.Threat.AutoBlockHighCount != 5 {
		t.Errorf("threat.auto_block_high_count = %d, want 5", cfg.Threat.AutoBlockHighCount)
	}
	if cfg.Audit.MaxEntries != 10000 {
		t.Errorf("audit.max_entries = %d, want 10000", cfg.Audit.MaxEntries)
	}
	if cfg.Admin.RateLimit != 60 {
		t.Errorf("admin.rate_limit = %d, want 60", cfg.Admin.RateLimit)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.yaml")
	content := `
server:
  listen: ":9090"
ddos:
  max_per_second: 50
  max_per_minute: 600
waf:
  block_high_severity: true
lists:
  deny:
    - 203.0.113.99
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Listen != ":9090" {
		t.Errorf("server.listen = %s, want :9090", cfg.Server.Listen)
	}
	if cfg.DDoS.MaxPerSecond != 50 {
		t.Errorf("ddos.max_per_second = %d, want 50", cfg.DDoS.MaxPerSecond)
	}
	if !cfg.WAF.BlockHighSeverity {
		t.Error("waf.block_high_severity should be true")
	}
	// Untouched keys keep defaults.
	if cfg.DDoS.BlockDuration != 5*time.Minute {
		t.Errorf("ddos.block_duration = %v, want default 5m", cfg.DDoS.BlockDuration)
	}
	if got := cfg.Lists.DeniedIPs(); len(got) != 1 || got[0] != "203.0.113.99" {
		t.Errorf("lists.deny = %v, want [203.0.113.99]", got)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.yaml")
	if err := os.WriteFile(path, []byte("ddos:\n  max_per_second: 50\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("SENTINEL_DDOS__MAX_PER_SECOND", "75")
	t.Setenv("SENTINEL_LOGGING__LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DDoS.MaxPerSecond != 75 {
		t.Errorf("ddos.max_per_second = %d, want env override 75", cfg.DDoS.MaxPerSecond)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %s, want debug", cfg.Logging.Level)
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"SENTINEL_SERVER__LISTEN", "server.listen"},
		{"SENTINEL_DDOS__MAX_PER_SECOND", "ddos.max_per_second"},
		{"SENTINEL_WAF__BLOCK_HIGH_SEVERITY", "waf.block_high_severity"},
	}
	for _, tt := range tests {
		if got := envTransform(tt.in); got != tt.want {
			t.Errorf("envTransform(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Server.Listen = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"zero max per second", func(c *Config) { c.DDoS.MaxPerSecond = 0 }},
		{"bad allowlist ip", func(c *Config) { c.DDoS.Allowlist = []string{"not-an-ip"} }},
		{"bad custom rule severity", func(c *Config) {
			c.WAF.CustomRules = []CustomRule{{Category: "sql", Name: "x", Pattern: "y", Severity: "severe"}}
		}},
		{"bad webhook url", func(c *Config) { c.Incident.WebhookURL = "not a url" }},
		{"tiny audit store", func(c *Config) { c.Audit.MaxEntries = 10 }},
		{"bad deny seed", func(c *Config) { c.Lists.Deny = []string{"999.1.1.1.1"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate returned %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestValidateCrossFieldRateLimits(t *testing.T) {
	cfg := defaultConfig()
	cfg.DDoS.MaxPerSecond = 500
	cfg.DDoS.MaxPerMinute = 300

	err := Validate(cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate returned %v, want ErrInvalidConfig", err)
	}
	if !strings.Contains(err.Error(), "max_per_second") {
		t.Errorf("error should name the offending keys, got %q", err)
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Validate(defaultConfig()); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}
