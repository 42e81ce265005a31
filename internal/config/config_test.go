package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Workspace.MaxActiveProfiles != 2 {
		t.Errorf("Workspace.MaxActiveProfiles = %d, want 2", cfg.Workspace.MaxActiveProfiles)
	}
	if cfg.Workspace.DefaultRoute != "site-profile" {
		t.Errorf("Workspace.DefaultRoute = %q", cfg.Workspace.DefaultRoute)
	}
	if cfg.Workspace.Actor.SubjectID != "u-ops-1" || len(cfg.Workspace.Actor.Roles) != 2 {
		t.Errorf("Workspace.Actor = %+v", cfg.Workspace.Actor)
	}
	if !cfg.Capability.Enabled || cfg.Capability.Cache.TTL != 2*time.Minute {
		t.Errorf("Capability = %+v", cfg.Capability)
	}
	if cfg.Seed.StrictChecksums {
		t.Error("Seed.StrictChecksums = true, want false")
	}
	if cfg.Session.IdempotencyTTL != time.Hour || !cfg.Session.StopOnError {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.Observability.Tracing.Exporter != "otlp" || cfg.Observability.Tracing.SamplingRate != 0.5 {
		t.Errorf("Tracing = %+v", cfg.Observability.Tracing)
	}
	if cfg.Observability.Metrics.TextfilePath != "/var/lib/node_exporter/trialscope.prom" {
		t.Errorf("Metrics.TextfilePath = %q", cfg.Observability.Metrics.TextfilePath)
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_empty_path_uses_defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Workspace.MaxActiveProfiles != 3 {
		t.Errorf("MaxActiveProfiles = %d, want 3", cfg.Workspace.MaxActiveProfiles)
	}
}

func TestLoad_invalid_reports_every_field(t *testing.T) {
	_, err := Load("testdata/invalid.yaml")
	if err == nil {
		t.Fatal("Load() with invalid file should return error")
	}
	for _, want := range []string{"max_active_profiles", "default_route", "log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Workspace.MinActiveProfiles != 1 || cfg.Workspace.MaxActiveProfiles != 3 {
		t.Errorf("default bounds = [%d, %d], want [1, 3]", cfg.Workspace.MinActiveProfiles, cfg.Workspace.MaxActiveProfiles)
	}
	if cfg.Workspace.DefaultRoute != "patient-profile" {
		t.Errorf("default DefaultRoute = %q", cfg.Workspace.DefaultRoute)
	}
	if cfg.Capability.Cache.TTL != 5*time.Minute {
		t.Errorf("default Capability.Cache.TTL = %v, want 5m", cfg.Capability.Cache.TTL)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults().Validate() = %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRIALSCOPE_WORKSPACE_MAX_ACTIVE_PROFILES", "4")
	t.Setenv("TRIALSCOPE_ACTOR", "dr-okafor")
	t.Setenv("TRIALSCOPE_SEED_FILE", "/tmp/seed.yaml")
	t.Setenv("TRIALSCOPE_OBSERVABILITY_LOG_LEVEL", "error")
	t.Setenv("TRIALSCOPE_METRICS_TEXTFILE", "/tmp/metrics.prom")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Workspace.MaxActiveProfiles != 4 {
		t.Errorf("MaxActiveProfiles = %d, want 4 (env override beats file)", cfg.Workspace.MaxActiveProfiles)
	}
	if cfg.Workspace.Actor.SubjectID != "dr-okafor" {
		t.Errorf("Actor.SubjectID = %q, want env override", cfg.Workspace.Actor.SubjectID)
	}
	if cfg.Seed.File != "/tmp/seed.yaml" {
		t.Errorf("Seed.File = %q, want env override", cfg.Seed.File)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env override)", cfg.Observability.LogLevel)
	}
	if cfg.Observability.Metrics.TextfilePath != "/tmp/metrics.prom" {
		t.Errorf("TextfilePath = %q", cfg.Observability.Metrics.TextfilePath)
	}
}

func TestEnvOverrides_policyFileEnablesCapabilities(t *testing.T) {
	t.Setenv("TRIALSCOPE_CAPABILITY_POLICY_FILE", "/etc/policies.yaml")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Capability.Enabled || cfg.Capability.StaticPolicyFile != "/etc/policies.yaml" {
		t.Errorf("Capability = %+v", cfg.Capability)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero minimum", func(c *Config) { c.Workspace.MinActiveProfiles = 0 }},
		{"max below min", func(c *Config) { c.Workspace.MaxActiveProfiles = 0 }},
		{"no actor", func(c *Config) { c.Workspace.Actor.SubjectID = "" }},
		{"capabilities without policy", func(c *Config) { c.Capability.Enabled = true }},
		{"negative ttl", func(c *Config) { c.Session.IdempotencyTTL = -time.Second }},
		{"unknown exporter", func(c *Config) {
			c.Observability.Tracing.Enabled = true
			c.Observability.Tracing.Exporter = "zipkin"
		}},
		{"sampling rate above one", func(c *Config) {
			c.Observability.Tracing.Enabled = true
			c.Observability.Tracing.SamplingRate = 1.5
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
