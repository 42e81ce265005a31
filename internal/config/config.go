// Package config loads and validates workspace configuration from YAML files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Workspace     WorkspaceConfig     `yaml:"workspace"`
	Capability    CapabilityConfig    `yaml:"capability"`
	Seed          SeedConfig          `yaml:"seed"`
	Session       SessionConfig       `yaml:"session"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// WorkspaceConfig describes the rules applied by the workspace service.
type WorkspaceConfig struct {
	MinActiveProfiles int         `yaml:"min_active_profiles"`
	MaxActiveProfiles int         `yaml:"max_active_profiles"`
	DefaultRoute      string      `yaml:"default_route"`
	Actor             ActorConfig `yaml:"actor"`
}

// ActorConfig is the actor used for session steps that don't name one.
type ActorConfig struct {
	SubjectID   string   `yaml:"subject_id"`
	DisplayName string   `yaml:"display_name"`
	Roles       []string `yaml:"roles"`
}

// CapabilityConfig describes authorization settings.
type CapabilityConfig struct {
	Enabled          bool        `yaml:"enabled"`
	StaticPolicyFile string      `yaml:"static_policy_file"`
	Cache            CacheConfig `yaml:"cache"`
}

// CacheConfig describes cache settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// SeedConfig describes where scenario fixtures are loaded from.
type SeedConfig struct {
	File            string `yaml:"file"`
	Checksum        string `yaml:"checksum"`
	StrictChecksums bool   `yaml:"strict_checksums"`
}

// SessionConfig describes session replay settings.
type SessionConfig struct {
	File           string        `yaml:"file"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	StopOnError    bool          `yaml:"stop_on_error"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings. When TextfilePath is
// set, the registry is written there in text exposition format on exit.
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	TextfilePath string `yaml:"textfile_path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			MinActiveProfiles: 1,
			MaxActiveProfiles: 3,
			DefaultRoute:      "patient-profile",
			Actor: ActorConfig{
				SubjectID:   "local-user",
				DisplayName: "Local User",
				Roles:       []string{"admin"},
			},
		},
		Capability: CapabilityConfig{
			Cache: CacheConfig{
				TTL: 5 * time.Minute,
			},
		},
		Seed: SeedConfig{
			StrictChecksums: true,
		},
		Session: SessionConfig{
			IdempotencyTTL: 24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "stdout",
				SamplingRate: 1.0,
			},
			Metrics: MetricsConfig{
				Enabled: true,
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates the result. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []error

	w := c.Workspace
	if w.MinActiveProfiles < 1 {
		errs = append(errs, errors.New("workspace.min_active_profiles must be at least 1"))
	}
	if w.MaxActiveProfiles < w.MinActiveProfiles {
		errs = append(errs, errors.New("workspace.max_active_profiles must not be below min_active_profiles"))
	}
	if w.DefaultRoute == "" {
		errs = append(errs, errors.New("workspace.default_route is required"))
	}
	if w.Actor.SubjectID == "" {
		errs = append(errs, errors.New("workspace.actor.subject_id is required"))
	}
	if c.Capability.Enabled && c.Capability.StaticPolicyFile == "" {
		errs = append(errs, errors.New("capability.static_policy_file is required when capability checks are enabled"))
	}
	if c.Session.IdempotencyTTL < 0 {
		errs = append(errs, errors.New("session.idempotency_ttl must not be negative"))
	}
	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("observability.log_level %q is not one of debug, info, warn, error", c.Observability.LogLevel))
	}
	if t := c.Observability.Tracing; t.Enabled {
		if t.Exporter != "stdout" && t.Exporter != "otlp" {
			errs = append(errs, fmt.Errorf("observability.tracing.exporter %q is not one of stdout, otlp", t.Exporter))
		}
		if t.SamplingRate < 0 || t.SamplingRate > 1 {
			errs = append(errs, errors.New("observability.tracing.sampling_rate must be between 0 and 1"))
		}
	}

	return errors.Join(errs...)
}

// applyEnvOverrides reads TRIALSCOPE_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRIALSCOPE_WORKSPACE_MAX_ACTIVE_PROFILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workspace.MaxActiveProfiles = n
		}
	}
	if v := os.Getenv("TRIALSCOPE_WORKSPACE_MIN_ACTIVE_PROFILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workspace.MinActiveProfiles = n
		}
	}
	if v := os.Getenv("TRIALSCOPE_ACTOR"); v != "" {
		cfg.Workspace.Actor.SubjectID = v
		cfg.Workspace.Actor.DisplayName = v
	}
	if v := os.Getenv("TRIALSCOPE_SEED_FILE"); v != "" {
		cfg.Seed.File = v
	}
	if v := os.Getenv("TRIALSCOPE_SESSION_FILE"); v != "" {
		cfg.Session.File = v
	}
	if v := os.Getenv("TRIALSCOPE_CAPABILITY_POLICY_FILE"); v != "" {
		cfg.Capability.Enabled = true
		cfg.Capability.StaticPolicyFile = v
	}
	if v := os.Getenv("TRIALSCOPE_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("TRIALSCOPE_METRICS_TEXTFILE"); v != "" {
		cfg.Observability.Metrics.TextfilePath = v
	}
}
