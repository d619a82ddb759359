// Package config handles configuration for tb-repair.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config file is given and it exists.
const DefaultPath = "/etc/tb-repair/config.yaml"

// Config holds all tb-repair configuration.
type Config struct {
	// Endpoint is the job service socket, local or ssh://user@host/path.
	Endpoint string `yaml:"endpoint" toml:"endpoint" validate:"required,endpoint"`
	// JobDelay is the delay in seconds prepended to repair jobs. 0 disables it.
	JobDelay float64 `yaml:"job_delay" toml:"job_delay" validate:"gte=0"`
	// Reason annotates every submitted job.
	Reason   string `yaml:"reason" toml:"reason" validate:"required"`
	DryRun   bool   `yaml:"dry_run" toml:"dry_run"`
	LogLevel string `yaml:"log_level" toml:"log_level" validate:"oneof=debug info warn error"`

	// Durations are strings such as "30s". A bare TOML integer counts
	// nanoseconds and fails the minimum.
	Timeout      time.Duration `yaml:"timeout" toml:"timeout" validate:"gte=1s"`
	WaitTimeout  time.Duration `yaml:"wait_timeout" toml:"wait_timeout" validate:"gte=1s"`
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval" validate:"gte=10ms"`

	Audit      AuditConfig      `yaml:"audit" toml:"audit"`
	Kubernetes KubernetesConfig `yaml:"kubernetes" toml:"kubernetes"`
}

// AuditConfig configures the audit trail. An empty path disables it.
type AuditConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// KubernetesConfig enables the Kubernetes node-health overlay.
type KubernetesConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	Kubeconfig string `yaml:"kubeconfig" toml:"kubeconfig"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		JobDelay:     10,
		Reason:       "automated repair",
		LogLevel:     "info",
		Timeout:      60 * time.Second,
		WaitTimeout:  10 * time.Minute,
		PollInterval: time.Second,
	}
}

// Load returns the defaults overlaid with the file at path. YAML is
// assumed unless the file ends in .toml. With an empty path the default
// location is tried and silently skipped when missing.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			return cfg, nil
		}
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup
// (normally os.LookupEnv).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("TB_REPAIR_ENDPOINT"); ok && v != "" {
		c.Endpoint = v
	}
	if v, ok := lookup("TB_REPAIR_JOB_DELAY"); ok && v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TB_REPAIR_JOB_DELAY: invalid number %q", v)
		}
		c.JobDelay = n
	}
	if v, ok := lookup("TB_REPAIR_REASON"); ok && v != "" {
		c.Reason = v
	}
	if v, ok := lookup("TB_REPAIR_DRY_RUN"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TB_REPAIR_DRY_RUN: invalid boolean %q", v)
		}
		c.DryRun = b
	}
	if v, ok := lookup("TB_REPAIR_LOG_LEVEL"); ok && v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v, ok := lookup("TB_REPAIR_AUDIT_LOG"); ok {
		c.Audit.Path = v
	}
	if v, ok := lookup("KUBECONFIG"); ok && v != "" && c.Kubernetes.Kubeconfig == "" {
		c.Kubernetes.Kubeconfig = v
	}
	return nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("configuration is nil")
	}
	if err := validatorInstance().Struct(c); err != nil {
		return convertValidationError(err)
	}
	return nil
}
