// Package config loads the service configuration: a YAML file for
// structure, .env alongside it for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rallyhq/courtside/internal/roster"
)

// Duration parses "10s"-style YAML values into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type UpstreamConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
	// Loaded from environment
	APIToken string `yaml:"-"`
}

type RosterConfig struct {
	// "keep" leaves the optimistic entry in place when the server rejects
	// an add; "rollback" reverts it.
	AddFailurePolicy string `yaml:"add_failure_policy"`
}

// Policy maps the configured string onto the engine policy.
func (c RosterConfig) Policy() roster.AddFailurePolicy {
	if c.AddFailurePolicy == string(roster.RollbackOnFailure) {
		return roster.RollbackOnFailure
	}
	return roster.KeepOptimistic
}

type EmailConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Region      string `yaml:"region"`
	FromAddress string `yaml:"from_address"`
	// Loaded from environment
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

type RefreshConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
}

type StubDBConfig struct {
	Filename string `yaml:"filename"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		AdminUsers  []int64 `yaml:"admin_users"`
	} `yaml:"app"`

	Upstream UpstreamConfig `yaml:"upstream"`
	Roster   RosterConfig   `yaml:"roster"`
	Email    EmailConfig    `yaml:"email"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	StubDB   StubDBConfig   `yaml:"stub_db"`
}

// Load loads both .env and yaml configuration.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Load sensitive values from environment
	cfg.Upstream.APIToken = os.Getenv("UPSTREAM_API_TOKEN")
	cfg.Email.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.Email.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base URL is required")
	}

	switch c.Roster.AddFailurePolicy {
	case "", string(roster.KeepOptimistic), string(roster.RollbackOnFailure):
	default:
		return fmt.Errorf("unsupported roster add failure policy: %s", c.Roster.AddFailurePolicy)
	}

	if c.Email.Enabled {
		if c.Email.Region == "" {
			return fmt.Errorf("email region is required when email is enabled")
		}
		if c.Email.FromAddress == "" {
			return fmt.Errorf("email from address is required when email is enabled")
		}
	}

	if c.Refresh.Enabled && c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh interval must be positive when the refresh job is enabled")
	}

	return nil
}
