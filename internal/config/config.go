package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no config path is given
const DefaultPath = "config/config.yaml"

// Config holds the application configuration
type Config struct {
	Environment Environment     `yaml:"environment"`
	Test        TestConfig      `yaml:"test"`
	Reporting   ReportingConfig `yaml:"reporting"`
	Logging     LoggingConfig   `yaml:"logging"`
	LLM         LLMConfig       `yaml:"llm"`
}

// Environment holds the target API settings
type Environment struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// InsecureTLS disables certificate verification on the transport only.
	InsecureTLS bool `yaml:"insecure_tls"`
	// Contract is a file path or URL of the OpenAPI contract. Empty uses the
	// embedded museum contract.
	Contract string `yaml:"contract"`
}

// TestConfig holds test execution configuration
type TestConfig struct {
	MaxWorkers    int         `yaml:"max_workers"`
	TimeoutMS     int         `yaml:"timeout_ms"`
	RatePerSecond float64     `yaml:"rate_per_second"`
	Retry         RetryConfig `yaml:"retry"`
	// FailOnInfrastructureError makes transport failures affect the exit code.
	FailOnInfrastructureError bool     `yaml:"fail_on_infrastructure_error"`
	Only                      []string `yaml:"only"`
}

// RetryConfig holds retry configuration for transport errors. A nil
// Attempts means the key was absent; 0 turns retries off.
type RetryConfig struct {
	Attempts *int `yaml:"attempts"`
	DelayMS  int `yaml:"delay_ms"`
}

// ReportingConfig holds reporting configuration
type ReportingConfig struct {
	Format    []string `yaml:"format"`
	OutputDir string   `yaml:"output_dir"`
	Detailed  bool     `yaml:"detailed"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// MaxRetryAttempts bounds transport retries. Contract failures are never retried.
const MaxRetryAttempts = 1

// LoadConfig loads the configuration from a YAML file and environment
// variables. A missing file is not an error; defaults and the environment
// still apply.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	var config Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BASE_API_URL"); v != "" {
		c.Environment.BaseURL = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		c.Environment.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Test.MaxWorkers == 0 {
		c.Test.MaxWorkers = 5
	}
	if c.Test.TimeoutMS == 0 {
		c.Test.TimeoutMS = 10000
	}
	if c.Test.Retry.Attempts == nil || *c.Test.Retry.Attempts > MaxRetryAttempts {
		attempts := MaxRetryAttempts
		c.Test.Retry.Attempts = &attempts
	}
	if c.Test.Retry.DelayMS == 0 {
		c.Test.Retry.DelayMS = 250
	}
	if len(c.Reporting.Format) == 0 {
		c.Reporting.Format = []string{"json", "text"}
	}
	if c.Reporting.OutputDir == "" {
		c.Reporting.OutputDir = filepath.Join("reports")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
	c.LLM.applyDefaults()
}

// Validate reports every configuration problem at once
func (c *Config) Validate() error {
	var errs []error
	if c.Environment.BaseURL == "" {
		errs = append(errs, errors.New("environment.base_url (or BASE_API_URL) is required"))
	}
	if c.Environment.APIKey == "" {
		errs = append(errs, errors.New("environment.api_key (or API_KEY) is required"))
	}
	if c.Test.MaxWorkers < 0 {
		errs = append(errs, fmt.Errorf("test.max_workers must not be negative, got %d", c.Test.MaxWorkers))
	}
	if c.Test.TimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("test.timeout_ms must not be negative, got %d", c.Test.TimeoutMS))
	}
	if c.Test.Retry.Attempts != nil && *c.Test.Retry.Attempts < 0 {
		errs = append(errs, fmt.Errorf("test.retry.attempts must not be negative, got %d", *c.Test.Retry.Attempts))
	}
	if c.Test.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("test.rate_per_second must not be negative, got %v", c.Test.RatePerSecond))
	}
	for _, f := range c.Reporting.Format {
		switch f {
		case "json", "text", "prom":
		default:
			errs = append(errs, fmt.Errorf("unsupported report format %q", f))
		}
	}
	if err := c.LLM.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
