package config

import (
	"fmt"
)

// LLMConfig holds configuration for the optional failure triage
type LLMConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Provider    string  `yaml:"provider"` // e.g., "openai"
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`    // e.g., "gpt-4"
	BaseURL     string  `yaml:"base_url"` // Optional, for custom endpoints
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

func (c *LLMConfig) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "gpt-4"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 800
	}
}

// Validate checks the LLM section only when triage is enabled
func (c *LLMConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Provider == "" {
		return fmt.Errorf("LLM provider is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("LLM API key is required when llm.enabled is set")
	}
	if c.Model == "" {
		return fmt.Errorf("LLM model is required")
	}
	return nil
}
