// Package config loads MOS configuration from .mos/config.yaml with
// defaults and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all MOS configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Evolutionary network configuration
	Network NetworkConfig `yaml:"network"`

	// Agent configuration
	Agent AgentConfig `yaml:"agent"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Embedding configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Store configuration
	Store StoreConfig `yaml:"store"`

	// Policy kernel configuration
	Policy PolicyConfig `yaml:"policy"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// NetworkConfig configures the MemeNetwork evolutionary cycle.
type NetworkConfig struct {
	// SurvivorFraction is the fraction of the population that survives
	// each cycle (ranked by fitness). The original keeps the top half.
	SurvivorFraction float64 `yaml:"survivor_fraction"`

	// Workers bounds parallel fitness scoring.
	Workers int `yaml:"workers"`

	// Evaluator selects the fitness source: "random" or "static".
	Evaluator string `yaml:"evaluator"`
}

// AgentConfig configures the UnifiedMemeticAgent.
type AgentConfig struct {
	InitialEnergy   int    `yaml:"initial_energy"`
	ReflectInterval string `yaml:"reflect_interval"`
	AutoPersist     bool   `yaml:"auto_persist"`
}

// LLMConfig configures the completion client.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// EmbeddingConfig configures the embedding engine used for meme association.
type EmbeddingConfig struct {
	Provider      string  `yaml:"provider"` // ollama, genai
	Endpoint      string  `yaml:"endpoint"`
	Model         string  `yaml:"model"`
	APIKey        string  `yaml:"api_key"`
	LinkThreshold float64 `yaml:"link_threshold"`
}

// StoreConfig configures SQLite persistence.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// PolicyConfig configures the Datalog strategy policy kernel.
type PolicyConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RulesPath string `yaml:"rules_path"` // optional override; watched for changes
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
	JSON       bool            `yaml:"json"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "MOS",
		Version: "0.1.0",

		Network: NetworkConfig{
			SurvivorFraction: 0.5,
			Workers:          4,
			Evaluator:        "random",
		},

		Agent: AgentConfig{
			InitialEnergy:   100,
			ReflectInterval: "30s",
			AutoPersist:     true,
		},

		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  "120s",
		},

		Embedding: EmbeddingConfig{
			Provider:      "ollama",
			Endpoint:      "http://localhost:11434",
			Model:         "embeddinggemma",
			LinkThreshold: 0.75,
		},

		Store: StoreConfig{
			Path: ".mos/mos.db",
		},

		Policy: PolicyConfig{
			Enabled: false,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default config file path under the workspace.
func DefaultPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".mos", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "openai"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = key
			c.LLM.Provider = "gemini"
		}
		if c.Embedding.APIKey == "" {
			c.Embedding.APIKey = key
		}
	}

	if path := os.Getenv("MOS_DB"); path != "" {
		c.Store.Path = path
	}
	if path := os.Getenv("MOS_POLICY_RULES"); path != "" {
		c.Policy.RulesPath = path
		c.Policy.Enabled = true
	}
	if endpoint := os.Getenv("MOS_OLLAMA_ENDPOINT"); endpoint != "" {
		c.Embedding.Endpoint = endpoint
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetReflectInterval returns the agent reflection interval as a duration.
func (c *Config) GetReflectInterval() time.Duration {
	d, err := time.ParseDuration(c.Agent.ReflectInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"openai", "gemini", "openai-compatible"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Network.SurvivorFraction <= 0 || c.Network.SurvivorFraction > 1 {
		return fmt.Errorf("network.survivor_fraction must be in (0, 1], got %v", c.Network.SurvivorFraction)
	}
	if c.Network.Workers < 1 {
		return fmt.Errorf("network.workers must be >= 1, got %d", c.Network.Workers)
	}
	if c.Agent.InitialEnergy < 0 || c.Agent.InitialEnergy > 100 {
		return fmt.Errorf("agent.initial_energy must be in [0, 100], got %d", c.Agent.InitialEnergy)
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	return nil
}
