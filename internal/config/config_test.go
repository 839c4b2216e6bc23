package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Network.SurvivorFraction != 0.5 {
		t.Errorf("Expected survivor_fraction 0.5, got %v", cfg.Network.SurvivorFraction)
	}
	if cfg.Network.Workers != 4 {
		t.Errorf("Expected workers 4, got %d", cfg.Network.Workers)
	}
	if cfg.Agent.InitialEnergy != 100 {
		t.Errorf("Expected initial_energy 100, got %d", cfg.Agent.InitialEnergy)
	}
	if cfg.Store.Path != ".mos/mos.db" {
		t.Errorf("Expected store path .mos/mos.db, got %s", cfg.Store.Path)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.yaml"))
	if err != nil {
		t.Fatalf("Load with missing file should not error: %v", err)
	}
	if cfg.Name != "MOS" {
		t.Errorf("Expected default name MOS, got %s", cfg.Name)
	}
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".mos", "config.yaml")

	cfg := DefaultConfig()
	cfg.Network.SurvivorFraction = 0.25
	cfg.Network.Workers = 8
	cfg.LLM.Model = "gpt-4o"
	cfg.Policy.Enabled = true

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Network.SurvivorFraction != 0.25 {
		t.Errorf("Expected survivor_fraction 0.25, got %v", loaded.Network.SurvivorFraction)
	}
	if loaded.Network.Workers != 8 {
		t.Errorf("Expected workers 8, got %d", loaded.Network.Workers)
	}
	if loaded.LLM.Model != "gpt-4o" {
		t.Errorf("Expected model gpt-4o, got %s", loaded.LLM.Model)
	}
	if !loaded.Policy.Enabled {
		t.Error("Expected policy.enabled true")
	}
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
network:
  workers: 2
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Network.Workers != 2 {
		t.Errorf("Expected workers 2, got %d", cfg.Network.Workers)
	}
	if cfg.Network.SurvivorFraction != 0.5 {
		t.Errorf("Partial config should keep default survivor_fraction, got %v", cfg.Network.SurvivorFraction)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MOS_DB", "/tmp/override.db")
	t.Setenv("MOS_POLICY_RULES", "/tmp/rules.mg")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Path != "/tmp/override.db" {
		t.Errorf("MOS_DB override not applied: %s", cfg.Store.Path)
	}
	if cfg.Policy.RulesPath != "/tmp/rules.mg" || !cfg.Policy.Enabled {
		t.Errorf("MOS_POLICY_RULES override not applied: %+v", cfg.Policy)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("OPENAI_API_KEY override not applied")
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.GetLLMTimeout(); got != 120*time.Second {
		t.Errorf("Expected 120s LLM timeout, got %v", got)
	}
	if got := cfg.GetReflectInterval(); got != 30*time.Second {
		t.Errorf("Expected 30s reflect interval, got %v", got)
	}

	cfg.LLM.Timeout = "garbage"
	cfg.Agent.ReflectInterval = ""
	if got := cfg.GetLLMTimeout(); got != 120*time.Second {
		t.Errorf("Invalid timeout should fall back to 120s, got %v", got)
	}
	if got := cfg.GetReflectInterval(); got != 30*time.Second {
		t.Errorf("Invalid interval should fall back to 30s, got %v", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"zero fraction", func(c *Config) { c.Network.SurvivorFraction = 0 }, true},
		{"fraction above one", func(c *Config) { c.Network.SurvivorFraction = 1.5 }, true},
		{"zero workers", func(c *Config) { c.Network.Workers = 0 }, true},
		{"energy out of range", func(c *Config) { c.Agent.InitialEnergy = 150 }, true},
		{"bad provider", func(c *Config) { c.LLM.Provider = "carrier-pigeon" }, true},
		{"gemini provider", func(c *Config) { c.LLM.Provider = "gemini" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
