package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides_LLM(t *testing.T) {
	t.Run("OPENAI_API_KEY sets provider if empty", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("GEMINI_API_KEY", "")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "oa-key", cfg.LLM.APIKey)
		assert.Equal(t, "openai", cfg.LLM.Provider)
	})

	t.Run("OPENAI_API_KEY does not override existing provider", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("GEMINI_API_KEY", "")

		cfg := &Config{LLM: LLMConfig{Provider: "openai-compatible"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "oa-key", cfg.LLM.APIKey)
		assert.Equal(t, "openai-compatible", cfg.LLM.Provider)
	})

	t.Run("Precedence: OPENAI wins over GEMINI for completion", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("GEMINI_API_KEY", "gm-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "oa-key", cfg.LLM.APIKey)
		assert.Equal(t, "openai", cfg.LLM.Provider)
		// Gemini key still feeds the embedding engine
		assert.Equal(t, "gm-key", cfg.Embedding.APIKey)
	})

	t.Run("GEMINI_API_KEY alone switches provider", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		t.Setenv("GEMINI_API_KEY", "gm-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gm-key", cfg.LLM.APIKey)
		assert.Equal(t, "gemini", cfg.LLM.Provider)
	})

	t.Run("Config file keys are not clobbered", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "env-key")
		t.Setenv("GEMINI_API_KEY", "")

		cfg := &Config{LLM: LLMConfig{APIKey: "file-key"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "file-key", cfg.LLM.APIKey)
	})
}

func TestEnvOverrides_Paths(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("MOS_DB", "/tmp/override.db")
	t.Setenv("MOS_POLICY_RULES", "/tmp/rules.mg")
	t.Setenv("MOS_OLLAMA_ENDPOINT", "http://embed-host:11434")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	require.Equal(t, "/tmp/override.db", cfg.Store.Path)
	assert.Equal(t, "/tmp/rules.mg", cfg.Policy.RulesPath)
	assert.True(t, cfg.Policy.Enabled, "rules path override should enable the policy kernel")
	assert.Equal(t, "http://embed-host:11434", cfg.Embedding.Endpoint)
}
