// Package llm provides chat-completion clients for the environment's
// resonance loop. Providers: OpenAI-compatible HTTP endpoints and Google
// Gemini.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"mos/internal/config"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of chat context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is a chat completion backend.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, system, user string) (string, error)
	CompleteMessages(ctx context.Context, messages []Message) (string, error)
}

// New builds a client from config, falling back to environment variables
// for keys.
func New(cfg *config.Config) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	apiKey := cfg.LLM.APIKey
	timeout := cfg.GetLLMTimeout()

	switch provider {
	case "", "openai", "openai-compatible", "local":
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: timeout,
		}), nil
	case "gemini", "google":
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("llm: gemini provider needs an API key (config or GEMINI_API_KEY)")
		}
		return NewGeminiClient(GeminiConfig{
			APIKey:  apiKey,
			Model:   cfg.LLM.Model,
			Timeout: timeout,
		})
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.LLM.Provider)
	}
}

// splitSystem separates leading system messages from the conversation,
// for backends that take a single system instruction.
func splitSystem(messages []Message) (system string, rest []Message) {
	var sys []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n\n"), rest
}

// backoff returns the sleep before retry attempt i (1-based).
func backoff(i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * time.Second
}
