package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mos/internal/logging"

	"google.golang.org/genai"
)

// GeminiConfig configures a Gemini client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GeminiClient completes through the Gemini API via the official SDK.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a Gemini-backed client.
func NewGeminiClient(cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// Complete sends a bare user prompt.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteMessages(ctx, []Message{{Role: RoleUser, Content: prompt}})
}

// CompleteWithSystem sends a system instruction plus a user prompt.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	return c.CompleteMessages(ctx, []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	})
}

// CompleteMessages sends a conversation. System messages are folded into
// a single system instruction; assistant turns map to the model role.
func (c *GeminiClient) CompleteMessages(ctx context.Context, messages []Message) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("llm: empty message list")
	}

	start := time.Now()
	system, rest := splitSystem(messages)

	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("llm: no user content")
	}

	var genCfg *genai.GenerateContentConfig
	if system != "" {
		genCfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, genCfg)
	if err != nil {
		logging.LLMError("[Gemini] GenerateContent failed: %v", err)
		return "", fmt.Errorf("llm: gemini completion: %w", err)
	}

	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", fmt.Errorf("llm: no completion returned")
	}
	logging.LLM("[Gemini] completed in %v response_len=%d", time.Since(start), len(out))
	return out, nil
}
