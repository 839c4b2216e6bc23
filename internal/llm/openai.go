package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"mos/internal/logging"
)

// OpenAIConfig configures an OpenAI-compatible client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIClient talks to an OpenAI-compatible /chat/completions endpoint.
// Works against api.openai.com and local servers (llama.cpp, ollama,
// vllm) that speak the same wire format.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// minRequestGap spaces successive requests.
const minRequestGap = 100 * time.Millisecond

const openAIMaxRetries = 3

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates a client. Zero-value fields get defaults
// (api.openai.com, gpt-4o-mini, 2 minute timeout).
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Complete sends a bare user prompt.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteMessages(ctx, []Message{{Role: RoleUser, Content: prompt}})
}

// CompleteWithSystem sends a system message plus a user prompt.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	return c.CompleteMessages(ctx, []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	})
}

// CompleteMessages sends a full conversation.
func (c *OpenAIClient) CompleteMessages(ctx context.Context, messages []Message) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	start := time.Now()
	if c.apiKey == "" && strings.Contains(c.baseURL, "api.openai.com") {
		logging.LLMError("[OpenAI] API key not configured")
		return "", fmt.Errorf("llm: API key not configured")
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("llm: empty message list")
	}
	logging.LLMDebug("[OpenAI] CompleteMessages: model=%s messages=%d", c.model, len(messages))

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < minRequestGap {
		time.Sleep(minRequestGap - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqBody := openAIRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   2048,
		Temperature: 0.7,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	var lastErr error
	for i := 0; i <= openAIMaxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(backoff(i)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("llm: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("llm: request failed: %w", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("llm: read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("llm: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			logging.LLMDebug("[OpenAI] retryable status %d (attempt %d)", resp.StatusCode, i+1)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("llm: request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		var parsed openAIResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", fmt.Errorf("llm: parse response: %w", err)
		}
		if parsed.Error != nil {
			return "", fmt.Errorf("llm: API error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return "", fmt.Errorf("llm: no completion returned")
		}

		out := strings.TrimSpace(parsed.Choices[0].Message.Content)
		logging.LLM("[OpenAI] completed in %v response_len=%d", time.Since(start), len(out))
		return out, nil
	}

	logging.LLMError("[OpenAI] max retries exceeded after %v: %v", time.Since(start), lastErr)
	return "", fmt.Errorf("llm: max retries exceeded: %w", lastErr)
}
