// Package llm talks to OpenAI-compatible chat models and parses the
// structured payloads they embed in free text.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/metrics"
	"github.com/spherical-ai/bess-advisor/internal/observability"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second
)

// Message is one role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles used in chat requests.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Completer performs a stateless completion over an ordered message list.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Responder continues a conversation identified by threadID.
type Responder interface {
	Respond(ctx context.Context, threadID string, history []Message) (string, error)
}

// Config holds chat client configuration.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	Temperature float64
	Retry       *RetryConfig
}

// Client calls the /chat/completions endpoint.
type Client struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	retry       *RetryConfig
	httpClient  *http.Client
	logger      *observability.Logger
}

var (
	_ Completer = (*Client)(nil)
	_ Responder = (*Client)(nil)
)

// Request is the chat completion request body.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// Response is the chat completion response body.
type Response struct {
	ID      string     `json:"id"`
	Choices []Choice   `json:"choices"`
	Error   *errorBody `json:"error,omitempty"`
}

// Choice is a single completion choice.
type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewClient creates a chat completion client.
func NewClient(cfg Config, logger *observability.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, domain.ConfigError("LLM API key is required", nil)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Client{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		temperature: cfg.Temperature,
		retry:       cfg.Retry,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger.WithOperation("llm.chat"),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Complete sends messages and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	timer := metrics.NewTimer()

	body, err := json.Marshal(Request{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", domain.APIError("marshal request", err)
	}

	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		return c.httpClient.Do(req)
	})
	if err != nil {
		metrics.RecordLLMRequest("chat", "error", timer.Duration())
		return "", domain.APIError("send chat request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordLLMRequest("chat", "error", timer.Duration())
		return "", domain.APIError("read chat response", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.RecordLLMRequest("chat", fmt.Sprintf("%d", resp.StatusCode), timer.Duration())
		return "", domain.APIError(fmt.Sprintf("chat API returned status %d: %s", resp.StatusCode, truncate(string(raw), 300)), nil)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		metrics.RecordLLMRequest("chat", "decode_error", timer.Duration())
		return "", domain.APIError("decode chat response", err)
	}
	if out.Error != nil {
		metrics.RecordLLMRequest("chat", "api_error", timer.Duration())
		return "", domain.APIError("chat API error: "+out.Error.Message, nil)
	}
	if len(out.Choices) == 0 {
		metrics.RecordLLMRequest("chat", "empty", timer.Duration())
		return "", domain.APIError("chat API returned no choices", nil)
	}

	metrics.RecordLLMRequest("chat", "ok", timer.Duration())
	c.logger.Debug().
		Str("model", c.model).
		Int("messages", len(messages)).
		Dur("duration", timer.Duration()).
		Msg("Chat completion finished")

	return out.Choices[0].Message.Content, nil
}

// Respond completes the full history; chat completions keep no server state.
func (c *Client) Respond(ctx context.Context, threadID string, history []Message) (string, error) {
	return c.Complete(ctx, history)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
