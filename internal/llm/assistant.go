package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/metrics"
	"github.com/spherical-ai/bess-advisor/internal/observability"
)

// AssistantConfig holds settings for the threads and runs workflow.
type AssistantConfig struct {
	APIKey      string
	BaseURL     string
	AssistantID string
	Timeout     time.Duration
	Poll        PollConfig
}

// AssistantClient continues conversations through hosted assistant threads.
// Each local thread id is bound to one remote thread on first use.
type AssistantClient struct {
	http        *resty.Client
	assistantID string
	poll        PollConfig
	logger      *observability.Logger

	mu      sync.Mutex
	threads map[string]string
}

var _ Responder = (*AssistantClient)(nil)

type threadResponse struct {
	ID string `json:"id"`
}

type runResponse struct {
	ID        string    `json:"id"`
	Status    RunStatus `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error,omitempty"`
}

type messageList struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// NewAssistantClient creates an assistant client.
func NewAssistantClient(cfg AssistantConfig, logger *observability.Logger) (*AssistantClient, error) {
	if cfg.APIKey == "" {
		return nil, domain.ConfigError("LLM API key is required", nil)
	}
	if cfg.AssistantID == "" {
		return nil, domain.ConfigError("assistant id is required", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Poll.MaxAttempts <= 0 {
		cfg.Poll = DefaultPollConfig()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("OpenAI-Beta", "assistants=v2").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && shouldRetry(r.StatusCode()))
		})

	return &AssistantClient{
		http:        client,
		assistantID: cfg.AssistantID,
		poll:        cfg.Poll,
		logger:      logger.WithOperation("llm.assistant"),
		threads:     make(map[string]string),
	}, nil
}

// Respond posts the latest user message to the bound remote thread, starts a
// run, waits for it within the polling budget and returns the newest reply.
func (a *AssistantClient) Respond(ctx context.Context, threadID string, history []Message) (string, error) {
	timer := metrics.NewTimer()

	content := lastUserMessage(history)
	if content == "" {
		return "", domain.ValidationError("no user message to send", nil)
	}

	remote, err := a.remoteThread(ctx, threadID)
	if err != nil {
		metrics.RecordLLMRequest("assistant", "error", timer.Duration())
		return "", err
	}

	if err := a.post(ctx, "/threads/{thread}/messages", remote, map[string]string{
		"role":    RoleUser,
		"content": content,
	}, nil); err != nil {
		metrics.RecordLLMRequest("assistant", "error", timer.Duration())
		return "", domain.APIError("append thread message", err)
	}

	var run runResponse
	if err := a.post(ctx, "/threads/{thread}/runs", remote, map[string]string{
		"assistant_id": a.assistantID,
	}, &run); err != nil {
		metrics.RecordLLMRequest("assistant", "error", timer.Duration())
		return "", domain.APIError("start run", err)
	}
	if run.ID == "" {
		metrics.RecordLLMRequest("assistant", "error", timer.Duration())
		return "", domain.APIError("start run returned no id", nil)
	}

	status, err := PollRun(ctx, a.poll, func(ctx context.Context) (RunStatus, error) {
		var current runResponse
		resp, err := a.http.R().
			SetContext(ctx).
			SetPathParams(map[string]string{"thread": remote, "run": run.ID}).
			SetResult(&current).
			Get("/threads/{thread}/runs/{run}")
		if err != nil {
			return "", err
		}
		if resp.IsError() {
			return "", fmt.Errorf("get run: %s", resp.Status())
		}
		return current.Status, nil
	})
	if err != nil {
		metrics.RecordLLMRequest("assistant", string(status), timer.Duration())
		a.logger.Warn().
			Str("thread_id", threadID).
			Str("run_id", run.ID).
			Str("status", string(status)).
			Err(err).
			Msg("Assistant run did not complete")
		return "", domain.APIError("await run", err)
	}

	var list messageList
	resp, err := a.http.R().
		SetContext(ctx).
		SetPathParam("thread", remote).
		SetQueryParams(map[string]string{"order": "desc", "limit": "1"}).
		SetResult(&list).
		Get("/threads/{thread}/messages")
	if err != nil || resp.IsError() {
		metrics.RecordLLMRequest("assistant", "error", timer.Duration())
		return "", domain.APIError("list thread messages", responseErr(resp, err))
	}

	metrics.RecordLLMRequest("assistant", "ok", timer.Duration())

	for _, msg := range list.Data {
		if msg.Role != RoleAssistant {
			continue
		}
		var sb strings.Builder
		for _, part := range msg.Content {
			if part.Type == "text" {
				sb.WriteString(part.Text.Value)
			}
		}
		return sb.String(), nil
	}
	return "", domain.APIError("assistant produced no reply", nil)
}

func (a *AssistantClient) remoteThread(ctx context.Context, threadID string) (string, error) {
	a.mu.Lock()
	remote, ok := a.threads[threadID]
	a.mu.Unlock()
	if ok {
		return remote, nil
	}

	var created threadResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(map[string]any{}).
		SetResult(&created).
		Post("/threads")
	if err != nil || resp.IsError() {
		return "", domain.APIError("create thread", responseErr(resp, err))
	}
	if created.ID == "" {
		return "", domain.APIError("create thread returned no id", nil)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// another turn may have bound the thread while we were creating one
	if existing, ok := a.threads[threadID]; ok {
		return existing, nil
	}
	a.threads[threadID] = created.ID
	return created.ID, nil
}

func (a *AssistantClient) post(ctx context.Context, path, remote string, body any, result any) error {
	req := a.http.R().
		SetContext(ctx).
		SetPathParam("thread", remote).
		SetBody(body)
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Post(path)
	return responseErr(resp, err)
}

func responseErr(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp != nil && resp.IsError() {
		return fmt.Errorf("HTTP %s: %s", resp.Status(), truncate(resp.String(), 300))
	}
	return nil
}

func lastUserMessage(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Content
		}
	}
	return ""
}
