package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/bess-advisor/internal/domain"
)

type fakeAssistantAPI struct {
	threadsCreated int32
	runPolls       int32
	completeAfter  int32
	messages       []string
}

func (f *fakeAssistantAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /threads", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.threadsCreated, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "thread_abc"})
	})

	mux.HandleFunc("POST /threads/thread_abc/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "assistants=v2", r.Header.Get("OpenAI-Beta"))
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.messages = append(f.messages, body["content"])
		_, _ = w.Write([]byte(`{"id":"msg_1"}`))
	})

	mux.HandleFunc("POST /threads/thread_abc/runs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"run_1","status":"queued"}`))
	})

	mux.HandleFunc("GET /threads/thread_abc/runs/run_1", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.runPolls, 1)
		status := RunInProgress
		if f.completeAfter > 0 && n >= f.completeAfter {
			status = RunCompleted
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": string(status)})
	})

	mux.HandleFunc("GET /threads/thread_abc/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		_, _ = w.Write([]byte(`{"data":[{"role":"assistant","content":[{"type":"text","text":{"value":"A 4 hour system fits."}}]}]}`))
	})

	return jsonContent(mux)
}

// jsonContent labels every response as JSON, as the real API does, so the
// client decodes result bodies.
func jsonContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func newTestAssistant(t *testing.T, url string, attempts int) *AssistantClient {
	t.Helper()
	client, err := NewAssistantClient(AssistantConfig{
		APIKey:      "sk-test",
		BaseURL:     url,
		AssistantID: "asst_1",
		Poll:        PollConfig{MaxAttempts: attempts, Interval: time.Millisecond},
	}, nil)
	require.NoError(t, err)
	return client
}

func TestAssistantClient_Respond(t *testing.T) {
	api := &fakeAssistantAPI{completeAfter: 2}
	server := httptest.NewServer(api.handler(t))
	defer server.Close()

	client := newTestAssistant(t, server.URL, 5)
	history := []Message{
		{Role: RoleUser, Content: "I need 10 MW"},
		{Role: RoleAssistant, Content: "For how long?"},
		{Role: RoleUser, Content: "Four hours"},
	}

	reply, err := client.Respond(context.Background(), "local-1", history)
	require.NoError(t, err)
	assert.Equal(t, "A 4 hour system fits.", reply)
	assert.Equal(t, []string{"Four hours"}, api.messages)

	// the remote thread is reused for the same local thread
	api.runPolls = 0
	_, err = client.Respond(context.Background(), "local-1", history)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.threadsCreated))
}

func TestAssistantClient_PollBudgetExhausted(t *testing.T) {
	api := &fakeAssistantAPI{}
	server := httptest.NewServer(api.handler(t))
	defer server.Close()

	client := newTestAssistant(t, server.URL, 3)

	_, err := client.Respond(context.Background(), "local-2", []Message{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeAPI))
	assert.ErrorIs(t, err, ErrRunTimeout)
	assert.Equal(t, int32(3), atomic.LoadInt32(&api.runPolls))
}

func TestAssistantClient_RequiresUserMessage(t *testing.T) {
	client := newTestAssistant(t, "http://127.0.0.1:1", 1)
	_, err := client.Respond(context.Background(), "t", []Message{{Role: RoleAssistant, Content: "hello"}})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestNewAssistantClient_Validation(t *testing.T) {
	_, err := NewAssistantClient(AssistantConfig{APIKey: "k"}, nil)
	assert.Error(t, err)
	_, err = NewAssistantClient(AssistantConfig{AssistantID: "a"}, nil)
	assert.Error(t, err)
}

func TestAssistantClient_MissingIDs(t *testing.T) {
	tests := []struct {
		name    string
		thread  string
		run     string
		wantMsg string
	}{
		{name: "thread without id", thread: `{}`, run: `{"id":"run_1","status":"queued"}`, wantMsg: "create thread returned no id"},
		{name: "run without id", thread: `{"id":"thread_abc"}`, run: `{"status":"queued"}`, wantMsg: "start run returned no id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var threadsCreated int32
			mux := http.NewServeMux()
			mux.HandleFunc("POST /threads", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&threadsCreated, 1)
				_, _ = w.Write([]byte(tt.thread))
			})
			mux.HandleFunc("POST /threads/thread_abc/messages", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"id":"msg_1"}`))
			})
			mux.HandleFunc("POST /threads/thread_abc/runs", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.run))
			})
			server := httptest.NewServer(jsonContent(mux))
			defer server.Close()

			client := newTestAssistant(t, server.URL, 1)
			history := []Message{{Role: RoleUser, Content: "hi"}}

			_, err := client.Respond(context.Background(), "local-3", history)
			require.Error(t, err)
			assert.True(t, domain.IsType(err, domain.ErrorTypeAPI))
			assert.Contains(t, err.Error(), tt.wantMsg)

			// an empty id is never bound, so the next turn asks again
			_, err = client.Respond(context.Background(), "local-3", history)
			require.Error(t, err)
			if tt.thread == `{}` {
				assert.Equal(t, int32(2), atomic.LoadInt32(&threadsCreated))
			} else {
				assert.Equal(t, int32(1), atomic.LoadInt32(&threadsCreated))
			}
		})
	}
}
