// Package chat runs the requirement-gathering conversation: each turn goes to
// the language model, any embedded requirement payload is merged into the
// thread's running requirement, and the result is checked by the sizing
// advisor.
package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/llm"
	"github.com/spherical-ai/bess-advisor/internal/metrics"
	"github.com/spherical-ai/bess-advisor/internal/observability"
	"github.com/spherical-ai/bess-advisor/internal/sizing"
)

// FallbackMessage is shown when the model cannot be reached.
const FallbackMessage = "Sorry, I'm having trouble responding right now. Your requirements so far are saved; please try again in a moment."

const maxMessageChars = 4000

// SystemPrompt instructs the model to append the requirement payload.
const SystemPrompt = `You are a sales engineer helping a customer specify a battery energy storage system (BESS).
Ask short follow-up questions until you know the required power (MW), energy (MWh) or discharge duration (hours),
the application (for example peak shaving, energy arbitrage, frequency regulation, backup power), preferred chemistry,
expected daily cycles and the project location.
After every reply, append a line starting with ` + llm.PayloadMarker + ` followed by a single JSON object holding everything
known so far, using the keys power_mw, energy_mwh, duration_h, application, chemistry, daily_cycles,
min_round_trip_efficiency_pct, min_cycle_life, response_time_s, configuration, grid_code_compliance and location.
Omit keys that are still unknown.`

// Reply is the outcome of one chat turn.
type Reply struct {
	ThreadID      string                   `json:"thread_id"`
	Display       string                   `json:"message"`
	Requirement   domain.RequirementRecord `json:"requirement"`
	Findings      []domain.SizingFinding   `json:"findings"`
	ReadyToSubmit bool                     `json:"ready_to_submit"`
	PayloadFound  bool                     `json:"payload_found"`
	Failed        bool                     `json:"failed,omitempty"`
}

// Service handles chat turns.
type Service struct {
	responder llm.Responder
	store     ThreadStore
	locks     *keyedMutex
	logger    *observability.Logger
	now       func() time.Time
}

// NewService creates a chat service. A nil store uses process memory.
func NewService(responder llm.Responder, store ThreadStore, logger *observability.Logger) *Service {
	if store == nil {
		store = NewMemoryThreadStore()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		responder: responder,
		store:     store,
		locks:     newKeyedMutex(),
		logger:    logger.WithOperation("chat"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Send processes one user message. An empty threadID starts a new thread.
// Turns on the same thread run one at a time in arrival order; different
// threads never wait on each other. Model failures do not return an error:
// the reply carries FallbackMessage, Failed and the last known requirement.
func (s *Service) Send(ctx context.Context, threadID, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domain.ValidationError("message must not be empty", nil)
	}
	if len(message) > maxMessageChars {
		return nil, domain.ValidationError("message is too long", nil)
	}
	if threadID == "" {
		threadID = uuid.New().String()
	}

	unlock := s.locks.Lock(threadID)
	defer unlock()

	logger := s.logger.WithThread(threadID)

	thread, ok := s.store.Load(threadID)
	if !ok {
		thread = Thread{ID: threadID}
	}
	thread.History = append(thread.History, domain.ChatMessage{
		Role:      llm.RoleUser,
		Content:   message,
		CreatedAt: s.now(),
	})
	thread.UpdatedAt = s.now()

	raw, err := s.responder.Respond(ctx, threadID, s.prompt(thread))
	if err != nil {
		s.store.Save(thread)
		metrics.ChatTurnsTotal.WithLabelValues("failed").Inc()
		logger.Warn().Err(err).Msg("Model unavailable, returning fallback reply")

		findings := sizing.Validate(thread.Requirement)
		return &Reply{
			ThreadID:    threadID,
			Display:     FallbackMessage,
			Requirement: thread.Requirement,
			Findings:    findings,
			Failed:      true,
		}, nil
	}

	payload := llm.ParsePayload(raw)
	if payload.Found() {
		thread.Requirement.Merge(RequirementFromPayload(payload.Data))
	}

	findings := sizing.Validate(thread.Requirement)
	ready := thread.Requirement.HasIntent() && !sizing.HasBlocking(findings)

	thread.History = append(thread.History, domain.ChatMessage{
		Role:      llm.RoleAssistant,
		Content:   payload.Display,
		CreatedAt: s.now(),
	})
	thread.UpdatedAt = s.now()
	s.store.Save(thread)

	metrics.ChatTurnsTotal.WithLabelValues("ok").Inc()
	logger.Debug().
		Bool("payload_found", payload.Found()).
		Str("stage", payload.Stage).
		Int("findings", len(findings)).
		Bool("ready", ready).
		Msg("Chat turn finished")

	return &Reply{
		ThreadID:      threadID,
		Display:       payload.Display,
		Requirement:   thread.Requirement,
		Findings:      findings,
		ReadyToSubmit: ready,
		PayloadFound:  payload.Found(),
	}, nil
}

// Thread returns the stored state of a conversation.
func (s *Service) Thread(threadID string) (Thread, bool) {
	return s.store.Load(threadID)
}

// Reset forgets a conversation.
func (s *Service) Reset(threadID string) {
	unlock := s.locks.Lock(threadID)
	defer unlock()
	s.store.Delete(threadID)
}

// prompt builds the model input: the system prompt, the requirement known so
// far and the transcript.
func (s *Service) prompt(t Thread) []llm.Message {
	system := SystemPrompt
	if t.Requirement.HasIntent() {
		if b, err := json.Marshal(t.Requirement); err == nil {
			system += "\nKnown requirements so far: " + string(b)
		}
	}

	msgs := make([]llm.Message, 0, len(t.History)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, m := range t.History {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	return msgs
}
