package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spherical-ai/bess-advisor/internal/chat"
	"github.com/spherical-ai/bess-advisor/internal/observability"
)

// ChatHandler relays chat turns to the conversation service.
type ChatHandler struct {
	logger  *observability.Logger
	service *chat.Service
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(logger *observability.Logger, service *chat.Service) *ChatHandler {
	return &ChatHandler{logger: logger, service: service}
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	ThreadID string `json:"thread_id,omitempty"`
	Message  string `json:"message"`
}

// Send handles POST /chat. Model outages still answer 200 with the
// fallback reply marked failed.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reply, err := h.service.Send(r.Context(), req.ThreadID, req.Message)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// Thread handles GET /chat/{threadID}.
func (h *ChatHandler) Thread(w http.ResponseWriter, r *http.Request) {
	thread, ok := h.service.Thread(chi.URLParam(r, "threadID"))
	if !ok {
		writeError(w, http.StatusNotFound, "thread not found", "")
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// Reset handles DELETE /chat/{threadID}.
func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.service.Reset(chi.URLParam(r, "threadID"))
	w.WriteHeader(http.StatusNoContent)
}
