package handlers

import (
	"net/http"

	"github.com/spherical-ai/bess-advisor/internal/chat"
	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/observability"
	"github.com/spherical-ai/bess-advisor/internal/recommend"
	"github.com/spherical-ai/bess-advisor/internal/sizing"
	"github.com/spherical-ai/bess-advisor/internal/storage"
)

// SubmissionHandler records projects for sales follow-up.
type SubmissionHandler struct {
	logger      *observability.Logger
	submissions storage.SubmissionStore
	engine      *recommend.Engine
	chat        *chat.Service
}

// NewSubmissionHandler creates a new submission handler. chatService may be
// nil when no model is configured.
func NewSubmissionHandler(logger *observability.Logger, submissions storage.SubmissionStore, engine *recommend.Engine, chatService *chat.Service) *SubmissionHandler {
	return &SubmissionHandler{
		logger:      logger,
		submissions: submissions,
		engine:      engine,
		chat:        chatService,
	}
}

// SubmissionRequest is the body of POST /submissions. When ThreadID names a
// known conversation its transcript is attached and its requirement fills
// in for a missing one.
type SubmissionRequest struct {
	CompanyName string                    `json:"company_name"`
	ContactName string                    `json:"contact_name,omitempty"`
	Email       string                    `json:"email"`
	Phone       string                    `json:"phone,omitempty"`
	ProjectName string                    `json:"project_name"`
	Requirement *domain.RequirementRecord `json:"requirement,omitempty"`
	ThreadID    string                    `json:"thread_id,omitempty"`
}

// StatusRequest is the body of PATCH /submissions/{id}/status.
type StatusRequest struct {
	Status domain.SubmissionStatus `json:"status"`
}

// Create handles POST /submissions.
func (h *SubmissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req SubmissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sub := &domain.ProjectSubmission{
		CompanyName: req.CompanyName,
		ContactName: req.ContactName,
		Email:       req.Email,
		Phone:       req.Phone,
		ProjectName: req.ProjectName,
	}
	if req.Requirement != nil {
		sub.Requirement = *req.Requirement
	}
	if req.ThreadID != "" && h.chat != nil {
		if thread, ok := h.chat.Thread(req.ThreadID); ok {
			sub.Transcript = thread.History
			if req.Requirement == nil {
				sub.Requirement = thread.Requirement
			}
		}
	}

	if err := sub.Validate(); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	findings := sizing.Validate(sub.Requirement)
	if sizing.HasBlocking(findings) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    "requirement has blocking sizing findings",
			"message":  "requirement has blocking sizing findings",
			"findings": findings,
		})
		return
	}

	result, err := h.engine.Generate(r.Context(), sub.Requirement)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	for _, s := range result.Recommendations {
		rs := domain.RecommendedSystem{
			SpecificationID: s.ID,
			Manufacturer:    s.Manufacturer,
			Model:           s.Model,
		}
		if s.CompatibilityScore != nil {
			rs.Score = *s.CompatibilityScore
		}
		sub.Recommendations = append(sub.Recommendations, rs)
	}

	if err := h.submissions.Create(r.Context(), sub); err != nil {
		writeDomainError(w, h.logger, domain.StorageError("save submission", err))
		return
	}

	h.logger.WithContext(r.Context()).Info().
		Str("id", sub.ID.String()).
		Str("company", sub.CompanyName).
		Int("recommendations", len(sub.Recommendations)).
		Msg("Project submitted")

	writeJSON(w, http.StatusCreated, sub)
}

// Get handles GET /submissions/{id}.
func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sub, err := h.submissions.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// List handles GET /submissions.
func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	subs, err := h.submissions.List(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if subs == nil {
		subs = []domain.ProjectSubmission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs, "count": len(subs)})
}

// UpdateStatus handles PATCH /submissions/{id}/status.
func (h *SubmissionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.submissions.UpdateStatus(r.Context(), id, req.Status); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id.String(), "status": string(req.Status)})
}
