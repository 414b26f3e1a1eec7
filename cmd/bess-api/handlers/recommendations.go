package handlers

import (
	"net/http"

	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/observability"
	"github.com/spherical-ai/bess-advisor/internal/recommend"
	"github.com/spherical-ai/bess-advisor/internal/sizing"
)

// RecommendationHandler serves ranking, comparison and sizing requests.
type RecommendationHandler struct {
	logger *observability.Logger
	engine *recommend.Engine
}

// NewRecommendationHandler creates a new recommendation handler.
func NewRecommendationHandler(logger *observability.Logger, engine *recommend.Engine) *RecommendationHandler {
	return &RecommendationHandler{logger: logger, engine: engine}
}

// MatrixRequest is the body of POST /recommendations/matrix. When Systems
// is empty the matrix is built from a fresh recommendation.
type MatrixRequest struct {
	Requirement domain.RequirementRecord `json:"requirement"`
	Systems     []domain.ScoredSystem    `json:"systems,omitempty"`
}

// SizingResponse is returned by POST /sizing/validate.
type SizingResponse struct {
	Findings []domain.SizingFinding `json:"findings"`
	Blocking bool                   `json:"blocking"`
}

// Recommend handles POST /recommendations.
func (h *RecommendationHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req domain.RequirementRecord
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	result, err := h.engine.Generate(r.Context(), req)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Matrix handles POST /recommendations/matrix.
func (h *RecommendationHandler) Matrix(w http.ResponseWriter, r *http.Request) {
	var req MatrixRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	systems := req.Systems
	if len(systems) == 0 {
		if err := req.Requirement.Validate(); err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
		result, err := h.engine.Generate(r.Context(), req.Requirement)
		if err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
		systems = result.Recommendations
	}

	writeJSON(w, http.StatusOK, recommend.GenerateComparisonMatrix(systems, req.Requirement))
}

// ValidateSizing handles POST /sizing/validate.
func (h *RecommendationHandler) ValidateSizing(w http.ResponseWriter, r *http.Request) {
	var req domain.RequirementRecord
	if !decodeJSON(w, r, &req) {
		return
	}
	findings := sizing.Validate(req)
	writeJSON(w, http.StatusOK, SizingResponse{Findings: findings, Blocking: sizing.HasBlocking(findings)})
}
