// Package handlers provides HTTP handlers for the advisor API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/observability"
	"github.com/spherical-ai/bess-advisor/internal/storage"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, ErrorResponse{Error: message, Message: message, Detail: detail})
}

// writeDomainError maps storage and domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, logger *observability.Logger, err error) {
	var de *domain.DomainError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", "")
	case errors.As(err, &de) && de.Type == domain.ErrorTypeValidation:
		writeError(w, http.StatusBadRequest, de.Message, unwrapDetail(de))
	case errors.As(err, &de) && de.Type == domain.ErrorTypeExtraction:
		writeError(w, http.StatusUnprocessableEntity, de.Message, unwrapDetail(de))
	case errors.As(err, &de) && de.Type == domain.ErrorTypeAPI:
		logger.Warn().Err(err).Msg("Upstream call failed")
		writeError(w, http.StatusBadGateway, de.Message, "")
	default:
		logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func unwrapDetail(de *domain.DomainError) string {
	if de.Err == nil {
		return ""
	}
	return de.Err.Error()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

// queryFloat reads an optional positive number query parameter.
func queryFloat(r *http.Request, name string) (*float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		return nil, fmt.Errorf("%s must be a positive number", name)
	}
	return &f, nil
}
