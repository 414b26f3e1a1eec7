package handlers

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/extract"
	"github.com/spherical-ai/bess-advisor/internal/observability"
	"github.com/spherical-ai/bess-advisor/internal/recommend"
	"github.com/spherical-ai/bess-advisor/internal/storage"
)

// DatasheetConfig limits uploads.
type DatasheetConfig struct {
	MaxUploadBytes    int64
	AllowedExtensions []string
	EnhanceByDefault  bool
	SimilarLimit      int
}

// DatasheetHandler ingests vendor datasheets into the catalog.
type DatasheetHandler struct {
	logger    *observability.Logger
	extractor *extract.Extractor
	specs     storage.SpecificationStore
	engine    *recommend.Engine
	cfg       DatasheetConfig
}

// NewDatasheetHandler creates a new datasheet handler.
func NewDatasheetHandler(logger *observability.Logger, extractor *extract.Extractor, specs storage.SpecificationStore, engine *recommend.Engine, cfg DatasheetConfig) *DatasheetHandler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	return &DatasheetHandler{
		logger:    logger,
		extractor: extractor,
		specs:     specs,
		engine:    engine,
		cfg:       cfg,
	}
}

// TextDatasheetRequest is the body of POST /datasheets/text.
type TextDatasheetRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename,omitempty"`
	UseAI    *bool  `json:"use_ai,omitempty"`
}

// Upload handles POST /datasheets (multipart field "file").
// Every accepted upload is stored; a file that cannot be decoded becomes an
// unprocessed row carrying the decode error.
func (h *DatasheetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed", err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required", err.Error())
		return
	}
	defer file.Close()

	if !h.allowed(header.Filename) {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported file type", filepath.Ext(header.Filename))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload", err.Error())
		return
	}

	useAI := h.useAI(r.FormValue("use_ai"))
	rec := h.extractor.ExtractDocument(r.Context(), header.Filename, data, useAI)
	h.store(w, r, rec)
}

// CreateFromText handles POST /datasheets/text.
func (h *DatasheetHandler) CreateFromText(w http.ResponseWriter, r *http.Request) {
	var req TextDatasheetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required", "")
		return
	}

	useAI := h.cfg.EnhanceByDefault
	if req.UseAI != nil {
		useAI = *req.UseAI
	}

	var rec *domain.SpecificationRecord
	if useAI && h.extractor.HasEnhancer() {
		rec = h.extractor.ExtractWithAI(r.Context(), req.Text)
	} else {
		rec = h.extractor.Extract(req.Text)
	}
	rec.SourceFilename = req.Filename
	h.store(w, r, rec)
}

// List handles GET /datasheets.
func (h *DatasheetHandler) List(w http.ResponseWriter, r *http.Request) {
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

	recs, err := h.specs.List(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	for i := range recs {
		recs[i].FullTextContent = ""
	}
	if recs == nil {
		recs = []domain.SpecificationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasheets": recs, "count": len(recs)})
}

// Get handles GET /datasheets/{id}.
func (h *DatasheetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.specs.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Delete handles DELETE /datasheets/{id}. Deleting a missing row succeeds.
func (h *DatasheetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.specs.Delete(r.Context(), id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.invalidate(r)
	w.WriteHeader(http.StatusNoContent)
}

// Reprocess handles POST /datasheets/{id}/reprocess. The stored text is
// extracted again and every specification field is replaced.
func (h *DatasheetHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	existing, err := h.specs.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if strings.TrimSpace(existing.FullTextContent) == "" {
		writeError(w, http.StatusConflict, "datasheet has no stored text to reprocess", existing.ProcessingErrors)
		return
	}

	var rec *domain.SpecificationRecord
	if h.useAI(r.URL.Query().Get("use_ai")) {
		rec = h.extractor.ExtractWithAI(r.Context(), existing.FullTextContent)
	} else {
		rec = h.extractor.Extract(existing.FullTextContent)
	}
	rec.ID = existing.ID
	rec.SourceFilename = existing.SourceFilename
	rec.CreatedAt = existing.CreatedAt

	if err := h.specs.Replace(r.Context(), rec); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.invalidate(r)

	rec.FullTextContent = ""
	writeJSON(w, http.StatusOK, rec)
}

// Similar handles GET /catalog/similar.
func (h *DatasheetHandler) Similar(w http.ResponseWriter, r *http.Request) {
	power, err := queryFloat(r, "power_mw")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	energy, err := queryFloat(r, "energy_mwh")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if limit == 0 {
		limit = h.cfg.SimilarLimit
	}

	q := storage.SimilarQuery{
		PowerMW:     power,
		EnergyMWh:   energy,
		Chemistry:   r.URL.Query().Get("chemistry"),
		Application: r.URL.Query().Get("application"),
		Limit:       limit,
	}
	recs, err := h.specs.FindSimilar(r.Context(), q)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	for i := range recs {
		recs[i].FullTextContent = ""
	}
	if recs == nil {
		recs = []domain.SpecificationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"systems": recs, "count": len(recs)})
}

func (h *DatasheetHandler) store(w http.ResponseWriter, r *http.Request, rec *domain.SpecificationRecord) {
	if err := h.specs.Create(r.Context(), rec); err != nil {
		writeDomainError(w, h.logger, domain.StorageError("save datasheet", err))
		return
	}
	h.invalidate(r)

	h.logger.WithContext(r.Context()).Info().
		Str("id", rec.ID.String()).
		Str("filename", rec.SourceFilename).
		Bool("processed", rec.Processed).
		Msg("Datasheet stored")

	rec.FullTextContent = ""
	writeJSON(w, http.StatusCreated, rec)
}

func (h *DatasheetHandler) invalidate(r *http.Request) {
	if h.engine == nil {
		return
	}
	if err := h.engine.Invalidate(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to invalidate recommendation cache")
	}
}

func (h *DatasheetHandler) allowed(filename string) bool {
	if len(h.cfg.AllowedExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range h.cfg.AllowedExtensions {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

func (h *DatasheetHandler) useAI(flag string) bool {
	if !h.extractor.HasEnhancer() {
		return false
	}
	switch strings.ToLower(flag) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return h.cfg.EnhanceByDefault
}
