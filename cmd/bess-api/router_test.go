package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/bess-advisor/cmd/bess-api/handlers"
	"github.com/spherical-ai/bess-advisor/internal/chat"
	"github.com/spherical-ai/bess-advisor/internal/domain"
	"github.com/spherical-ai/bess-advisor/internal/extract"
	"github.com/spherical-ai/bess-advisor/internal/llm"
	"github.com/spherical-ai/bess-advisor/internal/observability"
	"github.com/spherical-ai/bess-advisor/internal/recommend"
	"github.com/spherical-ai/bess-advisor/internal/storage"
)

const gridStackSheet = `Voltara GridStack 10
Manufacturer: Voltara
Model: GridStack 10
Rated Power: 10 MW
Energy Capacity: 40 MWh
Chemistry: LFP
Round-trip efficiency: 88%
Cycle life: 6000 cycles`

type memorySubmissions struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.ProjectSubmission
}

func newMemorySubmissions() *memorySubmissions {
	return &memorySubmissions{rows: make(map[uuid.UUID]domain.ProjectSubmission)}
}

func (m *memorySubmissions) Create(ctx context.Context, sub *domain.ProjectSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.ID = uuid.New()
	if sub.Status == "" {
		sub.Status = domain.SubmissionNew
	}
	m.rows[sub.ID] = *sub
	return nil
}

func (m *memorySubmissions) GetByID(ctx context.Context, id uuid.UUID) (*domain.ProjectSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.rows[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &sub, nil
}

func (m *memorySubmissions) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !status.Valid() {
		return domain.ValidationError("unknown submission status", nil)
	}
	sub, ok := m.rows[id]
	if !ok {
		return storage.ErrNotFound
	}
	sub.Status = status
	m.rows[id] = sub
	return nil
}

func (m *memorySubmissions) List(ctx context.Context, limit, offset int) ([]domain.ProjectSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ProjectSubmission, 0, len(m.rows))
	for _, s := range m.rows {
		out = append(out, s)
	}
	return out, nil
}

type failingPinger struct{}

func (failingPinger) PingContext(context.Context) error { return errors.New("connection refused") }

type testServer struct {
	handler http.Handler
	catalog *storage.MemoryCatalog
	subs    *memorySubmissions
	model   *llm.MockClient
}

func newTestServer(t *testing.T, replies ...string) *testServer {
	t.Helper()
	catalog := storage.NewMemoryCatalog()
	subs := newMemorySubmissions()
	model := llm.NewMockClient(replies...)

	app := &App{
		Extractor:   extract.NewExtractor(nil),
		Specs:       catalog,
		Submissions: subs,
		Engine:      recommend.NewEngine(catalog, nil, nil),
		Chat:        chat.NewService(model, nil, nil),
		Datasheets: handlers.DatasheetConfig{
			AllowedExtensions: []string{".txt", ".pdf", ".docx"},
			SimilarLimit:      10,
		},
		AllowedOrigins: []string{"*"},
		Logger:         observability.NopLogger(),
	}

	return &testServer{handler: NewRouter(app), catalog: catalog, subs: subs, model: model}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestReady_DatabaseDown(t *testing.T) {
	app := &App{
		Logger:    observability.NopLogger(),
		Extractor: extract.NewExtractor(nil),
		Specs:     storage.NewMemoryCatalog(),
		Engine:    recommend.NewEngine(storage.NewMemoryCatalog(), nil, nil),
		DB:        failingPinger{},
	}
	rec := httptest.NewRecorder()
	NewRouter(app).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDatasheetText_ThenRecommend(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/datasheets/text", map[string]any{"text": gridStackSheet, "filename": "gridstack.txt"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.SpecificationRecord](t, rec)
	assert.True(t, created.Processed)
	assert.Equal(t, 10.0, *created.NominalPowerMW)
	assert.Equal(t, 4.0, *created.DischargeDurationH)
	assert.Empty(t, created.FullTextContent)

	rec = s.do(t, http.MethodPost, "/api/v1/recommendations", domain.RequirementRecord{
		PowerMW:   domain.Float(10),
		EnergyMWh: domain.Float(40),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[recommend.Result](t, rec)
	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, created.ID, result.Recommendations[0].ID)
	assert.Equal(t, 1, result.TotalSystemsEvaluated)
	assert.Contains(t, result.Analysis, "## Top Recommendation: Voltara GridStack 10")
}

func TestRecommend_RequiresIntent(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/recommendations", domain.RequirementRecord{Location: "Texas"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least one of power, energy or application")
}

func TestRecommend_EmptyCatalog(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/recommendations", domain.RequirementRecord{Application: "backup"})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[recommend.Result](t, rec)
	assert.Empty(t, result.Recommendations)
	assert.Equal(t, recommend.NoSystemsMessage, result.Analysis)
}

func TestDatasheetUpload(t *testing.T) {
	tests := []struct {
		name          string
		filename      string
		content       []byte
		wantStatus    int
		wantProcessed bool
	}{
		{name: "text file", filename: "sheet.txt", content: []byte(gridStackSheet), wantStatus: http.StatusCreated, wantProcessed: true},
		{name: "corrupt docx", filename: "sheet.docx", content: []byte("not a zip"), wantStatus: http.StatusCreated},
		{name: "disallowed extension", filename: "sheet.exe", content: []byte("MZ"), wantStatus: http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			part, err := mw.CreateFormFile("file", tt.filename)
			require.NoError(t, err)
			_, _ = part.Write(tt.content)
			require.NoError(t, mw.Close())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/datasheets", &body)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			rec := httptest.NewRecorder()
			s.handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusCreated {
				return
			}
			got := decode[domain.SpecificationRecord](t, rec)
			assert.Equal(t, tt.wantProcessed, got.Processed)
			assert.Equal(t, tt.filename, got.SourceFilename)
			if !tt.wantProcessed {
				assert.NotEmpty(t, got.ProcessingErrors)
			}
		})
	}
}

func TestDatasheet_GetDeleteReprocess(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/datasheets/text", map[string]any{"text": gridStackSheet})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[domain.SpecificationRecord](t, rec)
	path := "/api/v1/datasheets/" + created.ID.String()

	rec = s.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, path+"/reprocess", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reprocessed := decode[domain.SpecificationRecord](t, rec)
	assert.Equal(t, created.ID, reprocessed.ID)
	assert.Equal(t, created.CreatedAt.UTC(), reprocessed.CreatedAt.UTC())

	rec = s.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/datasheets/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalogSimilar(t *testing.T) {
	s := newTestServer(t)
	for _, text := range []string{
		gridStackSheet,
		"Manufacturer: Kestrel\nModel: K1\nRated Power: 2 MW\nEnergy Capacity: 4 MWh",
	} {
		rec := s.do(t, http.MethodPost, "/api/v1/datasheets/text", map[string]any{"text": text})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/catalog/similar?power_mw=11", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Systems []domain.SpecificationRecord `json:"systems"`
		Count   int                          `json:"count"`
	}](t, rec)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "GridStack 10", body.Systems[0].Model)

	rec = s.do(t, http.MethodGet, "/api/v1/catalog/similar?power_mw=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatrix(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/recommendations/matrix", handlers.MatrixRequest{
		Systems: []domain.ScoredSystem{{
			SpecificationRecord: domain.SpecificationRecord{Manufacturer: "Voltara", Model: "GridStack 10", NominalPowerMW: domain.Float(10)},
			CompatibilityScore:  domain.Float(91.25),
		}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := decode[recommend.Matrix](t, rec)
	assert.Equal(t, recommend.MatrixHeaders, m.Headers)
	require.Len(t, m.Rows, 1)
	assert.Equal(t, "Voltara", m.Rows[0][0])
	assert.Equal(t, "N/A", m.Rows[0][3])
}

func TestSizingValidate(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/sizing/validate", domain.RequirementRecord{
		PowerMW:     domain.Float(5),
		DurationH:   domain.Float(4),
		DailyCycles: domain.Float(8),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[handlers.SizingResponse](t, rec)
	assert.True(t, resp.Blocking)
	require.Len(t, resp.Findings, 1)
	assert.Equal(t, domain.FindingError, resp.Findings[0].Type)
}

func TestChatThenSubmit(t *testing.T) {
	s := newTestServer(t, "Got it, 10 MW of peak shaving.\nREQUIREMENTS_JSON: {\"power_mw\": 10, \"application\": \"peak shaving\"}")

	rec := s.do(t, http.MethodPost, "/api/v1/datasheets/text", map[string]any{"text": gridStackSheet})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/chat", handlers.ChatRequest{Message: "We need 10 MW for peak shaving"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reply := decode[chat.Reply](t, rec)
	assert.True(t, reply.ReadyToSubmit)
	assert.Equal(t, "Got it, 10 MW of peak shaving.", reply.Display)

	rec = s.do(t, http.MethodPost, "/api/v1/submissions", handlers.SubmissionRequest{
		CompanyName: "Northwind Utilities",
		Email:       "ops@northwind.example",
		ProjectName: "Substation 7",
		ThreadID:    reply.ThreadID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sub := decode[domain.ProjectSubmission](t, rec)
	assert.Equal(t, 10.0, *sub.Requirement.PowerMW)
	assert.Len(t, sub.Transcript, 2)
	require.Len(t, sub.Recommendations, 1)
	assert.Equal(t, "GridStack 10", sub.Recommendations[0].Model)

	path := "/api/v1/submissions/" + sub.ID.String()
	rec = s.do(t, http.MethodPatch, path+"/status", handlers.StatusRequest{Status: domain.SubmissionContacted})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.SubmissionContacted, decode[domain.ProjectSubmission](t, rec).Status)

	rec = s.do(t, http.MethodPatch, path+"/status", handlers.StatusRequest{Status: "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmission_Validation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/submissions", handlers.SubmissionRequest{
		CompanyName: "Northwind Utilities",
		Email:       "not-an-email",
		ProjectName: "Substation 7",
		Requirement: &domain.RequirementRecord{PowerMW: domain.Float(10)},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/submissions", handlers.SubmissionRequest{
		CompanyName: "Northwind Utilities",
		Email:       "ops@northwind.example",
		ProjectName: "Substation 7",
		Requirement: &domain.RequirementRecord{PowerMW: domain.Float(5), DurationH: domain.Float(4), DailyCycles: domain.Float(8)},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestChat_ModelDown(t *testing.T) {
	catalog := storage.NewMemoryCatalog()
	app := &App{
		Logger:      observability.NopLogger(),
		Extractor:   extract.NewExtractor(nil),
		Specs:       catalog,
		Submissions: newMemorySubmissions(),
		Engine:      recommend.NewEngine(catalog, nil, nil),
		Chat:        chat.NewService(llm.NewFailingMockClient(errors.New("503")), nil, nil),
	}
	s := &testServer{handler: NewRouter(app)}

	rec := s.do(t, http.MethodPost, "/api/v1/chat", handlers.ChatRequest{Message: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	reply := decode[chat.Reply](t, rec)
	assert.True(t, reply.Failed)
	assert.Equal(t, chat.FallbackMessage, reply.Display)

	rec = s.do(t, http.MethodPost, "/api/v1/chat", handlers.ChatRequest{Message: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/recommendations", nil)
	req.Header.Set("Origin", "https://advisor.example")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://advisor.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
