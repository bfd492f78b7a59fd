package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ishan121028/RadiologyAI/internal/domain"
	"github.com/ishan121028/RadiologyAI/internal/domain/report"
	"github.com/ishan121028/RadiologyAI/internal/domain/triage"
	"github.com/ishan121028/RadiologyAI/internal/usecase/alertbroker"
	healthuc "github.com/ishan121028/RadiologyAI/internal/usecase/health"
	indexuc "github.com/ishan121028/RadiologyAI/internal/usecase/index"
	queryuc "github.com/ishan121028/RadiologyAI/internal/usecase/query"
)

type mockIndex struct {
	scored   []report.Scored
	entries  []report.Entry
	stats    indexuc.Statistics
	err      error
	lastK    int
	lastquer string
}

func (m *mockIndex) Retrieve(_ context.Context, query string, k int) ([]report.Scored, error) {
	m.lastquer = query
	m.lastK = k
	return m.scored, m.err
}

func (m *mockIndex) FindByPatient(_ context.Context, _ string) ([]report.Entry, error) {
	return m.entries, m.err
}

func (m *mockIndex) ListDocuments(_ context.Context) ([]report.Entry, error) {
	return m.entries, m.err
}

func (m *mockIndex) Statistics() indexuc.Statistics { return m.stats }

type mockAnswerer struct {
	answer        queryuc.Answer
	err           error
	lastPatientID string
}

func (m *mockAnswerer) Answer(_ context.Context, _, patientID string) (queryuc.Answer, error) {
	m.lastPatientID = patientID
	return m.answer, m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

func newTestRouter(t *testing.T, idx *mockIndex, ans *mockAnswerer) *chirouter.Mux {
	t.Helper()
	broker := alertbroker.New(alertbroker.Config{}, zap.NewNop())
	srv := NewServer(idx, ans, broker, &mockHealth{report: healthuc.Report{Status: healthuc.Healthy}}, zap.NewNop())
	r := chirouter.NewRouter()
	srv.Register(r)
	return r
}

func doPost(t *testing.T, r http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func sampleEntry() report.Entry {
	return report.Entry{
		Record: report.Record{
			Identity:    report.Identity{Path: "/drop/a.pdf", Fingerprint: "fp-1"},
			PatientID:   "PAT-001",
			Findings:    "Acute pulmonary embolism.",
			Impression:  "PE.",
			ProcessedAt: time.Now().UTC(),
		},
		Classification: triage.Result{Severity: triage.SeverityRed, Conditions: []string{"pulmonary embolism"}},
		LastSeen:       time.Now().UTC(),
	}
}

func TestRetrieve(t *testing.T) {
	idx := &mockIndex{scored: []report.Scored{{Entry: sampleEntry(), Score: 0.91}}}
	r := newTestRouter(t, idx, &mockAnswerer{})

	rr := doPost(t, r, "/v1/retrieve", `{"query":"embolism","k":3}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if idx.lastK != 3 || idx.lastquer != "embolism" {
		t.Errorf("request not forwarded: k=%d q=%q", idx.lastK, idx.lastquer)
	}

	var resp struct {
		Matches []struct {
			Path     string  `json:"path"`
			Severity string  `json:"severity"`
			Score    float64 `json:"score"`
		} `json:"matches"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].Severity != "RED" || resp.Matches[0].Score != 0.91 {
		t.Errorf("unexpected matches: %+v", resp.Matches)
	}
}

func TestRetrieve_MissingQuery(t *testing.T) {
	r := newTestRouter(t, &mockIndex{}, &mockAnswerer{})

	rr := doPost(t, r, "/v1/retrieve", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRetrieve_EmbeddingErrorMapsTo502(t *testing.T) {
	idx := &mockIndex{err: domain.ErrEmbeddingProviderError}
	r := newTestRouter(t, idx, &mockAnswerer{})

	rr := doPost(t, r, "/v1/retrieve", `{"query":"q"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestStatistics(t *testing.T) {
	idx := &mockIndex{stats: indexuc.Statistics{
		TotalDocuments: 7,
		BySeverity:     map[triage.Severity]int{triage.SeverityRed: 2, triage.SeverityGreen: 5},
		Degraded:       1,
		AvgProcessing:  1500 * time.Millisecond,
	}}
	r := newTestRouter(t, idx, &mockAnswerer{})

	rr := doPost(t, r, "/v1/statistics", `{}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp struct {
		TotalDocuments int            `json:"total_documents"`
		BySeverity     map[string]int `json:"by_severity"`
		AvgProcessing  float64        `json:"avg_processing_seconds"`
		AlertThreshold string         `json:"alert_threshold"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalDocuments != 7 || resp.BySeverity["RED"] != 2 {
		t.Errorf("unexpected statistics: %+v", resp)
	}
	if resp.AvgProcessing != 1.5 {
		t.Errorf("expected avg 1.5s, got %f", resp.AvgProcessing)
	}
	if resp.AlertThreshold != "ORANGE" {
		t.Errorf("unexpected threshold: %s", resp.AlertThreshold)
	}
}

func TestListDocuments(t *testing.T) {
	idx := &mockIndex{entries: []report.Entry{sampleEntry()}}
	r := newTestRouter(t, idx, &mockAnswerer{})

	rr := doPost(t, r, "/v1/pw_list_documents", `{}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp struct {
		Documents []struct {
			Path      string `json:"path"`
			PatientID string `json:"patient_id"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Documents) != 1 || resp.Documents[0].PatientID != "PAT-001" {
		t.Errorf("unexpected documents: %+v", resp.Documents)
	}
}

func TestAnswer_BothRoutes(t *testing.T) {
	ans := &mockAnswerer{answer: queryuc.Answer{
		Text:    "Immediate anticoagulation.",
		Sources: []report.Identity{{Path: "/drop/a.pdf", Fingerprint: "fp-1"}},
	}}
	r := newTestRouter(t, &mockIndex{}, ans)

	for _, path := range []string{"/v1/pw_ai_answer", "/v2/answer"} {
		rr := doPost(t, r, path, `{"prompt":"what now?"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}

		var resp struct {
			Answer      string `json:"answer"`
			ContextFree bool   `json:"context_free"`
			Sources     []struct {
				Path string `json:"path"`
			} `json:"sources"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s decode: %v", path, err)
		}
		if resp.Answer != "Immediate anticoagulation." || len(resp.Sources) != 1 {
			t.Errorf("%s: unexpected answer payload: %+v", path, resp)
		}
	}
}

func TestAnswer_MissingPrompt(t *testing.T) {
	r := newTestRouter(t, &mockIndex{}, &mockAnswerer{})

	rr := doPost(t, r, "/v1/pw_ai_answer", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAnswer_GenerationErrorMapsTo502(t *testing.T) {
	ans := &mockAnswerer{err: domain.ErrGenerationProviderError}
	r := newTestRouter(t, &mockIndex{}, ans)

	rr := doPost(t, r, "/v2/answer", `{"prompt":"q"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestSearchPatientByID(t *testing.T) {
	idx := &mockIndex{entries: []report.Entry{sampleEntry()}}
	r := newTestRouter(t, idx, &mockAnswerer{})

	rr := doPost(t, r, "/v1/search_patient_by_id", `{"patient_id":"PAT-001"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = doPost(t, r, "/v1/search_patient_by_id", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing patient_id, got %d", rr.Code)
	}
}

func TestQueryPatientExtraction(t *testing.T) {
	ans := &mockAnswerer{answer: queryuc.Answer{Text: "Stable."}}
	r := newTestRouter(t, &mockIndex{}, ans)

	rr := doPost(t, r, "/v1/query_patient_extraction", `{"patient_id":"PAT-007","query":"effusion?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ans.lastPatientID != "PAT-007" {
		t.Errorf("patient filter not forwarded: %q", ans.lastPatientID)
	}

	rr = doPost(t, r, "/v1/query_patient_extraction", `{"query":"effusion?"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing patient_id, got %d", rr.Code)
	}
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t, &mockIndex{}, &mockAnswerer{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	idx := &mockIndex{}
	broker := alertbroker.New(alertbroker.Config{}, zap.NewNop())
	srv := NewServer(idx, &mockAnswerer{}, broker, &mockHealth{report: healthuc.Report{Status: healthuc.Healthy}}, zap.NewNop())

	r := chirouter.NewRouter()
	r.Use(BearerAuthMiddleware([]string{"secret"}))
	srv.Register(r)

	// No token: rejected.
	rr := doPost(t, r, "/v1/statistics", `{}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	// Valid token: accepted.
	req := httptest.NewRequest(http.MethodPost, "/v1/statistics", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer secret")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rr.Code)
	}

	// Health stays open.
	req = httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for exempt path, got %d", rr.Code)
	}
}
