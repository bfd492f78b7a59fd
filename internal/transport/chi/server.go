// Package chi is the HTTP surface: POST-only JSON operation endpoints, the
// websocket alert channel, health and metrics.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ishan121028/RadiologyAI/internal/domain"
	"github.com/ishan121028/RadiologyAI/internal/domain/report"
	healthuc "github.com/ishan121028/RadiologyAI/internal/usecase/health"
)

// errorCode is the machine-readable error discriminator in responses.
type errorCode string

const (
	codeBadRequest         errorCode = "bad_request"
	codeUnauthorized       errorCode = "unauthorized"
	codeNotFound           errorCode = "not_found"
	codeEmbeddingProvider  errorCode = "embedding_provider_error"
	codeGenerationProvider errorCode = "generation_provider_error"
	codeInternalError      errorCode = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers.
type Server struct {
	index         Index
	answerer      Answerer
	alerts        AlertSource
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the HTTP surface.
func NewServer(index Index, answerer Answerer, alerts AlertSource, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{
		index:    index,
		answerer: answerer,
		alerts:   alerts,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProvider),
		sentinelHandler(domain.ErrGenerationProviderError, http.StatusBadGateway, codeGenerationProvider),
	}
	return s
}

// Register mounts all routes on the router.
func (s *Server) Register(r chirouter.Router) {
	r.Post("/v1/retrieve", s.Retrieve)
	r.Post("/v1/statistics", s.Statistics)
	r.Post("/v1/pw_list_documents", s.ListDocuments)
	r.Post("/v1/pw_ai_answer", s.Answer)
	r.Post("/v2/answer", s.Answer)
	r.Post("/v1/search_patient_by_id", s.SearchPatientByID)
	r.Post("/v1/query_patient_extraction", s.QueryPatientExtraction)
	r.Get("/v1/alerts/ws", s.AlertsWebsocket)
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type documentDTO struct {
	Path        string    `json:"path"`
	Fingerprint string    `json:"fingerprint"`
	PatientID   string    `json:"patient_id,omitempty"`
	StudyType   string    `json:"study_type,omitempty"`
	StudyDate   string    `json:"study_date,omitempty"`
	Severity    string    `json:"severity"`
	Conditions  []string  `json:"conditions,omitempty"`
	Findings    string    `json:"findings,omitempty"`
	Impression  string    `json:"impression,omitempty"`
	Degraded    bool      `json:"degraded,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
	LastSeen    time.Time `json:"last_seen"`
}

func entryToDTO(e *report.Entry) documentDTO {
	return documentDTO{
		Path:        e.Record.Identity.Path,
		Fingerprint: e.Record.Identity.Fingerprint,
		PatientID:   e.Record.PatientID,
		StudyType:   e.Record.StudyType,
		StudyDate:   e.Record.StudyDate,
		Severity:    string(e.Classification.Severity),
		Conditions:  e.Classification.Conditions,
		Findings:    e.Record.Findings,
		Impression:  e.Record.Impression,
		Degraded:    e.Record.Degraded,
		ProcessedAt: e.Record.ProcessedAt,
		LastSeen:    e.LastSeen,
	}
}

type sourceDTO struct {
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
}

// Retrieve handles POST /v1/retrieve.
func (s *Server) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		K     int    `json:"k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Query is required")
		return
	}

	scored, err := s.index.Retrieve(r.Context(), req.Query, req.K)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	type match struct {
		documentDTO
		Score float64 `json:"score"`
	}
	matches := make([]match, 0, len(scored))
	for i := range scored {
		matches = append(matches, match{
			documentDTO: entryToDTO(&scored[i].Entry),
			Score:       scored[i].Score,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// Statistics handles POST /v1/statistics.
func (s *Server) Statistics(w http.ResponseWriter, r *http.Request) {
	stats := s.index.Statistics()

	bySeverity := make(map[string]int, len(stats.BySeverity))
	for sev, n := range stats.BySeverity {
		bySeverity[string(sev)] = n
	}
	alerts := make(map[string]int)
	for sev, n := range s.alerts.Counts() {
		alerts[string(sev)] = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_documents":        stats.TotalDocuments,
		"by_severity":            bySeverity,
		"degraded":               stats.Degraded,
		"avg_processing_seconds": stats.AvgProcessing.Seconds(),
		"last_updated":           stats.LastUpdated,
		"alerts":                 alerts,
		"alert_threshold":        string(s.alerts.Threshold()),
	})
}

// ListDocuments handles POST /v1/pw_list_documents.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	entries, err := s.index.ListDocuments(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	docs := make([]documentDTO, 0, len(entries))
	for i := range entries {
		docs = append(docs, entryToDTO(&entries[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// Answer handles POST /v1/pw_ai_answer and its alias POST /v2/answer.
func (s *Server) Answer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Prompt is required")
		return
	}

	s.writeAnswer(w, r, req.Prompt, "")
}

// SearchPatientByID handles POST /v1/search_patient_by_id.
func (s *Server) SearchPatientByID(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PatientID string `json:"patient_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.PatientID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Patient ID is required")
		return
	}

	entries, err := s.index.FindByPatient(r.Context(), req.PatientID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	docs := make([]documentDTO, 0, len(entries))
	for i := range entries {
		docs = append(docs, entryToDTO(&entries[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"patient_id": req.PatientID,
		"documents":  docs,
	})
}

// QueryPatientExtraction handles POST /v1/query_patient_extraction.
func (s *Server) QueryPatientExtraction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PatientID string `json:"patient_id"`
		Query     string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.PatientID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Patient ID is required")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Query is required")
		return
	}

	s.writeAnswer(w, r, req.Query, req.PatientID)
}

func (s *Server) writeAnswer(w http.ResponseWriter, r *http.Request, question, patientID string) {
	ans, err := s.answerer.Answer(r.Context(), question, patientID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	sources := make([]sourceDTO, 0, len(ans.Sources))
	for _, id := range ans.Sources {
		sources = append(sources, sourceDTO{Path: id.Path, Fingerprint: id.Fingerprint})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"answer":       ans.Text,
		"sources":      sources,
		"context_free": ans.ContextFree,
	})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	rep := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if rep.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	checks := make(map[string]string, len(rep.Checks))
	for k, v := range rep.Checks {
		checks[k] = string(v)
	}
	writeJSON(w, httpStatus, map[string]any{
		"status": string(rep.Status),
		"checks": checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrNotIndexable,
		domain.ErrInvalidSeverity,
		domain.ErrStaleRecord,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationProviderError,
		domain.ErrParsingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
