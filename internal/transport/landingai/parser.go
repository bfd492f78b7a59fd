// Package landingai is the HTTP client for the document parsing capability.
// It posts raw report bytes and decodes the structured field set used by the
// extraction pipeline.
package landingai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ishan121028/RadiologyAI/internal/domain"
	"github.com/ishan121028/RadiologyAI/internal/domain/report"
	"github.com/ishan121028/RadiologyAI/internal/metrics"
)

const providerLabel = "landingai"

// maxErrorBody bounds how much of an error response is kept for the message.
const maxErrorBody = 2048

// Parser calls the parse endpoint over HTTP.
type Parser struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

// Config holds the parsing provider settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Logger  *zap.Logger
}

// New creates a parsing provider client.
func New(cfg *Config) *Parser {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Parser{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		logger:     cfg.Logger,
	}
}

// parseResponse mirrors the provider's extraction payload.
type parseResponse struct {
	Data struct {
		PatientID       string  `json:"patient_id"`
		StudyDate       string  `json:"study_date"`
		StudyType       string  `json:"study_type"`
		ClinicalHistory string  `json:"clinical_history"`
		Technique       string  `json:"technique"`
		Findings        string  `json:"findings"`
		Impression      string  `json:"impression"`
		Radiologist     string  `json:"radiologist"`
		RawText         string  `json:"raw_text"`
		Confidence      float64 `json:"confidence"`
	} `json:"data"`
}

// Parse sends the document to the parse endpoint and returns the structured
// field set. All failures are wrapped with domain.ErrParsingProviderError;
// the extraction service decides how to degrade.
func (p *Parser) Parse(ctx context.Context, content []byte, filename string) (report.Parsed, error) {
	body, contentType, err := buildMultipart(content, filename)
	if err != nil {
		return report.Parsed{}, fmt.Errorf("build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/parse", body)
	if err != nil {
		return report.Parsed{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Basic "+p.apiKey)
	}

	start := time.Now()

	resp, err := p.httpClient.Do(req)

	duration := time.Since(start)

	if err != nil {
		metrics.ParsingRequestsTotal.WithLabelValues(providerLabel, "error").Inc()
		return report.Parsed{}, fmt.Errorf("parse request for %s: %v: %w",
			filename, err, domain.ErrParsingProviderError)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ParsingRequestsTotal.WithLabelValues(providerLabel, "error").Inc()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return report.Parsed{}, fmt.Errorf("parse API error %d: %s: %w",
			resp.StatusCode, bytes.TrimSpace(detail), domain.ErrParsingProviderError)
	}

	var pr parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		metrics.ParsingRequestsTotal.WithLabelValues(providerLabel, "error").Inc()
		return report.Parsed{}, fmt.Errorf("decode parse response: %v: %w",
			err, domain.ErrParsingProviderError)
	}

	metrics.ParsingRequestsTotal.WithLabelValues(providerLabel, "success").Inc()
	metrics.ParsingRequestDuration.WithLabelValues(providerLabel).Observe(duration.Seconds())

	return report.Parsed{
		PatientID:       pr.Data.PatientID,
		StudyDate:       pr.Data.StudyDate,
		StudyType:       pr.Data.StudyType,
		ClinicalHistory: pr.Data.ClinicalHistory,
		Technique:       pr.Data.Technique,
		Findings:        pr.Data.Findings,
		Impression:      pr.Data.Impression,
		Radiologist:     pr.Data.Radiologist,
		RawText:         pr.Data.RawText,
		Confidence:      pr.Data.Confidence,
	}, nil
}

func buildMultipart(content []byte, filename string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	part, err := w.CreateFormFile("document", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}
