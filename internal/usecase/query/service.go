// Package query answers natural-language questions over indexed reports:
// retrieve the most relevant entries, compose a grounded prompt, and have
// the generation provider write the answer.
package query

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ishan121028/RadiologyAI/internal/domain"
	"github.com/ishan121028/RadiologyAI/internal/domain/report"
)

// DefaultTopK is the retrieval size for answer composition.
const DefaultTopK = 6

// Retriever supplies relevant index entries for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]report.Scored, error)
	RetrieveForPatient(ctx context.Context, query string, k int, patientID string) ([]report.Scored, error)
}

// Answer is a generated response with source traceability.
type Answer struct {
	Text        string
	Sources     []report.Identity
	ContextFree bool
}

// Service composes answers from retrieval plus generation.
type Service struct {
	retriever Retriever
	generator domain.Generator
	topK      int
	logger    *zap.Logger
}

// New creates a query service. topK <= 0 selects the default.
func New(retriever Retriever, generator domain.Generator, topK int, logger *zap.Logger) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{
		retriever: retriever,
		generator: generator,
		topK:      topK,
		logger:    logger,
	}
}

// Answer retrieves context for the question, optionally restricted to one
// patient, and generates a grounded answer. When retrieval comes back empty
// the answer is generated without context and flagged ContextFree.
// Generation failure surfaces to the caller, unlike pipeline faults.
func (s *Service) Answer(ctx context.Context, question, patientID string) (Answer, error) {
	var (
		scored []report.Scored
		err    error
	)
	if patientID != "" {
		scored, err = s.retriever.RetrieveForPatient(ctx, question, s.topK, patientID)
	} else {
		scored, err = s.retriever.Retrieve(ctx, question, s.topK)
	}
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve context: %w", err)
	}

	prompt := buildPrompt(question, scored)

	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	sources := make([]report.Identity, 0, len(scored))
	for _, sc := range scored {
		sources = append(sources, sc.Entry.Record.Identity)
	}

	return Answer{
		Text:        text,
		Sources:     sources,
		ContextFree: len(scored) == 0,
	}, nil
}

// buildPrompt renders the findings context and the question.
func buildPrompt(question string, scored []report.Scored) string {
	if len(scored) == 0 {
		return fmt.Sprintf(
			"No matching radiology findings are indexed.\n\nQuery: %s\n\n"+
				"Provide recommendations and alert level assessment.", question)
	}

	var ctx strings.Builder
	for i, sc := range scored {
		rec := &sc.Entry.Record
		fmt.Fprintf(&ctx, "[%d] ", i+1)
		if rec.PatientID != "" {
			fmt.Fprintf(&ctx, "Patient %s. ", rec.PatientID)
		}
		if rec.StudyType != "" {
			fmt.Fprintf(&ctx, "%s. ", rec.StudyType)
		}
		text := rec.Findings
		if text == "" {
			text = rec.RawText
		}
		ctx.WriteString(strings.TrimSpace(text))
		if rec.Impression != "" {
			ctx.WriteString(" Impression: ")
			ctx.WriteString(rec.Impression)
		}
		ctx.WriteString("\n")
	}

	return fmt.Sprintf(
		"Based on these radiology findings: %s\nQuery: %s\n\n"+
			"Provide recommendations and alert level assessment.",
		ctx.String(), question)
}
