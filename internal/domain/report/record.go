package report

import (
	"time"

	"github.com/ishan121028/RadiologyAI/internal/domain/triage"
)

// Parsed is the structured field set returned by the parsing capability.
type Parsed struct {
	PatientID       string
	StudyType       string
	StudyDate       string
	ClinicalHistory string
	Technique       string
	Findings        string
	Impression      string
	Radiologist     string
	RawText         string
	Confidence      float64
}

// Record is the canonical extraction result for one document observation.
// A Record is indexable when Findings or RawText is non-empty; when
// structured extraction fails the raw-text fallback is mandatory and
// Degraded is set.
type Record struct {
	Identity        Identity
	PatientID       string
	StudyType       string
	StudyDate       string
	ClinicalHistory string
	Technique       string
	Findings        string
	Impression      string
	Radiologist     string
	RawText         string
	Confidence      float64
	Degraded        bool
	ObservedAt      time.Time
	ProcessedAt     time.Time
	Duration        time.Duration
}

// Indexable reports whether the record carries enough text to index.
func (r *Record) Indexable() bool {
	return r.Findings != "" || r.RawText != ""
}

// EmbeddingText returns the text used to produce the retrieval embedding:
// the structured findings and impression when present, the raw fallback
// otherwise.
func (r *Record) EmbeddingText() string {
	if r.Findings == "" && r.Impression == "" {
		return r.RawText
	}
	if r.Impression == "" {
		return r.Findings
	}
	return r.Findings + "\n" + r.Impression
}

// Classify runs the triage engine over the record's textual fields.
func (r *Record) Classify() triage.Result {
	return triage.Classify(r.Findings, r.Impression, r.RawText)
}

// Entry is the unit stored in the document index: the record, its
// classification, the retrieval embedding, and bookkeeping timestamps.
type Entry struct {
	Record         Record
	Classification triage.Result
	Vector         []float32
	LastSeen       time.Time
}

// Scored is an index entry with a retrieval relevance score.
type Scored struct {
	Entry Entry
	Score float64
}
