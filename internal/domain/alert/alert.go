// Package alert defines the immutable alert event emitted for urgent
// classifications.
package alert

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ishan121028/RadiologyAI/internal/domain/report"
	"github.com/ishan121028/RadiologyAI/internal/domain/triage"
)

// State tracks delivery progress of an event inside the broker.
type State string

const (
	// StatePending means the event has been created but not yet offered to subscribers.
	StatePending State = "PENDING"
	// StateDelivered means at least one subscriber received the event.
	StateDelivered State = "DELIVERED"
	// StateQueued means no subscriber was connected; the event is retained for late joiners.
	StateQueued State = "QUEUED"
)

// Event is one alert. Events are never mutated after creation; the ID is
// derived from the document identity and severity so redelivery of the
// same finding carries the same ID and subscribers can deduplicate.
type Event struct {
	ID              string          `json:"alert_id"`
	PatientID       string          `json:"patient_id"`
	Severity        triage.Severity `json:"severity"`
	Conditions      []string        `json:"conditions"`
	FindingsSummary string          `json:"findings_summary"`
	Impression      string          `json:"impression"`
	Message         string          `json:"message"`
	UrgencyMinutes  int             `json:"urgency_minutes"`
	Source          string          `json:"source"`
	EmittedAt       time.Time       `json:"timestamp"`
}

const summaryLimit = 200

// NewEvent builds the alert for a classified record.
func NewEvent(rec *report.Record, res triage.Result, now time.Time) Event {
	return Event{
		ID:              EventID(rec.Identity, res.Severity),
		PatientID:       rec.PatientID,
		Severity:        res.Severity,
		Conditions:      res.Conditions,
		FindingsSummary: summarize(rec.Findings, rec.RawText),
		Impression:      rec.Impression,
		Message:         message(rec, res),
		UrgencyMinutes:  res.Severity.UrgencyMinutes(),
		Source:          rec.Identity.Path,
		EmittedAt:       now,
	}
}

// EventID derives the idempotent alert identifier from the document
// identity and severity.
func EventID(id report.Identity, severity triage.Severity) string {
	sum := sha256.Sum256([]byte(id.Path + "|" + id.Fingerprint + "|" + string(severity)))
	return "alert-" + hex.EncodeToString(sum[:8])
}

func summarize(findings, rawText string) string {
	text := findings
	if text == "" {
		text = rawText
	}
	text = strings.TrimSpace(text)
	if len(text) > summaryLimit {
		return text[:summaryLimit] + "..."
	}
	return text
}

func message(rec *report.Record, res triage.Result) string {
	patient := rec.PatientID
	if patient == "" {
		patient = "unknown patient"
	}
	if len(res.Conditions) > 0 {
		return fmt.Sprintf("%s alert for %s: %s", res.Severity, patient, strings.Join(res.Conditions, ", "))
	}
	return fmt.Sprintf("%s alert for %s", res.Severity, patient)
}
