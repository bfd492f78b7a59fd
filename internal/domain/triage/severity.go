// Package triage implements the deterministic urgency classification of
// radiology report text.
package triage

import (
	"fmt"
	"strings"

	"github.com/ishan121028/RadiologyAI/internal/domain"
)

// Severity is a clinical urgency tier, RED highest.
type Severity string

const (
	// SeverityRed requires immediate intervention.
	SeverityRed Severity = "RED"
	// SeverityOrange requires urgent attention.
	SeverityOrange Severity = "ORANGE"
	// SeverityYellow requires follow-up.
	SeverityYellow Severity = "YELLOW"
	// SeverityGreen is routine.
	SeverityGreen Severity = "GREEN"
)

// rank orders severities for comparison. Higher is more urgent.
var rank = map[Severity]int{
	SeverityGreen:  0,
	SeverityYellow: 1,
	SeverityOrange: 2,
	SeverityRed:    3,
}

// Rank returns the numeric urgency of the severity, higher meaning more urgent.
func (s Severity) Rank() int { return rank[s] }

// AtLeast reports whether s is at or above threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return rank[s] >= rank[threshold]
}

// Valid reports whether s is one of the four known tiers.
func (s Severity) Valid() bool {
	_, ok := rank[s]
	return ok
}

// UrgencyMinutes returns the expected response window for the severity.
func (s Severity) UrgencyMinutes() int {
	switch s {
	case SeverityRed:
		return 5
	case SeverityOrange:
		return 30
	case SeverityYellow:
		return 240
	default:
		return 0
	}
}

// ParseSeverity parses a severity name case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("%q: %w", s, domain.ErrInvalidSeverity)
	}
	return sev, nil
}
