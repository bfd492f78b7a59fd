package triage

import (
	"strings"
	"time"
)

// Result is the outcome of classifying one report.
type Result struct {
	Severity     Severity
	Conditions   []string
	Actions      []string
	ClassifiedAt time.Time
}

// Classify scans the concatenated report text (findings, impression, raw
// fallback) against the rule tiers and returns the highest-severity tier
// with at least one match. Conditions are the winning tier's matched
// phrases in first-occurrence order. No I/O; identical text always yields
// an identical severity, condition list, and action list.
func Classify(findings, impression, rawText string) Result {
	text := normalize(findings + "\n" + impression + "\n" + rawText)

	severity := SeverityGreen
	var conditions []string

	for _, tier := range tiers {
		matched := matchTier(text, tier.phrases)
		if len(matched) == 0 {
			continue
		}
		severity = tier.severity
		conditions = matched
		break
	}

	return Result{
		Severity:     severity,
		Conditions:   conditions,
		Actions:      Actions(severity),
		ClassifiedAt: time.Now().UTC(),
	}
}

// matchTier returns the tier phrases present in text, ordered by their
// first occurrence in the text.
func matchTier(text string, phrases []string) []string {
	type hit struct {
		phrase string
		pos    int
	}
	var hits []hit
	for _, p := range phrases {
		if pos := strings.Index(text, p); pos >= 0 {
			hits = append(hits, hit{phrase: p, pos: pos})
		}
	}
	// insertion sort by position; tier lists are short
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.phrase
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
