package report

import (
	"strings"
	"testing"

	"github.com/ishan121028/RadiologyAI/internal/domain/triage"
)

func TestNewIdentity_Deterministic(t *testing.T) {
	a := NewIdentity("/data/reports/ct_chest.pdf", []byte("report body"))
	b := NewIdentity("/data/reports/ct_chest.pdf", []byte("report body"))

	if a != b {
		t.Errorf("identities differ: %v vs %v", a, b)
	}
	if len(a.Fingerprint) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a.Fingerprint))
	}
}

func TestNewIdentity_ContentChangesFingerprint(t *testing.T) {
	a := NewIdentity("/data/reports/ct_chest.pdf", []byte("v1"))
	b := NewIdentity("/data/reports/ct_chest.pdf", []byte("v2"))

	if a.Fingerprint == b.Fingerprint {
		t.Error("expected different fingerprints for different content")
	}
	if a.Key() != b.Key() {
		t.Errorf("Key changed with content: %q vs %q", a.Key(), b.Key())
	}
}

func TestIdentity_KeySanitizesBasename(t *testing.T) {
	id := Identity{Path: "/data/reports/ct chest (copy).pdf", Fingerprint: "abc"}

	key := id.Key()
	if strings.ContainsAny(key, " ()") {
		t.Errorf("Key() = %q, expected sanitized", key)
	}
}

func TestIdentity_KeyDistinguishesDirectories(t *testing.T) {
	a := Identity{Path: "/ward-a/report.pdf"}
	b := Identity{Path: "/ward-b/report.pdf"}

	if a.Key() == b.Key() {
		t.Error("same basename in different directories must not collide")
	}
}

func TestIdentity_ShortFingerprint(t *testing.T) {
	id := Identity{Fingerprint: "0123456789abcdef0123"}
	if got := id.ShortFingerprint(); got != "0123456789ab" {
		t.Errorf("ShortFingerprint() = %q", got)
	}

	short := Identity{Fingerprint: "abc"}
	if got := short.ShortFingerprint(); got != "abc" {
		t.Errorf("ShortFingerprint() = %q, want abc", got)
	}
}

func TestRecord_Indexable(t *testing.T) {
	cases := []struct {
		name string
		rec  Record
		want bool
	}{
		{"findings only", Record{Findings: "clear lungs"}, true},
		{"raw text only", Record{RawText: "raw"}, true},
		{"impression only", Record{Impression: "normal"}, false},
		{"empty", Record{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.rec.Indexable(); got != c.want {
				t.Errorf("Indexable() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestRecord_EmbeddingText(t *testing.T) {
	full := Record{Findings: "findings", Impression: "impression", RawText: "raw"}
	if got := full.EmbeddingText(); got != "findings\nimpression" {
		t.Errorf("EmbeddingText() = %q", got)
	}

	findingsOnly := Record{Findings: "findings", RawText: "raw"}
	if got := findingsOnly.EmbeddingText(); got != "findings" {
		t.Errorf("EmbeddingText() = %q, want findings", got)
	}

	degraded := Record{RawText: "raw"}
	if got := degraded.EmbeddingText(); got != "raw" {
		t.Errorf("EmbeddingText() = %q, want raw", got)
	}
}

func TestRecord_Classify(t *testing.T) {
	rec := Record{Findings: "Acute hemorrhage in the right frontal lobe."}

	res := rec.Classify()
	if res.Severity != triage.SeverityRed {
		t.Errorf("Severity = %q, want RED", res.Severity)
	}
}
