package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ishan121028/RadiologyAI/internal/domain/report"
)

type mockParser struct {
	result report.Parsed
	err    error
	delay  time.Duration
	calls  int
}

func (m *mockParser) Parse(ctx context.Context, _ []byte, _ string) (report.Parsed, error) {
	m.calls++
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return report.Parsed{}, ctx.Err()
		}
	}
	return m.result, m.err
}

type mockCache struct {
	entries map[string]report.Parsed
	puts    int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]report.Parsed)}
}

func (m *mockCache) Get(_ context.Context, fp string) (report.Parsed, bool) {
	p, ok := m.entries[fp]
	return p, ok
}

func (m *mockCache) Put(_ context.Context, fp string, p report.Parsed) {
	m.puts++
	m.entries[fp] = p
}

func TestExtract_StructuredSuccess(t *testing.T) {
	parser := &mockParser{result: report.Parsed{
		PatientID:  "PAT-001",
		Findings:   "Large pulmonary embolism in the right main pulmonary artery.",
		Impression: "Acute PE.",
		Confidence: 0.94,
	}}
	cache := newMockCache()
	svc := New(parser, cache, Config{RatePerSecond: 100, Burst: 10}, zap.NewNop())

	now := time.Now().UTC()
	rec := svc.Extract(context.Background(), "/drop/report_001.pdf", "fp-1", []byte("%PDF"), now)

	if rec.Degraded {
		t.Fatal("expected non-degraded record")
	}
	if rec.PatientID != "PAT-001" {
		t.Errorf("unexpected patient id: %s", rec.PatientID)
	}
	if rec.Identity.Path != "/drop/report_001.pdf" || rec.Identity.Fingerprint != "fp-1" {
		t.Errorf("unexpected identity: %+v", rec.Identity)
	}
	if !rec.ObservedAt.Equal(now) {
		t.Errorf("observed at not preserved: %v", rec.ObservedAt)
	}
	if cache.puts != 1 {
		t.Errorf("expected 1 cache put, got %d", cache.puts)
	}
	if !rec.Indexable() {
		t.Error("expected indexable record")
	}
}

func TestExtract_ProviderErrorDegrades(t *testing.T) {
	parser := &mockParser{err: errors.New("provider down")}
	svc := New(parser, nil, Config{RatePerSecond: 100, Burst: 10}, zap.NewNop())

	content := []byte("RADIOLOGY REPORT\nFINDINGS: possible nodule")
	rec := svc.Extract(context.Background(), "/drop/report_002.txt", "fp-2", content, time.Now())

	if !rec.Degraded {
		t.Fatal("expected degraded record")
	}
	if rec.RawText != string(content) {
		t.Errorf("expected raw text fallback, got %q", rec.RawText)
	}
	if !rec.Indexable() {
		t.Error("degraded record with raw text must remain indexable")
	}
}

func TestExtract_TimeoutDegrades(t *testing.T) {
	parser := &mockParser{
		delay:  time.Second,
		result: report.Parsed{Findings: "never returned"},
	}
	svc := New(parser, nil, Config{Timeout: 20 * time.Millisecond, RatePerSecond: 100, Burst: 10}, zap.NewNop())

	rec := svc.Extract(context.Background(), "/drop/slow.pdf", "fp-3", []byte("content"), time.Now())

	if !rec.Degraded {
		t.Fatal("expected degraded record on timeout")
	}
	if rec.Findings != "" {
		t.Errorf("expected no structured fields, got findings %q", rec.Findings)
	}
}

func TestExtract_LowConfidenceDegrades(t *testing.T) {
	parser := &mockParser{result: report.Parsed{
		Findings:   "questionable extraction",
		Confidence: 0.4,
	}}
	cache := newMockCache()
	svc := New(parser, cache, Config{RatePerSecond: 100, Burst: 10, MinConfidence: 0.7}, zap.NewNop())

	rec := svc.Extract(context.Background(), "/drop/blurry.pdf", "fp-4", []byte("scan text"), time.Now())

	if !rec.Degraded {
		t.Fatal("expected degraded record below confidence threshold")
	}
	if cache.puts != 0 {
		t.Errorf("low-confidence parse must not be cached, got %d puts", cache.puts)
	}
}

func TestExtract_CacheHitSkipsProvider(t *testing.T) {
	parser := &mockParser{result: report.Parsed{Findings: "from provider"}}
	cache := newMockCache()
	cache.entries["fp-5"] = report.Parsed{Findings: "from cache", Confidence: 0.9}

	svc := New(parser, cache, Config{RatePerSecond: 100, Burst: 10}, zap.NewNop())

	rec := svc.Extract(context.Background(), "/drop/seen.pdf", "fp-5", []byte("content"), time.Now())

	if rec.Degraded {
		t.Fatal("cache hit must not be degraded")
	}
	if rec.Findings != "from cache" {
		t.Errorf("expected cached parse, got %q", rec.Findings)
	}
	if parser.calls != 0 {
		t.Errorf("expected 0 provider calls, got %d", parser.calls)
	}
}

func TestBestEffortText_DropsInvalidBytes(t *testing.T) {
	in := append([]byte("FINDINGS: clear"), 0xff, 0xfe)
	out := bestEffortText(in)
	if out != "FINDINGS: clear" {
		t.Errorf("unexpected decode: %q", out)
	}
}
