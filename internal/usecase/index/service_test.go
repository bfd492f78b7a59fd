package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ishan121028/RadiologyAI/internal/domain"
	"github.com/ishan121028/RadiologyAI/internal/domain/report"
	"github.com/ishan121028/RadiologyAI/internal/domain/triage"
)

type mockRepo struct {
	entries map[string]report.Entry
	touched map[string]time.Time
	putErr  error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		entries: make(map[string]report.Entry),
		touched: make(map[string]time.Time),
	}
}

func (m *mockRepo) Put(_ context.Context, entry *report.Entry) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.entries[entry.Record.Identity.Key()] = *entry
	return nil
}

func (m *mockRepo) Get(_ context.Context, docKey string) (report.Entry, error) {
	e, ok := m.entries[docKey]
	if !ok {
		return report.Entry{}, domain.ErrNotFound
	}
	return e, nil
}

func (m *mockRepo) Touch(_ context.Context, docKey string, t time.Time) error {
	m.touched[docKey] = t
	return nil
}

func (m *mockRepo) List(_ context.Context) ([]report.Entry, error) {
	out := make([]report.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

type mockSearcher struct {
	knnResult []report.Scored
	byPatient []report.Entry
	lastK     int
}

func (m *mockSearcher) KNN(_ context.Context, _ []float32, k int, _ string) ([]report.Scored, error) {
	m.lastK = k
	return m.knnResult, nil
}

func (m *mockSearcher) ByPatient(_ context.Context, _ string) ([]report.Entry, error) {
	return m.byPatient, nil
}

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec}, nil
}

func newTestService(repo *mockRepo, searcher *mockSearcher, emb *mockEmbedder) *Service {
	return New(repo, searcher, emb, 4, zap.NewNop())
}

func testRecord(path, fp string, observed time.Time) report.Record {
	return report.Record{
		Identity:   report.Identity{Path: path, Fingerprint: fp},
		PatientID:  "PAT-001",
		Findings:   "Acute pulmonary embolism.",
		Impression: "PE.",
		ObservedAt: observed,
		Duration:   2 * time.Second,
	}
}

func TestUpsert_CreatesEntry(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockSearcher{}, &mockEmbedder{vec: []float32{1, 0, 0, 0}})

	var got []Notification
	svc.Observe(func(n Notification) { got = append(got, n) })

	rec := testRecord("/drop/a.pdf", "fp-1", time.Now())
	res := rec.Classify()
	if err := svc.Upsert(context.Background(), rec, res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 stored entry, got %d", len(repo.entries))
	}
	if len(got) != 1 || !got[0].Created {
		t.Fatalf("expected 1 created notification, got %+v", got)
	}

	stats := svc.Statistics()
	if stats.TotalDocuments != 1 {
		t.Errorf("expected total=1, got %d", stats.TotalDocuments)
	}
	if stats.BySeverity[triage.SeverityRed] != 1 {
		t.Errorf("expected 1 RED, got %+v", stats.BySeverity)
	}
}

func TestUpsert_SameIdentityOnlyTouches(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockSearcher{}, &mockEmbedder{vec: []float32{1, 0, 0, 0}})

	var notifications int
	svc.Observe(func(Notification) { notifications++ })

	rec := testRecord("/drop/a.pdf", "fp-1", time.Now())
	res := rec.Classify()
	ctx := context.Background()

	if err := svc.Upsert(ctx, rec, res); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	rec.ObservedAt = rec.ObservedAt.Add(time.Minute)
	if err := svc.Upsert(ctx, rec, res); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if notifications != 1 {
		t.Errorf("expected 1 notification, got %d", notifications)
	}
	if svc.Statistics().TotalDocuments != 1 {
		t.Errorf("counters should be unchanged, got %+v", svc.Statistics())
	}
	if _, ok := repo.touched[rec.Identity.Key()]; !ok {
		t.Error("expected Touch on unchanged re-upsert")
	}
}

func TestUpsert_NewFingerprintSupersedes(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockSearcher{}, &mockEmbedder{vec: []float32{1, 0, 0, 0}})

	var got []Notification
	svc.Observe(func(n Notification) { got = append(got, n) })

	ctx := context.Background()
	first := testRecord("/drop/a.pdf", "fp-1", time.Now())
	if err := svc.Upsert(ctx, first, first.Classify()); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := testRecord("/drop/a.pdf", "fp-2", time.Now().Add(time.Minute))
	second.Findings = "No acute abnormality."
	second.Impression = "Within normal limits."
	if err := svc.Upsert(ctx, second, second.Classify()); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	stats := svc.Statistics()
	if stats.TotalDocuments != 1 {
		t.Errorf("superseded entry must not inflate total, got %d", stats.TotalDocuments)
	}
	if stats.BySeverity[triage.SeverityRed] != 0 || stats.BySeverity[triage.SeverityGreen] != 1 {
		t.Errorf("expected severity moved RED->GREEN, got %+v", stats.BySeverity)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if !got[1].SeverityChanged || got[1].PrevSeverity != triage.SeverityRed {
		t.Errorf("expected severity-change notification, got %+v", got[1])
	}
}

func TestUpsert_StaleObservationRejected(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockSearcher{}, &mockEmbedder{vec: []float32{1, 0, 0, 0}})

	ctx := context.Background()
	now := time.Now()
	current := testRecord("/drop/a.pdf", "fp-2", now)
	if err := svc.Upsert(ctx, current, current.Classify()); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	stale := testRecord("/drop/a.pdf", "fp-1", now.Add(-time.Hour))
	err := svc.Upsert(ctx, stale, stale.Classify())
	if !errors.Is(err, domain.ErrStaleRecord) {
		t.Fatalf("expected ErrStaleRecord, got %v", err)
	}
	if repo.entries[current.Identity.Key()].Record.Identity.Fingerprint != "fp-2" {
		t.Error("stale observation must not overwrite current entry")
	}
}

func TestUpsert_RepairReplacesDegraded(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockSearcher{}, &mockEmbedder{vec: []float32{1, 0, 0, 0}})

	ctx := context.Background()
	now := time.Now()

	degraded := testRecord("/drop/a.pdf", "fp-1", now)
	degraded.Degraded = true
	if err := svc.Upsert(ctx, degraded, degraded.Classify()); err != nil {
		t.Fatalf("degraded upsert: %v", err)
	}

	repaired := testRecord("/drop/a.pdf", "fp-1", now.Add(time.Second))
	if err := svc.Upsert(ctx, repaired, repaired.Classify()); err != nil {
		t.Fatalf("repair upsert: %v", err)
	}

	stats := svc.Statistics()
	if stats.Degraded != 0 {
		t.Errorf("expected degraded count 0 after repair, got %d", stats.Degraded)
	}
	stored := repo.entries[repaired.Identity.Key()]
	if stored.Record.Degraded {
		t.Error("expected stored entry to be repaired")
	}
}

func TestUpsert_NotIndexable(t *testing.T) {
	svc := newTestService(newMockRepo(), &mockSearcher{}, &mockEmbedder{vec: []float32{1, 0, 0, 0}})

	rec := report.Record{Identity: report.Identity{Path: "/drop/empty.pdf", Fingerprint: "fp"}}
	err := svc.Upsert(context.Background(), rec, rec.Classify())
	if !errors.Is(err, domain.ErrNotIndexable) {
		t.Fatalf("expected ErrNotIndexable, got %v", err)
	}
}

func TestUpsert_EmbeddingFailureIndexesZeroVector(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockSearcher{}, &mockEmbedder{err: domain.ErrEmbeddingProviderError})

	rec := testRecord("/drop/a.pdf", "fp-1", time.Now())
	if err := svc.Upsert(context.Background(), rec, rec.Classify()); err != nil {
		t.Fatalf("expected upsert to succeed with zero vector: %v", err)
	}

	stored := repo.entries[rec.Identity.Key()]
	if len(stored.Vector) != 4 {
		t.Fatalf("expected zero vector of dim 4, got %v", stored.Vector)
	}
	for _, v := range stored.Vector {
		if v != 0 {
			t.Fatalf("expected zero vector, got %v", stored.Vector)
		}
	}
}

func scoredEntry(path string, score float64, processed time.Time) report.Scored {
	return report.Scored{
		Entry: report.Entry{Record: report.Record{
			Identity:    report.Identity{Path: path, Fingerprint: "fp"},
			Findings:    "x",
			ProcessedAt: processed,
		}},
		Score: score,
	}
}

func TestRetrieve_OrderingAndCap(t *testing.T) {
	now := time.Now()
	searcher := &mockSearcher{knnResult: []report.Scored{
		scoredEntry("/drop/low.pdf", 0.2, now),
		scoredEntry("/drop/older.pdf", 0.8, now.Add(-time.Hour)),
		scoredEntry("/drop/newer.pdf", 0.8, now),
	}}
	svc := newTestService(newMockRepo(), searcher, &mockEmbedder{vec: []float32{1, 0, 0, 0}})

	got, err := svc.Retrieve(context.Background(), "embolism", 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected k=2 results, got %d", len(got))
	}
	if got[0].Entry.Record.Identity.Path != "/drop/newer.pdf" {
		t.Errorf("tie must prefer most recent, got %s", got[0].Entry.Record.Identity.Path)
	}
	if got[1].Entry.Record.Identity.Path != "/drop/older.pdf" {
		t.Errorf("unexpected second result: %s", got[1].Entry.Record.Identity.Path)
	}
}

func TestRetrieve_DefaultsAndBounds(t *testing.T) {
	searcher := &mockSearcher{}
	svc := newTestService(newMockRepo(), searcher, &mockEmbedder{vec: []float32{1, 0, 0, 0}})
	ctx := context.Background()

	if _, err := svc.Retrieve(ctx, "q", 0); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if searcher.lastK != DefaultK {
		t.Errorf("expected default k=%d, got %d", DefaultK, searcher.lastK)
	}

	if _, err := svc.Retrieve(ctx, "q", 10_000); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if searcher.lastK != MaxK {
		t.Errorf("expected capped k=%d, got %d", MaxK, searcher.lastK)
	}
}

func TestRetrieve_EmbedErrorPropagates(t *testing.T) {
	svc := newTestService(newMockRepo(), &mockSearcher{}, &mockEmbedder{err: domain.ErrEmbeddingProviderError})

	_, err := svc.Retrieve(context.Background(), "q", 5)
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected embedding error, got %v", err)
	}
}

func TestFindByPatient_UnknownYieldsEmpty(t *testing.T) {
	svc := newTestService(newMockRepo(), &mockSearcher{}, &mockEmbedder{vec: []float32{1, 0, 0, 0}})

	got, err := svc.FindByPatient(context.Background(), "PAT-NONE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
}

func TestStatistics_AverageProcessing(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockSearcher{}, &mockEmbedder{vec: []float32{1, 0, 0, 0}})
	ctx := context.Background()

	a := testRecord("/drop/a.pdf", "fp-1", time.Now())
	a.Duration = time.Second
	b := testRecord("/drop/b.pdf", "fp-2", time.Now())
	b.Duration = 3 * time.Second

	if err := svc.Upsert(ctx, a, a.Classify()); err != nil {
		t.Fatal(err)
	}
	if err := svc.Upsert(ctx, b, b.Classify()); err != nil {
		t.Fatal(err)
	}

	stats := svc.Statistics()
	if stats.AvgProcessing != 2*time.Second {
		t.Errorf("expected avg 2s, got %v", stats.AvgProcessing)
	}
}

func TestWarm_SeedsCounters(t *testing.T) {
	repo := newMockRepo()
	repo.entries["k1"] = report.Entry{
		Record:         report.Record{Identity: report.Identity{Path: "/drop/a.pdf"}, Findings: "x", Degraded: true},
		Classification: triage.Result{Severity: triage.SeverityOrange},
	}
	repo.entries["k2"] = report.Entry{
		Record:         report.Record{Identity: report.Identity{Path: "/drop/b.pdf"}, Findings: "y"},
		Classification: triage.Result{Severity: triage.SeverityGreen},
	}

	svc := newTestService(repo, &mockSearcher{}, &mockEmbedder{vec: []float32{1, 0, 0, 0}})
	if err := svc.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}

	stats := svc.Statistics()
	if stats.TotalDocuments != 2 || stats.Degraded != 1 {
		t.Errorf("unexpected warmed stats: %+v", stats)
	}
	if stats.BySeverity[triage.SeverityOrange] != 1 {
		t.Errorf("unexpected severity counters: %+v", stats.BySeverity)
	}
}
