package document

import (
	"context"
	"testing"
	"time"

	"github.com/ishan121028/RadiologyAI/internal/db"
	"github.com/ishan121028/RadiologyAI/internal/domain/report"
	"github.com/ishan121028/RadiologyAI/internal/domain/triage"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn         func(ctx context.Context, key string, fields map[string]string) error
	hgetAllFn      func(ctx context.Context, key string) (map[string]string, error)
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)
	delFn          func(ctx context.Context, key string) error
	scanFn         func(ctx context.Context, pattern string) ([]string, error)
	createIndexFn  func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn  func(ctx context.Context, name string) (bool, error)
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	return nil, nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, 4)
	return repo, ms
}

func testEntry(t *testing.T) report.Entry {
	t.Helper()
	observed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return report.Entry{
		Record: report.Record{
			Identity:    report.NewIdentity("/reports/ct_chest_p123.pdf", []byte("report body")),
			PatientID:   "P-123",
			StudyType:   "CT Chest",
			StudyDate:   "2026-03-14",
			Findings:    "Acute pulmonary embolism in the right main pulmonary artery.",
			Impression:  "Acute PE.",
			Radiologist: "Dr. Osei",
			Confidence:  0.93,
			ObservedAt:  observed,
			ProcessedAt: observed.Add(2 * time.Second),
			Duration:    1800 * time.Millisecond,
		},
		Classification: triage.Result{
			Severity:     triage.SeverityRed,
			Conditions:   []string{"pulmonary embolism"},
			Actions:      triage.Actions(triage.SeverityRed),
			ClassifiedAt: observed.Add(2 * time.Second),
		},
		Vector:   []float32{0.1, -0.25, 0.5, 1},
		LastSeen: observed.Add(2 * time.Second),
	}
}
