// Package index maintains the report index: idempotent upserts keyed by
// document identity, semantic retrieval, patient lookup, and running
// statistics answered without touching storage.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ishan121028/RadiologyAI/internal/domain"
	"github.com/ishan121028/RadiologyAI/internal/domain/report"
	"github.com/ishan121028/RadiologyAI/internal/domain/triage"
)

const (
	// DefaultK is the retrieval size when the caller does not specify one.
	DefaultK = 6
	// MaxK caps retrieval size regardless of the request.
	MaxK = 50
)

// Notification describes one effective index mutation. Re-upserts of an
// unchanged identity do not produce notifications.
type Notification struct {
	Entry           report.Entry
	Created         bool
	PrevSeverity    triage.Severity
	SeverityChanged bool
}

// Observer receives index notifications. Observers are called synchronously
// from the upsert path and must not block.
type Observer func(Notification)

// Statistics is the O(1) counter snapshot.
type Statistics struct {
	TotalDocuments int                     `json:"total_documents"`
	BySeverity     map[triage.Severity]int `json:"by_severity"`
	Degraded       int                     `json:"degraded"`
	AvgProcessing  time.Duration           `json:"-"`
	LastUpdated    time.Time               `json:"last_updated"`
}

// Service is the document index.
type Service struct {
	repo      Repository
	searcher  Searcher
	embedder  Embedder
	vectorDim int
	logger    *zap.Logger

	mu          sync.Mutex
	total       int
	bySeverity  map[triage.Severity]int
	degraded    int
	sumDuration time.Duration
	processed   int
	lastUpdated time.Time
	observers   []Observer
}

// New creates an index service.
func New(repo Repository, searcher Searcher, embedder Embedder, vectorDim int, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		searcher:   searcher,
		embedder:   embedder,
		vectorDim:  vectorDim,
		logger:     logger,
		bySeverity: make(map[triage.Severity]int),
	}
}

// Observe registers an observer for index notifications. Not safe to call
// concurrently with Upsert; register observers before the pipeline starts.
func (s *Service) Observe(fn Observer) {
	s.observers = append(s.observers, fn)
}

// Warm seeds the running counters from entries already in storage so that
// statistics survive a restart. Call once before serving.
func (s *Service) Warm(ctx context.Context) error {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range entries {
		s.accountAddLocked(&entries[i])
	}
	s.lastUpdated = time.Now().UTC()
	return nil
}

// Upsert stores the classified record as the current entry for its source
// path. The operation is idempotent by identity: an unchanged document only
// moves its last-seen timestamp. A changed document supersedes the prior
// entry, and a structured extraction replaces an earlier degraded one for
// the same content. Out-of-order observations return ErrStaleRecord.
func (s *Service) Upsert(ctx context.Context, rec report.Record, res triage.Result) error {
	if !rec.Indexable() {
		return fmt.Errorf("document %s has no indexable text: %w", rec.Identity.Path, domain.ErrNotIndexable)
	}

	docKey := rec.Identity.Key()

	prev, err := s.repo.Get(ctx, docKey)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return s.insert(ctx, rec, res, nil)
	case err != nil:
		return fmt.Errorf("get entry %s: %w", docKey, err)
	}

	if rec.ObservedAt.Before(prev.Record.ObservedAt) {
		return fmt.Errorf("observation for %s predates indexed state: %w",
			rec.Identity.Path, domain.ErrStaleRecord)
	}

	sameContent := prev.Record.Identity.Fingerprint == rec.Identity.Fingerprint
	repair := sameContent && prev.Record.Degraded && !rec.Degraded

	if sameContent && !repair {
		if err := s.repo.Touch(ctx, docKey, time.Now().UTC()); err != nil {
			return fmt.Errorf("touch entry %s: %w", docKey, err)
		}
		return nil
	}

	return s.insert(ctx, rec, res, &prev)
}

// insert writes a new or superseding entry and adjusts the counters.
func (s *Service) insert(ctx context.Context, rec report.Record, res triage.Result, prev *report.Entry) error {
	vector := s.embed(ctx, &rec)

	now := time.Now().UTC()
	entry := report.Entry{
		Record:         rec,
		Classification: res,
		Vector:         vector,
		LastSeen:       now,
	}

	if err := s.repo.Put(ctx, &entry); err != nil {
		return fmt.Errorf("put entry %s: %w", rec.Identity.Key(), err)
	}

	s.mu.Lock()
	if prev != nil {
		s.accountRemoveLocked(prev)
	}
	s.accountAddLocked(&entry)
	s.lastUpdated = now
	s.mu.Unlock()

	n := Notification{
		Entry:   entry,
		Created: prev == nil,
	}
	if prev != nil {
		n.PrevSeverity = prev.Classification.Severity
		n.SeverityChanged = prev.Classification.Severity != res.Severity
	}
	for _, fn := range s.observers {
		fn(n)
	}
	return nil
}

// embed produces the retrieval vector. Embedding failure degrades to a zero
// vector so the entry stays findable by patient and listable.
func (s *Service) embed(ctx context.Context, rec *report.Record) []float32 {
	result, err := s.embedder.Embed(ctx, rec.EmbeddingText())
	if err != nil {
		s.logger.Warn("Embedding failed, indexing with zero vector",
			zap.String("path", rec.Identity.Path), zap.Error(err))
		return make([]float32, s.vectorDim)
	}
	return result.Embedding
}

func (s *Service) accountAddLocked(e *report.Entry) {
	s.total++
	s.bySeverity[e.Classification.Severity]++
	if e.Record.Degraded {
		s.degraded++
	}
	s.sumDuration += e.Record.Duration
	s.processed++
}

func (s *Service) accountRemoveLocked(e *report.Entry) {
	s.total--
	s.bySeverity[e.Classification.Severity]--
	if e.Record.Degraded {
		s.degraded--
	}
}

// Retrieve embeds the query and returns the top-k entries ordered by
// descending score, ties broken by most recent processing time. An empty
// index yields an empty slice.
func (s *Service) Retrieve(ctx context.Context, query string, k int) ([]report.Scored, error) {
	return s.retrieve(ctx, query, k, "")
}

// RetrieveForPatient is Retrieve restricted to one patient identifier.
func (s *Service) RetrieveForPatient(ctx context.Context, query string, k int, patientID string) ([]report.Scored, error) {
	return s.retrieve(ctx, query, k, patientID)
}

func (s *Service) retrieve(ctx context.Context, query string, k int, patientID string) ([]report.Scored, error) {
	if k <= 0 {
		k = DefaultK
	}
	if k > MaxK {
		k = MaxK
	}

	result, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	scored, err := s.searcher.KNN(ctx, result.Embedding, k, patientID)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Entry.Record.ProcessedAt.After(scored[j].Entry.Record.ProcessedAt)
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// FindByPatient returns every entry for the exact patient identifier. An
// unknown patient yields an empty slice, not an error.
func (s *Service) FindByPatient(ctx context.Context, patientID string) ([]report.Entry, error) {
	entries, err := s.searcher.ByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("patient lookup: %w", err)
	}
	return entries, nil
}

// ListDocuments returns every indexed entry.
func (s *Service) ListDocuments(ctx context.Context) ([]report.Entry, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// Statistics returns the counter snapshot without touching storage.
func (s *Service) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySeverity := make(map[triage.Severity]int, len(s.bySeverity))
	for sev, n := range s.bySeverity {
		if n > 0 {
			bySeverity[sev] = n
		}
	}

	var avg time.Duration
	if s.processed > 0 {
		avg = s.sumDuration / time.Duration(s.processed)
	}

	return Statistics{
		TotalDocuments: s.total,
		BySeverity:     bySeverity,
		Degraded:       s.degraded,
		AvgProcessing:  avg,
		LastUpdated:    s.lastUpdated,
	}
}
