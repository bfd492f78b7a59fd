// Package document persists index entries as Redis hashes under the
// radai:report: prefix, searchable through the FT index.
package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ishan121028/RadiologyAI/internal/db"
	"github.com/ishan121028/RadiologyAI/internal/domain"
	"github.com/ishan121028/RadiologyAI/internal/domain/report"
)

const (
	keyPrefix = domain.KeyPrefix + "report:"
	// IndexName is the FT index over report hashes.
	IndexName = domain.KeyPrefix + "report:idx"
)

// HNSWConfig carries HNSW build parameters for the vector field.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// store is the consumer interface for entry persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Repo implements usecase/index.Repository.
type Repo struct {
	store     store
	vectorDim int
	hnsw      HNSWConfig
}

// New creates an entry repository.
func New(s store, vectorDim int) *Repo {
	return &Repo{store: s, vectorDim: vectorDim}
}

// WithHNSW sets HNSW build parameters used by EnsureIndex.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	r.hnsw = cfg
	return r
}

// EnsureIndex creates the FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, IndexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     IndexName,
		Prefixes: []string{keyPrefix},
		Fields: []db.IndexField{
			{Name: "patient_id", Type: db.IndexFieldTag},
			{Name: "severity", Type: db.IndexFieldTag},
			{Name: "processed_at", Type: db.IndexFieldNumeric},
			{
				Name:              "vector",
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         r.vectorDim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           r.hnsw.M,
				VectorEFConstruct: r.hnsw.EFConstruct,
			},
		},
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Put stores or replaces the entry for its document key.
func (r *Repo) Put(ctx context.Context, entry *report.Entry) error {
	key := keyPrefix + entry.Record.Identity.Key()
	if err := r.store.HSet(ctx, key, marshalEntry(entry)); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// Get returns the entry stored for the given document key.
func (r *Repo) Get(ctx context.Context, docKey string) (report.Entry, error) {
	fields, err := r.store.HGetAll(ctx, keyPrefix+docKey)
	if err != nil {
		return report.Entry{}, fmt.Errorf("hgetall %s: %w", docKey, err)
	}
	if len(fields) == 0 {
		return report.Entry{}, domain.ErrNotFound
	}
	return unmarshalEntry(fields)
}

// Touch updates only the last-seen timestamp of an existing entry.
func (r *Repo) Touch(ctx context.Context, docKey string, t time.Time) error {
	key := keyPrefix + docKey
	fields := map[string]string{"last_seen": formatTime(t)}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// List returns all stored entries.
func (r *Repo) List(ctx context.Context) ([]report.Entry, error) {
	keys, err := r.store.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	// FT index metadata shares the prefix namespace; skip non-hash keys defensively
	// by filtering the index name itself.
	docKeys := keys[:0]
	for _, k := range keys {
		if k != IndexName {
			docKeys = append(docKeys, k)
		}
	}

	maps, err := r.store.HGetAllMulti(ctx, docKeys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi: %w", err)
	}

	entries := make([]report.Entry, 0, len(maps))
	for i, m := range maps {
		if len(m) == 0 {
			continue
		}
		entry, err := unmarshalEntry(m)
		if err != nil {
			return nil, fmt.Errorf("parse entry %s: %w", docKeys[i], err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete removes an entry by document key.
func (r *Repo) Delete(ctx context.Context, docKey string) error {
	if err := r.store.Del(ctx, keyPrefix+docKey); err != nil {
		return fmt.Errorf("del %s: %w", docKey, err)
	}
	return nil
}

// TrimKey strips the storage prefix from a full Redis key.
func TrimKey(key string) string {
	return strings.TrimPrefix(key, keyPrefix)
}
