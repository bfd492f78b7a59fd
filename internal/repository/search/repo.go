// Package search provides retrieval over the report FT index: KNN
// similarity search and exact patient-identifier lookups.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/ishan121028/RadiologyAI/internal/db"
	"github.com/ishan121028/RadiologyAI/internal/domain/report"
	"github.com/ishan121028/RadiologyAI/internal/repository/document"
)

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// Repo implements usecase/index.Searcher.
type Repo struct {
	store store
}

// New creates a search repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// maxPatientResults bounds a patient lookup; one patient never has
// anywhere near this many studies in a single watch directory.
const maxPatientResults = 1000

// KNN performs a vector similarity search, optionally restricted to one
// patient, and hydrates the full entries for each hit.
func (r *Repo) KNN(ctx context.Context, vector []float32, k int, patientID string) ([]report.Scored, error) {
	q := &db.KNNQuery{
		IndexName: document.IndexName,
		Vector:    vector,
		K:         k,
	}
	if patientID != "" {
		q.Tags = append(q.Tags, db.TagFilter{Key: "patient_id", Value: patientID})
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}
	if sr == nil || len(sr.Entries) == 0 {
		return nil, nil
	}

	keys := make([]string, len(sr.Entries))
	for i, e := range sr.Entries {
		keys[i] = e.Key
	}

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hydrate hits: %w", err)
	}

	scored := make([]report.Scored, 0, len(maps))
	for i, m := range maps {
		if len(m) == 0 {
			continue // entry deleted between search and hydrate
		}
		entry, err := document.ParseFields(m)
		if err != nil {
			return nil, fmt.Errorf("parse hit %s: %w", keys[i], err)
		}
		scored = append(scored, report.Scored{Entry: entry, Score: sr.Entries[i].Score})
	}
	return scored, nil
}

// ByPatient returns all entries whose patient identifier matches exactly.
// An unknown patient yields an empty slice, not an error.
func (r *Repo) ByPatient(ctx context.Context, patientID string) ([]report.Entry, error) {
	query := fmt.Sprintf("@patient_id:{%s}", escapeTag(patientID))

	sr, err := r.store.SearchList(ctx, document.IndexName, query, 0, maxPatientResults, nil)
	if err != nil {
		return nil, fmt.Errorf("search patient: %w", err)
	}
	if sr == nil || len(sr.Entries) == 0 {
		return nil, nil
	}

	entries := make([]report.Entry, 0, len(sr.Entries))
	for _, hit := range sr.Entries {
		entry, err := document.ParseFields(hit.Fields)
		if err != nil {
			return nil, fmt.Errorf("parse hit %s: %w", hit.Key, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// tagEscaper escapes RediSearch TAG special characters in query values.
var tagEscaper = strings.NewReplacer(
	",", "\\,", ".", "\\.", "<", "\\<", ">", "\\>", "{", "\\{", "}", "\\}",
	"[", "\\[", "]", "\\]", "\"", "\\\"", "'", "\\'", ":", "\\:", ";", "\\;",
	"!", "\\!", "@", "\\@", "#", "\\#", "$", "\\$", "%", "\\%", "^", "\\^",
	"&", "\\&", "*", "\\*", "(", "\\(", ")", "\\)", "-", "\\-", "+", "\\+",
	"=", "\\=", "~", "\\~", "|", "\\|", "/", "\\/", " ", "\\ ",
)

func escapeTag(s string) string {
	return tagEscaper.Replace(s)
}
