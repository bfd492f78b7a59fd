package index

import (
	"context"
	"time"

	"github.com/ishan121028/RadiologyAI/internal/domain"
	"github.com/ishan121028/RadiologyAI/internal/domain/report"
)

// Repository defines the storage contract for index entries.
type Repository interface {
	Put(ctx context.Context, entry *report.Entry) error
	Get(ctx context.Context, docKey string) (report.Entry, error)
	Touch(ctx context.Context, docKey string, t time.Time) error
	List(ctx context.Context) ([]report.Entry, error)
}

// Searcher defines the retrieval contract over the index.
type Searcher interface {
	KNN(ctx context.Context, vector []float32, k int, patientID string) ([]report.Scored, error)
	ByPatient(ctx context.Context, patientID string) ([]report.Entry, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
