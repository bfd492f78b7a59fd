// Package domain holds shared domain types and the interfaces of the
// external capabilities (embedding, text generation, document parsing)
// consumed by the pipeline.
package domain

import "context"

// KeyPrefix is the common storage key prefix.
const KeyPrefix = "radai:"

// EmbeddingResult is the output of an embedding call.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Embedder produces retrieval embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// Generator produces natural-language answers from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// HealthChecker is implemented by providers that can verify their own availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
