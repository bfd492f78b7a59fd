package domain

import "errors"

var (
	// ErrNotFound signals a missing index entry.
	ErrNotFound = errors.New("not found")
	// ErrNotIndexable signals a record with neither findings nor raw text.
	ErrNotIndexable = errors.New("record has no indexable text")
	// ErrInvalidSeverity signals an unknown severity name.
	ErrInvalidSeverity = errors.New("invalid severity")
	// ErrStaleRecord signals an upsert older than the indexed state for the same document.
	ErrStaleRecord = errors.New("stale record")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationProviderError signals a text-generation provider failure.
	ErrGenerationProviderError = errors.New("generation provider error")
	// ErrParsingProviderError signals a document parsing provider failure.
	ErrParsingProviderError = errors.New("parsing provider error")
)
