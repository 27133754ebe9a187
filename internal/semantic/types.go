// Package semantic ranks collection papers by embedding similarity.
package semantic

import "errors"

var (
	// ErrEmptyIndex is returned when searching an index with no vectors.
	ErrEmptyIndex = errors.New("no embeddings indexed for this collection")
	// ErrNegativeLimit is returned for a limit below zero.
	ErrNegativeLimit = errors.New("limit must not be negative")
	// ErrPaperNotIndexed is returned when a paper has no usable embedding.
	ErrPaperNotIndexed = errors.New("paper has no embedding")
	// ErrDimensionMismatch is returned when a vector has the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// SearchResult represents a paper found by semantic search.
type SearchResult struct {
	PaperID    string  `json:"id"`
	Section    string  `json:"section"` // section of the best-matching chunk
	Similarity float32 `json:"similarity"`
}

type chunkVector struct {
	section string
	vector  []float32
}

// Index holds the chunk vectors of one collection grouped by paper.
type Index struct {
	Dimensions int
	papers     map[string][]chunkVector
	skipped    int
}
