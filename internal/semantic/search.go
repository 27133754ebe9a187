package semantic

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/matsen/citegraph/internal/embedding"
)

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denominator := float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB)))
	if denominator == 0 {
		return 0
	}

	return dot / denominator
}

// Search ranks papers by the best similarity of any of their chunks to
// query. Results below threshold are dropped; limit 0 means no limit.
func (idx *Index) Search(query []float32, limit int, threshold float32) ([]SearchResult, error) {
	if limit < 0 {
		return nil, ErrNegativeLimit
	}
	if len(idx.papers) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != idx.Dimensions {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), idx.Dimensions)
	}

	results := make([]SearchResult, 0, len(idx.papers))
	for paperID, chunks := range idx.papers {
		best := bestMatch(chunks, [][]float32{query})
		if best.Similarity >= threshold {
			best.PaperID = paperID
			results = append(results, best)
		}
	}
	return rank(results, limit), nil
}

// FindSimilar ranks the other papers of the index by their best chunk-pair
// similarity to paperID. The source paper is excluded.
func (idx *Index) FindSimilar(paperID string, limit int) ([]SearchResult, error) {
	if limit < 0 {
		return nil, ErrNegativeLimit
	}
	source, exists := idx.papers[paperID]
	if !exists {
		return nil, ErrPaperNotIndexed
	}

	queries := make([][]float32, len(source))
	for i, c := range source {
		queries[i] = c.vector
	}

	results := make([]SearchResult, 0, len(idx.papers)-1)
	for id, chunks := range idx.papers {
		if id == paperID {
			continue
		}
		best := bestMatch(chunks, queries)
		best.PaperID = id
		results = append(results, best)
	}
	return rank(results, limit), nil
}

// SearchText embeds query with p and searches the index. A provider
// failure is returned, not replaced by a zero vector.
func (idx *Index) SearchText(ctx context.Context, p embedding.Provider, query string, limit int, threshold float32) ([]SearchResult, error) {
	e, err := p.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return idx.Search(e.Vector, limit, threshold)
}

func bestMatch(chunks []chunkVector, queries [][]float32) SearchResult {
	best := SearchResult{Similarity: -2}
	for _, c := range chunks {
		for _, q := range queries {
			if sim := CosineSimilarity(q, c.vector); sim > best.Similarity {
				best.Similarity = sim
				best.Section = c.section
			}
		}
	}
	return best
}

// rank sorts by similarity descending, ties by paper ID, and applies limit.
func rank(results []SearchResult, limit int) []SearchResult {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].PaperID < results[j].PaperID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
