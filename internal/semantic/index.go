package semantic

import (
	"context"
	"fmt"

	"github.com/matsen/citegraph/internal/paper"
	"github.com/matsen/citegraph/internal/storage"
)

// NewIndex creates an empty index for vectors of the given dimension.
func NewIndex(dimensions int) *Index {
	return &Index{
		Dimensions: dimensions,
		papers:     make(map[string][]chunkVector),
	}
}

// Load builds an index from the stored chunk embeddings of a collection.
// Vectors of another dimension and all-zero fallback vectors are skipped.
func Load(ctx context.Context, tx *storage.Tx, collectionID string, dimensions int) (*Index, error) {
	vecs, err := tx.ListCollectionVectors(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("loading embeddings: %w", err)
	}

	idx := NewIndex(dimensions)
	for _, v := range vecs {
		if ok, _ := idx.Add(v.PaperID, v.Section, v.Vector); !ok {
			idx.skipped++
		}
	}
	return idx, nil
}

// Add indexes one chunk vector of a paper. It reports false without error
// for a zero vector, which marks a failed embedding.
func (idx *Index) Add(paperID, section string, vector []float32) (bool, error) {
	if len(vector) != idx.Dimensions {
		return false, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), idx.Dimensions)
	}
	if isZero(vector) {
		return false, nil
	}
	idx.papers[paperID] = append(idx.papers[paperID], chunkVector{section: section, vector: vector})
	return true, nil
}

// Len returns the number of papers with at least one usable vector.
func (idx *Index) Len() int {
	return len(idx.papers)
}

// Skipped returns how many stored vectors Load left out.
func (idx *Index) Skipped() int {
	return idx.skipped
}

// HasPaper checks if a paper is in the index.
func (idx *Index) HasPaper(paperID string) bool {
	_, exists := idx.papers[paperID]
	return exists
}

// PaperVectors returns one vector per indexed paper: its abstract chunk
// when it has one, otherwise the mean of its chunks.
func (idx *Index) PaperVectors() map[string][]float32 {
	out := make(map[string][]float32, len(idx.papers))
	for id, chunks := range idx.papers {
		out[id] = paperVector(chunks, idx.Dimensions)
	}
	return out
}

func paperVector(chunks []chunkVector, dims int) []float32 {
	for _, c := range chunks {
		if c.section == paper.SectionAbstract {
			return c.vector
		}
	}
	mean := make([]float32, dims)
	for _, c := range chunks {
		for i, f := range c.vector {
			mean[i] += f
		}
	}
	for i := range mean {
		mean[i] /= float32(len(chunks))
	}
	return mean
}

func isZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
