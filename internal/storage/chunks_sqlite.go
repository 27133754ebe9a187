package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/matsen/citegraph/internal/paper"
)

// StoredEmbedding is a chunk's persisted embedding vector.
type StoredEmbedding struct {
	ChunkID   string
	ModelName string
	Vector    []float32
}

// CreateChunk persists a chunk together with its embedding. A paper holds at
// most one chunk per (section, ord); if one already exists it is returned
// unchanged with created=false and the embedding is not rewritten.
func (t *Tx) CreateChunk(ctx context.Context, c *paper.Chunk, modelName string, vector []float32) (*paper.Chunk, bool, error) {
	candidate := *c
	if candidate.ID == "" {
		candidate.ID = uuid.NewString()
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO chunks (id, paper_id, section, ord, text)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, candidate.ID, candidate.PaperID, candidate.Section, candidate.Ord, candidate.Text)
	if err != nil {
		return nil, false, fmt.Errorf("inserting chunk: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := t.getChunk(ctx, candidate.PaperID, candidate.Section, candidate.Ord)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO chunk_embeddings (chunk_id, model_name, dimensions, vector)
		VALUES (?, ?, ?, ?)
	`, candidate.ID, modelName, len(vector), encodeVector(vector))
	if err != nil {
		return nil, false, fmt.Errorf("inserting embedding for chunk %s: %w", candidate.ID, err)
	}
	return &candidate, true, nil
}

func (t *Tx) getChunk(ctx context.Context, paperID, section string, ord int) (*paper.Chunk, error) {
	var c paper.Chunk
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, paper_id, section, ord, text FROM chunks
		WHERE paper_id = ? AND section = ? AND ord = ?
	`, paperID, section, ord).Scan(&c.ID, &c.PaperID, &c.Section, &c.Ord, &c.Text)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListChunks returns the chunks of a paper ordered by section and ordinal.
func (t *Tx) ListChunks(ctx context.Context, paperID string) ([]paper.Chunk, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, paper_id, section, ord, text FROM chunks
		WHERE paper_id = ? ORDER BY section, ord
	`, paperID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	var chunks []paper.Chunk
	for rows.Next() {
		var c paper.Chunk
		if err := rows.Scan(&c.ID, &c.PaperID, &c.Section, &c.Ord, &c.Text); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetEmbedding returns the embedding of a chunk. Returns nil, nil if the
// chunk has none.
func (t *Tx) GetEmbedding(ctx context.Context, chunkID string) (*StoredEmbedding, error) {
	var e StoredEmbedding
	var dims int
	var blob []byte
	err := t.tx.QueryRowContext(ctx, `
		SELECT chunk_id, model_name, dimensions, vector FROM chunk_embeddings WHERE chunk_id = ?
	`, chunkID).Scan(&e.ChunkID, &e.ModelName, &dims, &blob)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	e.Vector, err = decodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding embedding for chunk %s: %w", chunkID, err)
	}
	if len(e.Vector) != dims {
		return nil, fmt.Errorf("embedding for chunk %s has %d values, header says %d", chunkID, len(e.Vector), dims)
	}
	return &e, nil
}

// ChunkVector is one stored chunk embedding with the paper it belongs to.
type ChunkVector struct {
	PaperID   string
	Section   string
	ModelName string
	Vector    []float32
}

// ListCollectionVectors returns every chunk embedding of a collection,
// ordered by paper.
func (t *Tx) ListCollectionVectors(ctx context.Context, collectionID string) ([]ChunkVector, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT c.paper_id, c.section, e.model_name, e.vector
		FROM chunks c
		JOIN chunk_embeddings e ON e.chunk_id = c.id
		JOIN papers p ON p.id = c.paper_id
		WHERE p.collection_id = ?
		ORDER BY c.paper_id, c.section, c.ord
	`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("listing vectors: %w", err)
	}
	defer rows.Close()

	var out []ChunkVector
	for rows.Next() {
		var v ChunkVector
		var blob []byte
		if err := rows.Scan(&v.PaperID, &v.Section, &v.ModelName, &blob); err != nil {
			return nil, err
		}
		if v.Vector, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("decoding vector of paper %s: %w", v.PaperID, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountChunks returns the number of chunks across a collection.
func (t *Tx) CountChunks(ctx context.Context, collectionID string) (int, error) {
	var count int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chunks c JOIN papers p ON p.id = c.paper_id
		WHERE p.collection_id = ?
	`, collectionID).Scan(&count)
	return count, err
}

// encodeVector packs float32 values as little-endian IEEE 754.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
