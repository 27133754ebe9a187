package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/matsen/citegraph/internal/citation"
	"github.com/matsen/citegraph/internal/crossref"
	"github.com/matsen/citegraph/internal/embedding"
	"github.com/matsen/citegraph/internal/paper"
	"github.com/matsen/citegraph/internal/storage"
)

// Materializer persists registry records as papers together with their
// abstract chunk, its embedding and the record's reference stubs.
type Materializer struct {
	tx       *storage.Tx
	embedder embedding.Provider
	logger   *slog.Logger
}

// NewMaterializer builds a Materializer outside of an Engine, e.g. for
// ingestion.
func NewMaterializer(tx *storage.Tx, embedder embedding.Provider, opts ...Option) *Materializer {
	s := newSettings(opts)
	return &Materializer{tx: tx, embedder: embedder, logger: s.logger}
}

// Materialize returns the paper for work in collectionID, creating it with
// the given provenance if the collection does not hold it yet. It is
// idempotent: a paper that already exists under the work's DOI (or, for
// DOI-less works, its title and year) is returned unchanged with
// created=false.
func (m *Materializer) Materialize(ctx context.Context, work crossref.Work, collectionID string, provenance paper.Provenance) (*paper.Paper, bool, error) {
	if doi := paper.NormalizeDOI(work.DOI); doi != "" {
		existing, err := m.tx.FindPaperByDOI(ctx, collectionID, doi)
		if err != nil {
			return nil, false, fmt.Errorf("re-checking DOI %s: %w", doi, err)
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	p := &paper.Paper{
		CollectionID: collectionID,
		DOI:          work.DOI,
		Title:        work.Title,
		Abstract:     work.Abstract,
		Year:         work.Year,
		Venue:        work.Venue,
		URL:          work.URL,
		Authors:      work.Authors,
		Source:       paper.SourceCrossref,
		Provenance:   provenance,
	}
	return m.Persist(ctx, p, work.References)
}

// Persist creates p (an upsert on its identity) with its abstract chunk,
// embedding and reference stubs as unresolved citations. When p already
// exists the stored record is returned unchanged.
func (m *Materializer) Persist(ctx context.Context, p *paper.Paper, references []citation.Stub) (*paper.Paper, bool, error) {
	stored, created, err := m.tx.CreatePaper(ctx, p)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return stored, false, nil
	}

	papersMaterialized.WithLabelValues(string(stored.Provenance)).Inc()
	m.logger.DebugContext(ctx, "materialized paper",
		"paper_id", stored.ID, "doi", stored.DOI, "title", stored.Title, "provenance", stored.Provenance)

	if err := m.embedAbstract(ctx, stored); err != nil {
		return nil, false, err
	}
	if _, err := m.AddCitations(ctx, stored.ID, references); err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// AddCitations records stubs as unresolved citations of sourceID and
// returns how many were new. Invalid stubs and self-references are skipped.
func (m *Materializer) AddCitations(ctx context.Context, sourceID string, stubs []citation.Stub) (int, error) {
	added := 0
	for _, stub := range stubs {
		c := citation.FromStub(sourceID, stub)
		if err := c.ValidateForCreate(); err != nil {
			continue
		}
		_, created, err := m.tx.CreateCitation(ctx, &c)
		if err != nil {
			return added, fmt.Errorf("recording citation of %s: %w", sourceID, err)
		}
		if created {
			added++
		}
	}
	return added, nil
}

// embedAbstract stores the single abstract chunk (section "abstract",
// ordinal 0) and its embedding. Embedding failure stores a zero vector.
func (m *Materializer) embedAbstract(ctx context.Context, p *paper.Paper) error {
	text := strings.TrimSpace(p.Abstract)
	if text == "" {
		return nil
	}

	vector, fallback := embedding.EmbedOrZero(ctx, m.embedder, text)
	if fallback {
		embeddingFallbacks.Inc()
	}

	chunk := &paper.Chunk{PaperID: p.ID, Section: paper.SectionAbstract, Ord: 0, Text: text}
	if _, _, err := m.tx.CreateChunk(ctx, chunk, m.embedder.ModelName(), vector); err != nil {
		return fmt.Errorf("storing abstract chunk of %s: %w", p.ID, err)
	}
	return nil
}
