// Package ingest adds papers to a collection from seed files, registry
// topic searches and local PDFs.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/matsen/citegraph/internal/crossref"
	"github.com/matsen/citegraph/internal/embedding"
	"github.com/matsen/citegraph/internal/graph"
	"github.com/matsen/citegraph/internal/paper"
	"github.com/matsen/citegraph/internal/pdf"
	"github.com/matsen/citegraph/internal/storage"
)

// DefaultMaxTopicPapers caps a single topic search.
const DefaultMaxTopicPapers = 30

// ErrEmptyQuery is returned for a blank topic query.
var ErrEmptyQuery = errors.New("topic query is empty")

// Result summarizes one ingestion call.
type Result struct {
	Created   int      `json:"created"`
	Existing  int      `json:"existing"`
	Citations int      `json:"citations"`
	Skipped   int      `json:"skipped,omitempty"`
	PaperIDs  []string `json:"paper_ids"`
}

func (r *Result) record(p *paper.Paper, created bool) {
	if created {
		r.Created++
	} else {
		r.Existing++
	}
	r.PaperIDs = append(r.PaperIDs, p.ID)
}

// Importer writes ingested papers through the same materialization path as
// graph expansion, one unit-of-work per call.
type Importer struct {
	db             *storage.DB
	registry       graph.Registry
	embedder       embedding.Provider
	maxTopicPapers int
	maxPDFPages    int
	logger         *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithMaxTopicPapers caps the number of works taken from one topic search.
func WithMaxTopicPapers(n int) Option {
	return func(i *Importer) {
		if n > 0 {
			i.maxTopicPapers = n
		}
	}
}

// WithMaxPDFPages sets how many leading pages of a PDF are scanned.
func WithMaxPDFPages(n int) Option {
	return func(i *Importer) {
		i.maxPDFPages = n
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(i *Importer) {
		i.logger = l
	}
}

// New creates an Importer.
func New(db *storage.DB, registry graph.Registry, embedder embedding.Provider, opts ...Option) *Importer {
	i := &Importer{
		db:             db,
		registry:       registry,
		embedder:       embedder,
		maxTopicPapers: DefaultMaxTopicPapers,
		maxPDFPages:    pdf.DefaultMaxPages,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Importer) materializer(tx *storage.Tx) *graph.Materializer {
	return graph.NewMaterializer(tx, i.embedder, graph.WithLogger(i.logger))
}

func requireCollection(ctx context.Context, tx *storage.Tx, collectionID string) error {
	c, err := tx.GetCollection(ctx, collectionID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: %s", storage.ErrCollectionNotFound, collectionID)
	}
	return nil
}

// ImportSeeds stores seed records in collectionID with provenance upload.
// Records are upserted on their identity, so re-importing a file only adds
// what is missing. Records without a title are skipped.
func (i *Importer) ImportSeeds(ctx context.Context, collectionID string, seeds []storage.SeedRecord) (Result, error) {
	var result Result
	err := i.db.Update(ctx, func(tx *storage.Tx) error {
		if err := requireCollection(ctx, tx, collectionID); err != nil {
			return err
		}
		m := i.materializer(tx)
		before, err := countCitations(ctx, tx, collectionID)
		if err != nil {
			return err
		}

		for n, rec := range seeds {
			p := rec.Paper
			p.ID = ""
			p.CollectionID = collectionID
			p.Provenance = paper.ProvenanceUpload
			if p.Source == "" {
				p.Source = paper.SourceUpload
			}
			if strings.TrimSpace(p.Title) == "" {
				i.logger.WarnContext(ctx, "skipping seed without title", "line", n+1, "doi", p.DOI)
				result.Skipped++
				continue
			}

			stored, created, err := m.Persist(ctx, &p, rec.Citations)
			if err != nil {
				return fmt.Errorf("importing seed %d: %w", n+1, err)
			}
			result.record(stored, created)
		}
		return result.countNewCitations(ctx, tx, collectionID, before)
	})
	return result, err
}

func countCitations(ctx context.Context, tx *storage.Tx, collectionID string) (int, error) {
	cites, err := tx.ListCollectionCitations(ctx, collectionID)
	if err != nil {
		return 0, err
	}
	return len(cites), nil
}

func (r *Result) countNewCitations(ctx context.Context, tx *storage.Tx, collectionID string, before int) error {
	after, err := countCitations(ctx, tx, collectionID)
	if err != nil {
		return err
	}
	r.Citations = after - before
	return nil
}

// IngestTopic searches the registry for query and materializes up to limit
// works with provenance topic-search. A limit <= 0 or above the configured
// cap is clamped to the cap.
func (i *Importer) IngestTopic(ctx context.Context, collectionID, query string, limit int) (Result, error) {
	var result Result
	query = strings.TrimSpace(query)
	if query == "" {
		return result, ErrEmptyQuery
	}
	if limit <= 0 || limit > i.maxTopicPapers {
		limit = i.maxTopicPapers
	}

	// Check the collection before spending a registry request.
	if err := i.db.View(ctx, func(tx *storage.Tx) error {
		return requireCollection(ctx, tx, collectionID)
	}); err != nil {
		return result, err
	}

	works, err := i.registry.SearchWorks(ctx, query, limit)
	if err != nil {
		return result, fmt.Errorf("searching registry for %q: %w", query, err)
	}
	if len(works) > limit {
		works = works[:limit]
	}

	err = i.db.Update(ctx, func(tx *storage.Tx) error {
		m := i.materializer(tx)
		before, err := countCitations(ctx, tx, collectionID)
		if err != nil {
			return err
		}

		for _, w := range works {
			stored, created, err := i.materializeWork(ctx, tx, m, w, collectionID, paper.ProvenanceTopicSearch)
			if err != nil {
				return err
			}
			if stored == nil {
				result.Skipped++
				continue
			}
			result.record(stored, created)
		}
		return result.countNewCitations(ctx, tx, collectionID, before)
	})
	return result, err
}

// materializeWork dedups a registry work against the collection by DOI,
// then by title and year, before materializing it. Works without a title
// return a nil paper.
func (i *Importer) materializeWork(ctx context.Context, tx *storage.Tx, m *graph.Materializer, w crossref.Work, collectionID string, provenance paper.Provenance) (*paper.Paper, bool, error) {
	if strings.TrimSpace(w.Title) == "" {
		return nil, false, nil
	}
	if paper.NormalizeDOI(w.DOI) == "" && w.Year != 0 {
		existing, err := tx.FindPaperByTitleYear(ctx, collectionID, w.Title, w.Year)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	return m.Materialize(ctx, w, collectionID, provenance)
}

// IngestPDF reads a local PDF and stores the paper it describes. When the
// DOI found in the document resolves in the registry, the registry record
// (with its references) is stored. Otherwise a minimal paper is built from
// the extracted title and abstract, falling back to the file name.
func (i *Importer) IngestPDF(ctx context.Context, collectionID, path string) (Result, error) {
	var result Result

	meta, err := pdf.Extract(path, i.maxPDFPages)
	if err != nil && !errors.Is(err, pdf.ErrNoText) {
		return result, fmt.Errorf("reading %s: %w", path, err)
	}
	if meta == nil {
		meta = &pdf.Metadata{}
	}

	var work *crossref.Work
	if meta.DOI != "" {
		work, err = i.registry.GetWorkByDOI(ctx, meta.DOI)
		if err != nil {
			i.logger.WarnContext(ctx, "DOI from PDF did not resolve", "path", path, "doi", meta.DOI, "error", err)
			work = nil
		}
	}

	err = i.db.Update(ctx, func(tx *storage.Tx) error {
		if err := requireCollection(ctx, tx, collectionID); err != nil {
			return err
		}
		m := i.materializer(tx)
		before, err := countCitations(ctx, tx, collectionID)
		if err != nil {
			return err
		}

		var (
			stored  *paper.Paper
			created bool
		)
		if work != nil {
			if work.DOI == "" {
				work.DOI = meta.DOI
			}
			if work.Abstract == "" {
				work.Abstract = meta.Abstract
			}
			stored, created, err = i.materializeWork(ctx, tx, m, *work, collectionID, paper.ProvenanceUpload)
		} else {
			stored, created, err = m.Persist(ctx, minimalPaper(collectionID, path, meta), nil)
		}
		if err != nil {
			return err
		}
		if stored == nil {
			result.Skipped++
			return nil
		}
		result.record(stored, created)
		return result.countNewCitations(ctx, tx, collectionID, before)
	})
	return result, err
}

func minimalPaper(collectionID, path string, meta *pdf.Metadata) *paper.Paper {
	title := meta.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &paper.Paper{
		CollectionID: collectionID,
		DOI:          meta.DOI,
		Title:        title,
		Abstract:     meta.Abstract,
		PDFPath:      path,
		Source:       paper.SourceUpload,
		Provenance:   paper.ProvenanceUpload,
	}
}
