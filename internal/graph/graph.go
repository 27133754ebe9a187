// Package graph expands a collection's citation graph: it resolves
// citation stubs to papers, materializes newly discovered papers and walks
// the resulting graph breadth- or depth-first up to a depth ceiling.
//
// All components operate on one storage.Tx. Nothing is visible to other
// runs until the caller commits it.
package graph

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/matsen/citegraph/internal/crossref"
	"github.com/matsen/citegraph/internal/embedding"
	"github.com/matsen/citegraph/internal/storage"
)

var tracer = otel.Tracer("github.com/matsen/citegraph/internal/graph")

// Registry is the external bibliographic registry.
type Registry interface {
	SearchWorks(ctx context.Context, query string, limit int) ([]crossref.Work, error)
	GetWorkByDOI(ctx context.Context, doi string) (*crossref.Work, error)
}

// DefaultSearchCandidates is how many search results are scanned for an
// exact title and year match.
const DefaultSearchCandidates = 5

type settings struct {
	logger           *slog.Logger
	searchCandidates int
}

// Option configures the engine components.
type Option func(*settings)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithSearchCandidates sets how many registry search results are scanned
// when resolving a stub by title and year.
func WithSearchCandidates(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.searchCandidates = n
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{logger: slog.Default(), searchCandidates: DefaultSearchCandidates}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Engine wires the resolution components to one unit-of-work.
type Engine struct {
	Identity     *IdentityResolver
	Materializer *Materializer
	Citations    *CitationResolver
	Traverser    *Traverser
}

// New builds an Engine over tx.
func New(tx *storage.Tx, registry Registry, embedder embedding.Provider, opts ...Option) *Engine {
	s := newSettings(opts)
	identity := &IdentityResolver{tx: tx, registry: registry, searchCandidates: s.searchCandidates, logger: s.logger}
	materializer := &Materializer{tx: tx, embedder: embedder, logger: s.logger}
	citations := &CitationResolver{tx: tx, identity: identity, materializer: materializer, logger: s.logger}
	return &Engine{
		Identity:     identity,
		Materializer: materializer,
		Citations:    citations,
		Traverser:    &Traverser{citations: citations, logger: s.logger},
	}
}
