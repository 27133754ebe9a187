// Package analysis finds research gaps in a collection. Papers are
// clustered by their stored embeddings, four collection metrics are
// derived from the clusters and paper metadata, and fixed thresholds on
// those metrics produce scored insights.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/matsen/citegraph/internal/semantic"
	"github.com/matsen/citegraph/internal/storage"
)

var tracer = otel.Tracer("github.com/matsen/citegraph/internal/analysis")

// MinPapers is the fewest embedded papers worth clustering.
const MinPapers = 3

// ErrEmptyCollection is returned for a collection without papers.
var ErrEmptyCollection = errors.New("collection has no papers to analyze")

// Report is the outcome of one gap analysis.
type Report struct {
	CollectionID string `json:"collection_id"`
	// PapersAnalyzed counts papers with a usable embedding.
	PapersAnalyzed int       `json:"papers_analyzed"`
	Metrics        Metrics   `json:"metrics"`
	Clusters       []Cluster `json:"clusters,omitempty"`
	Insights       []Insight `json:"insights"`
}

// Analyzer runs gap analyses over one unit-of-work.
type Analyzer struct {
	tx         *storage.Tx
	dimensions int
	logger     *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// New creates an Analyzer reading embeddings of the given dimension.
func New(tx *storage.Tx, dimensions int, opts ...Option) *Analyzer {
	a := &Analyzer{tx: tx, dimensions: dimensions, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze computes the gap report of a collection without storing it.
// With fewer than MinPapers embedded papers the report has no insights.
func (a *Analyzer) Analyze(ctx context.Context, collectionID string) (*Report, error) {
	ctx, span := tracer.Start(ctx, "analysis.Analyze", trace.WithAttributes(
		attribute.String("collection_id", collectionID),
	))
	defer span.End()

	coll, err := a.tx.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if coll == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrCollectionNotFound, collectionID)
	}
	papers, err := a.tx.ListPapers(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCollection, collectionID)
	}

	idx, err := semantic.Load(ctx, a.tx, collectionID, a.dimensions)
	if err != nil {
		return nil, err
	}
	vectors := idx.PaperVectors()

	// Cluster in collection order so the result does not depend on map order.
	var (
		ids    []string
		points [][]float32
	)
	for _, p := range papers {
		if v, ok := vectors[p.ID]; ok {
			ids = append(ids, p.ID)
			points = append(points, v)
		}
	}

	report := &Report{CollectionID: collectionID, PapersAnalyzed: len(ids), Insights: []Insight{}}
	span.SetAttributes(attribute.Int("papers", len(papers)), attribute.Int("embedded", len(ids)))
	if len(ids) < MinPapers {
		a.logger.InfoContext(ctx, "too few embedded papers for gap analysis",
			"collection_id", collectionID, "embedded", len(ids), "min", MinPapers)
		return report, nil
	}

	report.Clusters = kmeans(ids, points, clusterCount(len(ids)))
	report.Metrics = computeMetrics(papers, report.Clusters, vectors)
	report.Insights = buildInsights(report.Metrics)

	a.logger.InfoContext(ctx, "gap analysis complete",
		"collection_id", collectionID, "papers", len(papers), "embedded", len(ids),
		"clusters", len(report.Clusters), "insights", len(report.Insights))
	return report, nil
}

// Run analyzes a collection and replaces its stored insights with the
// new ones.
func (a *Analyzer) Run(ctx context.Context, collectionID string) (*Report, error) {
	report, err := a.Analyze(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	rows := make([]storage.GapInsight, 0, len(report.Insights))
	for _, in := range report.Insights {
		evidence, err := json.Marshal(in.Evidence)
		if err != nil {
			return nil, fmt.Errorf("marshaling evidence: %w", err)
		}
		rows = append(rows, storage.GapInsight{Insight: in.Text, Score: in.Score, Evidence: evidence})
	}
	if err := a.tx.ReplaceGapInsights(ctx, collectionID, rows); err != nil {
		return nil, err
	}
	return report, nil
}
