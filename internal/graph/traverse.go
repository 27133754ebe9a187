package graph

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/matsen/citegraph/internal/paper"
)

// Traverser walks the citation graph from a seed set.
type Traverser struct {
	citations *CitationResolver
	logger    *slog.Logger

	// OnExpand, if set, is called after each node is expanded.
	OnExpand func(Stats)
}

// Traverse expands seeds (depth 0) and the papers their citations resolve
// to, in breadth-first or depth-first order. A node is expanded at most
// once and never at depth >= maxDepth. DepthReached is the largest depth
// at which a node was put on the frontier.
//
// The context is checked between nodes; on cancellation the stats so far
// are returned with ctx.Err().
func (t *Traverser) Traverse(ctx context.Context, seeds []paper.Paper, maxDepth int, mode Mode) (Stats, error) {
	ctx, span := tracer.Start(ctx, "graph.Traverse", trace.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.Int("max_depth", maxDepth),
		attribute.Int("seeds", len(seeds)),
	))
	defer span.End()

	run := NewRun(mode, maxDepth)
	var stats Stats

	initial := make([]node, len(seeds))
	for i := range seeds {
		initial[i] = node{paper: &seeds[i], depth: 0}
	}
	run.frontier.push(initial...)

	for run.frontier.len() > 0 {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			return stats, err
		}

		n, _ := run.frontier.pop()
		if n.depth >= maxDepth || run.Visited(n.paper.ID) {
			continue
		}
		run.markVisited(n.paper.ID)
		stats.NodesProcessed++
		nodesProcessed.Inc()

		result, err := t.citations.ProcessCitations(ctx, run, n.paper)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return stats, err
		}
		stats.EdgesCreated += result.Resolved
		stats.PapersAdded += result.Materialized

		children := make([]node, 0, len(result.Discovered))
		for _, d := range result.Discovered {
			if run.Visited(d.ID) {
				continue
			}
			children = append(children, node{paper: d, depth: n.depth + 1})
		}
		if len(children) > 0 {
			run.frontier.push(children...)
			stats.DepthReached = max(stats.DepthReached, n.depth+1)
		}

		t.logger.DebugContext(ctx, "expanded paper",
			"paper_id", n.paper.ID, "depth", n.depth,
			"resolved", result.Resolved, "discovered", len(children))
		if t.OnExpand != nil {
			t.OnExpand(stats)
		}
	}

	span.SetAttributes(
		attribute.Int("nodes_processed", stats.NodesProcessed),
		attribute.Int("edges_created", stats.EdgesCreated),
		attribute.Int("papers_added", stats.PapersAdded),
		attribute.Int("depth_reached", stats.DepthReached),
	)
	return stats, nil
}
