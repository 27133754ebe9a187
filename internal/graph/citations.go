package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/matsen/citegraph/internal/paper"
	"github.com/matsen/citegraph/internal/storage"
)

// CitationResult summarizes the processing of one paper's citations.
type CitationResult struct {
	// Resolved counts citations that moved from unresolved to resolved.
	Resolved int
	// Materialized counts papers created for this paper's citations.
	Materialized int
	// Discovered lists distinct destinations not yet visited in the run,
	// in citation order.
	Discovered []*paper.Paper
}

// CitationResolver links a paper's pending citation stubs to papers.
type CitationResolver struct {
	tx           *storage.Tx
	identity     *IdentityResolver
	materializer *Materializer
	logger       *slog.Logger
}

// ProcessCitations resolves every pending citation of p. Citations that
// are already resolved are skipped, and a citation that cannot be resolved
// stays pending for a later run without affecting the others. Storage
// errors abort.
func (c *CitationResolver) ProcessCitations(ctx context.Context, run *Run, p *paper.Paper) (CitationResult, error) {
	var result CitationResult

	citations, err := c.tx.ListCitations(ctx, p.ID)
	if err != nil {
		return result, fmt.Errorf("listing citations of %s: %w", p.ID, err)
	}

	seen := make(map[string]bool)
	for _, cit := range citations {
		if cit.IsResolved() {
			continue
		}

		res, err := c.identity.Resolve(ctx, cit.Stub(), p.CollectionID)
		if err != nil {
			return result, err
		}
		if !res.Resolved() {
			c.logger.DebugContext(ctx, "citation unresolved",
				"citation_id", cit.ID, "doi", cit.DstDOI, "title", cit.DstTitle, "year", cit.DstYear)
			continue
		}

		dst := res.Paper
		if dst == nil {
			var created bool
			dst, created, err = c.materializer.Materialize(ctx, *res.Work, p.CollectionID, paper.ProvenanceGraphDiscovery)
			if err != nil {
				return result, fmt.Errorf("materializing citation %s: %w", cit.ID, err)
			}
			if created {
				result.Materialized++
			}
		}

		if dst.ID == p.ID {
			c.logger.DebugContext(ctx, "skipping self-citation", "paper_id", p.ID, "citation_id", cit.ID)
			continue
		}

		changed, err := c.tx.ResolveCitation(ctx, cit.ID, dst.ID)
		if err != nil {
			return result, err
		}
		if changed {
			result.Resolved++
			citationsResolved.Inc()
		}

		if !seen[dst.ID] && !run.Visited(dst.ID) {
			seen[dst.ID] = true
			result.Discovered = append(result.Discovered, dst)
		}
	}

	return result, nil
}
