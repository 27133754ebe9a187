package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/matsen/citegraph/internal/citation"
	"github.com/matsen/citegraph/internal/crossref"
	"github.com/matsen/citegraph/internal/paper"
	"github.com/matsen/citegraph/internal/storage"
)

// Resolution is the outcome of resolving a stub. At most one of Paper
// (already in the collection) and Work (registry record still to be
// materialized) is set; neither means unresolved.
type Resolution struct {
	Paper *paper.Paper
	Work  *crossref.Work
}

// Resolved reports whether the stub was linked to a paper or a record.
func (r Resolution) Resolved() bool {
	return r.Paper != nil || r.Work != nil
}

// IdentityResolver maps a citation stub to a paper in the collection or to
// a registry record. Local lookups come first; the registry is only asked
// when the collection has no match.
type IdentityResolver struct {
	tx               *storage.Tx
	registry         Registry
	searchCandidates int
	logger           *slog.Logger
}

// Resolve runs the lookup chain for stub within collectionID:
// local DOI, local title+year, registry DOI, registry search.
// Registry failures are logged and treated as not found; only storage
// errors are returned.
func (r *IdentityResolver) Resolve(ctx context.Context, stub citation.Stub, collectionID string) (Resolution, error) {
	stub = stub.Normalize()

	if stub.HasDOI() {
		p, err := r.tx.FindPaperByDOI(ctx, collectionID, stub.DOI)
		if err != nil {
			return Resolution{}, fmt.Errorf("looking up DOI %s: %w", stub.DOI, err)
		}
		registryLookups.WithLabelValues(lookupLocalDOI, hitOrMiss(p != nil)).Inc()
		if p != nil {
			return Resolution{Paper: p}, nil
		}
	}

	if stub.HasTitleYear() {
		p, err := r.tx.FindPaperByTitleYear(ctx, collectionID, stub.Title, stub.Year)
		if err != nil {
			return Resolution{}, fmt.Errorf("looking up title %q (%d): %w", stub.Title, stub.Year, err)
		}
		registryLookups.WithLabelValues(lookupLocalTitle, hitOrMiss(p != nil)).Inc()
		if p != nil {
			return Resolution{Paper: p}, nil
		}
	}

	if stub.HasDOI() {
		if w := r.lookupDOI(ctx, stub.DOI); w != nil {
			return Resolution{Work: w}, nil
		}
	}

	if stub.HasTitleYear() {
		if w := r.search(ctx, stub.Title, stub.Year); w != nil {
			return Resolution{Work: w}, nil
		}
	}

	return Resolution{}, nil
}

func (r *IdentityResolver) lookupDOI(ctx context.Context, doi string) *crossref.Work {
	w, err := r.registry.GetWorkByDOI(ctx, doi)
	if err != nil {
		if crossref.IsNotFound(err) {
			registryLookups.WithLabelValues(lookupDOI, outcomeMiss).Inc()
		} else {
			registryLookups.WithLabelValues(lookupDOI, outcomeError).Inc()
			r.logger.WarnContext(ctx, "registry DOI lookup failed", "doi", doi, "error", err)
		}
		return nil
	}
	if w == nil || w.Title == "" {
		registryLookups.WithLabelValues(lookupDOI, outcomeMiss).Inc()
		return nil
	}

	registryLookups.WithLabelValues(lookupDOI, outcomeHit).Inc()
	if w.DOI == "" {
		w.DOI = doi
	}
	return w
}

// search queries the registry with "{title} {year}" and returns the first
// candidate whose title matches case-insensitively and whose year is equal.
func (r *IdentityResolver) search(ctx context.Context, title string, year int) *crossref.Work {
	query := fmt.Sprintf("%s %d", title, year)
	works, err := r.registry.SearchWorks(ctx, query, r.searchCandidates)
	if err != nil {
		registryLookups.WithLabelValues(lookupSearch, outcomeError).Inc()
		r.logger.WarnContext(ctx, "registry search failed", "query", query, "error", err)
		return nil
	}

	for i := range works {
		if i == r.searchCandidates {
			break
		}
		if works[i].Year == year && paper.TitlesEqual(works[i].Title, title) {
			registryLookups.WithLabelValues(lookupSearch, outcomeHit).Inc()
			w := works[i]
			return &w
		}
	}
	registryLookups.WithLabelValues(lookupSearch, outcomeMiss).Inc()
	return nil
}

func hitOrMiss(hit bool) string {
	if hit {
		return outcomeHit
	}
	return outcomeMiss
}
