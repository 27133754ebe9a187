package storage

import (
	"context"
	"fmt"
	"strings"
)

// Issue types reported by CheckCollection.
const (
	IssueDuplicatePaper      = "duplicate_paper"
	IssueDuplicateCitation   = "duplicate_citation"
	IssueCrossCollectionEdge = "cross_collection_citation"
	IssueMissingEmbedding    = "missing_embedding"
	IssueDimensionMismatch   = "dimension_mismatch"
)

// Issue is one integrity problem found in a collection.
type Issue struct {
	Type   string   `json:"type"`
	IDs    []string `json:"ids"`
	Detail string   `json:"detail,omitempty"`
}

// CheckCollection looks for rows the identity rules should have prevented
// or that later processing cannot use: papers sharing a title and year,
// citations of one source that reach the same paper twice, resolutions
// that leave the collection, and chunks whose embedding is missing or has
// a dimension other than dims. dims <= 0 skips the dimension check.
func (t *Tx) CheckCollection(ctx context.Context, collectionID string, dims int) ([]Issue, error) {
	var issues []Issue

	checks := []integrityCheck{
		{
			kind: IssueDuplicatePaper,
			query: `SELECT group_concat(id, ','), title_norm || ' (' || year || ')'
				FROM papers
				WHERE collection_id = ? AND year IS NOT NULL
				GROUP BY title_norm, year HAVING count(*) > 1`,
			args:   []any{collectionID},
			detail: func(extra string) string { return "same title and year: " + extra },
		},
		{
			kind: IssueDuplicateCitation,
			query: `SELECT group_concat(c.id, ','), c.src_paper_id || ' -> ' || c.resolved_paper_id
				FROM citations c JOIN papers p ON p.id = c.src_paper_id
				WHERE p.collection_id = ? AND c.resolved_paper_id IS NOT NULL
				GROUP BY c.src_paper_id, c.resolved_paper_id HAVING count(*) > 1`,
			args:   []any{collectionID},
			detail: func(extra string) string { return "same edge recorded twice: " + extra },
		},
		{
			kind: IssueCrossCollectionEdge,
			query: `SELECT c.id, d.collection_id
				FROM citations c
				JOIN papers p ON p.id = c.src_paper_id
				JOIN papers d ON d.id = c.resolved_paper_id
				WHERE p.collection_id = ? AND d.collection_id != p.collection_id`,
			args:   []any{collectionID},
			detail: func(extra string) string { return "resolved into collection " + extra },
		},
		{
			kind: IssueMissingEmbedding,
			query: `SELECT ch.id, ch.paper_id
				FROM chunks ch
				JOIN papers p ON p.id = ch.paper_id
				LEFT JOIN chunk_embeddings e ON e.chunk_id = ch.id
				WHERE p.collection_id = ? AND e.chunk_id IS NULL`,
			args:   []any{collectionID},
			detail: func(extra string) string { return "chunk of paper " + extra + " has no embedding" },
		},
	}
	if dims > 0 {
		checks = append(checks, integrityCheck{
			kind: IssueDimensionMismatch,
			query: `SELECT ch.id, e.dimensions
				FROM chunks ch
				JOIN papers p ON p.id = ch.paper_id
				JOIN chunk_embeddings e ON e.chunk_id = ch.id
				WHERE p.collection_id = ? AND e.dimensions != ?`,
			args:   []any{collectionID, dims},
			detail: func(extra string) string { return fmt.Sprintf("%s dimensions, want %d", extra, dims) },
		})
	}

	for _, c := range checks {
		found, err := t.queryIssues(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", c.kind, err)
		}
		issues = append(issues, found...)
	}
	return issues, nil
}

// integrityCheck is a query whose rows are (comma-separated ids, extra).
type integrityCheck struct {
	kind   string
	query  string
	args   []any
	detail func(extra string) string
}

func (t *Tx) queryIssues(ctx context.Context, c integrityCheck) ([]Issue, error) {
	rows, err := t.tx.QueryContext(ctx, c.query, c.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []Issue
	for rows.Next() {
		var ids, extra string
		if err := rows.Scan(&ids, &extra); err != nil {
			return nil, err
		}
		issues = append(issues, Issue{Type: c.kind, IDs: strings.Split(ids, ","), Detail: c.detail(extra)})
	}
	return issues, rows.Err()
}
