package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matsen/citegraph/internal/citation"
	"github.com/matsen/citegraph/internal/paper"
)

const selectCitationFields = `id, src_paper_id, dst_doi, dst_title, dst_year, resolved_paper_id`

// CreateCitation persists an unresolved citation stub unless the source
// already has a stub for the same destination. DOI-bearing stubs are unique
// per (source, DOI); DOI-less stubs are unique per (source, title, year).
// Returns the stored row and whether this call created it.
func (t *Tx) CreateCitation(ctx context.Context, c *citation.Citation) (*citation.Citation, bool, error) {
	candidate := citation.FromStub(c.SourceID, c.Stub())
	candidate.ID = c.ID
	candidate.ResolvedPaperID = c.ResolvedPaperID
	if err := candidate.ValidateForCreate(); err != nil {
		return nil, false, fmt.Errorf("invalid citation: %w", err)
	}
	if candidate.ID == "" {
		candidate.ID = uuid.NewString()
	}

	if candidate.DstDOI == "" {
		existing, err := t.findTitleStub(ctx, candidate.SourceID, candidate.DstTitle, candidate.DstYear)
		if err != nil || existing != nil {
			return existing, false, err
		}
	}

	now := formatTime(time.Now())
	var resolvedAt sql.NullString
	if candidate.IsResolved() {
		resolvedAt = nullableStringValue(now)
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO citations (
			id, src_paper_id, dst_doi, dst_title, dst_year, resolved_paper_id, created_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		candidate.ID, candidate.SourceID, nullableStringValue(candidate.DstDOI),
		nullableStringValue(candidate.DstTitle), nullableIntValue(candidate.DstYear),
		nullableStringValue(candidate.ResolvedPaperID), now, resolvedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting citation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		row := t.tx.QueryRowContext(ctx, `SELECT `+selectCitationFields+` FROM citations
			WHERE src_paper_id = ? AND dst_doi = ?`, candidate.SourceID, candidate.DstDOI)
		existing, err := scanCitation(row)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("inserting citation %s: conflicting row not found", candidate.ID)
		}
		return existing, false, nil
	}
	return &candidate, true, nil
}

func (t *Tx) findTitleStub(ctx context.Context, sourceID, title string, year int) (*citation.Citation, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+selectCitationFields+` FROM citations
		WHERE src_paper_id = ? AND dst_doi IS NULL AND lower(trim(dst_title)) = ? AND dst_year IS ?
		ORDER BY rowid LIMIT 1`, sourceID, paper.NormalizeTitle(title), nullableIntValue(year))
	return scanCitation(row)
}

// GetCitation retrieves a citation by ID. Returns nil, nil if not found.
func (t *Tx) GetCitation(ctx context.Context, id string) (*citation.Citation, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+selectCitationFields+` FROM citations WHERE id = ?`, id)
	return scanCitation(row)
}

// ListCitations returns the outgoing citations of a paper in insertion order.
func (t *Tx) ListCitations(ctx context.Context, sourceID string) ([]citation.Citation, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+selectCitationFields+` FROM citations
		WHERE src_paper_id = ? ORDER BY rowid`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("querying citations by source: %w", err)
	}
	defer rows.Close()

	return scanCitations(rows)
}

// ListCollectionCitations returns all citations whose source paper belongs
// to the collection.
func (t *Tx) ListCollectionCitations(ctx context.Context, collectionID string) ([]citation.Citation, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT c.id, c.src_paper_id, c.dst_doi, c.dst_title, c.dst_year, c.resolved_paper_id
		FROM citations c JOIN papers p ON p.id = c.src_paper_id
		WHERE p.collection_id = ?
		ORDER BY c.rowid
	`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("querying citations by collection: %w", err)
	}
	defer rows.Close()

	return scanCitations(rows)
}

// ResolveCitation links an unresolved citation to a destination paper.
// Resolution is monotonic: an already-resolved citation is left unchanged
// and false is returned.
func (t *Tx) ResolveCitation(ctx context.Context, citationID, paperID string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE citations SET resolved_paper_id = ?, resolved_at = ?
		WHERE id = ? AND resolved_paper_id IS NULL
	`, paperID, formatTime(time.Now()), citationID)
	if err != nil {
		return false, fmt.Errorf("resolving citation %s: %w", citationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanCitation(s scanner) (*citation.Citation, error) {
	var c citation.Citation
	var doi, title, resolved sql.NullString
	var year sql.NullInt64

	if err := s.Scan(&c.ID, &c.SourceID, &doi, &title, &year, &resolved); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	c.DstDOI = doi.String
	c.DstTitle = title.String
	c.ResolvedPaperID = resolved.String
	if year.Valid {
		c.DstYear = int(year.Int64)
	}
	return &c, nil
}

func scanCitations(rows *sql.Rows) ([]citation.Citation, error) {
	var citations []citation.Citation
	for rows.Next() {
		c, err := scanCitation(rows)
		if err != nil {
			return nil, err
		}
		if c != nil {
			citations = append(citations, *c)
		}
	}
	return citations, rows.Err()
}
