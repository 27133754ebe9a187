package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matsen/citegraph/internal/paper"
)

// Collection errors.
var (
	ErrCollectionExists   = errors.New("collection already exists")
	ErrCollectionNotFound = errors.New("collection not found")
)

// selectPaperFields contains the standard field list for paper SELECT queries.
const selectPaperFields = `id, collection_id, doi, title, abstract, year, venue,
	url, pdf_path, source, provenance, created_at`

// CreateCollection inserts a new collection. An empty ID is generated.
func (t *Tx) CreateCollection(ctx context.Context, c *paper.Collection) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Title == "" {
		return paper.ErrEmptyTitle
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO collections (id, title, owner_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, c.ID, c.Title, nullableStringValue(c.OwnerID), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting collection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrCollectionExists, c.ID)
	}
	return nil
}

// GetCollection retrieves a collection by ID. Returns nil, nil if not found.
func (t *Tx) GetCollection(ctx context.Context, id string) (*paper.Collection, error) {
	var c paper.Collection
	var owner sql.NullString
	var createdAt string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, title, owner_id, created_at FROM collections WHERE id = ?
	`, id).Scan(&c.ID, &c.Title, &owner, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying collection: %w", err)
	}
	c.OwnerID = owner.String
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// ListCollections returns all collections ordered by creation time.
func (t *Tx) ListCollections(ctx context.Context) ([]paper.Collection, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, title, owner_id, created_at FROM collections ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var collections []paper.Collection
	for rows.Next() {
		var c paper.Collection
		var owner sql.NullString
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Title, &owner, &createdAt); err != nil {
			return nil, err
		}
		c.OwnerID = owner.String
		c.CreatedAt = parseTime(createdAt)
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

// DeleteCollection removes a collection and, by cascade, its papers,
// citations, chunks and embeddings. Returns false if it did not exist.
func (t *Tx) DeleteCollection(ctx context.Context, id string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting collection: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CreatePaper persists p unless a paper with the same identity already
// exists in the collection. It returns the stored row and whether this call
// created it. A concurrent or earlier insert of the same identity wins and
// its row is returned unchanged.
func (t *Tx) CreatePaper(ctx context.Context, p *paper.Paper) (*paper.Paper, bool, error) {
	candidate := *p
	candidate.Normalize()
	if err := candidate.ValidateForCreate(); err != nil {
		return nil, false, fmt.Errorf("invalid paper: %w", err)
	}
	if candidate.ID == "" {
		candidate.ID = uuid.NewString()
	}
	if candidate.CreatedAt.IsZero() {
		candidate.CreatedAt = time.Now().UTC()
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO papers (
			id, collection_id, doi, title, title_norm, abstract, year, venue,
			url, pdf_path, source, provenance, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		candidate.ID, candidate.CollectionID, nullableStringValue(candidate.DOI),
		candidate.Title, paper.NormalizeTitle(candidate.Title),
		nullableStringValue(candidate.Abstract), nullableIntValue(candidate.Year),
		nullableStringValue(candidate.Venue), nullableStringValue(candidate.URL),
		nullableStringValue(candidate.PDFPath), candidate.Source,
		string(candidate.Provenance), formatTime(candidate.CreatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting paper: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := t.findByKey(ctx, candidate.Key())
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("inserting paper %s: conflicting row not found", candidate.ID)
		}
		return existing, false, nil
	}

	if err := t.insertAuthors(ctx, candidate.ID, candidate.Authors); err != nil {
		return nil, false, err
	}
	return &candidate, true, nil
}

// findByKey re-reads the row holding a paper identity.
func (t *Tx) findByKey(ctx context.Context, key paper.Key) (*paper.Paper, error) {
	if key.DOI != "" {
		return t.FindPaperByDOI(ctx, key.CollectionID, key.DOI)
	}
	row := t.tx.QueryRowContext(ctx, `SELECT `+selectPaperFields+` FROM papers
		WHERE collection_id = ? AND doi IS NULL AND title_norm = ? AND year IS ?
		ORDER BY created_at, id LIMIT 1`,
		key.CollectionID, key.Title, nullableIntValue(key.Year))
	return t.scanPaperWithAuthors(ctx, row)
}

// GetPaper retrieves a paper by ID. Returns nil, nil if not found.
func (t *Tx) GetPaper(ctx context.Context, id string) (*paper.Paper, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+selectPaperFields+` FROM papers WHERE id = ?`, id)
	return t.scanPaperWithAuthors(ctx, row)
}

// FindPaperByDOI looks up a paper in a collection by DOI. The DOI is
// normalized before lookup. Returns nil, nil if not found.
func (t *Tx) FindPaperByDOI(ctx context.Context, collectionID, doi string) (*paper.Paper, error) {
	doi = paper.NormalizeDOI(doi)
	if doi == "" {
		return nil, nil
	}
	row := t.tx.QueryRowContext(ctx, `SELECT `+selectPaperFields+` FROM papers
		WHERE collection_id = ? AND doi = ?`, collectionID, doi)
	return t.scanPaperWithAuthors(ctx, row)
}

// FindPaperByTitleYear looks up a paper in a collection whose title equals
// title ignoring case and whose year equals year exactly. Papers with and
// without DOIs both match; the oldest wins. Returns nil, nil if not found.
func (t *Tx) FindPaperByTitleYear(ctx context.Context, collectionID, title string, year int) (*paper.Paper, error) {
	norm := paper.NormalizeTitle(title)
	if norm == "" || year == 0 {
		return nil, nil
	}
	row := t.tx.QueryRowContext(ctx, `SELECT `+selectPaperFields+` FROM papers
		WHERE collection_id = ? AND title_norm = ? AND year = ?
		ORDER BY created_at, id LIMIT 1`, collectionID, norm, year)
	return t.scanPaperWithAuthors(ctx, row)
}

// ListPapers returns all papers of a collection in insertion order.
func (t *Tx) ListPapers(ctx context.Context, collectionID string) ([]paper.Paper, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+selectPaperFields+` FROM papers
		WHERE collection_id = ? ORDER BY rowid`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}

	var papers []paper.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		papers = append(papers, *p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Authors are loaded after the cursor is closed; the single connection
	// cannot serve a second query while rows are open.
	for i := range papers {
		authors, err := t.listAuthors(ctx, papers[i].ID)
		if err != nil {
			return nil, err
		}
		papers[i].Authors = authors
	}
	return papers, nil
}

// CountPapers returns the number of papers in a collection.
func (t *Tx) CountPapers(ctx context.Context, collectionID string) (int, error) {
	var count int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM papers WHERE collection_id = ?`, collectionID).Scan(&count)
	return count, err
}

func (t *Tx) insertAuthors(ctx context.Context, paperID string, authors []paper.Author) error {
	for i, a := range authors {
		if a.Name == "" {
			continue
		}
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO paper_authors (paper_id, author_order, name, affiliation, orcid)
			VALUES (?, ?, ?, ?, ?)
		`, paperID, i, a.Name, nullableStringValue(a.Affiliation), nullableStringValue(a.ORCID))
		if err != nil {
			return fmt.Errorf("inserting author %d for %s: %w", i, paperID, err)
		}
	}
	return nil
}

func (t *Tx) listAuthors(ctx context.Context, paperID string) ([]paper.Author, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT name, affiliation, orcid FROM paper_authors
		WHERE paper_id = ? ORDER BY author_order
	`, paperID)
	if err != nil {
		return nil, fmt.Errorf("listing authors: %w", err)
	}
	defer rows.Close()

	var authors []paper.Author
	for rows.Next() {
		var a paper.Author
		var affiliation, orcid sql.NullString
		if err := rows.Scan(&a.Name, &affiliation, &orcid); err != nil {
			return nil, err
		}
		a.Affiliation = affiliation.String
		a.ORCID = orcid.String
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

func (t *Tx) scanPaperWithAuthors(ctx context.Context, row *sql.Row) (*paper.Paper, error) {
	p, err := scanPaper(row)
	if err != nil || p == nil {
		return p, err
	}
	p.Authors, err = t.listAuthors(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanPaper(s scanner) (*paper.Paper, error) {
	var p paper.Paper
	var doi, abstract, venue, url, pdfPath sql.NullString
	var year sql.NullInt64
	var provenance, createdAt string

	err := s.Scan(
		&p.ID, &p.CollectionID, &doi, &p.Title, &abstract, &year, &venue,
		&url, &pdfPath, &p.Source, &provenance, &createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	p.DOI = doi.String
	p.Abstract = abstract.String
	p.Venue = venue.String
	p.URL = url.String
	p.PDFPath = pdfPath.String
	p.Provenance = paper.Provenance(provenance)
	p.CreatedAt = parseTime(createdAt)
	if year.Valid {
		p.Year = int(year.Int64)
	}
	return &p, nil
}
