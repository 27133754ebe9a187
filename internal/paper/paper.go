// Package paper defines the core domain types for papers in a collection.
package paper

import (
	"errors"
	"time"
)

// Provenance records how a paper entered its collection.
type Provenance string

const (
	ProvenanceUpload         Provenance = "upload"
	ProvenanceTopicSearch    Provenance = "topic-search"
	ProvenanceGraphDiscovery Provenance = "graph-discovery"
)

// Valid reports whether p is one of the known provenance tags.
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceUpload, ProvenanceTopicSearch, ProvenanceGraphDiscovery:
		return true
	}
	return false
}

// Metadata source values.
const (
	SourceUpload    = "upload"
	SourceCrossref  = "crossref"
	SourceManual    = "manual"
	SourcePaperpile = "paperpile"
)

// Collection is a per-user set of papers. All identity rules are scoped to it.
type Collection struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	OwnerID   string    `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Paper represents a research paper within one collection.
type Paper struct {
	// Identity: (CollectionID, DOI) when DOI is set, else
	// (CollectionID, NormalizeTitle(Title), Year).
	ID           string `json:"id"`
	CollectionID string `json:"collection_id"`
	DOI          string `json:"doi,omitempty"` // Normalized, see NormalizeDOI

	// Metadata
	Title    string   `json:"title"`
	Abstract string   `json:"abstract,omitempty"`
	Year     int      `json:"year,omitempty"` // 0 if unknown
	Venue    string   `json:"venue,omitempty"`
	URL      string   `json:"url,omitempty"`
	PDFPath  string   `json:"pdf_path,omitempty"`
	Authors  []Author `json:"authors,omitempty"`

	// Tracking
	Source     string     `json:"source"`
	Provenance Provenance `json:"provenance"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Author is a paper author listed in order of appearance.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	ORCID       string `json:"orcid,omitempty"`
}

// Chunk is a derived text fragment of a paper used for retrieval.
type Chunk struct {
	ID      string `json:"id"`
	PaperID string `json:"paper_id"`
	Section string `json:"section"`
	Ord     int    `json:"ord"`
	Text    string `json:"text"`
}

// SectionAbstract is the section label of the abstract chunk.
const SectionAbstract = "abstract"

// Validation errors.
var (
	ErrEmptyTitle        = errors.New("title is required")
	ErrEmptyCollectionID = errors.New("collection_id is required")
	ErrInvalidProvenance = errors.New("invalid provenance")
)

// ValidateForCreate validates a paper before it is persisted.
func (p *Paper) ValidateForCreate() error {
	if p.CollectionID == "" {
		return ErrEmptyCollectionID
	}
	if p.Title == "" {
		return ErrEmptyTitle
	}
	if !p.Provenance.Valid() {
		return ErrInvalidProvenance
	}
	return nil
}

// Normalize canonicalizes the identity fields in place.
// Implausible years are dropped to unknown.
func (p *Paper) Normalize() {
	p.DOI = NormalizeDOI(p.DOI)
	if !PlausibleYear(p.Year) {
		p.Year = 0
	}
}

// Key returns the identity of the paper within its collection.
func (p *Paper) Key() Key {
	if p.DOI != "" {
		return Key{CollectionID: p.CollectionID, DOI: NormalizeDOI(p.DOI)}
	}
	return Key{CollectionID: p.CollectionID, Title: NormalizeTitle(p.Title), Year: p.Year}
}

// Key is the identity tuple of a paper. Exactly one of DOI or
// (Title, Year) is meaningful.
type Key struct {
	CollectionID string
	DOI          string
	Title        string
	Year         int
}
