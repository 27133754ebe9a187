// Package citation defines outgoing citation stubs and their resolution state.
package citation

import (
	"errors"
	"strings"

	"github.com/matsen/citegraph/internal/paper"
)

// Citation is an outgoing reference of a source paper. It starts as an
// unresolved stub and may be resolved exactly once to a destination paper.
type Citation struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"`

	// Stub identity of the destination
	DstDOI   string `json:"dst_doi,omitempty"`
	DstTitle string `json:"dst_title,omitempty"`
	DstYear  int    `json:"dst_year,omitempty"`

	// Set once on resolution, never cleared
	ResolvedPaperID string `json:"resolved_paper_id,omitempty"`
}

// Stub carries the partial identity of a cited paper.
type Stub struct {
	DOI   string `json:"doi,omitempty"`
	Title string `json:"title,omitempty"`
	Year  int    `json:"year,omitempty"`
}

// Validation errors.
var (
	ErrEmptySourceID = errors.New("source_id is required")
	ErrEmptyStub     = errors.New("citation needs a DOI or a title")
	ErrSelfCitation  = errors.New("a paper cannot cite itself")
)

// HasDOI reports whether the stub carries a non-empty DOI.
func (s Stub) HasDOI() bool {
	return paper.NormalizeDOI(s.DOI) != ""
}

// HasTitleYear reports whether the stub carries a title and a year.
func (s Stub) HasTitleYear() bool {
	return strings.TrimSpace(s.Title) != "" && s.Year != 0
}

// Normalize canonicalizes the stub's DOI and drops implausible years.
func (s Stub) Normalize() Stub {
	s.DOI = paper.NormalizeDOI(s.DOI)
	s.Title = strings.TrimSpace(s.Title)
	if !paper.PlausibleYear(s.Year) {
		s.Year = 0
	}
	return s
}

// Stub returns the destination identity of the citation.
func (c *Citation) Stub() Stub {
	return Stub{DOI: c.DstDOI, Title: c.DstTitle, Year: c.DstYear}
}

// IsResolved reports whether the citation already points at a paper.
func (c *Citation) IsResolved() bool {
	return c.ResolvedPaperID != ""
}

// FromStub builds an unresolved citation of sourceID from a stub.
func FromStub(sourceID string, s Stub) Citation {
	s = s.Normalize()
	return Citation{
		SourceID: sourceID,
		DstDOI:   s.DOI,
		DstTitle: s.Title,
		DstYear:  s.Year,
	}
}

// ValidateForCreate validates a citation for creation.
func (c *Citation) ValidateForCreate() error {
	if c.SourceID == "" {
		return ErrEmptySourceID
	}
	if paper.NormalizeDOI(c.DstDOI) == "" && strings.TrimSpace(c.DstTitle) == "" {
		return ErrEmptyStub
	}
	if c.ResolvedPaperID != "" && c.ResolvedPaperID == c.SourceID {
		return ErrSelfCitation
	}
	return nil
}

// Key returns the uniqueness tuple of a citation. Citations without a DOI
// have no uniqueness constraint and return ok=false.
func (c *Citation) Key() (key Key, ok bool) {
	doi := paper.NormalizeDOI(c.DstDOI)
	if doi == "" {
		return Key{}, false
	}
	return Key{SourceID: c.SourceID, DstDOI: doi}, true
}

// Key represents the unique identity of a DOI-bearing citation.
type Key struct {
	SourceID string
	DstDOI   string
}

// OrphanedCitationInfo describes a resolved citation with a missing endpoint.
type OrphanedCitationInfo struct {
	CitationID      string `json:"citation_id"`
	SourceID        string `json:"source_id"`
	ResolvedPaperID string `json:"resolved_paper_id"`
	Reason          string `json:"reason"` // "missing_source", "missing_target", or "missing_both"
}

// DetectOrphanedCitations finds citations whose source or resolved
// destination is not in the valid ID set. Unresolved citations only need a
// valid source.
func DetectOrphanedCitations(citations []Citation, validIDs map[string]bool) []OrphanedCitationInfo {
	var orphaned []OrphanedCitationInfo
	for _, c := range citations {
		sourceOK := validIDs[c.SourceID]
		targetOK := !c.IsResolved() || validIDs[c.ResolvedPaperID]
		if sourceOK && targetOK {
			continue
		}

		info := OrphanedCitationInfo{
			CitationID:      c.ID,
			SourceID:        c.SourceID,
			ResolvedPaperID: c.ResolvedPaperID,
		}
		switch {
		case !sourceOK && !targetOK:
			info.Reason = "missing_both"
		case !sourceOK:
			info.Reason = "missing_source"
		default:
			info.Reason = "missing_target"
		}
		orphaned = append(orphaned, info)
	}
	return orphaned
}

// FindDuplicateCitations finds DOI-bearing citations that appear more than
// once for the same source. Returns a map of Key to count for keys that
// appear more than once.
func FindDuplicateCitations(citations []Citation) map[Key]int {
	counts := make(map[Key]int)
	for _, c := range citations {
		if key, ok := c.Key(); ok {
			counts[key]++
		}
	}

	duplicates := make(map[Key]int)
	for key, count := range counts {
		if count > 1 {
			duplicates[key] = count
		}
	}
	return duplicates
}
