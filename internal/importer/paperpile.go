// Package importer converts reference-manager exports into seed records.
package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/matsen/citegraph/internal/paper"
	"github.com/matsen/citegraph/internal/storage"
)

// FlexibleString can unmarshal from either string or number JSON values.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	// Handle null
	if string(data) == "null" {
		*f = ""
		return nil
	}

	// Try string first
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleString(s)
		return nil
	}

	// Try number
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleString(n.String())
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexibleString", string(data))
}

func (f FlexibleString) String() string {
	return string(f)
}

// PaperpileEntry represents a single entry from a Paperpile JSON export.
type PaperpileEntry struct {
	ID        string `json:"_id"`
	Citekey   string `json:"citekey"`
	DOI       string `json:"doi"`
	Title     string `json:"title"`
	Abstract  string `json:"abstract"`
	Journal   string `json:"journal"`
	URL       string `json:"url"`
	Published struct {
		Year FlexibleString `json:"year"`
	} `json:"published"`
	Author []struct {
		First string `json:"first"`
		Last  string `json:"last"`
		ORCID string `json:"orcid"`
	} `json:"author"`
	Attachments []struct {
		ArticlePDF int    `json:"article_pdf"` // 1 = main PDF, 0 = supplement
		Filename   string `json:"filename"`
	} `json:"attachments"`
}

// ReadPaperpileFile reads a Paperpile JSON export from disk.
func ReadPaperpileFile(path string) ([]storage.SeedRecord, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("reading Paperpile export: %w", err)}
	}
	return ParsePaperpile(data)
}

// ParsePaperpile parses a Paperpile JSON export into seed records. Entries
// that cannot be converted are reported and skipped; the rest are returned.
// Paperpile exports carry no reference lists, so records have no citations.
func ParsePaperpile(data []byte) ([]storage.SeedRecord, []error) {
	var entries []PaperpileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, []error{fmt.Errorf("parsing Paperpile JSON: %w", err)}
	}

	var records []storage.SeedRecord
	var errs []error

	for i, entry := range entries {
		p, err := paperpileEntryToPaper(entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%s): %w", i+1, entry.Citekey, err))
			continue
		}
		records = append(records, storage.SeedRecord{Paper: p})
	}

	return records, errs
}

func paperpileEntryToPaper(entry PaperpileEntry) (paper.Paper, error) {
	title := strings.TrimSpace(entry.Title)
	if title == "" {
		return paper.Paper{}, fmt.Errorf("missing required field 'title'")
	}

	var year int
	if y := entry.Published.Year.String(); y != "" {
		var err error
		year, err = strconv.Atoi(y)
		if err != nil {
			return paper.Paper{}, fmt.Errorf("invalid year: %s", y)
		}
	}

	authors := make([]paper.Author, 0, len(entry.Author))
	for _, a := range entry.Author {
		name := strings.TrimSpace(a.First + " " + a.Last)
		if name == "" {
			continue
		}
		authors = append(authors, paper.Author{Name: name, ORCID: a.ORCID})
	}

	var pdfPath string
	for _, att := range entry.Attachments {
		if att.ArticlePDF == 1 {
			pdfPath = att.Filename
			break
		}
	}

	return paper.Paper{
		DOI:        entry.DOI,
		Title:      title,
		Abstract:   entry.Abstract,
		Year:       year,
		Venue:      entry.Journal,
		URL:        entry.URL,
		PDFPath:    pdfPath,
		Authors:    authors,
		Source:     paper.SourcePaperpile,
		Provenance: paper.ProvenanceUpload,
	}, nil
}
