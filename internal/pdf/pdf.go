// Package pdf extracts bibliographic metadata from PDF files.
package pdf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// DefaultMaxPages bounds how much of a document is read for metadata.
const DefaultMaxPages = 3

// ErrNoText is returned when none of the scanned pages yields text.
var ErrNoText = errors.New("no extractable text in PDF")

// DOI pattern: 10.XXXX/... where XXXX is 4-9 digits
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

// Metadata is what could be recovered from the first pages of a PDF.
// Any field may be empty.
type Metadata struct {
	DOI      string    `json:"doi,omitempty"`
	Title    string    `json:"title,omitempty"`
	Abstract string    `json:"abstract,omitempty"`
	Sections []Section `json:"sections,omitempty"`
	Pages    int       `json:"pages"`
}

// Section is a run of text under a recognized heading.
type Section struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Extract opens the file at path and reads metadata from its first
// maxPages pages (all pages when maxPages <= 0).
func Extract(path string, maxPages int) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return ExtractReader(f, info.Size(), maxPages)
}

// ExtractReader is Extract for an already opened document.
func ExtractReader(r io.ReaderAt, size int64, maxPages int) (*Metadata, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("reading PDF: %w", err)
	}

	total := reader.NumPage()
	if maxPages <= 0 || maxPages > total {
		maxPages = total
	}

	var builder strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}

	text := builder.String()
	if strings.TrimSpace(text) == "" {
		return &Metadata{Pages: total}, ErrNoText
	}

	meta := Parse(text)
	meta.Pages = total
	return &meta, nil
}

// Parse recovers metadata from already extracted plain text.
func Parse(text string) Metadata {
	sections := DetectSections(text)
	meta := Metadata{
		DOI:      findDOI(text),
		Title:    findTitle(text),
		Sections: sections,
	}
	for _, s := range sections {
		if s.Name == "abstract" {
			meta.Abstract = s.Text
			break
		}
	}
	return meta
}

// findDOI finds a DOI in text.
func findDOI(text string) string {
	for _, match := range doiPattern.FindAllString(text, -1) {
		// Remove trailing punctuation
		match = strings.TrimRight(match, ".,;:)")
		if isValidDOI(match) {
			return match
		}
	}
	return ""
}

// isValidDOI performs basic validation on a DOI.
func isValidDOI(doi string) bool {
	if len(doi) < 10 || !strings.HasPrefix(doi, "10.") {
		return false
	}
	slashIdx := strings.Index(doi, "/")
	return slashIdx != -1 && slashIdx < len(doi)-1
}

// findTitle returns the first substantial line that is not a running
// header, a DOI line or a section heading.
func findTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) <= 20 || isHeaderLine(line) || doiPattern.MatchString(line) {
			continue
		}
		if _, ok := sectionName(line); ok {
			continue
		}
		return strings.Join(strings.Fields(line), " ")
	}
	return ""
}

// isHeaderLine checks if a line is likely a header/footer.
func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "journal"):
		return true
	case strings.Contains(lower, "volume") && strings.Contains(lower, "issue"):
		return true
	case strings.Contains(lower, "copyright"):
		return true
	case strings.Contains(lower, "article") && strings.Contains(lower, "published"):
		return true
	}
	return false
}

var sectionHeadings = []struct {
	marker string
	name   string
}{
	{"abstract", "abstract"},
	{"introduction", "introduction"},
	{"method", "methods"},
	{"result", "results"},
	{"discussion", "discussion"},
	{"conclusion", "conclusion"},
	{"acknowledg", "acknowledgments"},
	{"reference", "references"},
	{"appendix", "appendix"},
}

// maxHeadingLen keeps body sentences that mention "results" from being
// taken as headings.
const maxHeadingLen = 40

func sectionName(line string) (string, bool) {
	if len(line) > maxHeadingLen {
		return "", false
	}
	lower := strings.ToLower(strings.TrimSpace(line))
	// Drop numbering such as "1." or "2 "
	lower = strings.TrimLeft(lower, "0123456789. ")
	for _, h := range sectionHeadings {
		if strings.HasPrefix(lower, h.marker) {
			return h.name, true
		}
	}
	return "", false
}

// DetectSections splits text at recognizable headings. Text before the
// first heading is ignored. A heading of the form "Abstract: text..." keeps
// the text after the colon.
func DetectSections(text string) []Section {
	var (
		sections []Section
		current  string
		body     []string
	)
	flush := func() {
		if current != "" && len(body) > 0 {
			sections = append(sections, Section{Name: current, Text: strings.Join(body, " ")})
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		head, rest, hasColon := strings.Cut(line, ":")
		if name, ok := sectionName(head); ok && (hasColon || len(line) <= maxHeadingLen) {
			flush()
			current = name
			body = nil
			if rest = strings.TrimSpace(rest); hasColon && rest != "" {
				body = append(body, rest)
			}
			continue
		}
		if current != "" {
			body = append(body, line)
		}
	}
	flush()
	return sections
}
