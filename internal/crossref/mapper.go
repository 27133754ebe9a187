package crossref

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/matsen/citegraph/internal/citation"
	"github.com/matsen/citegraph/internal/paper"
)

var markupTag = regexp.MustCompile(`<[^>]+>`)

// MapWork converts a raw Crossref work into a Work. It returns false for
// works without a title.
func MapWork(w rawWork) (Work, bool) {
	title := firstNonEmpty(w.Title)
	if title == "" {
		return Work{}, false
	}

	out := Work{
		Title:    strings.TrimSpace(title),
		DOI:      paper.NormalizeDOI(w.DOI),
		Abstract: stripMarkup(w.Abstract),
		Year:     extractYear(w),
		Venue:    firstNonEmpty(w.ContainerTitle),
		URL:      extractURL(w),
		Authors:  mapAuthors(w.Author),
	}

	for _, ref := range w.Reference {
		if stub, ok := mapReference(ref); ok {
			out.References = append(out.References, stub)
		}
	}
	return out, true
}

func mapAuthors(raw []rawAuthor) []paper.Author {
	var authors []paper.Author
	for _, a := range raw {
		name := strings.TrimSpace(strings.TrimSpace(a.Given) + " " + strings.TrimSpace(a.Family))
		if name == "" {
			name = strings.TrimSpace(a.Name)
		}
		if name == "" {
			continue
		}

		author := paper.Author{Name: name, ORCID: a.ORCID}
		if len(a.Affiliation) > 0 {
			author.Affiliation = a.Affiliation[0].Name
		}
		authors = append(authors, author)
	}
	return authors
}

// extractYear takes the first year from published-print, published-online
// then issued. Implausible years are treated as unknown.
func extractYear(w rawWork) int {
	for _, d := range []*rawDate{w.PublishedPrint, w.PublishedOnline, w.Issued} {
		if d == nil || len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 || d.DateParts[0][0] == nil {
			continue
		}
		year := *d.DateParts[0][0]
		if paper.PlausibleYear(year) {
			return year
		}
		return 0
	}
	return 0
}

func extractURL(w rawWork) string {
	for _, l := range w.Link {
		if l.URL != "" {
			return l.URL
		}
	}
	return w.URL
}

func mapReference(r rawReference) (citation.Stub, bool) {
	stub := citation.Stub{
		DOI:   r.DOI,
		Title: strings.TrimSpace(r.ArticleTitle),
	}
	if y, err := strconv.Atoi(strings.TrimSpace(r.Year)); err == nil {
		stub.Year = y
	}
	stub = stub.Normalize()
	if !stub.HasDOI() && stub.Title == "" {
		return citation.Stub{}, false
	}
	return stub, true
}

// stripMarkup removes JATS and HTML tags from an abstract.
func stripMarkup(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(markupTag.ReplaceAllString(s, " ")), " ")
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
