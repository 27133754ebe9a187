package crossref

import (
	"github.com/matsen/citegraph/internal/citation"
	"github.com/matsen/citegraph/internal/paper"
)

// Work is a normalized bibliographic record returned by the registry.
type Work struct {
	Title      string          `json:"title"`
	DOI        string          `json:"doi,omitempty"`
	Abstract   string          `json:"abstract,omitempty"`
	Year       int             `json:"year,omitempty"`
	Venue      string          `json:"venue,omitempty"`
	URL        string          `json:"url,omitempty"`
	Authors    []paper.Author  `json:"authors,omitempty"`
	References []citation.Stub `json:"references,omitempty"`
}

// worksResponse is the envelope of GET /works.
type worksResponse struct {
	Status  string `json:"status"`
	Message struct {
		TotalResults int       `json:"total-results"`
		Items        []rawWork `json:"items"`
	} `json:"message"`
}

// workResponse is the envelope of GET /works/{doi}.
type workResponse struct {
	Status  string  `json:"status"`
	Message rawWork `json:"message"`
}

// rawWork holds the subset of the Crossref work schema we read.
type rawWork struct {
	DOI             string         `json:"DOI"`
	Title           []string       `json:"title"`
	ContainerTitle  []string       `json:"container-title"`
	Abstract        string         `json:"abstract"`
	URL             string         `json:"URL"`
	Author          []rawAuthor    `json:"author"`
	PublishedPrint  *rawDate       `json:"published-print"`
	PublishedOnline *rawDate       `json:"published-online"`
	Issued          *rawDate       `json:"issued"`
	Link            []rawLink      `json:"link"`
	Reference       []rawReference `json:"reference"`
}

type rawAuthor struct {
	Given       string `json:"given"`
	Family      string `json:"family"`
	Name        string `json:"name"`
	ORCID       string `json:"ORCID"`
	Affiliation []struct {
		Name string `json:"name"`
	} `json:"affiliation"`
}

// rawDate is Crossref's partial date: [[year, month, day]] with trailing
// parts optional. Unknown dates are encoded as [[null]].
type rawDate struct {
	DateParts [][]*int `json:"date-parts"`
}

type rawLink struct {
	URL string `json:"URL"`
}

type rawReference struct {
	Key          string `json:"key"`
	DOI          string `json:"DOI"`
	ArticleTitle string `json:"article-title"`
	Year         string `json:"year"`
	Unstructured string `json:"unstructured"`
}
