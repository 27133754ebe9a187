package crossref

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleWork = `{
	"DOI": "10.1234/ABC",
	"title": ["Graph Neural Networks"],
	"container-title": ["Journal of Graphs"],
	"abstract": "<jats:p>We study <jats:italic>graphs</jats:italic>.</jats:p>",
	"URL": "https://doi.org/10.1234/abc",
	"link": [{"URL": "https://example.org/full.pdf"}],
	"author": [
		{"given": "Ada", "family": "Lovelace", "ORCID": "https://orcid.org/0000-0001", "affiliation": [{"name": "Analytical Engines"}]},
		{"family": "Turing"},
		{"given": ""}
	],
	"published-print": {"date-parts": [[2021, 5]]},
	"issued": {"date-parts": [[2020]]},
	"reference": [
		{"key": "r1", "DOI": "10.1/REF"},
		{"key": "r2", "article-title": "Foo", "year": "2021"},
		{"key": "r3", "unstructured": "an unparseable string"}
	]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(WithBaseURL(srv.URL), WithMailto("test@example.org"), WithRateLimit(1000))
}

func TestGetWorkByDOI(t *testing.T) {
	var gotPath, gotUA string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`{"status":"ok","message":` + sampleWork + `}`))
	})

	work, err := client.GetWorkByDOI(context.Background(), "https://doi.org/10.1234/ABC")
	require.NoError(t, err)

	assert.Equal(t, "/works/10.1234/abc", gotPath)
	assert.Contains(t, gotUA, "mailto:test@example.org")

	assert.Equal(t, "Graph Neural Networks", work.Title)
	assert.Equal(t, "10.1234/abc", work.DOI)
	assert.Equal(t, 2021, work.Year)
	assert.Equal(t, "Journal of Graphs", work.Venue)
	assert.Equal(t, "https://example.org/full.pdf", work.URL)
	assert.Equal(t, "We study graphs .", work.Abstract)

	require.Len(t, work.Authors, 2)
	assert.Equal(t, "Ada Lovelace", work.Authors[0].Name)
	assert.Equal(t, "Analytical Engines", work.Authors[0].Affiliation)
	assert.Equal(t, "Turing", work.Authors[1].Name)

	require.Len(t, work.References, 2)
	assert.Equal(t, "10.1/ref", work.References[0].DOI)
	assert.Equal(t, "Foo", work.References[1].Title)
	assert.Equal(t, 2021, work.References[1].Year)
}

func TestGetWorkByDOI_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Resource not found.", http.StatusNotFound)
	})

	_, err := client.GetWorkByDOI(context.Background(), "10.1/missing")
	assert.True(t, IsNotFound(err), "err = %v", err)

	_, err = client.GetWorkByDOI(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetWorkByDOI_UntitledIsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","message":{"DOI":"10.1/x","title":[]}}`))
	})

	_, err := client.GetWorkByDOI(context.Background(), "10.1/x")
	assert.True(t, IsNotFound(err))
}

func TestGetWorkByDOI_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		checkFn func(error) bool
	}{
		{"rate limited", http.StatusTooManyRequests, "", IsRateLimited},
		{"server error", http.StatusBadGateway, "upstream", func(err error) bool {
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.StatusCode == 502 && apiErr.DOI == "10.1/x"
		}},
		{"bad json", http.StatusOK, "{not json", func(err error) bool { return errors.Is(err, ErrInvalidResponse) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := client.GetWorkByDOI(context.Background(), "10.1/x")
			require.Error(t, err)
			assert.True(t, tt.checkFn(err), "unexpected error: %v", err)
		})
	}
}

func TestGetWorkByDOI_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := client.GetWorkByDOI(context.Background(), "10.1/x")
	assert.ErrorIs(t, err, ErrNetworkError)
}

func TestSearchWorks(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works", r.URL.Path)
		gotQuery = r.URL.RawQuery
		items := []string{sampleWork, `{"DOI":"10.1/untitled"}`, `{"DOI":"10.1/b","title":["Second"]}`, `{"title":["Third"]}`}
		w.Write([]byte(`{"status":"ok","message":{"total-results":4,"items":[` + strings.Join(items, ",") + `]}}`))
	})

	works, err := client.SearchWorks(context.Background(), "graph networks 2021", 2)
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "query=graph+networks+2021")
	assert.Contains(t, gotQuery, "rows=2")
	assert.Contains(t, gotQuery, "sort=relevance")

	require.Len(t, works, 2)
	assert.Equal(t, "Graph Neural Networks", works[0].Title)
	assert.Equal(t, "Second", works[1].Title)
}

func TestSearchWorks_CapsRows(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("rows"))
		w.Write([]byte(`{"status":"ok","message":{"items":[]}}`))
	})

	works, err := client.SearchWorks(context.Background(), "q", 500)
	require.NoError(t, err)
	assert.Empty(t, works)
}

func TestExtractYear(t *testing.T) {
	y := func(n int) *int { return &n }

	tests := []struct {
		name string
		work rawWork
		want int
	}{
		{"print wins", rawWork{PublishedPrint: &rawDate{[][]*int{{y(2019)}}}, Issued: &rawDate{[][]*int{{y(2018)}}}}, 2019},
		{"online fallback", rawWork{PublishedOnline: &rawDate{[][]*int{{y(2017), y(3)}}}}, 2017},
		{"issued fallback", rawWork{Issued: &rawDate{[][]*int{{y(2016)}}}}, 2016},
		{"null parts skipped", rawWork{PublishedPrint: &rawDate{[][]*int{{nil}}}, Issued: &rawDate{[][]*int{{y(2015)}}}}, 2015},
		{"implausible", rawWork{PublishedPrint: &rawDate{[][]*int{{y(1066)}}}}, 0},
		{"none", rawWork{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractYear(tt.work))
		})
	}
}
