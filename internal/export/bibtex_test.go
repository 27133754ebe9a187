package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/citegraph/internal/paper"
)

func TestToBibTeX_BasicArticle(t *testing.T) {
	p := paper.Paper{
		ID:    "ab12cd34-0000-0000-0000-000000000000",
		DOI:   "10.1234/test",
		Title: "Test Paper Title",
		Authors: []paper.Author{
			{Name: "John Smith"},
			{Name: "Jane Doe"},
		},
		Abstract: "This is the abstract",
		Venue:    "Nature",
		Year:     2026,
	}

	got := ToBibTeX(p)

	if !strings.HasPrefix(got, "@article{Smith2026-ab12,") {
		t.Errorf("ToBibTeX() should start with @article{Smith2026-ab12, got:\n%s", got)
	}
	if !strings.Contains(got, `author = {Smith, John and Doe, Jane}`) {
		t.Errorf("ToBibTeX() should contain properly formatted authors, got:\n%s", got)
	}
	if !strings.Contains(got, `title = {Test Paper Title}`) {
		t.Errorf("ToBibTeX() should contain title, got:\n%s", got)
	}
	if !strings.Contains(got, `journal = {Nature}`) {
		t.Errorf("ToBibTeX() should contain journal, got:\n%s", got)
	}
	if !strings.Contains(got, `year = {2026}`) {
		t.Errorf("ToBibTeX() should contain year, got:\n%s", got)
	}
	if !strings.Contains(got, `doi = {10.1234/test}`) {
		t.Errorf("ToBibTeX() should contain DOI, got:\n%s", got)
	}
	if !strings.HasSuffix(got, "}\n") {
		t.Errorf("ToBibTeX() should end with }\\n, got:\n%s", got)
	}
}

func TestToBibTeX_Inproceedings(t *testing.T) {
	p := paper.Paper{
		ID:    "x1",
		Title: "Conference Paper",
		Venue: "Proceedings of ICML",
		Year:  2024,
	}

	got := ToBibTeX(p)
	assert.True(t, strings.HasPrefix(got, "@inproceedings{"), got)
	assert.Contains(t, got, `booktitle = {Proceedings of ICML}`)
	assert.NotContains(t, got, "journal")
}

func TestToBibTeX_OptionalFieldsOmitted(t *testing.T) {
	got := ToBibTeX(paper.Paper{ID: "x1", Title: "Bare"})

	for _, field := range []string{"author", "journal", "year", "doi", "url", "abstract"} {
		assert.NotContains(t, got, field+" = ", "field %s should be omitted", field)
	}
}

func TestToBibTeX_NoAuthors(t *testing.T) {
	got := ToBibTeX(paper.Paper{ID: "beef", Title: "Anonymous Work", Year: 2001})
	assert.True(t, strings.HasPrefix(got, "@article{Anon2001-beef,"), got)
}

func TestToBibTeX_SpecialCharactersInTitle(t *testing.T) {
	got := ToBibTeX(paper.Paper{ID: "x1", Title: "Costs & Benefits: 50% of $x_1$"})
	assert.Contains(t, got, `title = {Costs \& Benefits: 50\% of \$x\_1\$}`)
}

func TestCiteKey(t *testing.T) {
	tests := []struct {
		name string
		p    paper.Paper
		want string
	}{
		{"full", paper.Paper{ID: "1234abcd", Year: 2020, Authors: []paper.Author{{Name: "Ada Lovelace"}}}, "Lovelace2020-1234"},
		{"no year", paper.Paper{ID: "1234abcd", Authors: []paper.Author{{Name: "Ada Lovelace"}}}, "Lovelacend-1234"},
		{"punctuation stripped", paper.Paper{ID: "ffff", Year: 1999, Authors: []paper.Author{{Name: "Sean O'Brien"}}}, "OBrien1999-ffff"},
		{"uuid dashes", paper.Paper{ID: "a-b-c-d-e", Year: 2010, Authors: []paper.Author{{Name: "Smith"}}}, "Smith2010-abcd"},
		{"no id", paper.Paper{Year: 2010, Authors: []paper.Author{{Name: "Smith"}}}, "Smith2010"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CiteKey(tt.p))
		})
	}
}

func TestDetermineEntryType(t *testing.T) {
	tests := []struct {
		venue string
		want  string
	}{
		{"Nature", "article"},
		{"", "article"},
		{"Proceedings of the National Academy", "inproceedings"},
		{"NeurIPS Workshop on Graphs", "inproceedings"},
		{"International Conference on Learning Representations", "inproceedings"},
		{"Symposium on Theory of Computing", "inproceedings"},
	}
	for _, tt := range tests {
		t.Run(tt.venue, func(t *testing.T) {
			if got := determineEntryType(paper.Paper{Venue: tt.venue}); got != tt.want {
				t.Errorf("determineEntryType(%q) = %q, want %q", tt.venue, got, tt.want)
			}
		})
	}
}

func TestFormatAuthors(t *testing.T) {
	tests := []struct {
		name    string
		authors []paper.Author
		want    string
	}{
		{"single", []paper.Author{{Name: "John Smith"}}, "Smith, John"},
		{"middle name", []paper.Author{{Name: "John Q. Public"}}, "Public, John Q."},
		{"family only", []paper.Author{{Name: "Plato"}}, "Plato"},
		{"two", []paper.Author{{Name: "John Smith"}, {Name: "Jane Doe"}}, "Smith, John and Doe, Jane"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatAuthors(tt.authors))
		})
	}
}

func TestEscapeLatex(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a & b", `a \& b`},
		{"{x}", `\{x\}`},
		{"#1", `\#1`},
		{"~", `\textasciitilde{}`},
		{"^", `\textasciicircum{}`},
	}
	for _, tt := range tests {
		if got := escapeLatex(tt.in); got != tt.want {
			t.Errorf("escapeLatex(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToBibTeXList(t *testing.T) {
	assert.Empty(t, ToBibTeXList(nil))

	got := ToBibTeXList([]paper.Paper{
		{ID: "a1", Title: "One"},
		{ID: "b2", Title: "Two"},
	})
	assert.Equal(t, 2, strings.Count(got, "@article{"))
}

func TestParseBibTeXFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refs.bib")
	content := `@article{Smith2020-ab12,
  title = {One},
  doi = {https://doi.org/10.1000/ABC},
}

@inproceedings{Doe2021,
  title = {Two},
}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	idx, err := ParseBibTeXFile(path)
	require.NoError(t, err)
	assert.True(t, idx.Keys["Smith2020-ab12"])
	assert.True(t, idx.Keys["Doe2021"])
	assert.Equal(t, "Smith2020-ab12", idx.DOIs["10.1000/abc"])

	assert.True(t, idx.HasEntry("Other", "10.1000/abc"))
	assert.True(t, idx.HasEntry("Doe2021", ""))
	assert.False(t, idx.HasEntry("Other", "10.1000/xyz"))
}

func TestParseBibTeXFile_Missing(t *testing.T) {
	idx, err := ParseBibTeXFile(filepath.Join(t.TempDir(), "nope.bib"))
	require.NoError(t, err)
	assert.Empty(t, idx.Keys)
}

func TestNewEntries(t *testing.T) {
	idx := NewBibTeXIndex()
	idx.DOIs["10.1/present"] = "Existing"

	papers := []paper.Paper{
		{ID: "aaaa", Title: "Present", DOI: "10.1/present"},
		{ID: "bbbb", Title: "New", DOI: "10.1/new"},
		{ID: "bbbb", Title: "Duplicate in batch", DOI: "10.1/new"},
	}
	fresh := idx.NewEntries(papers)
	require.Len(t, fresh, 1)
	assert.Equal(t, "New", fresh[0].Title)
	assert.True(t, idx.HasEntry("", "10.1/new"))
}

func TestAppendToBibFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refs.bib")
	require.NoError(t, AppendToBibFile(path, ToBibTeX(paper.Paper{ID: "aaaa", Title: "One", DOI: "10.1/one"})))
	require.NoError(t, AppendToBibFile(path, ToBibTeX(paper.Paper{ID: "bbbb", Title: "Two"})))

	idx, err := ParseBibTeXFile(path)
	require.NoError(t, err)
	assert.Len(t, idx.Keys, 2)
	assert.Contains(t, idx.DOIs, "10.1/one")
}

func TestParseBibTeX_QuotedDOIAndSpacing(t *testing.T) {
	in := `@misc{ Key1 ,
  DOI = "doi:10.5/Q"
}
`
	idx, err := ParseBibTeX(strings.NewReader(in))
	require.NoError(t, err)
	assert.True(t, idx.Keys["Key1"])
	assert.Equal(t, "Key1", idx.DOIs["10.5/q"])
}
