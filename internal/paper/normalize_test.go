package paper

import (
	"testing"
	"time"
)

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", "10.1234/ABC", "10.1234/abc"},
		{"https resolver", "https://doi.org/10.1234/abc", "10.1234/abc"},
		{"dx resolver", "http://dx.doi.org/10.1234/abc", "10.1234/abc"},
		{"https dx resolver", "https://dx.doi.org/10.1234/abc", "10.1234/abc"},
		{"doi scheme", "doi:10.1234/abc", "10.1234/abc"},
		{"upper-case scheme", "DOI:10.1234/ABC", "10.1234/abc"},
		{"whitespace", "  10.1234/abc \n", "10.1234/abc"},
		{"empty", "", ""},
		{"only spaces", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDOI(tt.in); got != tt.want {
				t.Errorf("NormalizeDOI(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTitlesEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Foo", "foo", true},
		{"  Foo Bar ", "foo bar", true},
		{"Foo: Bar", "Foo Bar", false},
		{"", "", false},
	}

	for _, tt := range tests {
		if got := TitlesEqual(tt.a, tt.b); got != tt.want {
			t.Errorf("TitlesEqual(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestPlausibleYear(t *testing.T) {
	next := time.Now().Year() + 1
	tests := []struct {
		year int
		want bool
	}{
		{0, false},
		{1899, false},
		{1900, true},
		{2021, true},
		{next, true},
		{next + 1, false},
		{21, false},
	}

	for _, tt := range tests {
		if got := PlausibleYear(tt.year); got != tt.want {
			t.Errorf("PlausibleYear(%d) = %v, want %v", tt.year, got, tt.want)
		}
	}
}

func TestPaper_Key(t *testing.T) {
	withDOI := Paper{CollectionID: "c1", DOI: "https://doi.org/10.1/A", Title: "X", Year: 2020}
	if k := withDOI.Key(); k.DOI != "10.1/a" || k.Title != "" {
		t.Errorf("Key() = %+v, want DOI-based key", k)
	}

	noDOI := Paper{CollectionID: "c1", Title: " Foo ", Year: 2021}
	if k := noDOI.Key(); k.DOI != "" || k.Title != "foo" || k.Year != 2021 {
		t.Errorf("Key() = %+v, want title/year key", k)
	}
}

func TestPaper_ValidateForCreate(t *testing.T) {
	tests := []struct {
		name  string
		paper Paper
		want  error
	}{
		{"valid", Paper{CollectionID: "c", Title: "T", Provenance: ProvenanceUpload}, nil},
		{"no collection", Paper{Title: "T", Provenance: ProvenanceUpload}, ErrEmptyCollectionID},
		{"no title", Paper{CollectionID: "c", Provenance: ProvenanceUpload}, ErrEmptyTitle},
		{"bad provenance", Paper{CollectionID: "c", Title: "T", Provenance: "crawl"}, ErrInvalidProvenance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.paper.ValidateForCreate(); got != tt.want {
				t.Errorf("ValidateForCreate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPaper_NormalizeDropsImplausibleYear(t *testing.T) {
	p := Paper{DOI: "DOI:10.5/X", Year: 1066}
	p.Normalize()
	if p.DOI != "10.5/x" {
		t.Errorf("DOI = %q, want %q", p.DOI, "10.5/x")
	}
	if p.Year != 0 {
		t.Errorf("Year = %d, want 0", p.Year)
	}
}
