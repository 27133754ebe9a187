package citation

import "testing"

func TestCitation_ValidateForCreate(t *testing.T) {
	tests := []struct {
		name     string
		citation Citation
		wantErr  error
	}{
		{
			name:     "doi stub",
			citation: Citation{SourceID: "p1", DstDOI: "10.1/a"},
			wantErr:  nil,
		},
		{
			name:     "title stub",
			citation: Citation{SourceID: "p1", DstTitle: "Foo", DstYear: 2021},
			wantErr:  nil,
		},
		{
			name:     "empty source",
			citation: Citation{DstDOI: "10.1/a"},
			wantErr:  ErrEmptySourceID,
		},
		{
			name:     "empty stub",
			citation: Citation{SourceID: "p1", DstDOI: "doi: ", DstYear: 2021},
			wantErr:  ErrEmptyStub,
		},
		{
			name:     "self citation",
			citation: Citation{SourceID: "p1", DstDOI: "10.1/a", ResolvedPaperID: "p1"},
			wantErr:  ErrSelfCitation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.citation.ValidateForCreate(); err != tt.wantErr {
				t.Errorf("ValidateForCreate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStub_HasDOIAndTitleYear(t *testing.T) {
	tests := []struct {
		name          string
		stub          Stub
		wantDOI       bool
		wantTitleYear bool
	}{
		{"doi only", Stub{DOI: "10.1/a"}, true, false},
		{"title and year", Stub{Title: "Foo", Year: 2021}, false, true},
		{"title without year", Stub{Title: "Foo"}, false, false},
		{"prefix only doi", Stub{DOI: "https://doi.org/"}, false, false},
		{"both", Stub{DOI: "10.1/a", Title: "Foo", Year: 2021}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stub.HasDOI(); got != tt.wantDOI {
				t.Errorf("HasDOI() = %v, want %v", got, tt.wantDOI)
			}
			if got := tt.stub.HasTitleYear(); got != tt.wantTitleYear {
				t.Errorf("HasTitleYear() = %v, want %v", got, tt.wantTitleYear)
			}
		})
	}
}

func TestFromStub_Normalizes(t *testing.T) {
	c := FromStub("p1", Stub{DOI: "https://doi.org/10.1/ABC", Title: " Foo ", Year: 12})
	if c.DstDOI != "10.1/abc" {
		t.Errorf("DstDOI = %q, want %q", c.DstDOI, "10.1/abc")
	}
	if c.DstTitle != "Foo" {
		t.Errorf("DstTitle = %q, want %q", c.DstTitle, "Foo")
	}
	if c.DstYear != 0 {
		t.Errorf("DstYear = %d, want 0", c.DstYear)
	}
	if c.IsResolved() {
		t.Error("new citation should be unresolved")
	}
}

func TestFindDuplicateCitations(t *testing.T) {
	citations := []Citation{
		{ID: "c1", SourceID: "p1", DstDOI: "10.1/a"},
		{ID: "c2", SourceID: "p1", DstDOI: "doi:10.1/A"},
		{ID: "c3", SourceID: "p2", DstDOI: "10.1/a"},
		{ID: "c4", SourceID: "p1", DstTitle: "Foo"},
		{ID: "c5", SourceID: "p1", DstTitle: "Foo"},
	}

	dups := FindDuplicateCitations(citations)
	if len(dups) != 1 {
		t.Fatalf("got %d duplicate keys, want 1: %v", len(dups), dups)
	}
	if n := dups[Key{SourceID: "p1", DstDOI: "10.1/a"}]; n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestDetectOrphanedCitations(t *testing.T) {
	valid := map[string]bool{"p1": true, "p2": true}
	citations := []Citation{
		{ID: "ok-unresolved", SourceID: "p1", DstDOI: "10.1/a"},
		{ID: "ok-resolved", SourceID: "p1", ResolvedPaperID: "p2"},
		{ID: "bad-target", SourceID: "p1", ResolvedPaperID: "gone"},
		{ID: "bad-source", SourceID: "gone", DstDOI: "10.1/b"},
		{ID: "bad-both", SourceID: "gone", ResolvedPaperID: "gone2"},
	}

	orphaned := DetectOrphanedCitations(citations, valid)
	want := map[string]string{
		"bad-target": "missing_target",
		"bad-source": "missing_source",
		"bad-both":   "missing_both",
	}
	if len(orphaned) != len(want) {
		t.Fatalf("got %d orphans, want %d: %+v", len(orphaned), len(want), orphaned)
	}
	for _, o := range orphaned {
		if want[o.CitationID] != o.Reason {
			t.Errorf("%s: reason = %q, want %q", o.CitationID, o.Reason, want[o.CitationID])
		}
	}
}
