package viz

import (
	"context"
	"fmt"
	"strings"

	"github.com/matsen/citegraph/internal/citation"
	"github.com/matsen/citegraph/internal/paper"
	"github.com/matsen/citegraph/internal/storage"
)

// stubPrefix namespaces stub node IDs away from paper UUIDs.
const stubPrefix = "stub:"

// maxLabelLen truncates node labels drawn on the canvas.
const maxLabelLen = 40

// BuildGraph reads the papers and citations of collectionID and constructs
// the graph to render. Unresolved citations that name the same DOI (or the
// same title and year) share one stub node.
func BuildGraph(ctx context.Context, tx *storage.Tx, collectionID string) (*GraphData, error) {
	c, err := tx.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrCollectionNotFound, collectionID)
	}

	papers, err := tx.ListPapers(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	cites, err := tx.ListCollectionCitations(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	return assemble(collectionID, papers, cites), nil
}

// assemble builds graph data from already loaded rows.
func assemble(collectionID string, papers []paper.Paper, cites []citation.Citation) *GraphData {
	g := &GraphData{
		CollectionID: collectionID,
		Nodes:        make([]Node, 0, len(papers)),
		Edges:        make([]Edge, 0, len(cites)),
	}

	index := make(map[string]int, len(papers))
	for _, p := range papers {
		index[p.ID] = len(g.Nodes)
		g.Nodes = append(g.Nodes, newPaperNode(p))
	}

	for _, c := range cites {
		edge := Edge{ID: c.ID, Source: c.SourceID}
		if c.IsResolved() {
			edge.Target = c.ResolvedPaperID
			edge.Resolved = true
			g.Totals.Resolved++
		} else {
			edge.Target = stubID(c.Stub())
			g.Totals.Unresolved++
			if _, ok := index[edge.Target]; !ok {
				index[edge.Target] = len(g.Nodes)
				g.Nodes = append(g.Nodes, newStubNode(edge.Target, c.Stub()))
			}
		}
		if i, ok := index[edge.Target]; ok {
			g.Nodes[i].CitedBy++
		}
		g.Edges = append(g.Edges, edge)
	}

	g.Totals.Papers = len(papers)
	g.Totals.Citations = len(cites)
	return g
}

// stubID keys an unresolved destination by DOI, else by title and year.
func stubID(s citation.Stub) string {
	if s.HasDOI() {
		return stubPrefix + paper.NormalizeDOI(s.DOI)
	}
	return fmt.Sprintf("%s%s|%d", stubPrefix, paper.NormalizeTitle(s.Title), s.Year)
}

func newPaperNode(p paper.Paper) Node {
	return Node{
		ID:         p.ID,
		Type:       NodeTypePaper,
		Label:      truncateLabel(p.Title),
		Title:      p.Title,
		Authors:    authorsToString(p.Authors),
		Year:       p.Year,
		Venue:      p.Venue,
		DOI:        p.DOI,
		Provenance: string(p.Provenance),
	}
}

func newStubNode(id string, s citation.Stub) Node {
	label := s.Title
	if label == "" {
		label = s.DOI
	}
	return Node{
		ID:    id,
		Type:  NodeTypeStub,
		Label: truncateLabel(label),
		Title: s.Title,
		Year:  s.Year,
		DOI:   s.DOI,
	}
}

func truncateLabel(s string) string {
	r := []rune(s)
	if len(r) <= maxLabelLen {
		return s
	}
	return strings.TrimSpace(string(r[:maxLabelLen-1])) + "…"
}

// authorsToString joins author names with commas.
func authorsToString(authors []paper.Author) string {
	if len(authors) == 0 {
		return ""
	}
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}
