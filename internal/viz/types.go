// Package viz renders a collection's citation graph for inspection.
package viz

// Node types.
const (
	NodeTypePaper = "paper"
	NodeTypeStub  = "stub"
)

// GraphData contains all data needed to render the visualization.
type GraphData struct {
	CollectionID string `json:"collection_id"`
	Nodes        []Node `json:"nodes"`
	Edges        []Edge `json:"edges"`
	Totals       Totals `json:"totals"`
}

// Node is a stored paper or the unresolved destination of a citation.
type Node struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	// Display
	Label string `json:"label"`

	Title      string `json:"title,omitempty"`
	Authors    string `json:"authors,omitempty"` // "First Last, First Last"
	Year       int    `json:"year,omitempty"`
	Venue      string `json:"venue,omitempty"`
	DOI        string `json:"doi,omitempty"`
	Provenance string `json:"provenance,omitempty"`

	// Number of citations pointing at the node
	CitedBy int `json:"citedBy"`
}

// Edge is a citation from a paper. Target is the cited paper's ID when
// resolved, otherwise the ID of a stub node.
type Edge struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Resolved bool   `json:"resolved"`
}

// Totals counts the graph's contents.
type Totals struct {
	Papers     int `json:"papers"`
	Citations  int `json:"citations"`
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`
}

// IsEmpty returns true if the graph has no nodes.
func (g *GraphData) IsEmpty() bool {
	return len(g.Nodes) == 0
}
