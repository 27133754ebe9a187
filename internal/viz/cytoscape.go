package viz

import (
	"encoding/json"
	"fmt"
)

// Element is one Cytoscape.js element. Group is "nodes" or "edges" and
// Data holds a Node or an Edge.
type Element struct {
	Group   string `json:"group"`
	Data    any    `json:"data"`
	Classes string `json:"classes,omitempty"`
}

// Elements flattens the graph into Cytoscape.js elements, nodes first.
// Edges without an ID get "<source>-<target>-<index>". Unresolved edges
// carry the "unresolved" class.
func (g *GraphData) Elements() []Element {
	out := make([]Element, 0, len(g.Nodes)+len(g.Edges))
	for _, n := range g.Nodes {
		out = append(out, Element{Group: "nodes", Data: n, Classes: n.Type})
	}
	for i, e := range g.Edges {
		if e.ID == "" {
			e.ID = fmt.Sprintf("%s-%s-%d", e.Source, e.Target, i)
		}
		el := Element{Group: "edges", Data: e}
		if !e.Resolved {
			el.Classes = "unresolved"
		}
		out = append(out, el)
	}
	return out
}

// ToCytoscapeJSON encodes Elements as a JSON array.
func (g *GraphData) ToCytoscapeJSON() (string, error) {
	b, err := json.Marshal(g.Elements())
	if err != nil {
		return "", fmt.Errorf("encoding graph elements: %w", err)
	}
	return string(b), nil
}
