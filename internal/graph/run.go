package graph

import (
	"fmt"
	"strings"

	"github.com/matsen/citegraph/internal/paper"
)

// Mode selects the frontier discipline of a traversal.
type Mode string

const (
	BreadthFirst Mode = "bfs"
	DepthFirst   Mode = "dfs"
)

// ParseMode parses "bfs"/"dfs" (also "breadth-first"/"depth-first").
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bfs", "breadth-first", "breadth_first":
		return BreadthFirst, nil
	case "dfs", "depth-first", "depth_first":
		return DepthFirst, nil
	}
	return "", fmt.Errorf("unknown traversal mode %q (want bfs or dfs)", s)
}

// Stats are the aggregate counters of one traversal.
type Stats struct {
	NodesProcessed int `json:"nodes_processed"`
	EdgesCreated   int `json:"edges_created"`
	PapersAdded    int `json:"papers_added"`
	DepthReached   int `json:"depth_reached"`
}

// Run is the per-traversal state: visited set and frontier. It is created
// by Traverse and never shared between traversals.
type Run struct {
	Mode     Mode
	MaxDepth int

	visited  map[string]bool
	frontier frontier
}

// NewRun creates empty traversal state.
func NewRun(mode Mode, maxDepth int) *Run {
	r := &Run{Mode: mode, MaxDepth: maxDepth, visited: make(map[string]bool)}
	if mode == DepthFirst {
		r.frontier = &stack{}
	} else {
		r.frontier = &queue{}
	}
	return r
}

// Visited reports whether the paper has been expanded in this run.
func (r *Run) Visited(paperID string) bool {
	return r.visited[paperID]
}

// markVisited records the Visiting transition. It returns false if the
// paper was already visited.
func (r *Run) markVisited(paperID string) bool {
	if r.visited[paperID] {
		return false
	}
	r.visited[paperID] = true
	return true
}

// VisitedCount returns the number of expanded papers.
func (r *Run) VisitedCount() int {
	return len(r.visited)
}

type node struct {
	paper *paper.Paper
	depth int
}

// frontier holds the not-yet-expanded nodes.
type frontier interface {
	push(nodes ...node)
	pop() (node, bool)
	len() int
}

// queue is a FIFO frontier.
type queue struct {
	items []node
	head  int
}

func (q *queue) push(nodes ...node) {
	q.items = append(q.items, nodes...)
}

func (q *queue) pop() (node, bool) {
	if q.head >= len(q.items) {
		return node{}, false
	}
	n := q.items[q.head]
	q.items[q.head] = node{}
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return n, true
}

func (q *queue) len() int { return len(q.items) - q.head }

// stack is a LIFO frontier. push keeps the first argument on top so
// siblings are expanded in discovery order.
type stack struct {
	items []node
}

func (s *stack) push(nodes ...node) {
	for i := len(nodes) - 1; i >= 0; i-- {
		s.items = append(s.items, nodes[i])
	}
}

func (s *stack) pop() (node, bool) {
	if len(s.items) == 0 {
		return node{}, false
	}
	n := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return n, true
}

func (s *stack) len() int { return len(s.items) }
