package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewGraph creates an empty graph with a unique ID and timestamps
func NewGraph(name string) *Graph {
	now := time.Now()
	return &Graph{
		ID:        uuid.New().String(),
		Name:      name,
		Nodes:     []*Node{},
		Links:     []*Link{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewNode creates an unplaced node. The ID is assigned when the node is
// added to a graph.
func NewNode(kind, label string) *Node {
	return &Node{Kind: kind, Label: label}
}

// NewNodeAt creates a node with resolved coordinates.
func NewNodeAt(kind string, x, y float64) *Node {
	n := NewNode(kind, "")
	n.SetPosition(x, y)
	return n
}

// NewLink creates a link between two nodes. The ID is assigned when the
// link is added to a graph.
func NewLink(kind string, source, target *Node) *Link {
	return &Link{Kind: kind, Source: source, Target: target}
}

// SetPosition moves the node and marks it placed.
func (n *Node) SetPosition(x, y float64) {
	n.X = x
	n.Y = y
	n.Placed = true
}

// Pin fixes the node at (x, y).
func (n *Node) Pin(x, y float64) {
	n.FX = &x
	n.FY = &y
}

// Unpin releases both pinned coordinates.
func (n *Node) Unpin() {
	n.FX = nil
	n.FY = nil
}

// IsPinned reports whether either coordinate is pinned.
func (n *Node) IsPinned() bool {
	return n.FX != nil || n.FY != nil
}

// Degree returns the number of incident links.
func (n *Node) Degree() int {
	return len(n.Links)
}

// Touches reports whether n is an endpoint of the link.
func (l *Link) Touches(n *Node) bool {
	return l.Source == n || l.Target == n
}

// Other returns the endpoint opposite n, or nil if n is not an endpoint.
func (l *Link) Other(n *Node) *Node {
	switch n {
	case l.Source:
		return l.Target
	case l.Target:
		return l.Source
	}
	return nil
}

// Resolved reports whether both endpoints exist and have coordinates.
func (l *Link) Resolved() bool {
	return l.Source != nil && l.Target != nil && l.Source.Placed && l.Target.Placed
}

// Attach records l in the adjacency caches of both endpoints.
func (l *Link) Attach() {
	l.Source.Neighbors = append(l.Source.Neighbors, l.Target)
	l.Target.Neighbors = append(l.Target.Neighbors, l.Source)
	l.Source.Links = append(l.Source.Links, l)
	l.Target.Links = append(l.Target.Links, l)
}

// Detach removes l from the adjacency caches of both endpoints. One
// neighbour entry is removed per endpoint so parallel links keep theirs.
func (l *Link) Detach() {
	l.Source.detach(l, l.Target)
	if l.Target != l.Source {
		l.Target.detach(l, l.Source)
	}
}

func (n *Node) detach(l *Link, other *Node) {
	// A self-loop was recorded twice in both caches.
	count := 1
	if l.Source == l.Target {
		count = 2
	}
	for i := 0; i < count; i++ {
		n.Links = removeFirst(n.Links, l)
		n.Neighbors = removeFirst(n.Neighbors, other)
	}
}

func removeFirst[T comparable](s []T, v T) []T {
	for i, cur := range s {
		if cur == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// Touch bumps the graph's UpdatedAt timestamp.
func (g *Graph) Touch() {
	g.UpdatedAt = time.Now()
}

// NextNodeID returns one past the largest node id.
func (g *Graph) NextNodeID() int {
	next := 0
	for _, n := range g.Nodes {
		if n.ID >= next {
			next = n.ID + 1
		}
	}
	return next
}

// NextLinkID returns one past the largest link id.
func (g *Graph) NextLinkID() int {
	next := 0
	for _, l := range g.Links {
		if l.ID >= next {
			next = l.ID + 1
		}
	}
	return next
}

// Export converts the graph into its serialisable form.
func (g *Graph) Export() *SerializableGraph {
	out := &SerializableGraph{
		ID:    g.ID,
		Name:  g.Name,
		Nodes: make([]Node, 0, len(g.Nodes)),
		Links: make([]SerializableLink, 0, len(g.Links)),
	}
	for _, n := range g.Nodes {
		cp := *n
		cp.Neighbors = nil
		cp.Links = nil
		out.Nodes = append(out.Nodes, cp)
	}
	for _, l := range g.Links {
		out.Links = append(out.Links, SerializableLink{
			ID:       l.ID,
			Source:   l.Source.ID,
			Target:   l.Target.ID,
			Kind:     l.Kind,
			Strength: l.Strength,
			Distance: l.Distance,
			Data:     l.Data,
		})
	}
	return out
}

// Import builds a graph from its serialisable form, resolving link
// endpoints and filling adjacency caches. Nodes are treated as placed;
// callers that know better reset Placed afterwards.
func Import(s *SerializableGraph) (*Graph, error) {
	g := NewGraph(s.Name)
	if s.ID != "" {
		g.ID = s.ID
	}

	byID := make(map[int]*Node, len(s.Nodes))
	for i := range s.Nodes {
		n := s.Nodes[i]
		if _, dup := byID[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %d", n.ID)
		}
		n.Neighbors = nil
		n.Links = nil
		n.Placed = true
		node := &n
		byID[n.ID] = node
		g.Nodes = append(g.Nodes, node)
	}

	seen := make(map[int]bool, len(s.Links))
	for _, sl := range s.Links {
		if seen[sl.ID] {
			return nil, fmt.Errorf("duplicate link id %d", sl.ID)
		}
		seen[sl.ID] = true

		source, ok := byID[sl.Source]
		if !ok {
			return nil, fmt.Errorf("link %d: source node %d does not exist", sl.ID, sl.Source)
		}
		target, ok := byID[sl.Target]
		if !ok {
			return nil, fmt.Errorf("link %d: target node %d does not exist", sl.ID, sl.Target)
		}
		l := &Link{
			ID:       sl.ID,
			Source:   source,
			Target:   target,
			Kind:     sl.Kind,
			Strength: sl.Strength,
			Distance: sl.Distance,
			Data:     sl.Data,
		}
		l.Attach()
		g.Links = append(g.Links, l)
	}
	return g, nil
}

// Clone returns a deep copy of g with its own nodes, links and caches.
// Data maps are shared. Identity colours are not copied, so a clone
// registers as a fresh graph.
func (g *Graph) Clone() *Graph {
	out, err := Import(g.Export())
	if err != nil {
		// Export of a consistent graph always imports.
		panic(fmt.Sprintf("models: clone of inconsistent graph: %v", err))
	}
	for i, n := range g.Nodes {
		out.Nodes[i].Placed = n.Placed
		if n.FX != nil {
			fx := *n.FX
			out.Nodes[i].FX = &fx
		}
		if n.FY != nil {
			fy := *n.FY
			out.Nodes[i].FY = &fy
		}
	}
	out.CreatedAt = g.CreatedAt
	out.UpdatedAt = g.UpdatedAt
	return out
}
