package models

// NodeFilter is a function type used to filter nodes in queries
type NodeFilter func(node *Node) bool

// LinkFilter is a function type used to filter links in queries
type LinkFilter func(link *Link) bool

// FindNodeByID returns a node by its ID
func (g *Graph) FindNodeByID(id int) (*Node, bool) {
	if i := g.NodeIndex(id); i >= 0 {
		return g.Nodes[i], true
	}
	return nil, false
}

// FindLinkByID returns a link by its ID
func (g *Graph) FindLinkByID(id int) (*Link, bool) {
	if i := g.LinkIndex(id); i >= 0 {
		return g.Links[i], true
	}
	return nil, false
}

// NodeIndex returns the position of the node in Nodes, or -1.
func (g *Graph) NodeIndex(id int) int {
	for i, n := range g.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// LinkIndex returns the position of the link in Links, or -1.
func (g *Graph) LinkIndex(id int) int {
	for i, l := range g.Links {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// ContainsNode reports whether n itself (not just its id) is in the graph.
func (g *Graph) ContainsNode(n *Node) bool {
	if n == nil {
		return false
	}
	for _, cur := range g.Nodes {
		if cur == n {
			return true
		}
	}
	return false
}

// LinksBetween returns every link joining a and b in either direction.
func (g *Graph) LinksBetween(a, b *Node) []*Link {
	var result []*Link
	for _, l := range a.Links {
		if l.Other(a) == b {
			result = append(result, l)
		}
	}
	return result
}

// OutgoingLinks returns the links whose source is n.
func (n *Node) OutgoingLinks() []*Link {
	var result []*Link
	for _, l := range n.Links {
		if l.Source == n {
			result = append(result, l)
		}
	}
	return result
}

// FilterNodes returns nodes that match the provided filter function
func (g *Graph) FilterNodes(filter NodeFilter) []*Node {
	var result []*Node
	for _, n := range g.Nodes {
		if filter(n) {
			result = append(result, n)
		}
	}
	return result
}

// FilterLinks returns links that match the provided filter function
func (g *Graph) FilterLinks(filter LinkFilter) []*Link {
	var result []*Link
	for _, l := range g.Links {
		if filter(l) {
			result = append(result, l)
		}
	}
	return result
}

// ConnectedNodes returns the distinct neighbours of n in cache order.
func (n *Node) ConnectedNodes() []*Node {
	seen := make(map[*Node]bool, len(n.Neighbors))
	var result []*Node
	for _, nb := range n.Neighbors {
		if !seen[nb] {
			seen[nb] = true
			result = append(result, nb)
		}
	}
	return result
}
