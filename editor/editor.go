// Package editor applies structural edits to the graph held by a
// simulation and keeps every node's adjacency caches in step. Each edit
// fires exactly one change notification on the graph cell, after the
// model is consistent again.
package editor

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/TFMV/stitchgraph/models"
	"github.com/TFMV/stitchgraph/physics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gonum.org/v1/gonum/spatial/r2"
)

const (
	// NavigationDepth bounds the neighbourhood searched by
	// ClosestByDirection.
	NavigationDepth = 4
)

// ErrNodeNotFound is returned when a link endpoint is not part of the graph.
var ErrNodeNotFound = errors.New("node not found")

// coneCos is the cosine of the half-angle of the navigation cone.
var coneCos = math.Cos(math.Pi / 4)

// defaultDirection replaces a zero navigation direction.
var defaultDirection = r2.Vec{X: 1, Y: 0}

var editsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stitchgraph_editor_edits_total",
	Help: "Structural graph edits by operation",
}, []string{"op"})

// Controller edits the graph of one simulation. It is not safe for
// concurrent use.
type Controller struct {
	sim    *physics.Simulation
	logger *slog.Logger
}

// New creates an editor over sim and rebuilds the adjacency caches of the
// current graph.
func New(sim *physics.Simulation, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{sim: sim, logger: logger.With("component", "editor")}
	c.RebuildNeighborhoods()
	return c
}

// Graph returns the graph currently held by the simulation.
func (c *Controller) Graph() *models.Graph {
	return c.sim.Graph.Value()
}

// Simulation returns the edited simulation.
func (c *Controller) Simulation() *physics.Simulation {
	return c.sim
}

func (c *Controller) commit(op string) {
	c.Graph().Touch()
	editsTotal.WithLabelValues(op).Inc()
	c.sim.Graph.TriggerChange()
}

// AddNode appends n with the next free id. A nil n adds an empty node.
func (c *Controller) AddNode(n *models.Node) *models.Node {
	if n == nil {
		n = &models.Node{}
	}
	g := c.Graph()
	n.ID = g.NextNodeID()
	n.Neighbors = nil
	n.Links = nil
	g.Nodes = append(g.Nodes, n)

	c.logger.Debug("node added", "id", n.ID, "kind", n.Kind)
	c.commit("add_node")
	return n
}

// AddLink joins from and to with l, which may be nil. Both endpoints must
// already be in the graph; otherwise ErrNodeNotFound is returned and the
// graph is left untouched.
func (c *Controller) AddLink(l *models.Link, from, to *models.Node) (*models.Link, error) {
	g := c.Graph()
	if !g.ContainsNode(from) {
		return nil, fmt.Errorf("link source: %w", ErrNodeNotFound)
	}
	if !g.ContainsNode(to) {
		return nil, fmt.Errorf("link target: %w", ErrNodeNotFound)
	}
	if l == nil {
		l = &models.Link{}
	}
	l.ID = g.NextLinkID()
	l.Source = from
	l.Target = to
	g.Links = append(g.Links, l)
	c.UpdateLocalNeighborhoods([]*models.Link{l})

	c.logger.Debug("link added", "id", l.ID, "source", from.ID, "target", to.ID, "kind", l.Kind)
	c.commit("add_link")
	return l, nil
}

// RemoveNode removes the node with the given id and every incident link.
// It returns nil when no such node exists.
func (c *Controller) RemoveNode(id int) *models.Node {
	idx := c.Graph().NodeIndex(id)
	if idx < 0 {
		return nil
	}
	return c.removeNodeAt(idx, "remove_node")
}

// RemoveLastNode removes the most recently appended node.
func (c *Controller) RemoveLastNode() *models.Node {
	g := c.Graph()
	if len(g.Nodes) == 0 {
		return nil
	}
	return c.removeNodeAt(len(g.Nodes)-1, "remove_last_node")
}

func (c *Controller) removeNodeAt(idx int, op string) *models.Node {
	g := c.Graph()
	n := g.Nodes[idx]

	incident := make(map[*models.Link]bool, len(n.Links))
	for _, l := range n.Links {
		incident[l] = true
	}
	c.cleanupLocalNeighborhoods(incident)

	kept := g.Links[:0]
	for _, l := range g.Links {
		if !incident[l] {
			kept = append(kept, l)
		}
	}
	for i := len(kept); i < len(g.Links); i++ {
		g.Links[i] = nil
	}
	g.Links = kept
	g.Nodes = append(g.Nodes[:idx], g.Nodes[idx+1:]...)

	c.logger.Debug("node removed", "id", n.ID, "links", len(incident))
	c.commit(op)
	return n
}

// RemoveLink removes the link with the given id. It returns nil when no
// such link exists.
func (c *Controller) RemoveLink(id int) *models.Link {
	idx := c.Graph().LinkIndex(id)
	if idx < 0 {
		return nil
	}
	return c.removeLinkAt(idx, "remove_link")
}

// RemoveLastLink removes the most recently appended link.
func (c *Controller) RemoveLastLink() *models.Link {
	g := c.Graph()
	if len(g.Links) == 0 {
		return nil
	}
	return c.removeLinkAt(len(g.Links)-1, "remove_last_link")
}

func (c *Controller) removeLinkAt(idx int, op string) *models.Link {
	g := c.Graph()
	l := g.Links[idx]
	c.cleanupLocalNeighborhoods(map[*models.Link]bool{l: true})
	g.Links = append(g.Links[:idx], g.Links[idx+1:]...)

	c.logger.Debug("link removed", "id", l.ID)
	c.commit(op)
	return l
}

// UpdateLocalNeighborhoods records links in the caches of their endpoints.
func (c *Controller) UpdateLocalNeighborhoods(links []*models.Link) {
	for _, l := range links {
		l.Attach()
	}
}

func (c *Controller) cleanupLocalNeighborhoods(links map[*models.Link]bool) {
	for l := range links {
		l.Detach()
	}
}

// RebuildNeighborhoods recomputes every adjacency cache from the link list.
func (c *Controller) RebuildNeighborhoods() {
	g := c.Graph()
	for _, n := range g.Nodes {
		n.Neighbors = nil
		n.Links = nil
	}
	c.UpdateLocalNeighborhoods(g.Links)
}

// NeighborsUpToDepth returns the nodes reachable from n in at most depth
// hops, excluding n, in breadth-first order.
func NeighborsUpToDepth(n *models.Node, depth int) []*models.Node {
	type entry struct {
		node  *models.Node
		depth int
	}
	visited := map[*models.Node]bool{n: true}
	queue := []entry{{n, 0}}
	var result []*models.Node

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= depth {
			continue
		}
		for _, nb := range cur.node.Neighbors {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			result = append(result, nb)
			queue = append(queue, entry{nb, cur.depth + 1})
		}
	}
	return result
}

// ClosestByDirection returns the nearest node within NavigationDepth hops
// of n that lies inside the 90° cone around (dx, dy). A node exactly on
// the cone boundary does not qualify. n itself is returned when nothing
// qualifies.
func (c *Controller) ClosestByDirection(n *models.Node, dx, dy float64) *models.Node {
	if n == nil || !n.Placed {
		return n
	}
	dir := r2.Vec{X: dx, Y: dy}
	if norm := r2.Norm(dir); norm == 0 || math.IsNaN(norm) {
		dir = defaultDirection
	} else {
		dir = r2.Scale(1/norm, dir)
	}

	origin := r2.Vec{X: n.X, Y: n.Y}
	best := n
	bestDist := math.Inf(1)
	for _, nb := range NeighborsUpToDepth(n, NavigationDepth) {
		if !nb.Placed {
			continue
		}
		d := r2.Sub(r2.Vec{X: nb.X, Y: nb.Y}, origin)
		dist2 := r2.Norm2(d)
		if dist2 == 0 {
			continue
		}
		if r2.Dot(d, dir) > coneCos*math.Sqrt(dist2) && dist2 < bestDist {
			best = nb
			bestDist = dist2
		}
	}
	return best
}
