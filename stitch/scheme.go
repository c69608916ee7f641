// Package stitch builds crochet schemes on top of the graph editor. A
// scheme keeps two focus stitches: new stitches grow from the start focus,
// and links reach back to the target focus.
package stitch

import (
	"log/slog"
	"math"
	"math/rand"

	"github.com/TFMV/stitchgraph/editor"
	"github.com/TFMV/stitchgraph/models"
	"github.com/TFMV/stitchgraph/physics"
	"gonum.org/v1/gonum/spatial/r2"
)

// Link kinds.
const (
	KindChain       = "chain"
	KindDirect      = "direct"
	KindCrochet     = "crochet"
	KindCrochetSide = "crochetSide"

	// NodeKind is the kind of every stitch node.
	NodeKind = "stitch"
)

// Force names installed on the simulation.
const (
	ForceStitches = "stitches"
	ForceCharge   = "charge"
)

const (
	DefaultCharge = -30.0

	// New stitches are placed this far right of the start focus, with up
	// to half the jitter above or below it.
	stitchOffset = 10.0
	stitchJitter = 10.0
)

// DefaultDistances are the approximate rest lengths per link kind.
func DefaultDistances() map[string]float64 {
	return map[string]float64{
		KindDirect:      1,
		KindChain:       2,
		KindCrochet:     5,
		KindCrochetSide: 1,
	}
}

// Scheme is the crochet editing session over one graph.
type Scheme struct {
	editor *editor.Controller
	start  *models.Node
	target *models.Node

	distances map[string]float64
	charge    float64
	rng       *rand.Rand
	logger    *slog.Logger
}

// Option configures a Scheme.
type Option func(*Scheme)

// WithDistances overrides rest lengths per link kind.
func WithDistances(d map[string]float64) Option {
	return func(s *Scheme) {
		for k, v := range d {
			s.distances[k] = v
		}
	}
}

// WithCharge sets the many-body strength.
func WithCharge(v float64) Option {
	return func(s *Scheme) { s.charge = v }
}

// WithSeed seeds the vertical jitter of new stitches.
func WithSeed(seed int64) Option {
	return func(s *Scheme) { s.rng = rand.New(rand.NewSource(seed)) }
}

// WithLogger sets the logger for stitch and navigation events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheme) { s.logger = l }
}

// New installs the stitch forces on the editor's simulation and focuses
// both foci on the last node.
func New(ed *editor.Controller, opts ...Option) *Scheme {
	s := &Scheme{
		editor:    ed,
		distances: DefaultDistances(),
		charge:    DefaultCharge,
		rng:       rand.New(rand.NewSource(1)),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "stitch")

	sim := ed.Simulation()
	sim.CreateLinkForce(ForceStitches).Distance(s.Distance)
	sim.SetForce(ForceCharge, physics.NewManyBodyForce().Strength(s.charge))

	if nodes := ed.Graph().Nodes; len(nodes) > 0 {
		last := nodes[len(nodes)-1]
		s.start, s.target = last, last
	}
	return s
}

// Distance returns the rest length of l, 1 for unknown kinds.
func (s *Scheme) Distance(l *models.Link) float64 {
	if d, ok := s.distances[l.Kind]; ok {
		return d
	}
	return 1
}

// Editor returns the underlying graph editor.
func (s *Scheme) Editor() *editor.Controller { return s.editor }

// StartStitch returns the stitch new stitches grow from.
func (s *Scheme) StartStitch() *models.Node { return s.start }

// SetStartStitch moves the start focus.
func (s *Scheme) SetStartStitch(n *models.Node) { s.start = n }

// TargetStitch returns the stitch links reach back to.
func (s *Scheme) TargetStitch() *models.Node { return s.target }

// SetTargetStitch moves the target focus.
func (s *Scheme) SetTargetStitch(n *models.Node) { s.target = n }

// newStitch adds a node next to the start focus, or at the origin for the
// first stitch of an empty scheme.
func (s *Scheme) newStitch() *models.Node {
	var x, y float64
	if s.start != nil {
		x = s.start.X + stitchOffset
		y = s.start.Y - stitchJitter/2 + stitchJitter*s.rng.Float64()
	}
	return s.editor.AddNode(models.NewNodeAt(NodeKind, x, y))
}

func (s *Scheme) link(kind string, from, to *models.Node) *models.Link {
	l, err := s.editor.AddLink(&models.Link{Kind: kind}, from, to)
	if err != nil {
		s.logger.Warn("stitch link rejected", "kind", kind, "error", err)
		return nil
	}
	return l
}

// AddChainStitch grows a chain stitch from the start focus and moves the
// start focus onto it.
func (s *Scheme) AddChainStitch() *models.Node {
	n := s.newStitch()
	if s.start != nil {
		s.link(KindChain, s.start, n)
	}
	if s.target == nil {
		s.target = n
	}
	s.start = n
	return n
}

// canJoin reports whether start and target are distinct and not yet linked.
func (s *Scheme) canJoin() bool {
	if s.start == nil || s.target == nil || s.start == s.target {
		return false
	}
	for _, l := range s.start.Links {
		if l.Touches(s.target) {
			return false
		}
	}
	return true
}

// AddDirectLinkStitch links the start focus straight to the target focus.
func (s *Scheme) AddDirectLinkStitch() *models.Link {
	if !s.canJoin() {
		return nil
	}
	return s.link(KindDirect, s.start, s.target)
}

// AddCrochetStitch adds a stitch beside the start focus that is worked
// into the target focus.
func (s *Scheme) AddCrochetStitch() *models.Node {
	if !s.canJoin() {
		return nil
	}
	n := s.newStitch()
	s.link(KindCrochet, n, s.target)
	s.link(KindCrochetSide, s.start, n)
	return n
}

// RemoveLastStitch removes the newest node and refocuses any focus that
// pointed at it onto the new last node.
func (s *Scheme) RemoveLastStitch() *models.Node {
	removed := s.editor.RemoveLastNode()
	if removed == nil {
		return nil
	}
	var last *models.Node
	if nodes := s.editor.Graph().Nodes; len(nodes) > 0 {
		last = nodes[len(nodes)-1]
	}
	if s.start == removed {
		s.start = last
	}
	if s.target == removed {
		s.target = last
	}
	return removed
}

// Move moves the start focus (or the target focus) to the closest stitch
// in direction (dx, dy). It reports whether the focus changed.
func (s *Scheme) Move(start bool, dx, dy float64) bool {
	cur := s.target
	if start {
		cur = s.start
	}
	if cur == nil {
		return false
	}
	next := s.editor.ClosestByDirection(cur, dx, dy)
	if next == cur {
		return false
	}
	if start {
		s.start = next
	} else {
		s.target = next
	}
	return true
}

// moveAround moves sideways, trying screen left or right first and then
// the tangent of the circle around the origin through the focus.
func (s *Scheme) moveAround(start bool, left bool) bool {
	dx := 1.0
	if left {
		dx = -1
	}
	if s.Move(start, dx, 0) {
		return true
	}

	cur := s.target
	if start {
		cur = s.start
	}
	if cur == nil {
		return false
	}
	pos := r2.Vec{X: cur.X, Y: cur.Y}
	mag := r2.Norm(pos)
	if mag == 0 || math.IsNaN(mag) {
		return false
	}
	u := r2.Scale(1/mag, pos)
	if left {
		return s.Move(start, u.Y, -u.X)
	}
	return s.Move(start, -u.Y, u.X)
}

// HandleKey applies one key press. Arrow keys move the target focus, or
// the start focus while shift is held. It reports whether anything
// changed.
func (s *Scheme) HandleKey(key string, shift bool) bool {
	switch key {
	case "ArrowUp":
		return s.Move(shift, 0, -1)
	case "ArrowDown":
		return s.Move(shift, 0, 1)
	case "ArrowLeft":
		return s.moveAround(shift, true)
	case "ArrowRight":
		return s.moveAround(shift, false)
	case "c":
		return s.AddChainStitch() != nil
	case "l":
		return s.AddDirectLinkStitch() != nil
	case "x":
		return s.AddCrochetStitch() != nil
	case "Backspace":
		return s.RemoveLastStitch() != nil
	}
	return false
}
