package physics

import (
	"math"

	"github.com/TFMV/stitchgraph/models"
)

// Force is one component of the layout. Initialize is called whenever the
// graph data changes; Apply adjusts node velocities for the given alpha.
type Force interface {
	Initialize(nodes []*models.Node, links []*models.Link, jiggle Jiggler)
	Apply(alpha float64)
}

// defaultLinkDistance matches the d3 link force.
const defaultLinkDistance = 30.0

// LinkForce pulls linked nodes towards a target distance.
type LinkForce struct {
	distance func(*models.Link) float64
	strength func(*models.Link) float64

	links     []*models.Link
	distances []float64
	strengths []float64
	bias      []float64
	count     map[*models.Node]int
	jiggle    Jiggler
}

// NewLinkForce creates a link force. Per-link Distance and Strength fields
// override the defaults when non-zero.
func NewLinkForce() *LinkForce {
	f := &LinkForce{}
	f.distance = func(l *models.Link) float64 {
		if l.Distance > 0 {
			return l.Distance
		}
		return defaultLinkDistance
	}
	f.strength = func(l *models.Link) float64 {
		if l.Strength > 0 {
			return l.Strength
		}
		return 1 / float64(max(1, min(f.count[l.Source], f.count[l.Target])))
	}
	return f
}

// Distance sets the per-link target distance accessor.
func (f *LinkForce) Distance(fn func(*models.Link) float64) *LinkForce {
	f.distance = fn
	f.refresh()
	return f
}

// Strength sets the per-link strength accessor.
func (f *LinkForce) Strength(fn func(*models.Link) float64) *LinkForce {
	f.strength = fn
	f.refresh()
	return f
}

// DistanceOf returns the target distance for l.
func (f *LinkForce) DistanceOf(l *models.Link) float64 {
	return f.distance(l)
}

func (f *LinkForce) Initialize(_ []*models.Node, links []*models.Link, jiggle Jiggler) {
	f.jiggle = jiggle
	f.links = f.links[:0]
	for _, l := range links {
		if l.Source != nil && l.Target != nil {
			f.links = append(f.links, l)
		}
	}

	f.count = make(map[*models.Node]int, len(f.links))
	for _, l := range f.links {
		f.count[l.Source]++
		f.count[l.Target]++
	}
	f.refresh()
}

func (f *LinkForce) refresh() {
	f.distances = make([]float64, len(f.links))
	f.strengths = make([]float64, len(f.links))
	f.bias = make([]float64, len(f.links))
	for i, l := range f.links {
		s, t := float64(f.count[l.Source]), float64(f.count[l.Target])
		f.bias[i] = s / (s + t)
		f.distances[i] = f.distance(l)
		f.strengths[i] = f.strength(l)
	}
}

func (f *LinkForce) Apply(alpha float64) {
	for i, l := range f.links {
		source, target := l.Source, l.Target
		x := target.X + target.VX - source.X - source.VX
		y := target.Y + target.VY - source.Y - source.VY
		if x == 0 {
			x = f.jiggle()
		}
		if y == 0 {
			y = f.jiggle()
		}
		d := math.Sqrt(x*x + y*y)
		d = (d - f.distances[i]) / d * alpha * f.strengths[i]
		x *= d
		y *= d

		b := f.bias[i]
		target.VX -= x * b
		target.VY -= y * b
		source.VX += x * (1 - b)
		source.VY += y * (1 - b)
	}
}

// ManyBodyForce applies mutual attraction (positive strength) or repulsion
// (negative strength) between every pair of nodes.
type ManyBodyForce struct {
	strength     float64
	distanceMin2 float64
	distanceMax2 float64

	nodes  []*models.Node
	jiggle Jiggler
}

// NewManyBodyForce creates a repulsive force with the d3 defaults.
func NewManyBodyForce() *ManyBodyForce {
	return &ManyBodyForce{
		strength:     -30,
		distanceMin2: 1,
		distanceMax2: math.Inf(1),
	}
}

// Strength sets the charge applied by every node.
func (f *ManyBodyForce) Strength(s float64) *ManyBodyForce {
	f.strength = s
	return f
}

// StrengthValue returns the configured charge.
func (f *ManyBodyForce) StrengthValue() float64 {
	return f.strength
}

// DistanceMin clamps the distance used for very close pairs.
func (f *ManyBodyForce) DistanceMin(d float64) *ManyBodyForce {
	f.distanceMin2 = d * d
	return f
}

// DistanceMax ignores pairs further apart than d.
func (f *ManyBodyForce) DistanceMax(d float64) *ManyBodyForce {
	f.distanceMax2 = d * d
	return f
}

func (f *ManyBodyForce) Initialize(nodes []*models.Node, _ []*models.Link, jiggle Jiggler) {
	f.nodes = nodes
	f.jiggle = jiggle
}

func (f *ManyBodyForce) Apply(alpha float64) {
	// Pairwise O(n^2); scheme graphs stay small enough for this.
	for _, node := range f.nodes {
		for _, other := range f.nodes {
			if other == node {
				continue
			}
			x := other.X - node.X
			y := other.Y - node.Y
			l := x*x + y*y
			if l >= f.distanceMax2 {
				continue
			}
			if x == 0 {
				x = f.jiggle()
				l += x * x
			}
			if y == 0 {
				y = f.jiggle()
				l += y * y
			}
			if l < f.distanceMin2 {
				l = math.Sqrt(f.distanceMin2 * l)
			}
			w := f.strength * alpha / l
			node.VX += x * w
			node.VY += y * w
		}
	}
}

// CollideForce keeps nodes from overlapping by treating them as circles.
type CollideForce struct {
	radius   func(*models.Node) float64
	strength float64

	nodes  []*models.Node
	radii  []float64
	jiggle Jiggler
}

// NewCollideForce creates a collision force with the given radius accessor.
func NewCollideForce(radius func(*models.Node) float64) *CollideForce {
	if radius == nil {
		radius = func(*models.Node) float64 { return 1 }
	}
	return &CollideForce{radius: radius, strength: 1}
}

// Radius replaces the radius accessor.
func (f *CollideForce) Radius(fn func(*models.Node) float64) *CollideForce {
	f.radius = fn
	f.cacheRadii()
	return f
}

// Strength sets how hard overlapping nodes are pushed apart, in [0, 1].
func (f *CollideForce) Strength(s float64) *CollideForce {
	f.strength = s
	return f
}

func (f *CollideForce) Initialize(nodes []*models.Node, _ []*models.Link, jiggle Jiggler) {
	f.nodes = nodes
	f.jiggle = jiggle
	f.cacheRadii()
}

func (f *CollideForce) cacheRadii() {
	f.radii = make([]float64, len(f.nodes))
	for i, n := range f.nodes {
		f.radii[i] = f.radius(n)
	}
}

func (f *CollideForce) Apply(float64) {
	for i, a := range f.nodes {
		ri := f.radii[i]
		ri2 := ri * ri
		for j := i + 1; j < len(f.nodes); j++ {
			b := f.nodes[j]
			rj := f.radii[j]
			r := ri + rj
			x := a.X + a.VX - b.X - b.VX
			y := a.Y + a.VY - b.Y - b.VY
			l := x*x + y*y
			if l >= r*r {
				continue
			}
			if x == 0 {
				x = f.jiggle()
				l += x * x
			}
			if y == 0 {
				y = f.jiggle()
				l += y * y
			}
			d := math.Sqrt(l)
			d = (r - d) / d * f.strength
			x *= d
			y *= d
			rj2 := rj * rj
			w := rj2 / (ri2 + rj2)
			a.VX += x * w
			a.VY += y * w
			b.VX -= x * (1 - w)
			b.VY -= y * (1 - w)
		}
	}
}

// CenterForce translates all nodes so their mean position is (X, Y).
type CenterForce struct {
	X, Y     float64
	strength float64
	nodes    []*models.Node
}

// NewCenterForce creates a centring force at (x, y).
func NewCenterForce(x, y float64) *CenterForce {
	return &CenterForce{X: x, Y: y, strength: 1}
}

// Strength sets the fraction of the offset corrected per tick.
func (f *CenterForce) Strength(s float64) *CenterForce {
	f.strength = s
	return f
}

func (f *CenterForce) Initialize(nodes []*models.Node, _ []*models.Link, _ Jiggler) {
	f.nodes = nodes
}

func (f *CenterForce) Apply(float64) {
	if len(f.nodes) == 0 {
		return
	}
	var sx, sy float64
	for _, n := range f.nodes {
		sx += n.X
		sy += n.Y
	}
	n := float64(len(f.nodes))
	sx = (sx/n - f.X) * f.strength
	sy = (sy/n - f.Y) * f.strength
	for _, node := range f.nodes {
		node.X -= sx
		node.Y -= sy
	}
}
