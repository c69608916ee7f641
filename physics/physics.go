// Package physics runs the force-directed layout that positions scheme
// nodes. The integration follows the d3-force velocity Verlet scheme:
// every tick alpha decays towards AlphaTarget, each force adjusts node
// velocities, and velocities are damped and added to positions.
package physics

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/TFMV/stitchgraph/models"
	"github.com/TFMV/stitchgraph/observable"
)

const (
	DefaultAlphaMin      = 0.001
	DefaultVelocityDecay = 0.4
	DefaultCooldownTime  = 15 * time.Second

	// Phyllotaxis placement for nodes without coordinates.
	initialRadius = 10.0
)

var initialAngle = math.Pi * (3 - math.Sqrt(5))

// Simulation owns the graph cell and advances the layout one tick at a time.
// It is driven by the frame loop and is not safe for concurrent use.
type Simulation struct {
	Graph          *observable.Cell[*models.Graph, *Simulation]
	AlphaTarget    *observable.Cell[float64, *Simulation]
	OnFinishUpdate *observable.Cell[func(), *Simulation]

	// CooldownTicks stops the engine after that many ticks; negative means
	// no limit.
	CooldownTicks *observable.Cell[int, *Simulation]
	CooldownTime  *observable.Cell[time.Duration, *Simulation]

	alpha         float64
	alphaMin      float64
	alphaDecay    float64
	velocityDecay float64

	forces     map[string]Force
	forceOrder []string

	running   bool
	destroyed bool
	cntTicks  int
	startTick time.Time

	now    func() time.Time
	jiggle Jiggler
	logger *slog.Logger
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithClock replaces time.Now, used for cooldown accounting.
func WithClock(now func() time.Time) Option {
	return func(s *Simulation) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulation) { s.logger = l }
}

// WithSeed seeds the noise used to separate coincident nodes.
func WithSeed(seed int64) Option {
	return func(s *Simulation) { s.jiggle = noiseJiggle(seed) }
}

// WithAlphaMin sets the alpha below which the engine stops.
func WithAlphaMin(v float64) Option {
	return func(s *Simulation) {
		s.alphaMin = v
		s.alphaDecay = alphaDecayFor(v)
	}
}

// WithVelocityDecay sets the fraction of velocity lost every tick.
func WithVelocityDecay(v float64) Option {
	return func(s *Simulation) { s.velocityDecay = 1 - v }
}

// alphaDecayFor reaches alphaMin after 300 ticks.
func alphaDecayFor(alphaMin float64) float64 {
	if alphaMin <= 0 {
		return 1 - math.Pow(DefaultAlphaMin, 1.0/300)
	}
	return 1 - math.Pow(alphaMin, 1.0/300)
}

// New creates a simulation over g. A nil graph is replaced by an empty one.
func New(g *models.Graph, opts ...Option) *Simulation {
	if g == nil {
		g = models.NewGraph("")
	}
	s := &Simulation{
		alpha:         1,
		alphaMin:      DefaultAlphaMin,
		alphaDecay:    alphaDecayFor(DefaultAlphaMin),
		velocityDecay: 1 - DefaultVelocityDecay,
		forces:        make(map[string]Force),
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.jiggle == nil {
		s.jiggle = noiseJiggle(1)
	}

	s.Graph = observable.New(s, g, func(*models.Graph, *models.Graph) { s.update() })
	s.AlphaTarget = observable.New(s, 0.0)
	s.OnFinishUpdate = observable.New[func()](s, nil)
	s.CooldownTicks = observable.New(s, -1)
	s.CooldownTime = observable.New(s, DefaultCooldownTime)

	s.update()
	return s
}

// update re-initialises the engine for new graph data and reheats it.
func (s *Simulation) update() {
	if s.destroyed {
		return
	}
	g := s.Graph.Value()
	s.initializeNodes(g.Nodes)
	for _, name := range s.forceOrder {
		s.forces[name].Initialize(g.Nodes, g.Links, s.jiggle)
	}
	s.alpha = 1
	s.ResetCountdown()

	s.logger.Debug("simulation updated", "nodes", len(g.Nodes), "links", len(g.Links))
	if fn := s.OnFinishUpdate.Value(); fn != nil {
		fn()
	}
}

func (s *Simulation) initializeNodes(nodes []*models.Node) {
	for i, n := range nodes {
		if n.FX != nil {
			n.X = *n.FX
		}
		if n.FY != nil {
			n.Y = *n.FY
		}
		if !n.Placed {
			radius := initialRadius * math.Sqrt(0.5+float64(i))
			angle := float64(i) * initialAngle
			if n.FX == nil {
				n.X = radius * math.Cos(angle)
			}
			if n.FY == nil {
				n.Y = radius * math.Sin(angle)
			}
			n.VX, n.VY = 0, 0
			n.Placed = true
		}
	}
}

// CreateLinkForce installs a fresh link force under name and returns it.
func (s *Simulation) CreateLinkForce(name string) *LinkForce {
	f := NewLinkForce()
	s.SetForce(name, f)
	return f
}

// SetForce installs f under name, replacing any previous force with that
// name. The force is initialised with the current graph.
func (s *Simulation) SetForce(name string, f Force) *Simulation {
	if _, ok := s.forces[name]; !ok {
		s.forceOrder = append(s.forceOrder, name)
	}
	s.forces[name] = f
	g := s.Graph.Value()
	f.Initialize(g.Nodes, g.Links, s.jiggle)
	return s
}

// Force returns the force installed under name.
func (s *Simulation) Force(name string) (Force, bool) {
	f, ok := s.forces[name]
	return f, ok
}

// RemoveForce uninstalls the force under name.
func (s *Simulation) RemoveForce(name string) *Simulation {
	if _, ok := s.forces[name]; !ok {
		return s
	}
	delete(s.forces, name)
	for i, n := range s.forceOrder {
		if n == name {
			s.forceOrder = append(s.forceOrder[:i], s.forceOrder[i+1:]...)
			break
		}
	}
	return s
}

// ForceNames lists installed forces in sorted order.
func (s *Simulation) ForceNames() []string {
	names := append([]string(nil), s.forceOrder...)
	sort.Strings(names)
	return names
}

// Alpha returns the current alpha.
func (s *Simulation) Alpha() float64 {
	return s.alpha
}

// IsEngineRunning reports whether Tick still advances the layout.
func (s *Simulation) IsEngineRunning() bool {
	return s.running
}

// ResetCountdown restarts the cooldown counters and the engine.
func (s *Simulation) ResetCountdown() *Simulation {
	if s.destroyed {
		return s
	}
	s.cntTicks = 0
	s.startTick = s.now()
	s.running = true
	return s
}

// Reheat sets alpha back to 1 and restarts the engine.
func (s *Simulation) Reheat() *Simulation {
	s.alpha = 1
	return s.ResetCountdown()
}

// Tick advances the layout one step, or stops the engine when the cooldown
// is exhausted.
func (s *Simulation) Tick() {
	if !s.running {
		return
	}
	s.cntTicks++
	limit := s.CooldownTicks.Value()
	if (limit >= 0 && s.cntTicks > limit) ||
		s.now().Sub(s.startTick) > s.CooldownTime.Value() ||
		(s.alphaMin > 0 && s.alpha < s.alphaMin) {
		s.running = false
		s.logger.Debug("simulation engine stopped", "ticks", s.cntTicks-1, "alpha", s.alpha)
		return
	}
	s.step()
}

func (s *Simulation) step() {
	s.alpha += (s.AlphaTarget.Value() - s.alpha) * s.alphaDecay
	for _, name := range s.forceOrder {
		s.forces[name].Apply(s.alpha)
	}

	for _, n := range s.Graph.Value().Nodes {
		if n.FX == nil {
			n.VX *= s.velocityDecay
			n.X += n.VX
		} else {
			n.X = *n.FX
			n.VX = 0
		}
		if n.FY == nil {
			n.VY *= s.velocityDecay
			n.Y += n.VY
		} else {
			n.Y = *n.FY
			n.VY = 0
		}
	}
}

// Destroy stops the engine and drops every force. Further ticks are no-ops.
func (s *Simulation) Destroy() {
	s.running = false
	s.destroyed = true
	s.forces = make(map[string]Force)
	s.forceOrder = nil
}
