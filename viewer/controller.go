// Package viewer is the interactive front end of a graph: it owns the
// visible and shadow canvases, the zoom transform, pointer gestures and
// the animation loop. Objects under the pointer are found by reading one
// pixel of the shadow canvas, where every node and link is painted in a
// unique identity colour, and decoding it through a colour tracker.
package viewer

import (
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/TFMV/stitchgraph/canvas"
	"github.com/TFMV/stitchgraph/colortrack"
	"github.com/TFMV/stitchgraph/models"
	"github.com/TFMV/stitchgraph/observable"
	"github.com/TFMV/stitchgraph/physics"
	"github.com/TFMV/stitchgraph/render"
	"gonum.org/v1/gonum/spatial/r2"
)

const (
	DefaultHoverThrottle   = 800 * time.Millisecond
	DefaultZoomFactor      = 4.0
	DefaultDragTolerance   = 5.0
	DefaultDragAlphaTarget = 0.3

	// Wheel delta to zoom exponent, per pixel of deltaY.
	wheelSensitivity = 0.002
)

// ErrEmptyGraph is returned by camera queries on a graph without placed
// nodes.
var ErrEmptyGraph = errors.New("graph has no placed nodes")

// offCanvas is the pointer position before the first pointer event.
var offCanvas = r2.Vec{X: -1e12, Y: -1e12}

// ObjectKind tags what an Object refers to.
type ObjectKind string

const (
	KindNode ObjectKind = "Node"
	KindLink ObjectKind = "Link"
)

// Object is a pickable graph entity.
type Object struct {
	Kind ObjectKind
	Node *models.Node
	Link *models.Link
}

// ID returns the id of the referenced node or link.
func (o *Object) ID() int {
	if o.Kind == KindNode {
		return o.Node.ID
	}
	return o.Link.ID
}

func (o *Object) String() string {
	if o == nil {
		return "background"
	}
	return fmt.Sprintf("%s %d", o.Kind, o.ID())
}

// Dimensions is the logical display size in CSS pixels.
type Dimensions struct {
	Width, Height int
}

// HoverFunc is called when the object under the pointer changes. Either
// argument is nil for the background.
type HoverFunc func(obj, prev *Object)

// ClickFunc is called when a pointer press is released without dragging.
type ClickFunc func(obj *Object, button int)

type dragState struct {
	node    *models.Node
	initX   float64
	initY   float64
	initFX  *float64
	initFY  *float64
	start   r2.Vec
	dragged bool
}

type panState struct {
	start     r2.Vec
	transform Transform
}

// Controller binds a simulation to two canvases and to pointer input.
// Every method must be called from the goroutine that runs frames; use
// Loop.Do to call in from elsewhere.
type Controller struct {
	Graph                  *observable.Linked[*models.Graph, *Controller]
	Dimensions             *observable.Cell[Dimensions, *Controller]
	BackgroundColor        *observable.Cell[string, *Controller]
	AutoPauseRedraw        *observable.Cell[bool, *Controller]
	MouseControlsEnabled   *observable.Cell[bool, *Controller]
	NodeDragEnabled        *observable.Cell[bool, *Controller]
	ZoomInteractionEnabled *observable.Cell[bool, *Controller]
	PanInteractionEnabled  *observable.Cell[bool, *Controller]
	OnHover                *observable.Cell[HoverFunc, *Controller]
	OnClick                *observable.Cell[ClickFunc, *Controller]

	sim        *physics.Simulation
	foreground *render.Renderer
	shadow     *render.Renderer
	visible    *canvas.Context
	hidden     *canvas.Context
	tracker    *colortrack.Tracker[*Object]

	transform   Transform
	extent      ScaleExtent
	size        Dimensions
	pixelRatio  float64
	lastSetZoom float64

	pointer         r2.Vec
	pointerPressed  bool
	pointerDragging bool
	hover           *Object
	drag            *dragState
	pan             *panState

	needsRedraw    bool
	registryWarned bool
	shadowRefresh  *Throttle

	scheduler    Scheduler
	frameID      FrameID
	framePending bool
	paused       bool
	destroyed    bool

	hoverThrottle   time.Duration
	zoomFactor      float64
	dragTolerance   float64
	dragAlphaTarget float64
	checksumBits    int

	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithScheduler sets the frame scheduler. The default is a ManualScheduler.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.scheduler = s }
}

// WithPixelRatio sets the device pixel ratio of the backing canvases.
func WithPixelRatio(r float64) Option {
	return func(c *Controller) {
		if r > 0 {
			c.pixelRatio = r
		}
	}
}

// WithLogger sets the logger used for recovered frame panics and registry warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock replaces time.Now for the shadow refresh throttle.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithHoverThrottle sets the minimum interval between shadow redraws.
func WithHoverThrottle(d time.Duration) Option {
	return func(c *Controller) { c.hoverThrottle = d }
}

// WithZoomFactor sets the auto-fit numerator: zoom = factor / cbrt(nodes).
func WithZoomFactor(f float64) Option {
	return func(c *Controller) { c.zoomFactor = f }
}

// WithDragTolerance sets the pointer travel, in pixels, before a press
// counts as a drag.
func WithDragTolerance(px float64) Option {
	return func(c *Controller) { c.dragTolerance = px }
}

// WithDragAlphaTarget sets the alpha target held while a node is dragged.
func WithDragAlphaTarget(a float64) Option {
	return func(c *Controller) { c.dragAlphaTarget = a }
}

// WithChecksumBits sets the checksum width of the colour tracker.
func WithChecksumBits(bits int) Option {
	return func(c *Controller) { c.checksumBits = bits }
}

// WithScaleExtent bounds the zoom factor.
func WithScaleExtent(min, max float64) Option {
	return func(c *Controller) { c.extent = ScaleExtent{Min: min, Max: max} }
}

// New creates a controller over sim sized to dims and runs its first frame.
func New(sim *physics.Simulation, dims Dimensions, opts ...Option) *Controller {
	c := &Controller{
		sim:             sim,
		transform:       IdentityTransform,
		extent:          DefaultScaleExtent,
		pixelRatio:      1,
		lastSetZoom:     1,
		pointer:         offCanvas,
		hoverThrottle:   DefaultHoverThrottle,
		zoomFactor:      DefaultZoomFactor,
		dragTolerance:   DefaultDragTolerance,
		dragAlphaTarget: DefaultDragAlphaTarget,
		checksumBits:    colortrack.DefaultChecksumBits,
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scheduler == nil {
		c.scheduler = NewManualScheduler()
	}
	c.logger = c.logger.With("component", "viewer")

	c.MouseControlsEnabled = observable.New(c, true, func(bool, bool) { c.hover = nil })
	c.NodeDragEnabled = observable.New(c, true)
	c.ZoomInteractionEnabled = observable.New(c, true)
	c.PanInteractionEnabled = observable.New(c, true)
	c.OnHover = observable.New[HoverFunc](c, nil)
	c.OnClick = observable.New[ClickFunc](c, nil)
	c.BackgroundColor = observable.New(c, "", func(string, string) { c.needsRedraw = true })
	c.AutoPauseRedraw = observable.New(c, true)

	c.visible = canvas.New(1, 1)
	c.hidden = canvas.New(1, 1)
	c.tracker = colortrack.New[*Object](c.checksumBits)

	c.foreground = render.New(c.visible, sim.Graph, false).
		OnNeedsRedraw.Set(func() { c.needsRedraw = true })
	c.shadow = render.New(c.hidden, sim.Graph, true).
		NodeStyle.Set(shadowNodeStyle).
		LinkStyle.Set(shadowLinkStyle)
	c.shadowRefresh = NewThrottle(c.refreshShadow, c.hoverThrottle, c.now)

	c.Graph = observable.NewLinked(c, sim.Graph, func(g, _ *models.Graph) { c.registerObjects(g) })
	c.registerObjects(sim.Graph.Value())

	c.Dimensions = observable.New(c, dims, func(d, _ Dimensions) { c.adjustCanvasSize(d) })
	c.adjustCanvasSize(dims)

	sim.OnFinishUpdate.Set(c.autoFit)
	c.autoFit()

	c.Frame()
	return c
}

func shadowNodeStyle(n *models.Node) render.NodeStyle {
	s := render.DefaultNodeStyle
	if n.IndexColor != "" {
		s.Color = n.IndexColor
	}
	return s
}

func shadowLinkStyle(l *models.Link) render.LinkStyle {
	s := render.DefaultLinkStyle
	if l.IndexColor != "" {
		s.Color = l.IndexColor
	}
	return s
}

// Simulation returns the driven simulation.
func (c *Controller) Simulation() *physics.Simulation { return c.sim }

// Foreground returns the renderer of the visible canvas.
func (c *Controller) Foreground() *render.Renderer { return c.foreground }

// Shadow returns the renderer of the picking canvas.
func (c *Controller) Shadow() *render.Renderer { return c.shadow }

// Canvas returns the visible canvas.
func (c *Controller) Canvas() *canvas.Context { return c.visible }

// ShadowCanvas returns the picking canvas.
func (c *Controller) ShadowCanvas() *canvas.Context { return c.hidden }

// Tracker returns the identity colour registry.
func (c *Controller) Tracker() *colortrack.Tracker[*Object] { return c.tracker }

// registerObjects gives every node and link an identity colour. A graph in
// which no entity carries a colour is treated as a fresh graph and resets
// the registry.
func (c *Controller) registerObjects(g *models.Graph) {
	if c.destroyed || g == nil {
		return
	}
	fresh := true
	for _, n := range g.Nodes {
		if n.IndexColor != "" {
			fresh = false
			break
		}
	}
	for _, l := range g.Links {
		if !fresh || l.IndexColor != "" {
			fresh = false
			break
		}
	}
	if fresh {
		c.tracker.Reset()
		c.registryWarned = false
	}

	for _, n := range g.Nodes {
		if cur, ok := c.tracker.Lookup(n.IndexColor); ok && cur.Node == n {
			continue
		}
		n.IndexColor = c.register(&Object{Kind: KindNode, Node: n})
	}
	for _, l := range g.Links {
		if cur, ok := c.tracker.Lookup(l.IndexColor); ok && cur.Link == l {
			continue
		}
		l.IndexColor = c.register(&Object{Kind: KindLink, Link: l})
	}
	registeredObjects.Set(float64(c.tracker.Len()))
}

func (c *Controller) register(obj *Object) string {
	col, ok := c.tracker.Register(obj)
	if ok {
		return col
	}
	registryFullTotal.Inc()
	if !c.registryWarned {
		c.registryWarned = true
		c.logger.Warn("colour registry full, object will not be pickable",
			"object", obj.String(), "capacity", c.tracker.Cap())
	}
	return ""
}

// adjustCanvasSize resizes both backing stores and keeps the view centre.
func (c *Controller) adjustCanvasSize(d Dimensions) {
	if c.destroyed {
		return
	}
	w := int(math.Round(float64(d.Width) * c.pixelRatio))
	h := int(math.Round(float64(d.Height) * c.pixelRatio))
	c.visible.Resize(w, h)
	c.hidden.Resize(w, h)

	k := c.transform.K
	c.transform = c.transform.TranslateBy(
		float64(d.Width-c.size.Width)/2/k,
		float64(d.Height-c.size.Height)/2/k,
	)
	c.size = d
	c.applyTransform()
	c.logger.Debug("canvas resized", "width", d.Width, "height", d.Height, "pixelRatio", c.pixelRatio)
}

// applyTransform pushes the zoom transform into both canvas contexts.
func (c *Controller) applyTransform() {
	pr, t := c.pixelRatio, c.transform
	for _, ctx := range []*canvas.Context{c.visible, c.hidden} {
		ctx.SetTransform(pr*t.K, 0, 0, pr*t.K, pr*t.X, pr*t.Y)
	}
	c.needsRedraw = true
}

func (c *Controller) setTransform(t Transform) {
	c.transform = t
	c.applyTransform()
}

// autoFit rescales to zoomFactor / cbrt(nodes) unless the zoom was changed
// since the last automatic rescale.
func (c *Controller) autoFit() {
	if c.destroyed {
		return
	}
	n := len(c.sim.Graph.Value().Nodes)
	if c.transform.K != c.lastSetZoom || n == 0 {
		return
	}
	c.CanvasZoom(c.zoomFactor / math.Cbrt(float64(n)))
	c.lastSetZoom = c.transform.K
}

func (c *Controller) viewportCentre() r2.Vec {
	return r2.Vec{X: float64(c.size.Width) / 2, Y: float64(c.size.Height) / 2}
}

// ObjectAt returns the object under the last known pointer position.
func (c *Controller) ObjectAt() *Object {
	return c.PickAt(c.pointer.X, c.pointer.Y)
}

// PickAt returns the object painted at screen point (x, y) on the shadow
// canvas as of its last refresh. Points outside the canvas, background and
// blended edge pixels return nil.
func (c *Controller) PickAt(x, y float64) *Object {
	if x < 0 || y < 0 {
		return nil
	}
	px := c.hidden.GetPixel(int(x*c.pixelRatio), int(y*c.pixelRatio))
	if px.A != 255 {
		return nil
	}
	obj, ok := c.tracker.LookupRGB(px.R, px.G, px.B)
	if !ok {
		return nil
	}
	return obj
}

// HoverObject returns the object found under the pointer in the last frame.
func (c *Controller) HoverObject() *Object { return c.hover }

// IsDragging reports whether a drag or pan gesture has moved the view.
func (c *Controller) IsDragging() bool { return c.pointerDragging }

// PointerDown starts a press. A primary press on a node starts a node drag
// when dragging is enabled; anywhere else it starts a pan.
func (c *Controller) PointerDown(x, y float64, button int) {
	c.pointer = r2.Vec{X: x, Y: y}
	c.pointerPressed = true
	if button != 0 || c.drag != nil || c.pan != nil {
		return
	}

	if c.NodeDragEnabled.Value() {
		if obj := c.ObjectAt(); obj != nil && obj.Kind == KindNode {
			c.startDrag(obj.Node)
			return
		}
	}
	if c.PanInteractionEnabled.Value() {
		c.pan = &panState{start: c.pointer, transform: c.transform}
	}
}

func (c *Controller) startDrag(n *models.Node) {
	c.drag = &dragState{
		node:   n,
		initX:  n.X,
		initY:  n.Y,
		initFX: n.FX,
		initFY: n.FY,
		start:  c.pointer,
	}
	n.Pin(n.X, n.Y)
}

// PointerMove records the pointer and advances an active gesture.
func (c *Controller) PointerMove(x, y float64) {
	c.pointer = r2.Vec{X: x, Y: y}

	switch {
	case c.drag != nil:
		d := c.drag
		delta := r2.Sub(c.pointer, d.start)
		k := c.transform.K
		d.node.Pin(d.initX+delta.X/k, d.initY+delta.Y/k)
		d.node.SetPosition(d.initX+delta.X/k, d.initY+delta.Y/k)

		if !d.dragged && r2.Norm(delta) <= c.dragTolerance {
			return
		}
		c.sim.AlphaTarget.Set(c.dragAlphaTarget).ResetCountdown()
		c.pointerDragging = true
		d.dragged = true

	case c.pan != nil:
		delta := r2.Sub(c.pointer, c.pan.start)
		t := c.pan.transform
		c.setTransform(Transform{K: t.K, X: t.X + delta.X, Y: t.Y + delta.Y})
		c.pointerDragging = true
	}
}

// PointerUp releases a press. A release that did not drag is a click on
// the object under the pointer.
func (c *Controller) PointerUp(button int) {
	if c.pointerPressed {
		c.pointerPressed = false
		if !c.pointerDragging {
			if fn := c.OnClick.Value(); fn != nil {
				fn(c.ObjectAt(), button)
			}
		}
	}
	c.endGesture()
}

// PointerCancel aborts a press without a click.
func (c *Controller) PointerCancel() {
	c.pointerPressed = false
	c.endGesture()
}

func (c *Controller) endGesture() {
	if d := c.drag; d != nil {
		if d.initFX == nil {
			d.node.FX = nil
		}
		if d.initFY == nil {
			d.node.FY = nil
		}
		if c.sim.AlphaTarget.Value() != 0 {
			c.sim.AlphaTarget.Set(0).ResetCountdown()
		}
		c.drag = nil
	}
	c.pan = nil
	c.pointerDragging = false
}

// Wheel zooms around the pointer by 2^(-deltaY*0.002).
func (c *Controller) Wheel(x, y, deltaY float64) {
	c.pointer = r2.Vec{X: x, Y: y}
	if !c.ZoomInteractionEnabled.Value() {
		return
	}
	k := c.extent.clamp(c.transform.K * math.Pow(2, -deltaY*wheelSensitivity))
	c.setTransform(c.transform.ScaleAround(k, c.pointer))
}

// DoubleClick does nothing; double clicks are left to the host.
func (c *Controller) DoubleClick(float64, float64) {}

// Frame runs one animation frame and schedules the next. A panic inside
// the frame is logged and the loop keeps going.
func (c *Controller) Frame() {
	c.framePending = false
	if c.destroyed {
		return
	}
	defer c.schedule()
	defer func() {
		if r := recover(); r != nil {
			framePanicsTotal.Inc()
			c.logger.Error("frame aborted", "panic", r)
		}
	}()

	start := time.Now()
	doRedraw := !c.AutoPauseRedraw.Value() || c.needsRedraw || c.sim.IsEngineRunning()
	c.needsRedraw = false

	if c.MouseControlsEnabled.Value() {
		var obj *Object
		if !c.pointerDragging {
			obj = c.ObjectAt()
		}
		if obj != c.hover {
			prev := c.hover
			c.hover = obj
			if fn := c.OnHover.Value(); fn != nil {
				fn(obj, prev)
			}
		}
		if doRedraw {
			c.shadowRefresh.Call()
		} else {
			c.shadowRefresh.Poll()
		}
	}

	if doRedraw {
		c.visible.Clear()
		c.sim.Tick()
		c.foreground.GlobalScale.Set(c.transform.K).Tick()
		framesTotal.WithLabelValues("redraw").Inc()
	} else {
		framesTotal.WithLabelValues("idle").Inc()
	}
	frameDuration.Observe(time.Since(start).Seconds())
}

func (c *Controller) refreshShadow() {
	c.hidden.Clear()
	c.shadow.GlobalScale.Set(c.transform.K).Tick()
	shadowRefreshTotal.Inc()
}

// RefreshShadow redraws the picking canvas now, bypassing the throttle.
func (c *Controller) RefreshShadow() {
	c.shadowRefresh.Cancel()
	c.refreshShadow()
}

func (c *Controller) schedule() {
	if c.paused || c.destroyed || c.framePending {
		return
	}
	c.frameID = c.scheduler.RequestFrame(c.Frame)
	c.framePending = true
}

// PauseAnimation stops scheduling frames.
func (c *Controller) PauseAnimation() *Controller {
	c.paused = true
	if c.framePending {
		c.scheduler.CancelFrame(c.frameID)
		c.framePending = false
	}
	return c
}

// ResumeAnimation runs a frame immediately and restarts the loop.
func (c *Controller) ResumeAnimation() *Controller {
	if !c.paused || c.destroyed {
		return c
	}
	c.paused = false
	c.Frame()
	return c
}

// Destroy cancels the pending frame and tears down the simulation. The
// controller ignores further graph changes.
func (c *Controller) Destroy() {
	if c.destroyed {
		return
	}
	c.PauseAnimation()
	c.destroyed = true
	c.sim.OnFinishUpdate.Set(nil)
	c.sim.Destroy()
	c.hover = nil
	c.drag = nil
	c.pan = nil
	c.logger.Debug("viewer destroyed")
}

// GraphBbox returns the box covering the placed nodes accepted by filter,
// padded by their foreground size.
func (c *Controller) GraphBbox(filter func(*models.Node) bool) (r2.Box, error) {
	box, ok := render.Bounds(c.sim.Graph.Value().Nodes, c.foreground.NodeStyle.Value(), filter)
	if !ok {
		return r2.Box{}, ErrEmptyGraph
	}
	return box, nil
}

// ZoomToFit centres the graph and scales it to fill the viewport less
// padding pixels on each side. It does nothing for an empty graph.
func (c *Controller) ZoomToFit(padding float64) *Controller {
	box, err := c.GraphBbox(nil)
	if err != nil {
		c.logger.Debug("zoom to fit skipped", "error", err)
		return c
	}
	k, _, _ := render.FitTransform(box, float64(c.size.Width), float64(c.size.Height), padding)
	c.CenterAt(r2.Scale(0.5, r2.Add(box.Min, box.Max)))
	return c.CanvasZoom(k)
}

// CenterAt pans so graph point p is in the middle of the viewport.
func (c *Controller) CenterAt(p r2.Vec) *Controller {
	c.setTransform(c.transform.CenterOn(p, c.viewportCentre()))
	return c
}

// Center returns the graph point in the middle of the viewport.
func (c *Controller) Center() r2.Vec {
	return c.transform.Invert(c.viewportCentre())
}

// CanvasZoom sets the zoom factor, keeping the viewport centre fixed.
func (c *Controller) CanvasZoom(k float64) *Controller {
	c.setTransform(c.transform.ScaleAround(c.extent.clamp(k), c.viewportCentre()))
	return c
}

// Zoom returns the current zoom factor.
func (c *Controller) Zoom() float64 { return c.transform.K }

// Transform returns the current zoom transform.
func (c *Controller) Transform() Transform { return c.transform }

// Graph2ScreenCoords maps a graph point to logical screen pixels.
func (c *Controller) Graph2ScreenCoords(x, y float64) r2.Vec {
	return c.transform.Apply(r2.Vec{X: x, Y: y})
}

// Screen2GraphCoords maps logical screen pixels to a graph point.
func (c *Controller) Screen2GraphCoords(x, y float64) r2.Vec {
	return c.transform.Invert(r2.Vec{X: x, Y: y})
}

// UpdateForegroundRender lets fn configure the visible renderer.
func (c *Controller) UpdateForegroundRender(fn func(*render.Renderer)) *Controller {
	fn(c.foreground)
	c.needsRedraw = true
	return c
}

// UpdateMouseTrackingRender lets fn configure the shadow renderer.
func (c *Controller) UpdateMouseTrackingRender(fn func(*render.Renderer)) *Controller {
	fn(c.shadow)
	c.needsRedraw = true
	return c
}

// UpdateSimulation lets fn configure the simulation.
func (c *Controller) UpdateSimulation(fn func(*physics.Simulation)) *Controller {
	fn(c.sim)
	c.needsRedraw = true
	return c
}

// RequestRedraw marks the view dirty for the next frame.
func (c *Controller) RequestRedraw() { c.needsRedraw = true }

// EncodePNG writes the visible canvas flattened onto the background colour.
func (c *Controller) EncodePNG(w io.Writer) error {
	bg := color.Color(color.White)
	if css := c.BackgroundColor.Value(); css != "" {
		col, err := canvas.ParseColor(css)
		if err != nil {
			return fmt.Errorf("background colour: %w", err)
		}
		bg = col
	}
	return png.Encode(w, canvas.Flatten(c.visible.Image(), bg))
}

// EncodeShadowPNG writes the picking canvas as is.
func (c *Controller) EncodeShadowPNG(w io.Writer) error {
	return c.hidden.EncodePNG(w)
}
