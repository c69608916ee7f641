// Package render draws a graph onto a canvas. The same pipeline serves the
// visible canvas and the shadow canvas used for picking; on the shadow
// canvas shapes are padded so that thin lines and small nodes stay easy to
// hit.
package render

import (
	"math"

	"github.com/TFMV/stitchgraph/canvas"
	"github.com/TFMV/stitchgraph/models"
	"github.com/TFMV/stitchgraph/observable"
)

const (
	nodeShadowPadding = 1
	// Wider line (2) plus interaction precision (4).
	linkShadowPadding = 2 + 4
)

// Renderer draws the graph held by its Graph cell. Every configuration cell
// returns the Renderer from Set so calls chain.
type Renderer struct {
	OnNeedsRedraw *observable.Cell[func(), *Renderer]
	NodeStyle     *observable.Cell[NodeStyleFunc, *Renderer]
	LinkStyle     *observable.Cell[LinkStyleFunc, *Renderer]
	TickSteps     *observable.Cell[[]func(), *Renderer]
	GlobalScale   *observable.Cell[float64, *Renderer]
	Canvas        *observable.Cell[*canvas.Context, *Renderer]
	Graph         *observable.Linked[*models.Graph, *Renderer]

	shadow bool
}

// New creates a renderer drawing onto ctx and mirroring the graph cell.
// Style, tick step and graph changes request a redraw.
func New[U any](ctx *canvas.Context, graph *observable.Cell[*models.Graph, U], shadow bool) *Renderer {
	r := &Renderer{shadow: shadow}

	r.OnNeedsRedraw = observable.New[func()](r, nil)
	r.Graph = observable.NewLinked(r, graph, redraw[*models.Graph](r))
	r.NodeStyle = observable.New(r, NodeStyleFunc(DefaultNodeStyles), redraw[NodeStyleFunc](r))
	r.LinkStyle = observable.New(r, LinkStyleFunc(DefaultLinkStyles), redraw[LinkStyleFunc](r))
	r.TickSteps = observable.New(r, []func(){r.RenderLinks, r.RenderNodes}, redraw[[]func()](r))
	r.GlobalScale = observable.New(r, 1.0)
	r.Canvas = observable.New(r, ctx)
	return r
}

func redraw[T any](r *Renderer) observable.Handler[T] {
	return func(T, T) {
		if fn := r.OnNeedsRedraw.Value(); fn != nil {
			fn()
		}
	}
}

// IsShadow reports whether this renderer paints the picking canvas.
func (r *Renderer) IsShadow() bool {
	return r.shadow
}

// Tick runs every tick step in order.
func (r *Renderer) Tick() {
	for _, step := range r.TickSteps.Value() {
		step()
	}
}

func (r *Renderer) scale() float64 {
	k := r.GlobalScale.Value()
	if k <= 0 || math.IsNaN(k) || math.IsInf(k, 0) {
		return 1
	}
	return k
}

// RenderNodes draws every visible node with coordinates.
func (r *Renderer) RenderNodes() {
	g := r.Graph.Value()
	ctx := r.Canvas.Value()
	if g == nil || ctx == nil {
		return
	}
	globalScale := r.scale()
	padding := 0.0
	if r.shadow {
		padding = nodeShadowPadding / globalScale
	}
	getStyle := r.NodeStyle.Value()

	ctx.Save()
	defer ctx.Restore()
	for _, n := range g.Nodes {
		if !n.Placed {
			continue
		}
		style := getStyle(n)
		if !style.Visible {
			continue
		}
		if style.Paint != nil {
			style.Paint.PaintNode(ctx, n, style, globalScale, r.shadow)
			continue
		}
		ctx.BeginPath()
		ctx.Arc(n.X, n.Y, style.RelSize+padding, 0, 2*math.Pi, false)
		ctx.SetFillStyle(style.Color)
		ctx.Fill()
	}
}

// RenderLinks draws every visible link whose endpoints both have
// coordinates.
func (r *Renderer) RenderLinks() {
	g := r.Graph.Value()
	ctx := r.Canvas.Value()
	if g == nil || ctx == nil {
		return
	}
	globalScale := r.scale()
	padding := 0.0
	if r.shadow {
		padding = linkShadowPadding / globalScale
	}
	getStyle := r.LinkStyle.Value()

	ctx.Save()
	defer ctx.Restore()
	ctx.SetLineCap(canvas.LineCapRound)
	for _, l := range g.Links {
		if !l.Resolved() {
			continue
		}
		style := getStyle(l)
		if !style.Visible {
			continue
		}
		if style.Paint != nil {
			style.Paint.PaintLink(ctx, l, style, globalScale, r.shadow)
			continue
		}
		paintLink(ctx, l, style, padding, globalScale)
	}
}

func paintLink(ctx *canvas.Context, l *models.Link, style LinkStyle, padding, globalScale float64) {
	start, end := l.Source, l.Target

	ctx.BeginPath()
	ctx.MoveTo(start.X, start.Y)
	switch cps := ControlPoints(l, style.Curvature); len(cps) {
	case 0:
		ctx.LineTo(end.X, end.Y)
	case 2:
		ctx.QuadraticCurveTo(cps[0], cps[1], end.X, end.Y)
	default:
		ctx.BezierCurveTo(cps[0], cps[1], cps[2], cps[3], end.X, end.Y)
	}

	width := style.Width
	if width == 0 {
		width = 1
	}
	ctx.SetStrokeStyle(style.Color)
	ctx.SetLineWidth(width/globalScale + padding)
	ctx.SetLineDash(style.LineDash)
	ctx.Stroke()
}
