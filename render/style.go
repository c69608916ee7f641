package render

import (
	"math"

	"github.com/TFMV/stitchgraph/canvas"
	"github.com/TFMV/stitchgraph/models"
	"gonum.org/v1/gonum/spatial/r2"
)

// NodePainter replaces the default circle for a node. It is called with the
// canvas in graph space and must honour shadow mode by painting with
// style.Color only.
type NodePainter interface {
	PaintNode(ctx *canvas.Context, n *models.Node, style NodeStyle, globalScale float64, shadow bool)
}

// NodePainterFunc adapts a function to NodePainter.
type NodePainterFunc func(ctx *canvas.Context, n *models.Node, style NodeStyle, globalScale float64, shadow bool)

func (f NodePainterFunc) PaintNode(ctx *canvas.Context, n *models.Node, style NodeStyle, globalScale float64, shadow bool) {
	f(ctx, n, style, globalScale, shadow)
}

// LinkPainter replaces the default stroke for a link.
type LinkPainter interface {
	PaintLink(ctx *canvas.Context, l *models.Link, style LinkStyle, globalScale float64, shadow bool)
}

// LinkPainterFunc adapts a function to LinkPainter.
type LinkPainterFunc func(ctx *canvas.Context, l *models.Link, style LinkStyle, globalScale float64, shadow bool)

func (f LinkPainterFunc) PaintLink(ctx *canvas.Context, l *models.Link, style LinkStyle, globalScale float64, shadow bool) {
	f(ctx, l, style, globalScale, shadow)
}

// NodeStyle describes how one node is drawn. A nil Paint selects the
// default filled circle.
type NodeStyle struct {
	Visible bool
	RelSize float64
	Color   string
	Paint   NodePainter
}

// LinkStyle describes how one link is drawn. A nil Paint selects the
// default stroke.
type LinkStyle struct {
	Visible   bool
	Color     string
	LineDash  []float64
	Width     float64
	Curvature float64
	Paint     LinkPainter
}

// DefaultNodeStyle is used when no node style function is configured.
var DefaultNodeStyle = NodeStyle{
	Visible: true,
	RelSize: 5,
	Color:   "rgba(31, 120, 180)",
}

// DefaultLinkStyle is used when no link style function is configured.
var DefaultLinkStyle = LinkStyle{
	Visible: true,
	Color:   "rgba(0,0,0,0.15)",
	Width:   1,
}

// NodeStyleFunc selects the style of a node.
type NodeStyleFunc func(*models.Node) NodeStyle

// LinkStyleFunc selects the style of a link.
type LinkStyleFunc func(*models.Link) LinkStyle

// DefaultNodeStyles returns DefaultNodeStyle for every node.
func DefaultNodeStyles(*models.Node) NodeStyle { return DefaultNodeStyle }

// DefaultLinkStyles returns DefaultLinkStyle for every link.
func DefaultLinkStyles(*models.Link) LinkStyle { return DefaultLinkStyle }

// selfLoopSize is the control point distance of a self loop per unit of
// curvature.
const selfLoopSize = 70

// ControlPoints returns the Bézier control points for a link: none for a
// straight line, two values for a quadratic curve, four for the cubic self
// loop drawn when both endpoints coincide.
func ControlPoints(l *models.Link, curvature float64) []float64 {
	if curvature == 0 {
		return nil
	}
	start := r2.Vec{X: l.Source.X, Y: l.Source.Y}
	end := r2.Vec{X: l.Target.X, Y: l.Target.Y}

	// The offset is proportional to the squared length.
	d2 := r2.Norm2(r2.Sub(end, start))
	if d2 > 0 {
		delta := r2.Sub(end, start)
		a := math.Atan2(delta.Y, delta.X)
		d := d2 * curvature
		mid := r2.Scale(0.5, r2.Add(start, end))
		return []float64{
			mid.X + d*math.Cos(a-math.Pi/2),
			mid.Y + d*math.Sin(a-math.Pi/2),
		}
	}

	d := curvature * selfLoopSize
	return []float64{end.X, end.Y - d, end.X + d, end.Y}
}

// ArrowPainter draws a node as an arrowhead pointing along its only
// outgoing link. Nodes with zero or several outgoing links get the default
// circle.
type ArrowPainter struct {
	// Scale multiplies the style's relative size.
	Scale float64
}

// Angle returns the heading of n's sole outgoing link.
func (p ArrowPainter) Angle(n *models.Node) (float64, bool) {
	out := n.OutgoingLinks()
	if len(out) != 1 || out[0].Target == nil || out[0].Target == n {
		return 0, false
	}
	dx := out[0].Target.X - n.X
	dy := out[0].Target.Y - n.Y
	if dx == 0 && dy == 0 {
		return 0, false
	}
	return math.Atan2(dy, dx), true
}

func (p ArrowPainter) PaintNode(ctx *canvas.Context, n *models.Node, style NodeStyle, globalScale float64, shadow bool) {
	r := style.RelSize
	if p.Scale > 0 {
		r *= p.Scale
	}
	if shadow {
		r += nodeShadowPadding / globalScale
	}

	angle, ok := p.Angle(n)
	ctx.BeginPath()
	if !ok {
		ctx.Arc(n.X, n.Y, r, 0, 2*math.Pi, false)
	} else {
		ctx.Save()
		ctx.Translate(n.X, n.Y)
		ctx.Rotate(angle)
		ctx.MoveTo(r, 0)
		ctx.LineTo(-r, -r*0.8)
		ctx.LineTo(-r*0.5, 0)
		ctx.LineTo(-r, r*0.8)
		ctx.ClosePath()
		ctx.Restore()
	}
	ctx.SetFillStyle(style.Color)
	ctx.Fill()
}
