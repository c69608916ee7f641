package stitch

import (
	"math"

	"github.com/TFMV/stitchgraph/models"
	"github.com/TFMV/stitchgraph/render"
	"github.com/TFMV/stitchgraph/viewer"
)

const (
	StartFocusColor  = "green"
	TargetFocusColor = "red"

	focusRingScale = 1.4
)

var linkColors = map[string]string{
	KindChain:       "rgba(0,0,0,0.4)",
	KindDirect:      "#1f78b4",
	KindCrochet:     "#e31a1c",
	KindCrochetSide: "rgba(0,0,0,0.15)",
}

// LinkStyle colours links by stitch kind; direct links are dashed.
func LinkStyle(l *models.Link) render.LinkStyle {
	s := render.DefaultLinkStyle
	if c, ok := linkColors[l.Kind]; ok {
		s.Color = c
	}
	if l.Kind == KindDirect {
		s.LineDash = []float64{2, 1}
	}
	return s
}

var crochetArrow = render.ArrowPainter{Scale: 1.2}

// NodeStyle draws crochet stitches as arrowheads pointing at the stitch
// they are worked into. Other nodes keep the base style.
func NodeStyle(base render.NodeStyleFunc) render.NodeStyleFunc {
	return func(n *models.Node) render.NodeStyle {
		st := base(n)
		if isCrochetStitch(n) {
			st.Paint = crochetArrow
		}
		return st
	}
}

func isCrochetStitch(n *models.Node) bool {
	out := n.OutgoingLinks()
	return len(out) == 1 && out[0].Kind == KindCrochet
}

// Configure styles the viewer's foreground for the scheme and draws the
// focus rings after the nodes. Crochet arrowheads are painted on the shadow
// canvas too so they stay pickable.
func (s *Scheme) Configure(v *viewer.Controller) {
	v.UpdateForegroundRender(func(fg *render.Renderer) {
		fg.LinkStyle.Set(LinkStyle).
			NodeStyle.Update(NodeStyle).
			TickSteps.Update(func(steps []func()) []func() {
				return append(append([]func(){}, steps...), func() { s.paintFoci(fg) })
			})
	})
	v.UpdateMouseTrackingRender(func(sh *render.Renderer) {
		sh.NodeStyle.Update(NodeStyle)
	})
}

func (s *Scheme) paintFoci(fg *render.Renderer) {
	ctx := fg.Canvas.Value()
	style := fg.NodeStyle.Value()
	k := fg.GlobalScale.Value()
	if k <= 0 {
		k = 1
	}

	ctx.Save()
	defer ctx.Restore()
	for _, focus := range []struct {
		node  *models.Node
		color string
	}{
		{s.start, StartFocusColor},
		{s.target, TargetFocusColor},
	} {
		if focus.node == nil || !focus.node.Placed {
			continue
		}
		ns := style(focus.node)
		ctx.BeginPath()
		ctx.Arc(focus.node.X, focus.node.Y, ns.RelSize*focusRingScale, 0, 2*math.Pi, false)
		ctx.SetStrokeStyle(focus.color)
		ctx.SetLineWidth(2 / k)
		ctx.Stroke()
	}
}
