package render

import (
	"math"

	"github.com/TFMV/stitchgraph/models"
	"gonum.org/v1/gonum/spatial/r2"
)

// Bounds returns the box covering every placed node accepted by filter,
// each extended by its style's relative size. ok is false when no node
// qualifies.
func Bounds(nodes []*models.Node, style NodeStyleFunc, filter func(*models.Node) bool) (box r2.Box, ok bool) {
	if style == nil {
		style = DefaultNodeStyles
	}
	box = r2.Box{
		Min: r2.Vec{X: math.Inf(1), Y: math.Inf(1)},
		Max: r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, n := range nodes {
		if !n.Placed || (filter != nil && !filter(n)) {
			continue
		}
		r := style(n).RelSize
		box.Min.X = math.Min(box.Min.X, n.X-r)
		box.Min.Y = math.Min(box.Min.Y, n.Y-r)
		box.Max.X = math.Max(box.Max.X, n.X+r)
		box.Max.Y = math.Max(box.Max.Y, n.Y+r)
		ok = true
	}
	if !ok {
		return r2.Box{}, false
	}
	return box, true
}

// FitTransform returns the scale and translation that centre box in a
// width×height viewport with padding on every side. The scale is clamped
// to [1e-12, 1e12].
func FitTransform(box r2.Box, width, height, padding float64) (k, tx, ty float64) {
	k = math.Min((width-2*padding)/(box.Max.X-box.Min.X), (height-2*padding)/(box.Max.Y-box.Min.Y))
	if math.IsNaN(k) {
		k = 1
	}
	k = math.Max(1e-12, math.Min(1e12, k))
	centre := r2.Scale(0.5, r2.Add(box.Min, box.Max))
	return k, width/2 - centre.X*k, height/2 - centre.Y*k
}
