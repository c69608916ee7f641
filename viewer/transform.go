package viewer

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Transform is a uniform zoom transform: screen = graph*K + (X, Y).
type Transform struct {
	K, X, Y float64
}

// IdentityTransform is the transform before any pan or zoom.
var IdentityTransform = Transform{K: 1}

// Apply maps a graph point to screen space.
func (t Transform) Apply(p r2.Vec) r2.Vec {
	return r2.Add(r2.Scale(t.K, p), r2.Vec{X: t.X, Y: t.Y})
}

// Invert maps a screen point to graph space.
func (t Transform) Invert(p r2.Vec) r2.Vec {
	return r2.Scale(1/t.K, r2.Sub(p, r2.Vec{X: t.X, Y: t.Y}))
}

// Scale returns t with its scale replaced by k, keeping the origin.
func (t Transform) Scale(k float64) Transform {
	return Transform{K: k, X: t.X, Y: t.Y}
}

// TranslateBy moves the view by (dx, dy) graph units.
func (t Transform) TranslateBy(dx, dy float64) Transform {
	return Transform{K: t.K, X: t.X + t.K*dx, Y: t.Y + t.K*dy}
}

// ScaleAround changes the scale to k while keeping the graph point under
// the screen point p fixed.
func (t Transform) ScaleAround(k float64, p r2.Vec) Transform {
	anchor := t.Invert(p)
	return Transform{K: k, X: p.X - anchor.X*k, Y: p.Y - anchor.Y*k}
}

// CenterOn returns t translated so graph point g maps to screen point p.
func (t Transform) CenterOn(g, p r2.Vec) Transform {
	return Transform{K: t.K, X: p.X - g.X*t.K, Y: p.Y - g.Y*t.K}
}

// ScaleExtent bounds the zoom factor.
type ScaleExtent struct {
	Min, Max float64
}

// DefaultScaleExtent is effectively unbounded.
var DefaultScaleExtent = ScaleExtent{Min: 1e-12, Max: 1e12}

func (e ScaleExtent) clamp(k float64) float64 {
	if math.IsNaN(k) {
		return 1
	}
	return math.Max(e.Min, math.Min(e.Max, k))
}
