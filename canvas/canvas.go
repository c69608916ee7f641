// Package canvas provides an in-memory raster with a Canvas2D style drawing
// API. Drawing is delegated to fogleman/gg; the current transformation
// matrix is kept here so that user-space coordinates, line widths and dash
// lengths scale the way a browser canvas scales them.
package canvas

import (
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"

	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/spatial/r2"
)

// LineCap is the shape used at the ends of stroked lines.
type LineCap int

const (
	LineCapButt LineCap = iota
	LineCapRound
	LineCapSquare
)

// Matrix is a 2D affine transform in Canvas2D order:
//
//	x' = A*x + C*y + E
//	y' = B*x + D*y + F
type Matrix struct {
	A, B, C, D, E, F float64
}

// Identity is the identity transform.
var Identity = Matrix{A: 1, D: 1}

// Mul returns m*n: n is applied first, then m.
func (m Matrix) Mul(n Matrix) Matrix {
	return Matrix{
		A: m.A*n.A + m.C*n.B,
		B: m.B*n.A + m.D*n.B,
		C: m.A*n.C + m.C*n.D,
		D: m.B*n.C + m.D*n.D,
		E: m.A*n.E + m.C*n.F + m.E,
		F: m.B*n.E + m.D*n.F + m.F,
	}
}

// Apply maps a user-space point to device space.
func (m Matrix) Apply(p r2.Vec) r2.Vec {
	return r2.Vec{
		X: m.A*p.X + m.C*p.Y + m.E,
		Y: m.B*p.X + m.D*p.Y + m.F,
	}
}

// Invert returns the inverse transform. A singular matrix yields Identity.
func (m Matrix) Invert() Matrix {
	det := m.A*m.D - m.B*m.C
	if det == 0 {
		return Identity
	}
	return Matrix{
		A: m.D / det,
		B: -m.B / det,
		C: -m.C / det,
		D: m.A / det,
		E: (m.C*m.F - m.D*m.E) / det,
		F: (m.B*m.E - m.A*m.F) / det,
	}
}

// ScaleFactor is the geometric mean scale of the transform, used to convert
// user-space lengths to device pixels.
func (m Matrix) ScaleFactor() float64 {
	return math.Sqrt(math.Abs(m.A*m.D - m.B*m.C))
}

type drawState struct {
	matrix    Matrix
	fill      color.NRGBA
	stroke    color.NRGBA
	lineWidth float64
	dash      []float64
	lineCap   LineCap
}

func defaultState() drawState {
	return drawState{
		matrix:    Identity,
		fill:      color.NRGBA{A: 255},
		stroke:    color.NRGBA{A: 255},
		lineWidth: 1,
	}
}

type segmentOp int

const (
	opMove segmentOp = iota
	opLine
	opQuad
	opCubic
	opClose
)

// segment points are stored in device space.
type segment struct {
	op  segmentOp
	pts [3]r2.Vec
}

// Context is a drawable raster. It is not safe for concurrent use.
type Context struct {
	im    *image.RGBA
	dc    *gg.Context
	state drawState
	stack []drawState
	path  []segment
}

// New creates a transparent w×h raster.
func New(w, h int) *Context {
	c := &Context{}
	c.Resize(w, h)
	return c
}

// Resize replaces the backing store. Like assigning canvas.width, this
// clears the pixels and resets the drawing state.
func (c *Context) Resize(w, h int) {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	c.im = image.NewRGBA(image.Rect(0, 0, w, h))
	c.dc = gg.NewContextForRGBA(c.im)
	c.state = defaultState()
	c.stack = nil
	c.path = nil
}

// Width returns the raster width in device pixels.
func (c *Context) Width() int { return c.im.Bounds().Dx() }

// Height returns the raster height in device pixels.
func (c *Context) Height() int { return c.im.Bounds().Dy() }

// Image returns the backing raster.
func (c *Context) Image() *image.RGBA { return c.im }

// EncodePNG writes the raster as PNG.
func (c *Context) EncodePNG(w io.Writer) error {
	return c.dc.EncodePNG(w)
}

// Save pushes the drawing state.
func (c *Context) Save() {
	st := c.state
	st.dash = append([]float64(nil), c.state.dash...)
	c.stack = append(c.stack, st)
}

// Restore pops the drawing state. It is a no-op on an empty stack.
func (c *Context) Restore() {
	if len(c.stack) == 0 {
		return
	}
	c.state = c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
}

// Transform returns the current transform.
func (c *Context) Transform() Matrix { return c.state.matrix }

// SetTransform replaces the current transform.
func (c *Context) SetTransform(a, b, cc, d, e, f float64) {
	c.state.matrix = Matrix{A: a, B: b, C: cc, D: d, E: e, F: f}
}

// ResetTransform sets the identity transform.
func (c *Context) ResetTransform() { c.state.matrix = Identity }

// Translate moves the user-space origin.
func (c *Context) Translate(x, y float64) {
	c.state.matrix = c.state.matrix.Mul(Matrix{A: 1, D: 1, E: x, F: y})
}

// Scale scales user space.
func (c *Context) Scale(sx, sy float64) {
	c.state.matrix = c.state.matrix.Mul(Matrix{A: sx, D: sy})
}

// Rotate rotates user space by angle radians.
func (c *Context) Rotate(angle float64) {
	sin, cos := math.Sincos(angle)
	c.state.matrix = c.state.matrix.Mul(Matrix{A: cos, B: sin, C: -sin, D: cos})
}

// SetFillStyle sets the fill colour from a CSS string. Unparsable values
// are ignored, as a browser would.
func (c *Context) SetFillStyle(css string) {
	if col, err := ParseColor(css); err == nil {
		c.state.fill = col
	}
}

// SetStrokeStyle sets the stroke colour from a CSS string.
func (c *Context) SetStrokeStyle(css string) {
	if col, err := ParseColor(css); err == nil {
		c.state.stroke = col
	}
}

// SetFillColor sets the fill colour.
func (c *Context) SetFillColor(col color.NRGBA) { c.state.fill = col }

// SetStrokeColor sets the stroke colour.
func (c *Context) SetStrokeColor(col color.NRGBA) { c.state.stroke = col }

// SetLineWidth sets the stroke width in user units. Non-positive values are
// ignored.
func (c *Context) SetLineWidth(w float64) {
	if w > 0 && !math.IsInf(w, 0) && !math.IsNaN(w) {
		c.state.lineWidth = w
	}
}

// LineWidth returns the stroke width in user units.
func (c *Context) LineWidth() float64 { return c.state.lineWidth }

// SetLineDash sets the dash pattern in user units. An empty pattern draws
// solid lines.
func (c *Context) SetLineDash(dash []float64) {
	for _, d := range dash {
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return
		}
	}
	if len(dash)%2 == 1 {
		dash = append(dash, dash...)
	}
	c.state.dash = append([]float64(nil), dash...)
}

// SetLineCap sets the line cap.
func (c *Context) SetLineCap(lc LineCap) { c.state.lineCap = lc }

// BeginPath discards the current path.
func (c *Context) BeginPath() { c.path = c.path[:0] }

// MoveTo starts a new sub-path at (x, y).
func (c *Context) MoveTo(x, y float64) {
	c.path = append(c.path, segment{op: opMove, pts: [3]r2.Vec{c.device(x, y)}})
}

// LineTo adds a straight segment.
func (c *Context) LineTo(x, y float64) {
	c.path = append(c.path, segment{op: opLine, pts: [3]r2.Vec{c.device(x, y)}})
}

// QuadraticCurveTo adds a quadratic Bézier segment.
func (c *Context) QuadraticCurveTo(cpx, cpy, x, y float64) {
	c.path = append(c.path, segment{op: opQuad, pts: [3]r2.Vec{c.device(cpx, cpy), c.device(x, y)}})
}

// BezierCurveTo adds a cubic Bézier segment.
func (c *Context) BezierCurveTo(cp1x, cp1y, cp2x, cp2y, x, y float64) {
	c.path = append(c.path, segment{
		op:  opCubic,
		pts: [3]r2.Vec{c.device(cp1x, cp1y), c.device(cp2x, cp2y), c.device(x, y)},
	})
}

// ClosePath closes the current sub-path.
func (c *Context) ClosePath() {
	c.path = append(c.path, segment{op: opClose})
}

// Arc adds a circular arc centred on (x, y). The arc is flattened in device
// space so it stays correct under any transform.
func (c *Context) Arc(x, y, r, start, end float64, counterclockwise bool) {
	if r < 0 || math.IsNaN(r) {
		return
	}
	sweep := end - start
	if !counterclockwise {
		if sweep < 0 {
			sweep = math.Mod(sweep, 2*math.Pi) + 2*math.Pi
		}
		sweep = math.Min(sweep, 2*math.Pi)
	} else {
		if sweep > 0 {
			sweep = math.Mod(sweep, 2*math.Pi) - 2*math.Pi
		}
		sweep = math.Max(sweep, -2*math.Pi)
	}

	deviceR := r * c.state.matrix.ScaleFactor()
	n := int(math.Ceil(math.Abs(sweep) * math.Max(deviceR, 1) / 2))
	n = max(8, min(512, n))

	for i := 0; i <= n; i++ {
		a := start + sweep*float64(i)/float64(n)
		sin, cos := math.Sincos(a)
		px, py := x+r*cos, y+r*sin
		if i == 0 && (len(c.path) == 0 || c.path[len(c.path)-1].op == opClose) {
			c.MoveTo(px, py)
			continue
		}
		c.LineTo(px, py)
	}
}

// Fill fills the current path with the fill colour.
func (c *Context) Fill() {
	if !c.replay() {
		return
	}
	c.dc.SetColor(c.state.fill)
	c.dc.Fill()
}

// Stroke strokes the current path with the stroke colour.
func (c *Context) Stroke() {
	if !c.replay() {
		return
	}
	k := c.state.matrix.ScaleFactor()
	c.dc.SetLineWidth(c.state.lineWidth * k)

	dash := make([]float64, len(c.state.dash))
	for i, d := range c.state.dash {
		dash[i] = d * k
	}
	c.dc.SetDash(dash...)

	switch c.state.lineCap {
	case LineCapRound:
		c.dc.SetLineCap(gg.LineCapRound)
	case LineCapSquare:
		c.dc.SetLineCap(gg.LineCapSquare)
	default:
		c.dc.SetLineCap(gg.LineCapButt)
	}
	c.dc.SetColor(c.state.stroke)
	c.dc.Stroke()
}

// replay copies the recorded path into gg. It reports whether there was
// anything to draw.
func (c *Context) replay() bool {
	c.dc.ClearPath()
	if len(c.path) == 0 {
		return false
	}
	for _, s := range c.path {
		switch s.op {
		case opMove:
			c.dc.MoveTo(s.pts[0].X, s.pts[0].Y)
		case opLine:
			c.dc.LineTo(s.pts[0].X, s.pts[0].Y)
		case opQuad:
			c.dc.QuadraticTo(s.pts[0].X, s.pts[0].Y, s.pts[1].X, s.pts[1].Y)
		case opCubic:
			c.dc.CubicTo(s.pts[0].X, s.pts[0].Y, s.pts[1].X, s.pts[1].Y, s.pts[2].X, s.pts[2].Y)
		case opClose:
			c.dc.ClosePath()
		}
	}
	return true
}

// Clear makes every pixel transparent, regardless of the transform.
func (c *Context) Clear() {
	draw.Draw(c.im, c.im.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

// ClearRect makes the device-space bounding box of the transformed
// rectangle transparent.
func (c *Context) ClearRect(x, y, w, h float64) {
	corners := [4]r2.Vec{
		c.device(x, y), c.device(x+w, y), c.device(x, y+h), c.device(x+w, y+h),
	}
	box := r2.Box{Min: corners[0], Max: corners[0]}
	for _, p := range corners[1:] {
		box.Min.X = math.Min(box.Min.X, p.X)
		box.Min.Y = math.Min(box.Min.Y, p.Y)
		box.Max.X = math.Max(box.Max.X, p.X)
		box.Max.Y = math.Max(box.Max.Y, p.Y)
	}
	rect := image.Rect(
		int(math.Floor(box.Min.X)), int(math.Floor(box.Min.Y)),
		int(math.Ceil(box.Max.X)), int(math.Ceil(box.Max.Y)),
	).Intersect(c.im.Bounds())
	draw.Draw(c.im, rect, image.Transparent, image.Point{}, draw.Src)
}

// GetPixel reads one device pixel. Out-of-range reads return transparent.
func (c *Context) GetPixel(x, y int) color.RGBA {
	if !(image.Point{X: x, Y: y}).In(c.im.Bounds()) {
		return color.RGBA{}
	}
	return c.im.RGBAAt(x, y)
}

func (c *Context) device(x, y float64) r2.Vec {
	return c.state.matrix.Apply(r2.Vec{X: x, Y: y})
}

// Flatten composites img over an opaque background.
func Flatten(img image.Image, bg color.Color) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Over)
	return out
}
