package canvas

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
	}{
		{"#fff", color.NRGBA{255, 255, 255, 255}},
		{"#1f78b4", color.NRGBA{31, 120, 180, 255}},
		{"#1F78B480", color.NRGBA{31, 120, 180, 128}},
		{"rgb(1, 2, 3)", color.NRGBA{1, 2, 3, 255}},
		{"rgba(31, 120, 180)", color.NRGBA{31, 120, 180, 255}},
		{"rgba(0,0,0,0.15)", color.NRGBA{0, 0, 0, 38}},
		{"  Red ", color.NRGBA{255, 0, 0, 255}},
		{"transparent", color.NRGBA{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "#12", "#ggg", "rgb(1,2)", "rgba(a,b,c)", "hsl(1,2,3)"} {
		_, err := ParseColor(bad)
		assert.Error(t, err, bad)
	}
}

func TestMatrix(t *testing.T) {
	m := Identity.Mul(Matrix{A: 1, D: 1, E: 10, F: 20}).Mul(Matrix{A: 2, D: 2})
	p := m.Apply(r2.Vec{X: 1, Y: 1})
	assert.Equal(t, r2.Vec{X: 12, Y: 22}, p)

	back := m.Invert().Apply(p)
	assert.InDelta(t, 1, back.X, 1e-12)
	assert.InDelta(t, 1, back.Y, 1e-12)
	assert.InDelta(t, 2, m.ScaleFactor(), 1e-12)

	assert.Equal(t, Identity, Matrix{}.Invert())
}

func TestFillCircle_CentrePixelExact(t *testing.T) {
	c := New(40, 40)
	want := color.NRGBA{0x12, 0x34, 0x56, 255}

	c.BeginPath()
	c.Arc(20, 20, 6, 0, 2*math.Pi, false)
	c.SetFillColor(want)
	c.Fill()

	assert.Equal(t, color.RGBA{0x12, 0x34, 0x56, 255}, c.GetPixel(20, 20))
	assert.Equal(t, color.RGBA{}, c.GetPixel(2, 2))
	assert.Equal(t, color.RGBA{}, c.GetPixel(-1, 400))
}

func TestTransformAppliesToPaths(t *testing.T) {
	c := New(100, 100)
	c.Translate(50, 50)
	c.Scale(4, 4)

	c.BeginPath()
	c.Arc(5, 5, 2, 0, 2*math.Pi, false)
	c.SetFillStyle("#ff0000")
	c.Fill()

	// (5,5) in user space is (70,70) on the device; radius 8px.
	assert.Equal(t, uint8(255), c.GetPixel(70, 70).R)
	assert.Equal(t, uint8(255), c.GetPixel(76, 70).R)
	assert.Equal(t, uint8(0), c.GetPixel(55, 55).A)
}

func TestLineWidthScalesWithTransform(t *testing.T) {
	c := New(60, 60)
	c.Scale(3, 3)
	c.BeginPath()
	c.MoveTo(0, 10)
	c.LineTo(20, 10)
	c.SetLineWidth(2)
	c.SetStrokeStyle("black")
	c.Stroke()

	// Device line is 6px wide centred on y=30.
	assert.Equal(t, uint8(255), c.GetPixel(30, 31).A)
	assert.Equal(t, uint8(0), c.GetPixel(30, 36).A)
}

func TestSaveRestore(t *testing.T) {
	c := New(10, 10)
	c.SetLineWidth(3)
	c.Save()
	c.Translate(5, 5)
	c.SetLineWidth(7)
	c.SetLineDash([]float64{1, 2})
	c.Restore()

	assert.Equal(t, Identity, c.Transform())
	assert.Equal(t, 3.0, c.LineWidth())
	assert.Empty(t, c.state.dash)

	c.Restore()
	assert.Equal(t, Identity, c.Transform())
}

func TestClearAndClearRect(t *testing.T) {
	c := New(20, 20)
	c.BeginPath()
	c.MoveTo(0, 0)
	c.LineTo(20, 0)
	c.LineTo(20, 20)
	c.LineTo(0, 20)
	c.ClosePath()
	c.SetFillStyle("white")
	c.Fill()
	require.Equal(t, uint8(255), c.GetPixel(10, 10).A)

	c.Scale(2, 2)
	c.ClearRect(0, 0, 5, 5)
	assert.Equal(t, uint8(0), c.GetPixel(9, 9).A)
	assert.Equal(t, uint8(255), c.GetPixel(11, 11).A)

	c.Clear()
	assert.Equal(t, uint8(0), c.GetPixel(11, 11).A)
}

func TestResizeResetsState(t *testing.T) {
	c := New(10, 10)
	c.Translate(3, 3)
	c.Resize(30, 20)
	assert.Equal(t, 30, c.Width())
	assert.Equal(t, 20, c.Height())
	assert.Equal(t, Identity, c.Transform())

	c.Resize(0, -5)
	assert.Equal(t, 1, c.Width())
}

func TestEncodePNGAndFlatten(t *testing.T) {
	c := New(8, 8)
	var buf bytes.Buffer
	require.NoError(t, c.EncodePNG(&buf))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	flat := Flatten(c.Image(), color.White)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, flat.RGBAAt(3, 3))
}
