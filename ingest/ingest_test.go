package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/TFMV/stitchgraph/models"
	"github.com/TFMV/stitchgraph/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONProcessor_NodesAndEdges(t *testing.T) {
	g, err := NewJSONProcessor().ProcessData([]byte(`{
		"nodes": [
			{"id": "a", "label": "Start", "kind": "stitch", "x": 1, "y": 2},
			{"id": "b", "label": "Loose"},
			{"id": 7}
		],
		"edges": [
			{"source": "a", "target": "b", "weight": 0.5, "kind": "chain"},
			{"source": "b", "target": 7}
		]
	}`))
	require.NoError(t, err)

	require.Len(t, g.Nodes, 3)
	a, b, c := g.Nodes[0], g.Nodes[1], g.Nodes[2]
	assert.Equal(t, []int{0, 1, 2}, []int{a.ID, b.ID, c.ID})
	assert.Equal(t, "Start", a.Label)
	assert.True(t, a.Placed)
	assert.Equal(t, 2.0, a.Y)
	assert.False(t, b.Placed, "nodes without coordinates are laid out later")

	require.Len(t, g.Links, 2)
	assert.Equal(t, "chain", g.Links[0].Kind)
	assert.Equal(t, 0.5, g.Links[0].Strength)
	assert.Same(t, c, g.Links[1].Target)
	assert.Equal(t, []*models.Node{a, c}, b.Neighbors)
}

func TestJSONProcessor_UnknownEndpoint(t *testing.T) {
	_, err := NewJSONProcessor().ProcessData([]byte(`{"nodes":[{"id":"a"}],"links":[{"source":"a","target":"zz"}]}`))
	assert.ErrorIs(t, err, ErrUnknownEndpoint)
}

func TestJSONProcessor_Errors(t *testing.T) {
	_, err := NewJSONProcessor().ProcessData([]byte(`{"nodes":[{"id":"a"},{"id":"a"}]}`))
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewJSONProcessor().ProcessData([]byte(`{"nodes":[{"id":true}]}`))
	assert.Error(t, err)

	_, err = NewJSONProcessor().ProcessData([]byte(`not json`))
	assert.Error(t, err)
}

func TestJSONProcessor_ReadsExport(t *testing.T) {
	g := models.NewGraph("scheme")
	a := models.NewNodeAt("stitch", 0, 0)
	b := models.NewNodeAt("stitch", 10, 3)
	a.ID, b.ID = 4, 9
	g.Nodes = []*models.Node{a, b}
	l := models.NewLink("crochet", a, b)
	l.ID = 2
	l.Distance = 5
	l.Attach()
	g.Links = []*models.Link{l}

	data, err := (&render.JSONExporter{}).Export(g, render.NewDefaultOptions("json"))
	require.NoError(t, err)

	back, err := NewJSONProcessor().ProcessData(data)
	require.NoError(t, err)
	assert.Equal(t, g.ID, back.ID)
	assert.Equal(t, "scheme", back.Name)
	require.Len(t, back.Links, 1)
	assert.Equal(t, "crochet", back.Links[0].Kind)
	assert.Equal(t, 5.0, back.Links[0].Distance)
	assert.Equal(t, 10.0, back.Links[0].Target.X)
	assert.Equal(t, 3.0, back.Links[0].Target.Y)
}

func TestCSVProcessor(t *testing.T) {
	g, err := NewCSVProcessor().ProcessData([]byte("From,To,Weight,Kind\na,b,2,chain\nb,c,oops,direct\na,c\n"))
	require.NoError(t, err)

	require.Len(t, g.Nodes, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{g.Nodes[0].Label, g.Nodes[1].Label, g.Nodes[2].Label})
	require.Len(t, g.Links, 3)
	assert.Equal(t, 2.0, g.Links[0].Strength)
	assert.Equal(t, 0.0, g.Links[1].Strength, "unparsable weights use the force default")
	assert.Equal(t, "direct", g.Links[1].Kind)
	assert.Len(t, g.Nodes[0].Links, 2)
}

func TestCSVProcessor_MissingColumns(t *testing.T) {
	_, err := NewCSVProcessor().ProcessData([]byte("left,right\na,b\n"))
	assert.ErrorContains(t, err, "source and target")

	_, err = NewCSVProcessor().ProcessData(nil)
	assert.Error(t, err)
}

func TestLogProcessor(t *testing.T) {
	g, err := NewLogProcessor().ProcessData([]byte("A -> B\n\nnoise line\nB linked to C\nC - A\n"))
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Links, 3)
}

func TestPalette_Styles(t *testing.T) {
	g := models.NewGraph("")
	g.Nodes = []*models.Node{{Kind: "stitch"}, {Kind: "marker"}, {Kind: "stitch"}}

	p := StitchPalette()
	nodeStyle, linkStyle := p.Styles(g)
	assert.Equal(t, p.NodeColors[0], nodeStyle(g.Nodes[2]).Color)
	assert.Equal(t, p.NodeColors[1], nodeStyle(g.Nodes[1]).Color)
	assert.Equal(t, render.DefaultNodeStyle.Color, nodeStyle(&models.Node{Kind: "new"}).Color)
	assert.Equal(t, "#e31a1c", linkStyle(&models.Link{Kind: "crochet"}).Color)
	assert.Equal(t, render.DefaultLinkStyle.Color, linkStyle(&models.Link{}).Color)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scheme.csv")
	require.NoError(t, os.WriteFile(path, []byte("source,target\n1,2\n"), 0o644))

	g, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 2)

	_, err = LoadFile(filepath.Join(dir, "scheme.sql"))
	assert.ErrorContains(t, err, "unsupported")

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	_, err = GetProcessor("LOG")
	assert.NoError(t, err)
}
