// Package ingest turns JSON, CSV and relationship-log files into graphs
// for the viewer and the editor.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/TFMV/stitchgraph/models"
	"github.com/TFMV/stitchgraph/render"
)

// ErrUnknownEndpoint is returned when a link references a node id that the
// input never declares.
var ErrUnknownEndpoint = errors.New("link references unknown node")

// DataProcessor defines the interface that all data processors must implement
type DataProcessor interface {
	// ProcessData takes raw data bytes and returns a graph
	ProcessData(data []byte) (*models.Graph, error)

	// GetName returns the name of the processor
	GetName() string
}

// Palette provides color schemes for graph visualization
type Palette struct {
	NodeColors []string
	LinkColors map[string]string
	Background string
}

// DefaultPalette returns the palette used for plain graphs.
func DefaultPalette() *Palette {
	return &Palette{
		NodeColors: []string{
			"#1f78b4",
			"#33a02c",
			"#e31a1c",
			"#ff7f00",
			"#6a3d9a",
			"#b15928",
		},
		LinkColors: map[string]string{},
		Background: "#ffffff",
	}
}

// StitchPalette colours crochet schemes by link kind.
func StitchPalette() *Palette {
	p := DefaultPalette()
	p.LinkColors = map[string]string{
		"chain":       "rgba(0,0,0,0.4)",
		"direct":      "#1f78b4",
		"crochet":     "#e31a1c",
		"crochetSide": "rgba(0,0,0,0.15)",
	}
	p.Background = "#fdfaf3"
	return p
}

// kindColor returns the colour for the i-th distinct node kind.
func (p *Palette) kindColor(i int) string {
	if len(p.NodeColors) == 0 {
		return render.DefaultNodeStyle.Color
	}
	return p.NodeColors[i%len(p.NodeColors)]
}

// Styles returns render styles that colour nodes by kind, in order of first
// appearance in g, and links by the palette's kind table.
func (p *Palette) Styles(g *models.Graph) (render.NodeStyleFunc, render.LinkStyleFunc) {
	kinds := make(map[string]string)
	for _, n := range g.Nodes {
		if _, ok := kinds[n.Kind]; !ok {
			kinds[n.Kind] = p.kindColor(len(kinds))
		}
	}
	nodeStyle := func(n *models.Node) render.NodeStyle {
		s := render.DefaultNodeStyle
		if c, ok := kinds[n.Kind]; ok {
			s.Color = c
		}
		return s
	}
	linkStyle := func(l *models.Link) render.LinkStyle {
		s := render.DefaultLinkStyle
		if c, ok := p.LinkColors[l.Kind]; ok {
			s.Color = c
		}
		return s
	}
	return nodeStyle, linkStyle
}

// builder collects nodes by external id and assigns sequential graph ids.
type builder struct {
	graph *models.Graph
	byKey map[string]*models.Node
}

func newBuilder(name string) *builder {
	return &builder{graph: models.NewGraph(name), byKey: make(map[string]*models.Node)}
}

// node returns the node for key, creating an unplaced one when create is
// set.
func (b *builder) node(key string, create bool) (*models.Node, bool) {
	if n, ok := b.byKey[key]; ok {
		return n, true
	}
	if !create {
		return nil, false
	}
	n := models.NewNode("", key)
	n.ID = len(b.graph.Nodes)
	b.graph.Nodes = append(b.graph.Nodes, n)
	b.byKey[key] = n
	return n, true
}

func (b *builder) link(l *models.Link, source, target *models.Node) {
	l.ID = len(b.graph.Links)
	l.Source = source
	l.Target = target
	l.Attach()
	b.graph.Links = append(b.graph.Links, l)
}

// externalID accepts both JSON strings and numbers as node ids.
type externalID string

func (id *externalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = externalID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("node id must be a string or a number: %w", err)
	}
	*id = externalID(n.String())
	return nil
}

type jsonLink struct {
	Source   externalID     `json:"source"`
	Target   externalID     `json:"target"`
	Kind     string         `json:"kind"`
	Weight   float64        `json:"weight"`
	Strength float64        `json:"strength"`
	Distance float64        `json:"distance"`
	Data     map[string]any `json:"data,omitempty"`
}

// JSONProcessor handles JSON data. It reads both its own export format
// ("links") and the common nodes/edges layout.
type JSONProcessor struct{}

// NewJSONProcessor creates a new JSON processor
func NewJSONProcessor() *JSONProcessor {
	return &JSONProcessor{}
}

// GetName returns the name of the processor
func (p *JSONProcessor) GetName() string {
	return "JSON Processor"
}

// ProcessData processes JSON data
func (p *JSONProcessor) ProcessData(data []byte) (*models.Graph, error) {
	var graphData struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Nodes []struct {
			ID    externalID     `json:"id"`
			Label string         `json:"label"`
			Kind  string         `json:"kind"`
			X     *float64       `json:"x"`
			Y     *float64       `json:"y"`
			FX    *float64       `json:"fx"`
			FY    *float64       `json:"fy"`
			Data  map[string]any `json:"data,omitempty"`
		} `json:"nodes"`
		Links []jsonLink `json:"links"`
		Edges []jsonLink `json:"edges"`
	}

	if err := json.Unmarshal(data, &graphData); err != nil {
		return nil, fmt.Errorf("error parsing JSON: %w", err)
	}

	name := graphData.Name
	if name == "" {
		name = "JSON Import"
	}
	b := newBuilder(name)
	if graphData.ID != "" {
		b.graph.ID = graphData.ID
	}

	for i, n := range graphData.Nodes {
		key := string(n.ID)
		if key == "" {
			key = strconv.Itoa(i)
		}
		if _, dup := b.byKey[key]; dup {
			return nil, fmt.Errorf("duplicate node id %q", key)
		}
		node, _ := b.node(key, true)
		node.Label = n.Label
		node.Kind = n.Kind
		node.Data = n.Data
		if n.X != nil && n.Y != nil {
			node.SetPosition(*n.X, *n.Y)
		}
		node.FX, node.FY = n.FX, n.FY
	}

	for _, e := range append(graphData.Links, graphData.Edges...) {
		source, ok := b.node(string(e.Source), false)
		if !ok {
			return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownEndpoint, e.Source, e.Target)
		}
		target, ok := b.node(string(e.Target), false)
		if !ok {
			return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownEndpoint, e.Source, e.Target)
		}
		strength := e.Strength
		if strength == 0 {
			strength = e.Weight
		}
		b.link(&models.Link{Kind: e.Kind, Strength: strength, Distance: e.Distance, Data: e.Data}, source, target)
	}

	return b.graph, nil
}

// CSVProcessor handles CSV edge lists. Nodes are created on first mention.
type CSVProcessor struct{}

// NewCSVProcessor creates a new CSV processor
func NewCSVProcessor() *CSVProcessor {
	return &CSVProcessor{}
}

// GetName returns the name of the processor
func (p *CSVProcessor) GetName() string {
	return "CSV Processor"
}

// ProcessData processes CSV data
func (p *CSVProcessor) ProcessData(data []byte) (*models.Graph, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV header: %w", err)
	}

	sourceIdx, targetIdx, weightIdx, kindIdx := -1, -1, -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "source", "from", "src":
			sourceIdx = i
		case "target", "to", "dst":
			targetIdx = i
		case "weight", "value", "strength":
			weightIdx = i
		case "kind", "type":
			kindIdx = i
		}
	}
	if sourceIdx == -1 || targetIdx == -1 {
		return nil, fmt.Errorf("CSV must contain source and target columns")
	}

	b := newBuilder("CSV Import")
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV row: %w", err)
		}
		if sourceIdx >= len(row) || targetIdx >= len(row) {
			return nil, fmt.Errorf("CSV line %d: missing source or target", line)
		}

		source, _ := b.node(strings.TrimSpace(row[sourceIdx]), true)
		target, _ := b.node(strings.TrimSpace(row[targetIdx]), true)
		l := &models.Link{}
		if weightIdx >= 0 && weightIdx < len(row) {
			if w, err := strconv.ParseFloat(strings.TrimSpace(row[weightIdx]), 64); err == nil {
				l.Strength = w
			}
		}
		if kindIdx >= 0 && kindIdx < len(row) {
			l.Kind = strings.TrimSpace(row[kindIdx])
		}
		b.link(l, source, target)
	}

	return b.graph, nil
}

// LogProcessor handles relationship logs such as "A -> B" or "X linked to
// Y", one relationship per line. Lines that match no pattern are skipped.
type LogProcessor struct{}

// NewLogProcessor creates a new log processor
func NewLogProcessor() *LogProcessor {
	return &LogProcessor{}
}

// GetName returns the name of the processor
func (p *LogProcessor) GetName() string {
	return "Log Processor"
}

var logSeparators = []string{" -> ", " => ", " connected to ", " connects to ", " links to ", " linked to ", " - "}

// ProcessData processes log data
func (p *LogProcessor) ProcessData(data []byte) (*models.Graph, error) {
	b := newBuilder("Log Import")
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, sep := range logSeparators {
			parts := strings.Split(line, sep)
			if len(parts) != 2 {
				continue
			}
			source, _ := b.node(strings.TrimSpace(parts[0]), true)
			target, _ := b.node(strings.TrimSpace(parts[1]), true)
			b.link(&models.Link{}, source, target)
			break
		}
	}
	return b.graph, nil
}

// GetProcessor returns the appropriate processor for the given format
func GetProcessor(format string) (DataProcessor, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "json":
		return NewJSONProcessor(), nil
	case "csv":
		return NewCSVProcessor(), nil
	case "log", "txt":
		return NewLogProcessor(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// LoadFile reads path and picks the processor from its extension.
func LoadFile(path string) (*models.Graph, error) {
	processor, err := GetProcessor(filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	g, err := processor.ProcessData(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", processor.GetName(), err)
	}
	return g, nil
}
