// Package models provides the graph data model shared by the simulation,
// the renderers and the editing controller.
//
// Nodes and links reference each other directly: a link points at its two
// endpoint nodes and every node caches its incident links and neighbours.
// A link does not own its endpoints; node lifetime is governed by the
// graph's node list.
package models

import (
	"time"
)

// Node represents a stitch (or any vertex) in the graph.
type Node struct {
	ID    int            `json:"id"`
	Label string         `json:"label,omitempty"`
	Kind  string         `json:"kind,omitempty"`
	Data  map[string]any `json:"data,omitempty"`

	// Position and velocity, mutated by the simulation every tick.
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx,omitempty"`
	VY float64 `json:"vy,omitempty"`

	// Placed is false until the node has resolved coordinates.
	Placed bool `json:"-"`

	// Pinned position. While set, the simulation does not move the node.
	FX *float64 `json:"fx,omitempty"`
	FY *float64 `json:"fy,omitempty"`

	// Adjacency caches, one entry per incident link.
	Neighbors []*Node `json:"-"`
	Links     []*Link `json:"-"`

	// IndexColor is the identity colour on the shadow canvas, empty until
	// registered.
	IndexColor string `json:"-"`
}

// Link represents a connection between two nodes.
type Link struct {
	ID     int            `json:"id"`
	Source *Node          `json:"-"`
	Target *Node          `json:"-"`
	Kind   string         `json:"kind,omitempty"`
	Data   map[string]any `json:"data,omitempty"`

	// Attraction force parameters. Zero means "use the force default".
	Strength float64 `json:"strength,omitempty"`
	Distance float64 `json:"distance,omitempty"`

	IndexColor string `json:"-"`
}

// Graph is the aggregate of nodes and links exposed through the
// simulation's graph cell.
type Graph struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Nodes     []*Node   `json:"nodes"`
	Links     []*Link   `json:"links"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SerializableLink is a link with endpoints replaced by node ids.
type SerializableLink struct {
	ID       int            `json:"id"`
	Source   int            `json:"source"`
	Target   int            `json:"target"`
	Kind     string         `json:"kind,omitempty"`
	Strength float64        `json:"strength,omitempty"`
	Distance float64        `json:"distance,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// SerializableGraph is the on-disk form of a Graph.
type SerializableGraph struct {
	ID    string             `json:"id,omitempty"`
	Name  string             `json:"name,omitempty"`
	Nodes []Node             `json:"nodes"`
	Links []SerializableLink `json:"links"`
}
