package route

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"terrainroute/internal/pathfinding"
)

// Document is the exported form of a planned route.
type Document struct {
	Status       pathfinding.Status     `json:"status" yaml:"status"`
	Cost         float64                `json:"cost" yaml:"cost"`
	PlanarLength float64                `json:"planarLength" yaml:"planar_length"`
	Length       float64                `json:"length" yaml:"length"`
	Waypoints    []pathfinding.Waypoint `json:"waypoints" yaml:"waypoints"`
	Points       []Point                `json:"points,omitempty" yaml:"points,omitempty"`
}

// NewDocument summarises r. Points are left for the caller to fill from
// Resample.
func NewDocument(r pathfinding.Route) Document {
	planar, surface := Length(r.Waypoints)
	return Document{
		Status:       r.Status,
		Cost:         r.Cost,
		PlanarLength: planar,
		Length:       surface,
		Waypoints:    r.Waypoints,
	}
}

// EncodeYAML writes doc to w.
func EncodeYAML(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode route: %w", err)
	}
	return enc.Close()
}

// DecodeYAML reads a document written by EncodeYAML.
func DecodeYAML(r io.Reader) (Document, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode route: %w", err)
	}
	return doc, nil
}
