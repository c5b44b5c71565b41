// Package geojson provides GeoJSON feature and geometry types for labeled training polygons.
package geojson

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb"
)

// Geometry represents a GeoJSON geometry object.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Feature represents a GeoJSON feature with free-form properties.
type Feature struct {
	Type       string         `json:"type"`
	ID         any            `json:"id,omitempty"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// FeatureCollection represents a GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// ReadFeatureCollection reads and decodes a FeatureCollection from a file.
func ReadFeatureCollection(path string) (*FeatureCollection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geojson file: %w", err)
	}
	defer f.Close()

	fc, err := DecodeFeatureCollection(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return fc, nil
}

// DecodeFeatureCollection decodes a FeatureCollection from r.
func DecodeFeatureCollection(r io.Reader) (*FeatureCollection, error) {
	var fc FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal FeatureCollection: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected type FeatureCollection, got %q", fc.Type)
	}
	return &fc, nil
}

// StringProperty returns the named property when it is a non-empty string.
func (f *Feature) StringProperty(name string) (string, bool) {
	if f == nil || f.Properties == nil {
		return "", false
	}
	s, ok := f.Properties[name].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Polygon returns the coordinates as an orb.Polygon. The first ring is the
// exterior, the rest are holes.
// Returns error if geometry is not a Polygon.
func (g *Geometry) Polygon() (orb.Polygon, error) {
	if g.Type != "Polygon" {
		return nil, fmt.Errorf("geometry is not a Polygon, got %s", g.Type)
	}
	var coords [][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Polygon coordinates: %w", err)
	}
	return toPolygon(coords)
}

// MultiPolygon returns the coordinates as an orb.MultiPolygon.
// Returns error if geometry is not a MultiPolygon.
func (g *Geometry) MultiPolygon() (orb.MultiPolygon, error) {
	if g.Type != "MultiPolygon" {
		return nil, fmt.Errorf("geometry is not a MultiPolygon, got %s", g.Type)
	}
	var coords [][][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MultiPolygon coordinates: %w", err)
	}
	mp := make(orb.MultiPolygon, 0, len(coords))
	for i, polygon := range coords {
		p, err := toPolygon(polygon)
		if err != nil {
			return nil, fmt.Errorf("polygon %d: %w", i, err)
		}
		mp = append(mp, p)
	}
	return mp, nil
}

// Polygonal returns a Polygon or MultiPolygon geometry as an orb.MultiPolygon.
// A Polygon becomes a MultiPolygon with a single member.
func (g *Geometry) Polygonal() (orb.MultiPolygon, error) {
	if g == nil {
		return nil, fmt.Errorf("geometry is nil")
	}
	switch g.Type {
	case "Polygon":
		p, err := g.Polygon()
		if err != nil {
			return nil, err
		}
		return orb.MultiPolygon{p}, nil
	case "MultiPolygon":
		return g.MultiPolygon()
	default:
		return nil, fmt.Errorf("unsupported geometry type: %s", g.Type)
	}
}

// BoundToBBox converts an orb.Bound to [west, south, east, north].
func BoundToBBox(b orb.Bound) []float64 {
	return []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

// NewPolygonFromBBox creates a polygon geometry from a bounding box.
// bbox should be [west, south, east, north].
func NewPolygonFromBBox(bbox []float64) (*Geometry, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values [west, south, east, north], got %d", len(bbox))
	}

	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]

	coords := [][][]float64{
		{
			{west, south},
			{east, south},
			{east, north},
			{west, north},
			{west, south}, // Close the ring
		},
	}

	coordsJSON, err := json.Marshal(coords)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal polygon coordinates: %w", err)
	}

	return &Geometry{
		Type:        "Polygon",
		Coordinates: coordsJSON,
	}, nil
}

func toPoint(coords []float64) (orb.Point, error) {
	if len(coords) < 2 {
		return orb.Point{}, fmt.Errorf("invalid position: expected at least 2 values, got %d", len(coords))
	}
	if math.IsNaN(coords[0]) || math.IsNaN(coords[1]) {
		return orb.Point{}, fmt.Errorf("invalid position: NaN coordinate")
	}
	return orb.Point{coords[0], coords[1]}, nil
}

func toPolygon(coords [][][]float64) (orb.Polygon, error) {
	polygon := make(orb.Polygon, 0, len(coords))
	for i, ring := range coords {
		r := make(orb.Ring, 0, len(ring))
		for _, position := range ring {
			p, err := toPoint(position)
			if err != nil {
				return nil, fmt.Errorf("ring %d: %w", i, err)
			}
			r = append(r, p)
		}
		polygon = append(polygon, r)
	}
	return polygon, nil
}
