package geojson_test

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/PlatformStories/rf-pool-classifier/pkg/geojson"
)

func ExampleBoundToBBox() {
	// Create a Polygon geometry
	coords := [][][]float64{
		{{-122.5, 37.8}, {-122.4, 37.8}, {-122.4, 37.9}, {-122.5, 37.9}, {-122.5, 37.8}},
	}
	coordsJSON, _ := json.Marshal(coords)

	g := &geojson.Geometry{
		Type:        "Polygon",
		Coordinates: coordsJSON,
	}

	polygon, err := g.Polygon()
	if err != nil {
		log.Fatal(err)
	}
	bbox := geojson.BoundToBBox(polygon.Bound())

	fmt.Printf("BBox: [%f, %f, %f, %f]\n", bbox[0], bbox[1], bbox[2], bbox[3])
	// Output: BBox: [-122.500000, 37.800000, -122.400000, 37.900000]
}

func ExampleNewPolygonFromBBox() {
	// Create a polygon from a bounding box
	bbox := []float64{-122.5, 37.8, -122.4, 37.9}

	g, err := geojson.NewPolygonFromBBox(bbox)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Type: %s\n", g.Type)

	// Verify the bounding box
	polygon, _ := g.Polygon()
	computedBBox := geojson.BoundToBBox(polygon.Bound())
	fmt.Printf("BBox: [%f, %f, %f, %f]\n", computedBBox[0], computedBBox[1], computedBBox[2], computedBBox[3])
	// Output: Type: Polygon
	// BBox: [-122.500000, 37.800000, -122.400000, 37.900000]
}

func ExampleDecodeFeatureCollection() {
	input := `{"type":"FeatureCollection","features":[
		{"type":"Feature",
		 "geometry":{"type":"Polygon","coordinates":[[[0,0],[4,0],[4,4],[0,4],[0,0]]]},
		 "properties":{"class_name":"Swimming pool"}}]}`

	fc, err := geojson.DecodeFeatureCollection(strings.NewReader(input))
	if err != nil {
		log.Fatal(err)
	}

	label, _ := fc.Features[0].StringProperty("class_name")
	polygons, _ := fc.Features[0].Geometry.Polygonal()

	fmt.Printf("Label: %s\n", label)
	fmt.Printf("Rings: %d, vertices: %d\n", len(polygons[0]), len(polygons[0][0]))
	// Output: Label: Swimming pool
	// Rings: 1, vertices: 5
}
