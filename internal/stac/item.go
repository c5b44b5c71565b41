// Package stac describes trained classifiers as STAC Items, wrapping
// planetlabs/go-stac for the core types.
package stac

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb"
	gostac "github.com/planetlabs/go-stac"

	"github.com/PlatformStories/rf-pool-classifier/pkg/geojson"
)

// Version is the STAC specification version written into items.
const Version = "1.0.0"

// Re-export core types from planetlabs/go-stac for convenience
type (
	Item  = gostac.Item
	Asset = gostac.Asset
	Link  = gostac.Link
)

// Asset roles and media types used for model items.
const (
	RoleCheckpoint = "ml-model:checkpoint"
	MediaTypeGob   = "application/x-gob"
)

// ModelMetadata is the training summary recorded in a model item.
type ModelMetadata struct {
	RunID     string
	TrainedAt time.Time

	// Bound covers every training polygon, in raster coordinates.
	Bound orb.Bound

	ArtifactPath   string
	ArtifactSize   int64
	ArtifactSHA256 string

	NEstimators  int
	Extractor    string
	FeatureCount int
	Classes      []string
	ClassCounts  map[string]int
	Samples      int
	Skipped      int
	Sanitized    int

	// OOBScore is left out of the item when NaN.
	OOBScore    float64
	Importances []float64
}

// NewItem creates a new STAC Item with the given ID.
func NewItem(id string) *gostac.Item {
	return &gostac.Item{
		Version:    Version,
		Id:         id,
		Properties: make(map[string]any),
		Assets:     make(map[string]*gostac.Asset),
		Links:      make([]*gostac.Link, 0),
	}
}

// NewModelItem builds the item describing a trained classifier artifact.
func NewModelItem(md ModelMetadata) (*gostac.Item, error) {
	if md.RunID == "" {
		return nil, fmt.Errorf("model item requires a run ID")
	}

	item := NewItem(md.RunID)

	bbox := geojson.BoundToBBox(md.Bound)
	geom, err := geojson.NewPolygonFromBBox(bbox)
	if err != nil {
		return nil, fmt.Errorf("failed to build footprint: %w", err)
	}
	item.Geometry = geom
	item.Bbox = bbox

	item.Properties["datetime"] = FormatTime(md.TrainedAt)

	// ML Model extension (https://stac-extensions.github.io/ml-model/v1.0.0/schema.json)
	item.Properties["ml-model:type"] = "ml-model"
	item.Properties["ml-model:learning_approach"] = "supervised"
	item.Properties["ml-model:prediction_type"] = "classification"
	item.Properties["ml-model:architecture"] = "random-forest"

	item.Properties["rfpc:n_estimators"] = md.NEstimators
	item.Properties["rfpc:feature_extractor"] = md.Extractor
	item.Properties["rfpc:feature_count"] = md.FeatureCount
	item.Properties["rfpc:classes"] = md.Classes
	if len(md.ClassCounts) > 0 {
		item.Properties["rfpc:class_counts"] = md.ClassCounts
	}
	item.Properties["rfpc:samples"] = md.Samples
	item.Properties["rfpc:skipped"] = md.Skipped
	item.Properties["rfpc:sanitized_values"] = md.Sanitized
	if !math.IsNaN(md.OOBScore) {
		item.Properties["rfpc:oob_score"] = md.OOBScore
	}
	if len(md.Importances) > 0 {
		item.Properties["rfpc:feature_importances"] = md.Importances
	}

	// go-stac assets carry no file extension fields, so size and checksum
	// live on the item.
	if md.ArtifactSHA256 != "" {
		item.Properties["rfpc:artifact_sha256"] = md.ArtifactSHA256
	}
	if md.ArtifactSize > 0 {
		item.Properties["rfpc:artifact_size"] = md.ArtifactSize
	}

	if md.ArtifactPath != "" {
		item.Assets["model"] = &gostac.Asset{
			Href:  filepath.Base(md.ArtifactPath),
			Title: "Random forest classifier",
			Type:  MediaTypeGob,
			Roles: []string{RoleCheckpoint},
		}
	}

	return item, nil
}

// FormatTime formats t as RFC3339 in UTC, truncated to seconds.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// SidecarPath returns the item path written beside an artifact:
// classifier.gob becomes classifier.stac.json.
func SidecarPath(artifactPath string) string {
	return strings.TrimSuffix(artifactPath, filepath.Ext(artifactPath)) + ".stac.json"
}

// Marshal encodes item as indented JSON.
func Marshal(item *gostac.Item) ([]byte, error) {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}
	return data, nil
}
