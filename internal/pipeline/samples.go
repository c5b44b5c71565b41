package pipeline

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/PlatformStories/rf-pool-classifier/pkg/geojson"
)

// Sample is one labeled training polygon. Index is its position in the
// source feature collection.
type Sample struct {
	Index    int
	Label    string
	Geometry orb.MultiPolygon
}

// Skip records a polygon left out of training.
type Skip struct {
	Index  int
	Label  string
	Reason string
}

// LoadSamples converts the features of fc into samples labeled by the
// string property labelProperty. Features without a usable label or with a
// non-polygonal geometry are skipped.
func LoadSamples(fc *geojson.FeatureCollection, labelProperty string) ([]Sample, []Skip, error) {
	if fc == nil || len(fc.Features) == 0 {
		return nil, nil, fmt.Errorf("%w: feature collection is empty", ErrNoTrainingSamples)
	}

	samples := make([]Sample, 0, len(fc.Features))
	var skipped []Skip
	for i, f := range fc.Features {
		if f == nil {
			skipped = append(skipped, Skip{Index: i, Reason: "null feature"})
			continue
		}

		label, ok := f.StringProperty(labelProperty)
		if !ok {
			skipped = append(skipped, Skip{Index: i, Reason: fmt.Sprintf("missing string property %q", labelProperty)})
			continue
		}

		if f.Geometry == nil {
			skipped = append(skipped, Skip{Index: i, Label: label, Reason: "null geometry"})
			continue
		}
		mp, err := f.Geometry.Polygonal()
		if err != nil {
			skipped = append(skipped, Skip{Index: i, Label: label, Reason: err.Error()})
			continue
		}

		samples = append(samples, Sample{Index: i, Label: label, Geometry: mp})
	}

	if len(samples) == 0 {
		return nil, skipped, fmt.Errorf("%w: all %d features were skipped", ErrNoTrainingSamples, len(fc.Features))
	}
	return samples, skipped, nil
}
