package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/PlatformStories/rf-pool-classifier/internal/mask"
)

// BandStats emits mean, standard deviation, minimum and maximum for every band.
type BandStats struct{}

// Name implements Extractor.
func (BandStats) Name() string { return "band_stats" }

// Dim implements Extractor.
func (BandStats) Dim(bands int) int { return 4 * bands }

// Extract implements Extractor.
func (BandStats) Extract(chip *mask.Chip) []float64 {
	vec := make([]float64, 0, 4*chip.Bands())
	for b := 0; b < chip.Bands(); b++ {
		values := chip.Values(b)
		if len(values) == 0 {
			nan := math.NaN()
			vec = append(vec, nan, nan, nan, nan)
			continue
		}
		mean, std := stat.PopMeanStdDev(values, nil)
		vec = append(vec, mean, std, floats.Min(values), floats.Max(values))
	}
	return vec
}
