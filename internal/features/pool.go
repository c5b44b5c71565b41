package features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/PlatformStories/rf-pool-classifier/internal/mask"
)

// normalizedDifference is the per-pixel index (a-b)/(a+b) over two bands.
type normalizedDifference struct {
	name string
	a, b int
}

// Band layouts by band count:
//
//	8: coastal, blue, green, yellow, red, red edge, NIR1, NIR2 (WorldView-2)
//	4: blue, green, red, NIR
//	3: red, green, blue
var poolIndices = map[int][]normalizedDifference{
	8: {
		{name: "water", a: 0, b: 7},
		{name: "ndvi", a: 6, b: 4},
		{name: "blue_red", a: 1, b: 4},
	},
	4: {
		{name: "ndwi", a: 1, b: 3},
		{name: "ndvi", a: 3, b: 2},
	},
	3: {
		{name: "blue_red", a: 2, b: 0},
	},
}

// PoolBasic summarizes a chip for pool detection: per band mean and standard
// deviation, then the mean and standard deviation of the water and vegetation
// indices defined for the chip's band count.
type PoolBasic struct{}

// Name implements Extractor.
func (PoolBasic) Name() string { return "pool_basic" }

// Dim implements Extractor.
func (PoolBasic) Dim(bands int) int {
	return 2*bands + 2*len(poolIndices[bands])
}

// Extract implements Extractor. Indices whose denominator is zero at every
// valid pixel come out as NaN.
func (PoolBasic) Extract(chip *mask.Chip) []float64 {
	bands := chip.Bands()
	vec := make([]float64, 0, 2*bands+2*len(poolIndices[bands]))

	values := make([][]float64, bands)
	for b := 0; b < bands; b++ {
		values[b] = chip.Values(b)
		mean, std := stat.PopMeanStdDev(values[b], nil)
		vec = append(vec, mean, std)
	}

	for _, idx := range poolIndices[bands] {
		mean, std := indexStats(values[idx.a], values[idx.b])
		vec = append(vec, mean, std)
	}
	return vec
}

func indexStats(a, b []float64) (mean, std float64) {
	nd := make([]float64, 0, len(a))
	for i := range a {
		sum := a[i] + b[i]
		if sum == 0 {
			continue
		}
		nd = append(nd, (a[i]-b[i])/sum)
	}
	if len(nd) == 0 {
		return math.NaN(), math.NaN()
	}
	return stat.PopMeanStdDev(nd, nil)
}
