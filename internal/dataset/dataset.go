// Package dataset assembles per-polygon feature vectors and labels into an
// index-aligned training matrix.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrMisaligned is returned when the number of vectors and labels differ.
	ErrMisaligned = errors.New("misaligned dataset")

	// ErrNoSamples is returned when there is nothing to assemble.
	ErrNoSamples = errors.New("no training samples")

	// ErrRaggedVectors is returned when feature vectors differ in length.
	ErrRaggedVectors = errors.New("feature vectors differ in length")
)

// Dataset is a training matrix X with one row per sample and the labels Y,
// aligned by row index.
type Dataset struct {
	X *mat.Dense
	Y []string

	// Sanitized counts the NaN and infinite cells that were replaced by zero.
	// A non-zero count may hide an upstream extraction failure.
	Sanitized int
}

// Assemble copies vectors into a dense matrix, replacing every NaN, +Inf and
// -Inf with zero. Row i of X always corresponds to labels[i].
func Assemble(vectors [][]float64, labels []string) (*Dataset, error) {
	if len(vectors) != len(labels) {
		return nil, fmt.Errorf("%w: %d feature vectors, %d labels", ErrMisaligned, len(vectors), len(labels))
	}
	if len(vectors) == 0 {
		return nil, ErrNoSamples
	}

	cols := len(vectors[0])
	if cols == 0 {
		return nil, fmt.Errorf("%w: empty feature vector", ErrRaggedVectors)
	}

	data := make([]float64, 0, len(vectors)*cols)
	sanitized := 0
	for i, vec := range vectors {
		if len(vec) != cols {
			return nil, fmt.Errorf("%w: row %d has %d features, expected %d", ErrRaggedVectors, i, len(vec), cols)
		}
		for _, v := range vec {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
				sanitized++
			}
			data = append(data, v)
		}
	}

	y := make([]string, len(labels))
	copy(y, labels)

	return &Dataset{
		X:         mat.NewDense(len(vectors), cols, data),
		Y:         y,
		Sanitized: sanitized,
	}, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Y)
}

// Features returns the number of columns in X.
func (d *Dataset) Features() int {
	_, c := d.X.Dims()
	return c
}

// Classes returns the distinct labels in ascending order.
func (d *Dataset) Classes() []string {
	counts := d.ClassCounts()
	classes := make([]string, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return classes
}

// ClassCounts returns the number of samples per label.
func (d *Dataset) ClassCounts() map[string]int {
	counts := make(map[string]int)
	for _, label := range d.Y {
		counts[label]++
	}
	return counts
}
