// Package raster provides an in-memory multi-band raster with an affine geotransform.
package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// GeoTransform maps pixel coordinates to world coordinates using GDAL ordering:
// [originX, pixelWidth, rotationX, originY, rotationY, pixelHeight].
//
//	x = gt[0] + col*gt[1] + row*gt[2]
//	y = gt[3] + col*gt[4] + row*gt[5]
type GeoTransform [6]float64

// IdentityTransform maps pixel coordinates onto themselves.
var IdentityTransform = GeoTransform{0, 1, 0, 0, 0, 1}

// PixelToWorld converts a (fractional) pixel position to world coordinates.
func (gt GeoTransform) PixelToWorld(col, row float64) orb.Point {
	return orb.Point{
		gt[0] + col*gt[1] + row*gt[2],
		gt[3] + col*gt[4] + row*gt[5],
	}
}

// PixelCenter returns the world coordinates of the centre of pixel (col, row).
func (gt GeoTransform) PixelCenter(col, row int) orb.Point {
	return gt.PixelToWorld(float64(col)+0.5, float64(row)+0.5)
}

// WorldToPixel converts world coordinates to a fractional pixel position.
func (gt GeoTransform) WorldToPixel(p orb.Point) (col, row float64, err error) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 || math.IsNaN(det) {
		return 0, 0, ErrSingularTransform
	}
	dx := p[0] - gt[0]
	dy := p[1] - gt[3]
	col = (gt[5]*dx - gt[2]*dy) / det
	row = (-gt[4]*dx + gt[1]*dy) / det
	return col, row, nil
}

// Validate reports whether the transform can be inverted.
func (gt GeoTransform) Validate() error {
	for _, v := range gt {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coefficient", ErrSingularTransform)
		}
	}
	if gt[1]*gt[5]-gt[2]*gt[4] == 0 {
		return ErrSingularTransform
	}
	return nil
}

// Raster is a band-major grid of samples. Band b, pixel (col, row) lives at
// Data[b][row*Width+col].
type Raster struct {
	Width     int
	Height    int
	Data      [][]float64
	Transform GeoTransform

	// Georeferenced is false when no transform was found and IdentityTransform is in use.
	Georeferenced bool

	// NoData marks samples that carry no measurement. Pixels where any band
	// equals NoData are excluded when masking.
	NoData    float64
	HasNoData bool
}

// New allocates a zeroed raster.
func New(bands, width, height int, gt GeoTransform) (*Raster, error) {
	if bands < 1 {
		return nil, fmt.Errorf("%w: raster needs at least one band, got %d", ErrInvalidRaster, bands)
	}
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrInvalidRaster, width, height)
	}
	if err := gt.Validate(); err != nil {
		return nil, err
	}

	data := make([][]float64, bands)
	for b := range data {
		data[b] = make([]float64, width*height)
	}

	return &Raster{
		Width:         width,
		Height:        height,
		Data:          data,
		Transform:     gt,
		Georeferenced: gt != IdentityTransform,
	}, nil
}

// Bands returns the number of bands.
func (r *Raster) Bands() int {
	return len(r.Data)
}

// At returns the sample of band b at pixel (col, row).
func (r *Raster) At(b, col, row int) float64 {
	return r.Data[b][row*r.Width+col]
}

// Set stores a sample of band b at pixel (col, row).
func (r *Raster) Set(b, col, row int, v float64) {
	r.Data[b][row*r.Width+col] = v
}

// IsNoData reports whether any band at (col, row) holds the nodata value.
func (r *Raster) IsNoData(col, row int) bool {
	if !r.HasNoData {
		return false
	}
	i := row*r.Width + col
	for b := range r.Data {
		v := r.Data[b][i]
		if v == r.NoData || (math.IsNaN(r.NoData) && math.IsNaN(v)) {
			return true
		}
	}
	return false
}

// Bound returns the world-space extent of the raster.
func (r *Raster) Bound() orb.Bound {
	w, h := float64(r.Width), float64(r.Height)
	b := r.Transform.PixelToWorld(0, 0).Bound()
	b = b.Extend(r.Transform.PixelToWorld(w, 0))
	b = b.Extend(r.Transform.PixelToWorld(0, h))
	b = b.Extend(r.Transform.PixelToWorld(w, h))
	return b
}
