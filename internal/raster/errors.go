package raster

import "errors"

var (
	// ErrInvalidRaster is returned when raster dimensions or band counts are unusable.
	ErrInvalidRaster = errors.New("invalid raster")

	// ErrSingularTransform is returned when a geotransform cannot be inverted.
	ErrSingularTransform = errors.New("geotransform is not invertible")

	// ErrUnsupportedFormat is returned when a file's pixel layout cannot be decoded.
	ErrUnsupportedFormat = errors.New("unsupported raster format")

	// ErrBandStackMismatch is returned when stacked band files differ in size.
	ErrBandStackMismatch = errors.New("band files differ in dimensions")
)
