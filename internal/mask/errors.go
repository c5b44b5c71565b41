package mask

import "errors"

var (
	// ErrDegenerate is returned for polygons with too few vertices, non-finite
	// coordinates or zero area.
	ErrDegenerate = errors.New("degenerate polygon")

	// ErrSelfIntersecting is returned when two non-adjacent edges of a ring meet.
	ErrSelfIntersecting = errors.New("self-intersecting polygon")

	// ErrOutsideRaster is returned when a polygon does not overlap the raster.
	ErrOutsideRaster = errors.New("polygon outside raster")

	// ErrEmptyMask is returned when no pixel centre falls inside the polygon.
	ErrEmptyMask = errors.New("polygon covers no pixel centres")
)
