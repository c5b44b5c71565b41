// Package mask crops a raster to a polygon and marks which pixels fall inside it.
package mask

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/PlatformStories/rf-pool-classifier/internal/raster"
)

// Chip is the raster window covering a polygon's bounding box. Valid runs
// parallel to each band and marks the pixels whose centres lie inside the
// polygon; pixels outside keep their raster values but must be ignored.
type Chip struct {
	Width  int
	Height int

	// Col0 and Row0 locate the chip's upper-left pixel in the source raster.
	Col0 int
	Row0 int

	Data      [][]float64
	Valid     []bool
	Transform raster.GeoTransform
}

// Bands returns the number of bands in the chip.
func (c *Chip) Bands() int {
	return len(c.Data)
}

// ValidCount returns the number of pixels inside the polygon.
func (c *Chip) ValidCount() int {
	n := 0
	for _, v := range c.Valid {
		if v {
			n++
		}
	}
	return n
}

// Values returns the valid samples of band b in row-major order.
func (c *Chip) Values(b int) []float64 {
	values := make([]float64, 0, len(c.Valid))
	for i, v := range c.Valid {
		if v {
			values = append(values, c.Data[b][i])
		}
	}
	return values
}

// Mask crops r to the bounding box of mp and flags every pixel whose centre
// is inside mp (holes and concave boundaries respected) and not nodata.
// All bands are preserved.
func Mask(r *raster.Raster, mp orb.MultiPolygon) (*Chip, error) {
	if len(mp) == 0 {
		return nil, fmt.Errorf("%w: empty geometry", ErrDegenerate)
	}

	col0, row0, col1, row1, err := window(r, mp.Bound())
	if err != nil {
		return nil, err
	}

	w, h := col1-col0+1, row1-row0+1
	chip := &Chip{
		Width:     w,
		Height:    h,
		Col0:      col0,
		Row0:      row0,
		Data:      make([][]float64, r.Bands()),
		Valid:     make([]bool, w*h),
		Transform: r.Transform,
	}
	origin := r.Transform.PixelToWorld(float64(col0), float64(row0))
	chip.Transform[0], chip.Transform[3] = origin[0], origin[1]

	for b := range chip.Data {
		chip.Data[b] = make([]float64, w*h)
	}

	valid := 0
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			i := row*w + col
			rc, rr := col0+col, row0+row
			for b := range chip.Data {
				chip.Data[b][i] = r.At(b, rc, rr)
			}
			if r.IsNoData(rc, rr) {
				continue
			}
			if planar.MultiPolygonContains(mp, r.Transform.PixelCenter(rc, rr)) {
				chip.Valid[i] = true
				valid++
			}
		}
	}

	if valid == 0 {
		return nil, ErrEmptyMask
	}
	return chip, nil
}

// window returns the inclusive pixel range whose centres can fall inside
// bound, clipped to the raster.
func window(r *raster.Raster, bound orb.Bound) (col0, row0, col1, row1 int, err error) {
	corners := []orb.Point{
		{bound.Min[0], bound.Min[1]},
		{bound.Max[0], bound.Min[1]},
		{bound.Min[0], bound.Max[1]},
		{bound.Max[0], bound.Max[1]},
	}

	minCol, minRow := math.Inf(1), math.Inf(1)
	maxCol, maxRow := math.Inf(-1), math.Inf(-1)
	for _, p := range corners {
		c, rr, err := r.Transform.WorldToPixel(p)
		if err != nil {
			return 0, 0, 0, 0, err
		}
		minCol, maxCol = math.Min(minCol, c), math.Max(maxCol, c)
		minRow, maxRow = math.Min(minRow, rr), math.Max(maxRow, rr)
	}

	// Pixel c has its centre at c+0.5.
	col0 = int(math.Ceil(minCol - 0.5))
	col1 = int(math.Floor(maxCol - 0.5))
	row0 = int(math.Ceil(minRow - 0.5))
	row1 = int(math.Floor(maxRow - 0.5))

	col0, row0 = max(col0, 0), max(row0, 0)
	col1, row1 = min(col1, r.Width-1), min(row1, r.Height-1)

	if col0 > col1 || row0 > row1 {
		if minCol >= float64(r.Width) || maxCol <= 0 || minRow >= float64(r.Height) || maxRow <= 0 {
			return 0, 0, 0, 0, ErrOutsideRaster
		}
		return 0, 0, 0, 0, ErrEmptyMask
	}
	return col0, row0, col1, row1, nil
}
