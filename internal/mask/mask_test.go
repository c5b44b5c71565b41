package mask

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/PlatformStories/rf-pool-classifier/internal/raster"
)

// northUp is a 1-unit grid whose upper edge sits at y=10.
var northUp = raster.GeoTransform{0, 1, 0, 10, 0, -1}

func newTestRaster(t *testing.T, bands int) *raster.Raster {
	t.Helper()
	r, err := raster.New(bands, 10, 10, northUp)
	if err != nil {
		t.Fatalf("raster.New() error: %v", err)
	}
	for b := 0; b < bands; b++ {
		for row := 0; row < 10; row++ {
			for col := 0; col < 10; col++ {
				r.Set(b, col, row, float64(100*b+10*row+col))
			}
		}
	}
	return r
}

func square(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

func TestMask_Square(t *testing.T) {
	r := newTestRaster(t, 2)

	chip, err := Mask(r, orb.MultiPolygon{square(2, 2, 5, 5)})
	if err != nil {
		t.Fatalf("Mask() error: %v", err)
	}

	if chip.Width != 3 || chip.Height != 3 {
		t.Errorf("chip size = %dx%d, want 3x3", chip.Width, chip.Height)
	}
	if chip.Col0 != 2 || chip.Row0 != 5 {
		t.Errorf("chip origin = (%d,%d), want (2,5)", chip.Col0, chip.Row0)
	}
	if chip.Bands() != 2 {
		t.Errorf("Bands() = %d, want 2", chip.Bands())
	}
	if got := chip.ValidCount(); got != 9 {
		t.Errorf("ValidCount() = %d, want 9", got)
	}
	// Upper-left chip pixel is raster pixel (2,5).
	if got := chip.Data[1][0]; got != 100+50+2 {
		t.Errorf("chip.Data[1][0] = %v, want 152", got)
	}
}

func TestMask_ConcaveAndHoles(t *testing.T) {
	r := newTestRaster(t, 1)

	lShape := orb.Polygon{{{0, 0}, {6, 0}, {6, 2}, {2, 2}, {2, 6}, {0, 6}, {0, 0}}}
	withHole := orb.Polygon{
		{{0, 0}, {6, 0}, {6, 6}, {0, 6}, {0, 0}},
		{{2, 2}, {4, 2}, {4, 4}, {2, 4}, {2, 2}},
	}

	tests := []struct {
		name      string
		geometry  orb.MultiPolygon
		wantValid int
		wantSize  [2]int
	}{
		{name: "concave L", geometry: orb.MultiPolygon{lShape}, wantValid: 12 + 8, wantSize: [2]int{6, 6}},
		{name: "hole", geometry: orb.MultiPolygon{withHole}, wantValid: 36 - 4, wantSize: [2]int{6, 6}},
		{name: "two parts", geometry: orb.MultiPolygon{square(0, 0, 1, 1), square(8, 8, 10, 10)}, wantValid: 1 + 4, wantSize: [2]int{10, 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chip, err := Mask(r, tt.geometry)
			if err != nil {
				t.Fatalf("Mask() error: %v", err)
			}
			if got := chip.ValidCount(); got != tt.wantValid {
				t.Errorf("ValidCount() = %d, want %d", got, tt.wantValid)
			}
			if chip.Width != tt.wantSize[0] || chip.Height != tt.wantSize[1] {
				t.Errorf("chip size = %dx%d, want %dx%d", chip.Width, chip.Height, tt.wantSize[0], tt.wantSize[1])
			}
		})
	}
}

func TestMask_ValidPixelsInsidePolygon(t *testing.T) {
	r, err := raster.New(1, 40, 30, raster.GeoTransform{1000, 0.5, 0, 2000, 0, -0.5})
	if err != nil {
		t.Fatalf("raster.New() error: %v", err)
	}

	polygons := []orb.Polygon{
		{{{1002.2, 1990.3}, {1010.7, 1991.1}, {1006.1, 1998.9}, {1002.2, 1990.3}}},
		{{{1001, 1986}, {1019, 1986}, {1019, 1999}, {1010, 1992}, {1001, 1999}, {1001, 1986}}},
		{
			{{1003, 1988}, {1017, 1988}, {1017, 1998}, {1003, 1998}, {1003, 1988}},
			{{1008, 1991}, {1012, 1991}, {1012, 1995}, {1008, 1995}, {1008, 1991}},
		},
	}

	for i, poly := range polygons {
		chip, err := Mask(r, orb.MultiPolygon{poly})
		if err != nil {
			t.Fatalf("polygon %d: Mask() error: %v", i, err)
		}
		for row := 0; row < chip.Height; row++ {
			for col := 0; col < chip.Width; col++ {
				center := r.Transform.PixelCenter(chip.Col0+col, chip.Row0+row)
				inside := planar.PolygonContains(poly, center)
				if chip.Valid[row*chip.Width+col] != inside {
					t.Errorf("polygon %d: pixel (%d,%d) valid=%v, inside=%v",
						i, chip.Col0+col, chip.Row0+row, chip.Valid[row*chip.Width+col], inside)
				}
			}
		}

		// No pixel outside the chip window may lie inside the polygon.
		total := 0
		for row := 0; row < r.Height; row++ {
			for col := 0; col < r.Width; col++ {
				if planar.PolygonContains(poly, r.Transform.PixelCenter(col, row)) {
					total++
				}
			}
		}
		if total != chip.ValidCount() {
			t.Errorf("polygon %d: chip holds %d inside pixels, raster has %d", i, chip.ValidCount(), total)
		}
	}
}

func TestMask_RotatedTransform(t *testing.T) {
	r, err := raster.New(1, 20, 20, raster.GeoTransform{0, 1, 0.2, 0, 0.2, 1})
	if err != nil {
		t.Fatalf("raster.New() error: %v", err)
	}
	poly := square(4, 4, 9, 9)

	chip, err := Mask(r, orb.MultiPolygon{poly})
	if err != nil {
		t.Fatalf("Mask() error: %v", err)
	}

	total := 0
	for row := 0; row < r.Height; row++ {
		for col := 0; col < r.Width; col++ {
			if planar.PolygonContains(poly, r.Transform.PixelCenter(col, row)) {
				total++
			}
		}
	}
	if total == 0 || total != chip.ValidCount() {
		t.Errorf("ValidCount() = %d, raster has %d inside pixels", chip.ValidCount(), total)
	}
}

func TestMask_ClipsToRaster(t *testing.T) {
	r := newTestRaster(t, 1)

	chip, err := Mask(r, orb.MultiPolygon{square(-5, 8, 2, 15)})
	if err != nil {
		t.Fatalf("Mask() error: %v", err)
	}
	if chip.Col0 != 0 || chip.Row0 != 0 {
		t.Errorf("chip origin = (%d,%d), want (0,0)", chip.Col0, chip.Row0)
	}
	if got := chip.ValidCount(); got != 4 {
		t.Errorf("ValidCount() = %d, want 4", got)
	}
}

func TestMask_Errors(t *testing.T) {
	r := newTestRaster(t, 1)

	tests := []struct {
		name     string
		geometry orb.MultiPolygon
		wantErr  error
	}{
		{name: "outside", geometry: orb.MultiPolygon{square(20, 20, 25, 25)}, wantErr: ErrOutsideRaster},
		{name: "between centres", geometry: orb.MultiPolygon{square(2.1, 2.1, 2.4, 2.4)}, wantErr: ErrEmptyMask},
		{name: "empty", geometry: orb.MultiPolygon{}, wantErr: ErrDegenerate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Mask(r, tt.geometry)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Mask() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMask_NoDataExcluded(t *testing.T) {
	r := newTestRaster(t, 1)
	r.NoData, r.HasNoData = -1, true
	r.Set(0, 3, 6, -1)

	chip, err := Mask(r, orb.MultiPolygon{square(2, 2, 5, 5)})
	if err != nil {
		t.Fatalf("Mask() error: %v", err)
	}
	if got := chip.ValidCount(); got != 8 {
		t.Errorf("ValidCount() = %d, want 8", got)
	}
	for _, v := range chip.Values(0) {
		if v == -1 {
			t.Error("nodata sample leaked into valid values")
		}
	}
}

func TestChipValues(t *testing.T) {
	chip := &Chip{
		Width:  2,
		Height: 2,
		Data:   [][]float64{{1, 2, 3, 4}},
		Valid:  []bool{true, false, false, true},
	}
	got := chip.Values(0)
	if len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Errorf("Values(0) = %v, want [1 4]", got)
	}
}

func TestValidate(t *testing.T) {
	nan := math.NaN()

	tests := []struct {
		name     string
		geometry orb.MultiPolygon
		wantErr  error
	}{
		{name: "square", geometry: orb.MultiPolygon{square(0, 0, 1, 1)}},
		{name: "open triangle", geometry: orb.MultiPolygon{{{{0, 0}, {1, 0}, {0, 1}}}}},
		{
			name: "square with hole",
			geometry: orb.MultiPolygon{{
				{{0, 0}, {6, 0}, {6, 6}, {0, 6}, {0, 0}},
				{{2, 2}, {4, 2}, {4, 4}, {2, 4}, {2, 2}},
			}},
		},
		{name: "empty", geometry: orb.MultiPolygon{}, wantErr: ErrDegenerate},
		{name: "no rings", geometry: orb.MultiPolygon{{}}, wantErr: ErrDegenerate},
		{name: "two vertices", geometry: orb.MultiPolygon{{{{0, 0}, {1, 1}, {0, 0}}}}, wantErr: ErrDegenerate},
		{name: "repeated vertices", geometry: orb.MultiPolygon{{{{0, 0}, {0, 0}, {1, 1}, {1, 1}, {0, 0}}}}, wantErr: ErrDegenerate},
		{name: "collinear", geometry: orb.MultiPolygon{{{{0, 0}, {1, 1}, {2, 2}, {0, 0}}}}, wantErr: ErrDegenerate},
		{name: "nan", geometry: orb.MultiPolygon{{{{0, 0}, {nan, 1}, {1, 1}, {0, 0}}}}, wantErr: ErrDegenerate},
		{name: "bowtie", geometry: orb.MultiPolygon{{{{0, 0}, {4, 4}, {4, 0}, {0, 2}, {0, 0}}}}, wantErr: ErrSelfIntersecting},
		{
			name: "second part degenerate",
			geometry: orb.MultiPolygon{
				square(0, 0, 1, 1),
				{{{5, 5}, {6, 6}, {5, 5}}},
			},
			wantErr: ErrDegenerate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.geometry)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
