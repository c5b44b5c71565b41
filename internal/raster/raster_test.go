package raster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"
)

func TestGeoTransformRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		gt   GeoTransform
	}{
		{name: "identity", gt: IdentityTransform},
		{name: "north up", gt: GeoTransform{500000, 0.5, 0, 4200000, 0, -0.5}},
		{name: "rotated", gt: GeoTransform{100, 2, 0.5, 200, 0.25, -2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.gt.PixelToWorld(3.25, 7.5)
			col, row, err := tt.gt.WorldToPixel(p)
			if err != nil {
				t.Fatalf("WorldToPixel() error: %v", err)
			}
			if math.Abs(col-3.25) > 1e-9 || math.Abs(row-7.5) > 1e-9 {
				t.Errorf("round trip = (%v, %v), want (3.25, 7.5)", col, row)
			}
		})
	}
}

func TestGeoTransformSingular(t *testing.T) {
	gt := GeoTransform{0, 1, 1, 0, 1, 1}
	if _, _, err := gt.WorldToPixel([2]float64{1, 1}); !errors.Is(err, ErrSingularTransform) {
		t.Errorf("expected ErrSingularTransform, got %v", err)
	}
	if err := gt.Validate(); !errors.Is(err, ErrSingularTransform) {
		t.Errorf("Validate() = %v, want ErrSingularTransform", err)
	}
}

func TestPixelCenter(t *testing.T) {
	gt := GeoTransform{10, 2, 0, 20, 0, -2}
	p := gt.PixelCenter(0, 0)
	if p[0] != 11 || p[1] != 19 {
		t.Errorf("PixelCenter(0,0) = %v, want [11 19]", p)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name          string
		bands, w, h   int
		gt            GeoTransform
		expectError   bool
		georeferenced bool
	}{
		{name: "valid", bands: 2, w: 4, h: 3, gt: GeoTransform{0, 1, 0, 10, 0, -1}, georeferenced: true},
		{name: "identity", bands: 1, w: 1, h: 1, gt: IdentityTransform},
		{name: "no bands", bands: 0, w: 4, h: 3, gt: IdentityTransform, expectError: true},
		{name: "zero width", bands: 1, w: 0, h: 3, gt: IdentityTransform, expectError: true},
		{name: "singular", bands: 1, w: 2, h: 2, gt: GeoTransform{}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.bands, tt.w, tt.h, tt.gt)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			if r.Bands() != tt.bands || len(r.Data[0]) != tt.w*tt.h {
				t.Errorf("unexpected layout: bands=%d samples=%d", r.Bands(), len(r.Data[0]))
			}
			if r.Georeferenced != tt.georeferenced {
				t.Errorf("Georeferenced = %v, want %v", r.Georeferenced, tt.georeferenced)
			}
		})
	}
}

func TestSetAt(t *testing.T) {
	r, err := New(2, 3, 2, IdentityTransform)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	r.Set(1, 2, 1, 42)
	if got := r.At(1, 2, 1); got != 42 {
		t.Errorf("At() = %v, want 42", got)
	}
	if got := r.Data[1][1*3+2]; got != 42 {
		t.Errorf("band-major layout broken: %v", got)
	}
}

func TestIsNoData(t *testing.T) {
	r, _ := New(2, 2, 1, IdentityTransform)
	r.Set(0, 0, 0, 5)
	r.Set(1, 0, 0, -9999)
	r.Set(0, 1, 0, 5)
	r.Set(1, 1, 0, 6)

	if r.IsNoData(0, 0) {
		t.Error("IsNoData() should be false without a nodata value")
	}

	r.NoData, r.HasNoData = -9999, true
	if !r.IsNoData(0, 0) {
		t.Error("IsNoData(0,0) should be true when one band holds nodata")
	}
	if r.IsNoData(1, 0) {
		t.Error("IsNoData(1,0) should be false")
	}
}

func TestBound(t *testing.T) {
	r, _ := New(1, 4, 2, GeoTransform{100, 10, 0, 50, 0, -10})
	b := r.Bound()
	if b.Min[0] != 100 || b.Max[0] != 140 || b.Min[1] != 30 || b.Max[1] != 50 {
		t.Errorf("Bound() = %v", b)
	}
}

func writeGray16TIFF(t *testing.T, path string, w, h int, value func(x, y int) uint16) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: value(x, y)})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatalf("tiff.Encode() error: %v", err)
	}
}

func TestOpen_WorldFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.tif")
	writeGray16TIFF(t, path, 4, 3, func(x, y int) uint16 { return uint16(100*y + x) })

	// Upper-left pixel centre at (1000.5, 2999.5), 1m pixels.
	world := "1.0\n0.0\n0.0\n-1.0\n1000.5\n2999.5\n"
	if err := os.WriteFile(filepath.Join(dir, "image.tfw"), []byte(world), 0o644); err != nil {
		t.Fatalf("failed to write world file: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	if r.Bands() != 1 || r.Width != 4 || r.Height != 3 {
		t.Fatalf("unexpected shape: %d bands %dx%d", r.Bands(), r.Width, r.Height)
	}
	if got := r.At(0, 3, 2); got != 203 {
		t.Errorf("At(0,3,2) = %v, want 203", got)
	}
	if !r.Georeferenced {
		t.Error("expected raster to be georeferenced from the world file")
	}
	want := GeoTransform{1000, 1, 0, 3000, 0, -1}
	if r.Transform != want {
		t.Errorf("Transform = %v, want %v", r.Transform, want)
	}
}

func TestOpen_NoGeoreference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.tif")
	writeGray16TIFF(t, path, 2, 2, func(x, y int) uint16 { return 1 })

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if r.Georeferenced {
		t.Error("expected identity transform for a plain TIFF")
	}
	if r.Transform != IdentityTransform {
		t.Errorf("Transform = %v, want identity", r.Transform)
	}
}

func TestOpen_BandStack(t *testing.T) {
	dir := t.TempDir()
	b1 := filepath.Join(dir, "b1.tif")
	b2 := filepath.Join(dir, "b2.tif")
	writeGray16TIFF(t, b1, 3, 3, func(x, y int) uint16 { return 10 })
	writeGray16TIFF(t, b2, 3, 3, func(x, y int) uint16 { return 20 })

	r, err := Open(b1, b2)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if r.Bands() != 2 {
		t.Fatalf("Bands() = %d, want 2", r.Bands())
	}
	if r.At(0, 1, 1) != 10 || r.At(1, 1, 1) != 20 {
		t.Errorf("stacked samples = %v, %v", r.At(0, 1, 1), r.At(1, 1, 1))
	}
}

func TestOpen_BandStackMismatch(t *testing.T) {
	dir := t.TempDir()
	b1 := filepath.Join(dir, "b1.tif")
	b2 := filepath.Join(dir, "b2.tif")
	writeGray16TIFF(t, b1, 3, 3, func(x, y int) uint16 { return 10 })
	writeGray16TIFF(t, b2, 4, 3, func(x, y int) uint16 { return 20 })

	if _, err := Open(b1, b2); !errors.Is(err, ErrBandStackMismatch) {
		t.Errorf("expected ErrBandStackMismatch, got %v", err)
	}
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()
	notTIFF := filepath.Join(dir, "bad.tif")
	if err := os.WriteFile(notTIFF, []byte("definitely not a tiff"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	if _, err := Open(); err == nil {
		t.Error("Open() with no paths should fail")
	}
	if _, err := Open(filepath.Join(dir, "missing.tif")); err == nil {
		t.Error("Open() of missing file should fail")
	}
	if _, err := Open(notTIFF); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestFromImage_RGB(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: 4, G: 5, B: 6, A: 255})

	r, err := fromImage(img, 3)
	if err != nil {
		t.Fatalf("fromImage() error: %v", err)
	}
	if r.Bands() != 3 {
		t.Fatalf("Bands() = %d, want 3", r.Bands())
	}
	if r.At(2, 1, 0) != 6 {
		t.Errorf("blue of second pixel = %v, want 6", r.At(2, 1, 0))
	}

	r4, err := fromImage(img, 4)
	if err != nil {
		t.Fatalf("fromImage() error: %v", err)
	}
	if r4.Bands() != 4 || r4.At(3, 0, 0) != 255 {
		t.Errorf("expected four bands with alpha, got %d", r4.Bands())
	}
}

func TestFromImage_Unsupported(t *testing.T) {
	img := image.NewCMYK(image.Rect(0, 0, 1, 1))
	if _, err := fromImage(img, 4); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

// buildGeoTIFFHeader assembles a little-endian IFD carrying only the
// georeferencing tags.
func buildGeoTIFFHeader(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	le := binary.LittleEndian

	const (
		ifdOffset   = 8
		entries     = 4
		dataStart   = ifdOffset + 2 + 12*entries + 4
		scaleOffset = dataStart
		tieOffset   = scaleOffset + 3*8
		nodataOff   = tieOffset + 6*8
	)
	nodata := "-9999\x00"

	buf.WriteString("II")
	_ = binary.Write(&buf, le, uint16(42))
	_ = binary.Write(&buf, le, uint32(ifdOffset))
	_ = binary.Write(&buf, le, uint16(entries))

	entry := func(tag, typ uint16, count, value uint32) {
		_ = binary.Write(&buf, le, tag)
		_ = binary.Write(&buf, le, typ)
		_ = binary.Write(&buf, le, count)
		_ = binary.Write(&buf, le, value)
	}
	entry(tagSamplesPerPixel, dtShort, 1, 4)
	entry(tagModelPixelScale, dtDouble, 3, scaleOffset)
	entry(tagModelTiepoint, dtDouble, 6, tieOffset)
	entry(tagGDALNoData, dtASCII, uint32(len(nodata)), nodataOff)
	_ = binary.Write(&buf, le, uint32(0))

	for _, v := range []float64{0.5, 0.5, 0} {
		_ = binary.Write(&buf, le, v)
	}
	for _, v := range []float64{0, 0, 0, 500000, 4200000, 0} {
		_ = binary.Write(&buf, le, v)
	}
	buf.WriteString(nodata)

	return buf.Bytes()
}

func TestGeoTags(t *testing.T) {
	dir, err := parseTIFF(buildGeoTIFFHeader(t))
	if err != nil {
		t.Fatalf("parseTIFF() error: %v", err)
	}
	tags, err := dir.geoTags()
	if err != nil {
		t.Fatalf("geoTags() error: %v", err)
	}

	if tags.samplesPerPixel != 4 {
		t.Errorf("samplesPerPixel = %d, want 4", tags.samplesPerPixel)
	}
	if tags.noData != "-9999" {
		t.Errorf("noData = %q, want -9999", tags.noData)
	}

	gt, ok := tags.transform()
	if !ok {
		t.Fatal("expected a transform from tiepoint and pixel scale")
	}
	want := GeoTransform{500000, 0.5, 0, 4200000, 0, -0.5}
	if gt != want {
		t.Errorf("transform() = %v, want %v", gt, want)
	}
}

func TestParseTIFF_NotTIFF(t *testing.T) {
	if _, err := parseTIFF([]byte("PK\x03\x04xxxx")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestReadWorldFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{name: "too few lines", content: "1\n0\n0\n-1\n"},
		{name: "not a number", content: "1\n0\n0\nx\n0\n0\n"},
		{name: "singular", content: "0\n0\n0\n0\n0\n0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".tfw")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("failed to write fixture: %v", err)
			}
			if _, err := ReadWorldFile(path); err == nil {
				t.Fatal("Expected error, got nil")
			}
		})
	}
}
