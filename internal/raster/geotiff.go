package raster

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"
)

// TIFF tags.
const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagPhotometric         = 262
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagPlanarConfig        = 284
	tagPredictor           = 317
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagExtraSamples        = 338
	tagSampleFormat        = 339
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGDALNoData          = 42113
)

// geoTags holds the georeferencing metadata read from the first IFD.
type geoTags struct {
	samplesPerPixel int
	pixelScale      []float64
	tiepoint        []float64
	transformation  []float64
	noData          string
}

// transform derives a GeoTransform from the tags, if they carry one.
func (t *geoTags) transform() (GeoTransform, bool) {
	if len(t.transformation) >= 16 {
		m := t.transformation
		return GeoTransform{m[3], m[0], m[1], m[7], m[4], m[5]}, true
	}
	if len(t.pixelScale) >= 2 && len(t.tiepoint) >= 6 {
		i, j := t.tiepoint[0], t.tiepoint[1]
		x, y := t.tiepoint[3], t.tiepoint[4]
		sx, sy := t.pixelScale[0], t.pixelScale[1]
		return GeoTransform{x - i*sx, sx, 0, y + j*sy, 0, -sy}, true
	}
	return GeoTransform{}, false
}

// Open loads a raster from one GeoTIFF, or stacks several single- or
// multi-band TIFFs into one raster in the order given.
func Open(paths ...string) (*Raster, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no raster files given", ErrInvalidRaster)
	}

	var stacked *Raster
	for _, path := range paths {
		r, err := openGeoTIFF(path)
		if err != nil {
			return nil, err
		}
		if stacked == nil {
			stacked = r
			continue
		}
		if r.Width != stacked.Width || r.Height != stacked.Height {
			return nil, fmt.Errorf("%w: %s is %dx%d, expected %dx%d",
				ErrBandStackMismatch, path, r.Width, r.Height, stacked.Width, stacked.Height)
		}
		if !stacked.Georeferenced && r.Georeferenced {
			stacked.Transform = r.Transform
			stacked.Georeferenced = true
		}
		if !stacked.HasNoData && r.HasNoData {
			stacked.NoData, stacked.HasNoData = r.NoData, true
		}
		stacked.Data = append(stacked.Data, r.Data...)
	}
	return stacked, nil
}

func openGeoTIFF(path string) (*Raster, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read raster file: %w", err)
	}

	dir, err := parseTIFF(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags of %s: %w", path, err)
	}
	tags, err := dir.geoTags()
	if err != nil {
		return nil, fmt.Errorf("failed to read tags of %s: %w", path, err)
	}

	r, err := decode(raw, dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if gt, ok := tags.transform(); ok {
		r.Transform, r.Georeferenced = gt, true
	} else if gt, ok, err := readWorldFileFor(path); err != nil {
		return nil, err
	} else if ok {
		r.Transform, r.Georeferenced = gt, true
	}
	if err := r.Transform.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if nd := strings.TrimSpace(tags.noData); nd != "" {
		v, err := strconv.ParseFloat(nd, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid nodata value %q: %w", path, nd, err)
		}
		r.NoData, r.HasNoData = v, true
	}

	return r, nil
}

// decode reads the pixels of raw. Palette and RGB images go through
// x/image/tiff; everything else, including multispectral stacks, is read
// sample by sample from the strips or tiles.
func decode(raw []byte, dir *tiffDir) (*Raster, error) {
	l, err := readLayout(dir, len(raw))
	if err != nil {
		return nil, err
	}
	if !l.viaImage() {
		return l.decode(raw)
	}

	img, err := tiff.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return fromImage(img, l.samples)
}

// fromImage copies decoded pixels into band-major float samples.
func fromImage(img image.Image, samples int) (*Raster, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var bands int
	switch img.(type) {
	case *image.Gray, *image.Gray16, *image.Paletted:
		bands = 1
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		bands = 4
		if samples == 3 {
			bands = 3
		}
	default:
		return nil, fmt.Errorf("%w: pixel type %T", ErrUnsupportedFormat, img)
	}

	r, err := New(bands, w, h, IdentityTransform)
	if err != nil {
		return nil, err
	}
	r.Georeferenced = false

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			x, y := b.Min.X+col, b.Min.Y+row
			i := row*w + col
			switch src := img.(type) {
			case *image.Gray:
				r.Data[0][i] = float64(src.GrayAt(x, y).Y)
			case *image.Gray16:
				r.Data[0][i] = float64(src.Gray16At(x, y).Y)
			case *image.Paletted:
				r.Data[0][i] = float64(src.ColorIndexAt(x, y))
			case *image.RGBA:
				c := src.RGBAAt(x, y)
				setSamples(r, i, float64(c.R), float64(c.G), float64(c.B), float64(c.A))
			case *image.NRGBA:
				c := src.NRGBAAt(x, y)
				setSamples(r, i, float64(c.R), float64(c.G), float64(c.B), float64(c.A))
			case *image.RGBA64:
				c := src.RGBA64At(x, y)
				setSamples(r, i, float64(c.R), float64(c.G), float64(c.B), float64(c.A))
			case *image.NRGBA64:
				c := src.NRGBA64At(x, y)
				setSamples(r, i, float64(c.R), float64(c.G), float64(c.B), float64(c.A))
			}
		}
	}
	return r, nil
}

func setSamples(r *Raster, i int, values ...float64) {
	for b := range r.Data {
		r.Data[b][i] = values[b]
	}
}

// geoTags extracts the sample count, GeoTIFF model tags and the GDAL
// nodata tag.
func (d *tiffDir) geoTags() (*geoTags, error) {
	samples, err := d.uint(tagSamplesPerPixel, 1)
	if err != nil {
		return nil, err
	}
	return &geoTags{
		samplesPerPixel: int(min(samples, 1<<16)),
		pixelScale:      d.doubles(tagModelPixelScale),
		tiepoint:        d.doubles(tagModelTiepoint),
		transformation:  d.doubles(tagModelTransformation),
		noData:          d.ascii(tagGDALNoData),
	}, nil
}
