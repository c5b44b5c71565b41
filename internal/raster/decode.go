package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"golang.org/x/image/tiff/lzw"
)

const (
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionPackBits   = 32773
	compressionDeflateOld = 32946
)

const (
	photometricMinIsBlack = 1
	photometricRGB        = 2
	photometricPalette    = 3
	photometricYCbCr      = 6
)

const (
	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3
)

const (
	predictorNone       = 1
	predictorHorizontal = 2
)

// maxExpansion bounds the decoded size of compressed pixel data relative
// to the file holding it.
const maxExpansion = 4096

// layout describes how the pixel samples of one IFD are stored.
type layout struct {
	order         binary.ByteOrder
	width, height int
	samples       int
	bits, format  int
	photometric   int
	extraSamples  bool
	planar        bool
	compression   int
	predictor     int

	tiled          bool
	blockW, blockH int
	offsets        []uint64
	counts         []uint64
}

// readLayout validates the image structure tags of dir. Declared sizes are
// checked against fileSize before anything is allocated.
func readLayout(dir *tiffDir, fileSize int) (*layout, error) {
	var firstErr error
	value := func(tag uint16, def uint64, read func(uint16, uint64) (uint64, error)) int {
		if firstErr != nil {
			return 0
		}
		v, err := read(tag, def)
		if err != nil {
			firstErr = err
			return 0
		}
		if v > math.MaxInt32 {
			firstErr = fmt.Errorf("%w: tag %d value %d out of range", ErrUnsupportedFormat, tag, v)
			return 0
		}
		return int(v)
	}

	l := &layout{
		order:        dir.order,
		width:        value(tagImageWidth, 0, dir.uint),
		height:       value(tagImageLength, 0, dir.uint),
		samples:      value(tagSamplesPerPixel, 1, dir.uint),
		bits:         value(tagBitsPerSample, 1, dir.uniform),
		format:       value(tagSampleFormat, sampleUint, dir.uniform),
		photometric:  value(tagPhotometric, photometricMinIsBlack, dir.uint),
		extraSamples: dir.has(tagExtraSamples),
		compression:  value(tagCompression, compressionNone, dir.uint),
		predictor:    value(tagPredictor, predictorNone, dir.uint),
	}
	planar := value(tagPlanarConfig, 1, dir.uint)
	if firstErr != nil {
		return nil, firstErr
	}

	if l.width == 0 || l.height == 0 || l.samples == 0 {
		return nil, fmt.Errorf("%w: missing image dimensions", ErrUnsupportedFormat)
	}
	switch planar {
	case 1:
	case 2:
		l.planar = true
	default:
		return nil, fmt.Errorf("%w: planar configuration %d", ErrUnsupportedFormat, planar)
	}
	if l.photometric == photometricYCbCr {
		return nil, fmt.Errorf("%w: YCbCr photometric interpretation", ErrUnsupportedFormat)
	}

	switch {
	case (l.format == sampleUint || l.format == sampleInt) && (l.bits == 8 || l.bits == 16 || l.bits == 32):
	case l.format == sampleFloat && (l.bits == 32 || l.bits == 64):
	default:
		return nil, fmt.Errorf("%w: %d-bit samples of format %d", ErrUnsupportedFormat, l.bits, l.format)
	}

	switch l.predictor {
	case predictorNone:
	case predictorHorizontal:
		if l.format == sampleFloat {
			return nil, fmt.Errorf("%w: horizontal predictor on floating point samples", ErrUnsupportedFormat)
		}
	default:
		return nil, fmt.Errorf("%w: predictor %d", ErrUnsupportedFormat, l.predictor)
	}

	limit := uint64(fileSize)
	if l.compression != compressionNone {
		limit *= maxExpansion
	}
	perPixel := uint64(l.samples) * uint64(l.bits/8)
	if uint64(l.width)*uint64(l.height) > limit/perPixel {
		return nil, fmt.Errorf("%w: %dx%d image of %d samples does not fit a %d-byte file",
			ErrUnsupportedFormat, l.width, l.height, l.samples, fileSize)
	}

	offsetsTag, countsTag := uint16(tagStripOffsets), uint16(tagStripByteCounts)
	if dir.has(tagTileWidth) {
		l.tiled = true
		l.blockW = value(tagTileWidth, 0, dir.uint)
		l.blockH = value(tagTileLength, 0, dir.uint)
		if firstErr != nil {
			return nil, firstErr
		}
		offsetsTag, countsTag = tagTileOffsets, tagTileByteCounts
	} else {
		rows, err := dir.uint(tagRowsPerStrip, uint64(l.height))
		if err != nil {
			return nil, err
		}
		l.blockW = l.width
		l.blockH = int(min(max(rows, 1), uint64(l.height)))
	}
	var err error
	if l.offsets, err = dir.uints(offsetsTag); err != nil {
		return nil, err
	}
	if l.counts, err = dir.uints(countsTag); err != nil {
		return nil, err
	}
	if l.blockW == 0 || l.blockH == 0 {
		return nil, fmt.Errorf("%w: zero tile size", ErrUnsupportedFormat)
	}
	if uint64(l.blockW)*uint64(l.blockH) > limit/(uint64(l.chunk())*uint64(l.bits/8)) {
		return nil, fmt.Errorf("%w: %dx%d block does not fit a %d-byte file",
			ErrUnsupportedFormat, l.blockW, l.blockH, fileSize)
	}

	want := l.across() * l.down() * l.planes()
	if len(l.offsets) < want || len(l.counts) < want {
		return nil, fmt.Errorf("%w: %d of %d pixel blocks present",
			ErrUnsupportedFormat, min(len(l.offsets), len(l.counts)), want)
	}
	return l, nil
}

// viaImage reports whether x/image/tiff decodes this layout.
func (l *layout) viaImage() bool {
	if l.format != sampleUint || (l.bits != 8 && l.bits != 16) {
		return false
	}
	switch l.photometric {
	case photometricPalette:
		return l.samples == 1
	case photometricRGB:
		return l.samples == 3 || l.samples == 4 && l.extraSamples
	}
	return false
}

// chunk is the number of samples stored together per pixel in a block.
func (l *layout) chunk() int {
	if l.planar {
		return 1
	}
	return l.samples
}

func (l *layout) planes() int {
	if l.planar {
		return l.samples
	}
	return 1
}

func (l *layout) across() int { return (l.width + l.blockW - 1) / l.blockW }
func (l *layout) down() int   { return (l.height + l.blockH - 1) / l.blockH }

// decode reads every strip or tile into a band-major raster.
func (l *layout) decode(raw []byte) (*Raster, error) {
	r, err := New(l.samples, l.width, l.height, IdentityTransform)
	if err != nil {
		return nil, err
	}
	r.Georeferenced = false

	read := l.sampleReader()
	chunk := l.chunk()
	rowBytes := l.blockW * chunk * (l.bits / 8)
	across, down := l.across(), l.down()

	for p := 0; p < l.planes(); p++ {
		for by := 0; by < down; by++ {
			rows := l.blockH
			if !l.tiled {
				rows = min(l.blockH, l.height-by*l.blockH)
			}
			for bx := 0; bx < across; bx++ {
				k := (p*down+by)*across + bx
				block, err := l.block(raw, k, rowBytes*rows)
				if err != nil {
					return nil, err
				}
				if l.predictor == predictorHorizontal {
					l.undoDifferencing(block, rowBytes, chunk)
				}

				for row := 0; row < rows; row++ {
					y := by*l.blockH + row
					if y >= l.height {
						break
					}
					for col := 0; col < l.blockW; col++ {
						x := bx*l.blockW + col
						if x >= l.width {
							break
						}
						pos := (row*l.blockW + col) * chunk
						for s := 0; s < chunk; s++ {
							r.Data[p+s][y*l.width+x] = read(block, pos+s)
						}
					}
				}
			}
		}
	}
	return r, nil
}

// block returns the decompressed bytes of block k, exactly need long.
func (l *layout) block(raw []byte, k, need int) ([]byte, error) {
	off, n := l.offsets[k], l.counts[k]
	if off+n > uint64(len(raw)) {
		return nil, fmt.Errorf("%w: pixel block %d overruns the file", ErrUnsupportedFormat, k)
	}
	data := raw[off : off+n]

	var rc io.ReadCloser
	switch l.compression {
	case compressionNone:
		if len(data) < need {
			return nil, fmt.Errorf("%w: pixel block %d holds %d of %d bytes", ErrUnsupportedFormat, k, len(data), need)
		}
		return bytes.Clone(data[:need]), nil
	case compressionPackBits:
		return unpackBits(data, need)
	case compressionLZW:
		rc = lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	case compressionDeflate, compressionDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: pixel block %d: %v", ErrUnsupportedFormat, k, err)
		}
		rc = zr
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupportedFormat, l.compression)
	}
	defer rc.Close()

	out := make([]byte, need)
	if _, err := io.ReadFull(rc, out); err != nil {
		return nil, fmt.Errorf("%w: pixel block %d: %v", ErrUnsupportedFormat, k, err)
	}
	return out, nil
}

// unpackBits expands PackBits run-length data.
func unpackBits(src []byte, need int) ([]byte, error) {
	out := make([]byte, 0, need)
	for i := 0; i < len(src) && len(out) < need; {
		n := int(int8(src[i]))
		i++
		switch {
		case n >= 0:
			end := i + n + 1
			if end > len(src) {
				return nil, fmt.Errorf("%w: truncated PackBits literal", ErrUnsupportedFormat)
			}
			out = append(out, src[i:end]...)
			i = end
		case n != -128:
			if i >= len(src) {
				return nil, fmt.Errorf("%w: truncated PackBits run", ErrUnsupportedFormat)
			}
			out = append(out, bytes.Repeat(src[i:i+1], 1-n)...)
			i++
		}
	}
	if len(out) < need {
		return nil, fmt.Errorf("%w: PackBits data holds %d of %d bytes", ErrUnsupportedFormat, len(out), need)
	}
	return out[:need], nil
}

// undoDifferencing reverses horizontal predictor 2 in place, row by row.
func (l *layout) undoDifferencing(block []byte, rowBytes, stride int) {
	o := l.order
	for start := 0; start+rowBytes <= len(block); start += rowBytes {
		row := block[start : start+rowBytes]
		switch l.bits {
		case 8:
			for i := stride; i < len(row); i++ {
				row[i] += row[i-stride]
			}
		case 16:
			for i := stride; i < len(row)/2; i++ {
				o.PutUint16(row[2*i:], o.Uint16(row[2*i:])+o.Uint16(row[2*(i-stride):]))
			}
		case 32:
			for i := stride; i < len(row)/4; i++ {
				o.PutUint32(row[4*i:], o.Uint32(row[4*i:])+o.Uint32(row[4*(i-stride):]))
			}
		}
	}
}

// sampleReader returns a function reading sample i of a block.
func (l *layout) sampleReader() func(b []byte, i int) float64 {
	o := l.order
	switch l.format {
	case sampleFloat:
		if l.bits == 32 {
			return func(b []byte, i int) float64 { return float64(math.Float32frombits(o.Uint32(b[4*i:]))) }
		}
		return func(b []byte, i int) float64 { return math.Float64frombits(o.Uint64(b[8*i:])) }
	case sampleInt:
		switch l.bits {
		case 8:
			return func(b []byte, i int) float64 { return float64(int8(b[i])) }
		case 16:
			return func(b []byte, i int) float64 { return float64(int16(o.Uint16(b[2*i:]))) }
		default:
			return func(b []byte, i int) float64 { return float64(int32(o.Uint32(b[4*i:]))) }
		}
	default:
		switch l.bits {
		case 8:
			return func(b []byte, i int) float64 { return float64(b[i]) }
		case 16:
			return func(b []byte, i int) float64 { return float64(o.Uint16(b[2*i:])) }
		default:
			return func(b []byte, i int) float64 { return float64(o.Uint32(b[4*i:])) }
		}
	}
}
