package raster

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// TIFF field types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndefined = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
)

var typeSize = map[uint16]uint64{
	dtByte:      1,
	dtASCII:     1,
	dtShort:     2,
	dtLong:      4,
	dtRational:  8,
	dtSByte:     1,
	dtUndefined: 1,
	dtSShort:    2,
	dtSLong:     4,
	dtSRational: 8,
	dtFloat:     4,
	dtDouble:    8,
}

// ifdEntry is one directory entry. data holds the value bytes, inline or
// referenced, always within the file.
type ifdEntry struct {
	typ   uint16
	count uint64
	data  []byte
}

// tiffDir is the first image file directory of a classic TIFF.
type tiffDir struct {
	order   binary.ByteOrder
	entries map[uint16]ifdEntry
}

// parseTIFF reads the header and first IFD of raw. Every value is checked
// against the file length before it is sliced, so a corrupt count or
// offset is reported instead of allocated.
func parseTIFF(raw []byte) (*tiffDir, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("%w: short header", ErrUnsupportedFormat)
	}

	var order binary.ByteOrder
	switch string(raw[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: not a TIFF file", ErrUnsupportedFormat)
	}
	if order.Uint16(raw[2:4]) != 42 {
		return nil, fmt.Errorf("%w: BigTIFF and other variants are not supported", ErrUnsupportedFormat)
	}

	size := uint64(len(raw))
	ifd := uint64(order.Uint32(raw[4:8]))
	if ifd+2 > size {
		return nil, fmt.Errorf("%w: truncated IFD", ErrUnsupportedFormat)
	}
	n := uint64(order.Uint16(raw[ifd:]))
	if ifd+2+12*n > size {
		return nil, fmt.Errorf("%w: truncated IFD entries", ErrUnsupportedFormat)
	}

	dir := &tiffDir{order: order, entries: make(map[uint16]ifdEntry, n)}
	for k := uint64(0); k < n; k++ {
		e := raw[ifd+2+12*k : ifd+2+12*k+12]
		tag := order.Uint16(e[0:2])
		typ := order.Uint16(e[2:4])
		count := uint64(order.Uint32(e[4:8]))

		width, ok := typeSize[typ]
		if !ok {
			continue
		}
		total := width * count

		var data []byte
		if total <= 4 {
			data = e[8 : 8+total]
		} else {
			off := uint64(order.Uint32(e[8:12]))
			if off+total > size {
				return nil, fmt.Errorf("%w: tag %d needs %d bytes at offset %d, file has %d",
					ErrUnsupportedFormat, tag, total, off, size)
			}
			data = raw[off : off+total]
		}
		dir.entries[tag] = ifdEntry{typ: typ, count: count, data: data}
	}
	return dir, nil
}

func (d *tiffDir) has(tag uint16) bool {
	_, ok := d.entries[tag]
	return ok
}

// uints returns the values of an integer tag, nil when absent.
func (d *tiffDir) uints(tag uint16) ([]uint64, error) {
	e, ok := d.entries[tag]
	if !ok {
		return nil, nil
	}
	out := make([]uint64, e.count)
	for i := range out {
		switch e.typ {
		case dtByte, dtUndefined:
			out[i] = uint64(e.data[i])
		case dtShort:
			out[i] = uint64(d.order.Uint16(e.data[2*i:]))
		case dtLong:
			out[i] = uint64(d.order.Uint32(e.data[4*i:]))
		default:
			return nil, fmt.Errorf("%w: tag %d has non-integer type %d", ErrUnsupportedFormat, tag, e.typ)
		}
	}
	return out, nil
}

// uint returns the first value of an integer tag, or def when absent.
func (d *tiffDir) uint(tag uint16, def uint64) (uint64, error) {
	values, err := d.uints(tag)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return def, nil
	}
	return values[0], nil
}

// uniform returns the common value of a per-sample tag such as
// BitsPerSample, or def when absent.
func (d *tiffDir) uniform(tag uint16, def uint64) (uint64, error) {
	values, err := d.uints(tag)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return def, nil
	}
	for _, v := range values[1:] {
		if v != values[0] {
			return 0, fmt.Errorf("%w: tag %d differs between samples", ErrUnsupportedFormat, tag)
		}
	}
	return values[0], nil
}

// doubles returns a DOUBLE tag, nil when absent or of another type.
func (d *tiffDir) doubles(tag uint16) []float64 {
	e, ok := d.entries[tag]
	if !ok || e.typ != dtDouble {
		return nil
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(d.order.Uint64(e.data[8*i:]))
	}
	return out
}

// ascii returns an ASCII tag without its terminator.
func (d *tiffDir) ascii(tag uint16) string {
	e, ok := d.entries[tag]
	if !ok || e.typ != dtASCII {
		return ""
	}
	return strings.TrimRight(string(e.data), "\x00")
}
