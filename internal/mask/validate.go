package mask

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Validate rejects polygons that cannot be masked meaningfully: fewer than
// three distinct exterior vertices, non-finite coordinates, zero exterior
// area, or a ring whose non-adjacent edges intersect.
func Validate(mp orb.MultiPolygon) error {
	if len(mp) == 0 {
		return fmt.Errorf("%w: empty geometry", ErrDegenerate)
	}
	for i, poly := range mp {
		if err := validatePolygon(poly); err != nil {
			if len(mp) > 1 {
				return fmt.Errorf("part %d: %w", i, err)
			}
			return err
		}
	}
	return nil
}

func validatePolygon(poly orb.Polygon) error {
	if len(poly) == 0 {
		return fmt.Errorf("%w: no rings", ErrDegenerate)
	}
	for i, ring := range poly {
		pts := openRing(ring)
		for _, p := range pts {
			if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
				return fmt.Errorf("%w: non-finite coordinate in ring %d", ErrDegenerate, i)
			}
		}
		if len(pts) < 3 {
			return fmt.Errorf("%w: ring %d has %d distinct vertices", ErrDegenerate, i, len(pts))
		}
		closed := orb.Ring(append(pts[:len(pts):len(pts)], pts[0]))
		if i == 0 && math.Abs(planar.Area(closed)) == 0 {
			return fmt.Errorf("%w: zero area", ErrDegenerate)
		}
		if selfIntersects(pts) {
			return fmt.Errorf("%w: ring %d", ErrSelfIntersecting, i)
		}
	}
	return nil
}

// openRing drops the closing vertex and consecutive duplicates.
func openRing(ring orb.Ring) []orb.Point {
	pts := make([]orb.Point, 0, len(ring))
	for _, p := range ring {
		if len(pts) > 0 && pts[len(pts)-1] == p {
			continue
		}
		pts = append(pts, p)
	}
	for len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	return pts
}

// selfIntersects reports whether any two non-adjacent edges of the closed
// ring pts touch or cross.
func selfIntersects(pts []orb.Point) bool {
	n := len(pts)
	for i := 0; i < n; i++ {
		a1, a2 := pts[i], pts[(i+1)%n]
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			b1, b2 := pts[j], pts[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

func orientation(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}
