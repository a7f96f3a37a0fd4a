package render

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// DefaultTolerance is the simplification distance used when none is configured,
// in coordinate units (degrees for WGS84 data).
const DefaultTolerance = 0.0001

const (
	// MinLinePoints is the smallest line a simplification may produce.
	MinLinePoints = 2
	// MinRingPoints is the smallest ring: three distinct points plus the closing one.
	MinRingPoints = 4
)

var (
	// ErrDegenerate marks a line or ring already below the minimum size.
	ErrDegenerate = errors.New("degenerate geometry")
	// ErrTolerance marks a negative or NaN tolerance.
	ErrTolerance = errors.New("invalid tolerance")
	// ErrUnsupported marks a geometry type the simplifier does not handle.
	ErrUnsupported = errors.New("unsupported geometry")
)

// Simplify returns a copy of g with fewer vertices using Douglas-Peucker
// within the given tolerance. The source geometry is never modified.
//
// Every line and ring keeps its first and last coordinate. Lines never drop
// below MinLinePoints and rings never below MinRingPoints; a part that would
// keeps its source coordinates. Multi-part geometries are simplified part by part.
func Simplify(g orb.Geometry, tolerance float64) (orb.Geometry, error) {
	if math.IsNaN(tolerance) || tolerance < 0 {
		return nil, fmt.Errorf("%w: %v", ErrTolerance, tolerance)
	}

	return simplifyGeometry(simplify.DouglasPeucker(tolerance), g)
}

func simplifyGeometry(s *simplify.DouglasPeuckerSimplifier, g orb.Geometry) (orb.Geometry, error) {
	switch g := g.(type) {
	case nil:
		return nil, nil

	case orb.Point, orb.MultiPoint, orb.Bound:
		return g, nil

	case orb.LineString:
		return simplifyLine(s, g)

	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(g))
		for i, ls := range g {
			sl, err := simplifyLine(s, ls)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i, err)
			}
			out[i] = sl
		}
		return out, nil

	case orb.Ring:
		return simplifyRing(s, g)

	case orb.Polygon:
		return simplifyPolygon(s, g)

	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(g))
		for i, p := range g {
			sp, err := simplifyPolygon(s, p)
			if err != nil {
				return nil, fmt.Errorf("polygon %d: %w", i, err)
			}
			out[i] = sp
		}
		return out, nil

	case orb.Collection:
		out := make(orb.Collection, len(g))
		for i, part := range g {
			sg, err := simplifyGeometry(s, part)
			if err != nil {
				return nil, fmt.Errorf("member %d: %w", i, err)
			}
			out[i] = sg
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, g)
	}
}

func simplifyPolygon(s *simplify.DouglasPeuckerSimplifier, p orb.Polygon) (orb.Polygon, error) {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		sr, err := simplifyRing(s, r)
		if err != nil {
			return nil, fmt.Errorf("ring %d: %w", i, err)
		}
		out[i] = sr
	}
	return out, nil
}

func simplifyLine(s *simplify.DouglasPeuckerSimplifier, ls orb.LineString) (orb.LineString, error) {
	if len(ls) < MinLinePoints {
		return nil, fmt.Errorf("%w: line with %d points", ErrDegenerate, len(ls))
	}

	// orb simplifies in place
	out := s.LineString(ls.Clone())
	if !keepsEnds(out, ls, MinLinePoints) {
		return ls.Clone(), nil
	}
	return out, nil
}

func simplifyRing(s *simplify.DouglasPeuckerSimplifier, r orb.Ring) (orb.Ring, error) {
	if len(r) < MinRingPoints {
		return nil, fmt.Errorf("%w: ring with %d points", ErrDegenerate, len(r))
	}

	out := s.Ring(r.Clone())
	if !keepsEnds(orb.LineString(out), orb.LineString(r), MinRingPoints) {
		return r.Clone(), nil
	}
	return out, nil
}

// keepsEnds reports whether a simplified sequence is acceptable in place of src.
func keepsEnds(out, src orb.LineString, minPoints int) bool {
	if len(out) < minPoints || len(out) > len(src) {
		return false
	}
	return out[0].Equal(src[0]) && out[len(out)-1].Equal(src[len(src)-1])
}

// VertexCount returns the number of coordinates in g.
func VertexCount(g orb.Geometry) int {
	switch g := g.(type) {
	case nil:
		return 0
	case orb.Point:
		return 1
	case orb.MultiPoint:
		return len(g)
	case orb.LineString:
		return len(g)
	case orb.Ring:
		return len(g)
	case orb.MultiLineString:
		n := 0
		for _, ls := range g {
			n += len(ls)
		}
		return n
	case orb.Polygon:
		n := 0
		for _, r := range g {
			n += len(r)
		}
		return n
	case orb.MultiPolygon:
		n := 0
		for _, p := range g {
			n += VertexCount(p)
		}
		return n
	case orb.Collection:
		n := 0
		for _, part := range g {
			n += VertexCount(part)
		}
		return n
	default:
		return 0
	}
}
