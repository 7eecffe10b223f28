package geo

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// DefaultBufferSegments matches a quarter-circle resolution of 16 segments.
const DefaultBufferSegments = 64

// FeetPerMile converts planar feet distances to miles.
const FeetPerMile = 5280.0

// ErrEmptyIndex is returned when querying a nearest index with no sites.
var ErrEmptyIndex = errors.New("nearest index is empty")

// FeetToMiles converts a distance in feet to miles.
func FeetToMiles(ft float64) float64 { return ft / FeetPerMile }

// Buffer approximates a circle of the given radius around p. The ring is
// closed and counter-clockwise.
func Buffer(p orb.Point, radius float64, segments int) orb.Polygon {
	if segments < 4 {
		segments = DefaultBufferSegments
	}
	ring := make(orb.Ring, 0, segments+1)
	for i := 0; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / float64(segments)
		ring = append(ring, orb.Point{p[0] + radius*math.Cos(a), p[1] + radius*math.Sin(a)})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// IsEmpty reports whether g carries no coordinates.
func IsEmpty(g orb.Geometry) bool {
	if g == nil {
		return true
	}
	switch v := g.(type) {
	case orb.Point:
		return math.IsNaN(v[0]) || math.IsNaN(v[1])
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.MultiLineString:
		return len(v) == 0
	case orb.Ring:
		return len(v) == 0
	case orb.Polygon:
		return len(v) == 0 || len(v[0]) == 0
	case orb.MultiPolygon:
		for _, p := range v {
			if len(p) > 0 && len(p[0]) > 0 {
				return false
			}
		}
		return true
	case orb.Collection:
		for _, c := range v {
			if !IsEmpty(c) {
				return false
			}
		}
		return true
	}
	return false
}

type segment [2]orb.Point

// parts is a geometry flattened into the primitives the predicates work on.
type parts struct {
	points []orb.Point
	segs   []segment
	polys  []orb.Polygon
}

func flatten(g orb.Geometry, out *parts) {
	switch v := g.(type) {
	case orb.Point:
		out.points = append(out.points, v)
	case orb.MultiPoint:
		out.points = append(out.points, v...)
	case orb.LineString:
		out.addPath(v)
	case orb.MultiLineString:
		for _, ls := range v {
			out.addPath(ls)
		}
	case orb.Ring:
		out.polys = append(out.polys, orb.Polygon{v})
		out.addPath(v)
	case orb.Polygon:
		out.addPolygon(v)
	case orb.MultiPolygon:
		for _, p := range v {
			out.addPolygon(p)
		}
	case orb.Bound:
		out.addPolygon(v.ToPolygon())
	case orb.Collection:
		for _, c := range v {
			flatten(c, out)
		}
	}
}

func (p *parts) addPath(path []orb.Point) {
	if len(path) == 1 {
		p.points = append(p.points, path[0])
		return
	}
	for i := 1; i < len(path); i++ {
		p.segs = append(p.segs, segment{path[i-1], path[i]})
	}
}

func (p *parts) addPolygon(poly orb.Polygon) {
	if len(poly) == 0 || len(poly[0]) == 0 {
		return
	}
	p.polys = append(p.polys, poly)
	for _, r := range poly {
		p.addPath(r)
	}
}

// vertices returns one representative coordinate per primitive so that
// containment of a whole part can be detected.
func (p *parts) vertices() []orb.Point {
	out := append([]orb.Point(nil), p.points...)
	for _, s := range p.segs {
		out = append(out, s[0])
	}
	return out
}

func (p *parts) contains(pt orb.Point) bool {
	for _, poly := range p.polys {
		if planar.PolygonContains(poly, pt) {
			return true
		}
	}
	return false
}

// Intersects reports whether a and b share at least one point. Boundary
// contact counts as intersecting.
func Intersects(a, b orb.Geometry) bool {
	if IsEmpty(a) || IsEmpty(b) {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	var pa, pb parts
	flatten(a, &pa)
	flatten(b, &pb)

	for _, v := range pb.vertices() {
		if pa.contains(v) {
			return true
		}
	}
	for _, v := range pa.vertices() {
		if pb.contains(v) {
			return true
		}
	}
	for _, sa := range pa.segs {
		for _, sb := range pb.segs {
			if segmentsIntersect(sa, sb) {
				return true
			}
		}
		for _, q := range pb.points {
			if pointSegmentDistance(q, sa) == 0 {
				return true
			}
		}
	}
	for _, q := range pa.points {
		for _, sb := range pb.segs {
			if pointSegmentDistance(q, sb) == 0 {
				return true
			}
		}
		for _, r := range pb.points {
			if q.Equal(r) {
				return true
			}
		}
	}
	return false
}

// DistanceToGeometry returns the planar distance from p to g, zero when g
// contains p.
func DistanceToGeometry(p orb.Point, g orb.Geometry) float64 {
	if IsEmpty(g) {
		return math.Inf(1)
	}
	var pg parts
	flatten(g, &pg)
	if pg.contains(p) {
		return 0
	}
	best := math.Inf(1)
	for _, q := range pg.points {
		best = math.Min(best, planar.Distance(p, q))
	}
	for _, s := range pg.segs {
		best = math.Min(best, pointSegmentDistance(p, s))
	}
	return best
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func onSegment(p orb.Point, s segment) bool {
	return math.Min(s[0][0], s[1][0]) <= p[0] && p[0] <= math.Max(s[0][0], s[1][0]) &&
		math.Min(s[0][1], s[1][1]) <= p[1] && p[1] <= math.Max(s[0][1], s[1][1])
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func segmentsIntersect(a, b segment) bool {
	d1 := sign(cross(b[0], b[1], a[0]))
	d2 := sign(cross(b[0], b[1], a[1]))
	d3 := sign(cross(a[0], a[1], b[0]))
	d4 := sign(cross(a[0], a[1], b[1]))
	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	switch {
	case d1 == 0 && onSegment(a[0], b):
		return true
	case d2 == 0 && onSegment(a[1], b):
		return true
	case d3 == 0 && onSegment(b[0], a):
		return true
	case d4 == 0 && onSegment(b[1], a):
		return true
	}
	return false
}

func pointSegmentDistance(p orb.Point, s segment) float64 {
	dx, dy := s[1][0]-s[0][0], s[1][1]-s[0][1]
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return planar.Distance(p, s[0])
	}
	t := ((p[0]-s[0][0])*dx + (p[1]-s[0][1])*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return planar.Distance(p, orb.Point{s[0][0] + t*dx, s[0][1] + t*dy})
}

// NearestIndex answers nearest-site queries over a fixed set of points.
type NearestIndex struct {
	tree *kdtree.Tree
	size int
}

// NewNearestIndex builds a kd-tree over the given sites.
func NewNearestIndex(sites []orb.Point) *NearestIndex {
	if len(sites) == 0 {
		return &NearestIndex{}
	}
	pts := make(kdtree.Points, 0, len(sites))
	for _, s := range sites {
		pts = append(pts, kdtree.Point{s[0], s[1]})
	}
	return &NearestIndex{tree: kdtree.New(pts, false), size: len(pts)}
}

// Len returns the number of indexed sites.
func (ix *NearestIndex) Len() int { return ix.size }

// Nearest returns the planar distance from p to the closest site.
func (ix *NearestIndex) Nearest(p orb.Point) (float64, error) {
	if ix == nil || ix.tree == nil {
		return 0, ErrEmptyIndex
	}
	_, d2 := ix.tree.Nearest(kdtree.Point{p[0], p[1]})
	return math.Sqrt(d2), nil
}
