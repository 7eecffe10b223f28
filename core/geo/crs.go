package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// CRS identifies a coordinate reference system by EPSG code.
type CRS int

const (
	// WGS84 is geographic longitude/latitude (EPSG:4326, GeoJSON default).
	WGS84 CRS = 4326
	// NYLongIsland is NAD83 / New York Long Island in US survey feet (EPSG:2263).
	NYLongIsland CRS = 2263
)

// ErrUnsupportedCRS is returned when no projection exists between two systems.
var ErrUnsupportedCRS = errors.New("unsupported crs")

func (c CRS) String() string { return "EPSG:" + strconv.Itoa(int(c)) }

// Projected reports whether coordinates are planar (feet or metres).
func (c CRS) Projected() bool { return c != WGS84 }

// ParseCRS understands the spellings found in GeoJSON "crs" members:
// "EPSG:2263", "urn:ogc:def:crs:EPSG::2263" and "urn:ogc:def:crs:OGC:1.3:CRS84".
func ParseCRS(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty name", ErrUnsupportedCRS)
	}
	up := strings.ToUpper(s)
	if strings.HasSuffix(up, "CRS84") {
		return WGS84, nil
	}
	i := strings.LastIndex(up, ":")
	code, err := strconv.Atoi(up[i+1:])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCRS, s)
	}
	switch CRS(code) {
	case WGS84, NYLongIsland:
		return CRS(code), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedCRS, s)
}

// Projection returns the point transform from one system to another.
func Projection(from, to CRS) (orb.Projection, error) {
	switch {
	case from == to:
		return func(p orb.Point) orb.Point { return p }, nil
	case from == WGS84 && to == NYLongIsland:
		return nyLongIsland.forward, nil
	case from == NYLongIsland && to == WGS84:
		return nyLongIsland.inverse, nil
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrUnsupportedCRS, from, to)
}

// Reproject returns a copy of g transformed from one CRS to another.
func Reproject(g orb.Geometry, from, to CRS) (orb.Geometry, error) {
	if g == nil {
		return nil, nil
	}
	proj, err := Projection(from, to)
	if err != nil {
		return nil, err
	}
	return project.Geometry(orb.Clone(g), proj), nil
}

// ReprojectPoint transforms a single point.
func ReprojectPoint(p orb.Point, from, to CRS) (orb.Point, error) {
	proj, err := Projection(from, to)
	if err != nil {
		return orb.Point{}, err
	}
	return proj(p), nil
}
