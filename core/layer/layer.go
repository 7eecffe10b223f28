// Package layer holds vector layers as GeoJSON feature collections tagged
// with their coordinate reference system.
package layer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/kilianp07/ghsdash/core/geo"
)

var (
	// ErrMissingCRS is returned when a layer has no coordinate system.
	ErrMissingCRS = errors.New("layer crs is missing")
	// ErrMissingField is returned when required attributes are absent.
	ErrMissingField = errors.New("missing fields")
	// ErrNoGeometry is returned when a layer has no usable geometry.
	ErrNoGeometry = errors.New("layer has no geometry")
)

// Layer is a named collection of features in a single CRS.
type Layer struct {
	Name     string
	CRS      geo.CRS
	Features []*geojson.Feature
}

// New returns an empty layer.
func New(name string, crs geo.CRS) *Layer {
	return &Layer{Name: name, CRS: crs}
}

// Len returns the number of features.
func (l *Layer) Len() int { return len(l.Features) }

// Add appends a feature built from geometry and properties.
func (l *Layer) Add(g orb.Geometry, props map[string]any) *geojson.Feature {
	f := geojson.NewFeature(g)
	for k, v := range props {
		f.Properties[k] = v
	}
	l.Features = append(l.Features, f)
	return f
}

// Clone returns a deep copy of the layer.
func (l *Layer) Clone() *Layer {
	out := &Layer{Name: l.Name, CRS: l.CRS, Features: make([]*geojson.Feature, len(l.Features))}
	for i, f := range l.Features {
		out.Features[i] = cloneFeature(f)
	}
	return out
}

func cloneFeature(f *geojson.Feature) *geojson.Feature {
	c := geojson.NewFeature(nil)
	c.ID = f.ID
	if f.Geometry != nil {
		c.Geometry = orb.Clone(f.Geometry)
	}
	c.Properties = f.Properties.Clone()
	if c.Properties == nil {
		c.Properties = geojson.Properties{}
	}
	return c
}

// CheckCRS returns ErrMissingCRS when the layer CRS is unset.
func (l *Layer) CheckCRS() error {
	if l.CRS == 0 {
		return fmt.Errorf("%s: %w", l.Name, ErrMissingCRS)
	}
	return nil
}

// DropEmpty removes features with null or empty geometry and returns how
// many were removed.
func (l *Layer) DropEmpty() int {
	kept := l.Features[:0]
	for _, f := range l.Features {
		if f == nil || geo.IsEmpty(f.Geometry) {
			continue
		}
		kept = append(kept, f)
	}
	removed := len(l.Features) - len(kept)
	for i := len(kept); i < len(l.Features); i++ {
		l.Features[i] = nil
	}
	l.Features = kept
	return removed
}

// Reproject returns a copy of the layer in the target CRS.
func (l *Layer) Reproject(to geo.CRS) (*Layer, error) {
	if err := l.CheckCRS(); err != nil {
		return nil, err
	}
	out := l.Clone()
	if l.CRS == to {
		return out, nil
	}
	proj, err := geo.Projection(l.CRS, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.Name, err)
	}
	for _, f := range out.Features {
		if f.Geometry != nil {
			f.Geometry = projectInPlace(f.Geometry, proj)
		}
	}
	out.CRS = to
	return out, nil
}

// Fields returns the sorted union of property names.
func (l *Layer) Fields() []string {
	seen := map[string]struct{}{}
	for _, f := range l.Features {
		for k := range f.Properties {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HasField reports whether any feature carries the property.
func (l *Layer) HasField(name string) bool {
	for _, f := range l.Features {
		if _, ok := f.Properties[name]; ok {
			return true
		}
	}
	return false
}

// RequireFields checks that every name is present on the layer. All absent
// names are reported in a single error.
func (l *Layer) RequireFields(names ...string) error {
	var missing []string
	for _, n := range names {
		if !l.HasField(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: %w: %v", l.Name, ErrMissingField, missing)
	}
	return nil
}

// DropFields removes the named properties from every feature.
func (l *Layer) DropFields(names ...string) {
	for _, f := range l.Features {
		for _, n := range names {
			delete(f.Properties, n)
		}
	}
}

// RenameField moves a property to a new name on every feature carrying it.
func (l *Layer) RenameField(from, to string) {
	if from == to {
		return
	}
	for _, f := range l.Features {
		if v, ok := f.Properties[from]; ok {
			delete(f.Properties, from)
			f.Properties[to] = v
		}
	}
}

// IndexedPoint is a point geometry and the position of its feature.
type IndexedPoint struct {
	Index int
	Point orb.Point
}

// Points lists the point features of the layer.
func (l *Layer) Points() []IndexedPoint {
	var out []IndexedPoint
	for i, f := range l.Features {
		if p, ok := f.Geometry.(orb.Point); ok && !geo.IsEmpty(p) {
			out = append(out, IndexedPoint{Index: i, Point: p})
		}
	}
	return out
}

// AllPoints flattens point and multipoint geometries into a single slice.
func (l *Layer) AllPoints() []orb.Point {
	var out []orb.Point
	for _, f := range l.Features {
		switch g := f.Geometry.(type) {
		case orb.Point:
			if !geo.IsEmpty(g) {
				out = append(out, g)
			}
		case orb.MultiPoint:
			out = append(out, g...)
		}
	}
	return out
}

// FeatureID returns the identifier of f, preferring idField when set and
// falling back to the GeoJSON id and then the feature position.
func FeatureID(f *geojson.Feature, idField string, pos int) string {
	if idField != "" {
		if v, ok := f.Properties[idField]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	return strconv.Itoa(pos)
}

// Float coerces a property value to a finite number. Numeric strings are
// parsed; NaN, infinities and anything else report false.
func Float(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case string:
		var err error
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Bool coerces a property value to a boolean.
func Bool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		p, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && p
	case float64:
		return b != 0
	case int:
		return b != 0
	}
	return false
}
