package layer

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ghsdash/core/geo"
)

const projected = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::2263"}},
  "features": [
    {"type": "Feature", "properties": {"Stormwater_Flood_Risk": 2}, "geometry": {"type": "Point", "coordinates": [1000000, 200000]}},
    {"type": "Feature", "properties": {"Stormwater_Flood_Risk": 1}, "geometry": null}
  ]
}`

func TestDecode_CRSMember(t *testing.T) {
	l, err := Decode("storm", strings.NewReader(projected))
	require.NoError(t, err)
	assert.Equal(t, geo.NYLongIsland, l.CRS)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 1, l.DropEmpty())
	assert.Equal(t, 1, l.Len())
}

func TestDecode_DefaultWGS84(t *testing.T) {
	l, err := Decode("schools", strings.NewReader(`{"type":"FeatureCollection","features":[]}`))
	require.NoError(t, err)
	assert.Equal(t, geo.WGS84, l.CRS)
}

func TestEncode_RoundTrip(t *testing.T) {
	l := New("buffers", geo.NYLongIsland)
	l.Add(orb.Point{1, 2}, map[string]any{"name": "PS 1"})
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, l))
	assert.Contains(t, buf.String(), "EPSG::2263")

	back, err := Decode("buffers", &buf)
	require.NoError(t, err)
	assert.Equal(t, geo.NYLongIsland, back.CRS)
	assert.Equal(t, "PS 1", back.Features[0].Properties["name"])
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "schools.geojson")
	l := New("schools", geo.WGS84)
	l.Add(orb.Point{-73.9, 40.7}, map[string]any{"ATS": "01M015"})
	require.NoError(t, WriteFile(path, l))
	back, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "schools", back.Name)
	assert.Equal(t, geo.WGS84, back.CRS)
	assert.Equal(t, orb.Point{-73.9, 40.7}, back.Features[0].Geometry)
}

func TestRequireFields(t *testing.T) {
	l := New("storm", geo.NYLongIsland)
	l.Add(orb.Point{0, 0}, map[string]any{"Flood_Scenario": "x"})
	err := l.RequireFields("Flood_Scenario", "Flood_Category", "Stormwater_Flood_Risk")
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	assert.Contains(t, err.Error(), "Flood_Category")
	assert.Contains(t, err.Error(), "Stormwater_Flood_Risk")
	assert.NoError(t, l.RequireFields("Flood_Scenario"))
}

func TestReproject(t *testing.T) {
	l := New("schools", geo.WGS84)
	l.Add(orb.Point{-74, 40 + 10.0/60}, nil)
	out, err := l.Reproject(geo.NYLongIsland)
	require.NoError(t, err)
	p := out.Features[0].Geometry.(orb.Point)
	assert.InDelta(t, 984250.0, p[0], 0.01)
	assert.Equal(t, orb.Point{-74, 40 + 10.0/60}, l.Features[0].Geometry)

	var missing Layer
	if _, err := missing.Reproject(geo.WGS84); !errors.Is(err, ErrMissingCRS) {
		t.Fatalf("expected ErrMissingCRS, got %v", err)
	}
}

func TestFieldsAndRename(t *testing.T) {
	l := New("x", geo.WGS84)
	l.Add(orb.Point{0, 0}, map[string]any{"b": 1, "a": 2})
	l.Add(orb.Point{0, 0}, map[string]any{"c": 3})
	assert.Equal(t, []string{"a", "b", "c"}, l.Fields())
	l.RenameField("a", "z")
	l.DropFields("c")
	assert.Equal(t, []string{"b", "z"}, l.Fields())
}

func TestFloatAndBool(t *testing.T) {
	v, ok := Float("1")
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)
	_, ok = Float("high")
	assert.False(t, ok)
	_, ok = Float(nil)
	assert.False(t, ok)
	for _, bad := range []any{"NaN", " Inf", "-inf", math.NaN(), math.Inf(1)} {
		_, ok = Float(bad)
		assert.False(t, ok, "%v", bad)
	}
	assert.True(t, Bool(true))
	assert.True(t, Bool("true"))
	assert.False(t, Bool(nil))
}

func TestFeatureID(t *testing.T) {
	l := New("dac", geo.WGS84)
	f := l.Add(orb.Point{0, 0}, map[string]any{"geoid": "36061000100"})
	assert.Equal(t, "36061000100", FeatureID(f, "geoid", 0))
	assert.Equal(t, "0", FeatureID(f, "", 0))
	f.ID = 7
	assert.Equal(t, "7", FeatureID(f, "missing", 0))
}
