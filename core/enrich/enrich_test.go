package enrich

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ghsdash/core/geo"
	"github.com/kilianp07/ghsdash/core/layer"
)

// square returns an axis aligned square polygon in EPSG:2263 feet.
func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

func stormLayer() *layer.Layer {
	storm := layer.New("storm", geo.NYLongIsland)
	// Both polygons sit within 300 ft of a school at (1000000, 200000).
	storm.Add(square(1000100, 199900, 200), map[string]any{
		"Flood_Scenario": "Moderate", "Flood_Category": "Deep", "Stormwater_Flood_Risk": 3,
	})
	storm.Add(square(999750, 199900, 100), map[string]any{
		"Flood_Scenario": "Moderate", "Flood_Category": "Shallow", "Stormwater_Flood_Risk": "1",
	})
	storm.Add(square(999900, 200100, 50), map[string]any{
		"Flood_Scenario": "Extreme", "Flood_Category": "Unknown", "Stormwater_Flood_Risk": "n/a",
	})
	return storm
}

func TestStormwaterJoin_LowestRiskWins(t *testing.T) {
	schools := layer.New("schools", geo.NYLongIsland)
	schools.Add(orb.Point{1000000, 200000}, map[string]any{"ATS": "A", "Stormwater_Flood_Risk": 9})
	schools.Add(orb.Point{1010000, 210000}, map[string]any{"ATS": "B"})
	schools.Add(nil, map[string]any{"ATS": "C"})

	res, err := StormwaterJoin(schools, stormLayer(), StormwaterOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, res.Points.Len())
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 1, res.Unmatched)

	a := res.Points.Features[0].Properties
	assert.Equal(t, 1, a["Stormwater_Flood_Risk"])
	assert.Equal(t, "Shallow", a["Flood_Category"])

	b := res.Points.Features[1].Properties
	assert.Equal(t, 0, b["Stormwater_Flood_Risk"])
	assert.Equal(t, "No forecasted risk of stormwater flooding", b["Flood_Scenario"])
	assert.Equal(t, "No forecasted risk of stormwater flooding", b["Flood_Category"])

	assert.Equal(t, 2, res.Buffers.Len())
	assert.Equal(t, geo.NYLongIsland, res.Buffers.CRS)
	// original input is untouched
	assert.Equal(t, 9, schools.Features[0].Properties["Stormwater_Flood_Risk"])
}

func TestStormwaterJoin_KeepsOriginalCRS(t *testing.T) {
	origin, err := geo.ReprojectPoint(orb.Point{1000000, 200000}, geo.NYLongIsland, geo.WGS84)
	require.NoError(t, err)
	schools := layer.New("schools", geo.WGS84)
	schools.Add(origin, map[string]any{"ATS": "A"})

	res, err := StormwaterJoin(schools, stormLayer(), DefaultStormwaterOptions())
	require.NoError(t, err)
	assert.Equal(t, geo.WGS84, res.Points.CRS)
	assert.Equal(t, origin, res.Points.Features[0].Geometry)
	assert.Equal(t, 1, res.Points.Features[0].Properties["Stormwater_Flood_Risk"])
}

func TestStormwaterJoin_Errors(t *testing.T) {
	schools := layer.New("schools", geo.NYLongIsland)
	storm := layer.New("storm", geo.NYLongIsland)
	storm.Add(square(0, 0, 1), map[string]any{"Flood_Scenario": "x"})
	_, err := StormwaterJoin(schools, storm, StormwaterOptions{})
	if !errors.Is(err, layer.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	_, err = StormwaterJoin(&layer.Layer{Name: "schools"}, stormLayer(), StormwaterOptions{})
	if !errors.Is(err, layer.ErrMissingCRS) {
		t.Fatalf("expected ErrMissingCRS, got %v", err)
	}
}

func TestHazardJoin(t *testing.T) {
	schools := layer.New("schools", geo.NYLongIsland)
	schools.Add(orb.Point{1000050, 200050}, map[string]any{"ATS": "A", "index_right": 3})
	schools.Add(orb.Point{1020000, 200000}, map[string]any{"ATS": "B"})

	zones := layer.New("zones", geo.NYLongIsland)
	zones.Add(square(1000000, 200000, 100), map[string]any{"hurricane_": "1"})
	heat := layer.New("heat", geo.NYLongIsland)
	heat.Add(square(990000, 190000, 40000), map[string]any{"OHEI_Class": 4.0})

	evac := layer.New("evac", geo.NYLongIsland)
	evac.Add(orb.Point{1000050, 200050 + 5280}, nil)
	cooling := layer.New("cooling", geo.NYLongIsland)
	cooling.Add(orb.MultiPoint{{1020000, 200000 + 2640}, {0, 0}}, nil)

	out, summary, err := HazardJoin(schools, HazardInputs{Zones: zones, Heat: heat, EvacCenters: evac, CoolingCenters: cooling}, HazardOptions{})
	require.NoError(t, err)

	a := out.Features[0].Properties
	assert.Equal(t, "1", a["hurricane_evacZone"])
	assert.Equal(t, 4.0, a["OHEI"])
	assert.InDelta(t, 1.0, a["evacCenters_distance_mi"], 1e-9)
	assert.NotContains(t, a, "index_right")
	assert.NotContains(t, a, "hurricane_")
	assert.NotContains(t, a, "OHEI_Class")

	b := out.Features[1].Properties
	assert.Nil(t, b["hurricane_evacZone"])
	assert.Equal(t, 4.0, b["OHEI"])
	assert.InDelta(t, 0.5, b["cooling_centers_distance_mi"], 1e-9)

	assert.Equal(t, 2, summary["evacCenters_distance_mi"].Count)
	assert.Equal(t, 2, summary["cooling_centers_distance_mi"].Count)
}

func TestHazardJoin_KeepsRowsWithoutGeometry(t *testing.T) {
	schools := layer.New("schools", geo.NYLongIsland)
	schools.Add(orb.Point{1000050, 200050}, map[string]any{"ATS": "A"})
	schools.Add(nil, map[string]any{"ATS": "B", "name": "no location"})

	zones := layer.New("zones", geo.NYLongIsland)
	zones.Add(square(1000000, 200000, 100), map[string]any{"hurricane_": "1"})
	heat := layer.New("heat", geo.NYLongIsland)
	heat.Add(square(990000, 190000, 40000), map[string]any{"OHEI_Class": 4.0})
	evac := layer.New("evac", geo.NYLongIsland)
	evac.Add(orb.Point{1000050, 200050 + 5280}, nil)
	cooling := layer.New("cooling", geo.NYLongIsland)
	cooling.Add(orb.Point{1000050, 200050 + 2640}, nil)

	out, summary, err := HazardJoin(schools, HazardInputs{Zones: zones, Heat: heat, EvacCenters: evac, CoolingCenters: cooling}, HazardOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	b := out.Features[1].Properties
	assert.Equal(t, "B", b["ATS"])
	assert.Equal(t, "no location", b["name"])
	for _, field := range []string{"hurricane_evacZone", "OHEI", "evacCenters_distance_mi", "cooling_centers_distance_mi"} {
		v, ok := b[field]
		assert.True(t, ok, "field %s missing", field)
		assert.Nil(t, v, "field %s", field)
	}
	assert.Equal(t, "1", out.Features[0].Properties["hurricane_evacZone"])
	assert.Equal(t, 1, summary["evacCenters_distance_mi"].Count)
}

func TestHazardJoin_MissingZoneField(t *testing.T) {
	schools := layer.New("schools", geo.NYLongIsland)
	schools.Add(orb.Point{0, 0}, nil)
	zones := layer.New("zones", geo.NYLongIsland)
	zones.Add(square(0, 0, 1), map[string]any{"zone": "X"})
	_, _, err := HazardJoin(schools, HazardInputs{Zones: zones}, HazardOptions{})
	if !errors.Is(err, layer.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestHazardJoin_NoCenters(t *testing.T) {
	schools := layer.New("schools", geo.NYLongIsland)
	schools.Add(orb.Point{0, 0}, nil)
	empty := layer.New("evac", geo.NYLongIsland)
	_, _, err := HazardJoin(schools, HazardInputs{EvacCenters: empty}, HazardOptions{})
	if !errors.Is(err, layer.ErrNoGeometry) {
		t.Fatalf("expected ErrNoGeometry, got %v", err)
	}
}

func TestSnapByField(t *testing.T) {
	l := layer.New("schools", geo.WGS84)
	l.Add(nil, map[string]any{"Bldg_Code": "K001 ", "lat": nil, "lng": nil})
	l.Add(orb.Point{-73.90, 40.60}, map[string]any{"Bldg_Code": "K001", "lat": 40.60, "lng": -73.90})
	l.Add(orb.Point{-73.91, 40.61}, map[string]any{"Bldg_Code": " K001", "lat": "40.61", "lng": "-73.91"})
	l.Add(orb.Point{-73.80, 40.70}, map[string]any{"Bldg_Code": "", "lat": 40.70, "lng": -73.80})
	l.Add(orb.Point{-73.70, 40.75}, map[string]any{"Bldg_Code": nil, "lat": "bad", "lng": -73.70})
	l.Add(nil, map[string]any{"Bldg_Code": "Q002", "lat": nil, "lng": nil})

	rep, err := SnapByField(l, SnapOptions{})
	require.NoError(t, err)
	assert.Equal(t, SnapReport{RowsBefore: 6, RowsAfter: 6, RowsSnapped: 3, GroupsSnapped: 1}, rep)

	target := orb.Point{-73.90, 40.60}
	for i := 0; i < 3; i++ {
		f := l.Features[i]
		assert.Equal(t, target, f.Geometry, "row %d", i)
		assert.Equal(t, "K001", f.Properties["Bldg_Code"])
		assert.Equal(t, 40.60, f.Properties["lat"])
		assert.Equal(t, -73.90, f.Properties["lng"])
	}
	assert.Equal(t, orb.Point{-73.80, 40.70}, l.Features[3].Geometry)
	assert.Nil(t, l.Features[4].Properties["lat"])
	assert.Nil(t, l.Features[4].Properties["Bldg_Code"])
	assert.Nil(t, l.Features[5].Geometry)
}

func TestSnapByField_MissingFields(t *testing.T) {
	l := layer.New("schools", geo.WGS84)
	l.Add(orb.Point{0, 0}, map[string]any{"Bldg_Code": "X"})
	_, err := SnapByField(l, SnapOptions{})
	if !errors.Is(err, layer.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

const asciiGrid = `ncols 3
nrows 2
xllcorner 0
yllcorner 0
cellsize 10
NODATA_value -9999
1 2 3
4 -9999 6
`

func TestReadASCIIGrid_Sample(t *testing.T) {
	g, err := ReadASCIIGrid(strings.NewReader(asciiGrid))
	require.NoError(t, err)
	cases := []struct {
		x, y float64
		want float64
		ok   bool
	}{
		{5, 15, 1, true},
		{25, 15, 3, true},
		{5, 5, 4, true},
		{15, 5, 0, false},
		{35, 5, 0, false},
		{5, -1, 0, false},
	}
	for _, c := range cases {
		v, ok := g.Sample(c.x, c.y)
		assert.Equal(t, c.ok, ok, "(%v,%v)", c.x, c.y)
		if c.ok {
			assert.Equal(t, c.want, v)
		}
	}
}

func TestReadASCIIGrid_Center(t *testing.T) {
	g, err := ReadASCIIGrid(strings.NewReader("ncols 1\nnrows 1\nxllcenter 5\nyllcenter 5\ncellsize 10\n7\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, g.XLL)
	assert.Nil(t, g.NoData)
	_, err = ReadASCIIGrid(strings.NewReader("ncols 2\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n7\n"))
	assert.Error(t, err)
}

func TestFindGridsAndSample(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "AnnAvg", "aa14_pm300m")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "grid.asc"), []byte(asciiGrid), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "aa14_no2300m.asc"), []byte(asciiGrid), 0o644))

	found, err := FindGrids(base, []string{"aa14_pm300m", "aa14_no2300m"})
	require.NoError(t, err)
	assert.Equal(t, dir, found["aa14_pm300m"])

	g, err := ReadASCIIGridFile(found["aa14_pm300m"])
	require.NoError(t, err)

	pts := layer.New("schools", geo.NYLongIsland)
	pts.Add(orb.Point{5, 15}, nil)
	pts.Add(orb.Point{15, 5}, nil)
	pts.Add(nil, nil)
	target := DefaultGridTargets()[0]
	n, err := SampleGrid(pts, g, geo.NYLongIsland, target.FieldName())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, pts.Features[0].Properties["pm25_aa14"])
	assert.Nil(t, pts.Features[1].Properties["pm25_aa14"])

	_, err = FindGrids(base, []string{"aa15_pm300m"})
	if !errors.Is(err, ErrNoGrid) {
		t.Fatalf("expected ErrNoGrid, got %v", err)
	}
}

func TestSanitizeFields(t *testing.T) {
	long := strings.Repeat("x", 70)
	l := layer.New("out", geo.WGS84)
	l.Add(orb.Point{0, 0}, map[string]any{
		"FID":      1,
		"OBJECTID": 2,
		long:       "a",
		long + "y": "b",
		"name":     "c",
		"Geom":     "rooftop",
	})
	renames := SanitizeFields(l)
	assert.Equal(t, "src_geom", renames["Geom"])
	assert.Equal(t, "src_fid", renames["FID"])
	assert.Equal(t, "src_objectid", renames["OBJECTID"])
	props := l.Features[0].Properties
	assert.Equal(t, 1, props["src_fid"])
	assert.Equal(t, "rooftop", props["src_geom"])
	assert.Equal(t, "c", props["name"])
	for name := range props {
		assert.LessOrEqual(t, len(name), MaxFieldName)
	}
	assert.Contains(t, props, strings.Repeat("x", 64))
	assert.Contains(t, props, strings.Repeat("x", 62)+"_1")
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{5, 1, 3, 2, 4})
	assert.Equal(t, 5, s.Count)
	assert.InDelta(t, 3.0, s.Mean, 1e-12)
	assert.InDelta(t, 1.5811388, s.Std, 1e-6)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 5.0, s.Max)
	assert.Equal(t, 3.0, s.P50)
	assert.Equal(t, Summary{}, Summarize(nil))
}
