package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kilianp07/ghsdash/core/events"
	"github.com/kilianp07/ghsdash/core/geo"
	"github.com/kilianp07/ghsdash/core/layer"
	"github.com/kilianp07/ghsdash/internal/eventbus"
)

func square(x, y float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + 0.01, y}, {x + 0.01, y + 0.01}, {x, y + 0.01}, {x, y}}}
}

func writeDAC(t *testing.T, dir string) string {
	t.Helper()
	l := layer.New("dac", geo.WGS84)
	l.Add(square(-74, 40.7), map[string]any{"geoid": "A", "dac_designation": true, "percentile_rank_combined_nyc": 0.9, "combined_score": 12.0})
	l.Add(square(-73.9, 40.7), map[string]any{"geoid": "B", "dac_designation": false, "percentile_rank_combined_nyc": 0.2})
	l.Add(square(-73.8, 40.7), map[string]any{"geoid": "C", "dac_designation": "True", "percentile_rank_combined_nyc": 0.9})
	l.Add(square(-73.7, 40.7), map[string]any{"geoid": "D", "dac_designation": true})
	path := filepath.Join(dir, "dac.geojson")
	require.NoError(t, layer.WriteFile(path, l))
	return path
}

func writeSchools(t *testing.T, dir string) string {
	t.Helper()
	l := layer.New("schools", geo.NYLongIsland)
	l.Add(orb.Point{984250, 200000}, map[string]any{"Bldg_Code": "K001"})
	path := filepath.Join(dir, "schools.geojson")
	require.NoError(t, layer.WriteFile(path, l))
	return path
}

func newTestCatalog(t *testing.T, bus eventbus.EventBus) (*Catalog, string) {
	t.Helper()
	dir := t.TempDir()
	dac := DefaultLayers()[0]
	dac.Path = writeDAC(t, dir)
	cfg := Config{Layers: []LayerSpec{
		dac,
		{Name: "schools", Path: writeSchools(t, dir), Kind: KindPoint, Label: "Schools", FillColor: Color{255, 140, 0, 200}, IDField: "Bldg_Code", Tooltip: []string{"Bldg_Code", "geoid"}},
	}}
	c, err := New(cfg, bus, nil)
	require.NoError(t, err)
	require.NoError(t, c.Load(context.Background()))
	return c, dir
}

func TestCatalog_Load(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sub := bus.Subscribe()
	c, _ := newTestCatalog(t, bus)

	dac, err := c.Get("dac")
	require.NoError(t, err)
	assert.Equal(t, 4, dac.Len())

	schools, err := c.Get("schools")
	require.NoError(t, err)
	assert.Equal(t, geo.WGS84, schools.CRS)
	p := schools.Features[0].Geometry.(orb.Point)
	assert.InDelta(t, -74.0, p[0], 1e-6)

	loaded := map[string]int{}
	for i := 0; i < 2; i++ {
		ev := (<-sub).(events.LayerLoaded)
		loaded[ev.Layer] = ev.Features
	}
	assert.Equal(t, map[string]int{"dac": 4, "schools": 1}, loaded)

	_, err = c.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_LoadPartialFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Layers: []LayerSpec{
		{Name: "schools", Path: writeSchools(t, dir)},
		{Name: "missing", Path: filepath.Join(dir, "missing.geojson")},
	}, Concurrency: 1}
	c, err := New(cfg, nil, nil)
	require.NoError(t, err)
	err = c.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	_, err = c.Get("schools")
	assert.NoError(t, err)
	_, err = c.Get("missing")
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Layers: []LayerSpec{
		{Name: "a", Path: "a.geojson"},
		{Name: "a", Path: "b.geojson"},
		{Name: "c", Path: "c.geojson", Kind: "raster"},
	}}
	cfg.SetDefaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate layer")
	assert.Contains(t, err.Error(), "unknown kind")

	var empty Config
	empty.SetDefaults()
	require.NoError(t, empty.Validate())
	assert.Equal(t, "dac", empty.Layers[0].Name)
	assert.Equal(t, Color{100, 200, 250, 75}, empty.Layers[0].FillColor)
}

func TestCatalog_Filter(t *testing.T) {
	c, _ := newTestCatalog(t, nil)

	only, err := c.Filter("dac", FilterOptions{})
	require.NoError(t, err)
	var ids []string
	for _, f := range only.Features {
		ids = append(ids, f.Properties["geoid"].(string))
	}
	assert.Equal(t, []string{"A", "C", "D"}, ids)

	all, err := c.Filter("dac", FilterOptions{ShowNonDAC: true})
	require.NoError(t, err)
	assert.Equal(t, 4, all.Len())

	schools, err := c.Filter("schools", FilterOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, schools.Len())
}

func TestCatalog_Feature(t *testing.T) {
	c, _ := newTestCatalog(t, nil)
	rows, err := c.Feature("dac", "A")
	require.NoError(t, err)
	var fields []string
	for _, r := range rows {
		fields = append(fields, r.Field)
	}
	assert.Equal(t, []string{"geoid", "dac_designation", "combined_score", "percentile_rank_combined_nyc"}, fields)

	_, err = c.Feature("dac", "Z")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_Top(t *testing.T) {
	c, _ := newTestCatalog(t, nil)
	top, err := c.Top("dac", "percentile_rank_combined_nyc", 2, true)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "A", top[0].ID)
	assert.Equal(t, "C", top[1].ID)
	assert.Equal(t, 2, top[1].Rank)

	asc, err := c.Top("dac", "percentile_rank_combined_nyc", 10, false)
	require.NoError(t, err)
	require.Len(t, asc, 3)
	assert.Equal(t, "B", asc[0].ID)

	_, err = c.Top("dac", "percentile_rank_combined_nyc", 0, true)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = c.Top("dac", "unknown", 3, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_MapSpecAndLegend(t *testing.T) {
	c, _ := newTestCatalog(t, nil)

	m, err := c.MapSpec(nil, false)
	require.NoError(t, err)
	assert.Equal(t, ViewState{Latitude: 40.6976701, Longitude: -73.9277866, Zoom: 9}, m.InitialViewState)
	require.Len(t, m.Layers, 1)
	assert.Equal(t, "/api/layers/dac?show_non_dac=false", m.Layers[0].Data)
	assert.Equal(t, "GeoJsonLayer", m.Layers[0].Type)
	assert.Nil(t, m.MapStyle)

	m, err = c.MapSpec([]string{"dac", "schools"}, true)
	require.NoError(t, err)
	require.Len(t, m.Layers, 2)
	assert.Equal(t, 4.0, m.Layers[1].GetPointRadius)
	assert.Equal(t, 5, strings.Count(m.Tooltip.HTML, "<td style='border:1px solid #bbb; padding:2px 6px;'>{"))

	_, err = c.MapSpec([]string{"nope"}, false)
	assert.ErrorIs(t, err, ErrNotFound)

	legend, err := c.Legend(nil)
	require.NoError(t, err)
	require.Len(t, legend, 2)
	assert.Equal(t, LegendEntry{Name: "dac", Label: "DAC Polygon", Color: "rgba(100,200,250,0.75)", Kind: KindPolygon, Checked: true}, legend[0])
	assert.False(t, legend[1].Checked)
}

func TestTooltipHTML_AlternatingRows(t *testing.T) {
	html := TooltipHTML([]string{"geoid", "dac_designation", "combined_score"})
	assert.True(t, strings.HasPrefix(html, "<table"))
	assert.True(t, strings.HasSuffix(html, "</table>"))
	first := strings.Index(html, "#f0f0f0")
	second := strings.Index(html, "<tr style='background:#fff;'>")
	third := strings.LastIndex(html, "#f0f0f0")
	assert.True(t, first >= 0 && first < second && second < third)
	assert.Contains(t, html, "{combined_score}")
}

type countingReader struct {
	mu    sync.Mutex
	calls map[string]int
	next  func(string) (*layer.Layer, error)
}

func (r *countingReader) read(path string) (*layer.Layer, error) {
	r.mu.Lock()
	r.calls[filepath.Base(path)]++
	r.mu.Unlock()
	return r.next(path)
}

func (r *countingReader) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func TestCatalog_Watch(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := eventbus.New()
	c, _ := newTestCatalog(t, nil)
	rd := &countingReader{calls: map[string]int{}, next: layer.ReadFile}
	c.read = rd.read

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Watch(ctx, bus)
		close(done)
	}()

	spec, _ := c.Spec("schools")
	deadline := time.After(2 * time.Second)
	for rd.count("schools.geojson") == 0 {
		bus.Publish(events.LayerUpdated{Path: spec.Path})
		select {
		case <-deadline:
			t.Fatal("layer not reloaded")
		case <-time.After(20 * time.Millisecond):
		}
	}
	for rd.count("dac.geojson") == 0 {
		bus.Publish(events.LayerUpdated{Layer: "dac"})
		select {
		case <-deadline:
			t.Fatal("layer not reloaded by name")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	<-done
	bus.Close()
}

func TestCatalog_ReloadKeepsPreviousOnError(t *testing.T) {
	c, _ := newTestCatalog(t, nil)
	c.read = func(string) (*layer.Layer, error) { return nil, errors.New("truncated file") }
	require.Error(t, c.Reload("dac"))
	l, err := c.Get("dac")
	require.NoError(t, err)
	assert.Equal(t, 4, l.Len())
}
