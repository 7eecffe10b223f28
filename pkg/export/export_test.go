package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/ghsdash/core/geo"
	"github.com/kilianp07/ghsdash/core/layer"
)

func hazardSchools() *layer.Layer {
	l := layer.New("schools_hazards", geo.WGS84)
	l.Add(orb.Point{-73.95, 40.7}, map[string]any{"Bldg_Code": "K001", "OHEI": "High", "evacCenters_distance_mi": 0.5})
	l.Add(orb.Point{-73.9, 40.75}, map[string]any{"Bldg_Code": "K002", "OHEI": "High", "evacCenters_distance_mi": 1.5})
	l.Add(nil, map[string]any{"Bldg_Code": "K003", "OHEI": nil, "evacCenters_distance_mi": nil})
	return l
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, hazardSchools(), []string{"Bldg_Code", "evacCenters_distance_mi"}))
	want := "Bldg_Code,evacCenters_distance_mi,lon,lat\n" +
		"K001,0.5,-73.95,40.7\n" +
		"K002,1.5,-73.9,40.75\n" +
		"K003,,,\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_PolygonLayerHasNoCoordinates(t *testing.T) {
	l := layer.New("dac", geo.WGS84)
	l.Add(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, map[string]any{"geoid": "36047000100", "dac_designation": true})
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, l, nil))
	assert.Equal(t, "dac_designation,geoid\ntrue,36047000100\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, hazardSchools(), []string{"Bldg_Code"}))
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "K001", rows[0]["Bldg_Code"])
	assert.Equal(t, -73.95, rows[0]["lon"])
	assert.Nil(t, rows[2]["lat"])
	_, hasOHEI := rows[0]["OHEI"]
	assert.False(t, hasOHEI)
}

func TestDescribeAndYAML(t *testing.T) {
	rep := Describe(hazardSchools(), nil)
	assert.Equal(t, 3, rep.Features)
	dist, ok := rep.Numeric["evacCenters_distance_mi"]
	require.True(t, ok)
	assert.Equal(t, 2, dist.Count)
	assert.InDelta(t, 1.0, dist.Mean, 1e-9)
	assert.Equal(t, []Bucket{{Label: "High", Count: 2}}, rep.Categories["OHEI"])

	var buf bytes.Buffer
	require.NoError(t, WriteSummaryYAML(&buf, rep))
	var back map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "schools_hazards", back["layer"])
	assert.Contains(t, buf.String(), "  evacCenters_distance_mi:")
}

func TestHistogram(t *testing.T) {
	l := layer.New("x", geo.WGS84)
	for _, v := range []float64{0, 1, 2, 3, 4, 10} {
		l.Add(orb.Point{0, 0}, map[string]any{"v": v})
	}
	b, err := Histogram(l, "v", 5)
	require.NoError(t, err)
	require.Len(t, b, 5)
	assert.Equal(t, "0 - 2", b[0].Label)
	assert.Equal(t, 2, b[0].Count)
	assert.Equal(t, 1, b[4].Count)

	total := 0
	for _, x := range b {
		total += x.Count
	}
	assert.Equal(t, 6, total)

	_, err = Histogram(l, "missing", 5)
	assert.True(t, errors.Is(err, ErrNoValues))
}

func TestHistogramHTML(t *testing.T) {
	html, err := HistogramHTML(hazardSchools(), "OHEI", 0)
	require.NoError(t, err)
	assert.True(t, strings.Contains(html, "echarts"))
	assert.True(t, strings.Contains(html, "schools_hazards"))
}
