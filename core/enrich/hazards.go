package enrich

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/kilianp07/ghsdash/core/geo"
	"github.com/kilianp07/ghsdash/core/layer"
)

// HazardOptions names the source and output fields of the hazard join.
type HazardOptions struct {
	ZoneField       string `json:"zone_field"`
	ZoneOutput      string `json:"zone_output"`
	HeatField       string `json:"heat_field"`
	HeatOutput      string `json:"heat_output"`
	EvacDistance    string `json:"evac_distance_field"`
	CoolingDistance string `json:"cooling_distance_field"`
}

// DefaultHazardOptions matches the hurricane evacuation zone and heat
// vulnerability layers published by NYC.
func DefaultHazardOptions() HazardOptions {
	return HazardOptions{
		ZoneField:       "hurricane_",
		ZoneOutput:      "hurricane_evacZone",
		HeatField:       "OHEI_Class",
		HeatOutput:      "OHEI",
		EvacDistance:    "evacCenters_distance_mi",
		CoolingDistance: "cooling_centers_distance_mi",
	}
}

// SetDefaults fills zero values from DefaultHazardOptions.
func (o *HazardOptions) SetDefaults() {
	d := DefaultHazardOptions()
	if o.ZoneField == "" {
		o.ZoneField = d.ZoneField
	}
	if o.ZoneOutput == "" {
		o.ZoneOutput = d.ZoneOutput
	}
	if o.HeatField == "" {
		o.HeatField = d.HeatField
	}
	if o.HeatOutput == "" {
		o.HeatOutput = d.HeatOutput
	}
	if o.EvacDistance == "" {
		o.EvacDistance = d.EvacDistance
	}
	if o.CoolingDistance == "" {
		o.CoolingDistance = d.CoolingDistance
	}
}

// HazardInputs are the layers joined onto the schools. Nil layers are
// skipped.
type HazardInputs struct {
	Zones          *layer.Layer
	Heat           *layer.Layer
	EvacCenters    *layer.Layer
	CoolingCenters *layer.Layer
}

// HazardSummary describes the distance fields produced by a join.
type HazardSummary map[string]Summary

// HazardJoin attaches the evacuation zone and heat class of the polygon
// containing each school, and the distance in miles to the nearest
// evacuation and cooling center. Every school row is kept; rows without a
// geometry get null outputs. Only the renamed outputs are kept; the source
// field names and leftover index_* fields are dropped.
func HazardJoin(schools *layer.Layer, in HazardInputs, opts HazardOptions) (*layer.Layer, HazardSummary, error) {
	opts.SetDefaults()
	if err := schools.CheckCRS(); err != nil {
		return nil, nil, err
	}
	out := schools.Clone()

	if in.Zones != nil {
		if err := attachPolygonField(out, in.Zones, opts.ZoneField, opts.ZoneOutput); err != nil {
			return nil, nil, fmt.Errorf("hurricane zones: %w", err)
		}
	}
	if in.Heat != nil {
		if err := attachPolygonField(out, in.Heat, opts.HeatField, opts.HeatOutput); err != nil {
			return nil, nil, fmt.Errorf("heat index: %w", err)
		}
	}

	summary := HazardSummary{}
	if in.EvacCenters != nil {
		s, err := attachNearestDistance(out, in.EvacCenters, opts.EvacDistance)
		if err != nil {
			return nil, nil, fmt.Errorf("evacuation centers: %w", err)
		}
		summary[opts.EvacDistance] = s
	}
	if in.CoolingCenters != nil {
		s, err := attachNearestDistance(out, in.CoolingCenters, opts.CoolingDistance)
		if err != nil {
			return nil, nil, fmt.Errorf("cooling centers: %w", err)
		}
		summary[opts.CoolingDistance] = s
	}

	dropJoinHelpers(out, opts)
	return out, summary, nil
}

type attrPolygon struct {
	geom  orb.Geometry
	bound orb.Bound
	value any
}

// attachPolygonField copies field from the first polygon of zones that
// intersects each feature into output. Features with no match get null.
func attachPolygonField(dst, zones *layer.Layer, field, output string) error {
	if err := zones.RequireFields(field); err != nil {
		return err
	}
	src, err := zones.Reproject(dst.CRS)
	if err != nil {
		return err
	}
	src.DropEmpty()
	polys := make([]attrPolygon, 0, src.Len())
	for _, f := range src.Features {
		polys = append(polys, attrPolygon{geom: f.Geometry, bound: f.Geometry.Bound(), value: f.Properties[field]})
	}
	for _, f := range dst.Features {
		var value any
		if geo.IsEmpty(f.Geometry) {
			f.Properties[output] = nil
			continue
		}
		bb := f.Geometry.Bound()
		for _, p := range polys {
			if bb.Intersects(p.bound) && geo.Intersects(f.Geometry, p.geom) {
				value = p.value
				break
			}
		}
		f.Properties[output] = value
	}
	return nil
}

// attachNearestDistance stores the distance in miles from each point to the
// closest site, measured in EPSG:2263.
func attachNearestDistance(dst, sites *layer.Layer, output string) (Summary, error) {
	projSites, err := sites.Reproject(geo.NYLongIsland)
	if err != nil {
		return Summary{}, err
	}
	index := geo.NewNearestIndex(projSites.AllPoints())
	if index.Len() == 0 {
		return Summary{}, fmt.Errorf("%s: %w", sites.Name, layer.ErrNoGeometry)
	}
	projDst, err := dst.Reproject(geo.NYLongIsland)
	if err != nil {
		return Summary{}, err
	}
	values := make([]float64, 0, dst.Len())
	for i, f := range projDst.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok || geo.IsEmpty(p) {
			dst.Features[i].Properties[output] = nil
			continue
		}
		ft, err := index.Nearest(p)
		if err != nil {
			return Summary{}, err
		}
		mi := geo.FeetToMiles(ft)
		dst.Features[i].Properties[output] = mi
		values = append(values, mi)
	}
	return Summarize(values), nil
}

func dropJoinHelpers(l *layer.Layer, opts HazardOptions) {
	var drop []string
	for _, name := range l.Fields() {
		if strings.HasPrefix(name, "index_") {
			drop = append(drop, name)
		}
	}
	for _, name := range []string{opts.ZoneField, opts.HeatField} {
		if name != opts.ZoneOutput && name != opts.HeatOutput {
			drop = append(drop, name)
		}
	}
	l.DropFields(drop...)
}
