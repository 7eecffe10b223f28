// Package enrich attaches hazard attributes to school point layers.
package enrich

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/kilianp07/ghsdash/core/geo"
	"github.com/kilianp07/ghsdash/core/layer"
)

// StormwaterOptions configures the buffered stormwater join.
type StormwaterOptions struct {
	BufferFeet     float64 `json:"buffer_feet"`
	BufferSegments int     `json:"buffer_segments"`
	ScenarioField  string  `json:"scenario_field"`
	CategoryField  string  `json:"category_field"`
	RiskField      string  `json:"risk_field"`
	NoRiskLabel    string  `json:"no_risk_label"`
	NoRiskValue    int     `json:"no_risk_value"`
}

// DefaultStormwaterOptions returns the settings used for the NYC
// stormwater flood map at current sea level.
func DefaultStormwaterOptions() StormwaterOptions {
	return StormwaterOptions{
		BufferFeet:     300,
		BufferSegments: geo.DefaultBufferSegments,
		ScenarioField:  "Flood_Scenario",
		CategoryField:  "Flood_Category",
		RiskField:      "Stormwater_Flood_Risk",
		NoRiskLabel:    "No forecasted risk of stormwater flooding",
		NoRiskValue:    0,
	}
}

// SetDefaults fills zero values from DefaultStormwaterOptions.
func (o *StormwaterOptions) SetDefaults() {
	d := DefaultStormwaterOptions()
	if o.BufferFeet == 0 {
		o.BufferFeet = d.BufferFeet
	}
	if o.BufferSegments == 0 {
		o.BufferSegments = d.BufferSegments
	}
	if o.ScenarioField == "" {
		o.ScenarioField = d.ScenarioField
	}
	if o.CategoryField == "" {
		o.CategoryField = d.CategoryField
	}
	if o.RiskField == "" {
		o.RiskField = d.RiskField
	}
	if o.NoRiskLabel == "" {
		o.NoRiskLabel = d.NoRiskLabel
	}
}

// Validate checks option ranges.
func (o StormwaterOptions) Validate() error {
	if o.BufferFeet <= 0 {
		return fmt.Errorf("buffer_feet must be positive")
	}
	return nil
}

// StormwaterResult holds the enriched points and the buffers used for QA.
type StormwaterResult struct {
	Points    *layer.Layer
	Buffers   *layer.Layer
	Matched   int
	Unmatched int
	Skipped   int
}

type riskPolygon struct {
	geom     orb.Geometry
	bound    orb.Bound
	risk     int
	scenario any
	category any
}

// StormwaterJoin buffers every school point in EPSG:2263, intersects the
// buffers with the stormwater polygons and copies the highest priority
// (lowest numbered) risk record back onto the original points. Points
// without overlap receive the no-risk label and value.
func StormwaterJoin(schools, storm *layer.Layer, opts StormwaterOptions) (*StormwaterResult, error) {
	opts.SetDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := schools.CheckCRS(); err != nil {
		return nil, err
	}
	if err := storm.CheckCRS(); err != nil {
		return nil, err
	}
	if err := storm.RequireFields(opts.ScenarioField, opts.CategoryField, opts.RiskField); err != nil {
		return nil, err
	}

	points := schools.Clone()
	points.DropEmpty()
	points.DropFields(opts.ScenarioField, opts.CategoryField, opts.RiskField)

	projected, err := points.Reproject(geo.NYLongIsland)
	if err != nil {
		return nil, fmt.Errorf("project schools: %w", err)
	}
	polys, err := riskPolygons(storm, opts)
	if err != nil {
		return nil, err
	}

	res := &StormwaterResult{
		Points:  points,
		Buffers: layer.New(points.Name+"_buffers", geo.NYLongIsland),
	}
	for i, f := range projected.Features {
		target := points.Features[i].Properties
		center, ok := f.Geometry.(orb.Point)
		if !ok {
			res.Skipped++
			setNoRisk(target, opts)
			continue
		}
		buf := geo.Buffer(center, opts.BufferFeet, opts.BufferSegments)
		res.Buffers.Add(buf, map[string]any{"pt_id": i})

		best := bestRisk(buf, polys)
		if best == nil {
			res.Unmatched++
			setNoRisk(target, opts)
			continue
		}
		res.Matched++
		target[opts.ScenarioField] = best.scenario
		target[opts.CategoryField] = best.category
		target[opts.RiskField] = best.risk
	}
	return res, nil
}

func setNoRisk(props map[string]any, opts StormwaterOptions) {
	props[opts.ScenarioField] = opts.NoRiskLabel
	props[opts.CategoryField] = opts.NoRiskLabel
	props[opts.RiskField] = opts.NoRiskValue
}

func riskPolygons(storm *layer.Layer, opts StormwaterOptions) ([]riskPolygon, error) {
	src, err := storm.Reproject(geo.NYLongIsland)
	if err != nil {
		return nil, fmt.Errorf("project stormwater: %w", err)
	}
	src.DropEmpty()
	out := make([]riskPolygon, 0, src.Len())
	for _, f := range src.Features {
		r, ok := layer.Float(f.Properties[opts.RiskField])
		if !ok {
			continue
		}
		out = append(out, riskPolygon{
			geom:     f.Geometry,
			bound:    f.Geometry.Bound(),
			risk:     int(r),
			scenario: f.Properties[opts.ScenarioField],
			category: f.Properties[opts.CategoryField],
		})
	}
	return out, nil
}

// bestRisk returns the intersecting polygon with the lowest risk value. Ties
// keep the first polygon in layer order.
func bestRisk(buf orb.Polygon, polys []riskPolygon) *riskPolygon {
	bb := buf.Bound()
	var best *riskPolygon
	for i := range polys {
		p := &polys[i]
		if best != nil && p.risk >= best.risk {
			continue
		}
		if !bb.Intersects(p.bound) || !geo.Intersects(buf, p.geom) {
			continue
		}
		best = p
	}
	return best
}
