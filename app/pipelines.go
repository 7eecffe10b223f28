package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/ghsdash/config"
	"github.com/kilianp07/ghsdash/core/enrich"
	"github.com/kilianp07/ghsdash/core/geo"
	"github.com/kilianp07/ghsdash/core/layer"
	"github.com/kilianp07/ghsdash/core/pipeline"
	"github.com/kilianp07/ghsdash/core/runlog"
	"github.com/kilianp07/ghsdash/infra/gpkg"
	"github.com/kilianp07/ghsdash/pkg/export"
)

// Step names recorded in the run ledger.
const (
	StepStormwater = "stormwater"
	StepHazards    = "hazards"
	StepSnap       = "snap"
	StepPollution  = "pollution"
	StepReport     = "report"
)

// Stormwater buffers the schools, joins the stormwater flood risk and writes
// the enriched points, the QA buffers and an optional GeoPackage.
func (r *Runtime) Stormwater(ctx context.Context, c config.StormwaterConfig) (runlog.Record, error) {
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return runlog.Record{}, err
	}
	return r.Runner().Run(ctx, StepStormwater, []string{c.Schools, c.Storm}, func(ctx context.Context) (pipeline.Result, error) {
		schools, storm, err := readPair(ctx, c.Schools, c.Storm)
		if err != nil {
			return pipeline.Result{}, err
		}
		res, err := enrich.StormwaterJoin(schools, storm, c.Options)
		if err != nil {
			return pipeline.Result{}, err
		}
		out := pipeline.Result{Counts: map[string]int{
			"schools_in": schools.Len(),
			"storm_in":   storm.Len(),
			"points_out": res.Points.Len(),
			"matched":    res.Matched,
			"unmatched":  res.Unmatched,
			"skipped":    res.Skipped,
		}}
		res.Points.Name = layer.NameFromPath(c.Output)
		if err := writeGeoJSON(&out, c.Output, res.Points); err != nil {
			return out, err
		}
		if c.Buffers != "" {
			res.Buffers.Name = layer.NameFromPath(c.Buffers)
			if err := writeGeoJSON(&out, c.Buffers, res.Buffers); err != nil {
				return out, err
			}
		}
		if c.GPKG != "" {
			if err := writeGPKG(ctx, &out, c.GPKG, res.Points); err != nil {
				return out, err
			}
		}
		return out, nil
	})
}

// Hazards joins evacuation zones, heat vulnerability and distances to the
// nearest evacuation and cooling centers onto the schools. The distance
// summary is written as YAML next to the outputs.
func (r *Runtime) Hazards(ctx context.Context, c config.HazardsConfig) (runlog.Record, error) {
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return runlog.Record{}, err
	}
	inputs := []string{c.Schools, c.EvacZones, c.HeatIndex, c.EvacCenters, c.CoolingCenters}
	return r.Runner().Run(ctx, StepHazards, nonEmpty(inputs), func(ctx context.Context) (pipeline.Result, error) {
		layers, err := readAll(ctx, inputs)
		if err != nil {
			return pipeline.Result{}, err
		}
		schools := layers[0]
		joined, summary, err := enrich.HazardJoin(schools, enrich.HazardInputs{
			Zones:          layers[1],
			Heat:           layers[2],
			EvacCenters:    layers[3],
			CoolingCenters: layers[4],
		}, c.Options)
		if err != nil {
			return pipeline.Result{}, err
		}
		for name, s := range summary {
			r.Log.Infof("%s: count=%d mean=%.3f min=%.3f max=%.3f", name, s.Count, s.Mean, s.Min, s.Max)
		}
		out := pipeline.Result{Counts: map[string]int{
			"schools_in": schools.Len(),
			"points_out": joined.Len(),
		}}
		joined.Name = layer.NameFromPath(c.Output)
		if err := writeGeoJSON(&out, c.Output, joined); err != nil {
			return out, err
		}
		if c.GPKG != "" {
			if err := writeGPKG(ctx, &out, c.GPKG, joined); err != nil {
				return out, err
			}
		}
		if c.Summary != "" {
			if err := writeYAML(c.Summary, summary); err != nil {
				return out, err
			}
			out.Outputs = append(out.Outputs, pipeline.Output{Path: c.Summary})
		}
		return out, nil
	})
}

// Snap moves every school sharing a building code onto the first valid
// location of that code.
func (r *Runtime) Snap(ctx context.Context, c config.SnapConfig) (runlog.Record, error) {
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return runlog.Record{}, err
	}
	return r.Runner().Run(ctx, StepSnap, []string{c.Input}, func(ctx context.Context) (pipeline.Result, error) {
		l, err := layer.ReadFile(c.Input)
		if err != nil {
			return pipeline.Result{}, err
		}
		rep, err := enrich.SnapByField(l, c.Options)
		if err != nil {
			return pipeline.Result{}, err
		}
		out := pipeline.Result{Counts: map[string]int{
			"rows_before":    rep.RowsBefore,
			"rows_after":     rep.RowsAfter,
			"rows_snapped":   rep.RowsSnapped,
			"groups_snapped": rep.GroupsSnapped,
		}}
		l.Name = layer.NameFromPath(c.Output)
		return out, writeGeoJSON(&out, c.Output, l)
	})
}

// Pollution samples the configured air quality grids at every school and
// writes the dated outputs.
func (r *Runtime) Pollution(ctx context.Context, c config.PollutionConfig) (runlog.Record, error) {
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return runlog.Record{}, err
	}
	return r.Runner().Run(ctx, StepPollution, []string{c.Schools, c.GridBase}, func(ctx context.Context) (pipeline.Result, error) {
		names := make([]string, len(c.Targets))
		for i, t := range c.Targets {
			names[i] = t.Grid
		}
		paths, err := enrich.FindGrids(c.GridBase, names)
		if err != nil {
			return pipeline.Result{}, err
		}
		schools, err := layer.ReadFile(c.Schools)
		if err != nil {
			return pipeline.Result{}, err
		}
		if schools.Len() == 0 {
			return pipeline.Result{}, fmt.Errorf("%s: %w", c.Schools, layer.ErrNoGeometry)
		}
		out := pipeline.Result{Counts: map[string]int{"schools_in": schools.Len()}}
		for _, t := range c.Targets {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			grid, err := enrich.ReadASCIIGridFile(paths[t.Grid])
			if err != nil {
				return out, err
			}
			n, err := enrich.SampleGrid(schools, grid, geo.CRS(c.GridCRS), t.FieldName())
			if err != nil {
				return out, fmt.Errorf("sample %s: %w", t.Grid, err)
			}
			out.Counts["sampled_"+t.FieldName()] = n
			r.Log.Infof("sampled %s -> %s at %d of %d schools", t.Grid, t.FieldName(), n, schools.Len())
		}
		schools.Name = c.OutputName()
		if err := writeGeoJSON(&out, filepath.Join(c.OutputDir, c.OutputName()+".geojson"), schools); err != nil {
			return out, err
		}
		if c.GPKG {
			if err := writeGPKG(ctx, &out, filepath.Join(c.OutputDir, c.OutputName()+".gpkg"), schools); err != nil {
				return out, err
			}
		}
		return out, nil
	})
}

// ReportOptions selects the layer and field of a report.
type ReportOptions struct {
	Input   string
	Field   string
	Bins    int
	HTML    string
	Summary string
}

// Report renders a histogram of one field and a YAML description of the
// layer.
func (r *Runtime) Report(ctx context.Context, o ReportOptions) (runlog.Record, error) {
	if o.Input == "" || o.Field == "" {
		return runlog.Record{}, fmt.Errorf("report: input and field are required")
	}
	return r.Runner().Run(ctx, StepReport, []string{o.Input}, func(ctx context.Context) (pipeline.Result, error) {
		l, err := layer.ReadFile(o.Input)
		if err != nil {
			return pipeline.Result{}, err
		}
		out := pipeline.Result{Counts: map[string]int{"features": l.Len()}}
		if o.HTML != "" {
			html, err := export.HistogramHTML(l, o.Field, o.Bins)
			if err != nil {
				return out, err
			}
			if err := writeFile(o.HTML, []byte(html)); err != nil {
				return out, err
			}
			out.Outputs = append(out.Outputs, pipeline.Output{Path: o.HTML})
		}
		if o.Summary != "" {
			if err := writeYAML(o.Summary, export.Describe(l, nil)); err != nil {
				return out, err
			}
			out.Outputs = append(out.Outputs, pipeline.Output{Path: o.Summary})
		}
		return out, nil
	})
}

func readPair(ctx context.Context, a, b string) (*layer.Layer, *layer.Layer, error) {
	ls, err := readAll(ctx, []string{a, b})
	if err != nil {
		return nil, nil, err
	}
	return ls[0], ls[1], nil
}

// readAll reads the layers concurrently. Empty paths yield nil layers.
func readAll(ctx context.Context, paths []string) ([]*layer.Layer, error) {
	out := make([]*layer.Layer, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		if p == "" {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			l, err := layer.ReadFile(p)
			if err != nil {
				return err
			}
			out[i] = l
			return nil
		})
	}
	return out, g.Wait()
}

func writeGeoJSON(res *pipeline.Result, path string, l *layer.Layer) error {
	if err := layer.WriteFile(path, l); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	res.Outputs = append(res.Outputs, pipeline.Output{Layer: l.Name, Path: path})
	return nil
}

func writeGPKG(ctx context.Context, res *pipeline.Result, path string, l *layer.Layer) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	renames, err := gpkg.WriteFile(ctx, path, l.Name, l)
	if err != nil {
		return err
	}
	if res.Counts != nil {
		res.Counts["fields_renamed"] = len(renames)
	}
	res.Outputs = append(res.Outputs, pipeline.Output{Path: path})
	return nil
}

func writeYAML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteSummaryYAML(f, v); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
