package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ghsdash/app"
	"github.com/kilianp07/ghsdash/core/pipeline"
	"github.com/kilianp07/ghsdash/core/runlog"
)

var (
	stormFlags struct {
		schools, storm, output, buffers, gpkg string
		bufferFeet                            float64
	}
	hazardFlags struct {
		schools, zones, heat, evac, cooling, output, gpkg, summary string
	}
	snapFlags struct {
		input, output, group string
	}
	pollutionFlags struct {
		schools, grids, outDir, suffix string
		gpkg                           bool
	}
	reportFlags app.ReportOptions
)

var stormwaterCmd = &cobra.Command{
	Use:   "stormwater",
	Short: "Join stormwater flood risk onto school points",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(nil, func(ctx context.Context, rt *app.Runtime) error {
			c := rt.Config.Stormwater
			setIf(&c.Schools, stormFlags.schools)
			setIf(&c.Storm, stormFlags.storm)
			setIf(&c.Output, stormFlags.output)
			setIf(&c.Buffers, stormFlags.buffers)
			setIf(&c.GPKG, stormFlags.gpkg)
			if stormFlags.bufferFeet > 0 {
				c.Options.BufferFeet = stormFlags.bufferFeet
			}
			rec, err := rt.Stormwater(ctx, c)
			return printRecord(cmd, rec, err)
		})
	},
}

var hazardsCmd = &cobra.Command{
	Use:   "hazards",
	Short: "Join hurricane, heat and distance hazard metrics onto school points",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(nil, func(ctx context.Context, rt *app.Runtime) error {
			c := rt.Config.Hazards
			setIf(&c.Schools, hazardFlags.schools)
			setIf(&c.EvacZones, hazardFlags.zones)
			setIf(&c.HeatIndex, hazardFlags.heat)
			setIf(&c.EvacCenters, hazardFlags.evac)
			setIf(&c.CoolingCenters, hazardFlags.cooling)
			setIf(&c.Output, hazardFlags.output)
			setIf(&c.GPKG, hazardFlags.gpkg)
			setIf(&c.Summary, hazardFlags.summary)
			rec, err := rt.Hazards(ctx, c)
			return printRecord(cmd, rec, err)
		})
	},
}

var snapCmd = &cobra.Command{
	Use:   "snap",
	Short: "Snap school points sharing a building code to one location",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(nil, func(ctx context.Context, rt *app.Runtime) error {
			c := rt.Config.Snap
			setIf(&c.Input, snapFlags.input)
			setIf(&c.Output, snapFlags.output)
			setIf(&c.Options.GroupField, snapFlags.group)
			rec, err := rt.Snap(ctx, c)
			return printRecord(cmd, rec, err)
		})
	},
}

var pollutionCmd = &cobra.Command{
	Use:   "pollution",
	Short: "Sample air pollution grids at school points",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(nil, func(ctx context.Context, rt *app.Runtime) error {
			c := rt.Config.Pollution
			setIf(&c.Schools, pollutionFlags.schools)
			setIf(&c.GridBase, pollutionFlags.grids)
			setIf(&c.OutputDir, pollutionFlags.outDir)
			setIf(&c.DateSuffix, pollutionFlags.suffix)
			if pollutionFlags.gpkg {
				c.GPKG = true
			}
			rec, err := rt.Pollution(ctx, c)
			return printRecord(cmd, rec, err)
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a histogram and summary of a layer field",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(nil, func(ctx context.Context, rt *app.Runtime) error {
			rec, err := rt.Report(ctx, reportFlags)
			return printRecord(cmd, rec, err)
		})
	},
}

func init() {
	f := stormwaterCmd.Flags()
	f.StringVar(&stormFlags.schools, "schools", "", "school points GeoJSON")
	f.StringVar(&stormFlags.storm, "storm", "", "stormwater flood polygons GeoJSON")
	f.StringVar(&stormFlags.output, "output", "", "joined points GeoJSON")
	f.StringVar(&stormFlags.buffers, "buffers", "", "QA buffers GeoJSON")
	f.StringVar(&stormFlags.gpkg, "gpkg", "", "optional GeoPackage output")
	f.Float64Var(&stormFlags.bufferFeet, "buffer-feet", 0, "buffer radius in feet")

	f = hazardsCmd.Flags()
	f.StringVar(&hazardFlags.schools, "schools", "", "school points GeoJSON")
	f.StringVar(&hazardFlags.zones, "evac-zones", "", "hurricane evacuation zones GeoJSON")
	f.StringVar(&hazardFlags.heat, "heat-index", "", "heat vulnerability polygons GeoJSON")
	f.StringVar(&hazardFlags.evac, "evac-centers", "", "evacuation centers GeoJSON")
	f.StringVar(&hazardFlags.cooling, "cooling-centers", "", "cooling centers GeoJSON")
	f.StringVar(&hazardFlags.output, "output", "", "joined points GeoJSON")
	f.StringVar(&hazardFlags.gpkg, "gpkg", "", "optional GeoPackage output")
	f.StringVar(&hazardFlags.summary, "summary", "", "distance summary YAML")

	f = snapCmd.Flags()
	f.StringVar(&snapFlags.input, "input", "", "school points GeoJSON")
	f.StringVar(&snapFlags.output, "output", "", "snapped points GeoJSON")
	f.StringVar(&snapFlags.group, "group-field", "", "grouping attribute")

	f = pollutionCmd.Flags()
	f.StringVar(&pollutionFlags.schools, "schools", "", "school points GeoJSON")
	f.StringVar(&pollutionFlags.grids, "grids", "", "folder searched for the ASCII grids")
	f.StringVar(&pollutionFlags.outDir, "output-dir", "", "output folder")
	f.StringVar(&pollutionFlags.suffix, "date-suffix", "", "output date suffix (MMDDYY)")
	f.BoolVar(&pollutionFlags.gpkg, "gpkg", false, "also write a GeoPackage")

	f = reportCmd.Flags()
	f.StringVar(&reportFlags.Input, "input", "", "layer GeoJSON")
	f.StringVar(&reportFlags.Field, "field", "", "attribute to chart")
	f.IntVar(&reportFlags.Bins, "bins", 0, "histogram buckets for numeric fields")
	f.StringVar(&reportFlags.HTML, "html", "report.html", "chart output")
	f.StringVar(&reportFlags.Summary, "summary", "", "layer summary YAML")
	_ = reportCmd.MarkFlagRequired("input")
	_ = reportCmd.MarkFlagRequired("field")

	rootCmd.AddCommand(stormwaterCmd, hazardsCmd, snapCmd, pollutionCmd, reportCmd)
}

func printRecord(cmd *cobra.Command, rec runlog.Record, err error) error {
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "run %s: %s finished in %s\n", rec.ID, rec.Step, pipeline.FormatRuntime(rec.Duration()))
	for _, k := range sortedKeys(rec.Counts) {
		_, _ = fmt.Fprintf(out, "  %-28s %d\n", k, rec.Counts[k])
	}
	for _, o := range rec.Outputs {
		_, _ = fmt.Fprintf(out, "  wrote %s\n", o)
	}
	return nil
}
