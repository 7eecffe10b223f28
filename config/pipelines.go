package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kilianp07/ghsdash/core/enrich"
	"github.com/kilianp07/ghsdash/core/geo"
)

const (
	rawDir       = "data/raw"
	processedDir = "data/processed_data"
	schoolsPath  = rawDir + "/master_schools.geojson"
)

// StormwaterConfig holds the inputs and outputs of the stormwater join.
type StormwaterConfig struct {
	Schools string                   `json:"schools"`
	Storm   string                   `json:"storm"`
	Output  string                   `json:"output"`
	Buffers string                   `json:"buffers"`
	GPKG    string                   `json:"gpkg"`
	Options enrich.StormwaterOptions `json:"options"`
}

// SetDefaults applies default values.
func (c *StormwaterConfig) SetDefaults() {
	if c.Schools == "" {
		c.Schools = schoolsPath
	}
	if c.Storm == "" {
		c.Storm = rawDir + "/NYC_Stormwater_Flood_Current_Sea_Level.geojson"
	}
	if c.Output == "" {
		c.Output = processedDir + "/master_schools_stormwater_joined.geojson"
	}
	if c.Buffers == "" {
		c.Buffers = processedDir + "/master_schools_300ft_buffers.geojson"
	}
	c.Options.SetDefaults()
}

// Validate checks required paths and options.
func (c StormwaterConfig) Validate() error {
	if c.Schools == "" || c.Storm == "" || c.Output == "" {
		return errors.New("stormwater: schools, storm and output are required")
	}
	if err := c.Options.Validate(); err != nil {
		return fmt.Errorf("stormwater: %w", err)
	}
	return nil
}

// HazardsConfig holds the inputs and outputs of the hazard join.
type HazardsConfig struct {
	Schools        string               `json:"schools"`
	EvacZones      string               `json:"evac_zones"`
	HeatIndex      string               `json:"heat_index"`
	EvacCenters    string               `json:"evac_centers"`
	CoolingCenters string               `json:"cooling_centers"`
	Output         string               `json:"output"`
	GPKG           string               `json:"gpkg"`
	Summary        string               `json:"summary"`
	Options        enrich.HazardOptions `json:"options"`
}

// SetDefaults applies default values.
func (c *HazardsConfig) SetDefaults() {
	if c.Schools == "" {
		c.Schools = schoolsPath
	}
	if c.EvacZones == "" {
		c.EvacZones = rawDir + "/hurricane/EvacZones.geojson"
	}
	if c.HeatIndex == "" {
		c.HeatIndex = rawDir + "/Heat_Index/NTAHeatData.geojson"
	}
	if c.EvacCenters == "" {
		c.EvacCenters = rawDir + "/hurricane/EvacCenters.geojson"
	}
	if c.CoolingCenters == "" {
		c.CoolingCenters = rawDir + "/Cooling_Centers.geojson"
	}
	if c.Output == "" {
		c.Output = processedDir + "/master_schools_with_hazard_metrics.geojson"
	}
	if c.Summary == "" {
		c.Summary = processedDir + "/master_schools_with_hazard_metrics.summary.yaml"
	}
	c.Options.SetDefaults()
}

// Validate checks required paths.
func (c HazardsConfig) Validate() error {
	if c.Schools == "" || c.Output == "" {
		return errors.New("hazards: schools and output are required")
	}
	return nil
}

// SnapConfig holds the input and output of the building code snap.
type SnapConfig struct {
	Input   string             `json:"input"`
	Output  string             `json:"output"`
	Options enrich.SnapOptions `json:"options"`
}

// SetDefaults applies default values.
func (c *SnapConfig) SetDefaults() {
	if c.Input == "" {
		c.Input = schoolsPath
	}
	if c.Output == "" {
		c.Output = processedDir + "/master_schools_snapBldg.geojson"
	}
	c.Options.SetDefaults()
}

// Validate checks required paths.
func (c SnapConfig) Validate() error {
	if c.Input == "" || c.Output == "" {
		return errors.New("snap: input and output are required")
	}
	if filepath.Clean(c.Input) == filepath.Clean(c.Output) {
		return errors.New("snap: output must differ from input")
	}
	return nil
}

// PollutionConfig holds the inputs and outputs of the air pollution
// sampling step.
type PollutionConfig struct {
	Schools    string              `json:"schools"`
	GridBase   string              `json:"grid_base"`
	GridCRS    int                 `json:"grid_crs"`
	Targets    []enrich.GridTarget `json:"targets"`
	OutputDir  string              `json:"output_dir"`
	DateSuffix string              `json:"date_suffix"`
	GPKG       bool                `json:"gpkg"`
}

// SetDefaults applies default values. The date suffix defaults to today as
// MMDDYY.
func (c *PollutionConfig) SetDefaults() {
	if c.Schools == "" {
		c.Schools = schoolsPath
	}
	if c.GridBase == "" {
		c.GridBase = rawDir + "/nyccas"
	}
	if c.GridCRS == 0 {
		c.GridCRS = int(geo.NYLongIsland)
	}
	if len(c.Targets) == 0 {
		c.Targets = enrich.DefaultGridTargets()
	}
	if c.OutputDir == "" {
		c.OutputDir = processedDir
	}
	if c.DateSuffix == "" {
		c.DateSuffix = time.Now().Format("010206")
	}
}

// Validate checks the grid CRS and targets.
func (c PollutionConfig) Validate() error {
	if _, err := geo.ParseCRS(fmt.Sprintf("EPSG:%d", c.GridCRS)); err != nil {
		return fmt.Errorf("pollution.grid_crs: %w", err)
	}
	seen := map[string]bool{}
	for _, t := range c.Targets {
		if t.Grid == "" || t.Pollutant == "" || t.Year == "" {
			return errors.New("pollution.targets: grid, pollutant and year are required")
		}
		if seen[t.FieldName()] {
			return fmt.Errorf("pollution.targets: duplicate field %s", t.FieldName())
		}
		seen[t.FieldName()] = true
	}
	return nil
}

// OutputName is the dated base name of the pollution outputs.
func (c PollutionConfig) OutputName() string {
	return "master_schools_" + c.DateSuffix
}
