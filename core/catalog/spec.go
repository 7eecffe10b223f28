package catalog

import (
	"errors"
	"fmt"
)

// Kind is the geometry family of a layer.
type Kind string

const (
	KindPolygon Kind = "polygon"
	KindPoint   Kind = "point"
)

// Color is an RGBA color with 0-255 channels.
type Color []int

// LayerSpec configures one map layer.
type LayerSpec struct {
	Name      string   `json:"name"`
	Path      string   `json:"path"`
	Kind      Kind     `json:"kind"`
	Label     string   `json:"label"`
	FillColor Color    `json:"fill_color"`
	LineColor Color    `json:"line_color"`
	IDField   string   `json:"id_field"`
	Tooltip   []string `json:"tooltip"`
	Enabled   bool     `json:"enabled"`
	// DACField names the boolean attribute used by the non-DAC toggle.
	// Layers without it are never filtered.
	DACField string `json:"dac_field"`
	// PointRadius is the marker radius in pixels for point layers.
	PointRadius float64 `json:"point_radius"`
}

// SetDefaults fills unset style fields.
func (s *LayerSpec) SetDefaults() {
	if s.Kind == "" {
		s.Kind = KindPolygon
	}
	if s.Label == "" {
		s.Label = s.Name
	}
	if len(s.FillColor) == 0 {
		s.FillColor = Color{100, 200, 250, 75}
	}
	if len(s.LineColor) == 0 {
		s.LineColor = Color{150, 150, 150, 50}
	}
	if s.Kind == KindPoint && s.PointRadius == 0 {
		s.PointRadius = 4
	}
}

// Validate checks that the spec can be loaded and styled.
func (s LayerSpec) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if s.Path == "" {
		errs = append(errs, fmt.Errorf("layer %q: path is required", s.Name))
	}
	if s.Kind != KindPolygon && s.Kind != KindPoint {
		errs = append(errs, fmt.Errorf("layer %q: unknown kind %q", s.Name, s.Kind))
	}
	if err := s.FillColor.validate(); err != nil {
		errs = append(errs, fmt.Errorf("layer %q: fill_color: %w", s.Name, err))
	}
	if err := s.LineColor.validate(); err != nil {
		errs = append(errs, fmt.Errorf("layer %q: line_color: %w", s.Name, err))
	}
	return errors.Join(errs...)
}

func (c Color) validate() error {
	if len(c) != 4 {
		return fmt.Errorf("want 4 channels, got %d", len(c))
	}
	for _, v := range c {
		if v < 0 || v > 255 {
			return fmt.Errorf("channel %d out of range", v)
		}
	}
	return nil
}

// CSS renders the color as a css rgba() value with the given opacity.
func (c Color) CSS(opacity float64) string {
	if len(c) < 3 {
		return ""
	}
	return fmt.Sprintf("rgba(%d,%d,%d,%g)", c[0], c[1], c[2], opacity)
}

// Config lists the layers of the catalog.
type Config struct {
	Layers []LayerSpec `json:"layers"`
	// Concurrency bounds parallel file reads; zero means one per layer.
	Concurrency int `json:"concurrency"`
}

// DefaultLayers returns the DAC polygon layer the dashboard starts with.
func DefaultLayers() []LayerSpec {
	return []LayerSpec{{
		Name:     "dac",
		Path:     "data/processed_data/dac_nyc_full.geojson",
		Kind:     KindPolygon,
		Label:    "DAC Polygon",
		IDField:  "geoid",
		DACField: "dac_designation",
		Enabled:  true,
		Tooltip: []string{
			"geoid",
			"dac_designation",
			"combined_score",
			"percentile_rank_combined_nyc",
		},
	}}
}

// SetDefaults applies the default layer list and per layer defaults.
func (c *Config) SetDefaults() {
	if len(c.Layers) == 0 {
		c.Layers = DefaultLayers()
	}
	for i := range c.Layers {
		c.Layers[i].SetDefaults()
	}
}

// Validate checks every layer and rejects duplicate names.
func (c Config) Validate() error {
	seen := map[string]bool{}
	var errs []error
	for _, s := range c.Layers {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("duplicate layer %q", s.Name))
		}
		seen[s.Name] = true
	}
	if c.Concurrency < 0 {
		errs = append(errs, errors.New("concurrency must not be negative"))
	}
	return errors.Join(errs...)
}
