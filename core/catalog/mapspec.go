package catalog

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Initial view centered on New York City.
const (
	DefaultLatitude  = 40.6976701
	DefaultLongitude = -73.9277866
	DefaultZoom      = 9
)

// ViewState is the initial camera of the map.
type ViewState struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Zoom      float64 `json:"zoom"`
}

// MapLayer describes a deck.gl GeoJsonLayer.
type MapLayer struct {
	ID                 string  `json:"id"`
	Type               string  `json:"@@type"`
	Data               string  `json:"data"`
	GetFillColor       Color   `json:"getFillColor"`
	GetLineColor       Color   `json:"getLineColor"`
	GetLineWidth       float64 `json:"getLineWidth"`
	LineWidthUnits     string  `json:"lineWidthUnits"`
	LineWidthMinPixels float64 `json:"lineWidthMinPixels"`
	LineWidthMaxPixels float64 `json:"lineWidthMaxPixels"`
	PointRadiusUnits   string  `json:"pointRadiusUnits,omitempty"`
	GetPointRadius     float64 `json:"getPointRadius,omitempty"`
	Stroked            bool    `json:"stroked"`
	Filled             bool    `json:"filled"`
	Extruded           bool    `json:"extruded"`
	Pickable           bool    `json:"pickable"`
	AutoHighlight      bool    `json:"autoHighlight"`
}

// Tooltip is the hover tooltip of the map.
type Tooltip struct {
	HTML  string            `json:"html"`
	Style map[string]string `json:"style"`
}

// MapSpec is everything a front end needs to draw the map.
type MapSpec struct {
	InitialViewState ViewState  `json:"initialViewState"`
	MapStyle         *string    `json:"mapStyle"`
	Layers           []MapLayer `json:"layers"`
	Tooltip          Tooltip    `json:"tooltip"`
}

// LegendEntry is one row of the map legend.
type LegendEntry struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Color   string `json:"color"`
	Kind    Kind   `json:"kind"`
	Checked bool   `json:"checked"`
}

// LayerDataPath is the API route serving the features of a layer.
func LayerDataPath(name string, showNonDAC bool) string {
	return "/api/layers/" + url.PathEscape(name) + "?show_non_dac=" + strconv.FormatBool(showNonDAC)
}

// resolve returns the specs named by enabled, or the specs enabled by
// configuration when enabled is nil.
func (c *Catalog) resolve(enabled []string) ([]LayerSpec, error) {
	if enabled == nil {
		var out []LayerSpec
		for _, s := range c.specs {
			if s.Enabled {
				out = append(out, s)
			}
		}
		return out, nil
	}
	out := make([]LayerSpec, 0, len(enabled))
	for _, name := range enabled {
		s, ok := c.Spec(name)
		if !ok {
			return nil, fmt.Errorf("layer %q: %w", name, ErrNotFound)
		}
		out = append(out, s)
	}
	return out, nil
}

// MapSpec builds the map description for the enabled layers. A nil enabled
// list selects the layers enabled by configuration.
func (c *Catalog) MapSpec(enabled []string, showNonDAC bool) (MapSpec, error) {
	specs, err := c.resolve(enabled)
	if err != nil {
		return MapSpec{}, err
	}
	m := MapSpec{
		InitialViewState: ViewState{Latitude: DefaultLatitude, Longitude: DefaultLongitude, Zoom: DefaultZoom},
		Layers:           make([]MapLayer, 0, len(specs)),
	}
	var fields []string
	seen := map[string]bool{}
	for _, s := range specs {
		m.Layers = append(m.Layers, mapLayer(s, showNonDAC))
		for _, f := range s.Tooltip {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	m.Tooltip = Tooltip{HTML: TooltipHTML(fields), Style: tooltipStyle()}
	return m, nil
}

func mapLayer(s LayerSpec, showNonDAC bool) MapLayer {
	ml := MapLayer{
		ID:                 s.Name,
		Type:               "GeoJsonLayer",
		Data:               LayerDataPath(s.Name, showNonDAC),
		GetFillColor:       s.FillColor,
		GetLineColor:       s.LineColor,
		GetLineWidth:       2,
		LineWidthUnits:     "pixels",
		LineWidthMinPixels: 1,
		LineWidthMaxPixels: 2.5,
		Stroked:            true,
		Filled:             true,
		Pickable:           true,
		AutoHighlight:      true,
	}
	if s.Kind == KindPoint {
		ml.PointRadiusUnits = "pixels"
		ml.GetPointRadius = s.PointRadius
	}
	return ml
}

func tooltipStyle() map[string]string {
	return map[string]string{
		"backgroundColor": "#fff",
		"color":           "#222",
		"fontSize":        "12px",
		"boxShadow":       "0 2px 8px rgba(0,0,0,0.15)",
		"borderRadius":    "6px",
		"padding":         "4px",
	}
}

// TooltipHTML renders a Field/Value table with alternating row backgrounds.
// Values are deck.gl {field} placeholders.
func TooltipHTML(fields []string) string {
	var b strings.Builder
	b.WriteString("<table style='border-collapse:collapse; background:#fff; color:#222;'>")
	b.WriteString("<tr>")
	b.WriteString("<th style='text-align:left; border:1px solid #bbb; background:#fff;'>Field</th>")
	b.WriteString("<th style='text-align:left; border:1px solid #bbb; background:#fff;'>Value</th>")
	b.WriteString("</tr>")
	for i, f := range fields {
		bg := "#fff"
		if i%2 == 0 {
			bg = "#f0f0f0"
		}
		fmt.Fprintf(&b, "<tr style='background:%s;'>", bg)
		fmt.Fprintf(&b, "<td style='border:1px solid #bbb; padding:2px 6px;'>%s</td>", f)
		fmt.Fprintf(&b, "<td style='border:1px solid #bbb; padding:2px 6px;'>{%s}</td>", f)
		b.WriteString("</tr>")
	}
	b.WriteString("</table>")
	return b.String()
}

// Legend lists every configured layer with its swatch color. Checked
// reflects enabled, or the configured state when enabled is nil.
func (c *Catalog) Legend(enabled []string) ([]LegendEntry, error) {
	on := map[string]bool{}
	active, err := c.resolve(enabled)
	if err != nil {
		return nil, err
	}
	for _, s := range active {
		on[s.Name] = true
	}
	out := make([]LegendEntry, 0, len(c.specs))
	for _, s := range c.specs {
		out = append(out, LegendEntry{
			Name:    s.Name,
			Label:   s.Label,
			Color:   s.FillColor.CSS(0.75),
			Kind:    s.Kind,
			Checked: on[s.Name],
		})
	}
	return out, nil
}
