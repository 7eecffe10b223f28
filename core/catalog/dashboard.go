package catalog

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb/geojson"

	"github.com/kilianp07/ghsdash/core/layer"
)

// FilterOptions controls which features a layer view contains.
type FilterOptions struct {
	ShowNonDAC bool
}

// Filter returns a view of the layer. When ShowNonDAC is false and the layer
// has a DAC field, only features designated as DAC are kept. Features are
// shared with the catalog and must not be modified.
func (c *Catalog) Filter(name string, opts FilterOptions) (*layer.Layer, error) {
	l, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	s, _ := c.Spec(name)
	if opts.ShowNonDAC || s.DACField == "" {
		return l, nil
	}
	out := &layer.Layer{Name: l.Name, CRS: l.CRS, Features: make([]*geojson.Feature, 0, l.Len())}
	for _, f := range l.Features {
		if layer.Bool(f.Properties[s.DACField]) {
			out.Features = append(out.Features, f)
		}
	}
	return out, nil
}

// Row is one attribute of a selected feature.
type Row struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Feature returns the attributes of a feature without its geometry. Tooltip
// fields come first in their configured order, then the remaining fields
// sorted by name.
func (c *Catalog) Feature(name, id string) ([]Row, error) {
	l, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	s, _ := c.Spec(name)
	for i, f := range l.Features {
		if layer.FeatureID(f, s.IDField, i) != id {
			continue
		}
		return featureRows(f, s.Tooltip), nil
	}
	return nil, fmt.Errorf("feature %q in layer %q: %w", id, name, ErrNotFound)
}

func featureRows(f *geojson.Feature, first []string) []Row {
	rows := make([]Row, 0, len(f.Properties))
	used := map[string]bool{"geometry": true}
	for _, k := range first {
		if v, ok := f.Properties[k]; ok && !used[k] {
			rows = append(rows, Row{Field: k, Value: v})
			used[k] = true
		}
	}
	rest := make([]string, 0, len(f.Properties))
	for k := range f.Properties {
		if !used[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		rows = append(rows, Row{Field: k, Value: f.Properties[k]})
	}
	return rows
}

// Ranked is a feature ordered by a numeric attribute.
type Ranked struct {
	Rank       int            `json:"rank"`
	ID         string         `json:"id"`
	Value      float64        `json:"value"`
	Properties map[string]any `json:"properties"`
}

// Top orders features by a numeric attribute already present in the data
// and returns the first n. Features lacking a numeric value are skipped and
// ties keep file order.
func (c *Catalog) Top(name, field string, n int, descending bool) ([]Ranked, error) {
	if field == "" {
		return nil, fmt.Errorf("field is required: %w", ErrInvalidArgument)
	}
	if n <= 0 {
		return nil, fmt.Errorf("n must be positive: %w", ErrInvalidArgument)
	}
	l, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	if !l.HasField(field) {
		return nil, fmt.Errorf("field %q in layer %q: %w", field, name, ErrNotFound)
	}
	s, _ := c.Spec(name)
	out := make([]Ranked, 0, l.Len())
	for i, f := range l.Features {
		// Float rejects NaN and infinities, which have no order.
		v, ok := layer.Float(f.Properties[field])
		if !ok {
			continue
		}
		out = append(out, Ranked{ID: layer.FeatureID(f, s.IDField, i), Value: v, Properties: f.Properties})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if descending {
			return out[i].Value > out[j].Value
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > n {
		out = out[:n]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}
