package enrich

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/kilianp07/ghsdash/core/geo"
	"github.com/kilianp07/ghsdash/core/layer"
)

// SnapOptions names the grouping and coordinate fields.
type SnapOptions struct {
	GroupField string `json:"group_field"`
	LatField   string `json:"lat_field"`
	LngField   string `json:"lng_field"`
}

// SetDefaults fills zero values with the master schools field names.
func (o *SnapOptions) SetDefaults() {
	if o.GroupField == "" {
		o.GroupField = "Bldg_Code"
	}
	if o.LatField == "" {
		o.LatField = "lat"
	}
	if o.LngField == "" {
		o.LngField = "lng"
	}
}

// SnapReport counts what SnapByField changed.
type SnapReport struct {
	RowsBefore    int `json:"rows_before"`
	RowsAfter     int `json:"rows_after"`
	RowsSnapped   int `json:"rows_snapped"`
	GroupsSnapped int `json:"groups_snapped"`
}

// SnapByField moves every point sharing a group code onto the location of
// the first valid point of that group, updating the lat/lng attributes to
// match. Rows are never removed. Blank codes, and groups without a valid
// point, are left where they are. The layer is modified in place.
func SnapByField(l *layer.Layer, opts SnapOptions) (SnapReport, error) {
	opts.SetDefaults()
	rep := SnapReport{RowsBefore: l.Len()}
	if err := l.RequireFields(opts.GroupField, opts.LatField, opts.LngField); err != nil {
		return rep, err
	}

	codes := make([]string, l.Len())
	targets := map[string]orb.Point{}
	for i, f := range l.Features {
		code, ok := normalizeCode(f.Properties[opts.GroupField])
		if !ok {
			continue
		}
		f.Properties[opts.GroupField] = code
		codes[i] = code
		if code == "" {
			continue
		}
		if _, seen := targets[code]; seen {
			continue
		}
		if p, valid := f.Geometry.(orb.Point); valid && !geo.IsEmpty(p) {
			targets[code] = p
		}
	}

	for i, f := range l.Features {
		if t, ok := targets[codes[i]]; ok && codes[i] != "" {
			f.Geometry = t
			f.Properties[opts.LngField] = t[0]
			f.Properties[opts.LatField] = t[1]
			rep.RowsSnapped++
		}
		f.Properties[opts.LatField] = numericOrNil(f.Properties[opts.LatField])
		f.Properties[opts.LngField] = numericOrNil(f.Properties[opts.LngField])
	}
	rep.GroupsSnapped = len(targets)
	rep.RowsAfter = l.Len()
	return rep, nil
}

// normalizeCode trims the code. Nil reports false so the value stays null.
func normalizeCode(v any) (string, bool) {
	switch c := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(c), true
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64), true
	}
	return strings.TrimSpace(fmt.Sprint(v)), true
}

func numericOrNil(v any) any {
	if f, ok := layer.Float(v); ok {
		return f
	}
	return nil
}
