// Package export writes layer attribute tables, summaries and charts.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/ghsdash/core/geo"
	"github.com/kilianp07/ghsdash/core/layer"
)

// Coordinate columns added for point layers.
const (
	LonColumn = "lon"
	LatColumn = "lat"
)

func columns(l *layer.Layer, fields []string) ([]string, bool) {
	if len(fields) == 0 {
		fields = l.Fields()
	}
	hasPoints := false
	for _, f := range l.Features {
		if p, ok := f.Geometry.(orb.Point); ok && !geo.IsEmpty(p) {
			hasPoints = true
			break
		}
	}
	return fields, hasPoints
}

// WriteJSON writes the attribute table to w as a JSON array of objects.
// Point geometries are added as lon/lat members.
func WriteJSON(w io.Writer, l *layer.Layer, fields []string) error {
	fields, points := columns(l, fields)
	rows := make([]map[string]any, 0, l.Len())
	for _, f := range l.Features {
		row := make(map[string]any, len(fields)+2)
		for _, k := range fields {
			row[k] = f.Properties[k]
		}
		if points {
			row[LonColumn], row[LatColumn] = nil, nil
			if p, ok := f.Geometry.(orb.Point); ok && !geo.IsEmpty(p) {
				row[LonColumn], row[LatColumn] = p[0], p[1]
			}
		}
		rows = append(rows, row)
	}
	enc := json.NewEncoder(w)
	return enc.Encode(rows)
}

// WriteCSV writes the attribute table to w in CSV format. Null values are
// written as empty cells.
func WriteCSV(w io.Writer, l *layer.Layer, fields []string) error {
	fields, points := columns(l, fields)
	header := append([]string{}, fields...)
	if points {
		header = append(header, LonColumn, LatColumn)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, f := range l.Features {
		rec := make([]string, 0, len(header))
		for _, k := range fields {
			rec = append(rec, cell(f.Properties[k]))
		}
		if points {
			if p, ok := f.Geometry.(orb.Point); ok && !geo.IsEmpty(p) {
				rec = append(rec, cell(p[0]), cell(p[1]))
			} else {
				rec = append(rec, "", "")
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}

// WriteSummaryYAML encodes v as YAML with two space indentation.
func WriteSummaryYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
