package export

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/ghsdash/core/enrich"
	"github.com/kilianp07/ghsdash/core/layer"
)

// DefaultBins is the histogram bucket count for numeric fields.
const DefaultBins = 10

// ErrNoValues is returned when a field carries no value to chart.
var ErrNoValues = errors.New("field has no values")

// Bucket is one bar of a histogram.
type Bucket struct {
	Label string `json:"label" yaml:"label"`
	Count int    `json:"count" yaml:"count"`
}

// LayerReport describes a layer: feature count, numeric summaries and
// category counts per field.
type LayerReport struct {
	Layer      string                    `yaml:"layer"`
	Features   int                       `yaml:"features"`
	Numeric    map[string]enrich.Summary `yaml:"numeric,omitempty"`
	Categories map[string][]Bucket       `yaml:"categories,omitempty"`
}

// Describe builds a LayerReport for fields, defaulting to every field.
// Fields whose non-null values are all numeric are summarized; others are
// counted by value.
func Describe(l *layer.Layer, fields []string) LayerReport {
	if len(fields) == 0 {
		fields = l.Fields()
	}
	rep := LayerReport{Layer: l.Name, Features: l.Len()}
	for _, f := range fields {
		if nums, ok := numericValues(l, f); ok {
			if rep.Numeric == nil {
				rep.Numeric = map[string]enrich.Summary{}
			}
			rep.Numeric[f] = enrich.Summarize(nums)
			continue
		}
		if rep.Categories == nil {
			rep.Categories = map[string][]Bucket{}
		}
		rep.Categories[f] = categoryCounts(l, f)
	}
	return rep
}

// Histogram buckets field: numeric fields into bins equal-width buckets,
// other fields by distinct value ordered by descending count.
func Histogram(l *layer.Layer, field string, bins int) ([]Bucket, error) {
	if bins <= 0 {
		bins = DefaultBins
	}
	if nums, ok := numericValues(l, field); ok {
		if len(nums) == 0 {
			return nil, fmt.Errorf("%s: %w", field, ErrNoValues)
		}
		return numericBuckets(nums, bins), nil
	}
	b := categoryCounts(l, field)
	if len(b) == 0 {
		return nil, fmt.Errorf("%s: %w", field, ErrNoValues)
	}
	return b, nil
}

// HistogramHTML renders the histogram of field as a standalone HTML bar
// chart.
func HistogramHTML(l *layer.Layer, field string, bins int) (string, error) {
	buckets, err := Histogram(l, field, bins)
	if err != nil {
		return "", err
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: l.Name, Subtitle: field}),
		charts.WithXAxisOpts(opts.XAxis{Name: field}),
		charts.WithYAxisOpts(opts.YAxis{Name: "features"}),
	)
	x := make([]string, 0, len(buckets))
	y := make([]opts.BarData, 0, len(buckets))
	for _, b := range buckets {
		x = append(x, b.Label)
		y = append(y, opts.BarData{Value: b.Count})
	}
	bar.SetXAxis(x).AddSeries(field, y)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		return "", fmt.Errorf("failed to render chart: %w", err)
	}
	return buf.String(), nil
}

// numericValues reports false when any non-null value is not numeric.
func numericValues(l *layer.Layer, field string) ([]float64, bool) {
	var out []float64
	for _, f := range l.Features {
		v := f.Properties[field]
		switch v.(type) {
		case nil:
			continue
		case float64, float32, int, int64, int32:
		default:
			return nil, false
		}
		n, _ := layer.Float(v)
		if !math.IsNaN(n) {
			out = append(out, n)
		}
	}
	return out, true
}

func numericBuckets(nums []float64, bins int) []Bucket {
	lo, hi := nums[0], nums[0]
	for _, v := range nums {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		return []Bucket{{Label: formatNum(lo), Count: len(nums)}}
	}
	width := (hi - lo) / float64(bins)
	out := make([]Bucket, bins)
	for i := range out {
		out[i].Label = formatNum(lo+float64(i)*width) + " - " + formatNum(lo+float64(i+1)*width)
	}
	for _, v := range nums {
		i := int((v - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		out[i].Count++
	}
	return out
}

func categoryCounts(l *layer.Layer, field string) []Bucket {
	counts := map[string]int{}
	for _, f := range l.Features {
		v, ok := f.Properties[field]
		if !ok || v == nil {
			continue
		}
		counts[cell(v)]++
	}
	out := make([]Bucket, 0, len(counts))
	for k, c := range counts {
		out = append(out, Bucket{Label: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}
