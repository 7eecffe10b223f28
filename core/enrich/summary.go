package enrich

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds descriptive statistics of a numeric field.
type Summary struct {
	Count int     `json:"count" yaml:"count"`
	Mean  float64 `json:"mean" yaml:"mean"`
	Std   float64 `json:"std" yaml:"std"`
	Min   float64 `json:"min" yaml:"min"`
	P25   float64 `json:"p25" yaml:"p25"`
	P50   float64 `json:"p50" yaml:"p50"`
	P75   float64 `json:"p75" yaml:"p75"`
	Max   float64 `json:"max" yaml:"max"`
}

// Summarize computes count, mean, sample standard deviation, extremes and
// quartiles. NaN values are ignored.
func Summarize(values []float64) Summary {
	xs := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			xs = append(xs, v)
		}
	}
	if len(xs) == 0 {
		return Summary{}
	}
	sort.Float64s(xs)
	s := Summary{
		Count: len(xs),
		Mean:  stat.Mean(xs, nil),
		Min:   floats.Min(xs),
		Max:   floats.Max(xs),
		P25:   stat.Quantile(0.25, stat.Empirical, xs, nil),
		P50:   stat.Quantile(0.5, stat.Empirical, xs, nil),
		P75:   stat.Quantile(0.75, stat.Empirical, xs, nil),
	}
	if len(xs) > 1 {
		s.Std = stat.StdDev(xs, nil)
	}
	return s
}
