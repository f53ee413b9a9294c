package scan

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the valid readings of one sample.
type Summary struct {
	Valid          int     `json:"valid"`
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	Mean           float64 `json:"mean"`
	StdDev         float64 `json:"std_dev"`
	Median         float64 `json:"median"`
	NearestBearing float64 `json:"nearest_bearing"` // radians
}

// Summarize computes range statistics over the projected readings of s
// that pass Valid. A sample without valid readings yields the zero Summary.
func Summarize(s *Sample) Summary {
	n := s.PointCount()
	ranges := make([]float64, 0, n)
	bearings := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if !s.Valid(s.Ranges[i]) {
			continue
		}
		ranges = append(ranges, float64(s.Ranges[i]))
		bearings = append(bearings, s.AngleAt(i))
	}
	if len(ranges) == 0 {
		return Summary{}
	}

	sum := Summary{
		Valid:          len(ranges),
		Min:            floats.Min(ranges),
		Max:            floats.Max(ranges),
		NearestBearing: bearings[floats.MinIdx(ranges)],
	}
	if len(ranges) > 1 {
		sum.Mean, sum.StdDev = stat.MeanStdDev(ranges, nil)
	} else {
		sum.Mean = ranges[0]
	}

	sort.Float64s(ranges)
	sum.Median = stat.Quantile(0.5, stat.Empirical, ranges, nil)
	return sum
}
