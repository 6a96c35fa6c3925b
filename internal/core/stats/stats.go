// Package stats holds the small numeric helpers the metrics engine is built from
package stats

import (
	"math"
	"slices"
)

// Percentile returns the p-th percentile (0..1) of sample using linear
// interpolation between closest ranks at index p*(n-1). The input is not modified.
// ok is false for an empty sample or p outside [0,1]
func Percentile(sample []float64, p float64) (float64, bool) {
	if len(sample) == 0 || p < 0 || p > 1 || math.IsNaN(p) {
		return 0, false
	}
	s := slices.Clone(sample)
	slices.Sort(s)
	return sortedPercentile(s, p), true
}

// Percentiles computes several percentiles with a single sort
func Percentiles(sample []float64, ps ...float64) ([]float64, bool) {
	if len(sample) == 0 {
		return nil, false
	}
	s := slices.Clone(sample)
	slices.Sort(s)
	out := make([]float64, len(ps))
	for i, p := range ps {
		if p < 0 || p > 1 || math.IsNaN(p) {
			return nil, false
		}
		out[i] = sortedPercentile(s, p)
	}
	return out, true
}

func sortedPercentile(s []float64, p float64) float64 {
	if len(s) == 1 {
		return s[0]
	}
	idx := p * float64(len(s)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return s[lo]
	}
	frac := idx - float64(lo)
	return s[lo] + (s[hi]-s[lo])*frac
}

// Positive keeps strictly positive, finite values
func Positive(sample []float64) []float64 {
	out := make([]float64, 0, len(sample))
	for _, v := range sample {
		if v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Mean is the arithmetic mean; ok is false when sample is empty
func Mean(sample []float64) (float64, bool) {
	if len(sample) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range sample {
		sum += v
	}
	return sum / float64(len(sample)), true
}

// Ratio is num/den; ok is false when den is zero
func Ratio(num, den int) (float64, bool) {
	if den <= 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}

// Weekly normalizes a count over a window of days to a per-week rate
func Weekly(count, windowDays int) float64 {
	if count <= 0 || windowDays <= 0 {
		return 0
	}
	return float64(count) * 7 / float64(windowDays)
}

// Ptr returns &v when ok, else nil
func Ptr(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
