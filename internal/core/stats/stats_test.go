package stats

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"
)

func TestPercentile(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		sample []float64
		p      float64
		want   float64
		ok     bool
	}{
		{"empty", nil, 0.5, 0, false},
		{"single", []float64{7}, 0.9, 7, true},
		{"pair p50", []float64{2, 4}, 0.5, 3, true},
		{"pair p90", []float64{2, 4}, 0.9, 3.8, true},
		{"unsorted p50", []float64{12, 2, 6, 4, 10, 8}, 0.5, 7, true},
		{"unsorted p90", []float64{12, 2, 6, 4, 10, 8}, 0.9, 11, true},
		{"exact rank", []float64{1, 2, 3, 4, 5}, 0.5, 3, true},
		{"p0 is min", []float64{5, 1, 3}, 0, 1, true},
		{"p1 is max", []float64{5, 1, 3}, 1, 5, true},
		{"p out of range", []float64{1}, 1.5, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Percentile(tt.sample, tt.p)
			if ok != tt.ok || math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Percentile(%v, %v) = %v,%v want %v,%v", tt.sample, tt.p, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestPercentileDoesNotMutate(t *testing.T) {
	t.Parallel()
	in := []float64{3, 1, 2}
	_, _ = Percentile(in, 0.5)
	if !slices.Equal(in, []float64{3, 1, 2}) {
		t.Fatalf("input mutated: %v", in)
	}
}

// P50 <= P90 and both lie within [min, max] for any sample
func TestPercentileOrderingProperty(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(1, 2))
	for i := range 500 {
		n := 1 + r.IntN(40)
		s := make([]float64, n)
		for j := range s {
			s[j] = r.Float64() * 1000
		}
		ps, ok := Percentiles(s, 0.5, 0.9)
		if !ok {
			t.Fatalf("iteration %d: not ok", i)
		}
		lo, hi := slices.Min(s), slices.Max(s)
		if ps[0] > ps[1] || ps[0] < lo || ps[1] > hi {
			t.Fatalf("iteration %d: p50=%v p90=%v min=%v max=%v", i, ps[0], ps[1], lo, hi)
		}
	}
}

func TestPositiveMeanRatioWeekly(t *testing.T) {
	t.Parallel()
	if got := Positive([]float64{-1, 0, 2, math.Inf(1), math.NaN(), 3}); !slices.Equal(got, []float64{2, 3}) {
		t.Fatalf("Positive = %v", got)
	}
	if m, ok := Mean([]float64{1, 2, 6}); !ok || m != 3 {
		t.Fatalf("Mean = %v %v", m, ok)
	}
	if _, ok := Mean(nil); ok {
		t.Fatalf("Mean(nil) should not be ok")
	}
	if r, ok := Ratio(7, 10); !ok || r != 0.7 {
		t.Fatalf("Ratio = %v %v", r, ok)
	}
	if _, ok := Ratio(1, 0); ok {
		t.Fatalf("Ratio with zero den should not be ok")
	}
	if got := Weekly(4, 28); got != 1 {
		t.Fatalf("Weekly(4,28) = %v", got)
	}
	if got := Weekly(0, 14); got != 0 {
		t.Fatalf("Weekly(0,14) = %v", got)
	}
	if Ptr(1, false) != nil || *Ptr(2, true) != 2 {
		t.Fatalf("Ptr misbehaves")
	}
}
