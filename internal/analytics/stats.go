package analytics

import (
	"math"

	"golang.org/x/sync/errgroup"
)

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// minMax returns 0, 0 for an empty slice.
func minMax(values []float64) (lo, hi float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func populationStdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// safeDiv returns 0 instead of NaN or ±Inf.
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	q := num / den
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0
	}
	return q
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 1:
		return 1
	}
	return v
}

// splitHalfTrend compares the mean of values[:n/2] with the mean of
// values[n/2:]. When n is odd the middle element lands in the second half.
// A zero first-half mean yields TrendStable.
func splitHalfTrend(values []float64, thresholdPct float64) (Trend, float64) {
	mid := len(values) / 2
	firstAvg := mean(values[:mid])
	secondAvg := mean(values[mid:])
	if firstAvg == 0 {
		return TrendStable, 0
	}

	changePct := safeDiv(secondAvg-firstAvg, firstAvg) * 100
	switch {
	case changePct > thresholdPct:
		return TrendIncreasing, changePct
	case changePct < -thresholdPct:
		return TrendDecreasing, changePct
	}
	return TrendStable, changePct
}

// forEachIndex calls fn for 0..n-1 on up to workers goroutines. fn must only
// write state owned by its index.
func forEachIndex(n, workers int, fn func(i int)) {
	if workers < 2 || n < 2 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}
