package clean

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"quantdata/internal/table"
)

// statFn reduces the non-missing values of one window. The input slice is
// sorted ascending.
type statFn func(sorted []float64) float64

func meanFn(sorted []float64) float64 {
	return stat.Mean(sorted, nil)
}

func stdFn(sorted []float64) float64 {
	if len(sorted) < 2 {
		return table.NaN()
	}
	return math.Sqrt(stat.Variance(sorted, nil))
}

func medianFn(sorted []float64) float64 {
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

func quantileFn(p float64) statFn {
	return func(sorted []float64) float64 {
		return stat.Quantile(p, stat.Empirical, sorted, nil)
	}
}

// rolling applies fn over a trailing window of size w ending at each index.
// shift moves the window forward: shift s makes the window cover
// [i-w+1+s, i+s], which is the centered "estimation" variant when s is about
// half the window. Windows with fewer than minPeriods valid values yield NaN.
func rolling(vals []float64, w, shift, minPeriods int, fn statFn) []float64 {
	out := make([]float64, len(vals))
	buf := make([]float64, 0, w)
	for i := range vals {
		lo, hi := i-w+1+shift, i+shift
		if lo < 0 {
			lo = 0
		}
		if hi > len(vals)-1 {
			hi = len(vals) - 1
		}
		buf = buf[:0]
		for j := lo; j <= hi; j++ {
			if !table.Missing(vals[j]) {
				buf = append(buf, vals[j])
			}
		}
		if len(buf) < minPeriods || len(buf) == 0 {
			out[i] = table.NaN()
			continue
		}
		sort.Float64s(buf)
		out[i] = fn(buf)
	}
	return out
}

// rollingCount returns the number of valid values in each trailing window.
// Windows shorter than w (at the start of the series) yield -1 so callers can
// require complete windows.
func rollingCount(vals []float64, w int) []int {
	out := make([]int, len(vals))
	for i := range vals {
		if i < w-1 {
			out[i] = -1
			continue
		}
		n := 0
		for j := i - w + 1; j <= i; j++ {
			if !table.Missing(vals[j]) {
				n++
			}
		}
		out[i] = n
	}
	return out
}

// ewm computes exponentially weighted mean and standard deviation with the
// given span, skipping missing values. Weights follow the adjusted scheme
// (1-a)^k for the k-th newest valid observation.
func ewm(vals []float64, span int) (mean, std []float64) {
	alpha := 2.0 / (float64(span) + 1)
	decay := 1 - alpha
	mean = make([]float64, len(vals))
	std = make([]float64, len(vals))

	// sums carried across observations, decayed per valid point
	var wSum, wxSum, wx2Sum, w2Sum float64
	seen := 0
	for i, v := range vals {
		if table.Missing(v) {
			if seen == 0 {
				mean[i], std[i] = table.NaN(), table.NaN()
				continue
			}
			mean[i] = mean[i-1]
			std[i] = std[i-1]
			continue
		}
		wSum = wSum*decay + 1
		wxSum = wxSum*decay + v
		wx2Sum = wx2Sum*decay + v*v
		w2Sum = w2Sum*decay*decay + 1
		seen++

		m := wxSum / wSum
		mean[i] = m
		if seen < 2 {
			std[i] = table.NaN()
			continue
		}
		// bias-corrected weighted variance
		denom := wSum*wSum - w2Sum
		if denom <= 0 {
			std[i] = table.NaN()
			continue
		}
		variance := (wx2Sum/wSum - m*m) * (wSum * wSum / denom)
		if variance < 0 {
			variance = 0
		}
		std[i] = math.Sqrt(variance)
	}
	return mean, std
}

// logSeries returns the natural log of vals, mapping non-positive values to
// NaN so log-space detection skips them.
func logSeries(vals []float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		if table.Missing(v) || v <= 0 {
			out[i] = table.NaN()
		} else {
			out[i] = math.Log(v)
		}
	}
	return out
}
