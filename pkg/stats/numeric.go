// Package stats computes the descriptive statistics handed to the tracking
// layer and the small numeric kernels shared with the aggregation stage.
package stats

import (
	"math"
	"sort"
)

// Sum returns the sum of all elements in the slice.
func Sum(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v
	}
	return s
}

// Mean computes the average of a slice; NaN when empty.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return Sum(x) / float64(len(x))
}

// Variance with ddof delta degrees of freedom (1 for the sample variance).
// NaN when there are not more than ddof observations.
func Variance(x []float64, ddof int) float64 {
	n := len(x)
	if n <= ddof {
		return math.NaN()
	}
	mean := Mean(x)
	ss := 0.0
	for _, v := range x {
		d := v - mean
		ss += d * d
	}
	return ss / float64(n-ddof)
}

// Std is the square root of Variance.
func Std(x []float64, ddof int) float64 {
	return math.Sqrt(Variance(x, ddof))
}

// Quantile returns the q-th quantile (0..1) with linear interpolation between
// closest ranks. The input is copied, not sorted in place.
func Quantile(x []float64, q float64) float64 {
	n := len(x)
	if n == 0 {
		return math.NaN()
	}
	cp := make([]float64, n)
	copy(cp, x)
	sort.Float64s(cp)
	return quantileSorted(cp, q)
}

func quantileSorted(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Median returns the 0.5 quantile.
func Median(x []float64) float64 {
	return Quantile(x, 0.5)
}

// Pearson returns the correlation coefficient of two equally long slices;
// NaN when either side has zero variance or fewer than two points.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if n < 2 || n != len(y) {
		return math.NaN()
	}
	mx, my := Mean(x), Mean(y)
	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}
