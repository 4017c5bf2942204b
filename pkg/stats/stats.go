// Package stats has the small descriptive statistics the analytics
// endpoints share.
package stats

import (
	"math"
	"sort"
)

// Round rounds x to places decimal places, half away from zero.
func Round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

// Round2 rounds to two decimal places.
func Round2(x float64) float64 { return Round(x, 2) }

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func Sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

// Mean returns 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return Sum(xs) / float64(len(xs))
}

// StdDev is the population standard deviation.
func StdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func Max(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// Ratio returns num/den, or 0 when den is 0.
func Ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Percent returns num/den*100 rounded to two places, or 0 when den is 0.
func Percent(num, den float64) float64 {
	return Round2(Ratio(num, den) * 100)
}

// LinearFit fits y = intercept + slope*x over x = 0..len(ys)-1 by least
// squares. A single point gives a flat line through it.
func LinearFit(ys []float64) (slope, intercept float64) {
	n := float64(len(ys))
	switch len(ys) {
	case 0:
		return 0, 0
	case 1:
		return 0, ys[0]
	}
	var sx, sy, sxy, sxx float64
	for i, y := range ys {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, sy / n
	}
	slope = (n*sxy - sx*sy) / den
	intercept = (sy - slope*sx) / n
	return slope, intercept
}

// Project extends a linear fit of ys by steps points, never below zero.
func Project(ys []float64, steps int) []float64 {
	slope, intercept := LinearFit(ys)
	out := make([]float64, steps)
	for i := range out {
		x := float64(len(ys) + i)
		out[i] = math.Max(0, intercept+slope*x)
	}
	return out
}

// NaiveTrendPercent compares the fitted first and last values of ys, in
// percent of the first. A non-positive start yields 0.
func NaiveTrendPercent(ys []float64) float64 {
	if len(ys) < 2 {
		return 0
	}
	slope, intercept := LinearFit(ys)
	first := intercept
	last := intercept + slope*float64(len(ys)-1)
	if first <= 0 {
		return 0
	}
	return (last - first) / first * 100
}

// ZScore returns (x-mean)/std, or 0 when std is 0.
func ZScore(x, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (x - mean) / std
}

// TopCounts returns up to n keys with the highest counts. Ties break on the
// smaller key so the result is stable.
func TopCounts[K int | string](counts map[K]int, n int) []K {
	keys := make([]K, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Mode returns the most frequent value, or def when xs is empty.
func Mode(xs []int, def int) int {
	if len(xs) == 0 {
		return def
	}
	counts := make(map[int]int, len(xs))
	for _, x := range xs {
		counts[x]++
	}
	return TopCounts(counts, 1)[0]
}
