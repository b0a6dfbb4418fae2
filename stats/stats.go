// Package stats summarizes a completed spin table row: how far the spins
// lean down at a given field and how much they disagree with each other.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const Epsilon = 1e-6

func FuzzyEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// Statistic is a running mean and variance (Welford).
type Statistic struct {
	n    int
	mean float64
	m2   float64
}

func (s *Statistic) Push(val float64) {
	s.n++
	delta := val - s.mean
	s.mean += delta / float64(s.n)
	s.m2 += delta * (val - s.mean)
}

func (s *Statistic) Mean() float64 {
	return s.mean
}

func (s *Statistic) Variance() float64 {
	if s.n <= 1 {
		return 0
	}
	return s.m2 / float64(s.n-1)
}

func (s *Statistic) Stdev() float64 {
	return math.Sqrt(s.Variance())
}

func (s *Statistic) StandardError() float64 {
	if s.n == 0 {
		return 0
	}
	return math.Sqrt(s.Variance() / float64(s.n))
}

func (s *Statistic) Count() int {
	return s.n
}

// ZVal returns the two-tailed z-value for a confidence level given in
// percent.
func ZVal(confidence float64) float64 {
	return distuv.UnitNormal.Quantile((1 + confidence/100) / 2)
}

// Summary describes the per-spin down fractions of one row.
type Summary struct {
	Spins    int
	MeanDown float64
	Stdev    float64
	// CI95 is the half-width of the 95% confidence interval of MeanDown.
	CI95 float64
	// Magnetization is the mean spin value, 1 - 2*MeanDown.
	Magnetization float64
	Fractions     []float64
}

// Summarize computes a Summary from a row's down counts.
func Summarize(spinDown []int, samples int) Summary {
	sum := Summary{Spins: len(spinDown), Fractions: make([]float64, len(spinDown))}
	if samples <= 0 || len(spinDown) == 0 {
		return sum
	}
	var st Statistic
	for i, d := range spinDown {
		f := float64(d) / float64(samples)
		sum.Fractions[i] = f
		st.Push(f)
	}
	sum.MeanDown = st.Mean()
	sum.Stdev = st.Stdev()
	sum.CI95 = ZVal(95) * st.StandardError()
	sum.Magnetization = 1 - 2*sum.MeanDown
	return sum
}
