// Package stats provides statistical functions and time series analysis tools
package stats

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientData is returned when a calculation needs more observations than provided
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegenerate is returned when the regressor has (near) zero variance
	ErrDegenerate = errors.New("degenerate regressor")

	// ErrLengthMismatch is returned when paired inputs differ in length
	ErrLengthMismatch = errors.New("length mismatch")
)

// degenerateTolerance bounds the sample variance of the regressor, relative to
// its squared mean, below which the slope is considered ill-conditioned.
const degenerateTolerance = 1e-12

// Regression holds the coefficients of y = Intercept + Slope*x
type Regression struct {
	Intercept float64
	Slope     float64
}

// Mean returns the arithmetic mean, 0 for empty input
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev returns the sample (n-1) standard deviation.
// Fewer than two observations yield NaN.
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return math.NaN()
	}
	return stat.StdDev(data, nil)
}

// OLS fits y = a + b*x by ordinary least squares with an intercept.
func OLS(x, y []float64) (Regression, error) {
	if len(x) != len(y) {
		return Regression{}, ErrLengthMismatch
	}
	if len(x) < 2 {
		return Regression{}, ErrInsufficientData
	}

	mean, variance := stat.MeanVariance(x, nil)
	if !(variance > degenerateTolerance*math.Max(1, mean*mean)) {
		return Regression{}, ErrDegenerate
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	return Regression{Intercept: alpha, Slope: beta}, nil
}

// RollingStdDev returns the trailing sample standard deviation over window
// observations ending at each index. Positions without a full window of
// finite values are NaN.
func RollingStdDev(data []float64, window int) []float64 {
	out := make([]float64, len(data))
	for i := range out {
		out[i] = math.NaN()
	}
	if window < 2 {
		return out
	}

	// finite counts the finite values inside the current window
	finite := 0
	for i, v := range data {
		if isFinite(v) {
			finite++
		}
		if i >= window {
			if isFinite(data[i-window]) {
				finite--
			}
		}
		if i >= window-1 && finite == window {
			out[i] = stat.StdDev(data[i-window+1:i+1], nil)
		}
	}
	return out
}

// RunningMax returns the cumulative maximum of data
func RunningMax(data []float64) []float64 {
	out := make([]float64, len(data))
	peak := math.Inf(-1)
	for i, v := range data {
		if v > peak {
			peak = v
		}
		out[i] = peak
	}
	return out
}

// Correlation returns the Pearson correlation coefficient.
// Mismatched, empty or zero-variance inputs return 0.
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
