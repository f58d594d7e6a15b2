// Package spread estimates the hedge ratio between two instruments and the
// spread (residual) it implies, together with a dispersion measure used to
// normalise that spread.
package spread

import (
	"math"
	"time"
)

// Method identifies a hedge-ratio estimator
type Method string

const (
	// MethodStatic fits one OLS regression on a training window
	MethodStatic Method = "static"

	// MethodRolling refits OLS over a trailing window at every step
	MethodRolling Method = "rolling"

	// MethodKalman tracks (intercept, slope) with a recursive filter
	MethodKalman Method = "kalman"
)

// Coefficients is the affine map price_y ≈ Intercept + Slope*price_x
type Coefficients struct {
	Intercept float64
	Slope     float64
}

// Predict returns the modelled price_y for x
func (c Coefficients) Predict(x float64) float64 {
	return c.Intercept + c.Slope*x
}

// Defined reports whether both coefficients are finite
func (c Coefficients) Defined() bool {
	return !math.IsNaN(c.Intercept) && !math.IsNaN(c.Slope) &&
		!math.IsInf(c.Intercept, 0) && !math.IsInf(c.Slope, 0)
}

func undefinedCoefficients() Coefficients {
	return Coefficients{Intercept: math.NaN(), Slope: math.NaN()}
}

// Status flags rows whose normalised spread is not usable
type Status uint8

const (
	StatusOK Status = iota
	StatusInsufficientHistory
	StatusDegenerateRegression
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInsufficientHistory:
		return "insufficient_history"
	case StatusDegenerateRegression:
		return "degenerate_regression"
	default:
		return "unknown"
	}
}

// Err maps the status onto the package error taxonomy, nil for StatusOK
func (s Status) Err() error {
	switch s {
	case StatusInsufficientHistory:
		return ErrInsufficientHistory
	case StatusDegenerateRegression:
		return ErrDegenerateRegression
	default:
		return nil
	}
}

// Row is one annotated time step.
//
// Applied holds the coefficients used to form this row's spread; for the
// rolling and Kalman estimators they are fixed before the row's prices are
// seen. Fitted holds the estimate after the row has been incorporated.
type Row struct {
	Time   time.Time
	PriceY float64
	PriceX float64

	Applied Coefficients
	Fitted  Coefficients

	Spread     float64
	Dispersion float64
	ZScore     float64
	Status     Status
}

// OK reports whether the row can drive a trading decision
func (r Row) OK() bool {
	return r.Status == StatusOK
}

// HedgeRatio returns the slope applied at this row
func (r Row) HedgeRatio() float64 {
	return r.Applied.Slope
}

// Estimates is the output of one estimator pass over a series
type Estimates struct {
	Method Method
	Rows   []Row
}

// Len returns the number of rows
func (e *Estimates) Len() int {
	return len(e.Rows)
}

// zScore divides spread by dispersion; a zero dispersion yields ±Inf, or 0
// when the spread is also zero.
func zScore(spread, dispersion float64) float64 {
	if dispersion == 0 {
		switch {
		case spread > 0:
			return math.Inf(1)
		case spread < 0:
			return math.Inf(-1)
		default:
			return 0
		}
	}
	return spread / dispersion
}
