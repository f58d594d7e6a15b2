package spread

import (
	"errors"
	"fmt"
	"math"

	"github.com/yourusername/quantlink-pairs/pkg/pricedata"
	"github.com/yourusername/quantlink-pairs/pkg/stats"
)

// Rolling refits OLS over the trailing Window rows at every step. The spread
// at step t uses the coefficients fitted through t-1, so no row is priced
// with a regression that has already seen it.
type Rolling struct {
	window int
}

// NewRolling creates a rolling-regression estimator
func NewRolling(window int) (*Rolling, error) {
	if window < 2 {
		return nil, fmt.Errorf("%w: window must be at least 2, got %d", ErrInvalidParameter, window)
	}
	return &Rolling{window: window}, nil
}

// Method implements Estimator
func (r *Rolling) Method() Method { return MethodRolling }

// Window returns the regression and dispersion lookback
func (r *Rolling) Window() int { return r.window }

// Estimate implements Estimator
func (r *Rolling) Estimate(series *pricedata.Series) (*Estimates, error) {
	if err := validateSeries(series); err != nil {
		return nil, err
	}

	n := series.Len()
	fitted, fitStatus := r.fitWindows(series)

	rows := newRows(series)
	spreads := make([]float64, n)
	for t := range rows {
		rows[t].Fitted = fitted[t]
		rows[t].Applied = undefinedCoefficients()
		rows[t].Spread = math.NaN()
		spreads[t] = math.NaN()

		if t == 0 {
			rows[t].Status = StatusInsufficientHistory
			continue
		}

		applied := fitted[t-1]
		if !applied.Defined() {
			rows[t].Status = fitStatus[t-1]
			continue
		}

		rows[t].Applied = applied
		rows[t].Spread = series.Y[t] - applied.Predict(series.X[t])
		spreads[t] = rows[t].Spread
	}

	fillDispersion(rows, spreads, r.window)
	return &Estimates{Method: MethodRolling, Rows: rows}, nil
}

// fitWindows runs OLS on every full trailing window. Entries before the first
// full window, or whose window has a degenerate regressor, are undefined.
func (r *Rolling) fitWindows(series *pricedata.Series) ([]Coefficients, []Status) {
	n := series.Len()
	fitted := make([]Coefficients, n)
	status := make([]Status, n)

	for t := 0; t < n; t++ {
		fitted[t] = undefinedCoefficients()
		if t < r.window-1 {
			status[t] = StatusInsufficientHistory
			continue
		}

		lo := t - r.window + 1
		reg, err := stats.OLS(series.X[lo:t+1], series.Y[lo:t+1])
		if err != nil {
			if errors.Is(err, stats.ErrDegenerate) {
				status[t] = StatusDegenerateRegression
			} else {
				status[t] = StatusInsufficientHistory
			}
			continue
		}
		fitted[t] = Coefficients{Intercept: reg.Intercept, Slope: reg.Slope}
	}
	return fitted, status
}
