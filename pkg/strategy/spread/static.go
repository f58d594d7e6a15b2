package spread

import (
	"errors"
	"fmt"
	"math"

	"github.com/yourusername/quantlink-pairs/pkg/pricedata"
	"github.com/yourusername/quantlink-pairs/pkg/stats"
)

// Static fits a single OLS hedge ratio on a training series and applies it
// unchanged to any later series. Dispersion is the rolling sample standard
// deviation of the spread over Window rows.
type Static struct {
	window int
	phase  Phase
	coef   Coefficients
}

// NewStatic creates an unfitted static estimator
func NewStatic(window int) (*Static, error) {
	if window < 2 {
		return nil, fmt.Errorf("%w: window must be at least 2, got %d", ErrInvalidParameter, window)
	}
	return &Static{window: window, coef: undefinedCoefficients()}, nil
}

// Method implements Estimator
func (s *Static) Method() Method { return MethodStatic }

// Phase implements Fitter
func (s *Static) Phase() Phase { return s.phase }

// Window returns the dispersion lookback
func (s *Static) Window() int { return s.window }

// Coefficients returns the fitted coefficients
func (s *Static) Coefficients() (Coefficients, error) {
	if s.phase != PhaseFitted {
		return Coefficients{}, ErrNotFitted
	}
	return s.coef, nil
}

// Fit regresses price_y on price_x over the whole training series
func (s *Static) Fit(train *pricedata.Series) error {
	if err := validateSeries(train); err != nil {
		return err
	}

	reg, err := stats.OLS(train.X, train.Y)
	switch {
	case errors.Is(err, stats.ErrDegenerate):
		return fmt.Errorf("%w: price_x has no variance over %d rows", ErrDegenerateRegression, train.Len())
	case errors.Is(err, stats.ErrInsufficientData):
		return fmt.Errorf("%w: need at least 2 rows, got %d", ErrInsufficientHistory, train.Len())
	case err != nil:
		return err
	}

	s.coef = Coefficients{Intercept: reg.Intercept, Slope: reg.Slope}
	s.phase = PhaseFitted
	return nil
}

// Estimate implements Estimator
func (s *Static) Estimate(series *pricedata.Series) (*Estimates, error) {
	if s.phase != PhaseFitted {
		return nil, ErrNotFitted
	}
	if err := validateSeries(series); err != nil {
		return nil, err
	}

	rows := newRows(series)
	spreads := make([]float64, len(rows))
	for i := range rows {
		rows[i].Applied = s.coef
		rows[i].Fitted = s.coef
		rows[i].Spread = series.Y[i] - s.coef.Predict(series.X[i])
		spreads[i] = rows[i].Spread
	}

	fillDispersion(rows, spreads, s.window)
	return &Estimates{Method: MethodStatic, Rows: rows}, nil
}

// fillDispersion sets Dispersion and ZScore from the trailing sample std of
// spreads. Rows without a full window keep their status if already flagged,
// otherwise they become StatusInsufficientHistory.
func fillDispersion(rows []Row, spreads []float64, window int) {
	std := stats.RollingStdDev(spreads, window)
	for i := range rows {
		rows[i].Dispersion = std[i]
		if math.IsNaN(std[i]) {
			rows[i].ZScore = math.NaN()
			if rows[i].Status == StatusOK {
				rows[i].Status = StatusInsufficientHistory
			}
			continue
		}
		rows[i].ZScore = zScore(rows[i].Spread, std[i])
	}
}
