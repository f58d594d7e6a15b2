package spread

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/yourusername/quantlink-pairs/pkg/pricedata"
)

// Kalman tracks β_t = (intercept, slope) as a random walk observed through
// y_t = (1, x_t)·β_t + v_t. The innovation is the spread and the square root
// of its variance is the dispersion.
//
// Each step consumes the posterior of the previous one, so rows are
// processed strictly in time order.
type Kalman struct {
	delta float64
	ve    float64
}

// KalmanStep is the full filter state recorded for one observation
type KalmanStep struct {
	Prediction         float64 // ŷ_t
	Innovation         float64 // e_t
	InnovationVariance float64 // Q_t
	Gain               [2]float64
	Prior              Coefficients // β_{t-1}
	Posterior          Coefficients // β_t
	Covariance         [4]float64   // R_t, row-major
}

// NewKalman creates a Kalman hedge-ratio filter.
// delta must lie in (0,1); measurementNoise (Ve) must be positive.
func NewKalman(delta, measurementNoise float64) (*Kalman, error) {
	if !(delta > 0 && delta < 1) {
		return nil, fmt.Errorf("%w: delta must be in (0,1), got %v", ErrInvalidParameter, delta)
	}
	if !(measurementNoise > 0) || math.IsInf(measurementNoise, 0) {
		return nil, fmt.Errorf("%w: measurement noise must be positive and finite, got %v", ErrInvalidParameter, measurementNoise)
	}
	return &Kalman{delta: delta, ve: measurementNoise}, nil
}

// Method implements Estimator
func (k *Kalman) Method() Method { return MethodKalman }

// Delta returns the adaptation rate
func (k *Kalman) Delta() float64 { return k.delta }

// MeasurementNoise returns Ve
func (k *Kalman) MeasurementNoise() float64 { return k.ve }

// Estimate implements Estimator
func (k *Kalman) Estimate(series *pricedata.Series) (*Estimates, error) {
	if err := validateSeries(series); err != nil {
		return nil, err
	}

	steps, err := k.Filter(series.X, series.Y)
	if err != nil {
		return nil, err
	}
	rows := newRows(series)
	for t, st := range steps {
		rows[t].Applied = st.Prior
		rows[t].Fitted = st.Posterior
		rows[t].Spread = st.Innovation
		rows[t].Dispersion = math.Sqrt(st.InnovationVariance)
		rows[t].ZScore = zScore(rows[t].Spread, rows[t].Dispersion)
	}
	return &Estimates{Method: MethodKalman, Rows: rows}, nil
}

// Filter runs the recursion from β_0 = 0, R_0 = 0 over paired observations.
// x and y must have the same length.
func (k *Kalman) Filter(x, y []float64) ([]KalmanStep, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: filter inputs x=%d y=%d", ErrInvalidParameter, len(x), len(y))
	}
	n := len(x)

	q := k.delta / (1 - k.delta)
	vw := mat.NewDiagDense(2, []float64{q, q})

	beta := mat.NewVecDense(2, nil)
	r := mat.NewDense(2, 2, nil)

	out := make([]KalmanStep, n)
	for t := 0; t < n; t++ {
		xt := mat.NewVecDense(2, []float64{1, x[t]})

		// predict
		prior := Coefficients{Intercept: beta.AtVec(0), Slope: beta.AtVec(1)}
		var rPred mat.Dense
		rPred.Add(r, vw)

		yHat := mat.Dot(xt, beta)
		e := y[t] - yHat
		qt := mat.Inner(xt, &rPred, xt) + k.ve

		// gain
		var rx mat.VecDense
		rx.MulVec(&rPred, xt)
		var gain mat.VecDense
		gain.ScaleVec(1/qt, &rx)

		// update
		var next mat.VecDense
		next.AddScaledVec(beta, e, &gain)
		beta.CopyVec(&next)

		var kx, kxr mat.Dense
		kx.Outer(1, &gain, xt)
		kxr.Mul(&kx, &rPred)
		r.Sub(&rPred, &kxr)

		out[t] = KalmanStep{
			Prediction:         yHat,
			Innovation:         e,
			InnovationVariance: qt,
			Gain:               [2]float64{gain.AtVec(0), gain.AtVec(1)},
			Prior:              prior,
			Posterior:          Coefficients{Intercept: beta.AtVec(0), Slope: beta.AtVec(1)},
			Covariance:         [4]float64{r.At(0, 0), r.At(0, 1), r.At(1, 0), r.At(1, 1)},
		}
	}
	return out, nil
}
