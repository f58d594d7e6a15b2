package spread

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/yourusername/quantlink-pairs/pkg/pricedata"
)

func TestKalman_FirstStep(t *testing.T) {
	const (
		delta = 1e-5
		ve    = 1e-2
	)
	k, err := NewKalman(delta, ve)
	if err != nil {
		t.Fatalf("NewKalman: %v", err)
	}

	steps, err := k.Filter([]float64{50}, []float64{100})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}
	st := steps[0]

	q := delta / (1 - delta)
	wantQ := ve + q*(1+50*50)
	if st.Prediction != 0 {
		t.Errorf("prediction = %v, want 0", st.Prediction)
	}
	if st.Innovation != 100 {
		t.Errorf("innovation = %v, want 100", st.Innovation)
	}
	if !almostEqual(st.InnovationVariance, wantQ, 1e-12) {
		t.Errorf("Q = %.12f, want %.12f", st.InnovationVariance, wantQ)
	}
	if !almostEqual(st.InnovationVariance, 0.0350102501, 1e-9) {
		t.Errorf("Q = %.12f, want ~0.0350102501", st.InnovationVariance)
	}

	wantGain := [2]float64{q / wantQ, 50 * q / wantQ}
	for i := range wantGain {
		if !almostEqual(st.Gain[i], wantGain[i], 1e-12) {
			t.Errorf("gain[%d] = %v, want %v", i, st.Gain[i], wantGain[i])
		}
	}
	if st.Prior != (Coefficients{}) {
		t.Errorf("prior = %+v, want zero", st.Prior)
	}
	if !almostEqual(st.Posterior.Intercept, 100*wantGain[0], 1e-9) ||
		!almostEqual(st.Posterior.Slope, 100*wantGain[1], 1e-9) {
		t.Errorf("posterior = %+v", st.Posterior)
	}

	// R_1 stays symmetric
	if !almostEqual(st.Covariance[1], st.Covariance[2], 1e-15) {
		t.Errorf("covariance not symmetric: %v", st.Covariance)
	}
}

func TestKalman_EstimateRows(t *testing.T) {
	series := linearSeries(300, 0, 2, 0.05, 21)

	k, _ := NewKalman(1e-4, 1e-3)
	est, err := k.Estimate(series)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	steps, err := k.Filter(series.X, series.Y)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}

	for i, row := range est.Rows {
		if !row.OK() {
			t.Fatalf("row %d: status = %s, want ok", i, row.Status)
		}
		if row.Applied != steps[i].Prior || row.Fitted != steps[i].Posterior {
			t.Fatalf("row %d: coefficients do not match filter state", i)
		}
		if i > 0 && row.Applied != est.Rows[i-1].Fitted {
			t.Errorf("row %d: applied must equal previous posterior", i)
		}
		if !almostEqual(row.Dispersion, math.Sqrt(steps[i].InnovationVariance), 1e-15) {
			t.Errorf("row %d: dispersion mismatch", i)
		}
		want := series.Y[i] - row.Applied.Predict(series.X[i])
		if !almostEqual(row.Spread, want, 1e-9) {
			t.Errorf("row %d: spread = %v, want %v", i, row.Spread, want)
		}
	}

	// the filter converges towards the generating slope
	last := est.Rows[est.Len()-1].Fitted
	if !almostEqual(last.Predict(series.X[est.Len()-1]), series.Y[est.Len()-1], 1) {
		t.Errorf("filter did not converge: %+v", last)
	}
}

func TestKalman_OrderMatters(t *testing.T) {
	dates := []time.Time{day(0), day(1), day(2), day(3), day(4)}
	y := []float64{100, 104, 97, 101, 103}
	x := []float64{50, 51, 49.5, 50.2, 51.3}

	original, err := pricedata.New(dates, y, x)
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	swappedY := []float64{100, 97, 104, 101, 103}
	swappedX := []float64{50, 49.5, 51, 50.2, 51.3}
	swapped, err := pricedata.New(dates, swappedY, swappedX)
	if err != nil {
		t.Fatalf("series: %v", err)
	}

	k, _ := NewKalman(1e-3, 1e-2)
	a, _ := k.Estimate(original)
	b, _ := k.Estimate(swapped)

	if !sameFloat(a.Rows[0].Spread, b.Rows[0].Spread) {
		t.Error("rows before the swap must be unchanged")
	}
	if almostEqual(a.Rows[3].Spread, b.Rows[3].Spread, 1e-12) {
		t.Errorf("swapping rows 1 and 2 should change row 3: %v vs %v", a.Rows[3].Spread, b.Rows[3].Spread)
	}
}

func TestKalman_FilterLengthMismatch(t *testing.T) {
	k, _ := NewKalman(1e-4, 1e-3)
	steps, err := k.Filter([]float64{50, 51, 52}, []float64{100, 101})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
	if steps != nil {
		t.Errorf("steps = %v, want nil", steps)
	}
}
