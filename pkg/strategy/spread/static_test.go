package spread

import (
	"errors"
	"math"
	"testing"

	"github.com/yourusername/quantlink-pairs/pkg/pricedata"
)

func TestStatic_RecoversCoefficients(t *testing.T) {
	series := linearSeries(500, 3, 1.5, 0.1, 42)

	s, err := NewStatic(20)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	if s.Phase() != PhaseUnfitted {
		t.Fatalf("expected unfitted phase, got %s", s.Phase())
	}
	if err := s.Fit(series); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if s.Phase() != PhaseFitted {
		t.Fatalf("expected fitted phase, got %s", s.Phase())
	}

	coef, err := s.Coefficients()
	if err != nil {
		t.Fatalf("Coefficients: %v", err)
	}
	if !almostEqual(coef.Slope, 1.5, 0.01) {
		t.Errorf("slope = %.4f, want 1.5", coef.Slope)
	}
	if !almostEqual(coef.Intercept, 3, 0.2) {
		t.Errorf("intercept = %.4f, want 3", coef.Intercept)
	}
}

func TestStatic_NotFitted(t *testing.T) {
	s, _ := NewStatic(5)
	if _, err := s.Estimate(linearSeries(10, 0, 1, 0.1, 1)); !errors.Is(err, ErrNotFitted) {
		t.Errorf("expected ErrNotFitted, got %v", err)
	}
	if _, err := s.Coefficients(); !errors.Is(err, ErrNotFitted) {
		t.Errorf("expected ErrNotFitted from Coefficients, got %v", err)
	}
}

func TestStatic_FitErrors(t *testing.T) {
	tests := []struct {
		name   string
		series *pricedata.Series
		want   error
	}{
		{"constant x", constantXSeries(30), ErrDegenerateRegression},
		{"single row", linearSeries(1, 0, 1, 0, 1), ErrInsufficientHistory},
		{"empty", &pricedata.Series{}, ErrEmptyInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := NewStatic(5)
			err := s.Fit(tt.series)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if s.Phase() != PhaseUnfitted {
				t.Errorf("failed fit must leave estimator unfitted")
			}
		})
	}
}

func TestStatic_EstimateRows(t *testing.T) {
	const window = 10
	train := linearSeries(200, 1, 2, 0.3, 3)
	test := linearSeries(60, 1, 2, 0.3, 4)

	s, _ := NewStatic(window)
	if err := s.Fit(train); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	est, err := s.Estimate(test)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if est.Len() != test.Len() {
		t.Fatalf("rows = %d, want %d", est.Len(), test.Len())
	}

	coef, _ := s.Coefficients()
	for i, row := range est.Rows {
		if row.Applied != coef || row.Fitted != coef {
			t.Fatalf("row %d: coefficients not broadcast", i)
		}
		wantSpread := test.Y[i] - (coef.Intercept + coef.Slope*test.X[i])
		if !almostEqual(row.Spread, wantSpread, 1e-12) {
			t.Errorf("row %d: spread = %v, want %v", i, row.Spread, wantSpread)
		}

		if i < window-1 {
			if row.Status != StatusInsufficientHistory {
				t.Errorf("row %d: status = %s, want insufficient_history", i, row.Status)
			}
			if !math.IsNaN(row.Dispersion) || !math.IsNaN(row.ZScore) {
				t.Errorf("row %d: dispersion and z-score should be NaN", i)
			}
			continue
		}
		if !row.OK() {
			t.Errorf("row %d: status = %s, want ok", i, row.Status)
		}
		if !almostEqual(row.ZScore, row.Spread/row.Dispersion, 1e-12) {
			t.Errorf("row %d: z-score inconsistent", i)
		}
	}
}

func TestStatic_RefitReplacesCoefficients(t *testing.T) {
	s, _ := NewStatic(5)
	if err := s.Fit(linearSeries(100, 0, 1, 0.01, 1)); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if err := s.Fit(linearSeries(100, 0, 3, 0.01, 2)); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	coef, _ := s.Coefficients()
	if !almostEqual(coef.Slope, 3, 0.01) {
		t.Errorf("slope = %v after refit, want 3", coef.Slope)
	}
}
