package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/yourusername/quantlink-pairs/pkg/strategy"
	"github.com/yourusername/quantlink-pairs/pkg/strategy/spread"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func day(n int) time.Time {
	return time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// fixture builds estimate rows with a constant hedge ratio and the given positions
func fixture(y, x []float64, hedge float64, positions []strategy.Position) ([]spread.Row, []strategy.Step) {
	rows := make([]spread.Row, len(y))
	steps := make([]strategy.Step, len(y))
	for i := range y {
		coef := spread.Coefficients{Slope: hedge}
		rows[i] = spread.Row{
			Time:    day(i),
			PriceY:  y[i],
			PriceX:  x[i],
			Applied: coef,
			Fitted:  coef,
		}
		steps[i] = strategy.Step{Time: day(i), Position: positions[i], Evaluated: true}
	}
	return rows, steps
}

func TestRun_Accounting(t *testing.T) {
	y := []float64{100, 102, 101, 103}
	x := []float64{50, 50.5, 51, 50}
	pos := []strategy.Position{strategy.Flat, strategy.LongSpread, strategy.LongSpread, strategy.ShortSpread}
	rows, steps := fixture(y, x, 2, pos)

	const c = 0.001
	res, err := Run(rows, steps, EngineConfig{TransactionCostRate: c})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	r := res.Rows
	if r[0].ReturnY != 0 || r[0].StrategyReturn != 0 || r[0].Cost != 0 || r[0].Equity != 1 {
		t.Errorf("first row must be neutral: %+v", r[0])
	}

	// row 1: flat before, enter long
	if r[1].StrategyReturn != 0 {
		t.Errorf("row 1 gross = %v, want 0", r[1].StrategyReturn)
	}
	if !almostEqual(r[1].Cost, c, 1e-15) {
		t.Errorf("row 1 cost = %v, want %v", r[1].Cost, c)
	}

	// row 2: long earns rY - 2*rX
	rY, rX := 101.0/102-1, 51/50.5-1
	if !almostEqual(r[2].StrategyReturn, rY-2*rX, 1e-12) {
		t.Errorf("row 2 gross = %v, want %v", r[2].StrategyReturn, rY-2*rX)
	}
	if r[2].Cost != 0 {
		t.Errorf("row 2 cost = %v, want 0", r[2].Cost)
	}

	// row 3: still long for the return, reversal costs two units
	rY, rX = 103.0/101-1, 50.0/51-1
	if !almostEqual(r[3].StrategyReturn, rY-2*rX, 1e-12) {
		t.Errorf("row 3 gross = %v, want %v", r[3].StrategyReturn, rY-2*rX)
	}
	if !almostEqual(r[3].Cost, 2*c, 1e-15) {
		t.Errorf("row 3 cost = %v, want %v", r[3].Cost, 2*c)
	}

	want := 1.0
	for i := range r {
		want *= 1 + r[i].StrategyReturn - r[i].Cost
		if !almostEqual(r[i].Equity, want, 1e-12) {
			t.Errorf("row %d equity = %v, want %v", i, r[i].Equity, want)
		}
	}
}

func TestRun_ZeroReturns(t *testing.T) {
	n := 10
	y := make([]float64, n)
	x := make([]float64, n)
	pos := make([]strategy.Position, n)
	for i := range y {
		y[i], x[i] = 100, 40
	}
	rows, steps := fixture(y, x, 1.5, pos)

	res, err := Run(rows, steps, EngineConfig{TransactionCostRate: DefaultTransactionCostRate})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, r := range res.Rows {
		if r.Equity != 1 {
			t.Errorf("row %d equity = %v, want 1", i, r.Equity)
		}
	}
	if res.Metrics.MaxDrawdown != 0 {
		t.Errorf("max drawdown = %v, want 0", res.Metrics.MaxDrawdown)
	}
	if res.Metrics.TotalReturn != 0 {
		t.Errorf("total return = %v, want 0", res.Metrics.TotalReturn)
	}
	if !math.IsNaN(res.Metrics.SharpeRatio) {
		t.Errorf("sharpe of a flat curve = %v, want NaN", res.Metrics.SharpeRatio)
	}
}

func TestRun_NoLookAhead(t *testing.T) {
	y := []float64{100, 101, 99, 102, 104, 103, 105, 104}
	x := []float64{50, 50.2, 49.8, 51, 51.5, 51.2, 52, 51.9}
	pos := []strategy.Position{0, 1, 1, -1, -1, 0, 1, 0}
	rows, steps := fixture(y, x, 1.8, pos)

	base, err := Run(rows, steps, EngineConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for k := range rows {
		perturbedRows := append([]spread.Row(nil), rows...)
		perturbedSteps := append([]strategy.Step(nil), steps...)
		if perturbedSteps[k].Position == strategy.Flat {
			perturbedSteps[k].Position = strategy.LongSpread
		} else {
			perturbedSteps[k].Position = strategy.Flat
		}
		perturbedRows[k].Fitted = spread.Coefficients{Intercept: 99, Slope: -7}

		got, err := Run(perturbedRows, perturbedSteps, EngineConfig{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		for i := 0; i <= k; i++ {
			if got.Rows[i].StrategyReturn != base.Rows[i].StrategyReturn {
				t.Errorf("changing step %d altered gross return at %d", k, i)
			}
		}
	}
}

func TestRun_UndefinedHedgeWhileHeld(t *testing.T) {
	y := []float64{100, 101, 103, 102}
	x := []float64{50, 51, 52, 51}
	pos := []strategy.Position{1, 1, 1, 0}
	rows, steps := fixture(y, x, 1, pos)
	rows[2].Applied = spread.Coefficients{Intercept: math.NaN(), Slope: math.NaN()}
	rows[2].Status = spread.StatusDegenerateRegression

	res, err := Run(rows, steps, EngineConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Rows[2].Excluded || res.Rows[2].StrategyReturn != 0 {
		t.Errorf("row 2: excluded=%v gross=%v", res.Rows[2].Excluded, res.Rows[2].StrategyReturn)
	}
	for i, r := range res.Rows {
		if math.IsNaN(r.Equity) {
			t.Fatalf("row %d: NaN equity", i)
		}
	}
	if res.Metrics.ExcludedPeriods != 1 {
		t.Errorf("excluded periods = %d, want 1", res.Metrics.ExcludedPeriods)
	}
}

func TestRun_NonPositivePriceExcluded(t *testing.T) {
	y := []float64{100, 101, 102, 103}
	x := []float64{50, 0, 51, 52}
	pos := []strategy.Position{1, 1, 1, 1}
	rows, steps := fixture(y, x, 1, pos)

	res, err := Run(rows, steps, EngineConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, r := range res.Rows {
		if !isFinite(r.Equity) || !isFinite(r.StrategyReturnNet) {
			t.Fatalf("row %d: non-finite equity %v", i, r.Equity)
		}
	}
	for _, i := range []int{1, 2} {
		r := res.Rows[i]
		if !r.Excluded || r.StrategyReturn != 0 || !math.IsNaN(r.ReturnX) {
			t.Errorf("row %d = %+v, want excluded with NaN x return", i, r)
		}
	}
	if res.Rows[3].Excluded {
		t.Errorf("row 3 must be evaluated")
	}
	if res.Metrics.ExcludedPeriods != 2 || !isFinite(res.Metrics.TotalReturn) || !isFinite(res.Metrics.MaxDrawdown) {
		t.Errorf("metrics = %+v", res.Metrics)
	}
}

func TestRun_Warmup(t *testing.T) {
	y := []float64{100, 200, 300, 100, 101, 102}
	x := []float64{10, 20, 30, 10, 10, 10}
	pos := []strategy.Position{1, -1, 1, 1, 1, 1}
	rows, steps := fixture(y, x, 0, pos)

	res, err := Run(rows, steps, EngineConfig{WarmupWindow: 3, TransactionCostRate: 0.01})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("kept rows = %d, want 3", len(res.Rows))
	}
	first := res.Rows[0]
	if !first.Time.Equal(day(3)) || first.ReturnY != 0 || first.Cost != 0 || first.Equity != 1 {
		t.Errorf("first kept row must start fresh: %+v", first)
	}
	if !almostEqual(res.Rows[1].StrategyReturn, 0.01, 1e-12) {
		t.Errorf("row 1 gross = %v, want 0.01", res.Rows[1].StrategyReturn)
	}
}

func TestRun_Errors(t *testing.T) {
	rows, steps := fixture([]float64{1, 2}, []float64{1, 2}, 1, []strategy.Position{0, 0})

	tests := []struct {
		name  string
		rows  []spread.Row
		steps []strategy.Step
		cfg   EngineConfig
		want  error
	}{
		{"length mismatch", rows, steps[:1], EngineConfig{}, ErrInvalidParameter},
		{"negative cost", rows, steps, EngineConfig{TransactionCostRate: -1}, ErrInvalidParameter},
		{"negative warm-up", rows, steps, EngineConfig{WarmupWindow: -1}, ErrInvalidParameter},
		{"warm-up consumes all", rows, steps, EngineConfig{WarmupWindow: 2}, ErrInsufficientHistory},
		{"empty", nil, nil, EngineConfig{}, ErrInsufficientHistory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(tt.rows, tt.steps, tt.cfg)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
