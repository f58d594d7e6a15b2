package backtest

import (
	"fmt"
	"math"

	"github.com/yourusername/quantlink-pairs/pkg/strategy"
	"github.com/yourusername/quantlink-pairs/pkg/strategy/spread"
)

// DefaultTransactionCostRate is charged per unit of position change
const DefaultTransactionCostRate = 0.0005

// EngineConfig controls a single simulation
type EngineConfig struct {
	TransactionCostRate float64
	WarmupWindow        int
}

// Validate checks the engine parameters
func (c EngineConfig) Validate() error {
	if c.TransactionCostRate < 0 || math.IsNaN(c.TransactionCostRate) || math.IsInf(c.TransactionCostRate, 0) {
		return fmt.Errorf("%w: transaction cost rate must be finite and >= 0, got %v", ErrInvalidParameter, c.TransactionCostRate)
	}
	if c.WarmupWindow < 0 {
		return fmt.Errorf("%w: warm-up window must be >= 0, got %d", ErrInvalidParameter, c.WarmupWindow)
	}
	return nil
}

// Run simulates the pair book over estimates and their positions.
//
// The first WarmupWindow rows are dropped. On every kept row t after the
// first, the position held since t-1 earns
//
//	pos[t-1] * (rY[t] - hedge[t]*rX[t])
//
// where hedge[t] is the slope fixed before the prices of t were seen. Cost
// is charged on |pos[t]-pos[t-1]| and equity compounds from 1.
func Run(rows []spread.Row, steps []strategy.Step, cfg EngineConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(rows) != len(steps) {
		return nil, fmt.Errorf("%w: %d estimate rows but %d steps", ErrInvalidParameter, len(rows), len(steps))
	}
	if len(rows) <= cfg.WarmupWindow {
		return nil, fmt.Errorf("%w: %d rows with warm-up window %d", ErrInsufficientHistory, len(rows), cfg.WarmupWindow)
	}

	rows, steps = rows[cfg.WarmupWindow:], steps[cfg.WarmupWindow:]
	out := make([]Row, len(rows))

	equity := 1.0
	for t := range rows {
		est, step := rows[t], steps[t]
		r := Row{
			Time:       est.Time,
			PriceY:     est.PriceY,
			PriceX:     est.PriceX,
			HedgeRatio: est.HedgeRatio(),
			Spread:     est.Spread,
			ZScore:     est.ZScore,
			Status:     est.Status,
			Signal:     step.Signal,
			Position:   step.Position,
		}

		if t > 0 {
			prev := rows[t-1]
			held := steps[t-1].Position

			r.ReturnY = simpleReturn(prev.PriceY, est.PriceY)
			r.ReturnX = simpleReturn(prev.PriceX, est.PriceX)

			if held != strategy.Flat {
				if isFinite(r.HedgeRatio) && isFinite(r.ReturnY) && isFinite(r.ReturnX) {
					r.StrategyReturn = float64(held) * (r.ReturnY - r.HedgeRatio*r.ReturnX)
				} else {
					r.Excluded = true
				}
			}
			r.Cost = math.Abs(float64(step.Position-held)) * cfg.TransactionCostRate
		}

		r.StrategyReturnNet = r.StrategyReturn - r.Cost
		equity *= 1 + r.StrategyReturnNet
		r.Equity = equity
		out[t] = r
	}

	return &Result{Rows: out, Metrics: CalculateMetrics(out)}, nil
}

// simpleReturn is NaN unless both closes are positive and finite
func simpleReturn(prev, cur float64) float64 {
	if !(prev > 0 && cur > 0) || !isFinite(prev) || !isFinite(cur) {
		return math.NaN()
	}
	return cur/prev - 1
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
