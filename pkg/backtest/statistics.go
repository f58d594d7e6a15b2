package backtest

import (
	"math"
	"time"

	"github.com/yourusername/quantlink-pairs/pkg/stats"
	"github.com/yourusername/quantlink-pairs/pkg/strategy"
)

const (
	// TradingDaysPerYear annualises per-period ratios
	TradingDaysPerYear = 252

	daysPerYear = 365.25
)

// CalculateMetrics computes performance metrics over simulated rows.
//
// Ratios whose denominator is zero are reported as ±Inf (NaN when the
// numerator is zero too) rather than clamped, so a degenerate curve stays
// visible in reports.
func CalculateMetrics(rows []Row) Metrics {
	m := Metrics{Periods: len(rows)}
	if len(rows) == 0 {
		m.TotalReturn = math.NaN()
		m.AnnualizedReturn = math.NaN()
		m.SharpeRatio = math.NaN()
		m.SortinoRatio = math.NaN()
		m.CalmarRatio = math.NaN()
		return m
	}

	returns := make([]float64, len(rows))
	equity := make([]float64, len(rows))
	for i, r := range rows {
		returns[i] = r.StrategyReturnNet
		equity[i] = r.Equity
		m.TotalCost += r.Cost
		if r.Excluded {
			m.ExcludedPeriods++
		}
	}

	m.Days = rows[len(rows)-1].Time.Sub(rows[0].Time).Hours() / 24
	m.Years = m.Days / daysPerYear

	m.TotalReturn = equity[len(equity)-1] - 1
	if m.Years > 0 {
		m.AnnualizedReturn = math.Pow(1+m.TotalReturn, 1/m.Years) - 1
	} else {
		m.AnnualizedReturn = math.NaN()
	}

	m.AverageReturn = stats.Mean(returns)
	m.Volatility = stats.StdDev(returns)
	m.SharpeRatio = math.NaN()
	if len(returns) >= 2 {
		m.SharpeRatio = ratio(m.AverageReturn, m.Volatility) * math.Sqrt(TradingDaysPerYear)
	}
	m.SortinoRatio = sortino(returns, m.AverageReturn)

	m.MaxDrawdown, m.MaxDrawdownDuration = maxDrawdown(rows, equity)
	m.CalmarRatio = ratio(m.AnnualizedReturn, math.Abs(m.MaxDrawdown))

	m.TradeCount, m.OpenAtEnd, m.Exposure = tradeStats(rows)
	return m
}

// ratio divides num by den, mapping a zero denominator onto ±Inf or NaN
func ratio(num, den float64) float64 {
	if math.IsNaN(num) || math.IsNaN(den) {
		return math.NaN()
	}
	if den == 0 {
		switch {
		case num > 0:
			return math.Inf(1)
		case num < 0:
			return math.Inf(-1)
		default:
			return math.NaN()
		}
	}
	return num / den
}

// sortino uses the downside deviation sqrt(Σ min(r,0)² / (n-1))
func sortino(returns []float64, mean float64) float64 {
	if len(returns) < 2 {
		return math.NaN()
	}
	var sumSquares float64
	for _, r := range returns {
		if r < 0 {
			sumSquares += r * r
		}
	}
	downside := math.Sqrt(sumSquares / float64(len(returns)-1))
	return ratio(mean, downside) * math.Sqrt(TradingDaysPerYear)
}

// maxDrawdown returns the deepest (equity-peak)/peak and the time from
// that peak to the trough
func maxDrawdown(rows []Row, equity []float64) (float64, time.Duration) {
	peaks := stats.RunningMax(equity)

	var (
		worst    float64
		duration time.Duration
		peakTime = rows[0].Time
	)
	for i, e := range equity {
		if e >= peaks[i] {
			peakTime = rows[i].Time
			continue
		}
		dd := (e - peaks[i]) / peaks[i]
		if dd < worst {
			worst = dd
			duration = rows[i].Time.Sub(peakTime)
		}
	}
	return worst, duration
}

// tradeStats counts round trips as Σ|Δposition|/2; a reversal counts as one
// exit plus one entry. A trailing open position leaves a half trade.
func tradeStats(rows []Row) (trades float64, openAtEnd bool, exposure float64) {
	var changes float64
	var held int
	for i, r := range rows {
		if r.Position != strategy.Flat {
			held++
		}
		if i > 0 {
			changes += math.Abs(float64(r.Position - rows[i-1].Position))
		}
	}
	trades = changes / 2
	openAtEnd = rows[len(rows)-1].Position != strategy.Flat
	exposure = float64(held) / float64(len(rows))
	return trades, openAtEnd, exposure
}
