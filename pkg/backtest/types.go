package backtest

import (
	"time"

	"github.com/yourusername/quantlink-pairs/pkg/strategy"
	"github.com/yourusername/quantlink-pairs/pkg/strategy/spread"
)

// Row is one period of the simulated pair book
type Row struct {
	Time   time.Time
	PriceY float64
	PriceX float64

	HedgeRatio float64 // slope applied at this row
	Spread     float64
	ZScore     float64
	Status     spread.Status
	Signal     strategy.Signal
	Position   strategy.Position

	ReturnY           float64
	ReturnX           float64
	StrategyReturn    float64 // gross
	Cost              float64
	StrategyReturnNet float64
	Equity            float64

	// Excluded marks a period where a position was held but the hedge ratio
	// or a leg return was undefined; it earns zero gross return.
	Excluded bool
}

// Metrics summarises an equity curve
type Metrics struct {
	Periods int     `json:"periods"`
	Days    float64 `json:"days"`
	Years   float64 `json:"years"`

	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"` // CAGR
	AverageReturn    float64 `json:"average_return"`
	Volatility       float64 `json:"volatility"` // per-period sample std
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	CalmarRatio      float64 `json:"calmar_ratio"`

	MaxDrawdown         float64       `json:"max_drawdown"` // <= 0
	MaxDrawdownDuration time.Duration `json:"max_drawdown_duration"`

	TradeCount      float64 `json:"trade_count"`
	OpenAtEnd       bool    `json:"open_at_end"`
	Exposure        float64 `json:"exposure"`
	TotalCost       float64 `json:"total_cost"`
	ExcludedPeriods int     `json:"excluded_periods"`
}

// Result is the output of one engine run
type Result struct {
	Strategy string
	Method   spread.Method
	Phase    string

	Rows    []Row
	Metrics Metrics
}

// Equity returns the equity column
func (r *Result) Equity() []float64 {
	out := make([]float64, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.Equity
	}
	return out
}

// Start returns the first kept timestamp
func (r *Result) Start() time.Time {
	if len(r.Rows) == 0 {
		return time.Time{}
	}
	return r.Rows[0].Time
}

// End returns the last kept timestamp
func (r *Result) End() time.Time {
	if len(r.Rows) == 0 {
		return time.Time{}
	}
	return r.Rows[len(r.Rows)-1].Time
}
