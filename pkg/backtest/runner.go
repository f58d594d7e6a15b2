package backtest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/quantlink-pairs/pkg/pricedata"
	"github.com/yourusername/quantlink-pairs/pkg/stats"
	"github.com/yourusername/quantlink-pairs/pkg/strategy"
)

// Phase names
const (
	PhaseTrain = "train"
	PhaseTest  = "test"
)

// Evaluate runs an already fitted strategy over series and simulates it
func Evaluate(ps *strategy.PairStrategy, series *pricedata.Series, cfg EngineConfig) (*Result, error) {
	sig, err := ps.Signals(series)
	if err != nil {
		return nil, err
	}
	res, err := Run(sig.Estimates.Rows, sig.Steps, cfg)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", ps.Name, err)
	}
	res.Strategy = ps.Name
	res.Method = ps.Estimator.Method()
	return res, nil
}

// PhaseResults holds every strategy's result for one phase, in config order
type PhaseResults struct {
	Phase   string
	Start   time.Time
	End     time.Time
	Results []*Result
}

// Comparison is the outcome of a train/test run
type Comparison struct {
	Train *PhaseResults
	Test  *PhaseResults
}

// BacktestRunner fits every configured strategy on the train phase and
// evaluates it on both phases
type BacktestRunner struct {
	config    *BacktestConfig
	series    *pricedata.Series
	logger    *zap.Logger
	recorder  *Recorder
	publisher Publisher
}

// RunnerOption configures a BacktestRunner
type RunnerOption func(*BacktestRunner)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *BacktestRunner) { r.logger = l }
}

// WithRecorder enables Prometheus instrumentation
func WithRecorder(rec *Recorder) RunnerOption {
	return func(r *BacktestRunner) { r.recorder = rec }
}

// WithPublisher publishes each result summary
func WithPublisher(p Publisher) RunnerOption {
	return func(r *BacktestRunner) { r.publisher = p }
}

// NewBacktestRunner creates a runner over the full loaded series
func NewBacktestRunner(config *BacktestConfig, series *pricedata.Series, opts ...RunnerOption) (*BacktestRunner, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("price series: %w", err)
	}

	r := &BacktestRunner{
		config: config,
		series: series,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("runner")
	return r, nil
}

// PhaseData returns the rows inside a phase's date range
func (r *BacktestRunner) PhaseData(phase string) (*pricedata.Series, error) {
	settings := r.config.Backtest.Train
	if phase == PhaseTest {
		settings = r.config.Backtest.Test
	}
	start, end, err := settings.Range()
	if err != nil {
		return nil, fmt.Errorf("%s phase: %w", phase, err)
	}

	data := r.series.Between(start, end)
	if data.Len() == 0 {
		return nil, fmt.Errorf("%s phase %s..%s: %w", phase, settings.StartDate, settings.EndDate, ErrEmptyInput)
	}
	return data, nil
}

// Run executes the train/test comparison
func (r *BacktestRunner) Run(ctx context.Context) (*Comparison, error) {
	train, err := r.PhaseData(PhaseTrain)
	if err != nil {
		return nil, err
	}
	test, err := r.PhaseData(PhaseTest)
	if err != nil {
		return nil, err
	}

	r.logger.Info("phases loaded",
		zap.Int("train_rows", train.Len()),
		zap.Int("test_rows", test.Len()),
		zap.Float64("train_correlation", stats.Correlation(train.X, train.Y)),
		zap.Int("strategies", len(r.config.Strategies)))

	cmp := &Comparison{
		Train: &PhaseResults{Phase: PhaseTrain, Start: train.Dates[0], End: train.Dates[train.Len()-1]},
		Test:  &PhaseResults{Phase: PhaseTest, Start: test.Dates[0], End: test.Dates[test.Len()-1]},
	}

	for _, settings := range r.config.Strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ps, err := settings.Build()
		if err != nil {
			return nil, err
		}
		if err := ps.Fit(train); err != nil {
			r.recordFailure(settings.Name, PhaseTrain)
			return nil, err
		}

		for _, phase := range []struct {
			out  *PhaseResults
			data *pricedata.Series
		}{{cmp.Train, train}, {cmp.Test, test}} {
			res, err := r.evaluate(ctx, ps, phase.out.Phase, phase.data)
			if err != nil {
				return nil, err
			}
			phase.out.Results = append(phase.out.Results, res)
		}
	}

	return cmp, nil
}

func (r *BacktestRunner) evaluate(ctx context.Context, ps *strategy.PairStrategy, phase string, data *pricedata.Series) (*Result, error) {
	started := time.Now()
	res, err := Evaluate(ps, data, r.config.EngineConfig())
	if err != nil {
		r.recordFailure(ps.Name, phase)
		return nil, fmt.Errorf("%s phase: %w", phase, err)
	}
	res.Phase = phase
	elapsed := time.Since(started)

	m := res.Metrics
	r.logger.Info("strategy evaluated",
		zap.String("strategy", res.Strategy),
		zap.String("method", string(res.Method)),
		zap.String("phase", phase),
		zap.Int("periods", m.Periods),
		zap.Float64("trades", m.TradeCount),
		zap.Bool("open_at_end", m.OpenAtEnd),
		zap.Float64("total_return", m.TotalReturn),
		zap.Float64("cagr", m.AnnualizedReturn),
		zap.Float64("sharpe", m.SharpeRatio),
		zap.Float64("max_drawdown", m.MaxDrawdown),
		zap.Duration("elapsed", elapsed))

	if m.ExcludedPeriods > 0 {
		r.logger.Warn("periods without a hedge ratio while positioned",
			zap.String("strategy", res.Strategy),
			zap.String("phase", phase),
			zap.Int("excluded", m.ExcludedPeriods))
	}

	if r.recorder != nil {
		r.recorder.ObserveResult(res, elapsed)
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, r.config.Backtest.Name, res); err != nil {
			// results are still written locally
			r.logger.Error("publish failed", zap.String("strategy", res.Strategy), zap.Error(err))
		}
	}
	return res, nil
}

func (r *BacktestRunner) recordFailure(strategyName, phase string) {
	if r.recorder != nil {
		r.recorder.ObserveFailure(strategyName, phase)
	}
}
