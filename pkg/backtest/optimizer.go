package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/quantlink-pairs/pkg/pricedata"
)

// OptimizationGoal defines the optimization objective
type OptimizationGoal string

const (
	GoalSharpeRatio OptimizationGoal = "sharpe"
	GoalTotalReturn OptimizationGoal = "return"
	GoalCalmarRatio OptimizationGoal = "calmar"
	// GoalDrawdown prefers the shallowest drawdown (MaxDrawdown closest to 0)
	GoalDrawdown OptimizationGoal = "drawdown"
)

// ParseGoal validates a goal name
func ParseGoal(s string) (OptimizationGoal, error) {
	switch g := OptimizationGoal(s); g {
	case GoalSharpeRatio, GoalTotalReturn, GoalCalmarRatio, GoalDrawdown:
		return g, nil
	}
	return "", fmt.Errorf("%w: unknown optimization goal %q", ErrInvalidParameter, s)
}

// Score extracts the objective from a metrics set; higher is better
func (g OptimizationGoal) Score(m Metrics) float64 {
	switch g {
	case GoalTotalReturn:
		return m.TotalReturn
	case GoalCalmarRatio:
		return m.CalmarRatio
	case GoalDrawdown:
		return m.MaxDrawdown
	default:
		return m.SharpeRatio
	}
}

// OptimizationResult stores the result of a single parameter combination
type OptimizationResult struct {
	Parameters map[string]float64
	Metrics    Metrics
	Rank       int
	Score      float64
}

// ParameterOptimizer performs parameter optimization using grid search
type ParameterOptimizer struct {
	base       StrategySettings
	engine     EngineConfig
	grid       map[string][]float64
	goal       OptimizationGoal
	maxWorkers int
	logger     *zap.Logger
}

// NewParameterOptimizer creates a new parameter optimizer around a base strategy
func NewParameterOptimizer(base StrategySettings, engine EngineConfig, logger *zap.Logger) *ParameterOptimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParameterOptimizer{
		base:       base,
		engine:     engine,
		grid:       make(map[string][]float64),
		goal:       GoalSharpeRatio,
		maxWorkers: 4,
		logger:     logger.Named("optimizer"),
	}
}

// AddParamValues sets the candidate values of one tunable parameter
func (opt *ParameterOptimizer) AddParamValues(name string, values ...float64) error {
	if !isGridParameter(name) {
		return fmt.Errorf("%w: unknown grid parameter %q", ErrInvalidParameter, name)
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: grid parameter %q has no values", ErrInvalidParameter, name)
	}
	for _, v := range values {
		if !validGridValue(name, v) {
			return fmt.Errorf("%w: grid parameter %q value %v must be an integer", ErrInvalidParameter, name, v)
		}
	}
	opt.grid[name] = append([]float64(nil), values...)
	return nil
}

// SetOptimizationGoal sets the optimization objective
func (opt *ParameterOptimizer) SetOptimizationGoal(goal OptimizationGoal) {
	opt.goal = goal
}

// SetMaxWorkers sets the maximum number of parallel workers
func (opt *ParameterOptimizer) SetMaxWorkers(workers int) {
	if workers < 1 {
		workers = 1
	}
	if workers > 16 {
		workers = 16
	}
	opt.maxWorkers = workers
}

// GridSearch evaluates every combination on train and returns the successful
// ones ranked best first. Combinations that fail to build or simulate (for
// example exit >= entry) are logged and skipped.
func (opt *ParameterOptimizer) GridSearch(ctx context.Context, train *pricedata.Series) ([]*OptimizationResult, error) {
	combinations := opt.generateCombinations()
	total := len(combinations)
	if total == 0 {
		return nil, fmt.Errorf("%w: no parameter combinations to test", ErrInvalidParameter)
	}

	opt.logger.Info("starting grid search",
		zap.String("strategy", opt.base.Name),
		zap.String("goal", string(opt.goal)),
		zap.Int("workers", opt.maxWorkers),
		zap.Int("combinations", total))

	slots := make([]*OptimizationResult, total)
	var done atomic.Int64
	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opt.maxWorkers)
	for i, params := range combinations {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := opt.runBacktestWithParams(params, train)
			if err != nil {
				opt.logger.Warn("combination skipped",
					zap.Int("index", i+1),
					zap.Any("params", params),
					zap.Error(err))
				return nil
			}
			slots[i] = result
			opt.logger.Debug("combination evaluated",
				zap.Int64("done", done.Add(1)),
				zap.Int("total", total),
				zap.Float64("score", result.Score))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]*OptimizationResult, 0, total)
	for _, r := range slots {
		if r != nil {
			results = append(results, r)
		}
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: every parameter combination failed", ErrInvalidParameter)
	}
	RankResults(results)

	opt.logger.Info("grid search completed",
		zap.Duration("elapsed", time.Since(startTime)),
		zap.Int("successful", len(results)),
		zap.Int("total", total))
	for _, r := range GetTopNResults(results, 5) {
		opt.logger.Info("top combination",
			zap.Int("rank", r.Rank),
			zap.Float64("score", r.Score),
			zap.Float64("sharpe", r.Metrics.SharpeRatio),
			zap.Float64("total_return", r.Metrics.TotalReturn),
			zap.Any("params", r.Parameters))
	}

	return results, nil
}

// Verify refits the tuned strategy on train and evaluates it on test
func (opt *ParameterOptimizer) Verify(best *OptimizationResult, train, test *pricedata.Series) (*Result, error) {
	settings := opt.base.WithParameters(best.Parameters)
	ps, err := settings.Build()
	if err != nil {
		return nil, err
	}
	if err := ps.Fit(train); err != nil {
		return nil, err
	}
	res, err := Evaluate(ps, test, opt.engine)
	if err != nil {
		return nil, err
	}
	res.Phase = PhaseTest

	opt.logger.Info("verification",
		zap.Any("params", best.Parameters),
		zap.Float64("train_score", best.Score),
		zap.Float64("test_score", opt.goal.Score(res.Metrics)),
		zap.Float64("test_sharpe", res.Metrics.SharpeRatio),
		zap.Float64("test_total_return", res.Metrics.TotalReturn))
	return res, nil
}

// RankResults sorts by score descending with NaN last and assigns ranks.
// Ties keep their combination order.
func RankResults(results []*OptimizationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return better(results[i].Score, results[j].Score)
	})
	for i, result := range results {
		result.Rank = i + 1
	}
}

func better(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	return a > b
}

// generateCombinations generates all parameter combinations
func (opt *ParameterOptimizer) generateCombinations() []map[string]float64 {
	// Get sorted parameter names for consistent ordering
	paramNames := make([]string, 0, len(opt.grid))
	for name := range opt.grid {
		paramNames = append(paramNames, name)
	}
	sort.Strings(paramNames)

	paramValues := make([][]float64, len(paramNames))
	for i, name := range paramNames {
		paramValues[i] = opt.grid[name]
	}

	combinations := make([]map[string]float64, 0)
	if len(paramNames) == 0 {
		return combinations
	}
	opt.generateCombinationsRecursive(paramNames, paramValues, 0, make(map[string]float64), &combinations)
	return combinations
}

// generateCombinationsRecursive recursively generates combinations
func (opt *ParameterOptimizer) generateCombinationsRecursive(
	paramNames []string,
	paramValues [][]float64,
	depth int,
	current map[string]float64,
	result *[]map[string]float64,
) {
	if depth == len(paramNames) {
		combo := make(map[string]float64, len(current))
		for k, v := range current {
			combo[k] = v
		}
		*result = append(*result, combo)
		return
	}

	paramName := paramNames[depth]
	for _, value := range paramValues[depth] {
		current[paramName] = value
		opt.generateCombinationsRecursive(paramNames, paramValues, depth+1, current, result)
	}
}

// runBacktestWithParams fits and evaluates one combination on train
func (opt *ParameterOptimizer) runBacktestWithParams(params map[string]float64, train *pricedata.Series) (*OptimizationResult, error) {
	settings := opt.base.WithParameters(params)
	ps, err := settings.Build()
	if err != nil {
		return nil, err
	}
	if err := ps.Fit(train); err != nil {
		return nil, err
	}
	res, err := Evaluate(ps, train, opt.engine)
	if err != nil {
		return nil, err
	}

	return &OptimizationResult{
		Parameters: params,
		Metrics:    res.Metrics,
		Score:      opt.goal.Score(res.Metrics),
	}, nil
}

// GetBestResult returns the best optimization result
func GetBestResult(results []*OptimizationResult) *OptimizationResult {
	if len(results) == 0 {
		return nil
	}
	return results[0]
}

// GetTopNResults returns the top N results
func GetTopNResults(results []*OptimizationResult, n int) []*OptimizationResult {
	if n > len(results) {
		n = len(results)
	}
	if n < 0 {
		n = 0
	}
	return results[:n]
}
