package backtest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// OptimalParams represents the tuned parameters of one strategy
type OptimalParams struct {
	// Metadata
	GeneratedAt      time.Time `yaml:"generated_at"`
	TrainPeriod      string    `yaml:"train_period"`
	TestPeriod       string    `yaml:"test_period"`
	OptimizationGoal string    `yaml:"optimization_goal"`

	Strategy StrategyInfo `yaml:"strategy"`

	// Optimized parameters
	Parameters map[string]float64 `yaml:"parameters"`

	Train PerformanceMetrics `yaml:"train"`
	Test  PerformanceMetrics `yaml:"test"`
}

// StrategyInfo contains strategy identification
type StrategyInfo struct {
	Name    string `yaml:"name" json:"name"`
	Type    string `yaml:"type" json:"type"`
	TickerY string `yaml:"ticker_y" json:"ticker_y"`
	TickerX string `yaml:"ticker_x" json:"ticker_x"`
}

// PerformanceMetrics contains backtest performance
type PerformanceMetrics struct {
	SharpeRatio      float64 `yaml:"sharpe_ratio"`
	SortinoRatio     float64 `yaml:"sortino_ratio"`
	CalmarRatio      float64 `yaml:"calmar_ratio"`
	MaxDrawdown      float64 `yaml:"max_drawdown"`
	TotalReturn      float64 `yaml:"total_return"`
	AnnualizedReturn float64 `yaml:"annualized_return"`
	TradeCount       float64 `yaml:"trade_count"`
	Exposure         float64 `yaml:"exposure"`
}

func newPerformanceMetrics(m Metrics) PerformanceMetrics {
	return PerformanceMetrics{
		SharpeRatio:      m.SharpeRatio,
		SortinoRatio:     m.SortinoRatio,
		CalmarRatio:      m.CalmarRatio,
		MaxDrawdown:      m.MaxDrawdown,
		TotalReturn:      m.TotalReturn,
		AnnualizedReturn: m.AnnualizedReturn,
		TradeCount:       m.TradeCount,
		Exposure:         m.Exposure,
	}
}

// Settings applies the tuned parameters onto base
func (p *OptimalParams) Settings(base StrategySettings) StrategySettings {
	return base.WithParameters(p.Parameters)
}

// ParamExporter exports optimized parameters
type ParamExporter struct {
	outputDir string
	now       func() time.Time
}

// NewParamExporter creates a new parameter exporter
func NewParamExporter(outputDir string) *ParamExporter {
	return &ParamExporter{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// ExportOptimalParams writes the best combination and its verification to YAML
func (e *ParamExporter) ExportOptimalParams(
	config *BacktestConfig,
	settings StrategySettings,
	best *OptimizationResult,
	verification *Result,
	goal OptimizationGoal,
) (string, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create output directory")
	}

	tuned := settings.WithParameters(best.Parameters)
	params := &OptimalParams{
		GeneratedAt:      e.now(),
		TrainPeriod:      period(config.Backtest.Train),
		TestPeriod:       period(config.Backtest.Test),
		OptimizationGoal: string(goal),
		Strategy:         strategyInfo(config, tuned),
		Parameters:       tuned.Parameters(),
		Train:            newPerformanceMetrics(best.Metrics),
	}
	if verification != nil {
		params.Test = newPerformanceMetrics(verification.Metrics)
	}

	filename := fmt.Sprintf("optimal_params_%s_%s.yaml",
		fileToken(settings.Name), e.now().Format("20060102"))
	path := filepath.Join(e.outputDir, filename)

	data, err := yaml.Marshal(params)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal parameters")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write parameters file")
	}
	return path, nil
}

type jsonOptimizationResult struct {
	Rank       int                `json:"rank"`
	Score      jsonFloat          `json:"score"`
	Parameters map[string]float64 `json:"parameters"`
	Metrics    jsonMetrics        `json:"metrics"`
}

// ExportOptimizationResults writes every ranked combination to JSON
func (e *ParamExporter) ExportOptimizationResults(
	config *BacktestConfig,
	settings StrategySettings,
	results []*OptimizationResult,
	goal OptimizationGoal,
) (string, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create output directory")
	}

	export := struct {
		GeneratedAt      time.Time                `json:"generated_at"`
		OptimizationGoal string                   `json:"optimization_goal"`
		TrainPeriod      string                   `json:"train_period"`
		Strategy         StrategyInfo             `json:"strategy"`
		TotalTests       int                      `json:"total_tests"`
		Results          []jsonOptimizationResult `json:"results"`
	}{
		GeneratedAt:      e.now(),
		OptimizationGoal: string(goal),
		TrainPeriod:      period(config.Backtest.Train),
		Strategy:         strategyInfo(config, settings),
		TotalTests:       len(results),
	}
	for _, r := range results {
		export.Results = append(export.Results, jsonOptimizationResult{
			Rank:       r.Rank,
			Score:      jsonFloat(r.Score),
			Parameters: r.Parameters,
			Metrics:    newJSONMetrics(r.Metrics),
		})
	}

	filename := fmt.Sprintf("optimization_results_%s_%s.json",
		fileToken(settings.Name), e.now().Format("20060102_150405"))
	path := filepath.Join(e.outputDir, filename)

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal results")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write results file")
	}
	return path, nil
}

// LoadOptimalParams loads optimal parameters from file
func LoadOptimalParams(path string) (*OptimalParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read parameters file")
	}

	var params OptimalParams
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, errors.Wrap(err, "failed to parse parameters")
	}
	for name, v := range params.Parameters {
		if !isGridParameter(name) {
			return nil, fmt.Errorf("%w: unknown parameter %q in %s", ErrInvalidConfig, name, path)
		}
		if !validGridValue(name, v) {
			return nil, fmt.Errorf("%w: parameter %q value %v must be an integer in %s", ErrInvalidConfig, name, v, path)
		}
	}
	return &params, nil
}

// CompareParams renders a baseline against a new parameter set
func CompareParams(baseline, current *OptimalParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Parameter Comparison\n")
	fmt.Fprintf(&b, "====================\n\n")
	fmt.Fprintf(&b, "Strategy: %s (%s)\n\n", current.Strategy.Name, current.Strategy.Type)

	fmt.Fprintf(&b, "Train Metrics:\n")
	fmt.Fprintf(&b, "  Sharpe Ratio:      %s -> %s\n",
		formatRatio(baseline.Train.SharpeRatio), formatRatio(current.Train.SharpeRatio))
	fmt.Fprintf(&b, "  Total Return:      %s -> %s\n",
		formatPercent(baseline.Train.TotalReturn), formatPercent(current.Train.TotalReturn))
	fmt.Fprintf(&b, "  Max Drawdown:      %s -> %s\n",
		formatPercent(baseline.Train.MaxDrawdown), formatPercent(current.Train.MaxDrawdown))
	fmt.Fprintf(&b, "\n")

	fmt.Fprintf(&b, "Parameter Changes:\n")
	keys := make([]string, 0, len(current.Parameters))
	for key := range current.Parameters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		old, ok := baseline.Parameters[key]
		before := "-"
		if ok {
			before = formatFloat(old)
		}
		fmt.Fprintf(&b, "  %-20s: %s -> %s\n", key, before, formatFloat(current.Parameters[key]))
	}
	return b.String()
}

func strategyInfo(config *BacktestConfig, s StrategySettings) StrategyInfo {
	return StrategyInfo{
		Name:    s.Name,
		Type:    s.Type,
		TickerY: config.Backtest.Data.TickerY,
		TickerX: config.Backtest.Data.TickerX,
	}
}

func period(p PhaseSettings) string {
	start, end := p.StartDate, p.EndDate
	if start == "" {
		start = "beginning"
	}
	if end == "" {
		end = "end"
	}
	return start + " to " + end
}
