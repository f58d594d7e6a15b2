package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/quantlink-pairs/pkg/backtest"
	"github.com/yourusername/quantlink-pairs/pkg/logger"
)

var (
	configFile   = flag.String("config", "config/backtest.yaml", "Backtest configuration file")
	action       = flag.String("action", "optimize", "Action: optimize, compare")
	strategyName = flag.String("strategy", "", "Strategy to tune (overrides optimize.strategy)")
	params       = flag.String("params", "", "Parameter ranges (format: name:min:max:step,name:min:max:step); overrides optimize.grid")
	goal         = flag.String("goal", "", "Optimization goal: sharpe, return, calmar, drawdown (overrides config)")
	workers      = flag.Int("workers", 0, "Number of parallel workers (overrides config)")
	outputDir    = flag.String("output", "", "Output directory (overrides optimize.output)")
	topN         = flag.Int("top", 0, "Number of top results to print (overrides config)")
	currentFile  = flag.String("current", "", "Current optimal params file (for compare action)")
	baselineFile = flag.String("baseline", "", "Baseline optimal params file (for compare action)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	switch *action {
	case "optimize":
		runOptimization()
	case "compare":
		runCompare()
	default:
		log.Fatalf("Unknown action: %s", *action)
	}
}

func runOptimization() {
	config, err := backtest.LoadBacktestConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New(config.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Sync()
	lg = lg.Named("main")

	settings := config.Optimize
	if *strategyName != "" {
		settings.Strategy = *strategyName
	}
	if *goal != "" {
		settings.Goal = *goal
	}
	if *workers > 0 {
		settings.Workers = *workers
	}
	if *outputDir != "" {
		settings.Output = *outputDir
	}
	if *topN > 0 {
		settings.Top = *topN
	}
	if *params != "" {
		grid, err := parseParamRanges(*params)
		if err != nil {
			lg.Fatal("invalid -params", zap.Error(err))
		}
		settings.Grid = grid
	}

	base, ok := config.StrategyByName(settings.Strategy)
	if !ok {
		lg.Fatal("strategy to tune is not configured", zap.String("strategy", settings.Strategy))
	}
	optGoal, err := backtest.ParseGoal(settings.Goal)
	if err != nil {
		lg.Fatal("invalid goal", zap.Error(err))
	}
	if len(settings.Grid) == 0 {
		lg.Fatal("no parameters to optimize; set optimize.grid or use -params (e.g. -params entry:1:3:0.5)")
	}

	series, err := backtest.LoadSeries(config.Backtest.Data)
	if err != nil {
		lg.Fatal("failed to load price data", zap.Error(err))
	}
	runner, err := backtest.NewBacktestRunner(config, series, backtest.WithLogger(lg))
	if err != nil {
		lg.Fatal("failed to create runner", zap.Error(err))
	}
	train, err := runner.PhaseData(backtest.PhaseTrain)
	if err != nil {
		lg.Fatal("no training data", zap.Error(err))
	}
	test, err := runner.PhaseData(backtest.PhaseTest)
	if err != nil {
		lg.Fatal("no test data", zap.Error(err))
	}

	optimizer := backtest.NewParameterOptimizer(base, config.EngineConfig(), lg)
	optimizer.SetOptimizationGoal(optGoal)
	optimizer.SetMaxWorkers(settings.Workers)
	for name, values := range settings.Grid {
		if err := optimizer.AddParamValues(name, values...); err != nil {
			lg.Fatal("invalid grid", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := optimizer.GridSearch(ctx, train)
	if err != nil {
		lg.Fatal("optimization failed", zap.Error(err))
	}

	exporter := backtest.NewParamExporter(settings.Output)
	resultsFile, err := exporter.ExportOptimizationResults(config, base, results, optGoal)
	if err != nil {
		lg.Fatal("failed to export results", zap.Error(err))
	}
	lg.Info("exported all results", zap.String("path", resultsFile))

	best := backtest.GetBestResult(results)
	started := time.Now()
	verification, err := optimizer.Verify(best, train, test)
	if err != nil {
		lg.Error("verification failed", zap.Error(err))
	} else {
		publishVerification(ctx, config, lg, verification, time.Since(started))
	}

	paramFile, err := exporter.ExportOptimalParams(config, base, best, verification, optGoal)
	if err != nil {
		lg.Fatal("failed to export optimal params", zap.Error(err))
	}
	lg.Info("exported optimal params", zap.String("path", paramFile))

	printTopResults(backtest.GetTopNResults(results, settings.Top))
	printBest(best, verification)
}

func publishVerification(ctx context.Context, config *backtest.BacktestConfig, lg *zap.Logger, res *backtest.Result, elapsed time.Duration) {
	if config.Metrics.Textfile != "" {
		recorder := backtest.NewRecorder("pairs")
		recorder.ObserveResult(res, elapsed)
		if err := recorder.WriteTextfile(config.Metrics.Textfile); err != nil {
			lg.Error("failed to write metrics", zap.Error(err))
		}
	}
	if config.Engine.NATSAddr == "" {
		return
	}
	pub, err := backtest.NewNATSPublisher(config.Engine.NATSAddr, config.Engine.ResultsSubject, config.Engine.PublishTimeout)
	if err != nil {
		lg.Error("failed to connect publisher", zap.Error(err))
		return
	}
	defer pub.Close()
	if err := pub.Publish(ctx, config.Backtest.Name+"_optimized", res); err != nil {
		lg.Error("publish failed", zap.Error(err))
	}
}

// parseParamRanges expands name:min:max:step specs into explicit value lists
func parseParamRanges(spec string) (map[string][]float64, error) {
	grid := make(map[string][]float64)
	for _, item := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(item), ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid parameter spec: %s (expected format: name:min:max:step)", item)
		}

		name := parts[0]
		var bounds [3]float64
		for i, label := range []string{"min", "max", "step"} {
			v, err := strconv.ParseFloat(parts[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value for %s: %w", label, name, err)
			}
			bounds[i] = v
		}
		min, max, step := bounds[0], bounds[1], bounds[2]
		if step <= 0 || max < min {
			return nil, fmt.Errorf("invalid range for %s: [%g, %g] step %g", name, min, max, step)
		}

		values := make([]float64, 0)
		n := int((max-min)/step + 1e-9)
		for i := 0; i <= n; i++ {
			values = append(values, min+float64(i)*step)
		}
		grid[name] = values
		log.Printf("Added parameter range: %s [%g, %g] step %g (%d values)", name, min, max, step, len(values))
	}
	return grid, nil
}

func printTopResults(results []*backtest.OptimizationResult) {
	fmt.Println()
	fmt.Println("========================================")
	fmt.Printf("Top %d Parameter Combinations\n", len(results))
	fmt.Println("========================================")
	for _, r := range results {
		fmt.Printf("#%-3d score=%-10.4f sharpe=%-8.3f return=%-9.4f max_dd=%-8.4f %s\n",
			r.Rank, r.Score, r.Metrics.SharpeRatio, r.Metrics.TotalReturn, r.Metrics.MaxDrawdown,
			formatParams(r.Parameters))
	}
}

func printBest(best *backtest.OptimizationResult, verification *backtest.Result) {
	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("Best Parameter Combination")
	fmt.Println("========================================")
	fmt.Printf("Optimization Score: %.4f\n", best.Score)
	fmt.Printf("Parameters:         %s\n", formatParams(best.Parameters))
	fmt.Printf("Train Sharpe:       %.4f\n", best.Metrics.SharpeRatio)
	fmt.Printf("Train Return:       %.4f\n", best.Metrics.TotalReturn)
	if verification != nil {
		m := verification.Metrics
		fmt.Printf("Test Sharpe:        %.4f\n", m.SharpeRatio)
		fmt.Printf("Test Return:        %.4f\n", m.TotalReturn)
		fmt.Printf("Test Max Drawdown:  %.4f\n", m.MaxDrawdown)
		fmt.Printf("Test Trades:        %.1f\n", m.TradeCount)
	}
	fmt.Println("========================================")
}

func formatParams(params map[string]float64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, params[k])
	}
	return strings.Join(parts, " ")
}

func runCompare() {
	if *baselineFile == "" || *currentFile == "" {
		log.Fatal("Both baseline and current files required. Use -baseline and -current flags")
	}

	baseline, err := backtest.LoadOptimalParams(*baselineFile)
	if err != nil {
		log.Fatalf("Failed to load baseline: %v", err)
	}
	current, err := backtest.LoadOptimalParams(*currentFile)
	if err != nil {
		log.Fatalf("Failed to load current: %v", err)
	}

	fmt.Println(backtest.CompareParams(baseline, current))
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Pairs Strategy Parameter Optimization Tool\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Actions:\n")
		fmt.Fprintf(os.Stderr, "  optimize  - Grid search on the train phase, verify the best on test\n")
		fmt.Fprintf(os.Stderr, "  compare   - Compare two parameter sets\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Tune the Kalman filter\n")
		fmt.Fprintf(os.Stderr, "  %s -action optimize \\\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "    -config config/backtest.yaml \\\n")
		fmt.Fprintf(os.Stderr, "    -strategy kalman \\\n")
		fmt.Fprintf(os.Stderr, "    -params entry:1.0:2.5:0.5,exit:0:0.5:0.25 \\\n")
		fmt.Fprintf(os.Stderr, "    -goal sharpe -workers 8\n\n")
		fmt.Fprintf(os.Stderr, "  # Compare parameters\n")
		fmt.Fprintf(os.Stderr, "  %s -action compare \\\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "    -baseline optimization_results/old.yaml \\\n")
		fmt.Fprintf(os.Stderr, "    -current optimization_results/new.yaml\n\n")
	}
}
