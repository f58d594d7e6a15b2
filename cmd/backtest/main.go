package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/yourusername/quantlink-pairs/pkg/backtest"
	"github.com/yourusername/quantlink-pairs/pkg/logger"
)

const (
	appName    = "PairsBacktest"
	appVersion = "1.0.0"
)

var (
	// Command line flags
	configFile = flag.String("config", "./config/backtest.yaml", "Configuration file path")
	dataPath   = flag.String("data", "", "Aligned price CSV (overrides config)")
	trainStart = flag.String("train-start", "", "Train start date (YYYY-MM-DD, overrides config)")
	trainEnd   = flag.String("train-end", "", "Train end date (YYYY-MM-DD, overrides config)")
	testStart  = flag.String("test-start", "", "Test start date (YYYY-MM-DD, overrides config)")
	testEnd    = flag.String("test-end", "", "Test end date (YYYY-MM-DD, overrides config)")
	paramsFile = flag.String("params", "", "Optimal params file to apply to its strategy")
	outputDir  = flag.String("output", "", "Output directory (overrides config)")
	natsAddr   = flag.String("nats", "", "NATS server URL for result summaries (overrides config)")
	version    = flag.Bool("version", false, "Print version and exit")
	help       = flag.Bool("help", false, "Print help and exit")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}
	if *help {
		printHelp()
		os.Exit(0)
	}

	printBanner()

	config, err := backtest.LoadBacktestConfig(*configFile)
	if err != nil {
		log.Fatalf("[Main] Failed to load config: %v", err)
	}
	applyOverrides(config)
	if err := config.Validate(); err != nil {
		log.Fatalf("[Main] Invalid configuration after overrides: %v", err)
	}

	lg, err := logger.New(config.Logging)
	if err != nil {
		log.Fatalf("[Main] Failed to create logger: %v", err)
	}
	defer lg.Sync()
	lg = lg.Named("main")

	if *paramsFile != "" {
		if err := applyOptimalParams(config, *paramsFile); err != nil {
			lg.Fatal("failed to apply optimal params", zap.String("file", *paramsFile), zap.Error(err))
		}
		lg.Info("optimal params applied", zap.String("file", *paramsFile))
	}

	printConfigSummary(config)

	series, err := backtest.LoadSeries(config.Backtest.Data)
	if err != nil {
		lg.Fatal("failed to load price data", zap.Error(err))
	}
	lg.Info("price data loaded",
		zap.Int("rows", series.Len()),
		zap.Time("first", series.Dates[0]),
		zap.Time("last", series.Dates[series.Len()-1]))

	recorder := backtest.NewRecorder("pairs")
	opts := []backtest.RunnerOption{
		backtest.WithLogger(lg),
		backtest.WithRecorder(recorder),
	}
	if config.Engine.NATSAddr != "" {
		pub, err := backtest.NewNATSPublisher(config.Engine.NATSAddr, config.Engine.ResultsSubject, config.Engine.PublishTimeout)
		if err != nil {
			lg.Fatal("failed to connect publisher", zap.String("addr", config.Engine.NATSAddr), zap.Error(err))
		}
		defer pub.Close()
		opts = append(opts, backtest.WithPublisher(pub))
		lg.Info("publishing summaries", zap.String("subject", config.Engine.ResultsSubject))
	}

	runner, err := backtest.NewBacktestRunner(config, series, opts...)
	if err != nil {
		lg.Fatal("failed to create runner", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmp, err := runner.Run(ctx)
	if err != nil {
		lg.Fatal("backtest failed", zap.Error(err))
	}

	printComparison(cmp)

	paths, err := backtest.NewReportGenerator(config).Save(cmp)
	if err != nil {
		lg.Error("failed to save reports", zap.Error(err))
	}
	for _, p := range paths {
		lg.Info("written", zap.String("path", p))
	}

	if config.Metrics.Textfile != "" {
		if err := recorder.WriteTextfile(config.Metrics.Textfile); err != nil {
			lg.Error("failed to write metrics", zap.Error(err))
		}
	}

	lg.Info("backtest completed")
}

func applyOverrides(config *backtest.BacktestConfig) {
	if *dataPath != "" {
		config.Backtest.Data.DataPath = *dataPath
		config.Backtest.Data.YPath, config.Backtest.Data.XPath = "", ""
	}
	if *trainStart != "" {
		config.Backtest.Train.StartDate = *trainStart
	}
	if *trainEnd != "" {
		config.Backtest.Train.EndDate = *trainEnd
	}
	if *testStart != "" {
		config.Backtest.Test.StartDate = *testStart
	}
	if *testEnd != "" {
		config.Backtest.Test.EndDate = *testEnd
	}
	if *outputDir != "" {
		config.Backtest.Output.ResultDir = *outputDir
	}
	if *natsAddr != "" {
		config.Engine.NATSAddr = *natsAddr
	}
}

func applyOptimalParams(config *backtest.BacktestConfig, path string) error {
	params, err := backtest.LoadOptimalParams(path)
	if err != nil {
		return err
	}
	for i, s := range config.Strategies {
		if s.Name == params.Strategy.Name {
			config.Strategies[i] = params.Settings(s)
			return config.Validate()
		}
	}
	return fmt.Errorf("strategy %q from %s is not configured", params.Strategy.Name, path)
}

func printBanner() {
	fmt.Println("========================================")
	fmt.Printf("%s v%s\n", appName, appVersion)
	fmt.Println("Pairs trading backtest: static, rolling and Kalman hedge ratios")
	fmt.Println("========================================")
}

func printHelp() {
	fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println("\nExamples:")
	fmt.Println("  # Compare every configured strategy")
	fmt.Println("  ./backtest -config config/backtest.yaml")
	fmt.Println()
	fmt.Println("  # Override phases")
	fmt.Println("  ./backtest -config config/backtest.yaml -train-end 2021-12-31 -test-start 2022-01-01")
	fmt.Println()
	fmt.Println("  # Replay tuned parameters")
	fmt.Println("  ./backtest -config config/backtest.yaml -params optimization_results/optimal_params_kalman_20240301.yaml")
	fmt.Println()
}

func printConfigSummary(config *backtest.BacktestConfig) {
	fmt.Println("\n========================================")
	fmt.Println("Configuration Summary")
	fmt.Println("========================================")
	fmt.Printf("Backtest Name:     %s\n", config.Backtest.Name)
	fmt.Printf("Pair:              %s / %s\n", config.Backtest.Data.TickerY, config.Backtest.Data.TickerX)
	if config.Backtest.Data.DataPath != "" {
		fmt.Printf("Data Path:         %s\n", config.Backtest.Data.DataPath)
	} else {
		fmt.Printf("Data Paths:        %s, %s\n", config.Backtest.Data.YPath, config.Backtest.Data.XPath)
	}
	fmt.Printf("Train:             %s to %s\n", config.Backtest.Train.StartDate, config.Backtest.Train.EndDate)
	fmt.Printf("Test:              %s to %s\n", config.Backtest.Test.StartDate, config.Backtest.Test.EndDate)
	fmt.Printf("Warm-up:           %d\n", config.Backtest.WarmupWindow)
	fmt.Printf("Cost Rate:         %.4f\n", config.Backtest.TransactionCostRate)
	for _, s := range config.Strategies {
		fmt.Printf("Strategy:          %-12s %-8s window=%d entry=%.2f exit=%.2f delta=%g\n",
			s.Name, s.Type, s.Window, s.Entry, s.Exit, s.Delta)
	}
	fmt.Printf("Output Directory:  %s\n", config.Backtest.Output.ResultDir)
	fmt.Println("========================================")
	fmt.Println()
}

func printComparison(cmp *backtest.Comparison) {
	for _, phase := range []*backtest.PhaseResults{cmp.Train, cmp.Test} {
		fmt.Printf("\n%s: %s to %s\n", phase.Phase,
			phase.Start.Format(backtest.DateLayout), phase.End.Format(backtest.DateLayout))
		fmt.Printf("%-14s %8s %10s %10s %8s %10s\n", "strategy", "trades", "return", "cagr", "sharpe", "max_dd")
		for _, res := range phase.Results {
			m := res.Metrics
			fmt.Printf("%-14s %8.1f %10.4f %10.4f %8.3f %10.4f\n",
				res.Strategy, m.TradeCount, m.TotalReturn, m.AnnualizedReturn, m.SharpeRatio, m.MaxDrawdown)
		}
	}
	fmt.Println()
}
