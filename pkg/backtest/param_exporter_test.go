package backtest

import (
	"errors"
	"math"
	"os"
	"strings"
	"testing"
	"time"
)

func TestParamExporter_RoundTrip(t *testing.T) {
	cfg := testConfig()
	base := cfg.Strategies[2]
	exporter := NewParamExporter(t.TempDir())
	exporter.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	best := &OptimizationResult{
		Parameters: map[string]float64{"delta": 1e-3, "entry": 2},
		Metrics:    Metrics{SharpeRatio: 1.1, TotalReturn: 0.2, MaxDrawdown: -0.05},
		Score:      1.1,
		Rank:       1,
	}
	verification := sampleResult(base.Name, PhaseTest)

	path, err := exporter.ExportOptimalParams(cfg, base, best, verification, GoalSharpeRatio)
	if err != nil {
		t.Fatalf("ExportOptimalParams: %v", err)
	}
	if !strings.HasSuffix(path, "optimal_params_kalman_20240301.yaml") {
		t.Errorf("path = %s", path)
	}

	loaded, err := LoadOptimalParams(path)
	if err != nil {
		t.Fatalf("LoadOptimalParams: %v", err)
	}
	if loaded.OptimizationGoal != "sharpe" || loaded.Strategy.Type != "kalman" {
		t.Errorf("metadata = %+v", loaded)
	}
	if loaded.Train.SharpeRatio != 1.1 {
		t.Errorf("train sharpe = %v", loaded.Train.SharpeRatio)
	}
	if !math.IsInf(loaded.Test.SharpeRatio, 1) || !math.IsNaN(loaded.Test.AnnualizedReturn) {
		t.Errorf("non-finite test metrics lost: %+v", loaded.Test)
	}

	tuned := loaded.Settings(base)
	if tuned.Delta != 1e-3 || tuned.Entry != 2 || tuned.Exit != base.Exit || tuned.Window != base.Window {
		t.Errorf("Settings = %+v", tuned)
	}

	baseline := *loaded
	baseline.Parameters = base.Parameters()
	diff := CompareParams(&baseline, loaded)
	if !strings.Contains(diff, "delta") || !strings.Contains(diff, "0.0001 -> 0.001") {
		t.Errorf("comparison:\n%s", diff)
	}
}

func TestLoadOptimalParams_UnknownParameter(t *testing.T) {
	path := t.TempDir() + "/params.yaml"
	if err := os.WriteFile(path, []byte("parameters:\n  leverage: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOptimalParams(path); err == nil {
		t.Error("expected an error for an unknown parameter")
	}
}

func TestLoadOptimalParams_FractionalWindow(t *testing.T) {
	path := t.TempDir() + "/params.yaml"
	if err := os.WriteFile(path, []byte("parameters:\n  window: 2.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOptimalParams(path); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestParamExporter_ExportOptimizationResults(t *testing.T) {
	cfg := testConfig()
	exporter := NewParamExporter(t.TempDir())

	results := []*OptimizationResult{
		{Parameters: map[string]float64{"entry": 1}, Score: 0.8, Metrics: Metrics{SharpeRatio: 0.8}},
		{Parameters: map[string]float64{"entry": 2}, Score: math.NaN(), Metrics: Metrics{SharpeRatio: math.NaN()}},
	}
	RankResults(results)

	path, err := exporter.ExportOptimizationResults(cfg, cfg.Strategies[0], results, GoalSharpeRatio)
	if err != nil {
		t.Fatalf("ExportOptimizationResults: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		TotalTests int `json:"total_tests"`
		Results    []struct {
			Rank  int         `json:"rank"`
			Score interface{} `json:"score"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.TotalTests != 2 || decoded.Results[0].Score != 0.8 || decoded.Results[1].Score != "NaN" {
		t.Errorf("decoded = %+v", decoded)
	}
}
