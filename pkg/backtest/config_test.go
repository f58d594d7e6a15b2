package backtest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yourusername/quantlink-pairs/pkg/strategy/spread"
)

const sampleConfig = `
backtest:
  name: gld_gdx
  data:
    data_path: data/gld_gdx.csv
    ticker_y: GLD
    ticker_x: GDX
  train:
    start_date: "2019-01-01"
    end_date: "2021-12-31"
  test:
    start_date: "2022-01-01"
  warmup_window: 30
strategies:
  - name: static_ols
    type: static
    window: 30
    entry: 1.5
    exit: 0
  - name: kalman
    type: kalman
    delta: 0.0001
optimize:
  strategy: kalman
  goal: calmar
  grid:
    delta: [0.00001, 0.0001]
    entry: [1.0, 2.0]
engine:
  publish_timeout: 2s
logging:
  format: json
`

func TestParseBacktestConfig(t *testing.T) {
	cfg, err := ParseBacktestConfig([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("ParseBacktestConfig: %v", err)
	}

	if cfg.Backtest.TransactionCostRate != DefaultTransactionCostRate {
		t.Errorf("transaction cost default = %v", cfg.Backtest.TransactionCostRate)
	}
	if cfg.Backtest.WarmupWindow != 30 {
		t.Errorf("warmup = %d, want 30", cfg.Backtest.WarmupWindow)
	}
	if cfg.Backtest.Data.SourceType != "csv" || cfg.Backtest.Data.DateFormat != DateLayout {
		t.Errorf("data defaults not applied: %+v", cfg.Backtest.Data)
	}

	static, ok := cfg.StrategyByName("static_ols")
	if !ok {
		t.Fatal("static_ols missing")
	}
	if static.Exit != 0 {
		t.Errorf("explicit exit 0 must survive defaults, got %v", static.Exit)
	}
	if static.Entry != 1.5 {
		t.Errorf("entry = %v, want 1.5", static.Entry)
	}

	kalman, _ := cfg.StrategyByName("kalman")
	if kalman.Exit != 0.1 || kalman.Entry != 1.0 || kalman.MeasurementNoise != 0.01 {
		t.Errorf("strategy defaults not applied: %+v", kalman)
	}
	if kalman.EstimatorConfig().Method != spread.MethodKalman {
		t.Errorf("method = %s", kalman.EstimatorConfig().Method)
	}

	if cfg.Optimize.Goal != "calmar" || cfg.Optimize.Workers != 4 {
		t.Errorf("optimize settings: %+v", cfg.Optimize)
	}
	if cfg.Engine.PublishTimeout != 2*time.Second || cfg.Engine.ResultsSubject != "backtest.results" {
		t.Errorf("engine settings: %+v", cfg.Engine)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "info" {
		t.Errorf("logging settings: %+v", cfg.Logging)
	}

	start, end, err := cfg.Backtest.Test.Range()
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if start.Year() != 2022 || !end.IsZero() {
		t.Errorf("test range = %v..%v", start, end)
	}
}

func TestParseBacktestConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
	}{
		{"unknown type", [2]string{"type: static", "type: garch"}},
		{"exit above entry", [2]string{"exit: 0\n", "exit: 3\n"}},
		{"window too small", [2]string{"    window: 30", "    window: 1"}},
		{"bad delta", [2]string{"delta: 0.0001\n", "delta: 1.5\n"}},
		{"bad date", [2]string{`start_date: "2022-01-01"`, `start_date: "01/01/2022"`}},
		{"reversed train range", [2]string{`end_date: "2021-12-31"`, `end_date: "2018-12-31"`}},
		{"unknown goal", [2]string{"goal: calmar", "goal: luck"}},
		{"unknown grid parameter", [2]string{"entry: [1.0, 2.0]", "leverage: [1.0, 2.0]"}},
		{"fractional window grid", [2]string{"entry: [1.0, 2.0]", "window: [10, 12.5]"}},
		{"optimize strategy missing", [2]string{"strategy: kalman", "strategy: nope"}},
		{"duplicate names", [2]string{"name: kalman", "name: static_ols"}},
		{"no data source", [2]string{"data_path: data/gld_gdx.csv", "y_path: only_y.csv"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := strings.Replace(sampleConfig, tt.replace[0], tt.replace[1], 1)
			if data == sampleConfig {
				t.Fatalf("replacement %q did not apply", tt.replace[0])
			}
			_, err := ParseBacktestConfig([]byte(data))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadBacktestConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backtest.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadBacktestConfig(path)
	if err != nil {
		t.Fatalf("LoadBacktestConfig: %v", err)
	}
	if cfg.Backtest.Name != "gld_gdx" {
		t.Errorf("name = %q", cfg.Backtest.Name)
	}

	if _, err := LoadBacktestConfig(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestStrategySettings_WithParameters(t *testing.T) {
	base := StrategySettings{Name: "k", Type: "kalman", Window: 60, Entry: 1, Exit: 0.1, Delta: 1e-5, MeasurementNoise: 1e-2}
	tuned := base.WithParameters(map[string]float64{"delta": 1e-3, "window": 20, "entry": 2})

	if tuned.Delta != 1e-3 || tuned.Window != 20 || tuned.Entry != 2 {
		t.Errorf("parameters not applied: %+v", tuned)
	}
	if base.Delta != 1e-5 {
		t.Error("WithParameters must not modify the receiver")
	}
	if got := tuned.Parameters()["measurement_noise"]; got != 1e-2 {
		t.Errorf("untouched parameter = %v", got)
	}

	ps, err := tuned.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ps.Estimator.Method() != spread.MethodKalman {
		t.Errorf("built method = %s", ps.Estimator.Method())
	}
}
