package backtest

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/quantlink-pairs/pkg/logger"
	"github.com/yourusername/quantlink-pairs/pkg/strategy"
	"github.com/yourusername/quantlink-pairs/pkg/strategy/spread"
)

// DateLayout is the calendar date format used in configs and CSV files
const DateLayout = "2006-01-02"

var validate = validator.New()

// BacktestConfig represents the backtest configuration
type BacktestConfig struct {
	Backtest   BacktestSettings   `yaml:"backtest"`
	Strategies []StrategySettings `yaml:"strategies" validate:"required,min=1,dive"`
	Optimize   OptimizeSettings   `yaml:"optimize"`
	Engine     EngineSettings     `yaml:"engine"`
	Logging    logger.Config      `yaml:"logging"`
	Metrics    MetricsSettings    `yaml:"metrics"`
}

// BacktestSettings contains backtest-specific settings
type BacktestSettings struct {
	Name                string         `yaml:"name" default:"pairs_backtest" validate:"required"`
	Data                DataSettings   `yaml:"data"`
	Train               PhaseSettings  `yaml:"train"`
	Test                PhaseSettings  `yaml:"test"`
	WarmupWindow        int            `yaml:"warmup_window" validate:"gte=0"`
	TransactionCostRate float64        `yaml:"transaction_cost_rate" default:"0.0005" validate:"gte=0"`
	Output              OutputSettings `yaml:"output"`
}

// DataSettings contains data source settings. Either DataPath points at one
// aligned file (date,price_y,price_x) or YPath and XPath at per-ticker files
// (date,close).
type DataSettings struct {
	SourceType string `yaml:"source_type" default:"csv" validate:"oneof=csv"`
	DataPath   string `yaml:"data_path" validate:"required_without_all=YPath XPath"`
	YPath      string `yaml:"y_path" validate:"required_with=XPath"`
	XPath      string `yaml:"x_path" validate:"required_with=YPath"`
	TickerY    string `yaml:"ticker_y" default:"Y"`
	TickerX    string `yaml:"ticker_x" default:"X"`
	DateFormat string `yaml:"date_format" default:"2006-01-02"`
}

// PhaseSettings is a closed date range; empty bounds are open
type PhaseSettings struct {
	StartDate string `yaml:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `yaml:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// OutputSettings contains output settings
type OutputSettings struct {
	ResultDir      string `yaml:"result_dir" default:"backtest_results"`
	SaveRows       bool   `yaml:"save_rows"`
	GenerateReport bool   `yaml:"generate_report"`
	ReportFormat   string `yaml:"report_format" default:"markdown" validate:"oneof=markdown json both"`
}

// StrategySettings configures one estimator plus thresholds
type StrategySettings struct {
	Name             string  `yaml:"name" validate:"required"`
	Type             string  `yaml:"type" validate:"required,oneof=static rolling kalman"`
	Window           int     `yaml:"window" default:"60" validate:"gte=2"`
	Entry            float64 `yaml:"entry" default:"1.0" validate:"gt=0"`
	Exit             float64 `yaml:"exit" default:"0.1" validate:"gte=0,ltfield=Entry"`
	Delta            float64 `yaml:"delta" default:"0.00001" validate:"gt=0,lt=1"`
	MeasurementNoise float64 `yaml:"measurement_noise" default:"0.01" validate:"gt=0"`
}

// UnmarshalYAML applies defaults before decoding so explicit zeros survive
func (s *StrategySettings) UnmarshalYAML(node *yaml.Node) error {
	if err := defaults.Set(s); err != nil {
		return err
	}
	type plain StrategySettings
	return node.Decode((*plain)(s))
}

// OptimizeSettings configures the parameter grid search
type OptimizeSettings struct {
	Strategy string               `yaml:"strategy"`
	Goal     string               `yaml:"goal" default:"sharpe" validate:"oneof=sharpe return calmar drawdown"`
	Workers  int                  `yaml:"workers" default:"4" validate:"gte=1"`
	Top      int                  `yaml:"top" default:"10" validate:"gte=1"`
	Grid     map[string][]float64 `yaml:"grid"`
	Output   string               `yaml:"output" default:"optimization_results"`
}

// EngineSettings contains transport configuration
type EngineSettings struct {
	NATSAddr       string        `yaml:"nats_addr"`
	ResultsSubject string        `yaml:"results_subject" default:"backtest.results"`
	PublishTimeout time.Duration `yaml:"publish_timeout" default:"5s"`
}

// MetricsSettings configures Prometheus export
type MetricsSettings struct {
	Textfile string `yaml:"textfile"`
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *BacktestConfig {
	cfg := &BacktestConfig{}
	if err := defaults.Set(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// LoadBacktestConfig loads backtest configuration from YAML file
func LoadBacktestConfig(configFile string) (*BacktestConfig, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return ParseBacktestConfig(data)
}

// ParseBacktestConfig decodes and validates YAML bytes
func ParseBacktestConfig(data []byte) (*BacktestConfig, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate validates the configuration
func (c *BacktestConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	for _, phase := range []struct {
		name string
		p    PhaseSettings
	}{{"train", c.Backtest.Train}, {"test", c.Backtest.Test}} {
		start, end, err := phase.p.Range()
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, phase.name, err)
		}
		if !start.IsZero() && !end.IsZero() && end.Before(start) {
			return fmt.Errorf("%w: %s end_date must be after start_date", ErrInvalidConfig, phase.name)
		}
	}

	seen := make(map[string]bool, len(c.Strategies))
	for _, s := range c.Strategies {
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate strategy name %q", ErrInvalidConfig, s.Name)
		}
		seen[s.Name] = true
	}

	if len(c.Optimize.Grid) > 0 {
		if _, ok := c.StrategyByName(c.Optimize.Strategy); !ok {
			return fmt.Errorf("%w: optimize.strategy %q is not a configured strategy", ErrInvalidConfig, c.Optimize.Strategy)
		}
		for name, values := range c.Optimize.Grid {
			if !isGridParameter(name) {
				return fmt.Errorf("%w: unknown grid parameter %q", ErrInvalidConfig, name)
			}
			if len(values) == 0 {
				return fmt.Errorf("%w: grid parameter %q has no values", ErrInvalidConfig, name)
			}
			for _, v := range values {
				if !validGridValue(name, v) {
					return fmt.Errorf("%w: grid parameter %q value %v must be an integer", ErrInvalidConfig, name, v)
				}
			}
		}
	}

	return nil
}

// StrategyByName looks up a configured strategy
func (c *BacktestConfig) StrategyByName(name string) (StrategySettings, bool) {
	for _, s := range c.Strategies {
		if s.Name == name {
			return s, true
		}
	}
	return StrategySettings{}, false
}

// EngineConfig returns the simulation parameters
func (c *BacktestConfig) EngineConfig() EngineConfig {
	return EngineConfig{
		TransactionCostRate: c.Backtest.TransactionCostRate,
		WarmupWindow:        c.Backtest.WarmupWindow,
	}
}

// Range parses the phase bounds; an empty bound is returned as the zero time
func (p PhaseSettings) Range() (start, end time.Time, err error) {
	if p.StartDate != "" {
		if start, err = time.Parse(DateLayout, p.StartDate); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date format (expected YYYY-MM-DD): %w", err)
		}
	}
	if p.EndDate != "" {
		if end, err = time.Parse(DateLayout, p.EndDate); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date format (expected YYYY-MM-DD): %w", err)
		}
	}
	return start, end, nil
}

// EstimatorConfig maps the settings onto the estimator factory
func (s StrategySettings) EstimatorConfig() spread.Config {
	return spread.Config{
		Method:           spread.Method(s.Type),
		Window:           s.Window,
		Delta:            s.Delta,
		MeasurementNoise: s.MeasurementNoise,
	}
}

// Thresholds returns the entry and exit multiples
func (s StrategySettings) Thresholds() strategy.Thresholds {
	return strategy.Thresholds{Entry: s.Entry, Exit: s.Exit}
}

// Build creates a fresh strategy instance
func (s StrategySettings) Build() (*strategy.PairStrategy, error) {
	est, err := spread.New(s.EstimatorConfig())
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", s.Name, err)
	}
	return strategy.NewPairStrategy(s.Name, est, s.Thresholds())
}

// Parameters returns the tunable values keyed by their YAML names
func (s StrategySettings) Parameters() map[string]float64 {
	return map[string]float64{
		"window":            float64(s.Window),
		"entry":             s.Entry,
		"exit":              s.Exit,
		"delta":             s.Delta,
		"measurement_noise": s.MeasurementNoise,
	}
}

// WithParameters returns a copy with the given tunables overridden
func (s StrategySettings) WithParameters(params map[string]float64) StrategySettings {
	out := s
	for name, v := range params {
		switch name {
		case "window":
			out.Window = int(v)
		case "entry":
			out.Entry = v
		case "exit":
			out.Exit = v
		case "delta":
			out.Delta = v
		case "measurement_noise":
			out.MeasurementNoise = v
		}
	}
	return out
}

var gridParameters = []string{"delta", "entry", "exit", "measurement_noise", "window"}

func isGridParameter(name string) bool {
	i := sort.SearchStrings(gridParameters, name)
	return i < len(gridParameters) && gridParameters[i] == name
}

// validGridValue rejects values WithParameters could not apply exactly
func validGridValue(name string, v float64) bool {
	if name == "window" {
		return v == math.Trunc(v) && !math.IsInf(v, 0)
	}
	return true
}
