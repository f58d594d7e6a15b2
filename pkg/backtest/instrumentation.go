package backtest

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes run counters and the latest metrics per strategy and
// phase. It owns its registry so several recorders can coexist in tests.
type Recorder struct {
	registry *prometheus.Registry

	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec

	sharpe      *prometheus.GaugeVec
	totalReturn *prometheus.GaugeVec
	cagr        *prometheus.GaugeVec
	maxDrawdown *prometheus.GaugeVec
	trades      *prometheus.GaugeVec
	exposure    *prometheus.GaugeVec
}

// NewRecorder registers the backtest metrics under namespace
func NewRecorder(namespace string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := []string{"strategy", "phase"}

	gauge := func(name, help string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &Recorder{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Strategy evaluations by outcome",
		}, []string{"strategy", "phase", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "run_duration_seconds",
			Help:      "Wall time of one strategy evaluation",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"phase"}),
		sharpe:      gauge("sharpe_ratio", "Annualised Sharpe ratio of the last run"),
		totalReturn: gauge("total_return", "Total return of the last run"),
		cagr:        gauge("annualized_return", "Compound annual growth rate of the last run"),
		maxDrawdown: gauge("max_drawdown", "Maximum drawdown of the last run (non-positive)"),
		trades:      gauge("trades", "Round trips of the last run"),
		exposure:    gauge("exposure", "Fraction of periods with an open position"),
	}
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveResult records a successful evaluation
func (r *Recorder) ObserveResult(res *Result, elapsed time.Duration) {
	r.runs.WithLabelValues(res.Strategy, res.Phase, "ok").Inc()
	r.duration.WithLabelValues(res.Phase).Observe(elapsed.Seconds())

	m := res.Metrics
	r.sharpe.WithLabelValues(res.Strategy, res.Phase).Set(m.SharpeRatio)
	r.totalReturn.WithLabelValues(res.Strategy, res.Phase).Set(m.TotalReturn)
	r.cagr.WithLabelValues(res.Strategy, res.Phase).Set(m.AnnualizedReturn)
	r.maxDrawdown.WithLabelValues(res.Strategy, res.Phase).Set(m.MaxDrawdown)
	r.trades.WithLabelValues(res.Strategy, res.Phase).Set(m.TradeCount)
	r.exposure.WithLabelValues(res.Strategy, res.Phase).Set(m.Exposure)
}

// ObserveFailure counts a failed evaluation
func (r *Recorder) ObserveFailure(strategyName, phase string) {
	r.runs.WithLabelValues(strategyName, phase, "error").Inc()
}

// WriteTextfile dumps the registry for the node_exporter textfile collector
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrapf(err, "write metrics textfile %s", path)
	}
	return nil
}
