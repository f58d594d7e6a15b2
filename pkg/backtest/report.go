package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ReportGenerator renders train/test comparisons
type ReportGenerator struct {
	config *BacktestConfig
	now    func() time.Time
}

// NewReportGenerator creates a new report generator
func NewReportGenerator(config *BacktestConfig) *ReportGenerator {
	return &ReportGenerator{config: config, now: time.Now}
}

// Save writes the configured reports and row exports into the result
// directory and returns the written paths
func (g *ReportGenerator) Save(cmp *Comparison) ([]string, error) {
	out := g.config.Backtest.Output
	if !out.GenerateReport && !out.SaveRows {
		return nil, nil
	}
	if err := os.MkdirAll(out.ResultDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create output directory")
	}

	stamp := g.now().Format("20060102_150405")
	base := fmt.Sprintf("%s_%s", fileToken(g.config.Backtest.Name), stamp)
	var paths []string

	write := func(name string, fn func(io.Writer) error) error {
		path := filepath.Join(out.ResultDir, name)
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "create %s", path)
		}
		if err := fn(f); err != nil {
			f.Close()
			return errors.Wrapf(err, "write %s", path)
		}
		if err := f.Close(); err != nil {
			return errors.Wrapf(err, "close %s", path)
		}
		paths = append(paths, path)
		return nil
	}

	if out.GenerateReport {
		if out.ReportFormat == "markdown" || out.ReportFormat == "both" {
			if err := write(base+".md", func(w io.Writer) error { return g.WriteMarkdown(w, cmp) }); err != nil {
				return paths, err
			}
		}
		if out.ReportFormat == "json" || out.ReportFormat == "both" {
			if err := write(base+".json", func(w io.Writer) error { return g.WriteJSON(w, cmp) }); err != nil {
				return paths, err
			}
		}
	}

	if out.SaveRows {
		for _, phase := range cmp.phases() {
			for _, res := range phase.Results {
				name := fmt.Sprintf("%s_%s_%s_rows.csv", base, fileToken(res.Strategy), phase.Phase)
				res := res
				if err := write(name, func(w io.Writer) error { return WriteRowsCSV(w, res) }); err != nil {
					return paths, err
				}
			}
		}
	}
	return paths, nil
}

// WriteMarkdown writes a per-phase comparison table
func (g *ReportGenerator) WriteMarkdown(w io.Writer, cmp *Comparison) error {
	var b strings.Builder
	cfg := g.config.Backtest

	fmt.Fprintf(&b, "# Backtest Report: %s\n\n", cfg.Name)
	fmt.Fprintf(&b, "**Pair**: %s / %s\n", cfg.Data.TickerY, cfg.Data.TickerX)
	fmt.Fprintf(&b, "**Transaction cost**: %.4f%% per unit of position change\n", cfg.TransactionCostRate*100)
	fmt.Fprintf(&b, "**Warm-up**: %d periods\n\n", cfg.WarmupWindow)
	fmt.Fprintf(&b, "---\n\n")

	for _, phase := range cmp.phases() {
		fmt.Fprintf(&b, "## %s (%s to %s)\n\n", strings.ToUpper(phase.Phase[:1])+phase.Phase[1:],
			phase.Start.Format(DateLayout), phase.End.Format(DateLayout))
		fmt.Fprintf(&b, "| Strategy | Method | Trades | Total Return | CAGR | Sharpe | Sortino | Calmar | Max Drawdown | Exposure |\n")
		fmt.Fprintf(&b, "|----------|--------|--------|--------------|------|--------|---------|--------|--------------|----------|\n")
		for _, res := range phase.Results {
			m := res.Metrics
			trades := strconv.FormatFloat(m.TradeCount, 'f', -1, 64)
			if m.OpenAtEnd {
				trades += " (open)"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
				res.Strategy, res.Method, trades,
				formatPercent(m.TotalReturn), formatPercent(m.AnnualizedReturn),
				formatRatio(m.SharpeRatio), formatRatio(m.SortinoRatio), formatRatio(m.CalmarRatio),
				formatPercent(m.MaxDrawdown), formatPercent(m.Exposure))
		}
		fmt.Fprintf(&b, "\n")

		for _, res := range phase.Results {
			if res.Metrics.ExcludedPeriods > 0 {
				fmt.Fprintf(&b, "*%s: %d periods held a position without a defined hedge ratio and earned 0.*\n",
					res.Strategy, res.Metrics.ExcludedPeriods)
			}
		}
		fmt.Fprintf(&b, "\n")
	}

	fmt.Fprintf(&b, "---\n\n")
	fmt.Fprintf(&b, "**Generated**: %s\n", g.now().Format("2006-01-02 15:04:05"))

	_, err := io.WriteString(w, b.String())
	return err
}

type jsonReport struct {
	Name        string      `json:"name"`
	TickerY     string      `json:"ticker_y"`
	TickerX     string      `json:"ticker_x"`
	GeneratedAt time.Time   `json:"generated_at"`
	Phases      []jsonPhase `json:"phases"`
}

type jsonPhase struct {
	Phase      string         `json:"phase"`
	Start      string         `json:"start"`
	End        string         `json:"end"`
	Strategies []jsonStrategy `json:"strategies"`
}

type jsonStrategy struct {
	Name    string      `json:"name"`
	Method  string      `json:"method"`
	Metrics jsonMetrics `json:"metrics"`
}

type jsonMetrics struct {
	Periods             int       `json:"periods"`
	Years               jsonFloat `json:"years"`
	TradeCount          jsonFloat `json:"trade_count"`
	OpenAtEnd           bool      `json:"open_at_end"`
	TotalReturn         jsonFloat `json:"total_return"`
	AnnualizedReturn    jsonFloat `json:"annualized_return"`
	SharpeRatio         jsonFloat `json:"sharpe_ratio"`
	SortinoRatio        jsonFloat `json:"sortino_ratio"`
	CalmarRatio         jsonFloat `json:"calmar_ratio"`
	MaxDrawdown         jsonFloat `json:"max_drawdown"`
	MaxDrawdownDuration string    `json:"max_drawdown_duration"`
	Volatility          jsonFloat `json:"volatility"`
	Exposure            jsonFloat `json:"exposure"`
	TotalCost           jsonFloat `json:"total_cost"`
	ExcludedPeriods     int       `json:"excluded_periods"`
}

func newJSONMetrics(m Metrics) jsonMetrics {
	return jsonMetrics{
		Periods:             m.Periods,
		Years:               jsonFloat(m.Years),
		TradeCount:          jsonFloat(m.TradeCount),
		OpenAtEnd:           m.OpenAtEnd,
		TotalReturn:         jsonFloat(m.TotalReturn),
		AnnualizedReturn:    jsonFloat(m.AnnualizedReturn),
		SharpeRatio:         jsonFloat(m.SharpeRatio),
		SortinoRatio:        jsonFloat(m.SortinoRatio),
		CalmarRatio:         jsonFloat(m.CalmarRatio),
		MaxDrawdown:         jsonFloat(m.MaxDrawdown),
		MaxDrawdownDuration: m.MaxDrawdownDuration.String(),
		Volatility:          jsonFloat(m.Volatility),
		Exposure:            jsonFloat(m.Exposure),
		TotalCost:           jsonFloat(m.TotalCost),
		ExcludedPeriods:     m.ExcludedPeriods,
	}
}

// WriteJSON writes the comparison as indented JSON
func (g *ReportGenerator) WriteJSON(w io.Writer, cmp *Comparison) error {
	report := jsonReport{
		Name:        g.config.Backtest.Name,
		TickerY:     g.config.Backtest.Data.TickerY,
		TickerX:     g.config.Backtest.Data.TickerX,
		GeneratedAt: g.now(),
	}
	for _, phase := range cmp.phases() {
		jp := jsonPhase{
			Phase: phase.Phase,
			Start: phase.Start.Format(DateLayout),
			End:   phase.End.Format(DateLayout),
		}
		for _, res := range phase.Results {
			jp.Strategies = append(jp.Strategies, jsonStrategy{
				Name:    res.Strategy,
				Method:  string(res.Method),
				Metrics: newJSONMetrics(res.Metrics),
			})
		}
		report.Phases = append(report.Phases, jp)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal report")
	}
	_, err = w.Write(data)
	return err
}

// WriteRowsCSV exports the annotated time series of one result
func WriteRowsCSV(w io.Writer, res *Result) error {
	writer := csv.NewWriter(w)
	header := []string{
		"date", "price_y", "price_x", "hedge_ratio", "spread", "z_score", "status",
		"signal", "position", "return_y", "return_x", "strategy_return", "cost",
		"strategy_return_net", "equity", "excluded",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range res.Rows {
		record := []string{
			r.Time.Format(DateLayout),
			formatFloat(r.PriceY),
			formatFloat(r.PriceX),
			formatFloat(r.HedgeRatio),
			formatFloat(r.Spread),
			formatFloat(r.ZScore),
			r.Status.String(),
			strconv.Itoa(int(r.Signal)),
			strconv.Itoa(int(r.Position)),
			formatFloat(r.ReturnY),
			formatFloat(r.ReturnX),
			formatFloat(r.StrategyReturn),
			formatFloat(r.Cost),
			formatFloat(r.StrategyReturnNet),
			formatFloat(r.Equity),
			strconv.FormatBool(r.Excluded),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (c *Comparison) phases() []*PhaseResults {
	out := make([]*PhaseResults, 0, 2)
	for _, p := range []*PhaseResults{c.Train, c.Test} {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// jsonFloat renders NaN and ±Inf as strings
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if !isFinite(v) {
		return []byte(strconv.Quote(formatFloat(v))), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	default:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
}

func formatPercent(v float64) string {
	if !isFinite(v) {
		return formatFloat(v)
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

func formatRatio(v float64) string {
	if !isFinite(v) {
		return formatFloat(v)
	}
	return fmt.Sprintf("%.2f", v)
}

func fileToken(s string) string {
	return strings.NewReplacer("/", "_", " ", "_", string(os.PathSeparator), "_").Replace(s)
}
