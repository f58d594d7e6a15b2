package backtest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_ObserveResult(t *testing.T) {
	rec := NewRecorder("pairs")
	res := sampleResult("kalman", PhaseTest)
	res.Metrics.SharpeRatio = 1.5
	res.Metrics.Exposure = 0.4

	rec.ObserveResult(res, 20*time.Millisecond)
	rec.ObserveResult(res, 30*time.Millisecond)
	rec.ObserveFailure("static", PhaseTrain)

	if got := testutil.ToFloat64(rec.runs.WithLabelValues("kalman", PhaseTest, "ok")); got != 2 {
		t.Errorf("ok runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rec.runs.WithLabelValues("static", PhaseTrain, "error")); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.sharpe.WithLabelValues("kalman", PhaseTest)); got != 1.5 {
		t.Errorf("sharpe gauge = %v, want 1.5", got)
	}
	if got := testutil.ToFloat64(rec.exposure.WithLabelValues("kalman", PhaseTest)); got != 0.4 {
		t.Errorf("exposure gauge = %v, want 0.4", got)
	}
	if got := testutil.CollectAndCount(rec.runs); got != 2 {
		t.Errorf("runs series = %d, want 2", got)
	}
	if got := testutil.CollectAndCount(rec.duration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestRecorder_WriteTextfile(t *testing.T) {
	rec := NewRecorder("pairs")
	rec.ObserveResult(sampleResult("kalman", PhaseTrain), time.Millisecond)

	path := filepath.Join(t.TempDir(), "backtest.prom")
	if err := rec.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`pairs_backtest_runs_total{phase="train",status="ok",strategy="kalman"} 1`,
		`pairs_backtest_max_drawdown{phase="train",strategy="kalman"} -0.02`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q", want)
		}
	}

	if err := rec.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")); err == nil {
		t.Error("expected an error for a missing directory")
	}
}
