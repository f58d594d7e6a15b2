package main

import (
	"flag"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/yourusername/quantlink-pairs/pkg/backtest"
	"github.com/yourusername/quantlink-pairs/pkg/pricedata"
)

var (
	startDate  = flag.String("start-date", "2019-01-01", "Start date (YYYY-MM-DD)")
	endDate    = flag.String("end-date", "2023-12-31", "End date (YYYY-MM-DD)")
	output     = flag.String("output", "./data/mock_pair.csv", "Output CSV (date,price_y,price_x)")
	seed       = flag.Uint64("seed", 42, "Random seed")
	basePrice  = flag.Float64("base-price", 40, "Starting price of X")
	volatility = flag.Float64("volatility", 0.012, "Daily log-return volatility of X")
	intercept  = flag.Float64("intercept", 5, "Intercept of Y on X")
	hedge      = flag.Float64("hedge", 1.6, "Starting hedge ratio of Y on X")
	hedgeDrift = flag.Float64("hedge-drift", 0.3, "Total change of the hedge ratio over the period")
	reversion  = flag.Float64("reversion", 0.92, "AR(1) coefficient of the spread (<1 is mean reverting)")
	spreadVol  = flag.Float64("spread-vol", 0.6, "Innovation volatility of the spread")
)

func main() {
	flag.Parse()

	start, err := time.Parse(backtest.DateLayout, *startDate)
	if err != nil {
		log.Fatalf("Invalid start date: %v", err)
	}
	end, err := time.Parse(backtest.DateLayout, *endDate)
	if err != nil {
		log.Fatalf("Invalid end date: %v", err)
	}
	if *reversion <= -1 || *reversion >= 1 {
		log.Fatalf("reversion must be in (-1, 1), got %v", *reversion)
	}

	log.Printf("Generating mock pair...")
	log.Printf("  Date range: %s to %s", *startDate, *endDate)
	log.Printf("  Hedge ratio: %.3f drifting by %.3f", *hedge, *hedgeDrift)
	log.Printf("  Spread: AR(1) phi=%.3f sigma=%.3f", *reversion, *spreadVol)
	log.Printf("  Output: %s", *output)

	series, err := generatePair(start, end)
	if err != nil {
		log.Fatalf("Failed to generate data: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}
	file, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to create output: %v", err)
	}
	defer file.Close()

	if err := backtest.WriteAligned(file, series); err != nil {
		log.Fatalf("Failed to write data: %v", err)
	}
	log.Printf("Mock data generation completed: %d rows", series.Len())
}

// generatePair simulates business-day closes where X follows a geometric
// random walk and Y = a + b_t*X + s_t with s an AR(1) spread
func generatePair(start, end time.Time) (*pricedata.Series, error) {
	src := rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)
	returns := distuv.Normal{Mu: 0, Sigma: *volatility, Src: src}
	shocks := distuv.Normal{Mu: 0, Sigma: *spreadVol, Src: src}

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d)
	}

	n := len(days)
	y := make([]float64, n)
	x := make([]float64, n)
	px := *basePrice
	// start the spread from its stationary distribution
	s := shocks.Rand() / math.Sqrt(1-*reversion**reversion)
	for i := range days {
		if i > 0 {
			px *= math.Exp(returns.Rand())
			s = *reversion*s + shocks.Rand()
		}
		b := *hedge + *hedgeDrift*float64(i)/float64(max(n-1, 1))
		x[i] = cents(px)
		y[i] = cents(*intercept + b*px + s)
	}
	return pricedata.New(days, y, x)
}

func cents(v float64) float64 {
	return math.Round(v*100) / 100
}
