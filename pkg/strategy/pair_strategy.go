package strategy

import (
	"errors"
	"fmt"

	"github.com/yourusername/quantlink-pairs/pkg/pricedata"
	"github.com/yourusername/quantlink-pairs/pkg/strategy/spread"
)

// PairStrategy binds a hedge-ratio estimator to entry/exit thresholds
type PairStrategy struct {
	Name       string
	Estimator  spread.Estimator
	Thresholds Thresholds
}

// Signals is the annotated output of one strategy pass
type Signals struct {
	Estimates *spread.Estimates
	Steps     []Step
}

// NewPairStrategy validates the thresholds and returns a strategy
func NewPairStrategy(name string, est spread.Estimator, th Thresholds) (*PairStrategy, error) {
	if est == nil {
		return nil, errors.New("strategy: nil estimator")
	}
	if err := th.Validate(); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	return &PairStrategy{Name: name, Estimator: est, Thresholds: th}, nil
}

// NeedsFit reports whether the estimator must be trained first
func (p *PairStrategy) NeedsFit() bool {
	_, ok := p.Estimator.(spread.Fitter)
	return ok
}

// Fit trains a two-phase estimator; it is a no-op for online estimators
func (p *PairStrategy) Fit(train *pricedata.Series) error {
	f, ok := p.Estimator.(spread.Fitter)
	if !ok {
		return nil
	}
	if err := f.Fit(train); err != nil {
		return fmt.Errorf("strategy %s: fit: %w", p.Name, err)
	}
	return nil
}

// Signals estimates the series and runs the position machine over it
func (p *PairStrategy) Signals(series *pricedata.Series) (*Signals, error) {
	est, err := p.Estimator.Estimate(series)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: estimate: %w", p.Name, err)
	}
	steps, err := Generate(est.Rows, p.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", p.Name, err)
	}
	return &Signals{Estimates: est, Steps: steps}, nil
}
