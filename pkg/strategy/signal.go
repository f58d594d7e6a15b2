// Package strategy turns normalised spreads into discrete pair positions.
package strategy

import (
	"fmt"
	"math"

	"github.com/yourusername/quantlink-pairs/pkg/strategy/spread"
)

// ErrInvalidParameter is shared with the estimators so callers can match one sentinel
var ErrInvalidParameter = spread.ErrInvalidParameter

// Signal is the raw entry trigger of a single row
type Signal int8

const (
	SignalShort Signal = -1
	SignalNone  Signal = 0
	SignalLong  Signal = 1
)

func (s Signal) String() string {
	switch s {
	case SignalLong:
		return "long"
	case SignalShort:
		return "short"
	default:
		return "none"
	}
}

// Position is the pair exposure: long spread buys Y and sells Slope units of X
type Position int8

const (
	ShortSpread Position = -1
	Flat        Position = 0
	LongSpread  Position = 1
)

func (p Position) String() string {
	switch p {
	case LongSpread:
		return "LONG_SPREAD"
	case ShortSpread:
		return "SHORT_SPREAD"
	default:
		return "FLAT"
	}
}

// Thresholds are multiples of the dispersion
type Thresholds struct {
	Entry float64 `yaml:"entry"`
	Exit  float64 `yaml:"exit"`
}

// Validate requires 0 <= Exit < Entry with both finite
func (t Thresholds) Validate() error {
	if math.IsNaN(t.Entry) || math.IsInf(t.Entry, 0) || math.IsNaN(t.Exit) || math.IsInf(t.Exit, 0) {
		return fmt.Errorf("%w: thresholds must be finite (entry=%v exit=%v)", ErrInvalidParameter, t.Entry, t.Exit)
	}
	if t.Entry <= 0 {
		return fmt.Errorf("%w: entry must be positive, got %v", ErrInvalidParameter, t.Entry)
	}
	if t.Exit < 0 || t.Exit >= t.Entry {
		return fmt.Errorf("%w: exit must be in [0, entry), got exit=%v entry=%v", ErrInvalidParameter, t.Exit, t.Entry)
	}
	return nil
}

// signalFor classifies spread against ±Entry·dispersion
func (t Thresholds) signalFor(spreadValue, dispersion float64) Signal {
	band := t.Entry * dispersion
	switch {
	case spreadValue < -band:
		return SignalLong
	case spreadValue > band:
		return SignalShort
	default:
		return SignalNone
	}
}

// exits reports whether the spread is inside the exit band
func (t Thresholds) exits(spreadValue, dispersion float64) bool {
	return math.Abs(spreadValue) < t.Exit*dispersion
}
