package spread

import (
	"fmt"

	"github.com/yourusername/quantlink-pairs/pkg/pricedata"
)

// Estimator produces per-row hedge estimates, spread and dispersion for a series.
// Implementations hold no state that changes across Estimate calls.
type Estimator interface {
	Method() Method
	Estimate(series *pricedata.Series) (*Estimates, error)
}

// Phase is the lifecycle stage of a two-phase estimator
type Phase uint8

const (
	PhaseUnfitted Phase = iota
	PhaseFitted
)

func (p Phase) String() string {
	if p == PhaseFitted {
		return "fitted"
	}
	return "unfitted"
}

// Fitter is an Estimator that must be trained before Estimate can be called
type Fitter interface {
	Estimator
	Fit(train *pricedata.Series) error
	Phase() Phase
}

// Config selects and parameterises an estimator
type Config struct {
	Method           Method
	Window           int
	Delta            float64
	MeasurementNoise float64
}

// New creates an estimator from configuration
func New(cfg Config) (Estimator, error) {
	switch cfg.Method {
	case MethodStatic:
		return NewStatic(cfg.Window)
	case MethodRolling:
		return NewRolling(cfg.Window)
	case MethodKalman:
		return NewKalman(cfg.Delta, cfg.MeasurementNoise)
	default:
		return nil, fmt.Errorf("%w: unknown method %q", ErrInvalidParameter, cfg.Method)
	}
}

func validateSeries(series *pricedata.Series) error {
	if series.Len() == 0 {
		return ErrEmptyInput
	}
	if err := series.Validate(); err != nil {
		return fmt.Errorf("invalid series: %w", err)
	}
	return nil
}

func newRows(series *pricedata.Series) []Row {
	rows := make([]Row, series.Len())
	for i := range rows {
		rows[i] = Row{
			Time:   series.Dates[i],
			PriceY: series.Y[i],
			PriceX: series.X[i],
		}
	}
	return rows
}
