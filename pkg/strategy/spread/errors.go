package spread

import (
	"errors"

	"github.com/yourusername/quantlink-pairs/pkg/pricedata"
)

var (
	// ErrNotFitted is returned when a two-phase estimator is used before Fit
	ErrNotFitted = errors.New("estimator not fitted")

	// ErrInvalidParameter is returned when a parameter value is invalid
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInsufficientHistory is returned when there are fewer observations than the window needs
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrDegenerateRegression is returned when the regressor has (near) zero variance
	ErrDegenerateRegression = errors.New("degenerate regression")

	// ErrEmptyInput is returned when the price series has no rows
	ErrEmptyInput = pricedata.ErrEmptyInput
)
