package backtest

import (
	"errors"

	"github.com/yourusername/quantlink-pairs/pkg/pricedata"
	"github.com/yourusername/quantlink-pairs/pkg/strategy/spread"
)

var (
	// ErrInvalidParameter is returned for bad engine inputs or configuration values
	ErrInvalidParameter = spread.ErrInvalidParameter

	// ErrInsufficientHistory is returned when nothing is left after warm-up
	ErrInsufficientHistory = spread.ErrInsufficientHistory

	// ErrEmptyInput is returned when a phase selects no price rows
	ErrEmptyInput = pricedata.ErrEmptyInput

	// ErrNonPositivePrice is returned when a series carries a zero or negative price
	ErrNonPositivePrice = pricedata.ErrNonPositivePrice

	// ErrInvalidConfig is returned when the configuration file fails validation
	ErrInvalidConfig = errors.New("invalid config")
)
