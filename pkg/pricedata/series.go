// Package pricedata defines the aligned two-asset price table consumed by the
// hedge-ratio estimators.
package pricedata

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	// ErrEmptyInput is returned when a series has no rows
	ErrEmptyInput = errors.New("empty input")

	// ErrMisaligned is returned when the date and price columns differ in length
	ErrMisaligned = errors.New("misaligned columns")

	// ErrUnordered is returned when dates are not strictly increasing
	ErrUnordered = errors.New("dates not strictly increasing")

	// ErrMissingValue is returned when a price is NaN or infinite
	ErrMissingValue = errors.New("missing value")

	// ErrNonPositivePrice is returned when a price is zero or negative
	ErrNonPositivePrice = errors.New("non-positive price")
)

// Series is an ordered, date-indexed table of (price_y, price_x) pairs.
// Y is the dependent leg, X the hedge leg.
type Series struct {
	Dates []time.Time
	Y     []float64
	X     []float64
}

// New builds a Series and validates it
func New(dates []time.Time, y, x []float64) (*Series, error) {
	s := &Series{Dates: dates, Y: y, X: x}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Len returns the number of rows
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Dates)
}

// Validate checks the alignment invariants
func (s *Series) Validate() error {
	if s.Len() == 0 {
		return ErrEmptyInput
	}
	if len(s.Y) != len(s.Dates) || len(s.X) != len(s.Dates) {
		return fmt.Errorf("%w: dates=%d y=%d x=%d", ErrMisaligned, len(s.Dates), len(s.Y), len(s.X))
	}
	for i := range s.Dates {
		if i > 0 && !s.Dates[i].After(s.Dates[i-1]) {
			return fmt.Errorf("%w at row %d (%s)", ErrUnordered, i, s.Dates[i].Format("2006-01-02"))
		}
		if !finite(s.Y[i]) || !finite(s.X[i]) {
			return fmt.Errorf("%w at row %d", ErrMissingValue, i)
		}
		if s.Y[i] <= 0 || s.X[i] <= 0 {
			return fmt.Errorf("%w at row %d (%s): y=%g x=%g", ErrNonPositivePrice, i, s.Dates[i].Format("2006-01-02"), s.Y[i], s.X[i])
		}
	}
	return nil
}

// Between returns a copy restricted to start <= date <= end.
// A zero start or end leaves that side open.
func (s *Series) Between(start, end time.Time) *Series {
	lo := 0
	if !start.IsZero() {
		lo = sort.Search(len(s.Dates), func(i int) bool { return !s.Dates[i].Before(start) })
	}
	hi := len(s.Dates)
	if !end.IsZero() {
		hi = sort.Search(len(s.Dates), func(i int) bool { return s.Dates[i].After(end) })
	}
	if hi < lo {
		hi = lo
	}
	return s.Slice(lo, hi)
}

// Slice returns a copy of rows [from, to)
func (s *Series) Slice(from, to int) *Series {
	out := &Series{
		Dates: make([]time.Time, to-from),
		Y:     make([]float64, to-from),
		X:     make([]float64, to-from),
	}
	copy(out.Dates, s.Dates[from:to])
	copy(out.Y, s.Y[from:to])
	copy(out.X, s.X[from:to])
	return out
}

// Days returns the calendar span between the first and last row
func (s *Series) Days() float64 {
	if s.Len() < 2 {
		return 0
	}
	return s.Dates[len(s.Dates)-1].Sub(s.Dates[0]).Hours() / 24
}

// Quote is a single dated close for one instrument
type Quote struct {
	Date  time.Time
	Close float64
}

// Align inner-joins two quote lists on date, dropping rows where either
// close is missing, and returns them as a Series sorted by date.
func Align(y, x []Quote) (*Series, error) {
	xByDate := make(map[int64]float64, len(x))
	for _, q := range x {
		if finite(q.Close) {
			xByDate[q.Date.Unix()] = q.Close
		}
	}

	joined := make([]Quote, 0, len(y))
	for _, q := range y {
		if !finite(q.Close) {
			continue
		}
		if _, ok := xByDate[q.Date.Unix()]; ok {
			joined = append(joined, q)
		}
	}
	sort.Slice(joined, func(i, j int) bool { return joined[i].Date.Before(joined[j].Date) })

	s := &Series{
		Dates: make([]time.Time, 0, len(joined)),
		Y:     make([]float64, 0, len(joined)),
		X:     make([]float64, 0, len(joined)),
	}
	for i, q := range joined {
		if i > 0 && q.Date.Equal(joined[i-1].Date) {
			continue
		}
		s.Dates = append(s.Dates, q.Date)
		s.Y = append(s.Y, q.Close)
		s.X = append(s.X, xByDate[q.Date.Unix()])
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
