package strategy

import (
	"time"

	"github.com/yourusername/quantlink-pairs/pkg/strategy/spread"
)

// Machine holds the position between rows. Transition priority per row:
//  1. inside the exit band -> Flat
//  2. an entry signal -> the signalled side, reversing directly if needed
//  3. otherwise -> keep the previous position
type Machine struct {
	thresholds Thresholds
	position   Position
}

// NewMachine creates a flat machine
func NewMachine(th Thresholds) (*Machine, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	return &Machine{thresholds: th}, nil
}

// Position returns the current state
func (m *Machine) Position() Position { return m.position }

// Reset returns the machine to Flat
func (m *Machine) Reset() { m.position = Flat }

// Next evaluates one row with a usable spread and dispersion
func (m *Machine) Next(spreadValue, dispersion float64) (Signal, Position) {
	sig := m.thresholds.signalFor(spreadValue, dispersion)

	switch {
	case m.thresholds.exits(spreadValue, dispersion):
		m.position = Flat
	case sig == SignalLong:
		m.position = LongSpread
	case sig == SignalShort:
		m.position = ShortSpread
	}
	return sig, m.position
}

// Step is the machine output for one row
type Step struct {
	Time     time.Time
	Signal   Signal
	Position Position

	// Evaluated is false for rows whose status is not OK; such rows carry
	// the previous position forward.
	Evaluated bool
}

// Generate runs a fresh machine over rows in order
func Generate(rows []spread.Row, th Thresholds) ([]Step, error) {
	m, err := NewMachine(th)
	if err != nil {
		return nil, err
	}

	steps := make([]Step, len(rows))
	for i, row := range rows {
		steps[i] = Step{Time: row.Time, Position: m.Position()}
		if !row.OK() {
			continue
		}
		steps[i].Signal, steps[i].Position = m.Next(row.Spread, row.Dispersion)
		steps[i].Evaluated = true
	}
	return steps, nil
}

// Positions extracts the position column
func Positions(steps []Step) []Position {
	out := make([]Position, len(steps))
	for i, s := range steps {
		out[i] = s.Position
	}
	return out
}
