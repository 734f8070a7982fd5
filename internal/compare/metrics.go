// Package compare scores interpolated simulation values against the
// observations they were matched to.
package compare

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/ocean-bgc-etl/internal/storer"
	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

var ErrIncomparableStorers = errors.New("compare: storers have different shapes")

// Metric aggregates per-column differences between aligned observation and
// simulation frames.
type Metric interface {
	Name() string
	// Evaluate receives row-aligned columns of equal length.
	Evaluate(obs, sim []float64) float64
}

// RMSE is the root mean squared error of sim against obs.
type RMSE struct{}

func (RMSE) Name() string { return "RMSE" }

func (RMSE) Evaluate(obs, sim []float64) float64 {
	sq := make([]float64, len(obs))
	for i := range obs {
		d := obs[i] - sim[i]
		sq[i] = d * d
	}
	return math.Sqrt(stat.Mean(sq, nil))
}

// Bias is the mean of sim minus obs: positive when the simulation
// overestimates.
type Bias struct{}

func (Bias) Name() string { return "Bias" }

func (Bias) Evaluate(obs, sim []float64) float64 {
	diff := make([]float64, len(obs))
	for i := range obs {
		diff[i] = sim[i] - obs[i]
	}
	return stat.Mean(diff, nil)
}

// EvaluateStorers computes a metric per compared variable. Both storers are
// restricted to the named variables; the restricted frames must have
// identical shapes. Rows that are fully NaN on both sides carry no signal
// and are dropped first; a NaN on one side only propagates into the result.
func EvaluateStorers(m Metric, obs, sim *storer.Storer, variables []string) (map[string]float64, error) {
	obsCols, err := columns(obs, variables)
	if err != nil {
		return nil, err
	}
	simCols, err := columns(sim, variables)
	if err != nil {
		return nil, err
	}
	if obs.NumRows() != sim.NumRows() {
		return nil, fmt.Errorf("%w: observations (%d, %d) vs simulations (%d, %d)",
			ErrIncomparableStorers,
			obs.NumRows(), len(variables), sim.NumRows(), len(variables))
	}

	keep := make([]bool, obs.NumRows())
	for row := range keep {
		for _, label := range variables {
			if !obsCols[label].IsNaN(row) || !simCols[label].IsNaN(row) {
				keep[row] = true
				break
			}
		}
	}

	out := make(map[string]float64, len(variables))
	for _, label := range variables {
		var o, s []float64
		for row, ok := range keep {
			if !ok {
				continue
			}
			o = append(o, obsCols[label].At(row).F)
			s = append(s, simCols[label].At(row).F)
		}
		out[label] = m.Evaluate(o, s)
	}
	return out, nil
}

func columns(s *storer.Storer, variables []string) (map[string]*table.Series, error) {
	out := make(map[string]*table.Series, len(variables))
	for _, label := range variables {
		col, err := s.Frame().Column(label)
		if err != nil {
			return nil, err
		}
		out[label] = col
	}
	return out, nil
}
