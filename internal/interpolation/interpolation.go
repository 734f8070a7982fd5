// Package interpolation relocates simulation profiles onto observed depths.
//
// After spatial matching, a simulation storer holds several depth levels per
// observation index. The interpolator reduces each profile to a single row
// whose depth equals the observation's, interpolating the depth-dependent
// columns along the vertical axis.
package interpolation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/interp"

	"github.com/couchcryptid/ocean-bgc-etl/internal/storer"
	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

// Kind selects the 1-D interpolation method along the depth axis.
type Kind string

const (
	Linear Kind = "linear"
	Cubic  Kind = "cubic"
)

var ErrUnknownKind = errors.New("interpolation: unknown kind")

// Interpolator interpolates the named simulation columns onto observation
// depths. Columns not named are treated as constant along the profile and
// copied from its first row.
type Interpolator struct {
	sim          *storer.Storer
	depthLabel   string
	interpolated map[string]bool
	kind         Kind
}

func New(sim *storer.Storer, interpolatedLabels []string, kind Kind) (*Interpolator, error) {
	if kind == "" {
		kind = Linear
	}
	if kind != Linear && kind != Cubic {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	interpolated := make(map[string]bool, len(interpolatedLabels))
	for _, label := range interpolatedLabels {
		if !sim.Frame().HasColumn(label) {
			return nil, fmt.Errorf("interpolation: %w", mustColumnErr(sim.Frame(), label))
		}
		interpolated[label] = true
	}
	return &Interpolator{
		sim:          sim,
		depthLabel:   sim.Variables().DepthName(),
		interpolated: interpolated,
		kind:         kind,
	}, nil
}

func mustColumnErr(f *table.Frame, label string) error {
	_, err := f.Column(label)
	return err
}

func (ip *Interpolator) predictor() interp.FittablePredictor {
	if ip.kind == Cubic {
		return &interp.AkimaSpline{}
	}
	return &interp.PiecewiseLinear{}
}

// profile is one matched location's simulation rows ordered by depth
// magnitude, shallow first.
type profile struct {
	positions []int
	depths    []float64 // absolute values, strictly increasing
}

func (ip *Interpolator) profileAt(idx int) (profile, bool) {
	positions := ip.sim.Frame().Loc(idx)
	if len(positions) == 0 {
		return profile{}, false
	}
	depthCol, _ := ip.sim.Frame().Column(ip.depthLabel)
	sort.Slice(positions, func(i, j int) bool {
		return math.Abs(depthCol.At(positions[i]).F) < math.Abs(depthCol.At(positions[j]).F)
	})
	p := profile{}
	for _, pos := range positions {
		d := math.Abs(depthCol.At(pos).F)
		if len(p.depths) > 0 && d == p.depths[len(p.depths)-1] {
			continue
		}
		p.positions = append(p.positions, pos)
		p.depths = append(p.depths, d)
	}
	return p, true
}

// InterpolateRow produces the simulation row for one observation index and
// depth. The depth column always carries the observation's depth, even when
// it is NaN or outside the profile's range.
func (ip *Interpolator) InterpolateRow(idx int, obsDepth float64) ([]table.Value, error) {
	prof, ok := ip.profileAt(idx)
	if !ok {
		return nil, fmt.Errorf("interpolation: no simulation rows at index %d", idx)
	}
	frame := ip.sim.Frame()
	labels := frame.Labels()
	out := make([]table.Value, len(labels))

	first := prof.positions[0]
	shallowest := prof.positions[0]
	deepest := prof.positions[len(prof.positions)-1]
	mag := math.Abs(obsDepth)

	for i, label := range labels {
		col, err := frame.Column(label)
		if err != nil {
			return nil, err
		}
		switch {
		case label == ip.depthLabel:
			out[i] = table.FloatVal(obsDepth)
		case !ip.interpolated[label]:
			out[i] = col.At(first)
		case math.IsNaN(obsDepth):
			out[i] = table.NaN()
		case mag > prof.depths[len(prof.depths)-1]:
			out[i] = col.At(deepest)
		case mag < prof.depths[0]:
			out[i] = col.At(shallowest)
		case len(prof.positions) == 1:
			out[i] = col.At(first)
		default:
			ys := make([]float64, len(prof.positions))
			for j, pos := range prof.positions {
				ys[j] = col.At(pos).F
			}
			pred := ip.predictor()
			if err := pred.Fit(prof.depths, ys); err != nil {
				return nil, fmt.Errorf("interpolation: fit %q: %w", label, err)
			}
			out[i] = table.FloatVal(pred.Predict(mag))
		}
	}
	return out, nil
}

// InterpolateStorer applies InterpolateRow to every observation row whose
// index appears in the simulation storer. The result keeps the simulation's
// schema, category and providers: it is simulation data relocated onto
// observation depths, not observation data.
func (ip *Interpolator) InterpolateStorer(obs *storer.Storer) (*storer.Storer, error) {
	obsDepth, err := obs.Frame().Column(obs.Variables().DepthName())
	if err != nil {
		return nil, err
	}

	var rows [][]table.Value
	var index []int
	for pos := 0; pos < obs.Frame().NumRows(); pos++ {
		idx := obs.Frame().Index()[pos]
		if len(ip.sim.Frame().Loc(idx)) == 0 {
			continue
		}
		row, err := ip.InterpolateRow(idx, obsDepth.At(pos).F)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		index = append(index, idx)
	}

	frame, err := framesFromRows(ip.sim.Frame(), rows, index)
	if err != nil {
		return nil, err
	}
	return storer.New(frame, ip.sim.Variables(), ip.sim.Category(), ip.sim.Providers())
}

// framesFromRows builds a frame with template's columns from assembled rows.
func framesFromRows(template *table.Frame, rows [][]table.Value, index []int) (*table.Frame, error) {
	labels := template.Labels()
	cols := make([]*table.Series, len(labels))
	for i, label := range labels {
		src, err := template.Column(label)
		if err != nil {
			return nil, err
		}
		cols[i] = table.NewConstantSeries(label, len(rows), zeroFor(src.Kind()))
		for row := range rows {
			cols[i].Set(row, rows[row][i])
		}
	}
	frame, err := table.NewFrame(cols...)
	if err != nil {
		return nil, err
	}
	return frame.WithIndex(index)
}

func zeroFor(kind table.Kind) table.Value {
	switch kind {
	case table.Float:
		return table.NaN()
	case table.Int:
		return table.IntVal(0)
	case table.Time:
		return table.TimeVal(time.Time{})
	default:
		return table.StringVal("")
	}
}
