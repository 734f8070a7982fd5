package table

import (
	"fmt"
	"math"
	"time"
)

// Series is one named, typed column. Only the slice matching Kind is set.
type Series struct {
	label string
	kind  Kind

	f []float64
	i []int64
	s []string
	t []time.Time
}

func NewFloatSeries(label string, data []float64) *Series {
	return &Series{label: label, kind: Float, f: data}
}

func NewIntSeries(label string, data []int64) *Series {
	return &Series{label: label, kind: Int, i: data}
}

func NewStringSeries(label string, data []string) *Series {
	return &Series{label: label, kind: String, s: data}
}

func NewTimeSeries(label string, data []time.Time) *Series {
	return &Series{label: label, kind: Time, t: data}
}

// NewConstantSeries creates a series of n copies of def.
func NewConstantSeries(label string, n int, def Value) *Series {
	switch def.Kind {
	case Float:
		data := make([]float64, n)
		for i := range data {
			data[i] = def.F
		}
		return NewFloatSeries(label, data)
	case Int:
		data := make([]int64, n)
		for i := range data {
			data[i] = def.I
		}
		return NewIntSeries(label, data)
	case Time:
		data := make([]time.Time, n)
		for i := range data {
			data[i] = def.T
		}
		return NewTimeSeries(label, data)
	default:
		data := make([]string, n)
		for i := range data {
			data[i] = def.S
		}
		return NewStringSeries(label, data)
	}
}

func (s *Series) Label() string { return s.label }
func (s *Series) Kind() Kind    { return s.kind }

func (s *Series) Len() int {
	switch s.kind {
	case Float:
		return len(s.f)
	case Int:
		return len(s.i)
	case Time:
		return len(s.t)
	default:
		return len(s.s)
	}
}

func (s *Series) At(row int) Value {
	switch s.kind {
	case Float:
		return FloatVal(s.f[row])
	case Int:
		return IntVal(s.i[row])
	case Time:
		return TimeVal(s.t[row])
	default:
		return StringVal(s.s[row])
	}
}

func (s *Series) Set(row int, v Value) {
	switch s.kind {
	case Float:
		s.f[row] = v.F
	case Int:
		s.i[row] = v.I
	case Time:
		s.t[row] = v.T
	default:
		s.s[row] = v.S
	}
}

// IsNaN reports whether the row holds a missing value. Only float NaN and the
// zero time count as missing.
func (s *Series) IsNaN(row int) bool {
	switch s.kind {
	case Float:
		return math.IsNaN(s.f[row])
	case Time:
		return s.t[row].IsZero()
	default:
		return false
	}
}

// Floats exposes the backing slice of a float series.
func (s *Series) Floats() []float64 {
	if s.kind != Float {
		panic(fmt.Sprintf("table: series %q is %s, not float", s.label, s.kind))
	}
	return s.f
}

// Times exposes the backing slice of a time series.
func (s *Series) Times() []time.Time {
	if s.kind != Time {
		panic(fmt.Sprintf("table: series %q is %s, not time", s.label, s.kind))
	}
	return s.t
}

// Ints exposes the backing slice of an int series.
func (s *Series) Ints() []int64 {
	if s.kind != Int {
		panic(fmt.Sprintf("table: series %q is %s, not int", s.label, s.kind))
	}
	return s.i
}

// Strings exposes the backing slice of a string series.
func (s *Series) Strings() []string {
	if s.kind != String {
		panic(fmt.Sprintf("table: series %q is %s, not string", s.label, s.kind))
	}
	return s.s
}

// Rename returns a copy of the series under a new label, sharing the backing
// slice.
func (s *Series) Rename(label string) *Series {
	clone := *s
	clone.label = label
	return &clone
}

// Clone returns a deep copy.
func (s *Series) Clone() *Series {
	clone := &Series{label: s.label, kind: s.kind}
	switch s.kind {
	case Float:
		clone.f = append([]float64(nil), s.f...)
	case Int:
		clone.i = append([]int64(nil), s.i...)
	case Time:
		clone.t = append([]time.Time(nil), s.t...)
	default:
		clone.s = append([]string(nil), s.s...)
	}
	return clone
}

// Take returns a new series holding the given row positions, in order.
func (s *Series) Take(rows []int) *Series {
	out := &Series{label: s.label, kind: s.kind}
	switch s.kind {
	case Float:
		out.f = make([]float64, len(rows))
		for i, r := range rows {
			out.f[i] = s.f[r]
		}
	case Int:
		out.i = make([]int64, len(rows))
		for i, r := range rows {
			out.i[i] = s.i[r]
		}
	case Time:
		out.t = make([]time.Time, len(rows))
		for i, r := range rows {
			out.t[i] = s.t[r]
		}
	default:
		out.s = make([]string, len(rows))
		for i, r := range rows {
			out.s[i] = s.s[r]
		}
	}
	return out
}

func (s *Series) append(other *Series) (*Series, error) {
	if s.kind != other.kind {
		return nil, fmt.Errorf("table: cannot append %s series to %s series %q",
			other.kind, s.kind, s.label)
	}
	out := &Series{label: s.label, kind: s.kind}
	switch s.kind {
	case Float:
		out.f = append(append([]float64(nil), s.f...), other.f...)
	case Int:
		out.i = append(append([]int64(nil), s.i...), other.i...)
	case Time:
		out.t = append(append([]time.Time(nil), s.t...), other.t...)
	default:
		out.s = append(append([]string(nil), s.s...), other.s...)
	}
	return out, nil
}
