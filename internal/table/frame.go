// Package table implements the columnar in-memory table the pipeline flows
// through: ordered, typed series plus a preserved integer row index.
//
// The index survives filtering and row selection, which is what lets the
// spatial matcher re-key simulation rows onto observation rows and lets the
// interpolator find every profile level sharing one observation index.
package table

import (
	"errors"
	"fmt"
)

var ErrNoSuchColumn = errors.New("table: no such column")

// Frame is a set of equally sized series with a row index. Row positions run
// 0..NumRows-1; index values are arbitrary ints carried along through slicing.
type Frame struct {
	index   []int
	cols    []*Series
	byLabel map[string]*Series

	// byIndex caches index value -> row positions, built on first Loc call.
	byIndex map[int][]int
}

// NewFrame builds a frame from columns, with a default 0..n-1 index.
// All columns must have the same length and distinct labels.
func NewFrame(cols ...*Series) (*Frame, error) {
	f := &Frame{byLabel: make(map[string]*Series, len(cols))}
	n := -1
	for _, col := range cols {
		if n == -1 {
			n = col.Len()
		} else if col.Len() != n {
			return nil, fmt.Errorf("table: column %q has %d rows, want %d",
				col.Label(), col.Len(), n)
		}
		if _, dup := f.byLabel[col.Label()]; dup {
			return nil, fmt.Errorf("table: duplicate column %q", col.Label())
		}
		f.cols = append(f.cols, col)
		f.byLabel[col.Label()] = col
	}
	if n == -1 {
		n = 0
	}
	f.index = make([]int, n)
	for i := range f.index {
		f.index[i] = i
	}
	return f, nil
}

// WithIndex replaces the row index. The length must match the row count.
func (f *Frame) WithIndex(index []int) (*Frame, error) {
	if len(index) != f.NumRows() {
		return nil, fmt.Errorf("table: index length %d does not match %d rows",
			len(index), f.NumRows())
	}
	out := f.shallowClone()
	out.index = append([]int(nil), index...)
	return out, nil
}

func (f *Frame) shallowClone() *Frame {
	out := &Frame{
		index:   append([]int(nil), f.index...),
		cols:    append([]*Series(nil), f.cols...),
		byLabel: make(map[string]*Series, len(f.cols)),
	}
	for _, col := range out.cols {
		out.byLabel[col.Label()] = col
	}
	return out
}

func (f *Frame) NumRows() int {
	if len(f.cols) == 0 {
		return len(f.index)
	}
	return f.cols[0].Len()
}

func (f *Frame) NumCols() int { return len(f.cols) }

// Index returns the row index values, position-aligned with the rows.
func (f *Frame) Index() []int { return f.index }

// Labels returns column labels in column order.
func (f *Frame) Labels() []string {
	labels := make([]string, len(f.cols))
	for i, col := range f.cols {
		labels[i] = col.Label()
	}
	return labels
}

func (f *Frame) HasColumn(label string) bool {
	_, ok := f.byLabel[label]
	return ok
}

func (f *Frame) Column(label string) (*Series, error) {
	col, ok := f.byLabel[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrNoSuchColumn, label, f.Labels())
	}
	return col, nil
}

// AddColumn appends a column. Its length must match the frame.
func (f *Frame) AddColumn(col *Series) error {
	if _, dup := f.byLabel[col.Label()]; dup {
		return fmt.Errorf("table: duplicate column %q", col.Label())
	}
	if len(f.cols) > 0 && col.Len() != f.NumRows() {
		return fmt.Errorf("table: column %q has %d rows, want %d",
			col.Label(), col.Len(), f.NumRows())
	}
	f.cols = append(f.cols, col)
	f.byLabel[col.Label()] = col
	f.byIndex = nil
	return nil
}

// PopColumn removes a column and returns it.
func (f *Frame) PopColumn(label string) (*Series, error) {
	col, ok := f.byLabel[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchColumn, label)
	}
	delete(f.byLabel, label)
	for i, c := range f.cols {
		if c == col {
			f.cols = append(f.cols[:i], f.cols[i+1:]...)
			break
		}
	}
	return col, nil
}

// SelectMask returns the rows where mask is true, keeping their index values.
func (f *Frame) SelectMask(mask []bool) *Frame {
	rows := make([]int, 0, len(mask))
	for i, keep := range mask {
		if keep {
			rows = append(rows, i)
		}
	}
	return f.Take(rows)
}

// Take returns a new frame holding the given row positions, keeping their
// index values.
func (f *Frame) Take(rows []int) *Frame {
	out := &Frame{byLabel: make(map[string]*Series, len(f.cols))}
	out.index = make([]int, len(rows))
	for i, r := range rows {
		out.index[i] = f.index[r]
	}
	for _, col := range f.cols {
		taken := col.Take(rows)
		out.cols = append(out.cols, taken)
		out.byLabel[taken.Label()] = taken
	}
	return out
}

// Loc returns the row positions whose index value equals idx, in row order.
func (f *Frame) Loc(idx int) []int {
	if f.byIndex == nil {
		f.byIndex = make(map[int][]int, len(f.index))
		for pos, v := range f.index {
			f.byIndex[v] = append(f.byIndex[v], pos)
		}
	}
	return f.byIndex[idx]
}

// UniqueIndex returns the distinct index values in first-appearance order.
func (f *Frame) UniqueIndex() []int {
	seen := make(map[int]bool, len(f.index))
	out := make([]int, 0, len(f.index))
	for _, v := range f.index {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Row returns the values of one row position, in column order.
func (f *Frame) Row(pos int) []Value {
	row := make([]Value, len(f.cols))
	for i, col := range f.cols {
		row[i] = col.At(pos)
	}
	return row
}

// Concat appends other's rows below f's. Both frames must have the same
// columns in the same order; index values are carried over unchanged.
func (f *Frame) Concat(other *Frame) (*Frame, error) {
	if len(f.cols) != len(other.cols) {
		return nil, fmt.Errorf("table: concat column count mismatch: %d vs %d",
			len(f.cols), len(other.cols))
	}
	out := &Frame{byLabel: make(map[string]*Series, len(f.cols))}
	for i, col := range f.cols {
		if col.Label() != other.cols[i].Label() {
			return nil, fmt.Errorf("table: concat column mismatch at %d: %q vs %q",
				i, col.Label(), other.cols[i].Label())
		}
		joined, err := col.append(other.cols[i])
		if err != nil {
			return nil, err
		}
		out.cols = append(out.cols, joined)
		out.byLabel[joined.Label()] = joined
	}
	out.index = append(append([]int(nil), f.index...), other.index...)
	return out, nil
}

// ResetIndex renumbers the index 0..n-1.
func (f *Frame) ResetIndex() *Frame {
	out := f.shallowClone()
	for i := range out.index {
		out.index[i] = i
	}
	return out
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		index:   append([]int(nil), f.index...),
		byLabel: make(map[string]*Series, len(f.cols)),
	}
	for _, col := range f.cols {
		c := col.Clone()
		out.cols = append(out.cols, c)
		out.byLabel[c.Label()] = c
	}
	return out
}

// Reorder returns a frame with columns rearranged into the given label order.
// Every label must exist; columns not named are dropped.
func (f *Frame) Reorder(labels []string) (*Frame, error) {
	out := &Frame{
		index:   append([]int(nil), f.index...),
		byLabel: make(map[string]*Series, len(labels)),
	}
	for _, label := range labels {
		col, ok := f.byLabel[label]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNoSuchColumn, label)
		}
		out.cols = append(out.cols, col)
		out.byLabel[label] = col
	}
	return out, nil
}
