// Package matching associates observation points with their nearest
// simulation grid cells and re-keys the selected cells onto the
// observation index.
package matching

import (
	"errors"
	"fmt"
)

var (
	ErrShapeMismatch    = errors.New("matching: mask shapes differ")
	ErrGridFieldMissing = errors.New("matching: grid field not found")
)

// GridFile is one simulation file: 2-D horizontal fields, optionally
// stacked over vertical levels, addressed by row-major flat index.
type GridFile interface {
	FieldNames() []string
	// Dims returns the horizontal grid dimensions (rows, columns).
	Dims() (jdm, idm int)
	// Levels returns the number of vertical levels; 1 for surface grids.
	Levels() int
	// LevelDepths returns one depth per level, negative downwards.
	LevelDepths() ([]float64, error)
	// ReadField returns a field flattened row-major: jdm*idm values for a
	// surface field, Levels()*jdm*idm with the level varying slowest for a
	// 3-D field. Land cells are NaN.
	ReadField(name string) ([]float64, error)
}

// Mask is a boolean selection over a 2-D grid.
type Mask struct {
	jdm, idm int
	cells    []bool
}

// NewEmptyMask selects every cell of a jdm x idm grid.
func NewEmptyMask(jdm, idm int) *Mask {
	cells := make([]bool, jdm*idm)
	for i := range cells {
		cells[i] = true
	}
	return &Mask{jdm: jdm, idm: idm, cells: cells}
}

// NewMask selects nothing.
func NewMask(jdm, idm int) *Mask {
	return &Mask{jdm: jdm, idm: idm, cells: make([]bool, jdm*idm)}
}

func (m *Mask) Dims() (jdm, idm int) { return m.jdm, m.idm }

// Set marks one flat cell as selected.
func (m *Mask) Set(flat int) { m.cells[flat] = true }

// Selected reports whether a flat cell is selected.
func (m *Mask) Selected(flat int) bool { return m.cells[flat] }

// Intersect keeps only the cells selected in both masks.
func (m *Mask) Intersect(other *Mask) error {
	if m.jdm != other.jdm || m.idm != other.idm {
		return fmt.Errorf("%w: (%d, %d) vs (%d, %d)",
			ErrShapeMismatch, m.jdm, m.idm, other.jdm, other.idm)
	}
	for i := range m.cells {
		m.cells[i] = m.cells[i] && other.cells[i]
	}
	return nil
}

// IntersectValues keeps only the cells where values is true. values must
// be flattened row-major like the mask.
func (m *Mask) IntersectValues(values []bool) error {
	if len(values) != len(m.cells) {
		return fmt.Errorf("%w: %d cells vs %d values",
			ErrShapeMismatch, len(m.cells), len(values))
	}
	for i := range m.cells {
		m.cells[i] = m.cells[i] && values[i]
	}
	return nil
}

// FlatIndex returns the selected flat cell indices in ascending order.
func (m *Mask) FlatIndex() []int {
	var out []int
	for i, ok := range m.cells {
		if ok {
			out = append(out, i)
		}
	}
	return out
}
