// Package filtering narrows observation tables to a requested domain.
//
// A Constraints value collects per-column predicates (inclusive ranges,
// finite value sets, point-in-polygon tests) and applies their conjunction
// to a frame. An empty Constraints passes every row unchanged.
package filtering

import (
	"fmt"

	"github.com/ctessum/geom"

	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

type boundary struct {
	min table.Value // missing = open below
	max table.Value // missing = open above
}

type polygonConstraint struct {
	latLabel string
	lonLabel string
	polygon  geom.Polygonal
}

// Constraints is a mutable set of row predicates keyed by column label.
// Predicates combine with AND: a row survives Apply only if every
// registered constraint accepts it.
type Constraints struct {
	boundaries map[string]boundary
	supersets  map[string][]table.Value
	polygons   []polygonConstraint
}

func NewConstraints() *Constraints {
	return &Constraints{
		boundaries: make(map[string]boundary),
		supersets:  make(map[string][]table.Value),
	}
}

// AddBoundary registers an inclusive [min,max] range on a column. A missing
// bound leaves that side open; if both bounds are missing the call is a no-op.
func (c *Constraints) AddBoundary(label string, min, max table.Value) {
	if min.IsMissing() && max.IsMissing() {
		return
	}
	c.boundaries[label] = boundary{min: min, max: max}
}

// AddSuperset registers a membership constraint: a row survives only if the
// column's value equals one of the given values. An empty list is a no-op.
func (c *Constraints) AddSuperset(label string, values []table.Value) {
	if len(values) == 0 {
		return
	}
	c.supersets[label] = append([]table.Value(nil), values...)
}

// AddPolygon registers a point-in-polygon test over a lat/lon column pair.
// Each registered polygon is AND-ed independently: with several polygons a
// point must lie inside all of them. Points on an edge count as inside.
func (c *Constraints) AddPolygon(latLabel, lonLabel string, polygon geom.Polygonal) {
	c.polygons = append(c.polygons, polygonConstraint{
		latLabel: latLabel,
		lonLabel: lonLabel,
		polygon:  polygon,
	})
}

// IsConstrained reports whether any boundary or superset constraint is
// registered for the column.
func (c *Constraints) IsConstrained(label string) bool {
	if _, ok := c.boundaries[label]; ok {
		return true
	}
	_, ok := c.supersets[label]
	return ok
}

// Empty reports whether no constraint of any kind is registered.
func (c *Constraints) Empty() bool {
	return len(c.boundaries) == 0 && len(c.supersets) == 0 && len(c.polygons) == 0
}

// Reset drops every registered constraint.
func (c *Constraints) Reset() {
	c.boundaries = make(map[string]boundary)
	c.supersets = make(map[string][]table.Value)
	c.polygons = nil
}

// Apply returns the rows of f satisfying every registered constraint. The
// surviving rows keep their original index values.
func (c *Constraints) Apply(f *table.Frame) (*table.Frame, error) {
	if c.Empty() {
		return f, nil
	}
	mask := make([]bool, f.NumRows())
	for i := range mask {
		mask[i] = true
	}
	for label, b := range c.boundaries {
		if err := c.applyBoundary(f, label, b, mask); err != nil {
			return nil, err
		}
	}
	for label, values := range c.supersets {
		if err := c.applySuperset(f, label, values, mask); err != nil {
			return nil, err
		}
	}
	for _, p := range c.polygons {
		if err := c.applyPolygon(f, p, mask); err != nil {
			return nil, err
		}
	}
	return f.SelectMask(mask), nil
}

// ApplySpecific filters f using only the boundary and superset constraints
// registered for one column, ignoring everything else. Useful when the frame
// does not yet carry the other constrained columns.
func (c *Constraints) ApplySpecific(label string, f *table.Frame) (*table.Frame, error) {
	mask := make([]bool, f.NumRows())
	for i := range mask {
		mask[i] = true
	}
	filtered := false
	if b, ok := c.boundaries[label]; ok {
		if err := c.applyBoundary(f, label, b, mask); err != nil {
			return nil, err
		}
		filtered = true
	}
	if values, ok := c.supersets[label]; ok {
		if err := c.applySuperset(f, label, values, mask); err != nil {
			return nil, err
		}
		filtered = true
	}
	if !filtered {
		return f, nil
	}
	return f.SelectMask(mask), nil
}

// Extremes returns the tightest [min,max] implied by the boundary and
// superset constraints on a column, falling back to the given defaults for
// any side left unconstrained.
func (c *Constraints) Extremes(label string, defMin, defMax table.Value) (table.Value, table.Value) {
	min, max := defMin, defMax
	if b, ok := c.boundaries[label]; ok {
		if !b.min.IsMissing() && min.Less(b.min) {
			min = b.min
		}
		if !b.max.IsMissing() && b.max.Less(max) {
			max = b.max
		}
	}
	if values, ok := c.supersets[label]; ok {
		lo, hi := values[0], values[0]
		for _, v := range values[1:] {
			if v.Less(lo) {
				lo = v
			}
			if hi.Less(v) {
				hi = v
			}
		}
		if min.Less(lo) {
			min = lo
		}
		if hi.Less(max) {
			max = hi
		}
	}
	return min, max
}

func (c *Constraints) applyBoundary(f *table.Frame, label string, b boundary, mask []bool) error {
	col, err := f.Column(label)
	if err != nil {
		return fmt.Errorf("boundary on %q: %w", label, err)
	}
	for row := range mask {
		if !mask[row] {
			continue
		}
		v := col.At(row)
		if v.IsMissing() {
			mask[row] = false
			continue
		}
		if !b.min.IsMissing() && v.Less(b.min) {
			mask[row] = false
			continue
		}
		if !b.max.IsMissing() && b.max.Less(v) {
			mask[row] = false
		}
	}
	return nil
}

func (c *Constraints) applySuperset(f *table.Frame, label string, values []table.Value, mask []bool) error {
	col, err := f.Column(label)
	if err != nil {
		return fmt.Errorf("superset on %q: %w", label, err)
	}
	for row := range mask {
		if !mask[row] {
			continue
		}
		v := col.At(row)
		member := false
		for _, want := range values {
			if v.Equal(want) {
				member = true
				break
			}
		}
		mask[row] = member
	}
	return nil
}

func (c *Constraints) applyPolygon(f *table.Frame, p polygonConstraint, mask []bool) error {
	lat, err := f.Column(p.latLabel)
	if err != nil {
		return fmt.Errorf("polygon latitude %q: %w", p.latLabel, err)
	}
	lon, err := f.Column(p.lonLabel)
	if err != nil {
		return fmt.Errorf("polygon longitude %q: %w", p.lonLabel, err)
	}
	for row := range mask {
		if !mask[row] {
			continue
		}
		if lat.IsNaN(row) || lon.IsNaN(row) {
			mask[row] = false
			continue
		}
		pt := geom.Point{X: lon.At(row).F, Y: lat.At(row).F}
		status := pt.Within(p.polygon)
		if status != geom.Inside && status != geom.OnEdge {
			mask[row] = false
		}
	}
	return nil
}
