package storer

import (
	"errors"
	"sort"
)

var ErrDifferentOrigin = errors.New("storer: slices come from different storers")

// Slice is a lightweight row selection over a parent storer. It shares the
// parent's backing frame and only materializes a copy on demand.
type Slice struct {
	parent    *Storer
	positions []int
}

func (sl Slice) Parent() *Storer { return sl.parent }
func (sl Slice) NumRows() int    { return len(sl.positions) }
func (sl Slice) Empty() bool     { return len(sl.positions) == 0 }

// Union merges two slices of the same parent, deduplicating rows selected
// by both and keeping parent row order.
func (sl Slice) Union(other Slice) (Slice, error) {
	if sl.parent != other.parent {
		return Slice{}, ErrDifferentOrigin
	}
	seen := make(map[int]bool, len(sl.positions)+len(other.positions))
	var merged []int
	for _, pos := range append(append([]int(nil), sl.positions...), other.positions...) {
		if !seen[pos] {
			seen[pos] = true
			merged = append(merged, pos)
		}
	}
	sort.Ints(merged)
	return Slice{parent: sl.parent, positions: merged}, nil
}

// Storer materializes the selection as an independent storer. Selected rows
// keep their parent index values.
func (sl Slice) Storer() *Storer {
	return &Storer{
		frame:     sl.parent.frame.Take(sl.positions),
		variables: sl.parent.variables,
		category:  sl.parent.category,
		providers: sl.parent.providers,
	}
}
