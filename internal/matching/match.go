package matching

import (
	"fmt"

	"github.com/couchcryptid/ocean-bgc-etl/internal/table"
)

// Match maps each observation row index to the flat index of its selected
// simulation cell. Several observations may map to the same cell.
type Match struct {
	obsIndex []int
	simFlat  []int
}

func NewMatch(obsIndex, simFlat []int) (Match, error) {
	if len(obsIndex) != len(simFlat) {
		return Match{}, fmt.Errorf("matching: %d observation indices vs %d cell indices",
			len(obsIndex), len(simFlat))
	}
	return Match{
		obsIndex: append([]int(nil), obsIndex...),
		simFlat:  append([]int(nil), simFlat...),
	}, nil
}

func (m Match) Len() int { return len(m.obsIndex) }

// Apply re-keys a simulation frame indexed by flat cell index onto the
// observation index. Each observation gets the rows of its selected cell;
// when two observations picked the same cell, the cell's rows are
// duplicated under both observation indices.
func (m Match) Apply(sim *table.Frame) (*table.Frame, error) {
	var positions []int
	var index []int
	for i, obsIdx := range m.obsIndex {
		cellRows := sim.Loc(m.simFlat[i])
		if len(cellRows) == 0 {
			return nil, fmt.Errorf("matching: no simulation rows at flat index %d", m.simFlat[i])
		}
		for _, pos := range cellRows {
			positions = append(positions, pos)
			index = append(index, obsIdx)
		}
	}
	return sim.Take(positions).WithIndex(index)
}
