package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFeatureConstruction reports a derived-variable dependency graph that
// cannot be fully realized (a cycle, or an input that is neither loaded nor
// derivable).
var ErrFeatureConstruction = errors.New("schema: features cannot be constructed")

// ConstructableFeatures orders the set's features so that each one appears
// after everything it consumes: a level-batched Kahn sort over the feature
// dependency graph, seeded with the available (already loaded) names.
// Features in one batch only depend on loaded variables or earlier batches.
func (s *Set) ConstructableFeatures(available []string) ([]Feature, error) {
	features := s.Features()
	if len(features) == 0 {
		return nil, nil
	}

	have := make(map[string]bool, len(available))
	for _, name := range available {
		have[name] = true
	}

	// remaining unmet inputs per feature, and input name -> dependents.
	missing := make(map[string]int, len(features))
	dependents := make(map[string][]string)
	byName := make(map[string]Feature, len(features))
	for _, f := range features {
		byName[f.Name()] = f
		for _, input := range f.RequiredInputs() {
			if !have[input] {
				missing[f.Name()]++
				dependents[input] = append(dependents[input], f.Name())
			}
		}
	}

	// Worklist of features whose inputs are all satisfied.
	var queue []string
	for _, f := range features {
		if missing[f.Name()] == 0 {
			queue = append(queue, f.Name())
		}
	}

	ordered := make([]Feature, 0, len(features))
	done := make(map[string]bool, len(features))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if done[name] {
			continue
		}
		done[name] = true
		ordered = append(ordered, byName[name])
		for _, dep := range dependents[name] {
			missing[dep]--
			if missing[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(ordered) != len(features) {
		var stranded []string
		for _, f := range features {
			if !done[f.Name()] {
				stranded = append(stranded, f.Name())
			}
		}
		return nil, fmt.Errorf("%w: %s depend on variables that are neither loaded nor derivable",
			ErrFeatureConstruction, strings.Join(stranded, ", "))
	}
	return ordered, nil
}
