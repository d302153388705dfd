package sweep

import (
	"sort"

	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/strategy"
)

// Grid maps a parameter name to its candidate values.
type Grid map[string][]any

// Keys returns the parameter names in sorted order.
func (g Grid) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Size returns the number of combinations the grid expands to.
func (g Grid) Size() int {
	n := 1
	for _, values := range g {
		n *= len(values)
	}
	return n
}

// Combination is one point of the expanded grid.
type Combination struct {
	Index  int             `json:"index"`
	Params strategy.Params `json:"params"`
}

// Expand returns the Cartesian product of grid merged over fixed. Keys are
// enumerated in sorted order with the last key varying fastest, so the
// indices are stable for a given grid. Grid values override fixed ones. An
// empty grid yields a single combination made of the fixed parameters.
func Expand(grid Grid, fixed strategy.Params) ([]Combination, error) {
	keys := grid.Keys()
	for _, k := range keys {
		if len(grid[k]) == 0 {
			return nil, core.Errorf(core.ErrMalformedGrid, "parameter %q has no candidate values", k)
		}
	}

	combos := make([]Combination, 0, grid.Size())
	current := make(strategy.Params, len(keys))

	var walk func(depth int)
	walk = func(depth int) {
		if depth == len(keys) {
			combos = append(combos, Combination{
				Index:  len(combos),
				Params: fixed.Merge(current),
			})
			return
		}
		k := keys[depth]
		for _, v := range grid[k] {
			current[k] = v
			walk(depth + 1)
		}
	}
	walk(0)
	return combos, nil
}
