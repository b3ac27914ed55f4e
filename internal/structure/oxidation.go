// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoChargeBalance is returned when no combination of common oxidation
// states balances the composition.
var ErrNoChargeBalance = errors.New("no charge-balanced oxidation states")

// maxOxidationCombinations bounds the search over oxidation-state choices.
const maxOxidationCombinations = 100000

// GuessOxidationStates assigns one common oxidation state per element so
// the reduced composition is charge neutral. Among balanced assignments
// the one using the most common states wins.
func GuessOxidationStates(c Composition) (map[string]int, error) {
	els := c.Reduced().Elements()
	if len(els) == 0 {
		return nil, errors.New("empty composition")
	}
	if len(els) == 1 {
		return map[string]int{els[0]: 0}, nil
	}
	red := c.Reduced()

	options := make([][]int, len(els))
	total := 1
	for i, el := range els {
		e, err := LookupElement(el)
		if err != nil {
			return nil, err
		}
		if len(e.OxidationStates) == 0 {
			return nil, fmt.Errorf("%w: %s has no common oxidation states", ErrNoChargeBalance, el)
		}
		options[i] = e.OxidationStates
		total *= len(e.OxidationStates)
		if total > maxOxidationCombinations {
			return nil, fmt.Errorf("%w: too many combinations", ErrNoChargeBalance)
		}
	}

	var (
		best      []int
		bestScore = math.MaxInt
		choice    = make([]int, len(els))
	)
	var rec func(i int, charge float64, score int)
	rec = func(i int, charge float64, score int) {
		if score > bestScore {
			return
		}
		if i == len(els) {
			if math.Abs(charge) < 1e-6 && score < bestScore {
				bestScore = score
				best = append(best[:0], choice...)
			}
			return
		}
		for rank, ox := range options[i] {
			choice[i] = ox
			rec(i+1, charge+float64(ox)*red[els[i]], score+rank)
		}
	}
	rec(0, 0, 0)

	if best == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoChargeBalance, c.ReducedFormula())
	}
	out := make(map[string]int, len(els))
	for i, el := range els {
		out[el] = best[i]
	}
	return out, nil
}

// DecorateOxidationStates returns a copy of s with every species carrying
// its guessed oxidation state.
func DecorateOxidationStates(s *Structure) (*Structure, error) {
	states, err := GuessOxidationStates(s.Composition())
	if err != nil {
		return nil, err
	}
	out := s.Copy()
	for i := range out.Sites {
		for j := range out.Sites[i].Species {
			sp := &out.Sites[i].Species[j]
			ox := float64(states[sp.Element])
			sp.OxidationState = &ox
		}
		out.Sites[i].Label = speciesLabel(out.Sites[i].Species[0])
	}
	return out, nil
}

func speciesLabel(sp Species) string {
	if sp.OxidationState == nil {
		return sp.Element
	}
	ox := int(*sp.OxidationState)
	switch {
	case ox > 0:
		return fmt.Sprintf("%s%d+", sp.Element, ox)
	case ox < 0:
		return fmt.Sprintf("%s%d-", sp.Element, -ox)
	default:
		return sp.Element
	}
}
