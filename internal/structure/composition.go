// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

const amountTol = 1e-8

// Composition maps element symbols to amounts.
type Composition map[string]float64

func (c Composition) add(el string, amt float64) {
	c[el] += amt
}

// Amounts returns a copy of the element amounts.
func (c Composition) Amounts() map[string]float64 {
	out := make(map[string]float64, len(c))
	for el, amt := range c {
		out[el] = amt
	}
	return out
}

// NumAtoms returns the total number of atoms.
func (c Composition) NumAtoms() float64 {
	var n float64
	for _, amt := range c {
		n += amt
	}
	return n
}

// Elements returns the element symbols sorted alphabetically.
func (c Composition) Elements() []string {
	out := make([]string, 0, len(c))
	for el, amt := range c {
		if amt > amountTol {
			out = append(out, el)
		}
	}
	sort.Strings(out)
	return out
}

// Chemsys returns the hyphen-joined sorted element list, e.g. "Fe-O".
func (c Composition) Chemsys() string {
	return strings.Join(c.Elements(), "-")
}

// ReducedFactor returns the greatest common divisor of the amounts when
// they are all integral, and 1 otherwise.
func (c Composition) ReducedFactor() float64 {
	factor := 0
	for _, amt := range c {
		if math.Abs(amt-math.Round(amt)) > amountTol {
			return 1
		}
		factor = gcd(factor, int(math.Round(amt)))
	}
	if factor == 0 {
		return 1
	}
	return float64(factor)
}

// Reduced returns the composition divided by ReducedFactor.
func (c Composition) Reduced() Composition {
	f := c.ReducedFactor()
	out := Composition{}
	for el, amt := range c {
		out[el] = amt / f
	}
	return out
}

// ReducedFormula returns the reduced formula with elements ordered by
// electronegativity, e.g. "Fe2O3" or "LiFePO4".
func (c Composition) ReducedFormula() string {
	red := c.Reduced()
	els := red.Elements()
	sort.SliceStable(els, func(i, j int) bool {
		return electronegativity(els[i]) < electronegativity(els[j])
	})
	var b strings.Builder
	for _, el := range els {
		b.WriteString(el)
		b.WriteString(formatAmount(red[el]))
	}
	return b.String()
}

// AnonymousAmounts maps the sorted reduced amounts onto the letters A, B,
// C, ... in ascending order.
func (c Composition) AnonymousAmounts() map[string]float64 {
	red := c.Reduced()
	vals := make([]float64, 0, len(red))
	for _, amt := range red {
		if amt > amountTol {
			vals = append(vals, amt)
		}
	}
	sort.Float64s(vals)
	out := make(map[string]float64, len(vals))
	for i, v := range vals {
		out[anonymousLabel(i)] = v
	}
	return out
}

// AnonymizedFormula renders AnonymousAmounts as a formula string, e.g. "AB2".
func (c Composition) AnonymizedFormula() string {
	amts := c.AnonymousAmounts()
	var b strings.Builder
	for i := 0; i < len(amts); i++ {
		label := anonymousLabel(i)
		b.WriteString(label)
		b.WriteString(formatAmount(amts[label]))
	}
	return b.String()
}

// SumFormula renders the unit-cell amounts, e.g. "Fe4 O6".
func (c Composition) SumFormula() string {
	els := c.Elements()
	parts := make([]string, len(els))
	for i, el := range els {
		parts[i] = el + strconv.FormatFloat(c[el], 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

func anonymousLabel(i int) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	if i < len(letters) {
		return letters[i : i+1]
	}
	return letters[i/len(letters)-1:i/len(letters)] + letters[i%len(letters):i%len(letters)+1]
}

func electronegativity(el string) float64 {
	e, err := LookupElement(el)
	if err != nil || e.X == 0 {
		return math.Inf(1)
	}
	return e.X
}

func formatAmount(amt float64) string {
	if math.Abs(amt-1) < amountTol {
		return ""
	}
	if math.Abs(amt-math.Round(amt)) < amountTol {
		return strconv.Itoa(int(math.Round(amt)))
	}
	return strconv.FormatFloat(amt, 'g', 6, 64)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}
