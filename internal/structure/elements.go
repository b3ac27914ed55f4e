// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"fmt"
	"strings"
)

// Element holds the periodic-table data needed for composition and
// bonding analysis.
type Element struct {
	Symbol string
	Z      int
	// Mass is the standard atomic weight in amu.
	Mass float64
	// X is the Pauling electronegativity. Zero means unknown.
	X float64
	// OxidationStates lists the common oxidation states, most common first.
	OxidationStates []int
}

var elementTable = []Element{
	{"H", 1, 1.00794, 2.20, []int{1, -1}},
	{"He", 2, 4.002602, 0, nil},
	{"Li", 3, 6.941, 0.98, []int{1}},
	{"Be", 4, 9.012182, 1.57, []int{2}},
	{"B", 5, 10.811, 2.04, []int{3}},
	{"C", 6, 12.0107, 2.55, []int{4, -4, 2}},
	{"N", 7, 14.0067, 3.04, []int{-3, 3, 5}},
	{"O", 8, 15.9994, 3.44, []int{-2}},
	{"F", 9, 18.9984032, 3.98, []int{-1}},
	{"Ne", 10, 20.1797, 0, nil},
	{"Na", 11, 22.98976928, 0.93, []int{1}},
	{"Mg", 12, 24.3050, 1.31, []int{2}},
	{"Al", 13, 26.9815386, 1.61, []int{3}},
	{"Si", 14, 28.0855, 1.90, []int{4, -4}},
	{"P", 15, 30.973762, 2.19, []int{5, 3, -3}},
	{"S", 16, 32.065, 2.58, []int{-2, 2, 4, 6}},
	{"Cl", 17, 35.453, 3.16, []int{-1, 1, 3, 5, 7}},
	{"Ar", 18, 39.948, 0, nil},
	{"K", 19, 39.0983, 0.82, []int{1}},
	{"Ca", 20, 40.078, 1.00, []int{2}},
	{"Sc", 21, 44.955912, 1.36, []int{3}},
	{"Ti", 22, 47.867, 1.54, []int{4, 3, 2}},
	{"V", 23, 50.9415, 1.63, []int{5, 4, 3, 2}},
	{"Cr", 24, 51.9961, 1.66, []int{3, 6, 2}},
	{"Mn", 25, 54.938045, 1.55, []int{2, 4, 3, 7}},
	{"Fe", 26, 55.845, 1.83, []int{3, 2}},
	{"Co", 27, 58.933195, 1.88, []int{2, 3}},
	{"Ni", 28, 58.6934, 1.91, []int{2, 3}},
	{"Cu", 29, 63.546, 1.90, []int{2, 1}},
	{"Zn", 30, 65.38, 1.65, []int{2}},
	{"Ga", 31, 69.723, 1.81, []int{3}},
	{"Ge", 32, 72.64, 2.01, []int{4, -4, 2}},
	{"As", 33, 74.92160, 2.18, []int{-3, 3, 5}},
	{"Se", 34, 78.96, 2.55, []int{-2, 4, 6}},
	{"Br", 35, 79.904, 2.96, []int{-1, 1, 5}},
	{"Kr", 36, 83.798, 3.00, []int{2}},
	{"Rb", 37, 85.4678, 0.82, []int{1}},
	{"Sr", 38, 87.62, 0.95, []int{2}},
	{"Y", 39, 88.90585, 1.22, []int{3}},
	{"Zr", 40, 91.224, 1.33, []int{4}},
	{"Nb", 41, 92.90638, 1.6, []int{5, 3}},
	{"Mo", 42, 95.96, 2.16, []int{6, 4}},
	{"Tc", 43, 98, 1.9, []int{7, 4}},
	{"Ru", 44, 101.07, 2.2, []int{3, 4}},
	{"Rh", 45, 102.90550, 2.28, []int{3}},
	{"Pd", 46, 106.42, 2.20, []int{2, 4}},
	{"Ag", 47, 107.8682, 1.93, []int{1}},
	{"Cd", 48, 112.411, 1.69, []int{2}},
	{"In", 49, 114.818, 1.78, []int{3}},
	{"Sn", 50, 118.710, 1.96, []int{4, 2, -4}},
	{"Sb", 51, 121.760, 2.05, []int{-3, 3, 5}},
	{"Te", 52, 127.60, 2.1, []int{-2, 4, 6}},
	{"I", 53, 126.90447, 2.66, []int{-1, 1, 5, 7}},
	{"Xe", 54, 131.293, 2.60, []int{2, 4, 6}},
	{"Cs", 55, 132.9054519, 0.79, []int{1}},
	{"Ba", 56, 137.327, 0.89, []int{2}},
	{"La", 57, 138.90547, 1.10, []int{3}},
	{"Ce", 58, 140.116, 1.12, []int{3, 4}},
	{"Pr", 59, 140.90765, 1.13, []int{3}},
	{"Nd", 60, 144.242, 1.14, []int{3}},
	{"Pm", 61, 145, 1.13, []int{3}},
	{"Sm", 62, 150.36, 1.17, []int{3}},
	{"Eu", 63, 151.964, 1.2, []int{3, 2}},
	{"Gd", 64, 157.25, 1.2, []int{3}},
	{"Tb", 65, 158.92535, 1.2, []int{3}},
	{"Dy", 66, 162.500, 1.22, []int{3}},
	{"Ho", 67, 164.93032, 1.23, []int{3}},
	{"Er", 68, 167.259, 1.24, []int{3}},
	{"Tm", 69, 168.93421, 1.25, []int{3}},
	{"Yb", 70, 173.054, 1.1, []int{3}},
	{"Lu", 71, 174.9668, 1.27, []int{3}},
	{"Hf", 72, 178.49, 1.3, []int{4}},
	{"Ta", 73, 180.94788, 1.5, []int{5}},
	{"W", 74, 183.84, 2.36, []int{6, 4}},
	{"Re", 75, 186.207, 1.9, []int{4, 7}},
	{"Os", 76, 190.23, 2.2, []int{4}},
	{"Ir", 77, 192.217, 2.20, []int{3, 4}},
	{"Pt", 78, 195.084, 2.28, []int{2, 4}},
	{"Au", 79, 196.966569, 2.54, []int{3, 1}},
	{"Hg", 80, 200.59, 2.00, []int{1, 2}},
	{"Tl", 81, 204.3833, 1.62, []int{1, 3}},
	{"Pb", 82, 207.2, 2.33, []int{2, 4}},
	{"Bi", 83, 208.98040, 2.02, []int{3}},
	{"Po", 84, 209, 2.0, []int{-2, 2, 4}},
	{"At", 85, 210, 2.2, []int{-1, 1}},
	{"Rn", 86, 222, 0, []int{2}},
	{"Fr", 87, 223, 0.7, []int{1}},
	{"Ra", 88, 226, 0.9, []int{2}},
	{"Ac", 89, 227, 1.1, []int{3}},
	{"Th", 90, 232.03806, 1.3, []int{4}},
	{"Pa", 91, 231.03588, 1.5, []int{5}},
	{"U", 92, 238.02891, 1.38, []int{6, 4}},
	{"Np", 93, 237, 1.36, []int{5}},
	{"Pu", 94, 244, 1.28, []int{4}},
}

var elementsBySymbol = func() map[string]Element {
	m := make(map[string]Element, len(elementTable))
	for _, e := range elementTable {
		m[e.Symbol] = e
	}
	return m
}()

// LookupElement returns the element with the given symbol.
func LookupElement(symbol string) (Element, error) {
	e, ok := elementsBySymbol[symbol]
	if !ok {
		return Element{}, fmt.Errorf("unknown element %q", symbol)
	}
	return e, nil
}

// IsElement reports whether symbol names a known element.
func IsElement(symbol string) bool {
	_, ok := elementsBySymbol[symbol]
	return ok
}

// ElementFromLabel extracts the element symbol from a species label such as
// "Fe_pv", "O_s", "Li_sv" or "Fe3+".
func ElementFromLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if i := strings.IndexAny(label, "_.0123456789+-"); i > 0 {
		label = label[:i]
	}
	if IsElement(label) {
		return label, nil
	}
	if len(label) > 1 && IsElement(label[:1]) {
		return label[:1], nil
	}
	return "", fmt.Errorf("no element in label %q", label)
}
