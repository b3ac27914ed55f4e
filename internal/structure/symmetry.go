// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"errors"
	"math"
)

// DefaultSymprec is the cartesian tolerance in Å used when matching sites.
const DefaultSymprec = 0.1

// Operation is a space-group operation x' = Rotation*x + Translation acting
// on fractional column vectors.
type Operation struct {
	Rotation    [3][3]int
	Translation Vec3
}

// Symmetry summarizes the symmetry found in a structure.
type Symmetry struct {
	Operations    []Operation
	PointGroup    string
	CrystalSystem string
	// Symbol, Number and Hall are set only when the point group alone
	// determines the space group.
	Symbol string
	Number int
	Hall   string
}

// rotation types in the order used by pointGroups: -6 -4 -3 -2 -1 1 2 3 4 6.
const numRotTypes = 10

type pointGroup struct {
	symbol string
	system string
	counts [numRotTypes]int
}

var pointGroups = []pointGroup{
	{"1", "triclinic", [numRotTypes]int{0, 0, 0, 0, 0, 1, 0, 0, 0, 0}},
	{"-1", "triclinic", [numRotTypes]int{0, 0, 0, 0, 1, 1, 0, 0, 0, 0}},
	{"2", "monoclinic", [numRotTypes]int{0, 0, 0, 0, 0, 1, 1, 0, 0, 0}},
	{"m", "monoclinic", [numRotTypes]int{0, 0, 0, 1, 0, 1, 0, 0, 0, 0}},
	{"2/m", "monoclinic", [numRotTypes]int{0, 0, 0, 1, 1, 1, 1, 0, 0, 0}},
	{"222", "orthorhombic", [numRotTypes]int{0, 0, 0, 0, 0, 1, 3, 0, 0, 0}},
	{"mm2", "orthorhombic", [numRotTypes]int{0, 0, 0, 2, 0, 1, 1, 0, 0, 0}},
	{"mmm", "orthorhombic", [numRotTypes]int{0, 0, 0, 3, 1, 1, 3, 0, 0, 0}},
	{"4", "tetragonal", [numRotTypes]int{0, 0, 0, 0, 0, 1, 1, 0, 2, 0}},
	{"-4", "tetragonal", [numRotTypes]int{0, 2, 0, 0, 0, 1, 1, 0, 0, 0}},
	{"4/m", "tetragonal", [numRotTypes]int{0, 2, 0, 1, 1, 1, 1, 0, 2, 0}},
	{"422", "tetragonal", [numRotTypes]int{0, 0, 0, 0, 0, 1, 5, 0, 2, 0}},
	{"4mm", "tetragonal", [numRotTypes]int{0, 0, 0, 4, 0, 1, 1, 0, 2, 0}},
	{"-42m", "tetragonal", [numRotTypes]int{0, 2, 0, 2, 0, 1, 3, 0, 0, 0}},
	{"4/mmm", "tetragonal", [numRotTypes]int{0, 2, 0, 5, 1, 1, 5, 0, 2, 0}},
	{"3", "trigonal", [numRotTypes]int{0, 0, 0, 0, 0, 1, 0, 2, 0, 0}},
	{"-3", "trigonal", [numRotTypes]int{0, 0, 2, 0, 1, 1, 0, 2, 0, 0}},
	{"32", "trigonal", [numRotTypes]int{0, 0, 0, 0, 0, 1, 3, 2, 0, 0}},
	{"3m", "trigonal", [numRotTypes]int{0, 0, 0, 3, 0, 1, 0, 2, 0, 0}},
	{"-3m", "trigonal", [numRotTypes]int{0, 0, 2, 3, 1, 1, 3, 2, 0, 0}},
	{"6", "hexagonal", [numRotTypes]int{0, 0, 0, 0, 0, 1, 1, 2, 0, 2}},
	{"-6", "hexagonal", [numRotTypes]int{2, 0, 0, 1, 0, 1, 0, 2, 0, 0}},
	{"6/m", "hexagonal", [numRotTypes]int{2, 0, 2, 1, 1, 1, 1, 2, 0, 2}},
	{"622", "hexagonal", [numRotTypes]int{0, 0, 0, 0, 0, 1, 7, 2, 0, 2}},
	{"6mm", "hexagonal", [numRotTypes]int{0, 0, 0, 6, 0, 1, 1, 2, 0, 2}},
	{"-6m2", "hexagonal", [numRotTypes]int{2, 0, 0, 4, 0, 1, 3, 2, 0, 0}},
	{"6/mmm", "hexagonal", [numRotTypes]int{2, 0, 2, 7, 1, 1, 7, 2, 0, 2}},
	{"23", "cubic", [numRotTypes]int{0, 0, 0, 0, 0, 1, 3, 8, 0, 0}},
	{"m-3", "cubic", [numRotTypes]int{0, 0, 8, 3, 1, 1, 3, 8, 0, 0}},
	{"432", "cubic", [numRotTypes]int{0, 0, 0, 0, 0, 1, 9, 8, 6, 0}},
	{"-43m", "cubic", [numRotTypes]int{0, 6, 0, 6, 0, 1, 3, 8, 0, 0}},
	{"m-3m", "cubic", [numRotTypes]int{0, 6, 8, 9, 1, 1, 9, 8, 6, 0}},
}

// triclinicGroups are fixed by the point group since the triclinic
// system has a single (primitive) Bravais lattice.
var triclinicGroups = map[string]struct {
	symbol string
	number int
	hall   string
}{
	"1":  {"P1", 1, "P 1"},
	"-1": {"P-1", 2, "-P 1"},
}

// FindSymmetry determines the space-group operations of s within symprec
// (Å) and classifies the resulting point group.
func FindSymmetry(s *Structure, symprec float64) (*Symmetry, error) {
	if len(s.Sites) == 0 {
		return nil, errors.New("structure has no sites")
	}
	if symprec <= 0 {
		symprec = DefaultSymprec
	}

	// Search in a reduced basis, where every lattice rotation has entries
	// in {-1,0,1}, and report operations in the input basis.
	basis := delaunayBasis(s.Lattice)
	rs := s.reduced(basis)
	var ops []Operation
	for _, rot := range latticeRotations(rs.Lattice, symprec) {
		ops = append(ops, siteTranslations(rs, rot, symprec)...)
	}

	rotations := distinctRotations(ops)
	var counts [numRotTypes]int
	for _, r := range rotations {
		t := rotationType(r)
		if t < 0 {
			return nil, errors.New("operation is not a crystallographic rotation")
		}
		counts[t]++
	}

	for i := range ops {
		ops[i] = toInputBasis(ops[i], basis)
	}
	sym := &Symmetry{Operations: ops}
	for _, pg := range pointGroups {
		if pg.counts == counts {
			sym.PointGroup = pg.symbol
			sym.CrystalSystem = pg.system
			break
		}
	}
	if sym.PointGroup == "" {
		return nil, errors.New("rotation set does not form a crystallographic point group")
	}
	if tg, ok := triclinicGroups[sym.PointGroup]; ok {
		sym.Symbol, sym.Number, sym.Hall = tg.symbol, tg.number, tg.hall
	}
	return sym, nil
}

// latticeRotations returns the integer matrices with entries in {-1,0,1}
// that preserve the lattice metric. This is complete for Delaunay-reduced
// cells.
func latticeRotations(l Lattice, symprec float64) [][3][3]int {
	g := l.Metric()
	abc := l.Abc()
	var out [][3][3]int
	var w [3][3]int
	var rec func(idx int)
	rec = func(idx int) {
		if idx == 9 {
			d := idet(w)
			if d != 1 && d != -1 {
				return
			}
			if preservesMetric(w, g, abc, symprec) {
				out = append(out, w)
			}
			return
		}
		for v := -1; v <= 1; v++ {
			w[idx/3][idx%3] = v
			rec(idx + 1)
		}
	}
	rec(0)
	return out
}

func preservesMetric(w [3][3]int, g Mat3, abc Vec3, symprec float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var v float64
			for k := 0; k < 3; k++ {
				for m := 0; m < 3; m++ {
					v += float64(w[k][i]) * g[k][m] * float64(w[m][j])
				}
			}
			if math.Abs(v-g[i][j]) > symprec*(abc[i]+abc[j]) {
				return false
			}
		}
	}
	return true
}

// siteTranslations finds every translation t for which rot maps the
// structure onto itself.
func siteTranslations(s *Structure, rot [3][3]int, symprec float64) []Operation {
	// Anchor on the least common element to keep the candidate set small.
	counts := map[string]int{}
	for _, site := range s.Sites {
		counts[site.Element()]++
	}
	anchor := 0
	for i, site := range s.Sites {
		if counts[site.Element()] < counts[s.Sites[anchor].Element()] {
			anchor = i
		}
	}
	rotated := applyRotation(rot, s.Sites[anchor].ABC)

	var ops []Operation
	for _, site := range s.Sites {
		if site.Element() != s.Sites[anchor].Element() {
			continue
		}
		t := wrap(sub(site.ABC, rotated))
		if mapsOntoItself(s, rot, t, symprec) {
			ops = append(ops, Operation{Rotation: rot, Translation: t})
		}
	}
	return ops
}

func mapsOntoItself(s *Structure, rot [3][3]int, t Vec3, symprec float64) bool {
	for _, site := range s.Sites {
		x := applyRotation(rot, site.ABC)
		for k := range x {
			x[k] += t[k]
		}
		found := false
		for _, other := range s.Sites {
			if other.Element() != site.Element() {
				continue
			}
			if s.periodicDistance(x, other.ABC) <= symprec {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func applyRotation(r [3][3]int, x Vec3) Vec3 {
	var out Vec3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i] += float64(r[i][j]) * x[j]
		}
	}
	return out
}

func distinctRotations(ops []Operation) [][3][3]int {
	seen := map[[3][3]int]bool{}
	var out [][3][3]int
	for _, op := range ops {
		if !seen[op.Rotation] {
			seen[op.Rotation] = true
			out = append(out, op.Rotation)
		}
	}
	return out
}

// rotationType indexes r into the -6 -4 -3 -2 -1 1 2 3 4 6 ordering from
// its determinant and trace, or returns -1.
func rotationType(r [3][3]int) int {
	tr := r[0][0] + r[1][1] + r[2][2]
	switch idet(r) {
	case 1:
		switch tr {
		case 3:
			return 5
		case -1:
			return 6
		case 0:
			return 7
		case 1:
			return 8
		case 2:
			return 9
		}
	case -1:
		switch tr {
		case -2:
			return 0
		case -1:
			return 1
		case 0:
			return 2
		case 1:
			return 3
		case -3:
			return 4
		}
	}
	return -1
}

func idet(m [3][3]int) int {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}
