// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fixtures ---

func cubicLattice(a float64) Lattice {
	return NewLattice(Mat3{{a, 0, 0}, {0, a, 0}, {0, 0, a}})
}

func simpleCubic(t *testing.T) *Structure {
	t.Helper()
	s, err := New(cubicLattice(3), []string{"Po"}, []Vec3{{0, 0, 0}}, false)
	require.NoError(t, err)
	return s
}

func rocksalt(t *testing.T) *Structure {
	t.Helper()
	var els []string
	var coords []Vec3
	fcc := []Vec3{{0, 0, 0}, {0.5, 0.5, 0}, {0.5, 0, 0.5}, {0, 0.5, 0.5}}
	for _, p := range fcc {
		els = append(els, "Na")
		coords = append(coords, p)
	}
	for _, p := range fcc {
		els = append(els, "Cl")
		coords = append(coords, Vec3{math.Mod(p[0]+0.5, 1), p[1], p[2]})
	}
	s, err := New(cubicLattice(5.64), els, coords, false)
	require.NoError(t, err)
	return s
}

func hematiteLike(t *testing.T) *Structure {
	t.Helper()
	els := []string{"Fe", "Fe", "Fe", "Fe", "O", "O", "O", "O", "O", "O"}
	coords := make([]Vec3, len(els))
	for i := range coords {
		coords[i] = Vec3{0.1 * float64(i), 0.07 * float64(i), 0.03 * float64(i)}
	}
	l := NewLattice(Mat3{{5.1, 0, 0}, {0.4, 5.3, 0}, {0.7, 0.2, 5.9}})
	s, err := New(l, els, coords, false)
	require.NoError(t, err)
	return s
}

// --- lattice ---

func TestLatticeParameters(t *testing.T) {
	l := NewLattice(Mat3{{3, 0, 0}, {0, 4, 0}, {0, 0, 5}})
	assert.InDelta(t, 60, l.Volume(), 1e-9)
	assert.Equal(t, Vec3{3, 4, 5}, l.Abc())
	for _, a := range l.Angles() {
		assert.InDelta(t, 90, a, 1e-9)
	}

	hex := NewLattice(Mat3{{3, 0, 0}, {-1.5, 3 * math.Sqrt(3) / 2, 0}, {0, 0, 5}})
	assert.InDelta(t, 120, hex.Angles()[2], 1e-9)
}

func TestLatticeCoordinateRoundTrip(t *testing.T) {
	l := NewLattice(Mat3{{5.1, 0, 0}, {0.4, 5.3, 0}, {0.7, 0.2, 5.9}})
	frac := Vec3{0.25, 0.5, 0.75}
	got := l.Fractional(l.Cartesian(frac))
	for k := range frac {
		assert.InDelta(t, frac[k], got[k], 1e-12)
	}
}

func TestLatticeJSONIncludesParameters(t *testing.T) {
	data, err := json.Marshal(cubicLattice(2))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.InDelta(t, 8.0, m["volume"], 1e-9)
	assert.InDelta(t, 2.0, m["a"], 1e-9)

	var back Lattice
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, cubicLattice(2), back)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(cubicLattice(3), []string{"Xx"}, []Vec3{{0, 0, 0}}, false)
	assert.Error(t, err)

	_, err = New(cubicLattice(3), []string{"Fe", "O"}, []Vec3{{0, 0, 0}}, false)
	assert.Error(t, err)

	_, err = New(NewLattice(Mat3{}), []string{"Fe"}, []Vec3{{0, 0, 0}}, false)
	assert.Error(t, err)
}

func TestNewCartesian(t *testing.T) {
	s, err := New(cubicLattice(4), []string{"Si"}, []Vec3{{1, 2, 3}}, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, s.Sites[0].ABC[0], 1e-12)
	assert.InDelta(t, 0.75, s.Sites[0].ABC[2], 1e-12)
}

// --- composition ---

func TestComposition(t *testing.T) {
	s := hematiteLike(t)
	c := s.Composition()

	assert.Equal(t, map[string]float64{"Fe": 4, "O": 6}, c.Amounts())
	assert.Equal(t, 2.0, c.ReducedFactor())
	assert.Equal(t, "Fe2O3", c.ReducedFormula())
	assert.Equal(t, []string{"Fe", "O"}, c.Elements())
	assert.Equal(t, "Fe-O", c.Chemsys())
	assert.Equal(t, 10.0, c.NumAtoms())
	assert.Equal(t, map[string]float64{"A": 2, "B": 3}, c.AnonymousAmounts())
	assert.Equal(t, "A2B3", c.AnonymizedFormula())
	assert.Equal(t, "Fe4 O6", c.SumFormula())
}

func TestReducedFormulaOrdering(t *testing.T) {
	tests := []struct {
		comp Composition
		want string
	}{
		{Composition{"O": 4, "P": 1, "Fe": 1, "Li": 1}, "LiFePO4"},
		{Composition{"Cl": 4, "Na": 4}, "NaCl"},
		{Composition{"Si": 2}, "Si"},
		{Composition{"Fe": 0.5, "O": 1}, "Fe0.5O"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.comp.ReducedFormula())
		})
	}
}

func TestDensity(t *testing.T) {
	s := rocksalt(t)
	// Rock salt is about 2.16 g/cm^3.
	assert.InDelta(t, 2.16, s.Density(), 0.02)
}

func TestElementFromLabel(t *testing.T) {
	tests := map[string]string{
		"Fe_pv": "Fe",
		"O":     "O",
		"Li_sv": "Li",
		"Fe3+":  "Fe",
		"O_s":   "O",
	}
	for in, want := range tests {
		got, err := ElementFromLabel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ElementFromLabel("Qq")
	assert.Error(t, err)
}

// --- CIF ---

func TestWriteCIF(t *testing.T) {
	cif := WriteCIF(rocksalt(t))

	assert.True(t, strings.HasPrefix(cif, "#generated using vaspdb\ndata_NaCl\n"))
	assert.Contains(t, cif, "_chemical_formula_sum   'Cl4 Na4'")
	assert.Contains(t, cif, "_cell_formula_units_Z   4")
	assert.Contains(t, cif, "Na  Na0  1")
	assert.Contains(t, cif, "Cl  Cl3  1")
	assert.Equal(t, 8, strings.Count(cif, "  1  0."))
}

// --- coordination ---

func TestCoordinationNumbers(t *testing.T) {
	tests := []struct {
		name string
		s    func(t *testing.T) *Structure
		want int
	}{
		{"simple cubic", simpleCubic, 6},
		{"rock salt", rocksalt, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, cn := range CoordinationNumbers(tt.s(t), DefaultShellTolerance) {
				assert.Equal(t, tt.want, cn, "site %d", i)
			}
		})
	}
}

func TestCoordinationNumbersFCC(t *testing.T) {
	fcc := []Vec3{{0, 0, 0}, {0.5, 0.5, 0}, {0.5, 0, 0.5}, {0, 0.5, 0.5}}
	s, err := New(cubicLattice(4.05), []string{"Al", "Al", "Al", "Al"}, fcc, false)
	require.NoError(t, err)
	assert.Equal(t, []int{12, 12, 12, 12}, CoordinationNumbers(s, DefaultShellTolerance))
}

// --- symmetry ---

func TestFindSymmetry(t *testing.T) {
	t.Run("simple cubic", func(t *testing.T) {
		sym, err := FindSymmetry(simpleCubic(t), DefaultSymprec)
		require.NoError(t, err)
		assert.Equal(t, "m-3m", sym.PointGroup)
		assert.Equal(t, "cubic", sym.CrystalSystem)
		assert.Len(t, sym.Operations, 48)
		assert.Zero(t, sym.Number)
	})

	t.Run("rock salt conventional cell", func(t *testing.T) {
		sym, err := FindSymmetry(rocksalt(t), DefaultSymprec)
		require.NoError(t, err)
		assert.Equal(t, "m-3m", sym.PointGroup)
		assert.Len(t, sym.Operations, 192)
	})

	t.Run("tetragonal", func(t *testing.T) {
		l := NewLattice(Mat3{{3, 0, 0}, {0, 3, 0}, {0, 0, 4}})
		s, err := New(l, []string{"Ti"}, []Vec3{{0, 0, 0}}, false)
		require.NoError(t, err)
		sym, err := FindSymmetry(s, DefaultSymprec)
		require.NoError(t, err)
		assert.Equal(t, "4/mmm", sym.PointGroup)
		assert.Equal(t, "tetragonal", sym.CrystalSystem)
	})

	t.Run("hexagonal", func(t *testing.T) {
		l := NewLattice(Mat3{{3, 0, 0}, {-1.5, 3 * math.Sqrt(3) / 2, 0}, {0, 0, 5}})
		s, err := New(l, []string{"Mg"}, []Vec3{{0, 0, 0}}, false)
		require.NoError(t, err)
		sym, err := FindSymmetry(s, DefaultSymprec)
		require.NoError(t, err)
		assert.Equal(t, "6/mmm", sym.PointGroup)
		assert.Equal(t, "hexagonal", sym.CrystalSystem)
	})

	t.Run("simple cubic in a sheared basis", func(t *testing.T) {
		l := NewLattice(Mat3{{3, 0, 0}, {3, 3, 0}, {0, 0, 3}})
		s, err := New(l, []string{"Po"}, []Vec3{{0, 0, 0}}, false)
		require.NoError(t, err)
		sym, err := FindSymmetry(s, DefaultSymprec)
		require.NoError(t, err)
		assert.Equal(t, "m-3m", sym.PointGroup)
		assert.Len(t, sym.Operations, 48)
		for _, op := range sym.Operations {
			assert.True(t, preservesMetric(op.Rotation, l.Metric(), l.Abc(), DefaultSymprec),
				"rotation %v is not a symmetry of the input lattice", op.Rotation)
		}
	})

	t.Run("rock salt in a sheared basis", func(t *testing.T) {
		conv := rocksalt(t)
		// Rows a, a+b, c describe the same lattice.
		m := conv.Lattice.Matrix
		sheared := NewLattice(Mat3{m[0], {m[0][0] + m[1][0], m[0][1] + m[1][1], m[0][2] + m[1][2]}, m[2]})
		var els []string
		var coords []Vec3
		for _, site := range conv.Sites {
			els = append(els, site.Element())
			coords = append(coords, site.XYZ)
		}
		s, err := New(sheared, els, coords, true)
		require.NoError(t, err)
		sym, err := FindSymmetry(s, DefaultSymprec)
		require.NoError(t, err)
		assert.Equal(t, "m-3m", sym.PointGroup)
		assert.Len(t, sym.Operations, 192)
	})

	t.Run("triclinic without symmetry", func(t *testing.T) {
		sym, err := FindSymmetry(hematiteLike(t), DefaultSymprec)
		require.NoError(t, err)
		assert.Equal(t, "1", sym.PointGroup)
		assert.Equal(t, "P1", sym.Symbol)
		assert.Equal(t, 1, sym.Number)
		assert.Equal(t, "P 1", sym.Hall)
	})

	t.Run("empty structure", func(t *testing.T) {
		_, err := FindSymmetry(&Structure{Lattice: cubicLattice(3)}, DefaultSymprec)
		assert.Error(t, err)
	})
}

func TestDelaunayBasis(t *testing.T) {
	tests := []struct {
		name string
		l    Lattice
	}{
		{"cubic", cubicLattice(3)},
		{"sheared cubic", NewLattice(Mat3{{3, 0, 0}, {3, 3, 0}, {0, 0, 3}})},
		{"fcc primitive", NewLattice(Mat3{{0, 2.8, 2.8}, {2.8, 0, 2.8}, {2.8, 2.8, 0}})},
		{"long skew", NewLattice(Mat3{{4, 0, 0}, {-7, 4, 0}, {2, 3, 5}})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := delaunayBasis(tc.l)
			assert.Equal(t, 1, idet(m))
			var r Mat3
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					for k := 0; k < 3; k++ {
						r[i][j] += float64(m[i][k]) * tc.l.Matrix[k][j]
					}
				}
			}
			reduced := NewLattice(r)
			assert.InDelta(t, tc.l.Volume(), reduced.Volume(), 1e-9)
			in, out := tc.l.Abc(), reduced.Abc()
			assert.LessOrEqual(t, max(out[0], out[1], out[2]), max(in[0], in[1], in[2])+1e-9)
		})
	}
}

func TestIInverse(t *testing.T) {
	m := [3][3]int{{1, 1, 0}, {0, 1, 0}, {-1, -1, 1}}
	assert.Equal(t, [3][3]int{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, imul(m, iinverse(m)))
}

// --- oxidation states ---

func TestGuessOxidationStates(t *testing.T) {
	tests := []struct {
		name string
		comp Composition
		want map[string]int
	}{
		{"hematite", Composition{"Fe": 4, "O": 6}, map[string]int{"Fe": 3, "O": -2}},
		{"wustite", Composition{"Fe": 1, "O": 1}, map[string]int{"Fe": 2, "O": -2}},
		{"olivine", Composition{"Li": 1, "Fe": 1, "P": 1, "O": 4}, map[string]int{"Li": 1, "Fe": 2, "P": 5, "O": -2}},
		{"metal", Composition{"Cu": 4}, map[string]int{"Cu": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GuessOxidationStates(tt.comp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := GuessOxidationStates(Composition{"Na": 1, "K": 1})
	assert.ErrorIs(t, err, ErrNoChargeBalance)
}

func TestDecorateOxidationStates(t *testing.T) {
	s := rocksalt(t)
	dec, err := DecorateOxidationStates(s)
	require.NoError(t, err)

	assert.Equal(t, "Na1+", dec.Sites[0].Label)
	assert.Equal(t, "Cl1-", dec.Sites[7].Label)
	require.NotNil(t, dec.Sites[0].Species[0].OxidationState)
	assert.Equal(t, 1.0, *dec.Sites[0].Species[0].OxidationState)
	assert.Nil(t, s.Sites[0].Species[0].OxidationState, "input structure must stay undecorated")
}
