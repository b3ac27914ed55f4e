// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"fmt"
	"strings"
)

// WriteCIF renders the structure as a P1 CIF block.
func WriteCIF(s *Structure) string {
	comp := s.Composition()
	abc := s.Lattice.Abc()
	ang := s.Lattice.Angles()
	formula := comp.ReducedFormula()

	var b strings.Builder
	b.WriteString("#generated using vaspdb\n")
	fmt.Fprintf(&b, "data_%s\n", formula)
	fmt.Fprintf(&b, "_symmetry_space_group_name_H-M   'P 1'\n")
	fmt.Fprintf(&b, "_cell_length_a   %.8f\n", abc[0])
	fmt.Fprintf(&b, "_cell_length_b   %.8f\n", abc[1])
	fmt.Fprintf(&b, "_cell_length_c   %.8f\n", abc[2])
	fmt.Fprintf(&b, "_cell_angle_alpha   %.8f\n", ang[0])
	fmt.Fprintf(&b, "_cell_angle_beta   %.8f\n", ang[1])
	fmt.Fprintf(&b, "_cell_angle_gamma   %.8f\n", ang[2])
	fmt.Fprintf(&b, "_symmetry_Int_Tables_number   1\n")
	fmt.Fprintf(&b, "_chemical_formula_structural   %s\n", formula)
	fmt.Fprintf(&b, "_chemical_formula_sum   '%s'\n", comp.SumFormula())
	fmt.Fprintf(&b, "_cell_volume   %.8f\n", s.Volume())
	fmt.Fprintf(&b, "_cell_formula_units_Z   %d\n", int(comp.ReducedFactor()))
	b.WriteString("loop_\n")
	b.WriteString("  _symmetry_equiv_pos_site_id\n")
	b.WriteString("  _symmetry_equiv_pos_as_xyz\n")
	b.WriteString("  1  'x, y, z'\n")
	b.WriteString("loop_\n")
	b.WriteString("  _atom_site_type_symbol\n")
	b.WriteString("  _atom_site_label\n")
	b.WriteString("  _atom_site_symmetry_multiplicity\n")
	b.WriteString("  _atom_site_fract_x\n")
	b.WriteString("  _atom_site_fract_y\n")
	b.WriteString("  _atom_site_fract_z\n")
	b.WriteString("  _atom_site_occupancy\n")

	counts := make(map[string]int)
	for _, site := range s.Sites {
		for _, sp := range site.Species {
			label := fmt.Sprintf("%s%d", sp.Element, counts[sp.Element])
			counts[sp.Element]++
			fmt.Fprintf(&b, "  %s  %s  1  %.8f  %.8f  %.8f  %g\n",
				sp.Element, label, site.ABC[0], site.ABC[1], site.ABC[2], sp.Occu)
		}
	}
	return b.String()
}
