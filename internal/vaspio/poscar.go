// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vaspio

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdiddy/vaspdb/internal/structure"
)

// Poscar is a parsed POSCAR/CONTCAR file.
type Poscar struct {
	Comment   string
	Structure *structure.Structure
	// SelectiveDynamics holds per-site relaxation flags when present.
	SelectiveDynamics [][3]bool
}

// ParsePoscar reads a POSCAR file. Species come from the VASP 5 symbol
// line, from the comment line, or from a POTCAR next to the file.
func ParsePoscar(path string) (*Poscar, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	p, err := parsePoscarLines(lines, func() []string {
		dir := filepath.Dir(path)
		matches, _ := filepath.Glob(filepath.Join(dir, "POTCAR*"))
		for _, m := range matches {
			if labels, _, err := ParsePotcarSymbols(m); err == nil {
				return labels
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func parsePoscarLines(lines []string, potcarLabels func() []string) (*Poscar, error) {
	if len(lines) < 7 {
		return nil, fmt.Errorf("%w: POSCAR needs at least 7 lines", ErrNoData)
	}
	p := &Poscar{Comment: strings.TrimSpace(lines[0])}

	scale, err := parseFloat(firstField(lines[1]))
	if err != nil {
		return nil, fmt.Errorf("bad scale %q", lines[1])
	}
	var m structure.Mat3
	for i := 0; i < 3; i++ {
		v, err := parseVec3(lines[2+i])
		if err != nil {
			return nil, fmt.Errorf("lattice vector %d: %w", i+1, err)
		}
		m[i] = v
	}
	lattice := structure.NewLattice(m)
	if scale < 0 {
		scale = math.Cbrt(-scale / lattice.Volume())
	}
	for i := range m {
		for j := range m[i] {
			m[i][j] *= scale
		}
	}
	lattice = structure.NewLattice(m)

	idx := 5
	var symbols []string
	if _, err := strconv.Atoi(firstField(lines[idx])); err != nil {
		symbols = strings.Fields(lines[idx])
		idx++
	}
	if idx >= len(lines) {
		return nil, fmt.Errorf("%w: missing atom counts", ErrNoData)
	}
	var counts []int
	for _, f := range strings.Fields(lines[idx]) {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("bad atom count %q", f)
		}
		counts = append(counts, n)
	}
	idx++

	if symbols == nil {
		symbols = symbolsFromComment(p.Comment, len(counts))
	}
	if symbols == nil && potcarLabels != nil {
		symbols = potcarLabels()
	}
	if len(symbols) != len(counts) {
		return nil, fmt.Errorf("cannot determine species for %d atom types", len(counts))
	}
	for i, sym := range symbols {
		el, err := structure.ElementFromLabel(sym)
		if err != nil {
			return nil, err
		}
		symbols[i] = el
	}

	if idx >= len(lines) {
		return nil, fmt.Errorf("%w: missing coordinate mode", ErrNoData)
	}
	selective := false
	if mode := strings.TrimSpace(lines[idx]); mode != "" && strings.ToLower(mode[:1]) == "s" {
		selective = true
		idx++
	}
	if idx >= len(lines) {
		return nil, fmt.Errorf("%w: missing coordinate mode", ErrNoData)
	}
	mode := strings.ToLower(strings.TrimSpace(lines[idx]))
	cartesian := strings.HasPrefix(mode, "c") || strings.HasPrefix(mode, "k")
	idx++

	var elements []string
	var coords []structure.Vec3
	for t, n := range counts {
		for k := 0; k < n; k++ {
			if idx >= len(lines) {
				return nil, fmt.Errorf("%w: expected %d sites", ErrNoData, total(counts))
			}
			v, err := parseVec3(lines[idx])
			if err != nil {
				return nil, fmt.Errorf("site %d: %w", len(coords)+1, err)
			}
			if cartesian {
				v = structure.Vec3{v[0] * scale, v[1] * scale, v[2] * scale}
			}
			if selective {
				p.SelectiveDynamics = append(p.SelectiveDynamics, selectiveFlags(lines[idx]))
			}
			elements = append(elements, symbols[t])
			coords = append(coords, v)
			idx++
		}
	}

	s, err := structure.New(lattice, elements, coords, cartesian)
	if err != nil {
		return nil, err
	}
	p.Structure = s
	return p, nil
}

func symbolsFromComment(comment string, n int) []string {
	fields := strings.Fields(comment)
	if len(fields) < n {
		return nil
	}
	out := make([]string, 0, n)
	for _, f := range fields[:n] {
		el, err := structure.ElementFromLabel(f)
		if err != nil {
			return nil
		}
		out = append(out, el)
	}
	return out
}

func selectiveFlags(line string) [3]bool {
	var flags [3]bool
	f := strings.Fields(line)
	for i := 0; i < 3 && 3+i < len(f); i++ {
		flags[i] = strings.EqualFold(f[3+i], "T")
	}
	return flags
}

func total(counts []int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

