// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vaspio

import (
	"fmt"
	"strconv"
	"strings"
)

// KpointsStyle names how the k-point set is generated.
type KpointsStyle string

const (
	KpointsGamma      KpointsStyle = "Gamma"
	KpointsMonkhorst  KpointsStyle = "Monkhorst"
	KpointsAutomatic  KpointsStyle = "Automatic"
	KpointsReciprocal KpointsStyle = "Reciprocal"
	KpointsCartesian  KpointsStyle = "Cartesian"
	KpointsLineMode   KpointsStyle = "Line_mode"
)

// Kpoints is the content of a KPOINTS file or the kpoints block of a
// vasprun.xml.
type Kpoints struct {
	Comment   string       `json:"comment"`
	NumKpts   int          `json:"nkpoints"`
	Style     KpointsStyle `json:"generation_style"`
	Divisions [][3]float64 `json:"kpoints"`
	Shift     [3]float64   `json:"usershift"`
	Weights   []float64    `json:"kpts_weights,omitempty"`
	// Length is the subdivision length for fully automatic meshes.
	Length float64 `json:"length,omitempty"`
}

// ParseKpoints reads a KPOINTS file.
func ParseKpoints(path string) (*Kpoints, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	if len(lines) < 3 {
		return nil, fmt.Errorf("%s: %w: want at least 3 lines", path, ErrNoData)
	}
	k := &Kpoints{Comment: strings.TrimSpace(lines[0])}
	n, err := strconv.Atoi(firstField(lines[1]))
	if err != nil {
		return nil, fmt.Errorf("%s: bad k-point count %q", path, lines[1])
	}
	k.NumKpts = n
	style := strings.TrimSpace(lines[2])
	if style == "" {
		return nil, fmt.Errorf("%s: missing generation style", path)
	}

	if n == 0 {
		return k, parseAutomaticKpoints(k, style, tail(lines, 3), path)
	}

	switch c := strings.ToLower(style[:1]); {
	case c == "l":
		k.Style = KpointsLineMode
		return k, parseExplicitKpoints(k, tail(lines, 4), false, path)
	case c == "c" || c == "k":
		k.Style = KpointsCartesian
	default:
		k.Style = KpointsReciprocal
	}
	return k, parseExplicitKpoints(k, tail(lines, 3), true, path)
}

func parseAutomaticKpoints(k *Kpoints, style string, rest []string, path string) error {
	switch strings.ToLower(style[:1]) {
	case "g":
		k.Style = KpointsGamma
	case "m":
		k.Style = KpointsMonkhorst
	case "a":
		k.Style = KpointsAutomatic
		if len(rest) == 0 {
			return fmt.Errorf("%s: automatic mesh without length", path)
		}
		l, err := parseFloat(firstField(rest[0]))
		if err != nil {
			return fmt.Errorf("%s: bad length %q", path, rest[0])
		}
		k.Length = l
		k.Divisions = [][3]float64{{l, 0, 0}}
		return nil
	default:
		return fmt.Errorf("%s: unsupported generation style %q", path, style)
	}
	if len(rest) == 0 {
		return fmt.Errorf("%s: mesh without divisions", path)
	}
	div, err := parseVec3(rest[0])
	if err != nil {
		return fmt.Errorf("%s: divisions: %w", path, err)
	}
	k.Divisions = [][3]float64{div}
	if len(rest) > 1 && strings.TrimSpace(rest[1]) != "" {
		if shift, err := parseVec3(rest[1]); err == nil {
			k.Shift = shift
		}
	}
	return nil
}

func parseExplicitKpoints(k *Kpoints, rest []string, weighted bool, path string) error {
	for _, line := range rest {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		v, err := parseVec3(line)
		if err != nil {
			return fmt.Errorf("%s: k-point %q: %w", path, line, err)
		}
		k.Divisions = append(k.Divisions, v)
		if weighted {
			w := 1.0
			if len(fields) > 3 {
				if pw, err := parseFloat(fields[3]); err == nil {
					w = pw
				}
			}
			k.Weights = append(k.Weights, w)
		}
		if weighted && len(k.Divisions) == k.NumKpts {
			break
		}
	}
	if len(k.Divisions) == 0 {
		return fmt.Errorf("%s: %w: no k-points listed", path, ErrNoData)
	}
	return nil
}

func tail(lines []string, from int) []string {
	if from >= len(lines) {
		return nil
	}
	return lines[from:]
}

func firstField(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

func parseVec3(s string) ([3]float64, error) {
	var v [3]float64
	f := strings.Fields(s)
	if len(f) < 3 {
		return v, fmt.Errorf("want 3 numbers, got %q", s)
	}
	for i := 0; i < 3; i++ {
		x, err := parseFloat(f[i])
		if err != nil {
			return v, err
		}
		v[i] = x
	}
	return v, nil
}
