// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vaspio

import (
	"fmt"
	"strconv"
	"strings"
)

// Incar holds INCAR parameters keyed by upper-case tag. Values are bool,
// int, float64, string or []float64.
type Incar map[string]any

// listTags always parse as numeric lists, even with one value.
var listTags = map[string]bool{
	"LDAUU": true, "LDAUJ": true, "LDAUL": true, "MAGMOM": true,
	"DIPOL": true, "LANGEVIN_GAMMA": true, "QUAD_EFG": true, "EINT": true,
}

// stringTags keep their raw value.
var stringTags = map[string]bool{"SYSTEM": true}

// ParseIncar reads an INCAR file.
func ParseIncar(path string) (Incar, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	incar := Incar{}
	for _, line := range lines {
		if i := strings.IndexAny(line, "!#"); i >= 0 {
			line = line[:i]
		}
		for _, stmt := range strings.Split(line, ";") {
			key, val, ok := strings.Cut(stmt, "=")
			if !ok {
				continue
			}
			key = strings.ToUpper(strings.TrimSpace(key))
			if key == "" {
				continue
			}
			incar[key] = parseIncarValue(key, strings.TrimSpace(val))
		}
	}
	if len(incar) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoData)
	}
	return incar, nil
}

func parseIncarValue(key, val string) any {
	if stringTags[key] {
		return val
	}
	fields := strings.Fields(val)
	if listTags[key] || len(fields) > 1 {
		if list, ok := parseNumberList(fields); ok {
			return list
		}
		return val
	}
	return parseScalar(val)
}

// parseNumberList expands VASP "N*x" repetition.
func parseNumberList(fields []string) ([]float64, bool) {
	var out []float64
	for _, f := range fields {
		if n, x, ok := strings.Cut(f, "*"); ok {
			count, err := strconv.Atoi(n)
			if err != nil {
				return nil, false
			}
			v, err := parseFloat(x)
			if err != nil {
				return nil, false
			}
			for i := 0; i < count; i++ {
				out = append(out, v)
			}
			continue
		}
		v, err := parseFloat(f)
		if err != nil {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func parseScalar(val string) any {
	if b, ok := parseBool(val); ok {
		return b
	}
	if i, err := strconv.Atoi(val); err == nil {
		return i
	}
	if f, err := parseFloat(val); err == nil {
		return f
	}
	return val
}

func parseBool(val string) (bool, bool) {
	switch strings.ToUpper(strings.Trim(val, ". ")) {
	case "TRUE", "T":
		return true, true
	case "FALSE", "F":
		return false, true
	}
	return false, false
}

// parseFloat accepts Fortran exponents (1.0D-3) as well as Go syntax.
func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.Replace(strings.Replace(s, "D", "E", 1), "d", "e", 1)
	return strconv.ParseFloat(s, 64)
}

// Get returns the raw value for key.
func (in Incar) Get(key string) (any, bool) {
	v, ok := in[strings.ToUpper(key)]
	return v, ok
}

// Bool returns key as a boolean, defaulting to false.
func (in Incar) Bool(key string) bool {
	switch v := in[strings.ToUpper(key)].(type) {
	case bool:
		return v
	case string:
		b, _ := parseBool(v)
		return b
	}
	return false
}

// Floats returns key as a numeric list; scalars become one-element lists.
func (in Incar) Floats(key string) []float64 {
	switch v := in[strings.ToUpper(key)].(type) {
	case []float64:
		return v
	case float64:
		return []float64{v}
	case int:
		return []float64{float64(v)}
	}
	return nil
}

// Merge returns a copy of in with other's entries added where in has none.
func (in Incar) Merge(other Incar) Incar {
	out := make(Incar, len(in)+len(other))
	for k, v := range other {
		out[k] = v
	}
	for k, v := range in {
		out[k] = v
	}
	return out
}
