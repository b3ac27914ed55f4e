// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vaspio

import (
	"fmt"
	"strings"
)

// PotcarFunctional describes the pseudopotential family of a POTCAR.
type PotcarFunctional struct {
	Functional string `json:"functional"`
	PotType    string `json:"pot_type"`
}

// functionalByTitel maps the TITEL prefix to functional and type.
var functionalByTitel = map[string]PotcarFunctional{
	"PAW_PBE": {"pbe", "paw"},
	"PAW_GGA": {"pw91", "paw"},
	"PAW":     {"lda", "paw"},
	"US":      {"lda", "us"},
}

// ParsePotcarSymbols returns the labels of every pseudopotential in a
// POTCAR (e.g. "Fe_pv", "O") and the functional of the first one. Only the
// TITEL lines are read; the potential data itself is not needed.
func ParsePotcarSymbols(path string) ([]string, PotcarFunctional, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, PotcarFunctional{}, err
	}
	var (
		labels []string
		fn     PotcarFunctional
	)
	for _, line := range lines {
		_, rest, ok := strings.Cut(line, "TITEL")
		if !ok {
			continue
		}
		_, val, ok := strings.Cut(rest, "=")
		if !ok {
			continue
		}
		fields := strings.Fields(val)
		if len(fields) < 2 {
			continue
		}
		if labels == nil {
			fn = functionalByTitel[fields[0]]
		}
		labels = append(labels, fields[1])
	}
	if len(labels) == 0 {
		return nil, PotcarFunctional{}, fmt.Errorf("%s: %w: no TITEL entries", path, ErrNoData)
	}
	return labels, fn, nil
}

// potcarLabelFromTitel extracts the label from a vasprun pseudopotential
// string such as "PAW_PBE Fe_pv 06Sep2000".
func potcarLabelFromTitel(titel string) string {
	fields := strings.Fields(titel)
	if len(fields) < 2 {
		return strings.TrimSpace(titel)
	}
	return fields[1]
}
