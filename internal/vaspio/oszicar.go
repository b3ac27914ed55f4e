// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vaspio

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ElectronicStep is one SCF iteration line from an OSZICAR.
type ElectronicStep struct {
	Algorithm string  `json:"alg"`
	N         int     `json:"N"`
	E         float64 `json:"E"`
	DE        float64 `json:"dE"`
	DEps      float64 `json:"deps"`
	NCG       int     `json:"ncg"`
	RMS       float64 `json:"rms"`
	RMSC      float64 `json:"rms(c),omitempty"`
}

// IonicStepSummary is one ionic step line from an OSZICAR.
type IonicStepSummary struct {
	F               float64          `json:"F"`
	E0              float64          `json:"E0"`
	DE              float64          `json:"dE"`
	Mag             *float64         `json:"mag,omitempty"`
	ElectronicSteps []ElectronicStep `json:"electronic_steps"`

	partial bool
}

// Oszicar is the convergence log of a run.
type Oszicar struct {
	IonicSteps []IonicStepSummary `json:"ionic_steps"`
}

var (
	ionicLine      = regexp.MustCompile(`^\s*(\d+)\s+F=\s*(\S+)\s+E0=\s*(\S+)\s+d\s*E\s*=\s*(\S+)(?:\s+mag=\s*(\S+))?`)
	electronicLine = regexp.MustCompile(`^([A-Za-z]+):\s+(\d+)\s+(.*)$`)
)

// ParseOszicar reads an OSZICAR file. Electronic steps that follow the last
// ionic line belong to an unfinished step and are kept on a trailing entry
// with zero energies.
func ParseOszicar(path string) (*Oszicar, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	o := &Oszicar{}
	var pending []ElectronicStep
	for _, line := range lines {
		if m := ionicLine.FindStringSubmatch(line); m != nil {
			step := IonicStepSummary{ElectronicSteps: pending}
			if step.F, err = parseFloat(m[2]); err != nil {
				return nil, fmt.Errorf("%s: bad F in %q", path, line)
			}
			if step.E0, err = parseFloat(m[3]); err != nil {
				return nil, fmt.Errorf("%s: bad E0 in %q", path, line)
			}
			if step.DE, err = parseFloat(m[4]); err != nil {
				return nil, fmt.Errorf("%s: bad dE in %q", path, line)
			}
			if m[5] != "" {
				if mag, err := parseFloat(m[5]); err == nil {
					step.Mag = &mag
				}
			}
			o.IonicSteps = append(o.IonicSteps, step)
			pending = nil
			continue
		}
		if m := electronicLine.FindStringSubmatch(line); m != nil {
			if es, ok := parseElectronic(m[1], m[2], m[3]); ok {
				pending = append(pending, es)
			}
		}
	}
	if len(pending) > 0 {
		o.IonicSteps = append(o.IonicSteps, IonicStepSummary{ElectronicSteps: pending, partial: true})
	}
	if len(o.IonicSteps) == 0 {
		return nil, fmt.Errorf("%s: %w: no steps", path, ErrNoData)
	}
	return o, nil
}

func parseElectronic(alg, n, rest string) (ElectronicStep, bool) {
	es := ElectronicStep{Algorithm: alg}
	var err error
	if es.N, err = strconv.Atoi(n); err != nil {
		return es, false
	}
	f := strings.Fields(rest)
	if len(f) < 5 {
		return es, false
	}
	vals := make([]float64, len(f))
	for i, s := range f {
		if vals[i], err = parseFloat(s); err != nil {
			return es, false
		}
	}
	es.E, es.DE, es.DEps = vals[0], vals[1], vals[2]
	es.NCG = int(vals[3])
	es.RMS = vals[4]
	if len(vals) > 5 {
		es.RMSC = vals[5]
	}
	return es, true
}

// FinalEnergy returns E0 of the last completed ionic step.
func (o *Oszicar) FinalEnergy() (float64, bool) {
	for i := len(o.IonicSteps) - 1; i >= 0; i-- {
		if !o.IonicSteps[i].partial {
			return o.IonicSteps[i].E0, true
		}
	}
	return 0, false
}
