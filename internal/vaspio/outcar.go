// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vaspio

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Run-stat keys summed into the overall run statistics.
const (
	StatTotalCPU = "Total CPU time used (sec)"
	StatUser     = "User time (sec)"
	StatSystem   = "System time (sec)"
	StatElapsed  = "Elapsed time (sec)"
)

// TimeStats are the per-run timing keys that sum across sub-runs.
var TimeStats = []string{StatTotalCPU, StatUser, StatSystem, StatElapsed}

var runStatKeys = []string{
	StatTotalCPU, StatUser, StatSystem, StatElapsed,
	"Maximum memory used (kb)", "Average memory used (kb)",
}

var (
	coresLine  = regexp.MustCompile(`running on\s+(\d+)\s+(?:total cores|nodes)`)
	efermiLine = regexp.MustCompile(`E-fermi\s*:\s*(\S+)`)
	totenLine  = regexp.MustCompile(`free\s+energy\s+TOTEN\s+=\s+(\S+)\s+eV`)
	magLine    = regexp.MustCompile(`number of electron\s+\S+\s+magnetization\s+(\S+)`)
)

// Outcar holds the summary values read from an OUTCAR.
type Outcar struct {
	RunStats           map[string]float64 `json:"run_stats"`
	Efermi             *float64           `json:"efermi,omitempty"`
	FinalEnergy        *float64           `json:"final_energy,omitempty"`
	TotalMagnetization *float64           `json:"total_magnetization,omitempty"`
}

// ParseOutcar reads the run statistics and final values of an OUTCAR.
func ParseOutcar(path string) (*Outcar, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	o := &Outcar{RunStats: map[string]float64{}}
	for _, line := range lines {
		if m := coresLine.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				o.RunStats["cores"] = float64(n)
			}
			continue
		}
		if m := efermiLine.FindStringSubmatch(line); m != nil {
			setFloat(&o.Efermi, m[1])
			continue
		}
		if m := totenLine.FindStringSubmatch(line); m != nil {
			setFloat(&o.FinalEnergy, m[1])
			continue
		}
		if m := magLine.FindStringSubmatch(line); m != nil {
			setFloat(&o.TotalMagnetization, m[1])
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		for _, k := range runStatKeys {
			if key == k {
				if v, err := parseFloat(strings.TrimSuffix(strings.TrimSpace(val), ".")); err == nil {
					o.RunStats[k] = v
				}
				break
			}
		}
	}
	if len(o.RunStats) == 0 && o.FinalEnergy == nil {
		return nil, fmt.Errorf("%s: %w: no run statistics", path, ErrNoData)
	}
	return o, nil
}

func setFloat(dst **float64, s string) {
	if v, err := parseFloat(s); err == nil {
		*dst = &v
	}
}
