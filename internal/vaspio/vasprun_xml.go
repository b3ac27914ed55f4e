// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vaspio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pdiddy/vaspdb/internal/structure"
)

// XML shapes of the vasprun.xml elements we read. Only direct children are
// bound, so nested <energy> blocks inside <scstep> do not leak upward.

type xmlItem struct {
	Name  string `xml:"name,attr"`
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type xmlVarray struct {
	Name string    `xml:"name,attr"`
	V    []xmlItem `xml:"v"`
}

type xmlParams struct {
	I          []xmlItem   `xml:"i"`
	V          []xmlItem   `xml:"v"`
	Separators []xmlParams `xml:"separator"`
}

type xmlSet struct {
	Comment string   `xml:"comment,attr"`
	Sets    []xmlSet `xml:"set"`
	RC      []xmlRC  `xml:"rc"`
	R       []string `xml:"r"`
}

type xmlRC struct {
	C []string `xml:"c"`
}

type xmlArray struct {
	Name   string   `xml:"name,attr"`
	Fields []string `xml:"field"`
	Set    xmlSet   `xml:"set"`
}

type xmlCrystal struct {
	Varrays []xmlVarray `xml:"varray"`
}

type xmlStructure struct {
	Name    string      `xml:"name,attr"`
	Crystal xmlCrystal  `xml:"crystal"`
	Varrays []xmlVarray `xml:"varray"`
}

type xmlEnergy struct {
	I []xmlItem `xml:"i"`
}

type xmlKpoints struct {
	Generation *struct {
		Param string    `xml:"param,attr"`
		V     []xmlItem `xml:"v"`
		I     []xmlItem `xml:"i"`
	} `xml:"generation"`
	Varrays []xmlVarray `xml:"varray"`
}

type xmlAtominfo struct {
	Arrays []xmlArray `xml:"array"`
}

type xmlDOS struct {
	I     []xmlItem `xml:"i"`
	Total struct {
		Array xmlArray `xml:"array"`
	} `xml:"total"`
}

type xmlCalculation struct {
	SCSteps   []struct{}    `xml:"scstep"`
	Structure *xmlStructure `xml:"structure"`
	Varrays   []xmlVarray   `xml:"varray"`
	Energy    xmlEnergy     `xml:"energy"`

	Eigenvalues *struct {
		Array xmlArray `xml:"array"`
	} `xml:"eigenvalues"`
	DOS *xmlDOS `xml:"dos"`
}

func (it xmlItem) value() any {
	v := strings.TrimSpace(it.Value)
	switch it.Type {
	case "logical":
		b, _ := parseBool(v)
		return b
	case "string":
		return v
	case "int":
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		return v
	default:
		if f, err := parseFloat(v); err == nil {
			return f
		}
		return v
	}
}

func (it xmlItem) floats() ([]float64, error) {
	f := strings.Fields(it.Value)
	out := make([]float64, len(f))
	for i, s := range f {
		v, err := parseFloat(s)
		if err != nil {
			// VASP prints overflowing numbers as asterisks.
			if strings.HasPrefix(s, "*") {
				v = 0
			} else {
				return nil, fmt.Errorf("varray value %q: %w", s, err)
			}
		}
		out[i] = v
	}
	return out, nil
}

func (p xmlParams) flatten(into Incar) {
	for _, it := range p.I {
		into[strings.ToUpper(it.Name)] = it.value()
	}
	for _, it := range p.V {
		if fl, err := it.floats(); err == nil {
			into[strings.ToUpper(it.Name)] = fl
		}
	}
	for _, sep := range p.Separators {
		sep.flatten(into)
	}
}

func findVarray(vs []xmlVarray, name string) *xmlVarray {
	for i := range vs {
		if vs[i].Name == name {
			return &vs[i]
		}
	}
	return nil
}

func (va *xmlVarray) vectors() ([][]float64, error) {
	out := make([][]float64, len(va.V))
	for i, v := range va.V {
		fl, err := v.floats()
		if err != nil {
			return nil, err
		}
		out[i] = fl
	}
	return out, nil
}

func energyItems(e xmlEnergy) map[string]float64 {
	out := make(map[string]float64, len(e.I))
	for _, it := range e.I {
		if f, err := parseFloat(it.Value); err == nil {
			out[strings.TrimSpace(it.Name)] = f
		}
	}
	return out
}

func (xs *xmlStructure) toStructure(elements []string) (*structure.Structure, error) {
	basis := findVarray(xs.Crystal.Varrays, "basis")
	positions := findVarray(xs.Varrays, "positions")
	if basis == nil || positions == nil {
		return nil, fmt.Errorf("structure %q: missing basis or positions", xs.Name)
	}
	bv, err := basis.vectors()
	if err != nil {
		return nil, err
	}
	if len(bv) != 3 {
		return nil, fmt.Errorf("structure %q: basis has %d vectors", xs.Name, len(bv))
	}
	var m structure.Mat3
	for i := range bv {
		if len(bv[i]) != 3 {
			return nil, fmt.Errorf("structure %q: malformed basis", xs.Name)
		}
		m[i] = structure.Vec3{bv[i][0], bv[i][1], bv[i][2]}
	}
	pv, err := positions.vectors()
	if err != nil {
		return nil, err
	}
	coords := make([]structure.Vec3, len(pv))
	for i, p := range pv {
		if len(p) != 3 {
			return nil, fmt.Errorf("structure %q: malformed position %d", xs.Name, i)
		}
		coords[i] = structure.Vec3{p[0], p[1], p[2]}
	}
	return structure.New(structure.NewLattice(m), elements, coords, false)
}
