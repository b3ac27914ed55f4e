// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vaspio

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/pdiddy/vaspdb/internal/structure"
)

// occupationTol separates occupied from empty states.
const occupationTol = 1e-8

// IonicStep holds the energies and forces of one ionic step.
type IonicStep struct {
	EFrEnergy       float64     `json:"e_fr_energy"`
	EWoEntrp        float64     `json:"e_wo_entrp"`
	E0Energy        float64     `json:"e_0_energy"`
	Forces          [][]float64 `json:"forces,omitempty"`
	Stress          [][]float64 `json:"stress,omitempty"`
	ElectronicSteps int         `json:"electronic_steps"`
}

// Eigenvalue is a band energy and its occupation at one k-point.
type Eigenvalue struct {
	Energy     float64
	Occupation float64
}

// DOS is the total density of states, keyed by spin ("1" and "-1").
type DOS struct {
	Efermi    float64              `json:"efermi"`
	Energies  []float64            `json:"energies"`
	Densities map[string][]float64 `json:"densities"`
}

// BandProperties summarizes the band edges.
type BandProperties struct {
	Gap    float64
	CBM    float64
	VBM    float64
	Direct bool
}

// Vasprun is the content of a vasprun.xml.
type Vasprun struct {
	Generator  map[string]string
	Incar      Incar
	Parameters Incar
	Kpoints    *Kpoints
	// AtomSymbols is the element of every site.
	AtomSymbols []string
	// TypeSymbols is the element of every atom type, in POTCAR order.
	TypeSymbols []string
	// PotcarSymbols are the full TITEL strings, e.g. "PAW_PBE Fe_pv 06Sep2000".
	PotcarSymbols    []string
	InitialStructure *structure.Structure
	FinalStructure   *structure.Structure
	IonicSteps       []IonicStep
	// Eigenvalues is indexed [spin][kpoint][band].
	Eigenvalues [][][]Eigenvalue
	Efermi      float64
	DOS         *DOS
	// Completed is true when the run wrote its final structure and the
	// document is well formed.
	Completed bool
}

// ParseVasprun reads a vasprun.xml. A truncated file from an interrupted
// run still parses when its header and initial structure are intact;
// Completed is false in that case. The DOS is kept only when parseDOS is set.
func ParseVasprun(path string, parseDOS bool) (*Vasprun, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	// vasprun.xml declares ISO-8859-1 but is ASCII in practice.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	v := &Vasprun{
		Generator:  map[string]string{},
		Incar:      Incar{},
		Parameters: Incar{},
	}
	var (
		atominfo  *xmlAtominfo
		kpoints   *xmlKpoints
		initial   *xmlStructure
		final     *xmlStructure
		calcs     []xmlCalculation
		started   bool
		closed    bool
		truncated bool
	)

	for !truncated {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			truncated = true
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if !started {
				if t.Name.Local != "modeling" {
					return nil, fmt.Errorf("%s: root element %q is not modeling", path, t.Name.Local)
				}
				started = true
				continue
			}
			var derr error
			switch t.Name.Local {
			case "generator":
				var p xmlParams
				if derr = dec.DecodeElement(&p, &t); derr == nil {
					for _, it := range p.I {
						v.Generator[strings.TrimSpace(it.Name)] = strings.TrimSpace(it.Value)
					}
				}
			case "incar":
				var p xmlParams
				if derr = dec.DecodeElement(&p, &t); derr == nil {
					p.flatten(v.Incar)
				}
			case "parameters":
				var p xmlParams
				if derr = dec.DecodeElement(&p, &t); derr == nil {
					p.flatten(v.Parameters)
				}
			case "kpoints":
				kpoints = &xmlKpoints{}
				derr = dec.DecodeElement(kpoints, &t)
			case "atominfo":
				atominfo = &xmlAtominfo{}
				derr = dec.DecodeElement(atominfo, &t)
			case "structure":
				var s xmlStructure
				if derr = dec.DecodeElement(&s, &t); derr == nil {
					switch s.Name {
					case "initialpos":
						initial = &s
					case "finalpos":
						final = &s
					}
				}
			case "calculation":
				var c xmlCalculation
				if derr = dec.DecodeElement(&c, &t); derr == nil {
					if !parseDOS {
						c.DOS = dropDOSArrays(c.DOS)
					}
					calcs = append(calcs, c)
				}
			default:
				derr = dec.Skip()
			}
			if derr != nil {
				truncated = true
			}
		case xml.EndElement:
			if t.Name.Local == "modeling" {
				closed = true
			}
		}
	}

	if !started {
		return nil, fmt.Errorf("%s: %w: empty document", path, ErrNoData)
	}
	if atominfo == nil || initial == nil {
		if truncated {
			return nil, fmt.Errorf("%s: truncated before the initial structure", path)
		}
		return nil, fmt.Errorf("%s: %w: missing atominfo or initial structure", path, ErrNoData)
	}

	if err := v.readAtominfo(atominfo); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if v.InitialStructure, err = initial.toStructure(v.AtomSymbols); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if kpoints != nil {
		v.Kpoints = kpointsFromXML(kpoints)
	}

	for _, c := range calcs {
		step, err := ionicStepFromXML(c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		v.IonicSteps = append(v.IonicSteps, step)
	}

	switch {
	case final != nil:
		if v.FinalStructure, err = final.toStructure(v.AtomSymbols); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case len(calcs) > 0 && calcs[len(calcs)-1].Structure != nil:
		last := calcs[len(calcs)-1].Structure
		if v.FinalStructure, err = last.toStructure(v.AtomSymbols); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	default:
		v.FinalStructure = v.InitialStructure.Copy()
	}
	v.Completed = final != nil && closed && !truncated

	for i := len(calcs) - 1; i >= 0; i-- {
		if calcs[i].Eigenvalues != nil {
			if v.Eigenvalues, err = eigenvaluesFromXML(calcs[i].Eigenvalues.Array); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			break
		}
	}
	for i := len(calcs) - 1; i >= 0; i-- {
		if d := calcs[i].DOS; d != nil {
			for _, it := range d.I {
				if strings.TrimSpace(it.Name) == "efermi" {
					v.Efermi, _ = parseFloat(it.Value)
				}
			}
			if parseDOS {
				if v.DOS, err = dosFromXML(d, v.Efermi); err != nil {
					return nil, fmt.Errorf("%s: %w", path, err)
				}
			}
			break
		}
	}
	return v, nil
}

// dropDOSArrays keeps the Fermi level but discards the DOS grid.
func dropDOSArrays(d *xmlDOS) *xmlDOS {
	if d == nil {
		return nil
	}
	return &xmlDOS{I: d.I}
}

func (v *Vasprun) readAtominfo(ai *xmlAtominfo) error {
	for _, arr := range ai.Arrays {
		switch arr.Name {
		case "atoms":
			for _, rc := range arr.Set.RC {
				if len(rc.C) == 0 {
					continue
				}
				el, err := structure.ElementFromLabel(rc.C[0])
				if err != nil {
					return err
				}
				v.AtomSymbols = append(v.AtomSymbols, el)
			}
		case "atomtypes":
			elIdx, ppIdx := fieldIndex(arr.Fields, "element"), fieldIndex(arr.Fields, "pseudopotential")
			for _, rc := range arr.Set.RC {
				if elIdx >= 0 && elIdx < len(rc.C) {
					el, err := structure.ElementFromLabel(rc.C[elIdx])
					if err != nil {
						return err
					}
					v.TypeSymbols = append(v.TypeSymbols, el)
				}
				if ppIdx >= 0 && ppIdx < len(rc.C) {
					v.PotcarSymbols = append(v.PotcarSymbols, strings.TrimSpace(rc.C[ppIdx]))
				}
			}
		}
	}
	if len(v.AtomSymbols) == 0 {
		return fmt.Errorf("%w: no atoms in atominfo", ErrNoData)
	}
	return nil
}

func fieldIndex(fields []string, name string) int {
	for i, f := range fields {
		if strings.TrimSpace(f) == name {
			return i
		}
	}
	return -1
}

func kpointsFromXML(x *xmlKpoints) *Kpoints {
	k := &Kpoints{Comment: "Kpoints from vasprun.xml"}
	if g := x.Generation; g != nil {
		switch p := strings.ToLower(g.Param); {
		case strings.HasPrefix(p, "g"):
			k.Style = KpointsGamma
		case strings.HasPrefix(p, "m"):
			k.Style = KpointsMonkhorst
		default:
			k.Style = KpointsAutomatic
		}
		for _, it := range g.V {
			fl, err := it.floats()
			if err != nil || len(fl) < 3 {
				continue
			}
			switch it.Name {
			case "divisions":
				k.Divisions = [][3]float64{{fl[0], fl[1], fl[2]}}
			case "usershift":
				k.Shift = [3]float64{fl[0], fl[1], fl[2]}
			}
		}
		for _, it := range g.I {
			if it.Name == "length" {
				k.Length, _ = parseFloat(it.Value)
			}
		}
		return k
	}
	k.Style = KpointsReciprocal
	if list := findVarray(x.Varrays, "kpointlist"); list != nil {
		vecs, _ := list.vectors()
		for _, vec := range vecs {
			if len(vec) == 3 {
				k.Divisions = append(k.Divisions, [3]float64{vec[0], vec[1], vec[2]})
			}
		}
	}
	if w := findVarray(x.Varrays, "weights"); w != nil {
		vecs, _ := w.vectors()
		for _, vec := range vecs {
			if len(vec) > 0 {
				k.Weights = append(k.Weights, vec[0])
			}
		}
	}
	k.NumKpts = len(k.Divisions)
	return k
}

func ionicStepFromXML(c xmlCalculation) (IonicStep, error) {
	e := energyItems(c.Energy)
	step := IonicStep{
		EFrEnergy:       e["e_fr_energy"],
		EWoEntrp:        e["e_wo_entrp"],
		E0Energy:        e["e_0_energy"],
		ElectronicSteps: len(c.SCSteps),
	}
	if f := findVarray(c.Varrays, "forces"); f != nil {
		vecs, err := f.vectors()
		if err != nil {
			return step, fmt.Errorf("forces: %w", err)
		}
		step.Forces = vecs
	}
	if s := findVarray(c.Varrays, "stress"); s != nil {
		vecs, err := s.vectors()
		if err != nil {
			return step, fmt.Errorf("stress: %w", err)
		}
		step.Stress = vecs
	}
	return step, nil
}

func eigenvaluesFromXML(arr xmlArray) ([][][]Eigenvalue, error) {
	var out [][][]Eigenvalue
	for _, spin := range arr.Set.Sets {
		var kpts [][]Eigenvalue
		for _, kp := range spin.Sets {
			bands := make([]Eigenvalue, 0, len(kp.R))
			for _, r := range kp.R {
				f := strings.Fields(r)
				if len(f) < 2 {
					return nil, fmt.Errorf("eigenvalue row %q", r)
				}
				en, err := parseFloat(f[0])
				if err != nil {
					return nil, fmt.Errorf("eigenvalue row %q: %w", r, err)
				}
				occ, err := parseFloat(f[1])
				if err != nil {
					return nil, fmt.Errorf("eigenvalue row %q: %w", r, err)
				}
				bands = append(bands, Eigenvalue{Energy: en, Occupation: occ})
			}
			kpts = append(kpts, bands)
		}
		out = append(out, kpts)
	}
	return out, nil
}

func dosFromXML(d *xmlDOS, efermi float64) (*DOS, error) {
	spins := d.Total.Array.Set.Sets
	if len(spins) == 0 {
		return nil, errors.New("dos: no total density of states")
	}
	dos := &DOS{Efermi: efermi, Densities: map[string][]float64{}}
	labels := []string{"1", "-1"}
	for si, spin := range spins {
		if si >= len(labels) {
			break
		}
		densities := make([]float64, 0, len(spin.R))
		for _, r := range spin.R {
			f := strings.Fields(r)
			if len(f) < 2 {
				return nil, fmt.Errorf("dos row %q", r)
			}
			en, err := parseFloat(f[0])
			if err != nil {
				return nil, fmt.Errorf("dos row %q: %w", r, err)
			}
			val, err := parseFloat(f[1])
			if err != nil {
				return nil, fmt.Errorf("dos row %q: %w", r, err)
			}
			if si == 0 {
				dos.Energies = append(dos.Energies, en)
			}
			densities = append(densities, val)
		}
		dos.Densities[labels[si]] = densities
	}
	return dos, nil
}

// FinalEnergy returns the energy without entropy of the last ionic step.
func (v *Vasprun) FinalEnergy() float64 {
	if len(v.IonicSteps) == 0 {
		return 0
	}
	last := v.IonicSteps[len(v.IonicSteps)-1]
	if last.EWoEntrp != 0 {
		return last.EWoEntrp
	}
	return last.EFrEnergy
}

// Version returns the VASP version from the generator block.
func (v *Vasprun) Version() string {
	return v.Generator["version"]
}

// BandProperties finds the valence band maximum, conduction band minimum,
// gap and whether the gap is direct. ok is false when the eigenvalues do
// not contain both occupied and empty states.
func (v *Vasprun) BandProperties() (bp BandProperties, ok bool) {
	vbm, cbm := math.Inf(-1), math.Inf(1)
	vbmK, cbmK := -1, -1
	for _, spin := range v.Eigenvalues {
		for k, bands := range spin {
			for _, b := range bands {
				if b.Occupation > occupationTol {
					if b.Energy > vbm {
						vbm, vbmK = b.Energy, k
					}
				} else if b.Energy < cbm {
					cbm, cbmK = b.Energy, k
				}
			}
		}
	}
	if vbmK < 0 || cbmK < 0 {
		return BandProperties{}, false
	}
	return BandProperties{
		Gap:    math.Max(cbm-vbm, 0),
		CBM:    cbm,
		VBM:    vbm,
		Direct: vbmK == cbmK,
	}, true
}

// Hubbards maps each atom type's element to its effective U (U - J).
// The map is empty for runs without LDA+U.
func (v *Vasprun) Hubbards() map[string]float64 {
	out := map[string]float64{}
	merged := v.Incar.Merge(v.Parameters)
	if !merged.Bool("LDAU") {
		return out
	}
	us, js := merged.Floats("LDAUU"), merged.Floats("LDAUJ")
	for i, el := range v.TypeSymbols {
		var u, j float64
		if i < len(us) {
			u = us[i]
		}
		if i < len(js) {
			j = js[i]
		}
		out[el] = u - j
	}
	var sum float64
	for _, val := range out {
		sum += val
	}
	if sum == 0 {
		return map[string]float64{}
	}
	return out
}

// IsHubbard reports whether the run applied a non-zero Hubbard U.
func (v *Vasprun) IsHubbard() bool {
	return len(v.Hubbards()) > 0
}

// RunType classifies the functional: GGA+U, HF or GGA.
func (v *Vasprun) RunType() string {
	return runType(v.IsHubbard(), v.Incar.Merge(v.Parameters).Bool("LHFCALC"))
}

// PotcarLabels returns the short POTCAR labels, e.g. "Fe_pv".
func (v *Vasprun) PotcarLabels() []string {
	out := make([]string, len(v.PotcarSymbols))
	for i, s := range v.PotcarSymbols {
		out[i] = potcarLabelFromTitel(s)
	}
	return out
}

func runType(hubbard, hf bool) string {
	switch {
	case hubbard:
		return "GGA+U"
	case hf:
		return "HF"
	default:
		return "GGA"
	}
}

// IncarHubbard evaluates the LDA+U settings of a standalone INCAR the
// way a killed run is classified: LDAU with all-zero U and J is not
// Hubbard.
func IncarHubbard(in Incar) (isHubbard bool, runTypeName string) {
	isHubbard = in.Bool("LDAU")
	if isHubbard {
		var sum float64
		for _, u := range in.Floats("LDAUU") {
			sum += u
		}
		var jsum float64
		for _, j := range in.Floats("LDAUJ") {
			jsum += j
		}
		if sum == 0 && jsum == 0 {
			isHubbard = false
		}
	}
	return isHubbard, runType(isHubbard, in.Bool("LHFCALC"))
}
