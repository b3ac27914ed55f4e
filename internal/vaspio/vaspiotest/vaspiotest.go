// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package vaspiotest writes small VASP run directories for tests. The
// fixtures describe two-atom rock-salt NaCl in its primitive cell.
package vaspiotest

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Incar is an INCAR with LDA+U on the Cl site.
const Incar = `SYSTEM = NaCl
PREC = Accurate
ENCUT = 520
ISPIN = 1
LDAU = .TRUE.
LDAUU = 0 3
LDAUJ = 0 0
MAGMOM = 2*0.6
EDIFF = 1.0D-4
`

// Poscar is the starting structure in VASP 5 format.
const Poscar = `NaCl
1.0
  0.00 2.82 2.82
  2.82 0.00 2.82
  2.82 2.82 0.00
Na Cl
1 1
Direct
  0.0 0.0 0.0
  0.5 0.5 0.5
`

// Potcar holds only the header lines the readers look at.
const Potcar = `  PAW_PBE Na_pv 19Sep2006
   TITEL  = PAW_PBE Na_pv 19Sep2006
   POMASS =   22.990; ZVAL   =    7.000
 End of Dataset
  PAW_PBE Cl 06Sep2000
   TITEL  = PAW_PBE Cl 06Sep2000
   POMASS =   35.453; ZVAL   =    7.000
 End of Dataset
`

// Kpoints is a 4x4x4 Monkhorst-Pack mesh.
const Kpoints = `Automatic mesh
0
Monkhorst-Pack
  4 4 4
  0 0 0
`

// Oszicar has two finished ionic steps.
const Oszicar = `       N       E                     dE             d eps       ncg     rms          rms(c)
DAV:   1    -0.425E+02   -0.425E+02   -0.226E+03   160   0.403E+02
DAV:   2    -0.468E+01   -0.436E+01   -0.420E+01   192   0.299E+01    0.163E+01
   1 F= -.67000000E+01 E0= -.67050000E+01  d E =-.670000E+01  mag=     0.0000
DAV:   1    -0.681E+01   -0.100E+00   -0.110E+00   160   0.103E+00
   2 F= -.68000000E+01 E0= -.68050000E+01  d E =-.100000E+00  mag=     0.0000
`

// Outcar carries the run statistics block.
const Outcar = ` running on   16 total cores
 E-fermi :   1.5000     XC(G=0): -10.0     alpha+bet : -8.0
  free  energy   TOTEN  =        -6.80000000 eV
 number of electron      14.0000000 magnetization       0.0000000

                  General timing and accounting informations for this job:
                  ========================================================

                  Total CPU time used (sec):       10.500
                            User time (sec):        9.000
                          System time (sec):        1.500
                         Elapsed time (sec):       12.000

                   Maximum memory used (kb):      100000.
                   Average memory used (kb):          0.
`

// Options shape the generated vasprun.xml.
type Options struct {
	// Scale multiplies the final lattice vectors. Zero means 1.
	Scale float64
	// Truncated cuts the document inside the second ionic step.
	Truncated bool
	// NoHubbard writes an INCAR block without LDA+U.
	NoHubbard bool
}

const basisA = 2.82

// Vasprun renders a vasprun.xml.
func Vasprun(o Options) string {
	scale := o.Scale
	if scale == 0 {
		scale = 1
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="ISO-8859-1"?>
<modeling>
 <generator>
  <i name="program" type="string">vasp </i>
  <i name="version" type="string">5.4.4.18Apr17-6-g9f103f2a35  </i>
  <i name="platform" type="string">LinuxIFC </i>
  <i name="date" type="string">2020 01 01 </i>
 </generator>
 <incar>
  <i type="string" name="PREC">accurate</i>
  <i name="ENCUT">    520.00000000</i>
  <i type="int" name="ISPIN">     1</i>
`)
	if !o.NoHubbard {
		b.WriteString(`  <i type="logical" name="LDAU"> T  </i>
  <v name="LDAUU">      0.00000000      3.00000000</v>
  <v name="LDAUJ">      0.00000000      0.00000000</v>
`)
	}
	b.WriteString(` </incar>
 <kpoints>
  <generation param="Monkhorst-Pack">
   <v type="int" name="divisions">       4        4        4 </v>
   <v name="usershift">      0.00000000      0.00000000      0.00000000</v>
  </generation>
  <varray name="kpointlist" >
   <v>       0.00000000       0.00000000       0.00000000 </v>
   <v>       0.25000000       0.00000000       0.00000000 </v>
  </varray>
  <varray name="weights" >
   <v>       0.25000000 </v>
   <v>       0.75000000 </v>
  </varray>
 </kpoints>
 <parameters>
  <separator name="general" >
   <i type="string" name="SYSTEM">NaCl</i>
   <i type="int" name="NELM">     60</i>
  </separator>
  <separator name="electronic" >
   <i name="EDIFF">      0.00010000</i>
   <separator name="electronic exchange-correlation" >
    <i type="logical" name="LHFCALC"> F  </i>
   </separator>
  </separator>
 </parameters>
 <atominfo>
  <atoms>       2 </atoms>
  <types>       2 </types>
  <array name="atoms" >
   <dimension dim="1">ion</dimension>
   <field type="string">element</field>
   <field type="int">atomtype</field>
   <set>
    <rc><c>Na</c><c>   1</c></rc>
    <rc><c>Cl</c><c>   2</c></rc>
   </set>
  </array>
  <array name="atomtypes" >
   <dimension dim="1">type</dimension>
   <field type="int">atomspertype</field>
   <field type="string">element</field>
   <field>mass</field>
   <field>valence</field>
   <field type="string">pseudopotential</field>
   <set>
    <rc><c>   1</c><c>Na</c><c>     22.99000000</c><c>      7.00000000</c><c>  PAW_PBE Na_pv 19Sep2006               </c></rc>
    <rc><c>   1</c><c>Cl</c><c>     35.45300000</c><c>      7.00000000</c><c>  PAW_PBE Cl 06Sep2000                  </c></rc>
   </set>
  </array>
 </atominfo>
`)
	b.WriteString(structureXML("initialpos", 1))
	b.WriteString(calculationXML(1, -6.7, -6.71, -6.705, false))
	if o.Truncated {
		b.WriteString(` <calculation>
  <scstep>
   <energy>
    <i name="e_fr_energy">   -6.8`)
		return b.String()
	}
	b.WriteString(calculationXML(scale, -6.8, -6.81, -6.805, true))
	b.WriteString(structureXML("finalpos", scale))
	b.WriteString("</modeling>\n")
	return b.String()
}

func basisXML(scale float64) string {
	a := basisA * scale
	return fmt.Sprintf(`   <varray name="basis" >
    <v>       0.00000000 %16.8f %16.8f </v>
    <v> %16.8f       0.00000000 %16.8f </v>
    <v> %16.8f %16.8f       0.00000000 </v>
   </varray>
`, a, a, a, a, a, a)
}

const positionsXML = `  <varray name="positions" >
   <v>       0.00000000       0.00000000       0.00000000 </v>
   <v>       0.50000000       0.50000000       0.50000000 </v>
  </varray>
`

func structureXML(name string, scale float64) string {
	var b strings.Builder
	if name == "" {
		b.WriteString("  <structure>\n   <crystal>\n")
	} else {
		fmt.Fprintf(&b, " <structure name=%q >\n   <crystal>\n", name)
	}
	b.WriteString(basisXML(scale))
	b.WriteString("   </crystal>\n")
	b.WriteString(positionsXML)
	if name == "" {
		b.WriteString("  </structure>\n")
	} else {
		b.WriteString(" </structure>\n")
	}
	return b.String()
}

func calculationXML(scale, efr, ewo, e0 float64, last bool) string {
	var b strings.Builder
	b.WriteString(" <calculation>\n")
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&b, "  <scstep>\n   <energy>\n    <i name=\"e_fr_energy\"> %16.8f </i>\n   </energy>\n  </scstep>\n", efr+0.1*float64(2-i))
	}
	b.WriteString(structureXML("", scale))
	b.WriteString(`  <varray name="forces" >
   <v>       0.00000000       0.00000000       0.00000000 </v>
   <v>       0.00000000       0.00000000       0.00000000 </v>
  </varray>
  <varray name="stress" >
   <v>       1.50000000       0.00000000       0.00000000 </v>
   <v>       0.00000000       1.50000000       0.00000000 </v>
   <v>       0.00000000       0.00000000       1.50000000 </v>
  </varray>
`)
	fmt.Fprintf(&b, `  <energy>
   <i name="e_fr_energy"> %16.8f </i>
   <i name="e_wo_entrp"> %16.8f </i>
   <i name="e_0_energy"> %16.8f </i>
  </energy>
`, efr, ewo, e0)
	if last {
		b.WriteString(`  <eigenvalues>
   <array>
    <dimension dim="1">band</dimension>
    <dimension dim="2">kpoint</dimension>
    <dimension dim="3">spin</dimension>
    <field>eigene</field>
    <field>occ</field>
    <set>
     <set comment="spin 1">
      <set comment="kpoint 1">
       <r>  -10.0000    1.0000 </r>
       <r>    0.5000    1.0000 </r>
       <r>    3.0000    0.0000 </r>
      </set>
      <set comment="kpoint 2">
       <r>   -9.0000    1.0000 </r>
       <r>    1.0000    1.0000 </r>
       <r>    2.5000    0.0000 </r>
      </set>
     </set>
    </set>
   </array>
  </eigenvalues>
  <dos>
   <i name="efermi">      1.50000000 </i>
   <total>
    <array>
     <dimension dim="1">gridpoints</dimension>
     <dimension dim="2">spin</dimension>
     <field>energy</field>
     <field>total</field>
     <field>integrated</field>
     <set>
      <set comment="spin 1">
       <r>    -5.0000     0.1000     0.0000 </r>
       <r>     0.0000     0.5000     0.3000 </r>
       <r>     5.0000     0.2000     0.8000 </r>
      </set>
     </set>
    </array>
   </total>
  </dos>
`)
	}
	b.WriteString(" </calculation>\n")
	return b.String()
}

// WriteFile writes content to path, gzip-compressing it when path ends
// in ".gz". Parent directories are created.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if strings.HasSuffix(path, ".gz") {
		zw := gzip.NewWriter(f)
		if _, err := zw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
		if err := zw.Close(); err != nil {
			t.Fatal(err)
		}
		return
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
}

// WriteInputs writes INCAR, POSCAR, POTCAR and KPOINTS into dir, each name
// extended by suffix (e.g. ".relax1").
func WriteInputs(t testing.TB, dir, suffix string) {
	t.Helper()
	WriteFile(t, filepath.Join(dir, "INCAR"+suffix), Incar)
	WriteFile(t, filepath.Join(dir, "POSCAR"+suffix), Poscar)
	WriteFile(t, filepath.Join(dir, "POTCAR"+suffix), Potcar)
	WriteFile(t, filepath.Join(dir, "KPOINTS"+suffix), Kpoints)
}

// WriteStandardRun writes a finished single run into dir.
func WriteStandardRun(t testing.TB, dir string, o Options) {
	t.Helper()
	WriteInputs(t, dir, "")
	WriteFile(t, filepath.Join(dir, "vasprun.xml"), Vasprun(o))
	WriteFile(t, filepath.Join(dir, "OUTCAR"), Outcar)
	WriteFile(t, filepath.Join(dir, "OSZICAR"), Oszicar)
}

// WriteDoubleRelaxation writes a two-step relaxation with relax1/relax2
// suffixed files into dir.
func WriteDoubleRelaxation(t testing.TB, dir string, o Options) {
	t.Helper()
	for _, suffix := range []string{".relax1", ".relax2"} {
		WriteInputs(t, dir, suffix)
		WriteFile(t, filepath.Join(dir, "vasprun.xml"+suffix+".gz"), Vasprun(o))
		WriteFile(t, filepath.Join(dir, "OUTCAR"+suffix+".gz"), Outcar)
	}
}
