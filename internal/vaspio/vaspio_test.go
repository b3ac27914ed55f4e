// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vaspio_test

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/vaspdb/internal/vaspio"
	"github.com/pdiddy/vaspdb/internal/vaspio/vaspiotest"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	vaspiotest.WriteFile(t, path, content)
	return path
}

func TestParseIncar(t *testing.T) {
	in, err := vaspio.ParseIncar(write(t, "INCAR", vaspiotest.Incar+"ISIF = 3 ! relax cell\nNSW = 99; IBRION = 2\n"))
	require.NoError(t, err)

	assert.Equal(t, "NaCl", in["SYSTEM"])
	assert.Equal(t, 520, in["ENCUT"])
	assert.Equal(t, 3, in["ISIF"])
	assert.Equal(t, 99, in["NSW"])
	assert.Equal(t, 2, in["IBRION"])
	assert.True(t, in.Bool("ldau"))
	assert.Equal(t, []float64{0, 3}, in.Floats("LDAUU"))
	assert.Equal(t, []float64{0.6, 0.6}, in.Floats("MAGMOM"))
	assert.InDelta(t, 1e-4, in["EDIFF"], 1e-12)
}

func TestParseIncarEmpty(t *testing.T) {
	_, err := vaspio.ParseIncar(write(t, "INCAR", "# nothing here\n"))
	assert.True(t, errors.Is(err, vaspio.ErrNoData))
}

func TestIncarMergePrefersReceiver(t *testing.T) {
	a := vaspio.Incar{"ENCUT": 520}
	b := vaspio.Incar{"ENCUT": 400, "ISPIN": 2}
	m := a.Merge(b)
	assert.Equal(t, 520, m["ENCUT"])
	assert.Equal(t, 2, m["ISPIN"])
	assert.Len(t, a, 1)
}

func TestIncarHubbard(t *testing.T) {
	tests := []struct {
		name    string
		incar   vaspio.Incar
		hubbard bool
		runType string
	}{
		{"plain", vaspio.Incar{}, false, "GGA"},
		{"u", vaspio.Incar{"LDAU": true, "LDAUU": []float64{0, 3}}, true, "GGA+U"},
		{"zero u", vaspio.Incar{"LDAU": true, "LDAUU": []float64{0, 0}, "LDAUJ": []float64{0, 0}}, false, "GGA"},
		{"hf", vaspio.Incar{"LHFCALC": true}, false, "HF"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, rt := vaspio.IncarHubbard(tc.incar)
			assert.Equal(t, tc.hubbard, h)
			assert.Equal(t, tc.runType, rt)
		})
	}
}

func TestParseKpoints(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		style     vaspio.KpointsStyle
		divisions [][3]float64
		weights   []float64
	}{
		{
			name:      "monkhorst",
			content:   vaspiotest.Kpoints,
			style:     vaspio.KpointsMonkhorst,
			divisions: [][3]float64{{4, 4, 4}},
		},
		{
			name:      "gamma",
			content:   "mesh\n0\nGamma\n6 6 6\n",
			style:     vaspio.KpointsGamma,
			divisions: [][3]float64{{6, 6, 6}},
		},
		{
			name:      "automatic",
			content:   "auto\n0\nAuto\n  20\n",
			style:     vaspio.KpointsAutomatic,
			divisions: [][3]float64{{20, 0, 0}},
		},
		{
			name:      "explicit",
			content:   "explicit\n2\nReciprocal\n0 0 0 1\n0.5 0 0 3\n",
			style:     vaspio.KpointsReciprocal,
			divisions: [][3]float64{{0, 0, 0}, {0.5, 0, 0}},
			weights:   []float64{1, 3},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			k, err := vaspio.ParseKpoints(write(t, "KPOINTS", tc.content))
			require.NoError(t, err)
			assert.Equal(t, tc.style, k.Style)
			assert.Equal(t, tc.divisions, k.Divisions)
			assert.Equal(t, tc.weights, k.Weights)
		})
	}
}

func TestParseKpointsShort(t *testing.T) {
	_, err := vaspio.ParseKpoints(write(t, "KPOINTS", "mesh\n0\n"))
	assert.Error(t, err)
}

func TestParsePoscar(t *testing.T) {
	p, err := vaspio.ParsePoscar(write(t, "POSCAR", vaspiotest.Poscar))
	require.NoError(t, err)
	assert.Equal(t, "NaCl", p.Comment)
	assert.Equal(t, []string{"Na", "Cl"}, p.Structure.Elements())
	assert.InDelta(t, 2*math.Pow(2.82, 3), p.Structure.Volume(), 1e-6)
	assert.Equal(t, "NaCl", p.Structure.Composition().ReducedFormula())
}

func TestParsePoscarSymbolsFromPotcar(t *testing.T) {
	dir := t.TempDir()
	// VASP 4 style: no symbol line.
	vaspiotest.WriteFile(t, filepath.Join(dir, "POSCAR"), `rocksalt
1.0
  0.00 2.82 2.82
  2.82 0.00 2.82
  2.82 2.82 0.00
1 1
Selective dynamics
Cartesian
  0.0 0.0 0.0 T T F
  1.41 1.41 1.41 F F F
`)
	vaspiotest.WriteFile(t, filepath.Join(dir, "POTCAR"), vaspiotest.Potcar)

	p, err := vaspio.ParsePoscar(filepath.Join(dir, "POSCAR"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Na", "Cl"}, p.Structure.Elements())
	assert.Equal(t, [][3]bool{{true, true, false}, {false, false, false}}, p.SelectiveDynamics)
	assert.InDelta(t, 0.25, p.Structure.Sites[1].ABC[0], 1e-9)
}

func TestParsePotcarSymbols(t *testing.T) {
	labels, fn, err := vaspio.ParsePotcarSymbols(write(t, "POTCAR.gz", vaspiotest.Potcar))
	require.NoError(t, err)
	assert.Equal(t, []string{"Na_pv", "Cl"}, labels)
	assert.Equal(t, vaspio.PotcarFunctional{Functional: "pbe", PotType: "paw"}, fn)
}

func TestParseOszicar(t *testing.T) {
	o, err := vaspio.ParseOszicar(write(t, "OSZICAR", vaspiotest.Oszicar))
	require.NoError(t, err)
	require.Len(t, o.IonicSteps, 2)
	assert.Len(t, o.IonicSteps[0].ElectronicSteps, 2)
	assert.Len(t, o.IonicSteps[1].ElectronicSteps, 1)
	assert.InDelta(t, -6.7, o.IonicSteps[0].F, 1e-9)
	require.NotNil(t, o.IonicSteps[1].Mag)
	assert.Zero(t, *o.IonicSteps[1].Mag)

	e, ok := o.FinalEnergy()
	assert.True(t, ok)
	assert.InDelta(t, -6.805, e, 1e-9)
}

func TestParseOszicarUnfinishedStep(t *testing.T) {
	content := vaspiotest.Oszicar + "DAV:   1    -0.690E+01   -0.100E+00   -0.110E+00   160   0.103E+00\n"
	o, err := vaspio.ParseOszicar(write(t, "OSZICAR", content))
	require.NoError(t, err)
	require.Len(t, o.IonicSteps, 3)
	assert.Len(t, o.IonicSteps[2].ElectronicSteps, 1)

	e, ok := o.FinalEnergy()
	assert.True(t, ok)
	assert.InDelta(t, -6.805, e, 1e-9, "the trailing partial step is ignored")
}

func TestParseOutcar(t *testing.T) {
	o, err := vaspio.ParseOutcar(write(t, "OUTCAR.gz", vaspiotest.Outcar))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{
		"cores":                     16,
		vaspio.StatTotalCPU:         10.5,
		vaspio.StatUser:             9,
		vaspio.StatSystem:           1.5,
		vaspio.StatElapsed:          12,
		"Maximum memory used (kb)":  100000,
		"Average memory used (kb)":  0,
	}, o.RunStats)
	require.NotNil(t, o.Efermi)
	assert.InDelta(t, 1.5, *o.Efermi, 1e-9)
	require.NotNil(t, o.FinalEnergy)
	assert.InDelta(t, -6.8, *o.FinalEnergy, 1e-9)
	require.NotNil(t, o.TotalMagnetization)
}

func TestParseOutcarNoStats(t *testing.T) {
	_, err := vaspio.ParseOutcar(write(t, "OUTCAR", "nothing useful\n"))
	assert.True(t, errors.Is(err, vaspio.ErrNoData))
}

func TestParseVasprun(t *testing.T) {
	v, err := vaspio.ParseVasprun(write(t, "vasprun.xml.gz", vaspiotest.Vasprun(vaspiotest.Options{Scale: 1.1})), true)
	require.NoError(t, err)

	assert.True(t, v.Completed)
	assert.Equal(t, "5.4.4.18Apr17-6-g9f103f2a35", v.Version())
	assert.Equal(t, []string{"Na", "Cl"}, v.AtomSymbols)
	assert.Equal(t, []string{"Na", "Cl"}, v.TypeSymbols)
	assert.Equal(t, []string{"Na_pv", "Cl"}, v.PotcarLabels())
	assert.Equal(t, "PAW_PBE Na_pv 19Sep2006", v.PotcarSymbols[0])

	assert.Equal(t, "accurate", v.Incar["PREC"])
	assert.Equal(t, 60, v.Parameters["NELM"])
	assert.Equal(t, false, v.Parameters["LHFCALC"])

	require.NotNil(t, v.Kpoints)
	assert.Equal(t, vaspio.KpointsMonkhorst, v.Kpoints.Style)
	assert.Equal(t, [][3]float64{{4, 4, 4}}, v.Kpoints.Divisions)

	require.Len(t, v.IonicSteps, 2)
	assert.Equal(t, 3, v.IonicSteps[0].ElectronicSteps)
	assert.Len(t, v.IonicSteps[1].Stress, 3)
	assert.InDelta(t, -6.81, v.FinalEnergy(), 1e-9)

	ratio := v.FinalStructure.Volume() / v.InitialStructure.Volume()
	assert.InDelta(t, 1.331, ratio, 1e-6)

	assert.InDelta(t, 1.5, v.Efermi, 1e-9)
	require.NotNil(t, v.DOS)
	assert.Equal(t, []float64{-5, 0, 5}, v.DOS.Energies)
	assert.Equal(t, []float64{0.1, 0.5, 0.2}, v.DOS.Densities["1"])

	assert.Equal(t, map[string]float64{"Na": 0, "Cl": 3}, v.Hubbards())
	assert.True(t, v.IsHubbard())
	assert.Equal(t, "GGA+U", v.RunType())
}

func TestParseVasprunWithoutDOS(t *testing.T) {
	v, err := vaspio.ParseVasprun(write(t, "vasprun.xml", vaspiotest.Vasprun(vaspiotest.Options{NoHubbard: true})), false)
	require.NoError(t, err)
	assert.Nil(t, v.DOS)
	assert.InDelta(t, 1.5, v.Efermi, 1e-9)
	assert.False(t, v.IsHubbard())
	assert.Empty(t, v.Hubbards())
	assert.Equal(t, "GGA", v.RunType())
}

func TestParseVasprunTruncated(t *testing.T) {
	v, err := vaspio.ParseVasprun(write(t, "vasprun.xml", vaspiotest.Vasprun(vaspiotest.Options{Truncated: true})), true)
	require.NoError(t, err)
	assert.False(t, v.Completed)
	assert.Len(t, v.IonicSteps, 1)
	assert.Nil(t, v.DOS)
	assert.InDelta(t, -6.71, v.FinalEnergy(), 1e-9)
	assert.InDelta(t, v.InitialStructure.Volume(), v.FinalStructure.Volume(), 1e-9)
}

func TestParseVasprunRejectsGarbage(t *testing.T) {
	_, err := vaspio.ParseVasprun(write(t, "vasprun.xml", "<other></other>"), false)
	assert.Error(t, err)

	_, err = vaspio.ParseVasprun(write(t, "vasprun.xml", `<?xml version="1.0"?><modeling><generator>`), false)
	assert.Error(t, err)
}

func TestBandProperties(t *testing.T) {
	v, err := vaspio.ParseVasprun(write(t, "vasprun.xml", vaspiotest.Vasprun(vaspiotest.Options{})), false)
	require.NoError(t, err)

	bp, ok := v.BandProperties()
	require.True(t, ok)
	assert.InDelta(t, 1.0, bp.VBM, 1e-9)
	assert.InDelta(t, 2.5, bp.CBM, 1e-9)
	assert.InDelta(t, 1.5, bp.Gap, 1e-9)
	assert.True(t, bp.Direct)
}

func TestBandPropertiesMetal(t *testing.T) {
	v := &vaspio.Vasprun{Eigenvalues: [][][]vaspio.Eigenvalue{{{{Energy: -1, Occupation: 1}, {Energy: 1, Occupation: 0.5}}}}}
	_, ok := v.BandProperties()
	assert.False(t, ok)
}
