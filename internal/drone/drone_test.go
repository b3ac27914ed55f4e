// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package drone

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/vaspdb/internal/store"
	"github.com/pdiddy/vaspdb/internal/vaspio"
	"github.com/pdiddy/vaspdb/internal/vaspio/vaspiotest"
	"github.com/pdiddy/vaspdb/pkg/types"
)

const testHost = "testhost"

// --- test helpers ---

func testDrone(t *testing.T, cfg types.DroneConfig, s store.TaskStore) *Drone {
	t.Helper()
	cfg.Hostname = testHost
	d, err := New(cfg, s, zaptest.NewLogger(t))
	require.NoError(t, err)
	return d
}

func simDrone(t *testing.T) *Drone {
	return testDrone(t, types.DroneConfig{Simulate: true}, nil)
}

func testStore(t *testing.T) store.TaskStore {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "tasks.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mkdir(t *testing.T, parts ...string) string {
	t.Helper()
	dir := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

// --- path classification ---

func TestGetValidPaths(t *testing.T) {
	tests := []struct {
		name    string
		parent  string
		subdirs []string
		files   []string
		want    []string
	}{
		{"relax1 subdir", "/runs/a", []string{"relax1", "relax2"}, nil, []string{"/runs/a"}},
		{"vasprun file", "/runs/a", nil, []string{"INCAR", "vasprun.xml.gz"}, []string{"/runs/a"}},
		{"inside relax1", "/runs/a/relax1", nil, []string{"vasprun.xml"}, nil},
		{"inside relax2", "/runs/a/relax2", nil, []string{"vasprun.xml"}, nil},
		{"no output", "/runs/a", []string{"other"}, []string{"INCAR", "POSCAR"}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, GetValidPaths(tc.parent, tc.subdirs, tc.files))
		})
	}
}

func TestContainsVaspInput(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, ContainsVaspInput(dir))

	vaspiotest.WriteFile(t, filepath.Join(dir, "INCAR"), vaspiotest.Incar)
	vaspiotest.WriteFile(t, filepath.Join(dir, "POSCAR.orig"), vaspiotest.Poscar)
	vaspiotest.WriteFile(t, filepath.Join(dir, "POTCAR"), vaspiotest.Potcar)
	assert.False(t, ContainsVaspInput(dir))

	vaspiotest.WriteFile(t, filepath.Join(dir, "KPOINTS.orig"), vaspiotest.Kpoints)
	assert.True(t, ContainsVaspInput(dir))
}

func TestFindVaspruns(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, dir string)
		layout layout
		want   []vasprunFile
	}{
		{
			name: "standard",
			setup: func(t *testing.T, dir string) {
				vaspiotest.WriteFile(t, filepath.Join(dir, "vasprun.xml"), "x")
			},
			layout: layoutStandard,
			want:   []vasprunFile{{TaskStandard, "vasprun.xml"}},
		},
		{
			name: "suffixed double relaxation",
			setup: func(t *testing.T, dir string) {
				vaspiotest.WriteFile(t, filepath.Join(dir, "vasprun.xml.relax2.gz"), "x")
				vaspiotest.WriteFile(t, filepath.Join(dir, "vasprun.xml.relax1.gz"), "x")
			},
			layout: layoutStandard,
			want: []vasprunFile{
				{TaskRelax1, "vasprun.xml.relax1.gz"},
				{TaskRelax2, "vasprun.xml.relax2.gz"},
			},
		},
		{
			name: "aflow subdirectories",
			setup: func(t *testing.T, dir string) {
				vaspiotest.WriteFile(t, filepath.Join(dir, "relax1", "vasprun.xml"), "x")
				vaspiotest.WriteFile(t, filepath.Join(dir, "relax2", "vasprun.xml.bz2"), "x")
			},
			layout: layoutAflow,
			want: []vasprunFile{
				{TaskRelax1, filepath.Join("relax1", "vasprun.xml")},
				{TaskRelax2, filepath.Join("relax2", "vasprun.xml.bz2")},
			},
		},
		{
			name: "stopped",
			setup: func(t *testing.T, dir string) {
				vaspiotest.WriteFile(t, filepath.Join(dir, "STOPCAR"), "LSTOP = .TRUE.")
				vaspiotest.WriteFile(t, filepath.Join(dir, "relax1", "vasprun.xml"), "x")
				vaspiotest.WriteFile(t, filepath.Join(dir, "vasprun.xml"), "ignored")
			},
			layout: layoutStopped,
			want:   []vasprunFile{{TaskRelax1, filepath.Join("relax1", "vasprun.xml")}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			tc.setup(t, dir)
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			l, files, err := findVaspruns(dir, names)
			require.NoError(t, err)
			assert.Equal(t, tc.layout, l)
			if diff := cmp.Diff(tc.want, files); diff != "" {
				t.Errorf("vasprun files mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// --- task documents ---

func TestGetTaskDocStandardRun(t *testing.T) {
	dir := t.TempDir()
	vaspiotest.WriteStandardRun(t, dir, vaspiotest.Options{Scale: 1.1})

	doc, err := simDrone(t).GetTaskDoc(dir)
	require.NoError(t, err)

	assert.Equal(t, testHost+":"+dir, doc.DirName)
	assert.Equal(t, types.SchemaVersion, doc.SchemaVersion)
	assert.Equal(t, "aflow", doc.Name)
	assert.Equal(t, types.StateSuccessful, doc.State)
	require.Len(t, doc.Calculations, 1)

	calc := doc.Calculations[0]
	assert.Equal(t, types.TaskLabel{Type: "standard", Name: "standard"}, calc.Task)
	assert.True(t, calc.HasVaspCompleted)
	assert.Equal(t, dir, calc.DirName)
	assert.NotEmpty(t, calc.CompletedAt)
	assert.Contains(t, calc.CIF, "data_NaCl")
	require.NotNil(t, calc.Output.Outcar, "OUTCAR attaches to the only calculation")

	assert.Equal(t, "NaCl", doc.PrettyFormula)
	assert.Equal(t, "Cl-Na", doc.Chemsys)
	assert.Equal(t, 2, doc.Nsites)
	assert.Equal(t, map[string]float64{"A": 1, "B": 1}, doc.AnonymousFormula)
	assert.Equal(t, "GGA+U", doc.RunType)
	assert.True(t, doc.IsHubbard)
	assert.Equal(t, &types.PseudoPotential{Functional: "pbe", PotType: "paw", Labels: []string{"Na_pv", "Cl"}}, doc.PseudoPotential)
	assert.InDelta(t, -6.81, doc.Output.FinalEnergy, 1e-9)
	assert.InDelta(t, -3.405, doc.Output.FinalEnergyPerAtom, 1e-9)

	require.NotNil(t, doc.Analysis)
	assert.Equal(t, []string{"Volume change > 20%"}, doc.Analysis.Warnings)
	assert.InDelta(t, 0.331, doc.Analysis.PercentDeltaVolume, 1e-6)
	require.Len(t, doc.Analysis.CoordinationNumbers, 2)
	assert.Equal(t, 6, doc.Analysis.CoordinationNumbers[0].Coordination)
	assert.InDelta(t, 1.5, doc.Analysis.Bandgap, 1e-9)
	assert.True(t, doc.Analysis.IsGapDirect)
	require.NotNil(t, doc.Analysis.BVStructure)
	require.NotNil(t, doc.Analysis.BVStructure.Sites[0].Species[0].OxidationState)
	assert.Equal(t, 1.0, *doc.Analysis.BVStructure.Sites[0].Species[0].OxidationState)

	require.NotNil(t, doc.Spacegroup)
	assert.Equal(t, "vaspdb", doc.Spacegroup.Source)

	assert.Contains(t, doc.RunStats, "relax1")
	assert.InDelta(t, 10.5, doc.RunStats["overall"][vaspio.StatTotalCPU], 1e-9)
	assert.False(t, doc.LastUpdated.IsZero())
}

func TestGetTaskDocDoubleRelaxation(t *testing.T) {
	dir := t.TempDir()
	vaspiotest.WriteDoubleRelaxation(t, dir, vaspiotest.Options{})

	doc, err := simDrone(t).GetTaskDoc(dir)
	require.NoError(t, err)

	require.Len(t, doc.Calculations, 2)
	assert.Equal(t, TaskRelax1, doc.Calculations[0].Task.Name)
	assert.Equal(t, TaskRelax2, doc.Calculations[1].Task.Name)
	assert.Equal(t, "aflow", doc.Calculations[1].Task.Type)
	assert.Equal(t, types.StateSuccessful, doc.State)
	assert.Empty(t, doc.Analysis.Warnings)

	assert.NotNil(t, doc.Calculations[0].Output.Outcar)
	assert.NotNil(t, doc.Calculations[1].Output.Outcar)
	assert.InDelta(t, 21.0, doc.RunStats["overall"][vaspio.StatTotalCPU], 1e-9)
	assert.InDelta(t, 24.0, doc.RunStats["overall"][vaspio.StatElapsed], 1e-9)
	assert.InDelta(t, 12.0, doc.RunStats["relax2"][vaspio.StatElapsed], 1e-9)
}

func TestGetTaskDocAflowSubdirectories(t *testing.T) {
	dir := t.TempDir()
	for _, sub := range []string{"relax1", "relax2"} {
		vaspiotest.WriteStandardRun(t, mkdir(t, dir, sub), vaspiotest.Options{})
	}
	doc, err := simDrone(t).GetTaskDoc(dir)
	require.NoError(t, err)
	require.Len(t, doc.Calculations, 2)
	assert.Equal(t, dir, doc.Calculations[0].DirName)
	assert.Equal(t, TaskRelax2, doc.Calculations[1].Task.Name)
	assert.Equal(t, types.StateSuccessful, doc.State)
	assert.Equal(t, map[string]float64{
		vaspio.StatTotalCPU: 0, vaspio.StatUser: 0, vaspio.StatSystem: 0, vaspio.StatElapsed: 0,
	}, doc.RunStats["overall"], "OUTCARs inside the subdirectories are not read")
}

func TestGetTaskDocStoppedRun(t *testing.T) {
	dir := t.TempDir()
	vaspiotest.WriteFile(t, filepath.Join(dir, "STOPCAR"), "LSTOP = .TRUE.\n")
	vaspiotest.WriteStandardRun(t, mkdir(t, dir, "relax1"), vaspiotest.Options{})

	doc, err := simDrone(t).GetTaskDoc(dir)
	require.NoError(t, err)
	require.Len(t, doc.Calculations, 1)
	assert.Equal(t, types.StateStopped, doc.State)
}

func TestGetTaskDocUnfinishedRun(t *testing.T) {
	dir := t.TempDir()
	vaspiotest.WriteStandardRun(t, dir, vaspiotest.Options{Truncated: true})

	doc, err := simDrone(t).GetTaskDoc(dir)
	require.NoError(t, err)
	assert.Equal(t, types.StateUnsuccessful, doc.State)
	assert.False(t, doc.Calculations[0].HasVaspCompleted)
}

func TestGetTaskDocKilledRun(t *testing.T) {
	dir := t.TempDir()
	vaspiotest.WriteInputs(t, dir, "")
	vaspiotest.WriteFile(t, filepath.Join(dir, "OSZICAR"), vaspiotest.Oszicar)
	vaspiotest.WriteFile(t, filepath.Join(dir, "relax1", "OSZICAR"), vaspiotest.Oszicar)

	doc, err := simDrone(t).GetTaskDoc(dir)
	require.NoError(t, err)

	assert.Equal(t, types.StateKilled, doc.State)
	assert.Empty(t, doc.Calculations)
	assert.Equal(t, testHost+":"+dir, doc.DirName)
	assert.Equal(t, "NaCl", doc.PrettyFormula)
	assert.Equal(t, "Cl-Na", doc.Chemsys)
	assert.Equal(t, 2, doc.Nsites)
	assert.True(t, doc.IsHubbard)
	assert.Equal(t, "GGA+U", doc.RunType)
	assert.Equal(t, []string{"Na_pv", "Cl"}, doc.PseudoPotential.Labels)
	require.NotNil(t, doc.Kpoints)
	assert.Equal(t, vaspio.KpointsMonkhorst, doc.Kpoints.Style)
	assert.Contains(t, doc.Oszicar, "root")
	assert.Contains(t, doc.Oszicar, "relax1")
}

func TestGetTaskDocCorruptVasprunFallsBackToKilledRun(t *testing.T) {
	dir := t.TempDir()
	vaspiotest.WriteInputs(t, dir, "")
	vaspiotest.WriteFile(t, filepath.Join(dir, "vasprun.xml"), "<modeling><generator>")
	vaspiotest.WriteFile(t, filepath.Join(dir, "OUTCAR"), vaspiotest.Outcar)

	doc, err := simDrone(t).GetTaskDoc(dir)
	require.NoError(t, err)
	assert.Equal(t, types.StateKilled, doc.State)
	assert.Contains(t, doc.RunStats, "relax1", "run stats survive without calculations")
}

func TestGetTaskDocNoRun(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{"empty", func(t *testing.T) string { return t.TempDir() }},
		{"relax dir with inputs", func(t *testing.T) string {
			dir := mkdir(t, t.TempDir(), "relax1")
			vaspiotest.WriteInputs(t, dir, "")
			return dir
		}},
		{"missing", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope") }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := simDrone(t).GetTaskDoc(tc.setup(t))
			assert.Error(t, err)
		})
	}

	_, err := simDrone(t).GetTaskDoc(t.TempDir())
	assert.True(t, errors.Is(err, ErrNoRun))
}

func TestPostProcessTransformations(t *testing.T) {
	dir := t.TempDir()
	vaspiotest.WriteStandardRun(t, dir, vaspiotest.Options{})
	vaspiotest.WriteFile(t, filepath.Join(dir, "transformations.json.gz"), `{
		"history": [{"source": "98765-ICSD", "@class": "Cif"}],
		"other_parameters": {"tags": ["battery", "oxide"], "author": "Jane Doe <jane@example.com>"}
	}`)

	doc, err := simDrone(t).GetTaskDoc(dir)
	require.NoError(t, err)
	assert.Equal(t, 98765, doc.IcsdID)
	assert.Equal(t, []any{"battery", "oxide"}, doc.Tags)
	assert.Equal(t, "Jane Doe <jane@example.com>", doc.Author)
	assert.NotContains(t, doc.Transformations, "other_parameters")
	assert.Contains(t, doc.Transformations, "history")
}

func TestPostProcessKeepsOtherParameters(t *testing.T) {
	dir := t.TempDir()
	vaspiotest.WriteStandardRun(t, dir, vaspiotest.Options{})
	vaspiotest.WriteFile(t, filepath.Join(dir, "transformations.json"),
		`{"history": [{"source": "user"}], "other_parameters": {"tags": [], "note": "keep"}}`)

	doc, err := simDrone(t).GetTaskDoc(dir)
	require.NoError(t, err)
	assert.Zero(t, doc.IcsdID)
	assert.Nil(t, doc.Tags)
	assert.Equal(t, map[string]any{"note": "keep"}, doc.Transformations["other_parameters"])
}

func TestOverallRunStatsMissingKey(t *testing.T) {
	_, err := overallRunStats(map[string]map[string]float64{"relax1": {vaspio.StatUser: 1}})
	assert.Error(t, err)
}

func TestAdditionalFieldsAreCopiedPerDocument(t *testing.T) {
	fields := map[string]any{
		"project": map[string]any{"name": "salts"},
		"author":  "Lab",
	}
	d := testDrone(t, types.DroneConfig{Simulate: true, AdditionalFields: fields}, nil)

	dir := t.TempDir()
	vaspiotest.WriteStandardRun(t, dir, vaspiotest.Options{})
	first, err := d.GetTaskDoc(dir)
	require.NoError(t, err)
	second, err := d.GetTaskDoc(dir)
	require.NoError(t, err)

	assert.Equal(t, "Lab", first.Author)
	first.Extra["project"].(map[string]any)["name"] = "changed"
	assert.Equal(t, "salts", second.Extra["project"].(map[string]any)["name"])
	assert.Equal(t, "salts", fields["project"].(map[string]any)["name"])
}

// --- assimilation ---

func TestAssimilateSimulate(t *testing.T) {
	dir := t.TempDir()
	vaspiotest.WriteStandardRun(t, dir, vaspiotest.Options{})

	out, err := simDrone(t).Assimilate(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, types.ActionSimulated, out.Action)
	require.NotNil(t, out.Doc)
	assert.Zero(t, out.Doc.TaskID)
}

func TestAssimilateStoresAndDeduplicates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	a, b := t.TempDir(), t.TempDir()
	vaspiotest.WriteStandardRun(t, a, vaspiotest.Options{})
	vaspiotest.WriteStandardRun(t, b, vaspiotest.Options{})

	d := testDrone(t, types.DroneConfig{UpdateDuplicates: true, ParseDOS: true}, s)
	out, err := d.Assimilate(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, Outcome{TaskID: 1, Action: types.ActionInserted}, out)

	out, err = d.Assimilate(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.TaskID)

	out, err = d.Assimilate(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, Outcome{TaskID: 1, Action: types.ActionUpdated}, out)

	skip := testDrone(t, types.DroneConfig{}, s)
	out, err = skip.Assimilate(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, Outcome{TaskID: 2, Action: types.ActionSkipped}, out)

	doc, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, testHost+":"+a, doc.DirName)
	require.Len(t, doc.Calculations, 1)
	require.NotEmpty(t, doc.Calculations[0].DOSFsID)
	dos, err := s.DOS(ctx, doc.Calculations[0].DOSFsID)
	require.NoError(t, err)
	assert.Equal(t, []float64{-5, 0, 5}, dos.Energies)
}

func TestAssimilateNoRun(t *testing.T) {
	_, err := simDrone(t).Assimilate(context.Background(), t.TempDir())
	assert.True(t, errors.Is(err, ErrNoRun))
}

func TestAssimilateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := simDrone(t).Assimilate(ctx, t.TempDir())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(types.DroneConfig{}, nil, nil)
	assert.Error(t, err)
}

func TestDescriptor(t *testing.T) {
	d := testDrone(t, types.DroneConfig{Simulate: true, AdditionalFields: map[string]any{"project": "x"}}, nil)
	assert.Equal(t, Descriptor{
		Name:     Name,
		Version:  "2.0.0",
		InitArgs: map[string]any{"additional_fields": map[string]any{"project": "x"}},
	}, d.Descriptor())
}
