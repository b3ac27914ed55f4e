// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/vaspdb/pkg/types"
)

func TestParseFields(t *testing.T) {
	got, err := parseFields([]string{
		"project=salts",
		"batch=3",
		"relaxed=true",
		"tags=[a, b]",
		"note=",
		"url=http://x/y?a=b",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"project": "salts",
		"batch":   3,
		"relaxed": true,
		"tags":    []any{"a", "b"},
		"note":    "",
		"url":     "http://x/y?a=b",
	}, got)

	for _, bad := range []string{"noequals", "=value"} {
		_, err := parseFields([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestLoadAdditionalFieldsKeepsKeyCase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaspdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`drone:
  additional_fields:
    ICSD_source: inorganic
    Author:
      Name: A. Researcher
`), 0o644))

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	assert.Equal(t, map[string]any{
		"ICSD_source": "inorganic",
		"Author":      map[string]any{"Name": "A. Researcher"},
	}, loadConfig().Drone.AdditionalFields)
}

func TestLoadAdditionalFieldsWithoutConfigFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("drone.additional_fields", map[string]any{"project": "salts"})

	assert.Equal(t, map[string]any{"project": "salts"}, loadAdditionalFields())
}

func TestReadAdditionalFieldsErrors(t *testing.T) {
	_, err := readAdditionalFields(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("drone: [unclosed"), 0o644))
	_, err = readAdditionalFields(path)
	assert.Error(t, err)
}

func TestFormatTaskList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, formatTaskList(&buf, nil))
	assert.Equal(t, "No tasks found.\n", buf.String())

	buf.Reset()
	require.NoError(t, formatTaskList(&buf, []types.TaskSummary{{
		TaskID:             12,
		DirName:            "host:/runs/nacl",
		PrettyFormula:      "NaCl",
		Chemsys:            "Cl-Na",
		State:              types.StateSuccessful,
		RunType:            "GGA+U",
		FinalEnergyPerAtom: -3.405,
	}}))
	out := buf.String()
	assert.Contains(t, out, "host:/runs/nacl")
	assert.Contains(t, out, "-3.405000")
	assert.Contains(t, out, "1 tasks")
	assert.Contains(t, out, "  -  ")
	assert.NotContains(t, out, "point group only")
}

func TestFormatTaskListSymmetry(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, formatTaskList(&buf, []types.TaskSummary{
		{TaskID: 1, DirName: "h:/po", PointGroup: "m-3m"},
		{TaskID: 2, DirName: "h:/tri", PointGroup: "-1", SpacegroupSymbol: "P-1"},
	}))
	out := buf.String()
	assert.Contains(t, out, "pg m-3m")
	assert.Contains(t, out, "P-1")
	assert.Contains(t, out, "pg: point group only. Space-group symbols are assigned to triclinic cells.")
}

func TestSymmetryLabel(t *testing.T) {
	tests := []struct {
		name string
		in   types.TaskSummary
		want string
	}{
		{"space group", types.TaskSummary{PointGroup: "1", SpacegroupSymbol: "P1"}, "P1"},
		{"point group only", types.TaskSummary{PointGroup: "4/mmm"}, "pg 4/mmm"},
		{"none", types.TaskSummary{}, "-"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, symmetryLabel(tc.in))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "NaCl", truncate("NaCl", 12))
	assert.Equal(t, "Ba2Mg...", truncate("Ba2MgSi2O7Cl", 8))
}
