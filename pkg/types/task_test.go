// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskDocExtraFlattened(t *testing.T) {
	doc := TaskDoc{
		TaskID:  7,
		DirName: "host:/runs/a",
		State:   StateSuccessful,
		Extra: map[string]any{
			"project":  "battery",
			"dir_name": "ignored",
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "battery", m["project"])
	assert.Equal(t, "host:/runs/a", m["dir_name"], "declared fields win")
	assert.EqualValues(t, 7, m["task_id"])
	assert.NotContains(t, m, "last_updated", "zero time is omitted")
	assert.NotContains(t, m, "Extra")
}

func TestTaskDocRoundTripKeepsUnknownKeys(t *testing.T) {
	in := `{"task_id": 3, "dir_name": "h:/x", "state": "killed", "project": "battery", "nested": {"a": 1}}`
	var doc TaskDoc
	require.NoError(t, json.Unmarshal([]byte(in), &doc))

	assert.Equal(t, int64(3), doc.TaskID)
	assert.Equal(t, StateKilled, doc.State)
	assert.Equal(t, map[string]any{
		"project": "battery",
		"nested":  map[string]any{"a": float64(1)},
	}, doc.Extra)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"task_id": 3, "dir_name": "h:/x", "state": "killed", "is_hubbard": false, "project": "battery", "nested": {"a": 1}}`, string(out))
}

func TestTaskDocSummary(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := &TaskDoc{
		TaskID:        1,
		DirName:       "h:/runs/nacl",
		State:         StateSuccessful,
		PrettyFormula: "NaCl",
		Chemsys:       "Cl-Na",
		RunType:       "GGA",
		Output:        &TaskOutput{FinalEnergy: -6.8, FinalEnergyPerAtom: -3.4},
		Spacegroup:    &Spacegroup{PointGroup: "m-3m"},
		LastUpdated:   now,
	}
	assert.Equal(t, TaskSummary{
		TaskID:             1,
		DirName:            "h:/runs/nacl",
		PrettyFormula:      "NaCl",
		Chemsys:            "Cl-Na",
		State:              StateSuccessful,
		RunType:            "GGA",
		FinalEnergy:        -6.8,
		FinalEnergyPerAtom: -3.4,
		PointGroup:         "m-3m",
		LastUpdated:        now,
	}, doc.Summary())
}
