// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/vaspdb/internal/structure"
	"github.com/pdiddy/vaspdb/internal/vaspio"
)

// SchemaVersion is written into every task document built from a vasprun.
const SchemaVersion = "2.0.0"

// TaskState records how a run ended.
type TaskState string

const (
	StateSuccessful   TaskState = "successful"
	StateUnsuccessful TaskState = "unsuccessful"
	StateStopped      TaskState = "stopped"
	StateKilled       TaskState = "killed"
)

// UpsertAction is what the store did with a task document.
type UpsertAction string

const (
	ActionInserted  UpsertAction = "inserted"
	ActionUpdated   UpsertAction = "updated"
	ActionSkipped   UpsertAction = "skipped"
	ActionSimulated UpsertAction = "simulated"
)

// TaskLabel names the sub-run a calculation came from.
type TaskLabel struct {
	// Type is "aflow" for relax1/relax2 runs and "standard" otherwise.
	Type string `json:"type" yaml:"type"`
	Name string `json:"name" yaml:"name"`
}

// CalculationInput is what VASP was asked to do.
type CalculationInput struct {
	Incar      vaspio.Incar         `json:"incar"`
	Parameters vaspio.Incar         `json:"parameters,omitempty"`
	Crystal    *structure.Structure `json:"crystal"`
	Kpoints    *vaspio.Kpoints      `json:"kpoints,omitempty"`
	// Potcar holds the POTCAR labels, e.g. "Fe_pv".
	Potcar []string `json:"potcar"`
	// PotcarSymbols are the full pseudopotential titles.
	PotcarSymbols []string `json:"potcar_symbols,omitempty"`
}

// CalculationOutput is what a single VASP run produced.
type CalculationOutput struct {
	IonicSteps         []vaspio.IonicStep   `json:"ionic_steps"`
	FinalEnergy        float64              `json:"final_energy"`
	FinalEnergyPerAtom float64              `json:"final_energy_per_atom"`
	Crystal            *structure.Structure `json:"crystal"`
	Efermi             float64              `json:"efermi"`
	Bandgap            float64              `json:"bandgap"`
	CBM                float64              `json:"cbm"`
	VBM                float64              `json:"vbm"`
	IsGapDirect        bool                 `json:"is_gap_direct"`
	// Outcar is attached during post-processing.
	Outcar *vaspio.Outcar `json:"outcar,omitempty"`
}

// Calculation is the record of one vasprun.xml.
type Calculation struct {
	DirName            string             `json:"dir_name"`
	HasVaspCompleted   bool               `json:"has_vasp_completed"`
	VaspVersion        string             `json:"vasp_version,omitempty"`
	CompletedAt        string             `json:"completed_at"`
	Nsites             int                `json:"nsites"`
	UnitCellFormula    map[string]float64 `json:"unit_cell_formula"`
	ReducedCellFormula map[string]float64 `json:"reduced_cell_formula"`
	PrettyFormula      string             `json:"pretty_formula"`
	Elements           []string           `json:"elements"`
	Nelements          int                `json:"nelements"`
	IsHubbard          bool               `json:"is_hubbard"`
	Hubbards           map[string]float64 `json:"hubbards"`
	RunType            string             `json:"run_type"`
	Input              CalculationInput   `json:"input"`
	Output             CalculationOutput  `json:"output"`
	CIF                string             `json:"cif"`
	Density            float64            `json:"density"`
	Task               TaskLabel          `json:"task"`

	// DOS is present until the store moves it to blob storage and
	// records DOSFsID in its place.
	DOS     *vaspio.DOS `json:"dos,omitempty"`
	DOSFsID string      `json:"dos_fs_id,omitempty"`
}

// TaskInput is the starting crystal of the whole task.
type TaskInput struct {
	Crystal *structure.Structure `json:"crystal"`
}

// TaskOutput is the final crystal and energy of the whole task.
type TaskOutput struct {
	Crystal            *structure.Structure `json:"crystal"`
	FinalEnergy        float64              `json:"final_energy"`
	FinalEnergyPerAtom float64              `json:"final_energy_per_atom"`
}

// PseudoPotential describes the POTCARs used.
type PseudoPotential struct {
	Functional string   `json:"functional"`
	PotType    string   `json:"pot_type"`
	Labels     []string `json:"labels"`
}

// SiteCoordination pairs a site with its coordination number.
type SiteCoordination struct {
	Site         structure.Site `json:"site"`
	Coordination int            `json:"coordination"`
}

// Analysis holds the basic checks run on a finished task.
type Analysis struct {
	DeltaVolume         float64              `json:"delta_volume"`
	PercentDeltaVolume  float64              `json:"percent_delta_volume"`
	Warnings            []string             `json:"warnings"`
	CoordinationNumbers []SiteCoordination   `json:"coordination_numbers"`
	Bandgap             float64              `json:"bandgap"`
	CBM                 float64              `json:"cbm"`
	VBM                 float64              `json:"vbm"`
	IsGapDirect         bool                 `json:"is_gap_direct"`
	BVStructure         *structure.Structure `json:"bv_structure"`
}

// Spacegroup is the symmetry of the final structure.
type Spacegroup struct {
	Symbol        string `json:"symbol"`
	Number        int    `json:"number"`
	PointGroup    string `json:"point_group"`
	Source        string `json:"source"`
	CrystalSystem string `json:"crystal_system"`
	Hall          string `json:"hall"`
}

// TaskDoc is the document stored for one run directory. Fields not
// declared here, such as configured additional fields, live in Extra and
// are flattened into the top level of the JSON form.
type TaskDoc struct {
	TaskID        int64         `json:"task_id,omitempty"`
	DirName       string        `json:"dir_name"`
	SchemaVersion string        `json:"schema_version,omitempty"`
	Name          string        `json:"name,omitempty"`
	State         TaskState     `json:"state"`
	Calculations  []Calculation `json:"calculations,omitempty"`

	CompletedAt        string             `json:"completed_at,omitempty"`
	Nsites             int                `json:"nsites,omitempty"`
	UnitCellFormula    map[string]float64 `json:"unit_cell_formula,omitempty"`
	ReducedCellFormula map[string]float64 `json:"reduced_cell_formula,omitempty"`
	PrettyFormula      string             `json:"pretty_formula,omitempty"`
	AnonymousFormula   map[string]float64 `json:"anonymous_formula,omitempty"`
	Elements           []string           `json:"elements,omitempty"`
	Nelements          int                `json:"nelements,omitempty"`
	Chemsys            string             `json:"chemsys,omitempty"`
	CIF                string             `json:"cif,omitempty"`
	Density            float64            `json:"density,omitempty"`
	IsHubbard          bool               `json:"is_hubbard"`
	Hubbards           map[string]float64 `json:"hubbards,omitempty"`
	RunType            string             `json:"run_type,omitempty"`

	Input           *TaskInput       `json:"input,omitempty"`
	Output          *TaskOutput      `json:"output,omitempty"`
	PseudoPotential *PseudoPotential `json:"pseudo_potential,omitempty"`
	Analysis        *Analysis        `json:"analysis,omitempty"`
	Spacegroup      *Spacegroup      `json:"spacegroup,omitempty"`

	// Killed runs carry their raw inputs instead of calculations.
	Incar   vaspio.Incar               `json:"incar,omitempty"`
	Kpoints *vaspio.Kpoints            `json:"kpoints,omitempty"`
	Poscar  *structure.Structure       `json:"poscar,omitempty"`
	Oszicar map[string]*vaspio.Oszicar `json:"oszicar,omitempty"`

	Transformations map[string]any                `json:"transformations,omitempty"`
	IcsdID          int                           `json:"icsd_id,omitempty"`
	Tags            any                           `json:"tags,omitempty"`
	Author          any                           `json:"author,omitempty"`
	RunStats        map[string]map[string]float64 `json:"run_stats,omitempty"`
	LastUpdated     time.Time                     `json:"last_updated,omitzero"`

	Extra map[string]any `json:"-"`
}

// taskDocFields is TaskDoc without its JSON methods.
type taskDocFields TaskDoc

// knownTaskKeys lists the JSON names of the declared TaskDoc fields.
var knownTaskKeys = sync.OnceValue(func() map[string]bool {
	keys := map[string]bool{}
	t := reflect.TypeFor[taskDocFields]()
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
})

// MarshalJSON flattens Extra into the document. Declared fields win over
// Extra entries of the same name.
func (d TaskDoc) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(taskDocFields(d))
	if err != nil || len(d.Extra) == 0 {
		return data, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	for k, v := range d.Extra {
		if knownTaskKeys()[k] {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		m[k] = raw
	}
	return json.Marshal(m)
}

// UnmarshalJSON fills the declared fields and collects every other key
// into Extra.
func (d *TaskDoc) UnmarshalJSON(data []byte) error {
	var f taskDocFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for k, raw := range m {
		if knownTaskKeys()[k] {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if f.Extra == nil {
			f.Extra = map[string]any{}
		}
		f.Extra[k] = v
	}
	*d = TaskDoc(f)
	return nil
}

// Summary returns the listing form of the document.
func (d *TaskDoc) Summary() TaskSummary {
	s := TaskSummary{
		TaskID:        d.TaskID,
		DirName:       d.DirName,
		PrettyFormula: d.PrettyFormula,
		Chemsys:       d.Chemsys,
		State:         d.State,
		RunType:       d.RunType,
		LastUpdated:   d.LastUpdated,
	}
	if d.Output != nil {
		s.FinalEnergy = d.Output.FinalEnergy
		s.FinalEnergyPerAtom = d.Output.FinalEnergyPerAtom
	}
	if d.Spacegroup != nil {
		s.PointGroup = d.Spacegroup.PointGroup
		s.SpacegroupSymbol = d.Spacegroup.Symbol
	}
	return s
}

// TaskSummary is the compact row shown by listings and exports.
type TaskSummary struct {
	TaskID             int64     `json:"task_id" yaml:"task_id"`
	DirName            string    `json:"dir_name" yaml:"dir_name"`
	PrettyFormula      string    `json:"pretty_formula,omitempty" yaml:"pretty_formula,omitempty"`
	Chemsys            string    `json:"chemsys,omitempty" yaml:"chemsys,omitempty"`
	State              TaskState `json:"state" yaml:"state"`
	RunType            string    `json:"run_type,omitempty" yaml:"run_type,omitempty"`
	FinalEnergy        float64   `json:"final_energy,omitempty" yaml:"final_energy,omitempty"`
	FinalEnergyPerAtom float64   `json:"final_energy_per_atom,omitempty" yaml:"final_energy_per_atom,omitempty"`
	PointGroup         string    `json:"point_group,omitempty" yaml:"point_group,omitempty"`
	SpacegroupSymbol   string    `json:"spacegroup_symbol,omitempty" yaml:"spacegroup_symbol,omitempty"`
	LastUpdated        time.Time `json:"last_updated" yaml:"last_updated"`
}
