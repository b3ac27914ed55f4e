// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package drone

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/vaspdb/internal/structure"
	"github.com/pdiddy/vaspdb/internal/vaspio"
	"github.com/pdiddy/vaspdb/pkg/types"
)

// completedAtLayout formats vasprun modification times.
const completedAtLayout = "2006-01-02 15:04:05.000000"

// volumeWarningFraction is the relative volume change that raises a
// warning in the analysis block.
const volumeWarningFraction = 0.20

const (
	functionalPBE  = "pbe"
	potTypePAW     = "paw"
	symmetrySource = "vaspdb"
)

// generateDoc builds the document of a directory with vasprun files. Any
// error means the runs could not be read and the caller falls back to a
// killed-run document.
func (d *Drone) generateDoc(dir string, files []vasprunFile) (*types.TaskDoc, error) {
	doc, err := d.newDoc()
	if err != nil {
		return nil, err
	}
	doc.DirName = absPath(dir)
	doc.SchemaVersion = types.SchemaVersion

	for _, f := range files {
		calc, err := d.processVasprun(dir, f)
		if err != nil {
			return nil, err
		}
		doc.Calculations = append(doc.Calculations, calc)
	}
	first := &doc.Calculations[0]
	last := &doc.Calculations[len(doc.Calculations)-1]

	doc.CompletedAt = last.CompletedAt
	doc.Nsites = last.Nsites
	doc.UnitCellFormula = last.UnitCellFormula
	doc.ReducedCellFormula = last.ReducedCellFormula
	doc.PrettyFormula = last.PrettyFormula
	doc.Elements = last.Elements
	doc.Nelements = last.Nelements
	doc.CIF = last.CIF
	doc.Density = last.Density
	doc.IsHubbard = last.IsHubbard
	doc.Hubbards = last.Hubbards
	doc.RunType = last.RunType

	els := append([]string(nil), last.Elements...)
	sort.Strings(els)
	doc.Chemsys = strings.Join(els, "-")
	doc.Input = &types.TaskInput{Crystal: first.Input.Crystal}
	doc.AnonymousFormula = structure.Composition(last.ReducedCellFormula).AnonymousAmounts()
	doc.Output = &types.TaskOutput{
		Crystal:            last.Output.Crystal,
		FinalEnergy:        last.Output.FinalEnergy,
		FinalEnergyPerAtom: last.Output.FinalEnergyPerAtom,
	}
	doc.Name = "aflow"
	doc.PseudoPotential = &types.PseudoPotential{
		Functional: functionalPBE,
		PotType:    potTypePAW,
		Labels:     last.Input.Potcar,
	}

	if len(files) == 2 || files[0].Task != TaskRelax1 {
		doc.State = types.StateUnsuccessful
		if last.HasVaspCompleted {
			doc.State = types.StateSuccessful
		}
	} else {
		doc.State = types.StateStopped
	}

	doc.Analysis = d.analysis(doc)

	sym, err := structure.FindSymmetry(doc.Output.Crystal, structure.DefaultSymprec)
	if err != nil {
		d.logger.Error("finding symmetry", zap.String("dir", doc.DirName), zap.Error(err))
	} else {
		doc.Spacegroup = &types.Spacegroup{
			Symbol:        sym.Symbol,
			Number:        sym.Number,
			PointGroup:    sym.PointGroup,
			Source:        symmetrySource,
			CrystalSystem: sym.CrystalSystem,
			Hall:          sym.Hall,
		}
	}
	doc.LastUpdated = time.Now().UTC()
	return doc, nil
}

// processVasprun builds the calculation record of one vasprun.xml.
func (d *Drone) processVasprun(dir string, f vasprunFile) (types.Calculation, error) {
	path := filepath.Join(dir, f.Path)
	v, err := vaspio.ParseVasprun(path, d.cfg.ParseDOS)
	if err != nil {
		return types.Calculation{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return types.Calculation{}, err
	}

	final := v.FinalStructure
	comp := final.Composition()
	nsites := final.NumSites()
	if nsites == 0 {
		return types.Calculation{}, fmt.Errorf("%s: final structure has no sites", path)
	}
	energy := v.FinalEnergy()
	bp, _ := v.BandProperties()

	calc := types.Calculation{
		DirName:            absPath(dir),
		HasVaspCompleted:   v.Completed,
		VaspVersion:        v.Version(),
		CompletedAt:        info.ModTime().Format(completedAtLayout),
		Nsites:             nsites,
		UnitCellFormula:    comp.Amounts(),
		ReducedCellFormula: comp.Reduced().Amounts(),
		PrettyFormula:      comp.ReducedFormula(),
		Elements:           comp.Elements(),
		Nelements:          len(comp.Elements()),
		IsHubbard:          v.IsHubbard(),
		Hubbards:           v.Hubbards(),
		RunType:            v.RunType(),
		Input: types.CalculationInput{
			Incar:         v.Incar,
			Parameters:    v.Parameters,
			Crystal:       v.InitialStructure,
			Kpoints:       v.Kpoints,
			Potcar:        v.PotcarLabels(),
			PotcarSymbols: v.PotcarSymbols,
		},
		Output: types.CalculationOutput{
			IonicSteps:         v.IonicSteps,
			FinalEnergy:        energy,
			FinalEnergyPerAtom: energy / float64(nsites),
			Crystal:            final,
			Efermi:             v.Efermi,
			Bandgap:            bp.Gap,
			CBM:                bp.CBM,
			VBM:                bp.VBM,
			IsGapDirect:        bp.Direct,
		},
		CIF:     structure.WriteCIF(final),
		Density: final.Density(),
		Task:    taskLabel(f.Task),
	}
	if d.cfg.ParseDOS {
		if v.DOS == nil {
			d.logger.Warn("no valid dos data, skipping dos", zap.String("dir", dir))
		} else {
			calc.DOS = v.DOS
		}
	}
	return calc, nil
}

func taskLabel(task string) types.TaskLabel {
	if task == TaskRelax1 || task == TaskRelax2 {
		return types.TaskLabel{Type: "aflow", Name: task}
	}
	return types.TaskLabel{Type: TaskStandard, Name: TaskStandard}
}

// analysis runs the basic checks on a finished document: volume change,
// coordination, band edges and oxidation states.
func (d *Drone) analysis(doc *types.TaskDoc) *types.Analysis {
	initial := doc.Input.Crystal
	final := doc.Output.Crystal
	last := doc.Calculations[len(doc.Calculations)-1].Output

	delta := final.Volume() - initial.Volume()
	pct := delta / initial.Volume()
	a := &types.Analysis{
		DeltaVolume:        delta,
		PercentDeltaVolume: pct,
		Warnings:           []string{},
		Bandgap:            last.Bandgap,
		CBM:                last.CBM,
		VBM:                last.VBM,
		IsGapDirect:        last.IsGapDirect,
	}
	if math.Abs(pct) > volumeWarningFraction {
		a.Warnings = append(a.Warnings, "Volume change > 20%")
	}

	cn := structure.CoordinationNumbers(final, structure.DefaultShellTolerance)
	a.CoordinationNumbers = make([]types.SiteCoordination, len(cn))
	for i, n := range cn {
		a.CoordinationNumbers[i] = types.SiteCoordination{Site: final.Sites[i], Coordination: n}
	}

	bv, err := structure.DecorateOxidationStates(final)
	if err != nil {
		d.logger.Error("valence cannot be determined",
			zap.String("dir", doc.DirName), zap.Error(err))
		bv = final.Copy()
	}
	a.BVStructure = bv
	return a
}
