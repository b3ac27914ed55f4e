// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package drone

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/vaspdb/internal/vaspio"
	"github.com/pdiddy/vaspdb/pkg/types"
)

var relaxDirPattern = regexp.MustCompile(`^relax\d`)

// processKilledRun records whatever inputs and convergence logs a run
// without usable vasprun.xml left behind. Files that fail to parse are
// logged and skipped.
func (d *Drone) processKilledRun(dir string) *types.TaskDoc {
	fullpath := absPath(dir)
	d.logger.Info("processing killed run", zap.String("dir", fullpath))

	doc := &types.TaskDoc{
		DirName: fullpath,
		State:   types.StateKilled,
		Oszicar: map[string]*vaspio.Oszicar{},
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		d.logger.Error("reading killed run", zap.String("dir", dir), zap.Error(err))
		return doc
	}

	fail := func(what string, err error) {
		d.logger.Error("unable to parse "+what+" for killed run",
			zap.String("dir", dir), zap.Error(err))
	}

	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)
		switch {
		case strings.HasPrefix(name, "INCAR"):
			incar, err := vaspio.ParseIncar(path)
			if err != nil {
				fail("INCAR", err)
				continue
			}
			doc.Incar = incar
			doc.IsHubbard, doc.RunType = vaspio.IncarHubbard(incar)
			if !doc.IsHubbard {
				doc.Hubbards = map[string]float64{}
			}

		case strings.HasPrefix(name, "KPOINTS"):
			k, err := vaspio.ParseKpoints(path)
			if err != nil {
				fail("KPOINTS", err)
				continue
			}
			doc.Kpoints = k

		case strings.HasPrefix(name, "POSCAR"):
			p, err := vaspio.ParsePoscar(path)
			if err != nil {
				fail("POSCAR", err)
				continue
			}
			comp := p.Structure.Composition()
			els := comp.Elements()
			doc.UnitCellFormula = comp.Amounts()
			doc.ReducedCellFormula = comp.Reduced().Amounts()
			doc.Elements = els
			doc.Nelements = len(els)
			doc.PrettyFormula = comp.ReducedFormula()
			doc.AnonymousFormula = comp.AnonymousAmounts()
			doc.Nsites = int(comp.NumAtoms())
			doc.Chemsys = comp.Chemsys()
			doc.Poscar = p.Structure

		case strings.HasPrefix(name, "POTCAR"):
			labels, _, err := vaspio.ParsePotcarSymbols(path)
			if err != nil {
				fail("POTCAR", err)
				continue
			}
			doc.PseudoPotential = &types.PseudoPotential{
				Functional: functionalPBE,
				PotType:    potTypePAW,
				Labels:     labels,
			}

		case strings.HasPrefix(name, "OSZICAR"):
			o, err := vaspio.ParseOszicar(path)
			if err != nil {
				fail("OSZICAR", err)
				continue
			}
			doc.Oszicar["root"] = o

		case relaxDirPattern.MatchString(name):
			sub := filepath.Join(path, "OSZICAR")
			if !exists(sub) {
				continue
			}
			o, err := vaspio.ParseOszicar(sub)
			if err != nil {
				fail("OSZICAR", err)
				continue
			}
			doc.Oszicar[name] = o
		}
	}
	return doc
}
