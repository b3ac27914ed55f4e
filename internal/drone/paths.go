// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package drone

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Subtask names of a two-step relaxation.
const (
	TaskRelax1   = "relax1"
	TaskRelax2   = "relax2"
	TaskStandard = "standard"
)

var vasprunPattern = regexp.MustCompile(`^vasprun\.xml([\w.]*)`)

// vaspInputs must all be present, plain or as .orig, for a directory
// without output to count as a killed run.
var vaspInputs = []string{"INCAR", "POSCAR", "POTCAR", "KPOINTS"}

// vasprunFile is one vasprun.xml found for a task directory. Path is
// relative to the directory.
type vasprunFile struct {
	Task string
	Path string
}

// GetValidPaths decides which directories of a walk step hold a run.
// parent is the directory, subdirs and files its immediate children.
func GetValidPaths(parent string, subdirs, files []string) []string {
	for _, d := range subdirs {
		if d == TaskRelax1 {
			return []string{parent}
		}
	}
	if isRelaxDir(parent) {
		return nil
	}
	for _, f := range files {
		if strings.HasPrefix(f, "vasprun.xml") {
			return []string{parent}
		}
	}
	return nil
}

// isRelaxDir reports whether path is itself one step of a relaxation.
func isRelaxDir(path string) bool {
	clean := filepath.Clean(path)
	sep := string(filepath.Separator)
	return strings.HasSuffix(clean, sep+TaskRelax1) || strings.HasSuffix(clean, sep+TaskRelax2) ||
		clean == TaskRelax1 || clean == TaskRelax2
}

// ContainsVaspInput reports whether dir has INCAR, POSCAR, POTCAR and
// KPOINTS, each possibly with a .orig suffix.
func ContainsVaspInput(dir string) bool {
	for _, name := range vaspInputs {
		if !exists(filepath.Join(dir, name)) && !exists(filepath.Join(dir, name+".orig")) {
			return false
		}
	}
	return true
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// layout is how the vasprun files of a directory are arranged.
type layout int

const (
	layoutStandard layout = iota
	layoutAflow
	layoutStopped
)

func (l layout) String() string {
	switch l {
	case layoutAflow:
		return "aflow"
	case layoutStopped:
		return "stopped"
	default:
		return "standard"
	}
}

// findVaspruns classifies dir and returns its vasprun files sorted by
// subtask, so relax1 precedes relax2.
func findVaspruns(dir string, names []string) (layout, []vasprunFile, error) {
	has := make(map[string]bool, len(names))
	for _, n := range names {
		has[n] = true
	}
	byTask := map[string]string{}

	subdirRuns := func(subtask string) error {
		entries, err := os.ReadDir(filepath.Join(dir, subtask))
		if err != nil {
			return err
		}
		for _, e := range entries {
			if vasprunPattern.MatchString(e.Name()) {
				byTask[subtask] = filepath.Join(subtask, e.Name())
			}
		}
		return nil
	}

	l := layoutStandard
	switch {
	case has[TaskRelax1] && has[TaskRelax2] &&
		isDir(filepath.Join(dir, TaskRelax1)) && isDir(filepath.Join(dir, TaskRelax2)):
		l = layoutAflow
		for _, sub := range []string{TaskRelax1, TaskRelax2} {
			if err := subdirRuns(sub); err != nil {
				return l, nil, err
			}
		}
	case has["STOPCAR"]:
		l = layoutStopped
		for _, sub := range []string{TaskRelax1, TaskRelax2} {
			if has[sub] && isDir(filepath.Join(dir, sub)) {
				if err := subdirRuns(sub); err != nil {
					return l, nil, err
				}
			}
		}
	default:
		for _, n := range names {
			m := vasprunPattern.FindStringSubmatch(n)
			if m == nil {
				continue
			}
			switch ext := m[1]; {
			case strings.HasPrefix(ext, ".relax2"):
				byTask[TaskRelax2] = n
			case strings.HasPrefix(ext, ".relax1"):
				byTask[TaskRelax1] = n
			default:
				byTask[TaskStandard] = n
			}
		}
	}

	files := make([]vasprunFile, 0, len(byTask))
	for task, path := range byTask {
		files = append(files, vasprunFile{Task: task, Path: path})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Task < files[j].Task })
	return l, files, nil
}
