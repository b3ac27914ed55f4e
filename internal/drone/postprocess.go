// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package drone

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/vaspdb/internal/vaspio"
	"github.com/pdiddy/vaspdb/pkg/types"
)

var icsdSource = regexp.MustCompile(`^(\d+)-ICSD`)

// postProcess adds the transformation history, OUTCAR run statistics and
// the host-qualified dir_name.
func (d *Drone) postProcess(dir string, doc *types.TaskDoc) {
	fullpath := absPath(dir)
	d.logger.Debug("post-processing", zap.String("dir", fullpath))

	transformations := map[string]any{}
	matches, _ := filepath.Glob(filepath.Join(fullpath, "transformations.json*"))
	if len(matches) > 0 {
		t, err := readTransformations(matches[0])
		if err != nil {
			d.logger.Error("reading transformations", zap.String("file", matches[0]), zap.Error(err))
		} else {
			transformations = t
			if id, ok := icsdID(t); ok {
				doc.IcsdID = id
			}
		}
	} else {
		d.logger.Warn("transformations file does not exist", zap.String("dir", fullpath))
	}

	var tags any
	if other, ok := transformations["other_parameters"].(map[string]any); ok && len(other) > 0 {
		// Tags and author describe this run only; later structures derived
		// from the transformations must not inherit them.
		tags = other["tags"]
		author := other["author"]
		delete(other, "tags")
		delete(other, "author")
		if truthy(author) {
			doc.Author = author
		}
		if len(other) == 0 {
			delete(transformations, "other_parameters")
		}
	}
	doc.Transformations = transformations

	runStats := map[string]map[string]float64{}
	outcars, _ := filepath.Glob(filepath.Join(fullpath, "OUTCAR*"))
	for _, f := range outcars {
		o, err := vaspio.ParseOutcar(f)
		if err != nil {
			d.logger.Error("parsing OUTCAR", zap.String("file", f), zap.Error(err))
			continue
		}
		i, task := 0, TaskRelax1
		if strings.Contains(filepath.Base(f), TaskRelax2) {
			i, task = 1, TaskRelax2
		}
		if i < len(doc.Calculations) {
			doc.Calculations[i].Output.Outcar = o
		} else {
			d.logger.Debug("no calculation for OUTCAR", zap.String("file", f))
		}
		runStats[task] = o.RunStats
	}
	if overall, err := overallRunStats(runStats); err != nil {
		d.logger.Error("bad run stats", zap.String("dir", fullpath), zap.Error(err))
	} else {
		runStats["overall"] = overall
	}
	doc.RunStats = runStats

	doc.DirName = d.uri(fullpath)
	if truthy(tags) {
		doc.Tags = tags
	}
	d.logger.Debug("post-processed", zap.String("dir", fullpath))
}

func readTransformations(path string) (map[string]any, error) {
	rc, err := vaspio.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var t map[string]any
	if err := json.NewDecoder(rc).Decode(&t); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if t == nil {
		t = map[string]any{}
	}
	return t, nil
}

// icsdID reads the ICSD id from the source of the first history entry,
// e.g. "12345-ICSD".
func icsdID(t map[string]any) (int, bool) {
	history, ok := t["history"].([]any)
	if !ok || len(history) == 0 {
		return 0, false
	}
	first, ok := history[0].(map[string]any)
	if !ok {
		return 0, false
	}
	source, ok := first["source"].(string)
	if !ok {
		return 0, false
	}
	m := icsdSource.FindStringSubmatch(source)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// overallRunStats sums the timing statistics of every sub-run. Each sub-run
// must report all of them.
func overallRunStats(runStats map[string]map[string]float64) (map[string]float64, error) {
	overall := make(map[string]float64, len(vaspio.TimeStats))
	for _, key := range vaspio.TimeStats {
		var sum float64
		for task, stats := range runStats {
			v, ok := stats[key]
			if !ok {
				return nil, fmt.Errorf("%s: missing %q", task, key)
			}
			sum += v
		}
		overall[key] = sum
	}
	return overall, nil
}

// truthy mirrors "non-empty" for decoded JSON values.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	case bool:
		return x
	case float64:
		return x != 0
	}
	return true
}
