// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package drone turns VASP run directories into task documents and hands
// them to a task store.
//
// A directory holds one run. Directories named relax1 and relax2, or
// output files with .relax1 and .relax2 extensions, are the two steps of
// a double relaxation and become one document with two calculations.
// Directories with inputs but no vasprun.xml are recorded as killed runs.
package drone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pdiddy/vaspdb/internal/store"
	"github.com/pdiddy/vaspdb/pkg/types"
)

// ErrNoRun is returned for directories that hold nothing to assimilate.
var ErrNoRun = errors.New("no vasp run")

// Name identifies documents built by this drone.
const Name = "VaspToDbTaskDrone"

// Drone assimilates run directories.
type Drone struct {
	cfg      types.DroneConfig
	store    store.TaskStore
	logger   *zap.Logger
	hostname string
}

// Outcome is the result of assimilating one directory.
type Outcome struct {
	TaskID int64
	Action types.UpsertAction
	// Doc is set in simulate mode, where nothing is stored.
	Doc *types.TaskDoc
}

// Descriptor reports the drone's identity and settings.
type Descriptor struct {
	Name     string         `json:"name" yaml:"name"`
	Version  string         `json:"version" yaml:"version"`
	InitArgs map[string]any `json:"init_args" yaml:"init_args"`
}

// New returns a drone writing to s. s may be nil in simulate mode.
func New(cfg types.DroneConfig, s store.TaskStore, logger *zap.Logger) (*Drone, error) {
	if s == nil && !cfg.Simulate {
		return nil, errors.New("drone needs a task store unless simulating")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	host := cfg.Hostname
	if host == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolving hostname: %w", err)
		}
		host = h
	}
	return &Drone{cfg: cfg, store: s, logger: logger, hostname: host}, nil
}

// Descriptor returns the drone's name, schema version and init args.
func (d *Drone) Descriptor() Descriptor {
	fields := d.cfg.AdditionalFields
	if fields == nil {
		fields = map[string]any{}
	}
	return Descriptor{
		Name:     Name,
		Version:  types.SchemaVersion,
		InitArgs: map[string]any{"additional_fields": fields},
	}
}

// Assimilate builds the task document for path and stores it. In simulate
// mode the document is returned with task id 0 instead.
func (d *Drone) Assimilate(ctx context.Context, path string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	doc, err := d.GetTaskDoc(path)
	if err != nil {
		return Outcome{}, err
	}

	if d.cfg.Simulate {
		doc.TaskID = 0
		d.logger.Info("simulated insert",
			zap.String("dir", doc.DirName),
			zap.Int64("task_id", doc.TaskID))
		return Outcome{Action: types.ActionSimulated, Doc: doc}, nil
	}

	res, err := store.Upsert(ctx, d.store, doc, store.UpsertOptions{UpdateDuplicates: d.cfg.UpdateDuplicates})
	if err != nil {
		return Outcome{}, fmt.Errorf("storing %s: %w", doc.DirName, err)
	}
	switch res.Action {
	case types.ActionSkipped:
		d.logger.Info("skipping duplicate", zap.String("dir", doc.DirName))
	default:
		d.logger.Info(string(res.Action),
			zap.String("dir", doc.DirName),
			zap.Int64("task_id", res.TaskID))
	}
	return Outcome{TaskID: res.TaskID, Action: res.Action}, nil
}

// GetTaskDoc builds the complete, post-processed document for path.
func (d *Drone) GetTaskDoc(path string) (*types.TaskDoc, error) {
	d.logger.Debug("getting task doc", zap.String("dir", path))

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}

	l, vaspruns, err := findVaspruns(path, names)
	if err != nil {
		return nil, fmt.Errorf("classifying %s: %w", path, err)
	}
	if l == layoutStopped {
		d.logger.Info("directory contains stopped run", zap.String("dir", path))
	}

	var doc *types.TaskDoc
	switch {
	case len(vaspruns) > 0:
		doc, err = d.generateDoc(path, vaspruns)
		if err != nil {
			d.logger.Error("building task doc", zap.String("dir", path), zap.Error(err))
			doc = d.processKilledRun(path)
		}
	case !isRelaxDir(path) && ContainsVaspInput(path):
		d.logger.Warn("directory contains killed run", zap.String("dir", path))
		doc = d.processKilledRun(path)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrNoRun)
	}
	d.postProcess(path, doc)
	return doc, nil
}

// newDoc starts a document from the configured additional fields. The
// fields go through JSON so no two documents share nested values.
func (d *Drone) newDoc() (*types.TaskDoc, error) {
	doc := &types.TaskDoc{}
	if len(d.cfg.AdditionalFields) == 0 {
		return doc, nil
	}
	data, err := json.Marshal(d.cfg.AdditionalFields)
	if err != nil {
		return nil, fmt.Errorf("encoding additional fields: %w", err)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("applying additional fields: %w", err)
	}
	return doc, nil
}

// uri prefixes an absolute path with the host that holds it.
func (d *Drone) uri(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return d.hostname + ":" + abs
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
