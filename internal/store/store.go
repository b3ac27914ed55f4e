// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists task documents. Documents are deduplicated by
// dir_name and numbered from a counter on first insert. Two backends share
// the upsert flow: SQLite (the default, one file) and MongoDB with GridFS
// for density-of-states payloads.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/vaspdb/internal/vaspio"
	"github.com/pdiddy/vaspdb/pkg/types"
)

// ErrNotFound is returned when no task matches a lookup.
var ErrNotFound = errors.New("task not found")

// counterID names the task id counter.
const counterID = "taskid"

// Tx is the set of operations an upsert performs. Backends run them inside
// a transaction where they have one.
type Tx interface {
	// FindByDir returns the task id stored for dirName.
	FindByDir(ctx context.Context, dirName string) (taskID int64, found bool, err error)
	// NextTaskID returns the counter's current value and increments it.
	// The counter starts at 1.
	NextTaskID(ctx context.Context) (int64, error)
	// ReserveTaskID moves the counter past taskID so NextTaskID never
	// returns it.
	ReserveTaskID(ctx context.Context, taskID int64) error
	Insert(ctx context.Context, doc *types.TaskDoc) error
	// Update merges doc's top-level keys into the stored document.
	Update(ctx context.Context, doc *types.TaskDoc) error
	// PutDOS stores a density of states and returns its blob id.
	PutDOS(ctx context.Context, dos *vaspio.DOS) (string, error)
}

// TaskStore is a task database.
type TaskStore interface {
	// Atomic runs fn as one unit of work.
	Atomic(ctx context.Context, fn func(Tx) error) error
	Get(ctx context.Context, taskID int64) (*types.TaskDoc, error)
	GetByDir(ctx context.Context, dirName string) (*types.TaskDoc, error)
	Retrieve(ctx context.Context, opts QueryOptions) ([]*types.TaskDoc, error)
	// DOS loads a density of states stored by PutDOS.
	DOS(ctx context.Context, id string) (*vaspio.DOS, error)
	Close() error
}

// QueryOptions holds filters for task queries. Empty fields do not filter.
type QueryOptions struct {
	// Chemsys matches the dash-joined sorted element list, e.g. "Cl-Na".
	Chemsys string

	// Formula matches the reduced formula, e.g. "NaCl".
	Formula string

	State   types.TaskState
	RunType string

	// Elements requires every listed element to be present (AND).
	Elements []string

	// Limit caps the result count. Zero uses DefaultLimit.
	Limit int
}

// DefaultLimit is the result cap when QueryOptions.Limit is zero.
const DefaultLimit = 50

func (q QueryOptions) limit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

// UpsertOptions controls duplicate handling.
type UpsertOptions struct {
	// UpdateDuplicates replaces an existing document with the same
	// dir_name instead of skipping it.
	UpdateDuplicates bool
}

// Result reports what Upsert did.
type Result struct {
	TaskID int64
	Action types.UpsertAction
}

// Upsert stores doc keyed by its dir_name. A new directory gets the next
// task id unless doc already carries one. An existing directory keeps its
// task id and is updated, or skipped when duplicates are not updated.
// Density-of-states payloads move to blob storage and are replaced by
// their dos_fs_id.
func Upsert(ctx context.Context, s TaskStore, doc *types.TaskDoc, opts UpsertOptions) (Result, error) {
	if doc.DirName == "" {
		return Result{}, errors.New("task document has no dir_name")
	}
	var res Result
	err := s.Atomic(ctx, func(tx Tx) error {
		existing, found, err := tx.FindByDir(ctx, doc.DirName)
		if err != nil {
			return fmt.Errorf("looking up %s: %w", doc.DirName, err)
		}
		if found && !opts.UpdateDuplicates {
			res = Result{TaskID: existing, Action: types.ActionSkipped}
			return nil
		}

		for i := range doc.Calculations {
			calc := &doc.Calculations[i]
			if calc.DOS == nil {
				continue
			}
			id, err := tx.PutDOS(ctx, calc.DOS)
			if err != nil {
				return fmt.Errorf("storing dos: %w", err)
			}
			calc.DOSFsID = id
			calc.DOS = nil
		}
		doc.LastUpdated = time.Now().UTC()

		if found {
			doc.TaskID = existing
			if err := tx.Update(ctx, doc); err != nil {
				return fmt.Errorf("updating task %d: %w", doc.TaskID, err)
			}
			res = Result{TaskID: doc.TaskID, Action: types.ActionUpdated}
			return nil
		}

		preset := doc.TaskID != 0
		if !preset {
			if doc.TaskID, err = tx.NextTaskID(ctx); err != nil {
				return fmt.Errorf("assigning task id: %w", err)
			}
		}
		if err := tx.Insert(ctx, doc); err != nil {
			return fmt.Errorf("inserting task %d: %w", doc.TaskID, err)
		}
		if preset {
			if err := tx.ReserveTaskID(ctx, doc.TaskID); err != nil {
				return fmt.Errorf("reserving task id %d: %w", doc.TaskID, err)
			}
		}
		res = Result{TaskID: doc.TaskID, Action: types.ActionInserted}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// Open connects to the backend named in cfg.
func Open(ctx context.Context, cfg types.DBConfig) (TaskStore, error) {
	switch cfg.Backend {
	case types.BackendSQLite, "":
		return OpenSQLite(cfg.Path)
	case types.BackendMongo:
		return OpenMongo(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
