// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest finds run directories under a tree and assimilates them
// in parallel, once or continuously as new output appears.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/vaspdb/internal/drone"
	"github.com/pdiddy/vaspdb/pkg/types"
)

// DefaultWorkers is used when no worker count is configured.
const DefaultWorkers = 4

// Assimilator stores the task document of one directory.
type Assimilator interface {
	Assimilate(ctx context.Context, path string) (drone.Outcome, error)
}

// Summary holds the outcome of a batch run.
type Summary struct {
	Inserted  int
	Updated   int
	Skipped   int
	Simulated int
	Failed    int
}

// Total returns the number of directories processed.
func (s Summary) Total() int {
	return s.Inserted + s.Updated + s.Skipped + s.Simulated + s.Failed
}

// HasFailures reports whether any directory failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

func (s *Summary) add(a types.UpsertAction) {
	switch a {
	case types.ActionInserted:
		s.Inserted++
	case types.ActionUpdated:
		s.Updated++
	case types.ActionSkipped:
		s.Skipped++
	case types.ActionSimulated:
		s.Simulated++
	}
}

// CollectPaths walks root and returns every directory that holds a run,
// sorted. Unreadable subtrees are skipped.
func CollectPaths(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		entries, err := readDir(path)
		if err != nil {
			return fs.SkipDir
		}
		paths = append(paths, drone.GetValidPaths(path, entries.dirs, entries.files)...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

type dirEntries struct {
	dirs  []string
	files []string
}

func readDir(path string) (dirEntries, error) {
	var out dirEntries
	entries, err := os.ReadDir(path)
	if err != nil {
		return out, err
	}
	for _, e := range entries {
		if e.IsDir() {
			out.dirs = append(out.dirs, e.Name())
		} else {
			out.files = append(out.files, e.Name())
		}
	}
	return out, nil
}

// Run assimilates paths with at most workers in flight and writes one
// status line per directory to w. A failed directory is counted and does
// not stop the others. Cancelling ctx stops dispatching new directories.
func Run(ctx context.Context, a Assimilator, paths []string, workers int, w io.Writer, logger *zap.Logger) (Summary, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		mu      sync.Mutex
		summary Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, p := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := a.Assimilate(gctx, p)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			case errors.Is(err, drone.ErrNoRun):
				fmt.Fprintf(w, "empty:   %s\n", p)
			case err != nil:
				summary.Failed++
				fmt.Fprintf(w, "failed:  %s (%v)\n", p, err)
				logger.Error("assimilation failed", zap.String("dir", p), zap.Error(err))
			default:
				summary.add(out.Action)
				writeOutcome(w, p, out)
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	fmt.Fprintf(w, "\nIngest summary: %d inserted, %d updated, %d skipped, %d simulated, %d failed (total: %d)\n",
		summary.Inserted, summary.Updated, summary.Skipped, summary.Simulated, summary.Failed, summary.Total())
	return summary, err
}

// writeOutcome prints the status line of one assimilated directory.
// Simulated and skipped directories have no new task id to report.
func writeOutcome(w io.Writer, dir string, out drone.Outcome) {
	if out.Action == types.ActionSimulated || out.Action == types.ActionSkipped {
		fmt.Fprintf(w, "%-8s %s\n", string(out.Action)+":", dir)
		return
	}
	fmt.Fprintf(w, "%-8s %s (task %d)\n", string(out.Action)+":", dir, out.TaskID)
}
