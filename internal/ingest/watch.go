// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/pdiddy/vaspdb/internal/drone"
)

// DefaultDebounce is how long a directory must be quiet before it is
// assimilated.
const DefaultDebounce = 2 * time.Second

// Watcher assimilates run directories under a tree as their output files
// change.
type Watcher struct {
	root     string
	a        Assimilator
	w        io.Writer
	logger   *zap.Logger
	debounce time.Duration
	fsw      *fsnotify.Watcher

	// pending maps a run directory to the time of its last event.
	pending map[string]time.Time
}

// NewWatcher registers every directory under root. Directories created
// later are added as they appear.
func NewWatcher(root string, a Assimilator, debounce time.Duration, w io.Writer, logger *zap.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	wt := &Watcher{
		root:     root,
		a:        a,
		w:        w,
		logger:   logger,
		debounce: debounce,
		fsw:      fsw,
		pending:  map[string]time.Time{},
	}
	if err := wt.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return wt, nil
}

// Close stops watching. Run closes the watcher itself when it returns.
func (wt *Watcher) Close() error {
	return wt.fsw.Close()
}

// Run processes events until ctx is done, then closes the watcher.
func (wt *Watcher) Run(ctx context.Context) error {
	defer wt.fsw.Close()
	wt.logger.Info("watching", zap.String("root", wt.root), zap.Duration("debounce", wt.debounce))

	tick := time.NewTicker(max(wt.debounce/4, time.Millisecond))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-wt.fsw.Events:
			if !ok {
				return nil
			}
			wt.handle(ev)

		case err, ok := <-wt.fsw.Errors:
			if !ok {
				return nil
			}
			wt.logger.Error("watch error", zap.Error(err))

		case now := <-tick.C:
			for dir, last := range wt.pending {
				if now.Sub(last) < wt.debounce {
					continue
				}
				delete(wt.pending, dir)
				if err := wt.assimilate(ctx, dir); err != nil {
					return err
				}
			}
		}
	}
}

func (wt *Watcher) handle(ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
		return
	}
	if ev.Op.Has(fsnotify.Create) && isDir(ev.Name) {
		if err := wt.addTree(ev.Name); err != nil {
			wt.logger.Warn("watching new directory", zap.String("dir", ev.Name), zap.Error(err))
		}
		// Files written before the watch was added raise no events.
		runs, err := CollectPaths(runDir(ev.Name))
		if err != nil {
			return
		}
		for _, dir := range runs {
			wt.pending[dir] = time.Now()
		}
		return
	}
	if !isOutputFile(filepath.Base(ev.Name)) {
		return
	}
	dir := runDir(filepath.Dir(ev.Name))
	wt.logger.Debug("output changed", zap.String("file", ev.Name), zap.String("dir", dir))
	wt.pending[dir] = time.Now()
}

func (wt *Watcher) assimilate(ctx context.Context, dir string) error {
	entries, err := readDir(dir)
	if err != nil {
		wt.logger.Warn("reading changed directory", zap.String("dir", dir), zap.Error(err))
		return nil
	}
	if len(drone.GetValidPaths(dir, entries.dirs, entries.files)) == 0 {
		return nil
	}
	out, err := wt.a.Assimilate(ctx, dir)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case err != nil:
		fmt.Fprintf(wt.w, "failed:  %s (%v)\n", dir, err)
		wt.logger.Error("assimilation failed", zap.String("dir", dir), zap.Error(err))
	default:
		writeOutcome(wt.w, dir, out)
	}
	return nil
}

func (wt *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if err := wt.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// isOutputFile reports whether name is written when a run finishes or
// is stopped.
func isOutputFile(name string) bool {
	return strings.HasPrefix(name, "vasprun.xml") ||
		strings.HasPrefix(name, "OUTCAR") ||
		name == "STOPCAR"
}

// runDir maps a relax1 or relax2 step directory to the run that owns it.
func runDir(dir string) string {
	switch filepath.Base(dir) {
	case drone.TaskRelax1, drone.TaskRelax2:
		return filepath.Dir(dir)
	}
	return dir
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
