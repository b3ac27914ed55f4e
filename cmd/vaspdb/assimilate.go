// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/vaspdb/internal/drone"
	"github.com/pdiddy/vaspdb/internal/ingest"
	"github.com/pdiddy/vaspdb/internal/store"
	"github.com/pdiddy/vaspdb/pkg/types"
)

var assimilateCmd = &cobra.Command{
	Use:   "assimilate [roots...]",
	Short: "Insert every VASP run found under the given directories",
	Long: `Assimilate walks each root for run directories (a vasprun.xml* file or
relax1/relax2 subdirectories), builds a task document per run and upserts
it into the task store. Runs already in the store are updated in place and
keep their task id unless --no-update-duplicates is given.

With --simulate nothing is written and every document gets task id 0.`,
	RunE: runAssimilate,
}

func init() {
	addDroneFlags(assimilateCmd)
	assimilateCmd.Flags().Int("workers", 0, "directories processed concurrently (default from config, 4)")

	rootCmd.AddCommand(assimilateCmd)
}

// addDroneFlags registers the flags that shape task documents.
func addDroneFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("parse-dos", false, "store the total density of states")
	cmd.Flags().Bool("simulate", false, "build documents without writing to the store")
	cmd.Flags().Bool("no-update-duplicates", false, "skip runs whose directory is already stored")
	cmd.Flags().StringArray("field", nil, "additional document field as key=value (repeatable)")
}

func runAssimilate(cmd *cobra.Command, args []string) error {
	cfg, err := droneConfigFromFlags(cmd)
	if err != nil {
		return err
	}
	if w, _ := cmd.Flags().GetInt("workers"); w > 0 {
		cfg.Ingest.Workers = w
	}
	roots := args
	if len(roots) == 0 {
		roots = cfg.Ingest.Roots
	}
	if len(roots) == 0 {
		return fmt.Errorf("provide one or more directories to assimilate")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, closeStore, err := newDrone(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var paths []string
	for _, root := range roots {
		p, err := ingest.CollectPaths(root)
		if err != nil {
			return err
		}
		paths = append(paths, p...)
	}
	logger.Info("collected run directories", zap.Int("count", len(paths)), zap.Strings("roots", roots))

	summary, err := ingest.Run(ctx, d, paths, cfg.Ingest.Workers, os.Stdout, logger)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d director(ies) failed assimilation", summary.Failed)
	}
	return nil
}

// droneConfigFromFlags overlays the drone flags on the loaded configuration.
func droneConfigFromFlags(cmd *cobra.Command) (types.Config, error) {
	cfg := loadConfig()
	if v, _ := cmd.Flags().GetBool("parse-dos"); v {
		cfg.Drone.ParseDOS = true
	}
	if v, _ := cmd.Flags().GetBool("simulate"); v {
		cfg.Drone.Simulate = true
	}
	if v, _ := cmd.Flags().GetBool("no-update-duplicates"); v {
		cfg.Drone.UpdateDuplicates = false
	}
	fields, _ := cmd.Flags().GetStringArray("field")
	if len(fields) > 0 {
		extra, err := parseFields(fields)
		if err != nil {
			return cfg, err
		}
		if cfg.Drone.AdditionalFields == nil {
			cfg.Drone.AdditionalFields = map[string]any{}
		}
		for k, v := range extra {
			cfg.Drone.AdditionalFields[k] = v
		}
	}
	return cfg, nil
}

// parseFields reads key=value pairs. Values are YAML scalars or flow
// collections, so numbers, booleans and lists keep their type.
func parseFields(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: want key=value", p)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

// newDrone opens the task store (unless simulating) and builds a drone on
// it. The returned function closes the store.
func newDrone(ctx context.Context, cfg types.Config) (*drone.Drone, func(), error) {
	var s store.TaskStore
	closeStore := func() {}
	if !cfg.Drone.Simulate {
		var err error
		s, err = store.Open(ctx, cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		closeStore = func() {
			if err := s.Close(); err != nil {
				logger.Warn("closing store", zap.Error(err))
			}
		}
	}
	d, err := drone.New(cfg.Drone, s, logger)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	desc := d.Descriptor()
	logger.Debug("drone ready",
		zap.String("name", desc.Name),
		zap.String("version", desc.Version),
		zap.Any("init_args", desc.InitArgs),
		zap.String("backend", string(cfg.DB.Backend)))
	return d, closeStore, nil
}
