// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/vaspdb/internal/ingest"
)

var watchCmd = &cobra.Command{
	Use:   "watch [root]",
	Short: "Assimilate runs under a directory as they finish",
	Long: `Watch first assimilates every run already under root, then waits for
vasprun.xml*, OUTCAR* and STOPCAR files to be written. Once a run
directory has been quiet for the debounce interval it is assimilated
again. Stop with Ctrl-C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	addDroneFlags(watchCmd)
	watchCmd.Flags().Duration("debounce", 0, "quiet time before a changed run is assimilated (default from config, 2s)")
	watchCmd.Flags().Bool("skip-initial", false, "do not assimilate existing runs before watching")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := droneConfigFromFlags(cmd)
	if err != nil {
		return err
	}
	if d, _ := cmd.Flags().GetDuration("debounce"); d > 0 {
		cfg.Ingest.Debounce = d
	}
	var root string
	switch {
	case len(args) == 1:
		root = args[0]
	case len(cfg.Ingest.Roots) > 0:
		root = cfg.Ingest.Roots[0]
	default:
		return fmt.Errorf("provide a directory to watch")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, closeStore, err := newDrone(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Register the watch before the initial pass so no run is missed.
	w, err := ingest.NewWatcher(root, d, cfg.Ingest.Debounce, os.Stdout, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	if skip, _ := cmd.Flags().GetBool("skip-initial"); !skip {
		paths, err := ingest.CollectPaths(root)
		if err != nil {
			return err
		}
		if _, err := ingest.Run(ctx, d, paths, cfg.Ingest.Workers, os.Stdout, logger); err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stdout, "watching %s (Ctrl-C to stop)\n", root)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
