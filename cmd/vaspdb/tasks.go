// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/vaspdb/internal/store"
	"github.com/pdiddy/vaspdb/pkg/types"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Query and export stored task documents",
}

// --- get subcommand ---

var tasksGetCmd = &cobra.Command{
	Use:   "get <task_id>",
	Short: "Print one task document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksGet,
}

func runTasksGet(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid task id %q: %w", args[0], err)
	}
	ctx := context.Background()
	s, err := store.Open(ctx, loadConfig().DB)
	if err != nil {
		return err
	}
	defer s.Close()

	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, doc)
}

// --- dos subcommand ---

var tasksDOSCmd = &cobra.Command{
	Use:   "dos <dos_fs_id>",
	Short: "Print a stored density of states as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := store.Open(ctx, loadConfig().DB)
		if err != nil {
			return err
		}
		defer s.Close()

		dos, err := s.DOS(ctx, args[0])
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, dos)
	},
}

// --- list subcommand ---

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks matching the filters",
	Long: `List prints a summary line per task. Filters combine with AND;
--element may be repeated and every listed element must be present.`,
	RunE: runTasksList,
}

func runTasksList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := store.Open(ctx, loadConfig().DB)
	if err != nil {
		return err
	}
	defer s.Close()

	docs, err := s.Retrieve(ctx, queryOptsFromFlags(cmd))
	if err != nil {
		return err
	}
	summaries := make([]types.TaskSummary, len(docs))
	for i, d := range docs {
		summaries[i] = d.Summary()
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeJSON(os.Stdout, summaries)
	}
	return formatTaskList(os.Stdout, summaries)
}

func formatTaskList(w io.Writer, summaries []types.TaskSummary) error {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No tasks found.")
		return nil
	}

	fmt.Fprintf(w, "%-8s  %-12s  %-12s  %-12s  %-8s  %-10s  %14s  %s\n",
		"Task", "Formula", "Chemsys", "State", "RunType", "Symmetry", "E/atom (eV)", "Directory")
	fmt.Fprintln(w, strings.Repeat("-", 122))
	pointGroupOnly := false
	for _, t := range summaries {
		label := symmetryLabel(t)
		if t.SpacegroupSymbol == "" && t.PointGroup != "" {
			pointGroupOnly = true
		}
		fmt.Fprintf(w, "%-8d  %-12s  %-12s  %-12s  %-8s  %-10s  %14.6f  %s\n",
			t.TaskID, truncate(t.PrettyFormula, 12), truncate(t.Chemsys, 12),
			t.State, t.RunType, label, t.FinalEnergyPerAtom, t.DirName)
	}
	fmt.Fprintf(w, "\n%d tasks\n", len(summaries))
	if pointGroupOnly {
		fmt.Fprintln(w, "pg: point group only. Space-group symbols are assigned to triclinic cells.")
	}
	return nil
}

// symmetryLabel returns the space-group symbol, the point group marked
// "pg" when only that is known, or "-" when no symmetry was stored.
func symmetryLabel(t types.TaskSummary) string {
	switch {
	case t.SpacegroupSymbol != "":
		return t.SpacegroupSymbol
	case t.PointGroup != "":
		return "pg " + t.PointGroup
	}
	return "-"
}

// --- export subcommand ---

var tasksExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export task summaries to YAML or JSON",
	Long: `Export writes the summaries of every task (or the filtered subset) to
stdout or the file given by --out. Supports the same filters as list.`,
	RunE: runTasksExport,
}

func runTasksExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	outPath, _ := cmd.Flags().GetString("out")

	ctx := context.Background()
	s, err := store.Open(ctx, loadConfig().DB)
	if err != nil {
		return err
	}
	defer s.Close()

	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", outPath, err)
		}
		defer f.Close()
		w = f
	}

	opts := queryOptsFromFlags(cmd)
	switch format {
	case "yaml", "":
		err = store.ExportYAML(ctx, s, w, opts)
	case "json":
		err = store.ExportJSON(ctx, s, w, opts)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	if outPath != "" {
		fmt.Fprintf(os.Stderr, "Exported to %s\n", outPath)
	}
	return nil
}

// --- shared helpers ---

func queryOptsFromFlags(cmd *cobra.Command) store.QueryOptions {
	chemsys, _ := cmd.Flags().GetString("chemsys")
	formula, _ := cmd.Flags().GetString("formula")
	state, _ := cmd.Flags().GetString("state")
	runType, _ := cmd.Flags().GetString("run-type")
	elements, _ := cmd.Flags().GetStringSlice("element")
	limit, _ := cmd.Flags().GetInt("limit")

	return store.QueryOptions{
		Chemsys:  chemsys,
		Formula:  formula,
		State:    types.TaskState(state),
		RunType:  runType,
		Elements: elements,
		Limit:    limit,
	}
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("chemsys", "", "filter by chemical system, e.g. Cl-Na")
	cmd.Flags().String("formula", "", "filter by reduced formula, e.g. NaCl")
	cmd.Flags().String("state", "", "filter by state: successful, unsuccessful, stopped, killed")
	cmd.Flags().String("run-type", "", "filter by run type: GGA, GGA+U, HF")
	cmd.Flags().StringSlice("element", nil, "require an element (repeatable)")
	cmd.Flags().Int("limit", 0, "maximum results (0 = default)")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	addQueryFlags(tasksListCmd)
	tasksListCmd.Flags().Bool("json", false, "output results as JSON")

	addQueryFlags(tasksExportCmd)
	tasksExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	tasksExportCmd.Flags().String("out", "", "write to file instead of stdout")

	tasksCmd.AddCommand(tasksGetCmd)
	tasksCmd.AddCommand(tasksDOSCmd)
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksExportCmd)

	rootCmd.AddCommand(tasksCmd)
}
