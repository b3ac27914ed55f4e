// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/vaspdb/pkg/types"
)

const exportLimit = 1000000

// ExportYAML writes the summaries of the tasks matching opts to w.
func ExportYAML(ctx context.Context, s TaskStore, w io.Writer, opts QueryOptions) error {
	entries, err := exportEntries(ctx, s, opts)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// ExportJSON writes the summaries of the tasks matching opts to w.
func ExportJSON(ctx context.Context, s TaskStore, w io.Writer, opts QueryOptions) error {
	entries, err := exportEntries(ctx, s, opts)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func exportEntries(ctx context.Context, s TaskStore, opts QueryOptions) ([]types.TaskSummary, error) {
	if opts.Limit <= 0 {
		opts.Limit = exportLimit
	}
	docs, err := s.Retrieve(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	entries := make([]types.TaskSummary, len(docs))
	for i, d := range docs {
		entries[i] = d.Summary()
	}
	return entries, nil
}
