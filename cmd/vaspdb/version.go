// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/vaspdb/pkg/types"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of vaspdb",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vaspdb %s (task schema %s)\n", version, types.SchemaVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
