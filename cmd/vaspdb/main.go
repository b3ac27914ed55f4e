// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the vaspdb CLI.
// Subcommands assimilate VASP run directories into the task database,
// watch trees for finished runs, and query or export stored tasks.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/vaspdb/internal/secrets"
	"github.com/pdiddy/vaspdb/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	verbose bool
	logger  = zap.NewNop()

	// loadedSecrets holds credentials loaded from .secrets/ at startup.
	loadedSecrets map[string]string
)

// rootCmd is the base command for the vaspdb CLI.
var rootCmd = &cobra.Command{
	Use:   "vaspdb",
	Short: "Build a task database from VASP run directories",
	Long: `vaspdb walks directory trees for VASP calculations, turns every run
into a task document (inputs, outputs, analysis, run statistics) and stores
it in SQLite or MongoDB. Runs are deduplicated by host and path, and new
runs receive sequential task ids.

Configuration is read from vaspdb.yaml (current directory or
~/.config/vaspdb/) and VASPDB_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := config.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l

		s, err := secrets.Load(".secrets/", logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", zap.Strings("keys", keys))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./vaspdb.yaml or ~/.config/vaspdb/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().String("backend", "", "task store: sqlite or mongo")
	rootCmd.PersistentFlags().String("db", "", "SQLite database file")

	viper.BindPFlag("db.backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("db.path", rootCmd.PersistentFlags().Lookup("db"))

	viper.SetDefault("db.backend", string(types.BackendSQLite))
	viper.SetDefault("db.path", "vaspdb.sqlite")
	viper.SetDefault("db.host", "127.0.0.1")
	viper.SetDefault("db.port", 27017)
	viper.SetDefault("db.database", "vasp")
	viper.SetDefault("db.collection", "tasks")
	viper.SetDefault("db.timeout", "10s")
	viper.SetDefault("drone.update_duplicates", true)
	viper.SetDefault("ingest.workers", 4)
	viper.SetDefault("ingest.debounce", "2s")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("vaspdb")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "vaspdb"))
		}
	}

	viper.SetEnvPrefix("VASPDB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig assembles the configuration from viper and fills missing
// credentials from the secrets directory.
func loadConfig() types.Config {
	cfg := types.Config{
		DB: types.DBConfig{
			Backend:    types.StoreBackend(viper.GetString("db.backend")),
			Path:       viper.GetString("db.path"),
			Host:       viper.GetString("db.host"),
			Port:       viper.GetInt("db.port"),
			Database:   viper.GetString("db.database"),
			Collection: viper.GetString("db.collection"),
			User:       viper.GetString("db.user"),
			Password:   viper.GetString("db.password"),
			Timeout:    viper.GetDuration("db.timeout"),
		},
		Drone: types.DroneConfig{
			ParseDOS:         viper.GetBool("drone.parse_dos"),
			Simulate:         viper.GetBool("drone.simulate"),
			UpdateDuplicates: viper.GetBool("drone.update_duplicates"),
			AdditionalFields: loadAdditionalFields(),
			Hostname:         viper.GetString("drone.hostname"),
		},
		Ingest: types.IngestConfig{
			Workers:  viper.GetInt("ingest.workers"),
			Roots:    viper.GetStringSlice("ingest.roots"),
			Debounce: viper.GetDuration("ingest.debounce"),
		},
	}
	secrets.Apply(&cfg.DB, loadedSecrets)
	return cfg
}

// loadAdditionalFields returns drone.additional_fields with its keys as
// written in the config file. Viper folds keys to lower case, so the
// sub-tree is read from the file directly when there is one.
func loadAdditionalFields() map[string]any {
	fields := viper.GetStringMap("drone.additional_fields")
	path := viper.ConfigFileUsed()
	if path == "" {
		return fields
	}
	raw, err := readAdditionalFields(path)
	if err != nil {
		logger.Warn("reading additional fields", zap.String("path", path), zap.Error(err))
		return fields
	}
	if raw == nil {
		return fields
	}
	return raw
}

func readAdditionalFields(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file struct {
		Drone struct {
			AdditionalFields map[string]any `yaml:"additional_fields"`
		} `yaml:"drone"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return file.Drone.AdditionalFields, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
