//go:build mage

// Package main contains Mage build targets for vaspdb developer tooling.
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// projectDirs lists the working directories a local setup expects.
var projectDirs = []string{
	"runs",
	"exports",
	".secrets",
}

const (
	binDir  = "bin"
	binName = "vaspdb"
	cmdPkg  = "./cmd/vaspdb"
)

// Init creates the local working directories.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	fmt.Println("Project directories initialized.")
	return nil
}

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		version = "dev"
	}
	out := filepath.Join(binDir, binName)
	if err := sh.RunV("go", "build", "-ldflags", "-X main.version="+version, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests. Set VASPDB_TEST_MONGO_URI to include the
// MongoDB store tests.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Lint runs go vet.
func Lint() error {
	return sh.RunV("go", "vet", "./...")
}

// Stats prints project metrics: Go production and test lines.
func Stats() error {
	prod, test, err := countGoLines(".")
	if err != nil {
		return err
	}
	fmt.Printf("Lines of code (Go, production): %d\n", prod)
	fmt.Printf("Lines of code (Go, tests):      %d\n", test)
	return nil
}

// countGoLines counts non-blank lines in Go files under root, split into
// production and test files.
func countGoLines(root string) (prod, test int, err error) {
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), "_") || info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		n := 0
		for _, line := range bytes.Split(data, []byte("\n")) {
			if len(bytes.TrimSpace(line)) > 0 {
				n++
			}
		}
		if strings.HasSuffix(path, "_test.go") {
			test += n
		} else {
			prod += n
		}
		return nil
	})
	return prod, test, err
}

// Ingest groups the targets that drive the CLI against local data.
type Ingest mg.Namespace

// Assimilate builds the CLI and assimilates every run under runs/.
func (Ingest) Assimilate() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "assimilate", "runs")
}

// Simulate builds task documents for runs/ without writing them.
func (Ingest) Simulate() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "assimilate", "--simulate", "runs")
}

// Export writes the task summaries to exports/tasks.yaml.
func (Ingest) Export() error {
	mg.Deps(Init, Build)
	return sh.RunV(filepath.Join(binDir, binName), "tasks", "export", "--format", "yaml", "--out", filepath.Join("exports", "tasks.yaml"))
}
