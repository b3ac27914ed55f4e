// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package vaspio reads the VASP input and output files that make up a run
// directory: INCAR, KPOINTS, POSCAR, POTCAR, OSZICAR, OUTCAR and
// vasprun.xml. Every reader accepts plain, gzip or bzip2 compressed files.
package vaspio

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNoData is returned when a file parses but holds none of the expected
// content.
var ErrNoData = errors.New("no data")

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens path for reading, decompressing .gz and .bz2 files on the fly.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening gzip %s: %w", path, err)
		}
		return &readCloser{Reader: gz, closers: []io.Closer{f, gz}}, nil
	case strings.HasSuffix(lower, ".bz2"):
		return &readCloser{Reader: bzip2.NewReader(f), closers: []io.Closer{f}}, nil
	default:
		return f, nil
	}
}

// readLines returns the lines of path with trailing whitespace removed.
func readLines(path string) ([]string, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var lines []string
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), " \t\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}
