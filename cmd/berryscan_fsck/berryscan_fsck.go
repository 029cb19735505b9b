// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/berryscan/berryscand/history"
	"github.com/decred/berryscan/canvas"
	"github.com/decred/dcrd/dcrutil/v3"
)

var (
	defaultHomeDir = dcrutil.AppDataDir("berryscand", false)

	fsRoot  = flag.String("source", "", "Source directory")
	verbose = flag.Bool("v", false, "Print more information during run")
)

// summary is what verbose mode prints for every checkpoint that decodes.
type summary struct {
	Name              string
	Boards            int
	LastScannedHeight uint64
	ChangeHeights     []uint64
	Painted           int // Pixels of the last board that differ from an empty one
}

func summarize(name string, h *history.History) summary {
	s := summary{
		Name:              name,
		Boards:            len(h.Boards),
		LastScannedHeight: h.LastScannedHeight,
		ChangeHeights:     make([]uint64, 0, len(h.Boards)),
		Painted:           canvas.Diff(canvas.NewBoard(0), h.Last()),
	}
	for _, b := range h.Boards {
		s.ChangeHeights = append(s.ChangeHeights, b.BlockHeight)
	}
	return s
}

// fsck checks every checkpoint in the existing directory root on its own and
// against its predecessor, reports to w and returns the number of failures.
func fsck(w io.Writer, root string, verbose bool) (int, error) {
	store, err := history.OpenStore(root)
	if err != nil {
		return 0, err
	}
	names, err := store.List()
	if err != nil {
		return 0, err
	}
	if len(names) == 0 {
		fmt.Fprintf(w, "No checkpoints\n")
		return 0, nil
	}

	var (
		failures int
		prev     *history.History
	)
	for _, name := range names {
		path := filepath.Join(root, name)
		h, err := history.Load(path)
		if err != nil {
			fmt.Fprintf(w, "%v: %v\n", name, err)
			failures++
			continue
		}
		if verbose {
			spew.Fdump(w, summarize(name, h))
		}

		for _, err := range history.Check(h) {
			fmt.Fprintf(w, "%v: %v\n", name, err)
			failures++
		}
		if prev != nil {
			if err := history.CheckExtends(prev, h); err != nil {
				fmt.Fprintf(w, "%v: %v\n", name, err)
				failures++
			}
		}
		prev = h
	}
	return failures, nil
}

func _main() error {
	flag.Parse()

	root := *fsRoot
	if root == "" {
		root = filepath.Join(defaultHomeDir, "data", "history")
	}
	fmt.Printf("=== Root: %v\n", root)

	failures, err := fsck(os.Stdout, root, *verbose)
	if err != nil {
		return err
	}
	if failures != 0 {
		return fmt.Errorf("%v failures", failures)
	}
	return nil
}

func main() {
	err := _main()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
