// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// berryscan_render writes every board of the newest checkpoint to a numbered
// PNG file.  The files can be joined into a video with:
//
//	ffmpeg -r 60 -i images/%06d.png -c:v libx264 -vf "fps=60,format=yuv420p" -crf 3 video.mp4
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/berryscan/berryscand/history"
	"github.com/decred/berryscan/render"
	"github.com/decred/dcrd/dcrutil/v3"
)

var (
	defaultHomeDir = dcrutil.AppDataDir("berryscand", false)

	destination = flag.String("destination", "images", "Image directory")
	file        = flag.String("file", "", "Checkpoint file (default: newest in -source)")
	from        = flag.Int("from", 0, "First board index to render")
	fsRoot      = flag.String("source", "", "Source directory")
	scale       = flag.Int("scale", render.DefaultScale, "Image pixels per board pixel")
	verbose     = flag.Bool("v", false, "Print every rendered file")
)

// renderAll renders the boards of h starting at index from into dir and
// returns the number of files written.
func renderAll(h *history.History, dir string, from, scale int) (int, error) {
	if from < 0 {
		return 0, fmt.Errorf("invalid board index %v", from)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, err
	}

	var n int
	for i := from; i < len(h.Boards); i++ {
		path := filepath.Join(dir, fmt.Sprintf("%06d.png", i))
		if *verbose {
			fmt.Printf("Rendering %v\n", path)
		}
		if err := render.WriteFile(path, h.Boards[i], scale); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func _main() error {
	flag.Parse()

	path := *file
	if path == "" {
		root := *fsRoot
		if root == "" {
			root = filepath.Join(defaultHomeDir, "data", "history")
		}
		store, err := history.OpenStore(root)
		if err != nil {
			return err
		}
		path, err = store.Newest()
		if err != nil {
			return err
		}
		if path == "" {
			return fmt.Errorf("no checkpoint in %v", root)
		}
	}

	h, err := history.Load(path)
	if err != nil {
		return err
	}
	n, err := renderAll(h, *destination, *from, *scale)
	if err != nil {
		return err
	}
	fmt.Printf("Rendered %v of %v boards from %v into %v\n", n,
		len(h.Boards), path, *destination)
	return nil
}

func main() {
	err := _main()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
