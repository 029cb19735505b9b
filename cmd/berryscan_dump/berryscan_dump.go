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

	"github.com/decred/berryscan/berryscand/history"
	"github.com/decred/berryscan/util"
	"github.com/decred/dcrd/dcrutil/v3"
)

var (
	defaultHomeDir = dcrutil.AppDataDir("berryscand", false)

	dumpJSON = flag.Bool("json", false, "Dump JSON")
	file     = flag.String("file", "", "Checkpoint file (default: newest in -source)")
	fsRoot   = flag.String("source", "", "Source directory")
)

// checkpointPath returns file, or the newest checkpoint in the existing
// directory root when file is empty.
func checkpointPath(root, file string) (string, error) {
	if file != "" {
		return file, nil
	}
	store, err := history.OpenStore(root)
	if err != nil {
		return "", err
	}
	path, err := store.Newest()
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("no checkpoint in %v", root)
	}
	return path, nil
}

// dump writes the checkpoint at path to w, as text or as a JSON record
// stream.
func dump(w io.Writer, path string, jsonOut bool) error {
	h, err := history.Load(path)
	if err != nil {
		return err
	}

	if !jsonOut {
		digest, err := util.DigestFile(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "=== File: %v\n", path)
		fmt.Fprintf(w, "SHA256             : %v\n", digest)
	}
	return history.Dump(w, h, !jsonOut)
}

func _main() error {
	flag.Parse()

	root := *fsRoot
	if root == "" {
		root = filepath.Join(defaultHomeDir, "data", "history")
	}
	path, err := checkpointPath(root, *file)
	if err != nil {
		return err
	}
	return dump(os.Stdout, path, *dumpJSON)
}

func main() {
	err := _main()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
