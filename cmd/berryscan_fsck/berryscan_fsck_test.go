// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/decred/berryscan/berryscand/history"
	"github.com/decred/berryscan/canvas"
)

func TestFsck(t *testing.T) {
	dir, err := os.MkdirTemp("", "berryscan_fsck.test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	write := func(name string, h *history.History) {
		t.Helper()
		blob, err := h.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		err = os.WriteFile(filepath.Join(dir, name), blob, 0600)
		if err != nil {
			t.Fatal(err)
		}
	}

	if n, err := fsck(io.Discard, dir, false); err != nil || n != 0 {
		t.Fatalf("empty dir: %v %v", n, err)
	}

	h := history.New(canvas.NewBoard(100))
	h.Advance(200)
	write("1609459200.borsh", h)

	changed := canvas.NewBoard(250)
	changed.Set(0, 0, canvas.Pixel{Color: 1})
	h.RecordIfChanged(changed)
	h.Advance(300)
	write("1609459260.borsh", h)

	if n, err := fsck(io.Discard, dir, false); err != nil || n != 0 {
		t.Fatalf("consistent checkpoints: %v %v", n, err)
	}

	// A later checkpoint that went backwards and a corrupt file.
	back := history.New(canvas.NewBoard(100))
	back.Advance(150)
	write("1609459320.borsh", back)
	err = os.WriteFile(filepath.Join(dir, "1609459380.borsh"), []byte{1},
		0600)
	if err != nil {
		t.Fatal(err)
	}

	n, err := fsck(io.Discard, dir, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("got %v failures want 2", n)
	}

	// Nothing was deleted.
	left, err := filepath.Glob(filepath.Join(dir, "*.borsh"))
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 4 {
		t.Fatalf("files removed: %v", left)
	}
}

func TestFsckVerbose(t *testing.T) {
	dir, err := os.MkdirTemp("", "berryscan_fsck.test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := history.NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	h := history.New(canvas.NewBoard(100))
	changed := canvas.NewBoard(250)
	changed.Set(0, 0, canvas.Pixel{Color: 1})
	h.RecordIfChanged(changed)
	h.Advance(300)
	if _, err := store.Save(h); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if n, err := fsck(&out, dir, true); err != nil || n != 0 {
		t.Fatalf("got %v %v", n, err)
	}
	for _, want := range []string{"Boards: (int) 2",
		"LastScannedHeight: (uint64) 300", "ChangeHeights:",
		"(uint64) 250", "Painted: (int) 1"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in:\n%v", want, out.String())
		}
	}

	s := summarize("x", h)
	if len(s.ChangeHeights) != 2 || s.ChangeHeights[0] != 100 ||
		s.ChangeHeights[1] != 250 {
		t.Fatalf("change heights %v", s.ChangeHeights)
	}
}

func TestFsckMissingRoot(t *testing.T) {
	dir, err := os.MkdirTemp("", "berryscan_fsck.test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	missing := filepath.Join(dir, "typo")
	if _, err := fsck(io.Discard, missing, false); !errors.Is(err,
		os.ErrNotExist) {
		t.Fatalf("got %v want %v", err, os.ErrNotExist)
	}
	if _, err := os.Stat(missing); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("root was created: %v", err)
	}
}
