// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fetcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/decred/berryscan/canvas"
)

func TestCache(t *testing.T) {
	dir, err := os.MkdirTemp("", "berryscand.test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	f := &funcFetcher{fn: func(call int, height uint64) (*canvas.Board, error) {
		if height == 13 {
			return nil, ErrTransient
		}
		b := canvas.NewBoard(height)
		b.Set(1, 2, canvas.Pixel{Color: uint32(height), OwnerID: 3})
		return b, nil
	}}

	path := filepath.Join(dir, "cache")
	c, err := NewCache(path, f)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	b1, err := c.FetchBoard(ctx, 12)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := c.FetchBoard(ctx, 12)
	if err != nil {
		t.Fatal(err)
	}
	if f.calls != 1 {
		t.Fatalf("second fetch was not served from cache: %v calls",
			f.calls)
	}
	if *b1 != *b2 {
		t.Fatal("cached board differs")
	}

	// Failures are not cached.
	for i := 0; i < 2; i++ {
		if _, err := c.FetchBoard(ctx, 13); !errors.Is(err, ErrTransient) {
			t.Fatalf("got %v want %v", err, ErrTransient)
		}
	}
	if f.calls != 3 {
		t.Fatalf("calls: got %v want 3", f.calls)
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 3 {
		t.Fatalf("stats: hits %v misses %v", hits, misses)
	}

	// Entries survive a reopen.
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	c, err = NewCache(path, f)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	b3, err := c.FetchBoard(ctx, 12)
	if err != nil {
		t.Fatal(err)
	}
	if f.calls != 3 || *b3 != *b1 {
		t.Fatalf("reopened cache missed: %v calls", f.calls)
	}
}
