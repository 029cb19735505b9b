// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	v1 "github.com/decred/berryscan/api/v1"
	"github.com/decred/berryscan/canvas"
)

func reply() *v1.BoardReply {
	br := &v1.BoardReply{
		Index:       1,
		BlockHeight: 160,
		Width:       canvas.Width,
		Height:      canvas.Height,
		Colors:      make([][]uint32, canvas.Height),
		Owners:      make([][]uint32, canvas.Height),
	}
	for y := range br.Colors {
		br.Colors[y] = make([]uint32, canvas.Width)
		br.Owners[y] = make([]uint32, canvas.Width)
	}
	br.Colors[2][1] = 0xff0000
	br.Owners[2][1] = 7
	return br
}

func TestBoardFromReply(t *testing.T) {
	b, err := boardFromReply(reply())
	if err != nil {
		t.Fatal(err)
	}
	if b.BlockHeight != 160 ||
		b.At(1, 2) != (canvas.Pixel{Color: 0xff0000, OwnerID: 7}) {
		t.Fatalf("unexpected board at %v", b.BlockHeight)
	}
	if canvas.Diff(canvas.NewBoard(0), b) != 1 {
		t.Fatal("unexpected painted pixels")
	}

	br := reply()
	br.Width = 49
	if _, err := boardFromReply(br); err == nil {
		t.Fatal("expected error for width")
	}
	br = reply()
	br.Owners[3] = br.Owners[3][:10]
	if _, err := boardFromReply(br); err == nil {
		t.Fatal("expected error for short row")
	}
	br = reply()
	br.Colors = br.Colors[:1]
	if _, err := boardFromReply(br); err == nil {
		t.Fatal("expected error for missing rows")
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		addr, want string
	}{
		{"127.0.0.1", "127.0.0.1:49160"},
		{"localhost:8000", "localhost:8000"},
		{"::1", "[::1]:49160"},
	}
	for _, tt := range tests {
		if got := normalizeAddress(tt.addr, v1.DefaultListenPort); got != tt.want {
			t.Errorf("%v: got %v want %v", tt.addr, got, tt.want)
		}
	}
}
