// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package history

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/berryscan/canvas"
)

func board(height uint64, color uint32) *canvas.Board {
	b := canvas.NewBoard(height)
	b.Set(0, 0, canvas.Pixel{Color: color, OwnerID: color})
	return b
}

func TestRecordIfChanged(t *testing.T) {
	h := New(board(100, 0))
	if h.LastScannedHeight != 100 {
		t.Fatalf("seed cursor: got %v", h.LastScannedHeight)
	}

	if h.RecordIfChanged(board(101, 0)) {
		t.Fatal("unchanged board recorded")
	}
	if !h.RecordIfChanged(board(160, 0xff0000)) {
		t.Fatal("changed board not recorded")
	}
	if h.RecordIfChanged(board(150, 0x00ff00)) {
		t.Fatal("board below last recorded height recorded")
	}
	if h.RecordIfChanged(board(161, 0xff0000)) {
		t.Fatal("unchanged board recorded")
	}
	if !h.RecordIfChanged(board(170, 0)) {
		t.Fatal("reverted board not recorded")
	}

	var heights []uint64
	for _, b := range h.Boards {
		heights = append(heights, b.BlockHeight)
	}
	if !reflect.DeepEqual(heights, []uint64{100, 160, 170}) {
		t.Fatalf("heights: %v", heights)
	}
	if errs := Check(h); len(errs) != 1 {
		// Cursor was never advanced past 170.
		t.Fatalf("unexpected check result: %v", errs)
	}
	h.Advance(170)
	h.Advance(120)
	if h.LastScannedHeight != 170 {
		t.Fatalf("cursor moved back: %v", h.LastScannedHeight)
	}
	if errs := Check(h); len(errs) != 0 {
		t.Fatalf("unexpected check result: %v", errs)
	}
}

func TestCheck(t *testing.T) {
	if errs := Check(&History{}); len(errs) != 1 ||
		!errors.Is(errs[0], ErrEmpty) {
		t.Fatalf("got %v want %v", errs, ErrEmpty)
	}

	h := &History{
		Boards: []*canvas.Board{
			board(100, 1),
			board(100, 2), // height not increasing
			board(110, 2), // duplicate state
		},
		LastScannedHeight: 105, // below last board
	}
	errs := Check(h)
	if len(errs) != 3 {
		t.Fatalf("expected 3 violations, got %v", spew.Sdump(errs))
	}
}

func TestEncodeDecode(t *testing.T) {
	h := New(board(21793900, 0))
	h.RecordIfChanged(board(21793960, 0xabcdef))
	h.Advance(21794000)

	blob, err := h.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(blob) != 4+2*canvas.BoardSize+8 {
		t.Fatalf("encoded size: %v", len(blob))
	}
	if binary.LittleEndian.Uint32(blob) != 2 {
		t.Fatal("board count prefix")
	}
	if binary.LittleEndian.Uint64(blob[len(blob)-8:]) != 21794000 {
		t.Fatal("trailing cursor")
	}

	var h2 History
	if err := h2.UnmarshalBinary(blob); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(*h, h2) {
		t.Fatalf("want %v got %v", spew.Sdump(h), spew.Sdump(h2))
	}

	// Every truncation must fail.
	for _, n := range []int{0, 3, 4, 100, len(blob) - 1} {
		if err := h2.UnmarshalBinary(blob[:n]); err == nil {
			t.Fatalf("truncated to %v bytes: expected error", n)
		}
	}
	if err := h2.UnmarshalBinary(append(blob, 1)); !errors.Is(err,
		canvas.ErrTrailingBytes) {
		t.Fatalf("got %v want %v", err, canvas.ErrTrailingBytes)
	}

	// Absurd board count.
	bad := append([]byte{0xff, 0xff, 0xff, 0xff}, blob[4:]...)
	if err := h2.UnmarshalBinary(bad); err == nil {
		t.Fatal("expected error for absurd board count")
	}
}

// TestDecodeEmptyRows decodes a checkpoint written by older scanners for a
// board whose rows were never painted: every row is an empty sequence.
func TestDecodeEmptyRows(t *testing.T) {
	var blob []byte
	blob = canvas.AppendUint32(blob, 1)
	blob = canvas.AppendUint32(blob, canvas.Height)
	for i := 0; i < canvas.Height; i++ {
		blob = canvas.AppendUint32(blob, 0)
	}
	blob = canvas.AppendUint64(blob, 21793900)
	blob = canvas.AppendUint64(blob, 21793900)
	if len(blob) != 4+minBoardSize+8 {
		t.Fatalf("fixture size %v", len(blob))
	}

	var h History
	if err := h.UnmarshalBinary(blob); err != nil {
		t.Fatal(err)
	}
	if len(h.Boards) != 1 ||
		!canvas.StateEqual(h.Boards[0], canvas.NewBoard(0)) {
		t.Fatalf("unexpected history %v", spew.Sdump(h))
	}
}

func TestDump(t *testing.T) {
	h := New(board(100, 0))
	h.RecordIfChanged(board(160, 0xff0000))
	h.Advance(220)

	var human bytes.Buffer
	if err := Dump(&human, h, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(human.String(), "Last scanned height: 220") ||
		!strings.Contains(human.String(), "height 160") {
		t.Fatalf("unexpected dump:\n%v", human.String())
	}

	var stream bytes.Buffer
	if err := Dump(&stream, h, false); err != nil {
		t.Fatal(err)
	}
	s := bufio.NewScanner(&stream)
	s.Buffer(make([]byte, 0, 1<<20), 1<<20)
	var types []string
	var records int
	for s.Scan() {
		records++
		if records%2 == 0 {
			continue
		}
		var rt RecordType
		if err := json.Unmarshal(s.Bytes(), &rt); err != nil {
			t.Fatal(err)
		}
		types = append(types, rt.Type)
	}
	if err := s.Err(); err != nil {
		t.Fatal(err)
	}
	want := []string{RecordTypeHistory, RecordTypeBoard, RecordTypeBoard}
	if !reflect.DeepEqual(types, want) {
		t.Fatalf("got %v want %v", types, want)
	}
}

func TestCheckExtends(t *testing.T) {
	prev := New(board(100, 0))
	prev.RecordIfChanged(board(160, 1))
	prev.Advance(200)

	next := New(board(100, 0))
	next.RecordIfChanged(board(160, 1))
	next.RecordIfChanged(board(250, 2))
	next.Advance(300)
	if err := CheckExtends(prev, next); err != nil {
		t.Fatal(err)
	}
	if err := CheckExtends(prev, prev); err != nil {
		t.Fatal(err)
	}
	if err := CheckExtends(next, prev); err == nil {
		t.Fatal("expected error for a shorter scan")
	}

	other := New(board(100, 0))
	other.RecordIfChanged(board(161, 1))
	other.Advance(300)
	if err := CheckExtends(prev, other); err == nil {
		t.Fatal("expected error for a diverging board")
	}
}
