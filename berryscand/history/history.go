// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package history keeps the ordered log of distinct boards and persists it
// as checkpoint files.
package history

import (
	"errors"
	"fmt"

	"github.com/decred/berryscan/canvas"
)

// minBoardSize is the smallest possible encoded board: every row empty.
const minBoardSize = 4 + canvas.Height*4 + 8

var (
	// ErrEmpty is returned when a history without boards is decoded or
	// loaded.
	ErrEmpty = errors.New("empty history")

	// ErrInconsistent is returned when a loaded history violates its
	// ordering invariants.
	ErrInconsistent = errors.New("inconsistent history")
)

// History is the sequence of boards at which the canvas changed plus the
// height up to which the ledger has been scanned.
type History struct {
	Boards            []*canvas.Board
	LastScannedHeight uint64
}

// New returns a history seeded with the provided board.
func New(seed *canvas.Board) *History {
	return &History{
		Boards:            []*canvas.Board{seed},
		LastScannedHeight: seed.BlockHeight,
	}
}

// Last returns the most recently recorded board or nil when empty.
func (h *History) Last() *canvas.Board {
	if len(h.Boards) == 0 {
		return nil
	}
	return h.Boards[len(h.Boards)-1]
}

// RecordIfChanged appends b when it differs from the last recorded board.
// Boards at or below the last recorded height are ignored.  It returns true
// if b was appended.
func (h *History) RecordIfChanged(b *canvas.Board) bool {
	last := h.Last()
	if last != nil {
		if canvas.StateEqual(last, b) {
			return false
		}
		if b.BlockHeight <= last.BlockHeight {
			log.Warnf("Ignoring board %v: not above last recorded "+
				"board %v", b.BlockHeight, last.BlockHeight)
			return false
		}
	}
	h.Boards = append(h.Boards, b)
	return true
}

// Advance moves the scan cursor to height.  The cursor never moves back.
func (h *History) Advance(height uint64) {
	if height > h.LastScannedHeight {
		h.LastScannedHeight = height
	}
}

// MarshalBinary encodes the history as a u32 board count, the boards and a
// trailing u64 last scanned height.
func (h *History) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 4+len(h.Boards)*canvas.BoardSize+8)
	buf = canvas.AppendUint32(buf, uint32(len(h.Boards)))
	for _, b := range h.Boards {
		buf = canvas.AppendBoard(buf, b)
	}
	return canvas.AppendUint64(buf, h.LastScannedHeight), nil
}

// UnmarshalBinary decodes a history encoded by MarshalBinary.
func (h *History) UnmarshalBinary(payload []byte) error {
	d := canvas.NewDecoder(payload)
	count := d.Uint32()
	if d.Err() == nil && uint64(count)*minBoardSize > uint64(d.Remaining()) {
		return fmt.Errorf("invalid board count %v for %v bytes", count,
			len(payload))
	}
	boards := make([]*canvas.Board, 0, count)
	for i := uint32(0); i < count && d.Err() == nil; i++ {
		boards = append(boards, d.Board())
	}
	last := d.Uint64()
	if err := d.Finish(); err != nil {
		return err
	}

	h.Boards = boards
	h.LastScannedHeight = last
	return nil
}

// Check verifies the history invariants and returns every violation found.
func Check(h *History) []error {
	var errs []error
	if len(h.Boards) == 0 {
		return []error{ErrEmpty}
	}
	for i := 1; i < len(h.Boards); i++ {
		prev, cur := h.Boards[i-1], h.Boards[i]
		if cur.BlockHeight <= prev.BlockHeight {
			errs = append(errs, fmt.Errorf("board %v: height %v not "+
				"above previous height %v", i, cur.BlockHeight,
				prev.BlockHeight))
		}
		if canvas.StateEqual(prev, cur) {
			errs = append(errs, fmt.Errorf("board %v: height %v "+
				"duplicates board at height %v", i,
				cur.BlockHeight, prev.BlockHeight))
		}
	}
	if last := h.Last(); h.LastScannedHeight < last.BlockHeight {
		errs = append(errs, fmt.Errorf("last scanned height %v below "+
			"last board height %v", h.LastScannedHeight,
			last.BlockHeight))
	}
	return errs
}

// CheckExtends verifies that next continues prev, as a later checkpoint of
// the same scan must: it was scanned at least as far and starts with every
// board of prev.
func CheckExtends(prev, next *History) error {
	if next.LastScannedHeight < prev.LastScannedHeight {
		return fmt.Errorf("last scanned height %v below previous %v",
			next.LastScannedHeight, prev.LastScannedHeight)
	}
	if len(next.Boards) < len(prev.Boards) {
		return fmt.Errorf("%v boards, previous has %v", len(next.Boards),
			len(prev.Boards))
	}
	for i, b := range prev.Boards {
		if next.Boards[i].BlockHeight != b.BlockHeight ||
			!canvas.StateEqual(next.Boards[i], b) {
			return fmt.Errorf("board %v at height %v differs from "+
				"previous board at height %v", i,
				next.Boards[i].BlockHeight, b.BlockHeight)
		}
	}
	return nil
}
