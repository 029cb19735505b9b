// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package scanner walks a range of ledger heights and records every height at
// which the board changed.
//
// Most heights leave the board untouched.  Before scanning a window linearly
// the scanner probes the height JumpSize blocks ahead; if the board there is
// the same as the last recorded board the whole window is assumed unchanged
// and skipped.  A change that is reverted to the exact same board within one
// window is therefore not recorded.  This is an accepted approximation.
package scanner

import (
	"context"
	"sync/atomic"

	"github.com/decred/berryscan/berryscand/history"
	"github.com/decred/berryscan/canvas"
)

// DefaultJumpSize is the default distance of the jump probe.
const DefaultJumpSize = 60

// Fetcher returns the board at a height, or false when no board can be
// obtained right now.  It must return promptly once ctx is done.
type Fetcher interface {
	Fetch(ctx context.Context, height uint64) (*canvas.Board, bool)
}

// Progress is a point in time view of a scan.  Published values are never
// modified.
type Progress struct {
	Running           bool
	Cursor            uint64
	FinalHeight       uint64
	LastScannedHeight uint64
	Boards            int
	LastBoard         *canvas.Board

	JumpProbes    uint64 // Jump probes issued
	JumpSkips     uint64 // Windows skipped by a jump probe
	LinearFetches uint64 // Heights fetched one by one
	Unavailable   uint64 // Fetches that yielded no board
}

// Scanner owns a history and extends it up to a final height.  It is not
// safe for concurrent use, with the exception of Progress.
type Scanner struct {
	fetcher     Fetcher
	history     *history.History
	finalHeight uint64
	jumpSize    uint64

	cursor        uint64
	jumpProbes    uint64
	jumpSkips     uint64
	linearFetches uint64
	unavailable   uint64

	progress atomic.Pointer[Progress]
}

// New returns a scanner that extends h up to and including finalHeight.
func New(f Fetcher, h *history.History, finalHeight, jumpSize uint64) *Scanner {
	if jumpSize == 0 {
		jumpSize = DefaultJumpSize
	}
	s := &Scanner{
		fetcher:     f,
		history:     h,
		finalHeight: finalHeight,
		jumpSize:    jumpSize,
		cursor:      h.LastScannedHeight + 1,
	}
	s.publish(false)
	return s
}

// History returns the scanned history.  It must not be used while Run is
// executing.
func (s *Scanner) History() *history.History {
	return s.history
}

// Progress returns the most recently published progress.  It is safe to call
// from any goroutine.
func (s *Scanner) Progress() Progress {
	return *s.progress.Load()
}

func (s *Scanner) publish(running bool) {
	s.progress.Store(&Progress{
		Running:           running,
		Cursor:            s.cursor,
		FinalHeight:       s.finalHeight,
		LastScannedHeight: s.history.LastScannedHeight,
		Boards:            len(s.history.Boards),
		LastBoard:         s.history.Last(),
		JumpProbes:        s.jumpProbes,
		JumpSkips:         s.jumpSkips,
		LinearFetches:     s.linearFetches,
		Unavailable:       s.unavailable,
	})
}

// skipTo marks everything up to and including height as scanned.
func (s *Scanner) skipTo(height uint64) {
	s.history.Advance(height)
	s.cursor = height + 1
}

// probe fetches the board at the jump target.  It returns true when the
// window up to target is unchanged and was skipped, otherwise the board to
// use as a hint, if any.
func (s *Scanner) probe(ctx context.Context, target uint64) (bool, *canvas.Board) {
	log.Debugf("#%v Fast search. History has %v boards", s.cursor,
		len(s.history.Boards))

	s.jumpProbes++
	board, ok := s.fetcher.Fetch(ctx, target)
	if ctx.Err() != nil {
		return false, nil
	}
	if !ok {
		s.unavailable++
		log.Warnf("Jump probe %v: no board available", target)
		return false, nil
	}
	if canvas.StateEqual(s.history.Last(), board) {
		s.jumpSkips++
		s.skipTo(target)
		return true, nil
	}
	return false, board
}

// scanLinear fetches every height from the cursor up to end.  Once the last
// recorded board matches hint the remainder of the window up to target is
// skipped; the board at target is known already.
func (s *Scanner) scanLinear(ctx context.Context, end, target uint64, hint *canvas.Board) {
	log.Debugf("Fetching blocks from %v to %v", s.cursor, end)

	for s.cursor <= end {
		if ctx.Err() != nil {
			return
		}

		height := s.cursor
		s.linearFetches++
		board, ok := s.fetcher.Fetch(ctx, height)
		if ctx.Err() != nil {
			// Interrupted fetches do not count as scanned.
			return
		}
		if ok {
			if s.history.RecordIfChanged(board) {
				log.Infof("Board changed at %v, history has %v "+
					"boards", board.BlockHeight,
					len(s.history.Boards))
			}
			if hint != nil &&
				canvas.StateEqual(s.history.Last(), hint) {
				s.skipTo(target)
				s.publish(true)
				return
			}
		} else {
			s.unavailable++
			log.Warnf("Skipping height %v: no board available", height)
		}

		s.skipTo(height)
		s.publish(true)
	}
}

// Run scans until the final height was scanned or ctx is done.  All progress
// made stays in the history either way.  It returns the context error when
// the scan was interrupted.
func (s *Scanner) Run(ctx context.Context) error {
	log.Infof("Scanning from %v to %v, jump size %v", s.cursor,
		s.finalHeight, s.jumpSize)
	s.publish(true)
	defer s.publish(false)

	for s.cursor <= s.finalHeight {
		if err := ctx.Err(); err != nil {
			return err
		}

		target := s.cursor + s.jumpSize
		var hint *canvas.Board
		if target <= s.finalHeight {
			var skipped bool
			skipped, hint = s.probe(ctx, target)
			if skipped {
				s.publish(true)
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		end := target
		if end > s.finalHeight {
			end = s.finalHeight
		}
		s.scanLinear(ctx, end, target, hint)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	log.Infof("Scan complete at %v: %v boards", s.history.LastScannedHeight,
		len(s.history.Boards))
	return nil
}
