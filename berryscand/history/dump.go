// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package history

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/decred/berryscan/canvas"
)

// Record types.
const (
	RecordTypeHistory = "history"
	RecordTypeBoard   = "board"

	RecordTypeVersion = 1
)

// RecordType indicates what the next record is in a dump stream.
type RecordType struct {
	Version uint   `json:"version"` // Version of RecordType
	Type    string `json:"type"`    // Type of record
}

// HistoryRecord describes the dumped history.
type HistoryRecord struct {
	Boards            int    `json:"boards"`
	LastScannedHeight uint64 `json:"lastscannedheight"`
}

// BoardRecord is a dumped board.  Changed is the number of pixels that differ
// from the previous board.
type BoardRecord struct {
	Index   int           `json:"index"`
	Changed int           `json:"changed"`
	Board   *canvas.Board `json:"board"`
}

func dumpRecord(e *json.Encoder, recordType string, payload interface{}) error {
	err := e.Encode(RecordType{
		Version: RecordTypeVersion,
		Type:    recordType,
	})
	if err != nil {
		return err
	}
	return e.Encode(payload)
}

// Dump writes h to w.  If human is set it pretty prints a summary per board,
// otherwise it writes a JSON stream of records each prefixed by its
// RecordType.
func Dump(w io.Writer, h *History, human bool) error {
	if human {
		fmt.Fprintf(w, "Boards             : %v\n", len(h.Boards))
		fmt.Fprintf(w, "Last scanned height: %v\n", h.LastScannedHeight)
	} else {
		e := json.NewEncoder(w)
		err := dumpRecord(e, RecordTypeHistory, HistoryRecord{
			Boards:            len(h.Boards),
			LastScannedHeight: h.LastScannedHeight,
		})
		if err != nil {
			return err
		}
	}

	var prev *canvas.Board
	for i, b := range h.Boards {
		changed := canvas.TotalPixels
		if prev != nil {
			changed = canvas.Diff(prev, b)
		}
		prev = b

		if human {
			_, err := fmt.Fprintf(w, "%6v  height %-10v changed %v\n",
				i, b.BlockHeight, changed)
			if err != nil {
				return err
			}
			continue
		}

		err := dumpRecord(json.NewEncoder(w), RecordTypeBoard,
			BoardRecord{
				Index:   i,
				Changed: changed,
				Board:   b,
			})
		if err != nil {
			return err
		}
	}

	return nil
}
