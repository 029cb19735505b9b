// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package canvas

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// The binary layout follows the borsh rules used by the Berry Club contract
// and older checkpoint files: little endian fixed width integers,
// sequences prefixed with a u32 element count and no padding.
const (
	pixelSize = 8
	rowSize   = 4 + Width*pixelSize

	// BoardSize is the encoded size of a board.
	BoardSize = 4 + Height*rowSize + 8
)

var (
	// ErrShortBuffer is returned when the input ends in the middle of a
	// value.
	ErrShortBuffer = errors.New("short buffer")

	// ErrTrailingBytes is returned when a complete value was decoded but
	// input remains.
	ErrTrailingBytes = errors.New("trailing bytes")
)

// Decoder reads borsh encoded values from a byte slice.  The first error
// sticks; every later read returns zero values.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder returns a decoder reading from b.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Err returns the first error encountered.
func (d *Decoder) Err() error {
	return d.err
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

// Finish returns the sticky error or ErrTrailingBytes when input was left
// unread.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.Remaining() != 0 {
		return fmt.Errorf("%w: %v", ErrTrailingBytes, d.Remaining())
	}
	return nil
}

func (d *Decoder) next(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.Remaining() < n {
		d.err = fmt.Errorf("%w: need %v bytes at offset %v, have %v",
			ErrShortBuffer, n, d.off, d.Remaining())
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

// Uint32 reads a little endian u32.
func (d *Decoder) Uint32() uint32 {
	b := d.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Uint64 reads a little endian u64.
func (d *Decoder) Uint64() uint64 {
	b := d.next(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Fail records err unless an error was already recorded.
func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Row reads a length prefixed pixel row into row.  A zero length row is a
// row that was never written and leaves row at default pixels.
func (d *Decoder) Row(row *[Width]Pixel) {
	n := d.Uint32()
	if d.err != nil {
		return
	}
	switch n {
	case 0:
		*row = [Width]Pixel{}
		return
	case Width:
	default:
		d.Fail(fmt.Errorf("invalid row length: got %v want %v", n,
			Width))
		return
	}
	for i := range row {
		row[i].Color = d.Uint32()
		row[i].OwnerID = d.Uint32()
	}
}

// Board reads a board.
func (d *Decoder) Board() *Board {
	n := d.Uint32()
	if d.err != nil {
		return nil
	}
	if n != Height {
		d.Fail(fmt.Errorf("invalid row count: got %v want %v", n,
			Height))
		return nil
	}
	b := new(Board)
	for y := range b.Pixels {
		d.Row(&b.Pixels[y])
	}
	b.BlockHeight = d.Uint64()
	if d.err != nil {
		return nil
	}
	return b
}

// AppendUint32 appends the little endian encoding of v to buf.
func AppendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

// AppendUint64 appends the little endian encoding of v to buf.
func AppendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// AppendRow appends the encoding of a full width row to buf.
func AppendRow(buf []byte, row *[Width]Pixel) []byte {
	buf = AppendUint32(buf, Width)
	for _, p := range row {
		buf = AppendUint32(buf, p.Color)
		buf = AppendUint32(buf, p.OwnerID)
	}
	return buf
}

// AppendBoard appends the encoding of b to buf.
func AppendBoard(buf []byte, b *Board) []byte {
	buf = AppendUint32(buf, Height)
	for y := range b.Pixels {
		buf = AppendRow(buf, &b.Pixels[y])
	}
	return AppendUint64(buf, b.BlockHeight)
}

// DecodeRow decodes a single encoded row, as stored by the contract.
func DecodeRow(payload []byte) ([Width]Pixel, error) {
	var row [Width]Pixel
	d := NewDecoder(payload)
	d.Row(&row)
	if err := d.Finish(); err != nil {
		return [Width]Pixel{}, err
	}
	return row, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (b *Board) MarshalBinary() ([]byte, error) {
	return AppendBoard(make([]byte, 0, BoardSize), b), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (b *Board) UnmarshalBinary(payload []byte) error {
	d := NewDecoder(payload)
	nb := d.Board()
	if err := d.Finish(); err != nil {
		return err
	}
	*b = *nb
	return nil
}
