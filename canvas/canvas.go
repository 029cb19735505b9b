// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package canvas defines the Berry Club board model shared by the scanner,
// the checkpoint store and the rendering tools.
package canvas

const (
	// Width is the number of pixels in a board row.
	Width = 50

	// Height is the number of rows in a board.
	Height = 50

	// TotalPixels is the number of pixels on a board.
	TotalPixels = Width * Height
)

// Pixel is a single board cell.  Color is a 24 bit RGB value packed as
// 0xRRGGBB and OwnerID identifies the account that last painted the cell.
type Pixel struct {
	Color   uint32 `json:"color"`
	OwnerID uint32 `json:"ownerid"`
}

// RGB returns the red, green and blue components of the pixel color.
func (p Pixel) RGB() (uint8, uint8, uint8) {
	return uint8(p.Color >> 16), uint8(p.Color >> 8), uint8(p.Color)
}

// Board is the full canvas as observed at a ledger height.  Rows are
// addressed top to bottom starting at 0.
type Board struct {
	Pixels      [Height][Width]Pixel `json:"pixels"`
	BlockHeight uint64               `json:"blockheight"`
}

// NewBoard returns a board with all pixels set to the default pixel.
func NewBoard(blockHeight uint64) *Board {
	return &Board{BlockHeight: blockHeight}
}

// At returns the pixel at column x of row y.
func (b *Board) At(x, y int) Pixel {
	return b.Pixels[y][x]
}

// Set overwrites the pixel at column x of row y.
func (b *Board) Set(x, y int, p Pixel) {
	b.Pixels[y][x] = p
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() *Board {
	c := *b
	return &c
}

// StateEqual reports whether both boards carry the same pixel grid.  Block
// heights are not compared.
func StateEqual(a, b *Board) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Pixels == b.Pixels
}

// Diff returns the number of pixels that differ between both boards.
func Diff(a, b *Board) int {
	var n int
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if a.Pixels[y][x] != b.Pixels[y][x] {
				n++
			}
		}
	}
	return n
}
