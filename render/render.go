// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package render turns boards into images.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/decred/berryscan/canvas"
	"golang.org/x/image/draw"
)

// DefaultScale is the number of image pixels per board pixel edge.
const DefaultScale = 10

// Image returns b as an opaque Width x Height image.
func Image(b *canvas.Board) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, canvas.Width, canvas.Height))
	for y := 0; y < canvas.Height; y++ {
		for x := 0; x < canvas.Width; x++ {
			r, g, bl := b.At(x, y).RGB()
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: bl, A: 0xff})
		}
	}
	return img
}

// Board returns b upscaled so that every board pixel becomes a scale x scale
// square.
func Board(b *canvas.Board, scale int) (image.Image, error) {
	if scale < 1 {
		return nil, fmt.Errorf("invalid scale %v", scale)
	}
	src := Image(b)
	if scale == 1 {
		return src, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, canvas.Width*scale,
		canvas.Height*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(),
		draw.Src, nil)
	return dst, nil
}

// WritePNG encodes b at the provided scale as PNG to w.
func WritePNG(w io.Writer, b *canvas.Board, scale int) error {
	img, err := Board(b, scale)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// WriteFile renders b into a new PNG file at path.
func WriteFile(path string, b *canvas.Board, scale int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	err = WritePNG(f, b, scale)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("render %v: %w", path, err)
	}
	return nil
}
