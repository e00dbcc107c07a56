// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package screen1d shows a row of colored blocks on an ANSI terminal, one
// per pixel of a n×1 image, followed by a caption.
//
// The dsfamily tool uses it to show every thermometer of a bus on a single
// refreshed line.
package screen1d

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/display"
)

// Opts represents the options available for this display.
type Opts struct {
	// X is the number of blocks.
	X       int
	Palette *ansi256.Palette
}

// Dev is a one line terminal display.
type Dev struct {
	w       io.Writer
	palette ansi256.Palette
	pixels  []color.NRGBA
	caption string
	buf     bytes.Buffer
}

// New returns a Dev that writes to w, or to a colorable stdout if w is nil.
func New(w io.Writer, opts *Opts) *Dev {
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	return &Dev{w: w, palette: *p, pixels: make([]color.NRGBA, opts.X)}
}

func (d *Dev) String() string {
	return "Screen1D"
}

// Halt implements conn.Resource.
//
// It resets the terminal colors and ends the line.
func (d *Dev) Halt() error {
	_, err := io.WriteString(d.w, "\033[0m\n")
	return err
}

// SetCaption sets the text shown after the blocks on the next refresh.
func (d *Dev) SetCaption(s string) {
	d.caption = s
}

// Write accepts a stream of raw RGB pixels and refreshes the line.
func (d *Dev) Write(pixels []byte) (int, error) {
	if len(pixels)%3 != 0 {
		return 0, errors.New("screen1d: invalid RGB stream length")
	}
	for i := 0; i < len(d.pixels) && 3*i < len(pixels); i++ {
		d.pixels[i] = color.NRGBA{pixels[3*i], pixels[3*i+1], pixels[3*i+2], 255}
	}
	if err := d.refresh(); err != nil {
		return 0, err
	}
	return len(pixels), nil
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rect(0, 0, len(d.pixels), 1)
}

// Draw implements display.Drawer. Only the first row of src is used.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	r = r.Intersect(d.Bounds())
	for x := r.Min.X; x < r.Max.X; x++ {
		p := image.Pt(sp.X+x-r.Min.X, sp.Y)
		if !p.In(src.Bounds()) {
			break
		}
		d.pixels[x] = color.NRGBAModel.Convert(src.At(p.X, p.Y)).(color.NRGBA)
	}
	return d.refresh()
}

func (d *Dev) refresh() error {
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	for _, c := range d.pixels {
		_, _ = d.buf.WriteString(d.palette.Block(c))
	}
	_, _ = d.buf.WriteString("\033[0m ")
	_, _ = d.buf.WriteString(d.caption)
	// Erase what a longer caption left.
	_, _ = d.buf.WriteString("\033[K")
	_, err := d.buf.WriteTo(d.w)
	return err
}

var _ display.Drawer = &Dev{}
