// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package render draws thermometer readings as images: a bar chart panel
// suitable for a PNG or a display, and a one pixel high strip for
// screen1d.
package render

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"periph.io/x/conn/v3/physic"
)

// Reading is one row of the panel.
type Reading struct {
	Label string
	Temp  physic.Temperature
	// Err marks a failed reading; Temp is ignored.
	Err error
}

// Opts contains options for Panel.
type Opts struct {
	Width, Height int
	// Low and High are the temperatures mapped to an empty and a full bar.
	Low, High physic.Temperature
	// FontSize is in points.
	FontSize float64
	Title    string
}

// DefaultOpts fits a 320x240 display.
var DefaultOpts = Opts{
	Width:    320,
	Height:   240,
	Low:      physic.ZeroCelsius - 10*physic.Celsius,
	High:     physic.ZeroCelsius + 40*physic.Celsius,
	FontSize: 12,
}

// Background and Failed are the colors of the panel background and of the
// bar of a failed reading.
var (
	Background = color.NRGBA{0x20, 0x20, 0x20, 0xff}
	Failed     = color.NRGBA{0x60, 0x60, 0x60, 0xff}
)

// Layout returns where Panel draws the bar of the i-th of n readings. A bar
// may be shorter than the returned rectangle.
func Layout(opts *Opts, i, n int) image.Rectangle {
	header := 0
	if opts.Title != "" {
		header = int(2 * opts.FontSize)
	}
	row := (opts.Height - header) / n
	x0 := opts.Width / 3
	y0 := header + i*row
	return image.Rect(x0, y0+row/4, opts.Width-4, y0+row-row/4)
}

// Panel draws one horizontal bar per reading, colored with Gradient, and
// the label and temperature on its left.
func Panel(readings []Reading, opts *Opts) (image.Image, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("render: invalid size %dx%d", opts.Width, opts.Height)
	}
	if opts.High <= opts.Low {
		return nil, fmt.Errorf("render: invalid range %s to %s", opts.Low, opts.High)
	}
	face, err := fontFace(opts.FontSize)
	if err != nil {
		return nil, err
	}
	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(Background)
	dc.Clear()
	dc.SetFontFace(face)
	if opts.Title != "" {
		dc.SetColor(color.White)
		dc.DrawStringAnchored(opts.Title, float64(opts.Width)/2, opts.FontSize, 0.5, 0.5)
	}
	for i, r := range readings {
		b := Layout(opts, i, len(readings))
		text := r.Label + " "
		if r.Err != nil {
			text += "error"
			dc.SetColor(Failed)
			dc.DrawRectangle(float64(b.Min.X), float64(b.Min.Y), float64(b.Dx()), float64(b.Dy()))
		} else {
			text += celsius(r.Temp)
			dc.SetColor(Gradient(r.Temp, opts.Low, opts.High))
			w := float64(b.Dx()) * fraction(r.Temp, opts.Low, opts.High)
			if w < 1 {
				w = 1
			}
			dc.DrawRectangle(float64(b.Min.X), float64(b.Min.Y), w, float64(b.Dy()))
		}
		dc.Fill()
		dc.SetColor(color.White)
		dc.DrawStringAnchored(text, 4, float64(b.Min.Y+b.Max.Y)/2, 0, 0.5)
	}
	return dc.Image(), nil
}

// EncodePNG writes img as a PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	dc := gg.NewContextForImage(img)
	return dc.EncodePNG(w)
}

// Strip returns a n×1 image with the Gradient color of each temperature,
// for screen1d.
func Strip(temps []physic.Temperature, low, high physic.Temperature) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, len(temps), 1))
	for i, t := range temps {
		img.SetNRGBA(i, 0, Gradient(t, low, high))
	}
	return img
}

// Gradient maps t to a color going from blue at low through green to red at
// high. Values out of range are clamped.
func Gradient(t, low, high physic.Temperature) color.NRGBA {
	f := fraction(t, low, high)
	if f < 0.5 {
		g := uint8(510 * f)
		return color.NRGBA{0, g, 255 - g, 0xff}
	}
	r := uint8(510 * (f - 0.5))
	return color.NRGBA{r, 255 - r, 0, 0xff}
}

//

func fraction(t, low, high physic.Temperature) float64 {
	switch {
	case t <= low:
		return 0
	case t >= high:
		return 1
	}
	return float64(t-low) / float64(high-low)
}

func celsius(t physic.Temperature) string {
	return fmt.Sprintf("%.2f°C", float64(t-physic.ZeroCelsius)/float64(physic.Celsius))
}

var (
	fontOnce sync.Once
	fontErr  error
	goFont   *truetype.Font
)

func fontFace(size float64) (font.Face, error) {
	fontOnce.Do(func() {
		goFont, fontErr = truetype.Parse(goregular.TTF)
	})
	if fontErr != nil {
		return nil, fmt.Errorf("render: %w", fontErr)
	}
	return truetype.NewFace(goFont, &truetype.Options{Size: size}), nil
}
