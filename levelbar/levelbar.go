// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package levelbar shows the CO2 level as a one line bar on the terminal
// using ANSI color codes.
//
// The bar is also a 1D display.Drawer so any image row can be pushed to it.
package levelbar

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/display"

	"github.com/GermanBionicSystems/co2node/acquire"
	"github.com/GermanBionicSystems/co2node/scd4x"
)

// Opts represents the options available for the bar.
type Opts struct {
	// Number of cells. Defaults to 40.
	Width int

	// Concentration at which the bar is full. Defaults to 2000 ppm.
	MaxPPM scd4x.PPM

	Palette *ansi256.Palette

	// Output, the colorable stdout when nil.
	W io.Writer
}

// Air quality bands, in ppm.
const (
	Good     scd4x.PPM = 800
	Moderate scd4x.PPM = 1000
	Poor     scd4x.PPM = 1400
)

var (
	green  = color.NRGBA{0x00, 0xc0, 0x00, 0xff}
	yellow = color.NRGBA{0xe0, 0xe0, 0x00, 0xff}
	orange = color.NRGBA{0xff, 0x80, 0x00, 0xff}
	red    = color.NRGBA{0xe0, 0x00, 0x00, 0xff}
	unlit  = color.NRGBA{0x30, 0x30, 0x30, 0xff}
)

// Level returns the color of the band ppm falls in.
func Level(ppm scd4x.PPM) color.NRGBA {
	switch {
	case ppm <= Good:
		return green
	case ppm <= Moderate:
		return yellow
	case ppm <= Poor:
		return orange
	default:
		return red
	}
}

// Dev is a CO2 level bar that outputs to the console.
type Dev struct {
	w       io.Writer
	l       int
	maxPPM  scd4x.PPM
	palette ansi256.Palette

	mu     sync.Mutex
	pixels []byte
	label  string
	buf    bytes.Buffer
}

// New returns a Dev that displays at the console. A nil opts selects the
// defaults.
func New(opts *Opts) *Dev {
	if opts == nil {
		opts = &Opts{}
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	l := opts.Width
	if l <= 0 {
		l = 40
	}
	full := opts.MaxPPM
	if full == 0 {
		full = 2000
	}
	return &Dev{
		w:       w,
		l:       l,
		maxPPM:  full,
		palette: *p,
		pixels:  make([]byte, 3*l),
	}
}

func (d *Dev) String() string {
	return "LevelBar"
}

// Halt implements conn.Resource.
//
// It resets the terminal attributes and ends the line.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\033[0m\n"))
	return err
}

// Report implements acquire.Reporter. The bar is lit up to the measured
// concentration in the color of its band.
func (d *Dev) Report(ctx context.Context, m acquire.Measurement) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	lit := d.cells(m.CO2.CO2)
	c := Level(m.CO2.CO2)
	for i := 0; i < d.l; i++ {
		if i >= lit {
			c = unlit
		}
		d.pixels[3*i] = c.R
		d.pixels[3*i+1] = c.G
		d.pixels[3*i+2] = c.B
	}
	d.label = fmt.Sprintf("%4d ppm %3d°C %3d%%RH %6d Pa", m.CO2.CO2, m.CO2.Temperature, m.CO2.Humidity, m.Pressure.Pressure)
	_, err := d.refresh()
	return err
}

// cells returns the number of lit cells for ppm; any non zero
// concentration lights at least one.
func (d *Dev) cells(ppm scd4x.PPM) int {
	if ppm == 0 {
		return 0
	}
	if ppm >= d.maxPPM {
		return d.l
	}
	n := int(ppm) * d.l / int(d.maxPPM)
	if n == 0 {
		n = 1
	}
	return n
}

// Write accepts a stream of raw RGB pixels and writes it to the console.
func (d *Dev) Write(pixels []byte) (int, error) {
	if len(pixels)%3 != 0 {
		return 0, errors.New("levelbar: invalid RGB stream length")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.pixels, pixels)
	d.label = ""
	return d.refresh()
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{X: d.l, Y: 1}}
}

// Draw implements display.Drawer. Only the first row of src is used.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	r = r.Intersect(d.Bounds())
	srcR := src.Bounds()
	srcR.Min = srcR.Min.Add(sp)
	if dX := r.Dx(); dX < srcR.Dx() {
		srcR.Max.X = srcR.Min.X + dX
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	deltaX3 := 3 * (r.Min.X - srcR.Min.X)
	for sX := srcR.Min.X; sX < srcR.Max.X; sX++ {
		r16, g16, b16, _ := src.At(sX, srcR.Min.Y).RGBA()
		dX3 := 3*sX + deltaX3
		d.pixels[dX3] = byte(r16 >> 8)
		d.pixels[dX3+1] = byte(g16 >> 8)
		d.pixels[dX3+2] = byte(b16 >> 8)
	}
	d.label = ""
	_, err := d.refresh()
	return err
}

// refresh redraws the line in place. d.mu must be held.
func (d *Dev) refresh() (int, error) {
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	for i := 0; i < len(d.pixels)/3; i++ {
		c := color.NRGBA{d.pixels[3*i], d.pixels[3*i+1], d.pixels[3*i+2], 255}
		_, _ = io.WriteString(&d.buf, d.palette.Block(c))
	}
	_, _ = d.buf.WriteString("\033[0m ")
	_, _ = d.buf.WriteString(d.label)
	_, err := d.buf.WriteTo(d.w)
	return len(d.pixels), err
}

var _ display.Drawer = &Dev{}
var _ acquire.Reporter = &Dev{}
