// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package panel

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/GermanBionicSystems/co2node/acquire"
	"github.com/GermanBionicSystems/co2node/bmp580"
	"github.com/GermanBionicSystems/co2node/scd4x"
)

// fakeDisplay keeps a copy of the last frame.
type fakeDisplay struct {
	frame *image.RGBA
	draws int
	err   error
}

func newFakeDisplay(w, h int) *fakeDisplay {
	return &fakeDisplay{frame: image.NewRGBA(image.Rect(0, 0, w, h))}
}

func (f *fakeDisplay) String() string          { return "fake" }
func (f *fakeDisplay) Halt() error             { return nil }
func (f *fakeDisplay) ColorModel() color.Model { return color.RGBAModel }
func (f *fakeDisplay) Bounds() image.Rectangle { return f.frame.Bounds() }

func (f *fakeDisplay) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	if f.err != nil {
		return f.err
	}
	f.draws++
	draw.Draw(f.frame, r, src, sp, draw.Src)
	return nil
}

var testMeasurement = acquire.Measurement{
	Pressure: bmp580.Reading{Pressure: 101325, Temperature: 21.3},
	CO2:      scd4x.Reading{CO2: 812, Temperature: 22, Humidity: 45},
}

func lit(img image.Image, x, y int) bool {
	r, g, b, _ := img.At(x, y).RGBA()
	return r+g+b > 3*0x8000
}

// anyLit reports whether any pixel of r is lit.
func anyLit(img image.Image, r image.Rectangle) bool {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if lit(img, x, y) {
				return true
			}
		}
	}
	return false
}

func TestReport(t *testing.T) {
	d := newFakeDisplay(128, 64)
	p, err := New(d, &Opts{})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Report(context.Background(), testMeasurement); err != nil {
		t.Fatal(err)
	}
	if d.draws != 1 {
		t.Fatalf("%d draws, want 1", d.draws)
	}
	// 812 ppm of 2000 on 128 pixels.
	if w := p.barWidth(812); w != 51 {
		t.Errorf("bar width %d, want 51", w)
	}
	if !lit(d.frame, 0, 61) || !lit(d.frame, 50, 61) {
		t.Error("level bar not drawn")
	}
	if lit(d.frame, 51, 61) || lit(d.frame, 127, 61) {
		t.Error("level bar too long")
	}
	if !anyLit(d.frame, image.Rect(0, 0, 64, 20)) {
		t.Error("concentration not drawn")
	}
	if anyLit(d.frame, image.Rect(100, 0, 128, 12)) {
		t.Error("unexpected debug marker")
	}
}

func TestReportDebug(t *testing.T) {
	d := newFakeDisplay(128, 64)
	p, err := New(d, &Opts{Debug: func() bool { return true }})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Report(context.Background(), testMeasurement); err != nil {
		t.Fatal(err)
	}
	if !anyLit(d.frame, image.Rect(100, 0, 128, 12)) {
		t.Error("debug marker not drawn")
	}
}

func TestBarFull(t *testing.T) {
	p, err := New(newFakeDisplay(128, 64), &Opts{MaxPPM: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if w := p.barWidth(5000); w != 128 {
		t.Errorf("bar width %d, want 128", w)
	}
	if w := p.barWidth(0); w != 0 {
		t.Errorf("bar width %d, want 0", w)
	}
}

func TestReportError(t *testing.T) {
	d := newFakeDisplay(128, 64)
	d.err = errors.New("i2c nack")
	p, err := New(d, &Opts{})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Report(context.Background(), testMeasurement); err == nil {
		t.Error("expected error")
	}
}

func TestClear(t *testing.T) {
	d := newFakeDisplay(128, 64)
	p, err := New(d, &Opts{})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Report(context.Background(), testMeasurement); err != nil {
		t.Fatal(err)
	}
	if err := p.Clear(); err != nil {
		t.Fatal(err)
	}
	if anyLit(d.frame, d.frame.Bounds()) {
		t.Error("display not cleared")
	}
}

func TestNewTooSmall(t *testing.T) {
	if _, err := New(newFakeDisplay(128, 4), &Opts{}); err == nil {
		t.Error("expected error")
	}
}

func TestRender(t *testing.T) {
	p, err := New(newFakeDisplay(128, 32), &Opts{})
	if err != nil {
		t.Fatal(err)
	}
	img := p.Render(testMeasurement)
	if got := img.Bounds(); got != image.Rect(0, 0, 128, 32) {
		t.Errorf("got bounds %v", got)
	}
}

func TestNewNilOpts(t *testing.T) {
	p, err := New(newFakeDisplay(128, 64), nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.maxPPM != 2000 || p.debug != nil {
		t.Errorf("got maxPPM %d", p.maxPPM)
	}
	if w := p.barWidth(1000); w != 64 {
		t.Errorf("bar width %d, want 64", w)
	}
}
