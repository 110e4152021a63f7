// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package panel renders measurements onto a small display, typically a
// 128x64 SSD1306 OLED.
//
// The layout is the CO2 concentration in a large font, temperature,
// humidity and pressure below it and a level bar along the bottom edge.
package panel

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"periph.io/x/conn/v3/display"

	"github.com/GermanBionicSystems/co2node/acquire"
	"github.com/GermanBionicSystems/co2node/scd4x"
)

// Opts controls the rendering.
type Opts struct {
	// Concentration at which the level bar is full. Defaults to 2000 ppm.
	MaxPPM scd4x.PPM

	// Font sizes in points. Default to 20 and 11.
	LargeSize, SmallSize float64

	// Debug, when set, is consulted on every frame and a marker is drawn
	// while it returns true.
	Debug func() bool
}

// BarHeight is the height of the level bar in pixels.
const BarHeight = 6

// Panel is an acquire.Reporter drawing on a display.
type Panel struct {
	dst    display.Drawer
	maxPPM scd4x.PPM
	debug  func() bool

	mu    sync.Mutex
	dc    *gg.Context
	large font.Face
	small font.Face
}

// New returns a Panel drawing on dst. A nil opts selects the defaults.
func New(dst display.Drawer, opts *Opts) (*Panel, error) {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, errors.Wrap(err, "panel: font")
	}
	var o Opts
	if opts != nil {
		o = *opts
	}
	if o.MaxPPM == 0 {
		o.MaxPPM = 2000
	}
	if o.LargeSize == 0 {
		o.LargeSize = 20
	}
	if o.SmallSize == 0 {
		o.SmallSize = 11
	}
	b := dst.Bounds()
	if b.Dx() <= 0 || b.Dy() <= BarHeight {
		return nil, errors.Errorf("panel: display %v too small", b)
	}
	return &Panel{
		dst:    dst,
		maxPPM: o.MaxPPM,
		debug:  o.Debug,
		dc:     gg.NewContext(b.Dx(), b.Dy()),
		large:  truetype.NewFace(f, &truetype.Options{Size: o.LargeSize}),
		small:  truetype.NewFace(f, &truetype.Options{Size: o.SmallSize}),
	}, nil
}

func (p *Panel) String() string {
	return fmt.Sprintf("panel{%s}", p.dst)
}

// Render draws m and returns the frame. The image is reused by the next
// call.
func (p *Panel) Render(m acquire.Measurement) image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.render(m)
}

func (p *Panel) render(m acquire.Measurement) image.Image {
	dc := p.dc
	w := float64(dc.Width())
	h := float64(dc.Height())
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.SetRGB(1, 1, 1)

	dc.SetFontFace(p.large)
	dc.DrawStringAnchored(fmt.Sprintf("%d ppm", m.CO2.CO2), 0, 0, 0, 1)

	if p.debug != nil && p.debug() {
		dc.SetFontFace(p.small)
		dc.DrawStringAnchored("DBG", w, 0, 1, 1)
	}

	dc.SetFontFace(p.small)
	line := fmt.Sprintf("%.1f°C %d%% %d hPa", m.Pressure.Temperature, m.CO2.Humidity, m.Pressure.Pressure/100)
	dc.DrawStringAnchored(line, 0, h-BarHeight-2, 0, 0)

	if n := p.barWidth(m.CO2.CO2); n > 0 {
		dc.DrawRectangle(0, h-BarHeight, float64(n), BarHeight)
		dc.Fill()
	}
	return dc.Image()
}

// barWidth returns the lit width of the level bar for ppm.
func (p *Panel) barWidth(ppm scd4x.PPM) int {
	w := p.dc.Width()
	if ppm >= p.maxPPM {
		return w
	}
	return int(ppm) * w / int(p.maxPPM)
}

// Report implements acquire.Reporter.
func (p *Panel) Report(ctx context.Context, m acquire.Measurement) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	img := p.render(m)
	if err := p.dst.Draw(p.dst.Bounds(), img, image.Point{}); err != nil {
		return errors.Wrapf(err, "panel: draw on %s", p.dst)
	}
	return nil
}

// Clear blanks the display.
func (p *Panel) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dc.SetRGB(0, 0, 0)
	p.dc.Clear()
	return p.dst.Draw(p.dst.Bounds(), p.dc.Image(), image.Point{})
}

var _ acquire.Reporter = &Panel{}
