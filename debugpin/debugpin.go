// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package debugpin watches a jumper or switch that marks the node's data as
// debug data.
//
// The input is pulled up and active low: shorting it to ground raises the
// flag. An optional status LED is driven with the inverse of the flag, so
// it is lit during normal operation and goes dark in debug mode.
package debugpin

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	logger "github.com/d2r2/go-logger"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
)

var lg = logger.NewPackageLogger("debugpin", logger.InfoLevel)

// DefaultInterval between two samples of the input.
const DefaultInterval = time.Second

// Poller samples the input pin periodically. The flag it publishes may be
// read from any goroutine.
type Poller struct {
	in       gpio.PinIn
	led      gpio.PinOut
	interval time.Duration
	flag     atomic.Bool
}

// New configures in as a pulled up input and returns a Poller. led may be
// nil. A zero interval selects DefaultInterval.
func New(in gpio.PinIn, led gpio.PinOut, interval time.Duration) (*Poller, error) {
	if in == nil {
		return nil, errors.New("debugpin: no input pin")
	}
	if err := in.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, errors.Wrapf(err, "debugpin: configure %s", in)
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{in: in, led: led, interval: interval}, nil
}

// Enabled returns the last sampled state of the flag.
func (p *Poller) Enabled() bool {
	return p.flag.Load()
}

// Poll samples the input once, publishes the flag and updates the LED.
func (p *Poller) Poll() bool {
	on := p.in.Read() == gpio.Low
	if p.flag.Swap(on) != on {
		lg.Infof("debug flag %t", on)
	}
	if p.led != nil {
		if err := p.led.Out(gpio.Level(!on)); err != nil {
			lg.Warningf("led %s: %v", p.led, err)
		}
	}
	return on
}

// Run samples the input immediately and then every interval until ctx is
// done.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		p.Poll()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (p *Poller) String() string {
	return fmt.Sprintf("debugpin{%s}", p.in)
}
