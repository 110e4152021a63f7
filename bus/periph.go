// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bus

import (
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// Periph is a Bus backed by a periph.io I²C bus, for example one returned by
// i2creg.Open, or an i2ctest.Playback in tests.
type Periph struct {
	b       i2c.Bus
	timeout time.Duration

	tx sync.Mutex
}

// NewPeriph wraps b. Each transaction is bounded by timeout; zero disables
// the bound.
func NewPeriph(b i2c.Bus, timeout time.Duration) *Periph {
	return &Periph{b: b, timeout: timeout}
}

// Transmit implements Bus.
func (p *Periph) Transmit(addr uint16, w []byte) error {
	return do(addr, p.timeout, &p.tx, func() error {
		return p.b.Tx(addr, w, nil)
	})
}

// TransmitReceive implements Bus. The write and the read are issued as a
// single transaction with a repeated start.
func (p *Periph) TransmitReceive(addr uint16, w []byte, n int) ([]byte, error) {
	r := make([]byte, n)
	err := do(addr, p.timeout, &p.tx, func() error {
		return p.b.Tx(addr, w, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Sleep implements Bus.
func (p *Periph) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (p *Periph) String() string {
	return p.b.String()
}

var _ Bus = &Periph{}
