// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bus

import (
	"fmt"
	"sync"
	"time"

	i2c "github.com/d2r2/go-i2c"
	"github.com/pkg/errors"
)

// I2CDev is a Bus backed by the Linux i2c-dev character device
// (/dev/i2c-N). It does not need periph's host drivers, which makes it
// usable on boards periph does not detect.
//
// The kernel interface binds one file descriptor to one slave address, so a
// connection is opened lazily per address and kept until Close.
type I2CDev struct {
	number  int
	timeout time.Duration
	tx      sync.Mutex

	mu    sync.Mutex
	conns map[uint16]*i2c.I2C
}

// OpenI2CDev returns a Bus for /dev/i2c-<number>.
func OpenI2CDev(number int, timeout time.Duration) *I2CDev {
	return &I2CDev{number: number, timeout: timeout, conns: map[uint16]*i2c.I2C{}}
}

func (b *I2CDev) conn(addr uint16) (*i2c.I2C, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.conns[addr]; ok {
		return c, nil
	}
	if addr > 0x7f {
		return nil, errors.Errorf("bus: invalid 7-bit address 0x%x", addr)
	}
	c, err := i2c.NewI2C(uint8(addr), b.number)
	if err != nil {
		return nil, errors.Wrapf(err, "bus: open /dev/i2c-%d addr 0x%02x", b.number, addr)
	}
	b.conns[addr] = c
	return c, nil
}

// Transmit implements Bus.
func (b *I2CDev) Transmit(addr uint16, w []byte) error {
	c, err := b.conn(addr)
	if err != nil {
		return &TxError{Status: StatusError, Addr: addr, Err: err}
	}
	return do(addr, b.timeout, &b.tx, func() error {
		return write(c, w)
	})
}

// TransmitReceive implements Bus. i2c-dev read and write calls each issue
// their own start condition, so the register pointer write and the read are
// two back to back messages.
func (b *I2CDev) TransmitReceive(addr uint16, w []byte, n int) ([]byte, error) {
	c, err := b.conn(addr)
	if err != nil {
		return nil, &TxError{Status: StatusError, Addr: addr, Err: err}
	}
	r := make([]byte, n)
	err = do(addr, b.timeout, &b.tx, func() error {
		if len(w) > 0 {
			if err := write(c, w); err != nil {
				return err
			}
		}
		got, err := c.ReadBytes(r)
		if err != nil {
			return err
		}
		if got != n {
			return errors.Errorf("short read %d of %d bytes", got, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func write(c *i2c.I2C, w []byte) error {
	n, err := c.WriteBytes(w)
	if err != nil {
		return err
	}
	if n != len(w) {
		return errors.Errorf("short write %d of %d bytes", n, len(w))
	}
	return nil
}

// Sleep implements Bus.
func (b *I2CDev) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Close releases every open connection.
func (b *I2CDev) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var first error
	for addr, c := range b.conns {
		if err := c.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "bus: close addr 0x%02x", addr)
		}
		delete(b.conns, addr)
	}
	return first
}

func (b *I2CDev) String() string {
	return fmt.Sprintf("i2c-dev-%d", b.number)
}

var _ Bus = &I2CDev{}
