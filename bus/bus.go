// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bus is the byte transport the node's drivers talk through.
//
// A Bus moves bytes to and from a 7-bit addressed device and can sleep
// between transactions. Every transaction is bounded by the timeout the
// backend was opened with; a transaction that fails reports one of a small
// closed set of outcomes (see Status) so drivers stay independent of the
// platform's own error values.
package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Status is the outcome class of a bus transaction.
type Status int

const (
	StatusOK Status = iota
	// The bus was busy or the device did not answer in time. Always
	// retryable.
	StatusTimeout
	// Transport level failure, for example a NACK.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

var (
	// ErrTimeout matches any error produced by a timed out transaction.
	ErrTimeout = errors.New("bus: timeout")
	// ErrBus matches any transport level failure.
	ErrBus = errors.New("bus: transfer failed")
	// ErrChecksum is returned by drivers when a reply CRC does not match
	// the received data.
	ErrChecksum = errors.New("bus: checksum mismatch")
)

// Bus is implemented by the transport backends.
type Bus interface {
	// Transmit writes w to the device at addr.
	Transmit(addr uint16, w []byte) error
	// TransmitReceive writes w then reads n bytes in one transaction.
	TransmitReceive(addr uint16, w []byte, n int) ([]byte, error)
	// Sleep blocks the caller for d.
	Sleep(d time.Duration)
}

// Dev is a device handle: a bus and the address of one device on it. Each
// driver owns exactly one.
type Dev struct {
	Bus  Bus
	Addr uint16
}

// Transmit writes w to the device.
func (d *Dev) Transmit(w []byte) error {
	return d.Bus.Transmit(d.Addr, w)
}

// TransmitReceive writes w and reads n bytes back from the device.
func (d *Dev) TransmitReceive(w []byte, n int) ([]byte, error) {
	return d.Bus.TransmitReceive(d.Addr, w, n)
}

// Sleep blocks for dur using the bus' sleep primitive.
func (d *Dev) Sleep(dur time.Duration) {
	d.Bus.Sleep(dur)
}

func (d *Dev) String() string {
	if s, ok := d.Bus.(fmt.Stringer); ok {
		return fmt.Sprintf("%s(0x%02x)", s.String(), d.Addr)
	}
	return fmt.Sprintf("bus(0x%02x)", d.Addr)
}

// TxError describes a failed transaction. It matches ErrTimeout or ErrBus
// with errors.Is depending on Status.
type TxError struct {
	Status Status
	Addr   uint16
	Err    error
}

func (e *TxError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("bus: addr 0x%02x: %s", e.Addr, e.Status)
	}
	return fmt.Sprintf("bus: addr 0x%02x: %s: %v", e.Addr, e.Status, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's status.
func (e *TxError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Status == StatusTimeout
	case ErrBus:
		return e.Status == StatusError
	}
	return false
}

// StatusOf classifies err. nil is StatusOK, anything matching ErrTimeout is
// StatusTimeout and every other error is StatusError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	if errors.Is(err, ErrTimeout) {
		return StatusTimeout
	}
	return StatusError
}

// do runs fn under tx and bounds it by timeout. A zero timeout waits
// forever.
//
// The underlying transfer cannot be aborted; on timeout it is left to
// complete in the background and its result is discarded. It keeps holding
// tx until it returns, so the next transaction on the same bus waits for it
// instead of overlapping it on the wire.
func do(addr uint16, timeout time.Duration, tx *sync.Mutex, fn func() error) error {
	run := func() error {
		tx.Lock()
		defer tx.Unlock()
		return fn()
	}
	if timeout <= 0 {
		if err := run(); err != nil {
			return &TxError{Status: StatusError, Addr: addr, Err: err}
		}
		return nil
	}
	ch := make(chan error, 1)
	go func() {
		ch <- run()
	}()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case err := <-ch:
		if err != nil {
			return &TxError{Status: StatusError, Addr: addr, Err: err}
		}
		return nil
	case <-t.C:
		return &TxError{Status: StatusTimeout, Addr: addr}
	}
}
