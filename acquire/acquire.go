// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package acquire runs the node's measurement cycle.
//
// One cycle reads the barometric pressure, feeds it to the CO2 sensor as
// ambient pressure compensation, triggers a single-shot CO2 measurement,
// polls until it is ready and hands the fused result to a Reporter:
//
//	Idle → PressureRead → CompensationSet → Triggered → Polling → ResultReady
//	                                                            ↘ Failed
//
// Cycles are independent; a failed cycle produces no report and leaves
// nothing behind for the next one.
package acquire

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	logger "github.com/d2r2/go-logger"
	"github.com/pkg/errors"

	"github.com/GermanBionicSystems/co2node/bmp580"
	"github.com/GermanBionicSystems/co2node/bus"
	"github.com/GermanBionicSystems/co2node/scd4x"
)

var lg = logger.NewPackageLogger("acquire", logger.InfoLevel)

// ErrNotReady is returned when the CO2 measurement did not become ready
// within the polling budget.
var ErrNotReady = errors.New("acquire: co2 measurement not ready")

// State is the position of the sequencer in the current cycle.
type State int32

const (
	Idle State = iota
	PressureRead
	CompensationSet
	Triggered
	Polling
	ResultReady
	Failed
)

var stateNames = [...]string{"Idle", "PressureRead", "CompensationSet", "Triggered", "Polling", "ResultReady", "Failed"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// PressureSensor is the part of the pressure driver the sequencer uses.
type PressureSensor interface {
	Sense() (bmp580.Reading, error)
}

// CO2Sensor is the part of the CO2 driver the sequencer uses.
type CO2Sensor interface {
	SetAmbientPressure(pa uint32) error
	MeasureSingleShot() error
	DataReady() bool
	ReadMeasurement() (scd4x.Reading, error)
}

// Measurement is the fused result of one successful cycle.
type Measurement struct {
	Time     time.Time
	Pressure bmp580.Reading
	CO2      scd4x.Reading
}

func (m Measurement) String() string {
	return fmt.Sprintf("%s; %s", m.Pressure, m.CO2)
}

// Opts controls the timing of the cycle.
type Opts struct {
	// Number of data ready polls after the first one.
	PollRetries int

	// Sleep before each data ready poll.
	PollInterval time.Duration

	// Sleep between cycles in Run.
	CycleInterval time.Duration
}

// DefaultOpts polls once a second for up to 21 seconds and starts a new
// cycle every 10 seconds.
var DefaultOpts = Opts{
	PollRetries:   20,
	PollInterval:  time.Second,
	CycleInterval: 10 * time.Second,
}

// Sequencer owns both drivers for its lifetime and issues every bus
// transaction from the goroutine calling Cycle or Run.
type Sequencer struct {
	pressure PressureSensor
	co2      CO2Sensor
	reporter Reporter
	opts     Opts
	state    atomic.Int32

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New returns a Sequencer. A nil opts selects DefaultOpts; a nil reporter
// discards results.
func New(p PressureSensor, c CO2Sensor, r Reporter, opts *Opts) *Sequencer {
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	if o.PollRetries < 0 {
		o.PollRetries = 0
	}
	if r == nil {
		r = Reporters{}
	}
	return &Sequencer{
		pressure: p,
		co2:      c,
		reporter: r,
		opts:     o,
		sleep:    sleep,
		now:      time.Now,
	}
}

// State returns the state reached by the current or last cycle. Safe to
// call from any goroutine.
func (s *Sequencer) State() State {
	return State(s.state.Load())
}

func (s *Sequencer) setState(st State) {
	lg.Debugf("%s → %s", s.State(), st)
	s.state.Store(int32(st))
}

// Cycle runs one measurement cycle. On success the measurement has been
// handed to the reporter, whose errors are logged and otherwise ignored.
// ctx only interrupts the sleeps between polls.
func (s *Sequencer) Cycle(ctx context.Context) (Measurement, error) {
	s.setState(Idle)

	p, err := s.pressure.Sense()
	if err != nil {
		return s.fail(errors.Wrap(err, "acquire: read pressure"))
	}
	s.setState(PressureRead)

	// A stale compensation value is better than no measurement at all.
	if err := s.co2.SetAmbientPressure(p.Pressure); err != nil {
		lg.Warningf("set ambient pressure failed (%s), keeping previous compensation: %v", bus.StatusOf(err), err)
	}
	s.setState(CompensationSet)

	if err := s.co2.MeasureSingleShot(); err != nil {
		return s.fail(errors.Wrap(err, "acquire: trigger co2 measurement"))
	}
	s.setState(Triggered)

	s.setState(Polling)
	attempts := 0
	ready := false
	for !ready && attempts <= s.opts.PollRetries {
		if err := s.sleep(ctx, s.opts.PollInterval); err != nil {
			return s.fail(err)
		}
		attempts++
		ready = s.co2.DataReady()
	}
	if !ready {
		return s.fail(errors.Wrapf(ErrNotReady, "after %d polls", attempts))
	}
	lg.Debugf("co2 measurement ready after %d polls", attempts)

	c, err := s.co2.ReadMeasurement()
	if err != nil {
		return s.fail(errors.Wrap(err, "acquire: read co2 measurement"))
	}
	m := Measurement{Time: s.now(), Pressure: p, CO2: c}
	s.setState(ResultReady)
	lg.Infof("%s", m)

	if err := s.reporter.Report(ctx, m); err != nil {
		lg.Warningf("report: %v", err)
	}
	return m, nil
}

func (s *Sequencer) fail(err error) (Measurement, error) {
	s.setState(Failed)
	lg.Warningf("cycle failed: %v", err)
	return Measurement{}, err
}

// Run repeats Cycle, CycleInterval apart, until ctx is cancelled. It
// always returns ctx's error.
func (s *Sequencer) Run(ctx context.Context) error {
	for {
		_, _ = s.Cycle(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.opts.CycleInterval); err != nil {
			return err
		}
	}
}

// sleep blocks for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
