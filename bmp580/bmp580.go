// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bmp580

import (
	"fmt"
	"sync"
	"time"

	logger "github.com/d2r2/go-logger"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/co2node/bus"
)

var lg = logger.NewPackageLogger("bmp580", logger.InfoLevel)

const (
	// DefaultAddress is the address with SDO pulled high.
	DefaultAddress uint16 = 0x47
	// AlternateAddress is the address with SDO tied to ground.
	AlternateAddress uint16 = 0x46
)

// Registers.
const (
	regChipID     byte = 0x01
	regTempData   byte = 0x1d // TEMP_DATA_XLSB, followed by PRESS_DATA.
	regOSRConfig  byte = 0x36
	regODRConfig  byte = 0x37
	dataLength         = 6
	chipIDBMP580  byte = 0x50
	chipIDBMP585  byte = 0x51
	odr1Hz        byte = 0x1c
	pressEnable   byte = 1 << 6
	osrFieldMask  byte = 0x07
	odrFieldMask  byte = 0x1f
	modeFieldMask byte = 0x03
)

// Oversampling is the oversampling rate for temperature or pressure
// conversions.
type Oversampling uint8

const (
	O1x Oversampling = iota
	O2x
	O4x
	O8x
	O16x
	O32x
	O64x
	O128x
)

func (o Oversampling) String() string {
	if o > O128x {
		return fmt.Sprintf("Oversampling(%d)", uint8(o))
	}
	return fmt.Sprintf("%dx", 1<<o)
}

// ParseOversampling parses the String form of an Oversampling, "1x" to
// "128x".
func ParseOversampling(s string) (Oversampling, error) {
	for o := O1x; o <= O128x; o++ {
		if o.String() == s {
			return o, nil
		}
	}
	return 0, errors.Errorf("bmp580: invalid oversampling %q", s)
}

// powerMode is the pwr_mode field of ODR_CONFIG.
type powerMode byte

const (
	modeStandby powerMode = 0b00
	modeNormal  powerMode = 0b01
	modeForced  powerMode = 0b10
)

// Opts holds the conversion settings.
type Opts struct {
	Temperature Oversampling
	Pressure    Oversampling
}

// DefaultOpts is the lowest power configuration, matching the sensor's
// reset values.
var DefaultOpts = Opts{Temperature: O1x, Pressure: O1x}

// Reading is one temperature and pressure sample.
type Reading struct {
	// Pressure in Pa.
	Pressure uint32
	// Temperature in °C.
	Temperature float64
}

// Env converts r to periph's physical units.
func (r Reading) Env() physic.Env {
	return physic.Env{
		Temperature: physic.ZeroCelsius + physic.Temperature(r.Temperature*float64(physic.Kelvin)),
		Pressure:    physic.Pressure(r.Pressure) * physic.Pascal,
	}
}

func (r Reading) String() string {
	return fmt.Sprintf("temperature=%.1f°C pressure=%06d Pa", r.Temperature, r.Pressure)
}

// Dev is a handle to a BMP580.
type Dev struct {
	d    bus.Dev
	opts Opts
	mu   sync.Mutex
}

// New returns a driver for the BMP580 at addr on b. Use DefaultAddress
// unless SDO is grounded. A nil opts selects DefaultOpts.
func New(b bus.Bus, addr uint16, opts *Opts) *Dev {
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	return &Dev{d: bus.Dev{Bus: b, Addr: addr}, opts: o}
}

// ChipID reads the chip identification register and verifies it belongs to
// the BMP58x family.
func (d *Dev) ChipID() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.d.TransmitReceive([]byte{regChipID}, 1)
	if err != nil {
		return 0, errors.Wrap(err, "bmp580: read chip id")
	}
	if r[0] != chipIDBMP580 && r[0] != chipIDBMP585 {
		return r[0], errors.Errorf("bmp580: unexpected chip id 0x%02x", r[0])
	}
	return r[0], nil
}

// EnablePressure sets press_en in OSR_CONFIG, together with the configured
// oversampling rates. The sensor only converts temperature until this is
// done.
func (d *Dev) EnablePressure() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	lg.Debug("set press_en in OSR_CONFIG")
	if err := d.writeReg(regOSRConfig, osrConfig(d.opts)); err != nil {
		return errors.Wrap(err, "bmp580: OSR_CONFIG")
	}
	return nil
}

// SetContinuous1Hz puts the sensor in normal mode, converting once per
// second.
func (d *Dev) SetContinuous1Hz() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	lg.Debug("set normal mode and ODR=1Hz in ODR_CONFIG")
	if err := d.writeReg(regODRConfig, odrConfig(odr1Hz, modeNormal)); err != nil {
		return errors.Wrap(err, "bmp580: ODR_CONFIG")
	}
	return nil
}

// Sense triggers a forced conversion and returns the result. On any bus
// failure no reading is produced.
func (d *Dev) Sense() (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	lg.Debug("set forced measurement mode in ODR_CONFIG")
	if err := d.writeReg(regODRConfig, odrConfig(odr1Hz, modeForced)); err != nil {
		return Reading{}, errors.Wrap(err, "bmp580: ODR_CONFIG")
	}
	d.d.Sleep(conversionTime(d.opts))
	r, err := d.d.TransmitReceive([]byte{regTempData}, dataLength)
	if err != nil {
		return Reading{}, errors.Wrap(err, "bmp580: read TEMP_DATA and PRESS_DATA")
	}
	reading := decode(r)
	lg.Debugf("%s", reading)
	return reading, nil
}

// Halt returns the sensor to standby. Implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeReg(regODRConfig, odrConfig(odr1Hz, modeStandby)); err != nil {
		return errors.Wrap(err, "bmp580: standby")
	}
	return nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("bmp580: %s", d.d.String())
}

func (d *Dev) writeReg(reg, val byte) error {
	return d.d.Transmit([]byte{reg, val})
}

// osrConfig composes OSR_CONFIG: osr_t in bits 0-2, osr_p in bits 3-5 and
// press_en in bit 6.
func osrConfig(o Opts) byte {
	return pressEnable | (byte(o.Pressure)&osrFieldMask)<<3 | byte(o.Temperature)&osrFieldMask
}

// odrConfig composes ODR_CONFIG: pwr_mode in bits 0-1 and odr in bits 2-6.
// Every write of this register goes through here so the odr field is the
// same whatever the mode.
func odrConfig(odr byte, mode powerMode) byte {
	return (odr&odrFieldMask)<<2 | byte(mode)&modeFieldMask
}

// conversionTime is the forced mode conversion time for o, rounded up from
// the datasheet's typical values.
func conversionTime(o Opts) time.Duration {
	osr := o.Pressure
	if o.Temperature > osr {
		osr = o.Temperature
	}
	return time.Duration(2+int(1)<<osr) * time.Millisecond
}

// decode converts the six data bytes. Both values are 24 bit little
// endian; temperature is signed in units of 1/65536 °C and pressure is in
// units of 1/64 Pa.
func decode(r []byte) Reading {
	rawT := int32(uint32(r[2])<<24|uint32(r[1])<<16|uint32(r[0])<<8) >> 8
	rawP := uint32(r[5])<<16 | uint32(r[4])<<8 | uint32(r[3])
	return Reading{
		Pressure:    rawP >> 6,
		Temperature: float64(rawT) / (1 << 16),
	}
}

var _ conn.Resource = &Dev{}
