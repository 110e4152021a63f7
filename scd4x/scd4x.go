// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scd4x

import (
	"fmt"
	"sync"
	"time"

	logger "github.com/d2r2/go-logger"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/co2node/bus"
	"github.com/GermanBionicSystems/co2node/common"
)

var lg = logger.NewPackageLogger("scd4x", logger.InfoLevel)

// PPM=Parts Per Million. Units of measure for CO2 concentration.
type PPM uint16

// Sensor Variant type
type Variant int

const (
	SCD40 Variant = iota
	SCD41
	SCD43
)

func (v Variant) String() string {
	switch v {
	case SCD40:
		return "SCD40"
	case SCD41:
		return "SCD41"
	case SCD43:
		return "SCD43"
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

const (
	// These devices only support this i2c address.
	SensorAddress uint16 = 0x62

	// Mask applied to the data ready status word. Any bit set means a
	// measurement is waiting to be read.
	dataReadyMask uint16 = 1<<11 - 1
)

type cmd uint16

// Structure to simplify sending commands to the device.
type command struct {
	// The 16-bit command words.
	cmdWord cmd
	// The expected number of bytes returned. 0, 3, or 9.
	responseSize int
	// Time the sensor needs before it accepts the next transfer.
	execTime time.Duration
}

// The various implemented commands.

var cmdMeasureSingleShot = command{
	cmdWord: 0x219d,
}

var cmdReadMeasurement = command{
	cmdWord:      0xec05,
	responseSize: 9,
	execTime:     time.Millisecond,
}

var cmdStopPeriodicMeasurement = command{
	cmdWord:  0x3f86,
	execTime: 500 * time.Millisecond,
}

var cmdGetAmbientPressure = command{
	cmdWord:      0xe000,
	responseSize: 3,
	execTime:     time.Millisecond,
}

var cmdSetAmbientPressure = command{
	cmdWord:  0xe000,
	execTime: time.Millisecond,
}

var cmdGetDataReadyStatus = command{
	cmdWord:      0xe4b8,
	responseSize: 3,
	execTime:     time.Millisecond,
}

var cmdGetSerialNumber = command{
	cmdWord:      0x3682,
	responseSize: 9,
	execTime:     time.Millisecond,
}

var cmdReinit = command{
	cmdWord:  0x3646,
	execTime: 30 * time.Millisecond,
}

var cmdGetSensorVariant = command{
	cmdWord:      0x202f,
	responseSize: 3,
	execTime:     time.Millisecond,
}

var cmdWakeUp = command{
	cmdWord:  0x36f6,
	execTime: 30 * time.Millisecond,
}

// Dev represents an SCD4x device.
type Dev struct {
	// The i2c bus device.
	d  bus.Dev
	mu sync.Mutex
}

func (ppm PPM) String() string {
	return fmt.Sprintf("%d PPM", uint16(ppm))
}

// Reading is one measurement from the sensor. Temperature and humidity are
// whole units, truncated.
type Reading struct {
	CO2 PPM
	// Temperature in °C.
	Temperature int16
	// Relative humidity in %.
	Humidity uint8
}

// Return the sensor readings in string format.
func (r Reading) String() string {
	return fmt.Sprintf("CO2=%04d ppm, T=%02d, RH=%02d", uint16(r.CO2), r.Temperature, r.Humidity)
}

// Env converts the temperature and humidity to periph's physical units.
func (r Reading) Env() physic.Env {
	return physic.Env{
		Temperature: physic.ZeroCelsius + physic.Temperature(r.Temperature)*physic.Kelvin,
		Humidity:    physic.RelativeHumidity(r.Humidity) * physic.PercentRH,
	}
}

// New creates a new SCD4x sensor using the supplied bus and address.
// The constant value SensorAddress should be supplied as the value for
// addr. Call Init before the first measurement.
func New(b bus.Bus, addr uint16) *Dev {
	return &Dev{d: bus.Dev{Bus: b, Addr: addr}}
}

// Init brings the sensor to a known idle state: it is woken up, any
// periodic measurement left running by a previous process is stopped and
// the settings are reloaded from EEPROM.
func (d *Dev) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	// The sensor does not acknowledge wake_up, so the error is expected.
	if _, err := d.sendCommand(cmdWakeUp); err != nil {
		lg.Debugf("wake_up: %v", err)
		d.d.Sleep(cmdWakeUp.execTime)
	}
	if _, err := d.sendCommand(cmdStopPeriodicMeasurement); err != nil {
		return err
	}
	_, err := d.sendCommand(cmdReinit)
	return err
}

// StopPeriodicMeasurement returns the sensor to idle mode if a periodic
// measurement is running.
func (d *Dev) StopPeriodicMeasurement() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sendCommand(cmdStopPeriodicMeasurement)
	return err
}

// Reinit reloads the user settings from EEPROM.
func (d *Dev) Reinit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sendCommand(cmdReinit)
	return err
}

// SetAmbientPressure sends the ambient pressure, in Pa, used to compensate
// the CO2 measurement. The sensor takes hPa; the value is truncated.
func (d *Dev) SetAmbientPressure(pa uint32) error {
	hpa, err := hectoPascal(pa)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	lg.Debugf("set_ambient_pressure %d hPa", hpa)
	_, err = d.sendCommand(cmdSetAmbientPressure, hpa)
	return err
}

// AmbientPressure returns the ambient pressure, in Pa, currently set in the
// sensor. The value is read from the device on every call.
func (d *Dev) AmbientPressure() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.sendCommand(cmdGetAmbientPressure)
	if err != nil {
		return 0, err
	}
	return uint32(words[0]) * 100, nil
}

// MeasureSingleShot starts one measurement. Poll DataReady for completion,
// which takes about 5 seconds.
func (d *Dev) MeasureSingleShot() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	lg.Debug("measure_single_shot")
	_, err := d.sendCommand(cmdMeasureSingleShot)
	return err
}

// DataReady reports whether a measurement can be read. A failed transfer
// or a corrupted reply reads as not ready.
func (d *Dev) DataReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.sendCommand(cmdGetDataReadyStatus)
	if err != nil {
		lg.Debugf("get_data_ready_status: %v", err)
		return false
	}
	return isReady(words[0])
}

// ReadMeasurement reads the last measurement. Every word of the reply is
// CRC checked; on any failure no reading is produced.
func (d *Dev) ReadMeasurement() (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.sendCommand(cmdReadMeasurement)
	if err != nil {
		return Reading{}, err
	}
	r := Reading{
		CO2:         PPM(words[0]),
		Temperature: countToTemp(words[1]),
		Humidity:    countToHumidity(words[2]),
	}
	lg.Debugf("read_measurement values: %s", r)
	return r, nil
}

// SerialNumber returns the 48 bit unique serial number of the device.
func (d *Dev) SerialNumber() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.sendCommand(cmdGetSerialNumber)
	if err != nil {
		return 0, err
	}
	return int64(words[0])<<32 | int64(words[1])<<16 | int64(words[2]), nil
}

// Variant returns the sensor type. Single-shot measurements need an SCD41
// or SCD43.
func (d *Dev) Variant() (Variant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.sendCommand(cmdGetSensorVariant)
	if err != nil {
		return 0, err
	}
	switch words[0] >> 12 {
	case 0:
		return SCD40, nil
	case 1:
		return SCD41, nil
	case 5:
		return SCD43, nil
	}
	return 0, errors.Errorf("scd4x: unknown sensor variant 0x%04x", words[0])
}

// Halt stops any periodic measurement. Implements conn.Resource.
func (d *Dev) Halt() error {
	return d.StopPeriodicMeasurement()
}

func (d *Dev) String() string {
	return fmt.Sprintf("scd4x: %s", d.d.String())
}

// All commands to read or write to the sensor go through this function.
// The command word is written, followed by args each with its CRC. After
// the execution time the reply, if any, is read and its CRCs verified.
func (d *Dev) sendCommand(cmd command, args ...uint16) ([]uint16, error) {
	w := make([]byte, 2+len(args)*common.WordSize)
	w[0] = byte(cmd.cmdWord >> 8)
	w[1] = byte(cmd.cmdWord)
	for ix, val := range args {
		common.PutWord(w[2+ix*common.WordSize:], val)
	}

	if err := d.d.Transmit(w); err != nil {
		return nil, errors.Wrapf(err, "scd4x cmd 0x%04x", uint16(cmd.cmdWord))
	}
	if cmd.execTime > 0 {
		d.d.Sleep(cmd.execTime)
	}
	if cmd.responseSize == 0 {
		return nil, nil
	}

	r, err := d.d.TransmitReceive(nil, cmd.responseSize)
	if err != nil {
		return nil, errors.Wrapf(err, "scd4x cmd 0x%04x read", uint16(cmd.cmdWord))
	}
	result, bad := common.Words(r)
	if bad >= 0 {
		return nil, errors.Wrapf(bus.ErrChecksum, "scd4x cmd 0x%04x word %d", uint16(cmd.cmdWord), bad)
	}
	return result, nil
}

// hectoPascal converts pa to the sensor's unit, truncating.
func hectoPascal(pa uint32) (uint16, error) {
	hpa := pa / 100
	if hpa > 0xffff {
		return 0, errors.Errorf("scd4x: ambient pressure %d Pa out of range", pa)
	}
	return uint16(hpa), nil
}

func isReady(status uint16) bool {
	return status&dataReadyMask != 0
}

// countToTemp converts a device count to whole °C: -45 + 175*count/65535.
func countToTemp(count uint16) int16 {
	return int16(-45 + 175*int32(count)/65535)
}

// countToHumidity converts a device count to whole %RH: 100*count/65535.
func countToHumidity(count uint16) uint8 {
	return uint8(100 * uint32(count) / 65535)
}

var _ conn.Resource = &Dev{}
