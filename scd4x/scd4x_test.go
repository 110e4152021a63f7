// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.
//
// Unit tests for the package. Note that this supports running on a live
// sensor, or using playback mode to simulate a live device.
//
// To use a live device, define the environment variable SCD4X and run go test.

package scd4x

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/co2node/bus"
	"github.com/GermanBionicSystems/co2node/common"
)

var i2cBus i2c.Bus
var liveDevice bool = false

// write returns a playback write of the command word.
func write(c command, args ...byte) i2ctest.IO {
	return i2ctest.IO{Addr: SensorAddress, W: append([]byte{byte(c.cmdWord >> 8), byte(c.cmdWord)}, args...)}
}

// read returns a playback read of reply.
func read(reply ...byte) i2ctest.IO {
	return i2ctest.IO{Addr: SensorAddress, R: reply}
}

var initPlayback = []i2ctest.IO{
	write(cmdWakeUp),
	write(cmdStopPeriodicMeasurement),
	write(cmdReinit),
}

// CO2=812 ppm, T=22, RH=45
var measurementReply = []byte{0x03, 0x2c, 0x57, 0x62, 0x03, 0x5e, 0x73, 0x33, 0x01}

var singleShotPlayback = []i2ctest.IO{
	write(cmdSetAmbientPressure, 0x03, 0xf5, 0xdb),
	write(cmdMeasureSingleShot),
	write(cmdGetDataReadyStatus),
	read(0x80, 0x00, 0xa2),
	write(cmdGetDataReadyStatus),
	read(0x80, 0x06, 0x04),
	write(cmdReadMeasurement),
	read(measurementReply...),
}

func init() {
	var err error
	// If the environment variable is set, assume we have a live device on
	// the default i2c bus and use it for testing. If the variable is not
	// present, then use the playback/read values.
	if os.Getenv("SCD4X") != "" {
		liveDevice = true
	}
	if _, err = host.Init(); err != nil {
		fmt.Println(err)
	}

	if liveDevice {
		i2cBus, err = i2creg.Open("")
		if err != nil {
			fmt.Println(err)
		}
		// Add the recorder to dump the data stream when we're using a live device.
		i2cBus = &i2ctest.Record{Bus: i2cBus}
	} else {
		i2cBus = &i2ctest.Playback{DontPanic: true}
	}
}

// getDev returns an scd4x device for testing connected to either a live
// bus, or a playback bus. playbackOps is a slice of i2ctest.IO
// operations to be used for playback mode. Ignored for live device
// testing.
func getDev(t *testing.T, playbackOps ...[]i2ctest.IO) *Dev {
	if liveDevice {
		if recorder, ok := i2cBus.(*i2ctest.Record); ok {
			// Clear the operations buffer.
			recorder.Ops = make([]i2ctest.IO, 0, 32)
		}
	} else {
		pb := i2cBus.(*i2ctest.Playback)
		pb.Ops = nil
		if len(playbackOps) == 1 {
			pb.Ops = playbackOps[0]
		}
		pb.Count = 0
	}
	return New(bus.NewPeriph(i2cBus, 100*time.Millisecond), SensorAddress)
}

// shutdown dumps the recorder values if we we're running a live device, or
// checks every playback operation was consumed.
func shutdown(t *testing.T) {
	switch b := i2cBus.(type) {
	case *i2ctest.Record:
		t.Logf("%#v", b.Ops)
	case *i2ctest.Playback:
		if b.Count != len(b.Ops) {
			t.Errorf("playback consumed %d of %d operations", b.Count, len(b.Ops))
		}
	}
}

func TestCountToTemperature(t *testing.T) {
	tests := []struct {
		count    uint16
		expected int16
	}{
		{count: 0, expected: -45},
		{count: 0x6667, expected: 25},
		{count: 25091, expected: 22},
		{count: 0xffff, expected: 130},
	}
	for _, test := range tests {
		result := countToTemp(test.count)
		if result != test.expected {
			t.Errorf("countToTemp(0x%04x) received: %d expected %d", test.count, result, test.expected)
		}
	}
}

func TestCountToHumidity(t *testing.T) {
	tests := []struct {
		count    uint16
		expected uint8
	}{
		{count: 0, expected: 0},
		{count: 0x5eb9, expected: 37}, // from the datasheet
		{count: 29491, expected: 45},
		{count: 0xffff, expected: 100},
	}
	for _, test := range tests {
		result := countToHumidity(test.count)
		if result != test.expected {
			t.Errorf("countToHumidity(0x%04x) received: %d expected %d", test.count, result, test.expected)
		}
	}
}

func TestIsReady(t *testing.T) {
	tests := []struct {
		status uint16
		ready  bool
	}{
		{0xffff, true},
		{0x0000, false},
		{0x8000, false},
		{0x8006, true},
		{0x0001, true},
		{0xf800, false},
	}
	for _, test := range tests {
		if got := isReady(test.status); got != test.ready {
			t.Errorf("isReady(0x%04x)=%t expected %t", test.status, got, test.ready)
		}
	}
}

func TestHectoPascalRoundTrip(t *testing.T) {
	for _, pa := range []uint32{0, 99, 100, 70000, 101325, 120099, 6553599} {
		hpa, err := hectoPascal(pa)
		if err != nil {
			t.Fatal(err)
		}
		buf := make([]byte, common.WordSize)
		common.PutWord(buf, hpa)
		decoded, ok := common.Word(buf)
		if !ok {
			t.Fatalf("crc mismatch for %d Pa", pa)
		}
		if uint32(decoded) != pa/100 {
			t.Errorf("%d Pa round trip gave %d hPa expected %d", pa, decoded, pa/100)
		}
	}
	if _, err := hectoPascal(6553600); err == nil {
		t.Error("expected an error for an out of range pressure")
	}
}

func TestInit(t *testing.T) {
	dev := getDev(t, initPlayback)
	defer shutdown(t)
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	s := dev.String()
	t.Logf("dev.String()=%s", s)
	if len(s) == 0 {
		t.Error("Dev.String() returned empty value.")
	}
}

func TestSingleShot(t *testing.T) {
	dev := getDev(t, singleShotPlayback)
	defer shutdown(t)

	if err := dev.SetAmbientPressure(101325); err != nil {
		t.Fatal(err)
	}
	if err := dev.MeasureSingleShot(); err != nil {
		t.Fatal(err)
	}
	ready := false
	for range 10 {
		if ready = dev.DataReady(); ready {
			break
		}
		if liveDevice {
			time.Sleep(time.Second)
		}
	}
	if !ready {
		t.Fatal("measurement never became ready")
	}
	r, err := dev.ReadMeasurement()
	if err != nil {
		t.Fatal(err)
	}
	t.Log(r.String())
	if !liveDevice && r != (Reading{CO2: 812, Temperature: 22, Humidity: 45}) {
		t.Errorf("unexpected reading %#v", r)
	}
}

func TestReadMeasurementRecorded(t *testing.T) {
	if liveDevice {
		t.Skip("playback only")
	}
	// Captured from a live SCD41.
	dev := getDev(t, []i2ctest.IO{
		write(cmdReadMeasurement),
		read(0x2, 0x2c, 0xa3, 0x67, 0xd, 0x36, 0x4d, 0x8, 0xf1),
	})
	defer shutdown(t)
	r, err := dev.ReadMeasurement()
	if err != nil {
		t.Fatal(err)
	}
	if r != (Reading{CO2: 556, Temperature: 25, Humidity: 30}) {
		t.Errorf("unexpected reading %#v", r)
	}
}

func TestReadMeasurementChecksum(t *testing.T) {
	if liveDevice {
		t.Skip("playback only")
	}
	for word := range 3 {
		corrupt := append([]byte(nil), measurementReply...)
		corrupt[word*common.WordSize+2] ^= 0xff
		dev := getDev(t, []i2ctest.IO{write(cmdReadMeasurement), read(corrupt...)})
		r, err := dev.ReadMeasurement()
		if !errors.Is(err, bus.ErrChecksum) {
			t.Errorf("word %d: expected bus.ErrChecksum, got %v", word, err)
		}
		if r != (Reading{}) {
			t.Errorf("word %d: partial reading returned %#v", word, r)
		}
	}
}

func TestReadMeasurementBusFailure(t *testing.T) {
	if liveDevice {
		t.Skip("playback only")
	}
	dev := getDev(t, []i2ctest.IO{write(cmdReadMeasurement)})
	r, err := dev.ReadMeasurement()
	if err == nil || bus.StatusOf(err) != bus.StatusError {
		t.Fatalf("expected a bus error, got %v", err)
	}
	if errors.Is(err, bus.ErrChecksum) {
		t.Error("bus failure reported as a checksum error")
	}
	if r != (Reading{}) {
		t.Errorf("partial reading returned %#v", r)
	}
}

func TestDataReadyFailures(t *testing.T) {
	if liveDevice {
		t.Skip("playback only")
	}
	tests := []struct {
		name string
		ops  []i2ctest.IO
	}{
		{"not ready", []i2ctest.IO{write(cmdGetDataReadyStatus), read(0x00, 0x00, 0x81)}},
		{"bad crc", []i2ctest.IO{write(cmdGetDataReadyStatus), read(0xff, 0xff, 0x00)}},
		{"no reply", []i2ctest.IO{write(cmdGetDataReadyStatus)}},
		{"no ack", nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dev := getDev(t, test.ops)
			if dev.DataReady() {
				t.Error("DataReady() returned true")
			}
		})
	}

	dev := getDev(t, []i2ctest.IO{write(cmdGetDataReadyStatus), read(0xff, 0xff, 0xac)})
	if !dev.DataReady() {
		t.Error("DataReady() returned false for 0xffff")
	}
}

func TestAmbientPressure(t *testing.T) {
	dev := getDev(t, []i2ctest.IO{
		write(cmdSetAmbientPressure, 0x03, 0xf5, 0xdb),
		write(cmdGetAmbientPressure),
		read(0x03, 0xf5, 0xdb),
		write(cmdGetAmbientPressure),
		read(0x03, 0xf5, 0xdb),
	})
	defer shutdown(t)
	if err := dev.SetAmbientPressure(101325); err != nil {
		t.Fatal(err)
	}
	first, err := dev.AmbientPressure()
	if err != nil {
		t.Fatal(err)
	}
	// No set in between, so the device value must not change.
	second, err := dev.AmbientPressure()
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("AmbientPressure() not idempotent: %d != %d", first, second)
	}
	if first != 101300 {
		t.Errorf("AmbientPressure()=%d expected 101300", first)
	}
}

func TestAmbientPressureChecksum(t *testing.T) {
	if liveDevice {
		t.Skip("playback only")
	}
	dev := getDev(t, []i2ctest.IO{write(cmdGetAmbientPressure), read(0x03, 0xf5, 0xdc)})
	if _, err := dev.AmbientPressure(); !errors.Is(err, bus.ErrChecksum) {
		t.Errorf("expected bus.ErrChecksum, got %v", err)
	}
}

func TestSetAmbientPressureRange(t *testing.T) {
	dev := getDev(t, nil)
	if err := dev.SetAmbientPressure(0xffffffff); err == nil {
		t.Error("expected an error for an out of range pressure")
	}
}

func TestSerialAndVariant(t *testing.T) {
	dev := getDev(t, []i2ctest.IO{
		write(cmdGetSerialNumber),
		read(0x73, 0xb1, 0x19, 0xeb, 0x7, 0x7a, 0x3b, 0xc, 0x54),
		write(cmdGetSensorVariant),
		read(0x14, 0x41, 0x60),
	})
	defer shutdown(t)
	sn, err := dev.SerialNumber()
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("SerialNumber=%d", sn)
	v, err := dev.Variant()
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("Variant=%s", v)
	if liveDevice {
		return
	}
	if sn != 127207989525260 {
		t.Errorf("SerialNumber()=%d", sn)
	}
	if v != SCD41 {
		t.Errorf("Variant()=%s expected SCD41", v)
	}
}

func TestReadingEnv(t *testing.T) {
	env := Reading{CO2: 812, Temperature: 22, Humidity: 45}.Env()
	if env.Temperature != physic.ZeroCelsius+22*physic.Kelvin {
		t.Errorf("temperature %s", env.Temperature)
	}
	if env.Humidity != 45*physic.PercentRH {
		t.Errorf("humidity %s", env.Humidity)
	}
	if s := PPM(812).String(); s != "812 PPM" {
		t.Errorf("PPM.String()=%q", s)
	}
}
