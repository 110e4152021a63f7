//go:build examples
// +build examples

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bmp580_test

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/co2node/bmp580"
	"github.com/GermanBionicSystems/co2node/bus"
)

func Example() {
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	b, err := i2creg.Open("")
	if err != nil {
		log.Fatal(err)
	}
	defer b.Close()

	dev := bmp580.New(bus.NewPeriph(b, 100*time.Millisecond), bmp580.DefaultAddress, nil)
	if err := dev.EnablePressure(); err != nil {
		log.Fatal(err)
	}
	r, err := dev.Sense()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(r)
	// Output: temperature=21.5°C pressure=101325 Pa
}
