// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bmp580 provides a driver for the Bosch BMP580/BMP581 barometric
// pressure sensor over I²C.
//
// The driver uses the sensor in forced mode: each Sense() call starts one
// conversion and reads the temperature and pressure data registers once it
// completes.
//
// # Datasheet
//
// https://www.bosch-sensortec.com/media/boschsensortec/downloads/datasheets/bst-bmp581-ds004.pdf
package bmp580
