// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package co2node is a CO2 monitoring node for small Linux boards.
//
// A BMP580 provides the barometric pressure that compensates the readings
// of a Sensirion SCD4x. Both sit on one I2C bus. Results go to the cloud
// monitoring API, the console, an SSD1306 OLED and a websocket live view.
//
// The binary is cmd/co2node. The drivers are usable on their own:
//
//	bmp580   BMP580/BMP585 barometric pressure sensor
//	scd4x    SCD40/SCD41/SCD43 CO2 sensor
//	bus      I2C transport over periph or /dev/i2c-N with timeouts
//	common   Sensirion CRC-8 and word framing
//	acquire  measurement cycle sequencing the two sensors
package co2node
