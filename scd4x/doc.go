// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// This package provides a driver for the Sensiron SCD4x CO2 sensors.
// The scd4x family provide a compact sensor that can be used to measure
// Temperature, Humidity, and CO2 concentration.
//
// The driver runs the sensor in single-shot mode: a measurement is
// triggered with MeasureSingleShot(), DataReady() is polled until the
// conversion completes and ReadMeasurement() fetches the result. The
// ambient pressure used for the sensor's internal compensation can be
// updated before each measurement.
//
// Refer to the datasheet for more information.
//
// https://sensirion.com/media/documents/48C4B7FB/66E05452/CD_DS_SCD4x_Datasheet_D1.pdf
package scd4x
