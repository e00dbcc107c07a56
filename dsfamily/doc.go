// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dsfamily drives a population of Maxim DS-family thermometers
// sharing one 1-wire bus: DS18S20, DS1822, DS18B20, DS1825 and DS28EA00.
//
// Devices found by Scan are numbered in discovery order and their addresses
// are kept in a persistent store, so the numbering survives restarts. The two
// user bytes of every device hold an optional calibration offset, written
// together with its complement so an uncalibrated device is recognized.
//
// A single conversion window is tracked for the whole bus: the start time of
// the last conversion and the conversion time of the last resolution set.
// Reading any device waits until that window is over, even when the last
// conversion was started on another device.
//
// Temperatures are returned as Raw values, in 1/16°C steps, the unit used by
// every device of the family.
//
// # Datasheets
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS18B20.pdf
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS18S20.pdf
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS28EA00.pdf
package dsfamily
