// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dsfamily is a container for the packages driving DS18S20, DS1822,
// DS18B20, DS1825 and DS28EA00 thermometers on a 1-wire bus.
//
// The device directory, scratchpad protocol, conversion window and
// statistics live in the dsfamily subpackage. The bus masters are
// onewiregpio, bit banged on a GPIO line, and ds248x, an I²C bridge. The
// directory persists in an eeprom.Store: a file, memory or an at24c EEPROM.
package dsfamily
