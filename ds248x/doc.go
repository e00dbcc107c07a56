// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds248x controls a Maxim DS2482-100, DS2482-800 or DS2483 I²C to
// 1-wire bridge.
//
// Beside the byte level onewire.Bus it exposes single read and write slots,
// so a thermometer conversion can be polled the same way as on a bit banged
// line.
//
// Datasheets
//
// https://datasheets.maximintegrated.com/en/ds/DS2482-100.pdf
//
// https://datasheets.maximintegrated.com/en/ds/DS2482-800.pdf
//
// https://datasheets.maximintegrated.com/en/ds/DS2483.pdf
package ds248x
