// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewiregpio implements a 1-wire bus master by bit banging a single
// open drain GPIO line.
//
// The timed part of every slot is measured with a busy wait, by default
// cpu.Nanospin, so the bus works on any host where the pin can be toggled
// within a few microseconds.
//
// Next implements the ROM search one device at a time with an explicit
// SearchState, which lets callers interleave other bus traffic between two
// steps.
//
// # Datasheet
//
// https://www.analog.com/en/technical-articles/1wire-communication-through-software.html
//
// https://www.analog.com/en/app-notes/1wire-search-algorithm.html
package onewiregpio
