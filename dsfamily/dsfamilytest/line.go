// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dsfamilytest

import (
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Pulse is a period during which the master held the line low.
type Pulse struct {
	At    time.Duration // start, on the virtual clock
	Width time.Duration
}

// Line simulates an open drain GPIO line with devices attached.
//
// Time only advances through Spin, which must be used as the master's busy
// wait. Devices decode the width of every low pulse: 400µs or more is a
// reset, less than 15µs a read or write 1 slot, anything else a write 0
// slot.
type Line struct {
	mu      sync.Mutex
	Devices []*Device
	// Shorted keeps the line low, as a short to ground would.
	Shorted bool
	// Now is the virtual clock.
	Now time.Duration
	// Pulses records every low pulse driven by the master.
	Pulses []Pulse
	// Reads records the time of every sample.
	Reads []time.Duration

	driving  bool
	level    gpio.Level
	lowAt    time.Duration
	lowUntil time.Duration // devices hold the line low until then
	lowFrom  time.Duration
}

// NewLine returns a line with the devices attached.
func NewLine(devs ...*Device) *Line {
	return &Line{Devices: devs}
}

func (l *Line) String() string {
	return "dsfamilytest.Line"
}

// Spin advances the virtual clock.
func (l *Line) Spin(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Now += d
}

// In releases the line.
func (l *Line) In(pull gpio.Pull, edge gpio.Edge) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.endLow()
	l.driving = false
	return nil
}

// Out drives the line.
func (l *Line) Out(v gpio.Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v == gpio.Low {
		if !l.driving || l.level != gpio.Low {
			l.lowAt = l.Now
		}
		l.driving, l.level = true, gpio.Low
		return nil
	}
	l.endLow()
	l.driving, l.level = true, gpio.High
	return nil
}

// Read samples the line.
func (l *Line) Read() gpio.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Reads = append(l.Reads, l.Now)
	switch {
	case l.driving:
		return l.level
	case l.Shorted:
		return gpio.Low
	case l.Now >= l.lowFrom && l.Now < l.lowUntil:
		return gpio.Low
	}
	return gpio.High
}

// PulseWidths returns the width of the recorded pulses, in order.
func (l *Line) PulseWidths() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]time.Duration, len(l.Pulses))
	for i, p := range l.Pulses {
		out[i] = p.Width
	}
	return out
}

//

// endLow lets the devices decode the pulse that just ended, if any.
func (l *Line) endLow() {
	if !l.driving || l.level != gpio.Low {
		return
	}
	w := l.Now - l.lowAt
	l.Pulses = append(l.Pulses, Pulse{At: l.lowAt, Width: w})
	switch {
	case w >= 400*time.Microsecond:
		if resetAll(l.Devices) {
			l.lowFrom, l.lowUntil = l.Now+15*time.Microsecond, l.Now+240*time.Microsecond
		}
	case w < 15*time.Microsecond:
		if slotAll(l.Devices, 1) == 0 {
			l.lowFrom, l.lowUntil = l.lowAt, l.lowAt+30*time.Microsecond
		}
	default:
		slotAll(l.Devices, 0)
	}
}
