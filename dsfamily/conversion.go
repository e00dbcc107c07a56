// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dsfamily

import (
	"time"

	"periph.io/x/conn/v3/onewire"
)

// window tracks the last conversion started on the bus.
//
// There is a single window for all devices: the start of the last conversion,
// whichever device it was started on, and the conversion time of the last
// resolution set. A read may thus wait for a conversion it does not need.
type window struct {
	start          time.Time
	duration       time.Duration
	parasitic      bool // at least one device is parasite powered
	lastWasConvert bool // no other command was sent since the last conversion
	done           bool // the devices reported the end of the conversion
}

// remaining returns the time left until the window is over.
func (w *window) remaining() time.Duration {
	if w.done {
		return 0
	}
	if r := w.duration - now().Sub(w.start); r > 0 {
		return r
	}
	return 0
}

// StartAll starts a conversion on every device of the bus.
//
// With wait, it returns once the conversion is complete: after the full
// conversion time when a device is parasite powered, otherwise as soon as the
// devices report completion.
func (d *Dev) StartAll(wait bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startConversion(-1, wait)
}

// StartDevice starts a conversion on a single device. See StartAll.
func (d *Dev) StartDevice(i int, wait bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkIndex(i); err != nil {
		return err
	}
	return d.startConversion(i, wait)
}

// Parasitic returns true when the last Scan found a parasite powered device.
func (d *Dev) Parasitic() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.w.parasitic
}

// ConversionTime returns the conversion time of the last resolution set.
func (d *Dev) ConversionTime() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.w.duration
}

//

// startConversion starts a conversion on device i, or on all devices when i
// is negative.
func (d *Dev) startConversion(i int, wait bool) error {
	w := []byte{cmdSkipROM, cmdConvert}
	if i >= 0 {
		a, err := d.address(i)
		if err != nil {
			return err
		}
		w = command(a, cmdConvert)
	}
	pull := onewire.WeakPullup
	if d.w.parasitic {
		pull = onewire.StrongPullup
	}
	if err := d.tx(w, nil, pull); err != nil {
		return err
	}
	d.w.start = now()
	d.w.lastWasConvert = true
	d.w.done = false
	if !wait {
		return nil
	}
	return d.waitDone()
}

// waitForRead waits until a scratchpad read returns a finished conversion.
func (d *Dev) waitForRead() error {
	if d.w.parasitic || !d.w.lastWasConvert {
		if r := d.w.remaining(); r > 0 {
			sleep(r)
		}
		return nil
	}
	return d.waitDone()
}

// waitDone waits for the conversion just started to complete.
//
// Externally powered devices answer read slots with 0 until their conversion
// is done, the bus is polled when it supports single bit reads.
func (d *Dev) waitDone() error {
	br, ok := d.bus.(BitReader)
	if d.w.parasitic || !ok {
		if r := d.w.remaining(); r > 0 {
			sleep(r)
		}
		return nil
	}
	deadline := d.w.start.Add(conversionTime(12) * 5 / 4)
	for {
		b, err := br.ReadBit()
		if err != nil {
			return err
		}
		if b == 1 {
			d.w.done = true
			return nil
		}
		if !now().Before(deadline) {
			return ErrConversionTimeout
		}
		sleep(pollInterval)
	}
}

// parasiticWait lets a conversion complete before any other command, since
// parasite powered devices draw their power from the bus.
func (d *Dev) parasiticWait() {
	if !d.w.parasitic {
		return
	}
	if r := d.w.remaining(); r > 0 {
		sleep(r)
	}
}

// conversionTime returns the conversion time at the resolution, datasheet
// p.6.
func conversionTime(bits int) time.Duration {
	switch bits {
	case 9:
		return 94 * time.Millisecond
	case 10:
		return 188 * time.Millisecond
	case 11:
		return 375 * time.Millisecond
	default:
		return 750 * time.Millisecond
	}
}
