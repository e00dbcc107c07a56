// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dsfamilytest simulates DS-family thermometers at the slot level.
//
// Device models one sensor. Bus drives a set of devices behind onewire.Bus
// and the bit level methods, Line drives them through a simulated GPIO line
// with a virtual clock so the waveform produced by a bit banging master can
// be checked.
package dsfamilytest

import (
	"encoding/binary"
	"fmt"

	"github.com/GermanBionicSystems/dsfamily/common"
	"periph.io/x/conn/v3/onewire"
)

// Device is a simulated thermometer.
//
// Fields may be modified between bus operations.
type Device struct {
	// ROM is the 64-bit registration number, family code first, CRC last.
	ROM [8]byte
	// Scratchpad holds bytes 0 to 7, the CRC is computed when it is read.
	Scratchpad [9]byte
	// EEPROM holds the alarm/user bytes and the configuration register.
	EEPROM [3]byte
	// Temp is the temperature measured by the next conversion, in 1/16°C.
	Temp int16
	// Parasitic devices answer 0 to a read power supply command.
	Parasitic bool
	// Alarm makes the device answer an alarm search.
	Alarm bool
	// Detached devices do not answer reset pulses.
	Detached bool
	// BusyReads is the number of read slots answered with 0 after a
	// conversion starts.
	BusyReads int
	// Corrupt is the number of following scratchpad reads sent with a bad
	// CRC.
	Corrupt int
	// CorruptAlways corrupts every scratchpad read.
	CorruptAlways bool

	// Conversions, Copies, ScratchpadReads and ScratchpadWrites count the
	// function commands received.
	Conversions      int
	Copies           int
	ScratchpadReads  int
	ScratchpadWrites int

	st    state
	n     int // bit position in the current phase
	acc   byte
	phase int
	busy  int
	out   []byte
}

type state int

const (
	stIdle state = iota
	stROMCmd
	stMatch
	stSearch
	stReadROM
	stFuncCmd
	stOutput
	stWrite
	stBusy
	stPower
)

// NewDevice returns a device of the family with the serial number, in its
// power up state: 85°C in the scratchpad and 12 bits resolution.
//
// Only the low 48 bits of serial are used.
func NewDevice(family byte, serial uint64) *Device {
	d := &Device{Temp: 85 * 16}
	d.ROM[0] = family
	for i := 1; i < 7; i++ {
		d.ROM[i] = byte(serial >> uint(8*(i-1)))
	}
	d.ROM[7] = common.CRC8(d.ROM[:7])
	if family == 0x10 {
		d.Scratchpad = [9]byte{0xAA, 0x00, 0x4B, 0x46, 0xFF, 0xFF, 0x0C, 0x10}
	} else {
		d.Scratchpad = [9]byte{0x50, 0x05, 0x4B, 0x46, 0x7F, 0xFF, 0x0C, 0x10}
	}
	copy(d.EEPROM[:], d.Scratchpad[2:5])
	return d
}

// Addr returns the address as used by onewire.Bus.
func (d *Device) Addr() onewire.Address {
	return onewire.Address(binary.LittleEndian.Uint64(d.ROM[:]))
}

// Family returns the family code.
func (d *Device) Family() byte {
	return d.ROM[0]
}

// Resolution returns the resolution selected by the configuration register.
func (d *Device) Resolution() int {
	if d.Family() == 0x10 {
		return 12
	}
	return int((d.Scratchpad[4]>>5)&3) + 9
}

// SetCalibration stores the calibration bytes in both the scratchpad and the
// EEPROM, as a previous run would have left them.
func (d *Device) SetCalibration(offset int8) {
	d.Scratchpad[2] = byte(offset)
	d.Scratchpad[3] = ^byte(offset)
	copy(d.EEPROM[:2], d.Scratchpad[2:4])
}

func (d *Device) String() string {
	return fmt.Sprintf("Device{%#016x}", uint64(d.Addr()))
}

//

// reset returns true when the device answers with a presence pulse.
func (d *Device) reset() bool {
	if d.Detached {
		d.st = stIdle
		return false
	}
	d.st = stROMCmd
	d.n = 0
	return true
}

// slot runs one time slot. v is the bit sent by the master, 1 for a read
// slot. The returned value is what the device leaves on the line: 0 when it
// pulls the line low.
func (d *Device) slot(v byte) byte {
	v &= 1
	switch d.st {
	case stROMCmd:
		if d.receive(v) {
			d.romCommand(d.acc)
		}
	case stMatch:
		if v != d.romBit(d.n) {
			d.st = stIdle
			break
		}
		if d.n++; d.n == 64 {
			d.enterFunction()
		}
	case stSearch:
		bit := d.romBit(d.n)
		switch d.phase {
		case 0:
			d.phase = 1
			return bit
		case 1:
			d.phase = 2
			return bit ^ 1
		}
		d.phase = 0
		if v != bit {
			d.st = stIdle
			break
		}
		if d.n++; d.n == 64 {
			d.st = stIdle
		}
	case stReadROM:
		bit := d.romBit(d.n)
		if d.n++; d.n == 64 {
			d.enterFunction()
		}
		return bit
	case stFuncCmd:
		if d.receive(v) {
			d.function(d.acc)
		}
	case stOutput:
		if d.n >= 8*len(d.out) {
			break
		}
		bit := d.out[d.n/8] >> uint(d.n%8) & 1
		d.n++
		return bit
	case stWrite:
		if d.receive(v) {
			d.store(d.acc)
		}
	case stBusy:
		if d.busy > 0 {
			d.busy--
			return 0
		}
	case stPower:
		if d.Parasitic {
			return 0
		}
	}
	return 1
}

// receive shifts v in, least significant bit first, and returns true when a
// byte is complete in acc.
func (d *Device) receive(v byte) bool {
	if d.n == 0 {
		d.acc = 0
	}
	d.acc |= v << uint(d.n)
	if d.n++; d.n == 8 {
		d.n = 0
		return true
	}
	return false
}

func (d *Device) romBit(n int) byte {
	return d.ROM[n/8] >> uint(n%8) & 1
}

func (d *Device) romCommand(c byte) {
	d.n = 0
	switch c {
	case 0x55:
		d.st = stMatch
	case 0xCC:
		d.enterFunction()
	case 0xF0:
		d.st, d.phase = stSearch, 0
	case 0xEC:
		d.st, d.phase = stIdle, 0
		if d.Alarm {
			d.st = stSearch
		}
	case 0x33:
		d.st = stReadROM
	default:
		d.st = stIdle
	}
}

func (d *Device) enterFunction() {
	d.st = stFuncCmd
	d.n = 0
}

func (d *Device) function(c byte) {
	d.n = 0
	switch c {
	case 0x44:
		d.Conversions++
		d.convert()
		d.st, d.busy = stBusy, d.BusyReads
	case 0xBE:
		d.ScratchpadReads++
		d.out = make([]byte, 9)
		copy(d.out, d.Scratchpad[:8])
		d.out[8] = common.CRC8(d.out[:8])
		if d.CorruptAlways || d.Corrupt > 0 {
			if d.Corrupt > 0 {
				d.Corrupt--
			}
			d.out[0] ^= 0x01
		}
		d.st = stOutput
	case 0x4E:
		d.ScratchpadWrites++
		d.phase = 0
		d.st = stWrite
	case 0x48:
		d.Copies++
		copy(d.EEPROM[:], d.Scratchpad[2:5])
		d.st, d.busy = stBusy, 0
	case 0xB8:
		copy(d.Scratchpad[2:5], d.EEPROM[:])
		d.st, d.busy = stBusy, 0
	case 0xB4:
		d.st = stPower
	default:
		d.st = stIdle
	}
}

// store writes the next byte received after a write scratchpad command.
func (d *Device) store(v byte) {
	switch d.phase {
	case 0:
		d.Scratchpad[2] = v
	case 1:
		d.Scratchpad[3] = v
	case 2:
		if d.Family() != 0x10 {
			d.Scratchpad[4] = v&0x60 | 0x1F
		}
		d.st = stIdle
	}
	d.phase++
}

// convert latches Temp into the scratchpad with the device's encoding.
func (d *Device) convert() {
	if d.Family() == 0x10 {
		// Half degrees plus a count remain of 1/16°C, count per °C is 16.
		w := (int(d.Temp) + 3) >> 4
		raw := int16(w * 2)
		d.Scratchpad[0] = byte(raw)
		d.Scratchpad[1] = byte(raw >> 8)
		d.Scratchpad[6] = byte(16*w + 12 - int(d.Temp))
		d.Scratchpad[7] = 0x10
		return
	}
	raw := d.Temp &^ int16(1<<uint(12-d.Resolution())-1)
	d.Scratchpad[0] = byte(raw)
	d.Scratchpad[1] = byte(raw >> 8)
}

// resetAll resets every device and returns true if any is present.
func resetAll(devs []*Device) bool {
	present := false
	for _, d := range devs {
		if d.reset() {
			present = true
		}
	}
	return present
}

// slotAll runs a slot on every device and returns the wired-AND of the line.
func slotAll(devs []*Device, v byte) byte {
	line := v & 1
	for _, d := range devs {
		line &= d.slot(v)
	}
	return line
}
