// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dsfamily

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/dsfamily/eeprom"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/onewire"
)

// Family code of the specific device type.
type Family byte

// Supported families.
const (
	DS18S20  Family = 0x10
	DS1822   Family = 0x22
	DS18B20  Family = 0x28
	DS1825   Family = 0x3B
	DS28EA00 Family = 0x42
)

// FamilyOf returns the family code of the address.
func FamilyOf(a onewire.Address) Family {
	return Family(a & 0xFF)
}

func (f Family) String() string {
	switch f {
	case DS18S20:
		return "DS18S20"
	case DS1822:
		return "DS1822"
	case DS18B20:
		return "DS18B20"
	case DS1825:
		return "DS1825"
	case DS28EA00:
		return "DS28EA00"
	default:
		return fmt.Sprintf("unknown(%#02x)", byte(f))
	}
}

// Known returns true for the families driven by this package.
func (f Family) Known() bool {
	switch f {
	case DS18S20, DS1822, DS18B20, DS1825, DS28EA00:
		return true
	}
	return false
}

// MaxCalibrated is the number of devices Calibrate handles.
const MaxCalibrated = 32

const (
	cmdMatchROM        = 0x55
	cmdSkipROM         = 0xCC
	cmdConvert         = 0x44
	cmdReadScratchpad  = 0xBE
	cmdWriteScratchpad = 0x4E
	cmdCopyScratchpad  = 0x48
	cmdReadPower       = 0xB4

	readAttempts = 10
	nvWriteTime  = 100 * time.Millisecond
	pollInterval = 2 * time.Millisecond
)

var (
	// ErrInvalidIndex is returned for a device index outside of the directory.
	ErrInvalidIndex = errors.New("dsfamily: invalid device index")
	// ErrEmptySet is returned by the aggregates when no device is left to
	// read.
	ErrEmptySet = errors.New("dsfamily: no device to aggregate")
	// ErrConversionTimeout is returned when a device still reports a
	// conversion in progress well after the longest conversion time.
	ErrConversionTimeout = errors.New("dsfamily: conversion did not complete")
)

// ChecksumError is returned when no valid scratchpad could be read from a
// device.
type ChecksumError struct {
	Index    int
	Attempts int
	// NoResponse is set when the last attempt read only ones, as happens
	// when the device is gone from the bus.
	NoResponse bool
}

func (e *ChecksumError) Error() string {
	if e.NoResponse {
		return fmt.Sprintf("dsfamily: device %d did not respond", e.Index)
	}
	return fmt.Sprintf("dsfamily: device %d: incorrect scratchpad CRC after %d attempts", e.Index, e.Attempts)
}

// BusError implements onewire.BusError.
func (e *ChecksumError) BusError() bool { return true }

// CapacityError is returned by Scan when more devices were found than the
// store can hold. The first Kept devices are usable.
type CapacityError struct {
	Found int
	Kept  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("dsfamily: found %d devices, the store holds %d", e.Found, e.Kept)
}

// BitReader is implemented by buses able to run a single read slot. It is
// used to poll for the end of a conversion.
type BitReader interface {
	ReadBit() (byte, error)
}

// Opts contains options to pass to the constructor.
type Opts struct {
	// Reserved is the number of bytes at the beginning of the store left to
	// the application. The directory grows down from the end of the store.
	Reserved int
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{}

// New returns a directory of devices on the bus backed by the store.
//
// The directory starts empty, call Scan to enumerate the bus or Load to use
// the addresses persisted by a previous Scan.
func New(bus onewire.Bus, store eeprom.Store, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Reserved < 0 || opts.Reserved > store.Size() {
		return nil, errors.New("dsfamily: invalid reserved size")
	}
	d := &Dev{
		bus:      bus,
		store:    store,
		capacity: (store.Size() - opts.Reserved) / entrySize,
		w:        window{duration: conversionTime(12), parasitic: true},
	}
	if d.capacity < 1 {
		return nil, errors.New("dsfamily: store too small for a single device")
	}
	return d, nil
}

// Dev is a directory of DS-family thermometers on a 1-wire bus.
//
// All methods are safe for concurrent use, each holds the directory for its
// whole duration.
type Dev struct {
	mu       sync.Mutex
	bus      onewire.Bus
	store    eeprom.Store
	capacity int
	count    int
	w        window
}

func (d *Dev) String() string {
	return "dsfamily{" + d.bus.String() + "}"
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

//

// checkIndex returns ErrInvalidIndex when i is not in the directory.
func (d *Dev) checkIndex(i int) error {
	if i < 0 || i >= d.count {
		return ErrInvalidIndex
	}
	return nil
}

// tx sends a command that is not a conversion.
func (d *Dev) tx(w, r []byte, power onewire.Pullup) error {
	d.parasiticWait()
	d.w.lastWasConvert = false
	return d.bus.Tx(w, r, power)
}

// command returns the bytes selecting the device followed by cmd.
func command(a onewire.Address, cmd ...byte) []byte {
	w := make([]byte, 9, 9+len(cmd))
	w[0] = cmdMatchROM
	for i := 0; i < 8; i++ {
		w[i+1] = byte(a >> uint(8*i))
	}
	return append(w, cmd...)
}

var (
	sleep = time.Sleep
	now   = time.Now
)

var _ conn.Resource = &Dev{}
