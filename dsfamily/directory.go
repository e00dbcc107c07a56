// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dsfamily

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/GermanBionicSystems/dsfamily/common"
	"periph.io/x/conn/v3/onewire"
)

// entrySize is the size of an address in the store.
const entrySize = 8

// Scan enumerates the bus and rebuilds the directory with every device of a
// known family, in discovery order. It returns the number of devices kept.
//
// Every device is set to 12 bits resolution. Scan then detects whether any
// device is parasite powered and starts a conversion on all devices, so a
// first reading is available 750ms later.
//
// Devices that do not fit in the store are dropped and reported with a
// *CapacityError. A device that cannot be configured is kept in the
// directory and its error is returned once the scan completed.
func (d *Dev) Scan() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.w.lastWasConvert = false
	d.count = 0
	found, err := d.bus.Search(false)
	if err != nil && !isBusError(err) {
		return 0, err
	}
	var firstErr error
	dropped := 0
	for _, a := range found {
		if !FamilyOf(a).Known() {
			continue
		}
		if d.count == d.capacity {
			dropped++
			continue
		}
		if err := d.putEntry(d.count, a); err != nil {
			return d.count, err
		}
		d.count++
		if err := d.setResolution(d.count-1, 12); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("dsfamily: failed to configure device %d: %w", d.count-1, err)
		}
	}
	if d.count < d.capacity {
		// Terminates the table for Load.
		if err := d.putEntry(d.count, 0); err != nil {
			return d.count, err
		}
	}
	if d.count == 0 {
		return 0, nil
	}
	parasitic, err := d.readPower()
	if err != nil {
		return d.count, err
	}
	d.w.parasitic = parasitic
	if err := d.startConversion(-1, false); err != nil {
		return d.count, err
	}
	if dropped != 0 {
		return d.count, &CapacityError{Found: d.count + dropped, Kept: d.count}
	}
	return d.count, firstErr
}

// Load rebuilds the directory from the addresses persisted by a previous
// Scan, without any bus traffic.
//
// The directory ends at the first entry that fails its CRC or is not of a
// known family. Devices are assumed parasite powered until the next Scan.
func (d *Dev) Load() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count = 0
	for i := 0; i < d.capacity; i++ {
		var b [entrySize]byte
		if _, err := d.store.ReadAt(b[:], d.offset(i)); err != nil {
			return d.count, err
		}
		if !common.CheckCRC8(b[:]) || !Family(b[0]).Known() {
			break
		}
		d.count++
	}
	return d.count, nil
}

// Count returns the number of devices in the directory.
func (d *Dev) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Capacity returns the number of devices the store can hold.
func (d *Dev) Capacity() int {
	return d.capacity
}

// Address returns the address of the device, as read from the store.
func (d *Dev) Address(i int) (onewire.Address, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkIndex(i); err != nil {
		return 0, err
	}
	return d.address(i)
}

// Family returns the family of the device.
func (d *Dev) Family(i int) (Family, error) {
	a, err := d.Address(i)
	return FamilyOf(a), err
}

//

// offset returns the position of entry i in the store.
func (d *Dev) offset(i int) int64 {
	return int64(d.store.Size() - (i+1)*entrySize)
}

func (d *Dev) address(i int) (onewire.Address, error) {
	var b [entrySize]byte
	if _, err := d.store.ReadAt(b[:], d.offset(i)); err != nil {
		return 0, err
	}
	return onewire.Address(binary.LittleEndian.Uint64(b[:])), nil
}

// putEntry writes the address at entry i unless it is already there.
func (d *Dev) putEntry(i int, a onewire.Address) error {
	var cur, b [entrySize]byte
	binary.LittleEndian.PutUint64(b[:], uint64(a))
	if _, err := d.store.ReadAt(cur[:], d.offset(i)); err != nil {
		return err
	}
	if bytes.Equal(cur[:], b[:]) {
		return nil
	}
	_, err := d.store.WriteAt(b[:], d.offset(i))
	return err
}

// readPower returns true if any device is parasite powered.
func (d *Dev) readPower() (bool, error) {
	if br, ok := d.bus.(BitReader); ok {
		if err := d.tx([]byte{cmdSkipROM, cmdReadPower}, nil, onewire.WeakPullup); err != nil {
			return false, err
		}
		b, err := br.ReadBit()
		return b == 0, err
	}
	var r [1]byte
	if err := d.tx([]byte{cmdSkipROM, cmdReadPower}, r[:], onewire.WeakPullup); err != nil {
		return false, err
	}
	return r[0]&1 == 0, nil
}

// isBusError returns true for errors on the 1-wire bus itself, which leave
// the bus master usable.
func isBusError(err error) bool {
	if e, ok := err.(onewire.NoDevicesError); ok && e.NoDevices() {
		return true
	}
	e, ok := err.(onewire.BusError)
	return ok && e.BusError()
}
