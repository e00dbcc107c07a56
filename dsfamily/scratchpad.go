// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dsfamily

import (
	"github.com/GermanBionicSystems/dsfamily/common"
	"periph.io/x/conn/v3/onewire"
)

// Scratchpad returns the 9 bytes of the device's scratchpad, CRC included.
func (d *Dev) Scratchpad(i int) ([9]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkIndex(i); err != nil {
		return [9]byte{}, err
	}
	return d.readScratchpad(i)
}

// SetResolution sets the resolution of the device in bits and persists it in
// the device's EEPROM. Values outside of 9..12 select 12 bits.
//
// The resolution sets the conversion time used for the whole bus:
// 9bits:94ms, 10bits:188ms, 11bits:375ms, 12bits:750ms.
//
// A DS18S20 has a fixed resolution, only the conversion time changes.
func (d *Dev) SetResolution(i, bits int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkIndex(i); err != nil {
		return err
	}
	return d.setResolution(i, bits)
}

// Resolution returns the resolution of the device in bits.
func (d *Dev) Resolution(i int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkIndex(i); err != nil {
		return 0, err
	}
	spad, err := d.readScratchpad(i)
	if err != nil {
		return 0, err
	}
	return int((spad[4]>>5)&3) + 9, nil
}

// SetCalibration stores the offset, in 1/16°C, in the device's user bytes.
// It is added to every temperature read unless raw values are requested.
func (d *Dev) SetCalibration(i int, offset int8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkIndex(i); err != nil {
		return err
	}
	return d.setCalibration(i, offset)
}

// Calibration returns the offset stored in the device. ok is false when the
// device was never calibrated.
func (d *Dev) Calibration(i int) (offset int8, ok bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkIndex(i); err != nil {
		return 0, false, err
	}
	spad, err := d.readScratchpad(i)
	if err != nil {
		return 0, false, err
	}
	if !calibrated(&spad) {
		return 0, false, nil
	}
	return int8(spad[2]), true, nil
}

//

func (d *Dev) setResolution(i, bits int) error {
	if bits < 9 || bits > 12 {
		bits = 12
	}
	d.w.duration = conversionTime(bits)
	spad, err := d.readScratchpad(i)
	if err != nil {
		return err
	}
	return d.writeScratchpad(i, spad[2], spad[3], byte(bits-9)<<5|0x1F)
}

func (d *Dev) setCalibration(i int, offset int8) error {
	spad, err := d.readScratchpad(i)
	if err != nil {
		return err
	}
	return d.writeScratchpad(i, byte(offset), ^byte(offset), spad[4])
}

// readScratchpad reads the scratchpad until its CRC is valid.
func (d *Dev) readScratchpad(i int) ([9]byte, error) {
	var spad [9]byte
	a, err := d.address(i)
	if err != nil {
		return spad, err
	}
	w := command(a, cmdReadScratchpad)
	for n := 0; n < readAttempts; n++ {
		if err := d.tx(w, spad[:], onewire.WeakPullup); err != nil {
			return spad, err
		}
		if common.CheckCRC8(spad[:]) {
			return spad, nil
		}
	}
	e := &ChecksumError{Index: i, Attempts: readAttempts, NoResponse: true}
	for _, b := range spad {
		if b != 0xFF {
			e.NoResponse = false
			break
		}
	}
	return spad, e
}

// writeScratchpad writes the user bytes and the configuration register then
// copies them to the device's EEPROM.
func (d *Dev) writeScratchpad(i int, ub1, ub2, config byte) error {
	a, err := d.address(i)
	if err != nil {
		return err
	}
	if err := d.tx(command(a, cmdWriteScratchpad, ub1, ub2, config), nil, onewire.WeakPullup); err != nil {
		return err
	}
	// Parasite powered devices draw their EEPROM write current from the bus.
	if err := d.tx(command(a, cmdCopyScratchpad), nil, onewire.StrongPullup); err != nil {
		return err
	}
	sleep(nvWriteTime)
	return nil
}

// calibrated returns true when the user bytes hold an offset and its
// complement.
func calibrated(spad *[9]byte) bool {
	return spad[2]^spad[3] == 0xFF
}
