// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dsfamily

import (
	"periph.io/x/conn/v3/physic"
)

// Raw is a temperature in 1/16°C, as encoded by the devices.
type Raw int16

// BadTemperature is returned along an error when no temperature could be
// read. It is -55°C, the lowest temperature the devices measure.
const BadTemperature Raw = -880

// RawFromTemperature converts t to the nearest Raw value.
func RawFromTemperature(t physic.Temperature) Raw {
	v := (t - physic.ZeroCelsius) * 16
	if v < 0 {
		return Raw((v - physic.Kelvin/2) / physic.Kelvin)
	}
	return Raw((v + physic.Kelvin/2) / physic.Kelvin)
}

// Celsius returns the temperature in °C.
func (r Raw) Celsius() float64 {
	return float64(r) / 16
}

// Temperature converts to a physic.Temperature.
func (r Raw) Temperature() physic.Temperature {
	return physic.Temperature(r)*physic.Kelvin/16 + physic.ZeroCelsius
}

func (r Raw) String() string {
	return r.Temperature().String()
}

// ReadTemperature returns the temperature measured by the last conversion of
// the device, waiting for the conversion window to end first.
//
// Unless raw is set, the calibration offset stored in the device is applied.
// On error BadTemperature is returned.
func (d *Dev) ReadTemperature(i int, raw bool) (Raw, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkIndex(i); err != nil {
		return BadTemperature, err
	}
	return d.readTemperature(i, raw)
}

//

func (d *Dev) readTemperature(i int, raw bool) (Raw, error) {
	a, err := d.address(i)
	if err != nil {
		return BadTemperature, err
	}
	if err := d.waitForRead(); err != nil {
		return BadTemperature, err
	}
	spad, err := d.readScratchpad(i)
	if err != nil {
		return BadTemperature, err
	}
	t := decode(FamilyOf(a), &spad)
	if !raw && calibrated(&spad) {
		t += Raw(int8(spad[2]))
	}
	return t, nil
}

// decode returns the temperature held in the scratchpad.
func decode(f Family, spad *[9]byte) Raw {
	v := int16(spad[1])<<8 | int16(spad[0])
	if f == DS18S20 {
		// Half degrees, refined with the count remain of a 16 counts per
		// degree counter. Datasheet p.4.
		v = (v<<3)&^0xF + 12 - int16(spad[6])
	}
	return Raw(v)
}
