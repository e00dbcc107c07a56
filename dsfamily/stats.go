// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dsfamily

import (
	"math"
)

// Min reads every device not excluded and returns the lowest calibrated
// temperature.
//
// Excluding devices is useful when one of them is known to be out of band,
// for example a sensor attached to an evaporator plate.
func (d *Dev) Min(exclude ...int) (Raw, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.readAll(exclude)
	if err != nil {
		return BadTemperature, err
	}
	m := v[0]
	for _, t := range v[1:] {
		m = min(m, t)
	}
	return m, nil
}

// Max reads every device not excluded and returns the highest calibrated
// temperature.
func (d *Dev) Max(exclude ...int) (Raw, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.readAll(exclude)
	if err != nil {
		return BadTemperature, err
	}
	m := v[0]
	for _, t := range v[1:] {
		m = max(m, t)
	}
	return m, nil
}

// Average reads every device not excluded and returns the mean calibrated
// temperature, truncated toward zero.
func (d *Dev) Average(exclude ...int) (Raw, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.readAll(exclude)
	if err != nil {
		return BadTemperature, err
	}
	return Raw(sum(v) / int64(len(v))), nil
}

// StdDev reads every device not excluded and returns the population standard
// deviation of the calibrated temperatures, in 1/16°C.
func (d *Dev) StdDev(exclude ...int) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.readAll(exclude)
	if err != nil {
		return 0, err
	}
	mean := float64(sum(v)) / float64(len(v))
	var acc float64
	for _, t := range v {
		acc += (float64(t) - mean) * (float64(t) - mean)
	}
	return math.Sqrt(acc / float64(len(v))), nil
}

//

// readAll returns the calibrated temperature of every device not excluded.
func (d *Dev) readAll(exclude []int) ([]Raw, error) {
	skip := make(map[int]bool, len(exclude))
	for _, i := range exclude {
		if err := d.checkIndex(i); err != nil {
			return nil, err
		}
		skip[i] = true
	}
	var out []Raw
	for i := 0; i < d.count; i++ {
		if skip[i] {
			continue
		}
		t, err := d.readTemperature(i, false)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, ErrEmptySet
	}
	return out, nil
}

func sum(v []Raw) int64 {
	var s int64
	for _, t := range v {
		s += int64(t)
	}
	return s
}
