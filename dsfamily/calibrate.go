// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dsfamily

import (
	"errors"
	"math"
)

// Calibrate computes and stores a calibration offset for each of the first
// MaxCalibrated devices, which must all be at the same temperature.
//
// Every device is read iterations times, with a conversion of all devices
// between two rounds. The reference is target when set, otherwise the mean of
// all readings. Each device gets the difference between the reference and its
// own mean, saturated to the int8 range. The offsets are returned in index
// order.
func (d *Dev) Calibrate(iterations int, target *Raw) ([]int8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if iterations < 1 {
		return nil, errors.New("dsfamily: iterations must be at least 1")
	}
	n := min(d.count, MaxCalibrated)
	if n == 0 {
		return nil, ErrEmptySet
	}
	sums := make([]int64, n)
	for it := 0; it < iterations; it++ {
		for x := range sums {
			t, err := d.readTemperature(x, true)
			if err != nil {
				return nil, err
			}
			sums[x] += int64(t)
		}
		if err := d.startConversion(-1, false); err != nil {
			return nil, err
		}
		sleep(d.w.duration)
	}
	var ref int64
	if target != nil {
		ref = int64(*target)
	} else {
		for _, s := range sums {
			ref += s
		}
		ref = ref / int64(iterations) / int64(n)
	}
	offsets := make([]int8, n)
	for x, s := range sums {
		o := ref - s/int64(iterations)
		switch {
		case o > math.MaxInt8:
			o = math.MaxInt8
		case o < math.MinInt8:
			o = math.MinInt8
		}
		offsets[x] = int8(o)
		if err := d.setCalibration(x, offsets[x]); err != nil {
			return offsets[:x], err
		}
	}
	return offsets, nil
}
