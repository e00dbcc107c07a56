// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dsfamily

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

// Sensor returns a handle to a single device of the directory.
//
// The handle refers to the device by index, a later Scan may change the
// device it designates.
func (d *Dev) Sensor(i int) (*Sensor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkIndex(i); err != nil {
		return nil, err
	}
	return &Sensor{d: d, index: i}, nil
}

// Sensor is a single device of a directory, usable wherever a
// physic.SenseEnv is expected.
type Sensor struct {
	d     *Dev
	index int

	mu       sync.Mutex
	shutdown chan struct{}
	wg       sync.WaitGroup
}

func (s *Sensor) String() string {
	return fmt.Sprintf("%s[%d]", s.d, s.index)
}

// Index returns the index of the device in the directory.
func (s *Sensor) Index() int {
	return s.index
}

// Halt implements conn.Resource.
//
// It stops a SenseContinuous loop.
func (s *Sensor) Halt() error {
	s.mu.Lock()
	if s.shutdown != nil {
		close(s.shutdown)
		s.shutdown = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// Sense implements physic.SenseEnv.
//
// It starts a conversion on the device, waits for it and reads the
// calibrated temperature.
func (s *Sensor) Sense(e *physic.Env) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.checkIndex(s.index); err != nil {
		return err
	}
	if err := s.d.startConversion(s.index, true); err != nil {
		return err
	}
	t, err := s.d.readTemperature(s.index, false)
	if err != nil {
		return err
	}
	e.Temperature = t.Temperature()
	return nil
}

// SenseContinuous implements physic.SenseEnv.
//
// The interval must be at least the conversion time. Readings that fail are
// skipped. Call Halt to stop.
func (s *Sensor) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < s.d.ConversionTime() {
		return nil, errors.New("dsfamily: interval shorter than the conversion time")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown != nil {
		return nil, errors.New("dsfamily: already sensing continuously")
	}
	s.shutdown = make(chan struct{})
	c := make(chan physic.Env, 16)
	s.wg.Add(1)
	go func(shutdown <-chan struct{}) {
		defer s.wg.Done()
		defer close(c)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-shutdown:
				return
			case <-t.C:
				e := physic.Env{}
				if err := s.Sense(&e); err != nil {
					continue
				}
				select {
				case c <- e:
				case <-shutdown:
					return
				}
			}
		}
	}(s.shutdown)
	return c, nil
}

// Precision implements physic.SenseEnv.
func (s *Sensor) Precision(e *physic.Env) {
	e.Temperature = physic.Kelvin / 16
}

var _ conn.Resource = &Sensor{}
var _ physic.SenseEnv = &Sensor{}
