// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package at24c

import (
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/GermanBionicSystems/dsfamily/eeprom"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestNew(t *testing.T) {
	data := []struct {
		name string
		addr uint16
		opts *Opts
	}{
		{"addr", 0x48, nil},
		{"size", 0x50, &Opts{Size: 0, PageSize: 8}},
		{"large", 0x50, &Opts{Size: 1 << 17, PageSize: 128}},
		{"page", 0x50, &Opts{Size: 256, PageSize: 0}},
		{"page multiple", 0x50, &Opts{Size: 256, PageSize: 12}},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			if _, err := New(&i2ctest.Playback{}, line.addr, line.opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	d, err := New(&i2ctest.Playback{}, 0x57, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s := d.String(); s != "AT24C{playback(87)}" {
		t.Fatal(s)
	}
	if d.Size() != 4096 {
		t.Fatal(d.Size())
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
}

func TestDev_ReadAt(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x50, W: []byte{0x01, 0x02}, R: []byte{1, 2, 3}},
			{Addr: 0x50, W: []byte{0x0f, 0xfe}, R: []byte{4, 5}},
		},
	}
	d, err := New(&bus, 0x50, nil)
	if err != nil {
		t.Fatal(err)
	}
	p := make([]byte, 3)
	if n, err := d.ReadAt(p, 0x102); n != 3 || err != nil {
		t.Fatal(n, err)
	}
	if !reflect.DeepEqual(p, []byte{1, 2, 3}) {
		t.Fatalf("%#v", p)
	}
	// Short read at the end of the memory.
	if n, err := d.ReadAt(p, 4094); n != 2 || err != io.EOF {
		t.Fatal(n, err)
	}
	if n, err := d.ReadAt(p, 4096); n != 0 || err != io.EOF {
		t.Fatal(n, err)
	}
	if _, err := d.ReadAt(p, 4097); err != eeprom.ErrOutOfRange {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDev_WriteAt(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x50, W: []byte{0x00, 0x1e, 1, 2}},
			{Addr: 0x50, W: []byte{0x00, 0x20, 3, 4, 5}},
		},
	}
	d, err := New(&bus, 0x50, nil)
	if err != nil {
		t.Fatal(err)
	}
	var slept []time.Duration
	sleep = func(d time.Duration) { slept = append(slept, d) }
	defer func() { sleep = func(time.Duration) {} }()
	if n, err := d.WriteAt([]byte{1, 2, 3, 4, 5}, 30); n != 5 || err != nil {
		t.Fatal(n, err)
	}
	if expected := []time.Duration{writeCycle, writeCycle}; !reflect.DeepEqual(slept, expected) {
		t.Fatalf("%v != %v", slept, expected)
	}
	if _, err := d.WriteAt([]byte{1}, 4096); err != eeprom.ErrOutOfRange {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDev_small(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x51, W: []byte{0xfe, 9, 8}},
			{Addr: 0x51, W: []byte{0xfe}, R: []byte{9, 8}},
		},
	}
	d, err := New(&bus, 0x51, &Opts{Size: 256, PageSize: 8})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.WriteAt([]byte{9, 8}, 254); err != nil {
		t.Fatal(err)
	}
	p := make([]byte, 2)
	if _, err := d.ReadAt(p, 254); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDev_errors(t *testing.T) {
	bus := i2ctest.Playback{DontPanic: true}
	d, err := New(&bus, 0x50, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n, err := d.WriteAt([]byte{1}, 0); n != 0 || err == nil {
		t.Fatal(n, err)
	}
	if _, err := d.ReadAt(make([]byte, 1), 0); err == nil || errors.Is(err, eeprom.ErrOutOfRange) {
		t.Fatal(err)
	}
}

func init() {
	sleep = func(time.Duration) {}
}
