// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dsfamily

import (
	"encoding/binary"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/GermanBionicSystems/dsfamily/dsfamily/dsfamilytest"
	"github.com/GermanBionicSystems/dsfamily/eeprom"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/onewire/onewiretest"
)

// addr is a DS18B20 with a valid CRC.
const addr onewire.Address = 0x740000070e41ac28

// spad is the power up scratchpad of a DS18B20.
var spad = []byte{0x50, 0x05, 0x4B, 0x46, 0x7F, 0xFF, 0x0C, 0x10, 0x1C}

func TestNew(t *testing.T) {
	data := []struct {
		name     string
		size     int
		reserved int
		capacity int
		err      bool
	}{
		{"default", 1024, 0, 128, false},
		{"reserved", 1024, 100, 115, false},
		{"single", 8, 0, 1, false},
		{"too small", 7, 0, 0, true},
		{"reserved all", 16, 9, 0, true},
		{"reserved too large", 16, 17, 0, true},
		{"reserved negative", 16, -1, 0, true},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			d, err := New(dsfamilytest.NewBus(), eeprom.NewMem(line.size), &Opts{Reserved: line.reserved})
			if line.err {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if c := d.Capacity(); c != line.capacity {
				t.Fatalf("capacity %d, expected %d", c, line.capacity)
			}
			if d.Count() != 0 {
				t.Fatal("expected empty directory")
			}
			if d.ConversionTime() != 750*time.Millisecond || !d.Parasitic() {
				t.Fatal("unexpected initial window")
			}
		})
	}
	d, err := New(dsfamilytest.NewBus(), eeprom.NewMem(8), nil)
	if err != nil {
		t.Fatal(err)
	}
	if s := d.String(); s != "dsfamily{dsfamilytest}" {
		t.Fatal(s)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
}

func TestFamily(t *testing.T) {
	data := []struct {
		f     Family
		s     string
		known bool
	}{
		{DS18S20, "DS18S20", true},
		{DS1822, "DS1822", true},
		{DS18B20, "DS18B20", true},
		{DS1825, "DS1825", true},
		{DS28EA00, "DS28EA00", true},
		{0x01, "unknown(0x01)", false},
	}
	for _, line := range data {
		if s := line.f.String(); s != line.s {
			t.Errorf("%s != %s", s, line.s)
		}
		if line.f.Known() != line.known {
			t.Errorf("%s: Known() != %t", line.s, line.known)
		}
	}
	if f := FamilyOf(addr); f != DS18B20 {
		t.Fatal(f)
	}
}

func TestScan(t *testing.T) {
	clock.reset()
	devs := []*dsfamilytest.Device{
		dsfamilytest.NewDevice(0x28, 0x070e41ac),
		dsfamilytest.NewDevice(0x10, 0x0801b81c),
		dsfamilytest.NewDevice(0x01, 0x000001), // DS2401, not a thermometer
		dsfamilytest.NewDevice(0x22, 0x123456),
	}
	devs[0].Scratchpad[4] = 0x1F
	bus := dsfamilytest.NewBus(devs...)
	mem := eeprom.NewMem(64)
	d, err := New(bus, mem, nil)
	if err != nil {
		t.Fatal(err)
	}
	n, err := d.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || d.Count() != 3 {
		t.Fatalf("found %d devices", n)
	}
	all, err := bus.Search(false)
	if err != nil {
		t.Fatal(err)
	}
	var expected []onewire.Address
	for _, a := range all {
		if FamilyOf(a) != 0x01 {
			expected = append(expected, a)
		}
	}
	var got []onewire.Address
	for i := 0; i < n; i++ {
		a, err := d.Address(i)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, a)
		// Entries grow down from the end of the store.
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(a))
		if s := mem.Bytes()[64-8*(i+1) : 64-8*i]; !reflect.DeepEqual(s, b[:]) {
			t.Fatalf("entry %d: %#v", i, s)
		}
	}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("got %#x, expected %#x", got, expected)
	}
	if f, err := d.Family(1); err != nil || f != FamilyOf(expected[1]) {
		t.Fatal(f, err)
	}
	// Terminator.
	if s := mem.Bytes()[32:40]; !reflect.DeepEqual(s, make([]byte, 8)) {
		t.Fatalf("terminator %#v", s)
	}
	for _, dev := range devs {
		if dev.Family() == 0x01 {
			if dev.Copies != 0 || dev.Conversions != 1 {
				t.Fatalf("%s must not be configured", dev)
			}
			continue
		}
		if dev.Copies != 1 || dev.EEPROM[2] != dev.Scratchpad[4] || dev.Resolution() != 12 {
			t.Fatalf("%s not configured", dev)
		}
		if dev.Conversions != 1 {
			t.Fatalf("%s: %d conversions", dev, dev.Conversions)
		}
	}
	if d.Parasitic() {
		t.Fatal("no device is parasite powered")
	}
	if d.ConversionTime() != 750*time.Millisecond {
		t.Fatal(d.ConversionTime())
	}
	if _, err := d.Address(3); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("expected ErrInvalidIndex, got %v", err)
	}
	if _, err := d.Address(-1); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("expected ErrInvalidIndex, got %v", err)
	}
}

func TestScan_parasitic(t *testing.T) {
	clock.reset()
	devs := []*dsfamilytest.Device{dsfamilytest.NewDevice(0x28, 1), dsfamilytest.NewDevice(0x28, 2)}
	devs[1].Parasitic = true
	bus := dsfamilytest.NewBus(devs...)
	d, err := New(bus, eeprom.NewMem(64), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Scan(); err != nil {
		t.Fatal(err)
	}
	if !d.Parasitic() {
		t.Fatal("expected parasitic")
	}
	last := bus.Ops[len(bus.Ops)-1]
	expected := onewiretest.IO{W: []byte{0xCC, 0x44}, Pull: onewire.StrongPullup}
	if !reflect.DeepEqual(last, expected) {
		t.Fatalf("%#v != %#v", last, expected)
	}
}

func TestScan_capacity(t *testing.T) {
	clock.reset()
	bus := dsfamilytest.NewBus(
		dsfamilytest.NewDevice(0x28, 1),
		dsfamilytest.NewDevice(0x28, 2),
		dsfamilytest.NewDevice(0x28, 3),
	)
	d, err := New(bus, eeprom.NewMem(20), &Opts{Reserved: 4})
	if err != nil {
		t.Fatal(err)
	}
	n, err := d.Scan()
	if n != 2 || d.Count() != 2 {
		t.Fatalf("kept %d devices", n)
	}
	var ce *CapacityError
	if !errors.As(err, &ce) {
		t.Fatalf("expected a CapacityError, got %v", err)
	}
	if ce.Found != 3 || ce.Kept != 2 {
		t.Fatalf("unexpected %+v", ce)
	}
	// The directory is usable.
	if _, err := d.ReadTemperature(1, false); err != nil {
		t.Fatal(err)
	}
}

func TestScan_noDevice(t *testing.T) {
	clock.reset()
	bus := dsfamilytest.NewBus()
	d, err := New(bus, eeprom.NewMem(64), nil)
	if err != nil {
		t.Fatal(err)
	}
	if n, err := d.Scan(); n != 0 || err != nil {
		t.Fatal(n, err)
	}
	if len(bus.Ops) != 0 {
		t.Fatalf("unexpected traffic %#v", bus.Ops)
	}
}

func TestScan_badDevice(t *testing.T) {
	clock.reset()
	devs := []*dsfamilytest.Device{dsfamilytest.NewDevice(0x28, 1), dsfamilytest.NewDevice(0x28, 2)}
	devs[0].CorruptAlways = true
	d, err := New(dsfamilytest.NewBus(devs...), eeprom.NewMem(64), nil)
	if err != nil {
		t.Fatal(err)
	}
	n, err := d.Scan()
	if n != 2 {
		t.Fatalf("kept %d devices", n)
	}
	var ce *ChecksumError
	if !errors.As(err, &ce) || ce.Index != index(t, d, devs[0]) {
		t.Fatalf("expected a ChecksumError, got %v", err)
	}
	if devs[1].Copies != 1 || devs[1].Conversions != 1 {
		t.Fatal("the scan must complete")
	}
}

func TestScan_busError(t *testing.T) {
	p := &onewiretest.Playback{DontPanic: true}
	d, err := New(p, eeprom.NewMem(64), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Scan(); err == nil {
		t.Fatal("expected error")
	}
}

func TestScan_playback(t *testing.T) {
	clock.reset()
	ops := []onewiretest.IO{
		{W: []byte{0xF0}},
		{W: command(addr, 0xBE), R: spad},
		{W: command(addr, 0x4E, 0x4B, 0x46, 0x7F)},
		{W: command(addr, 0x48), Pull: onewire.StrongPullup},
		{W: []byte{0xCC, 0xB4}, R: []byte{0xFF}},
		{W: []byte{0xCC, 0x44}},
		// ReadTemperature after the full conversion time.
		{W: command(addr, 0xBE), R: spad},
	}
	p := &onewiretest.Playback{Ops: ops, Devices: []onewire.Address{addr}}
	d, err := New(p, eeprom.NewMem(64), nil)
	if err != nil {
		t.Fatal(err)
	}
	if n, err := d.Scan(); n != 1 || err != nil {
		t.Fatal(n, err)
	}
	v, err := d.ReadTemperature(0, false)
	if err != nil {
		t.Fatal(err)
	}
	if v != 85*16 {
		t.Fatal(v)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if expected := []time.Duration{nvWriteTime, 750 * time.Millisecond}; !reflect.DeepEqual(clock.slept, expected) {
		t.Fatalf("slept %v, expected %v", clock.slept, expected)
	}
}

func TestLoad(t *testing.T) {
	clock.reset()
	devs := []*dsfamilytest.Device{dsfamilytest.NewDevice(0x28, 1), dsfamilytest.NewDevice(0x3B, 2), dsfamilytest.NewDevice(0x42, 3)}
	mem := eeprom.NewMem(128)
	d, err := New(dsfamilytest.NewBus(devs...), mem, &Opts{Reserved: 16})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Scan(); err != nil {
		t.Fatal(err)
	}
	writes := mem.Writes

	// A restart reuses the directory without enumerating the bus.
	bus := dsfamilytest.NewBus(devs...)
	d2, err := New(bus, mem, &Opts{Reserved: 16})
	if err != nil {
		t.Fatal(err)
	}
	if n, err := d2.Load(); n != 3 || err != nil {
		t.Fatal(n, err)
	}
	for i := 0; i < 3; i++ {
		a1, _ := d.Address(i)
		a2, _ := d2.Address(i)
		if a1 != a2 {
			t.Fatalf("entry %d: %#x != %#x", i, a1, a2)
		}
	}
	if len(bus.Ops) != 0 || bus.Resets != 0 {
		t.Fatal("Load must not use the bus")
	}

	// Scanning the same devices again does not write to the store.
	if _, err := d2.Scan(); err != nil {
		t.Fatal(err)
	}
	if mem.Writes != writes {
		t.Fatalf("%d cells rewritten", mem.Writes-writes)
	}

	// A corrupted entry ends the directory.
	b := mem.Bytes()
	if _, err := mem.WriteAt([]byte{b[128-16] ^ 1}, 128-16); err != nil {
		t.Fatal(err)
	}
	if n, err := d2.Load(); n != 1 || err != nil {
		t.Fatal(n, err)
	}
}

func TestLoad_erased(t *testing.T) {
	d, err := New(dsfamilytest.NewBus(), eeprom.NewMem(64), nil)
	if err != nil {
		t.Fatal(err)
	}
	if n, err := d.Load(); n != 0 || err != nil {
		t.Fatal(n, err)
	}
}

//

// newSim returns a directory of the simulated devices, scanned.
func newSim(t *testing.T, devs ...*dsfamilytest.Device) (*Dev, *dsfamilytest.Bus) {
	clock.reset()
	bus := dsfamilytest.NewBus(devs...)
	d, err := New(bus, eeprom.NewMem(512), nil)
	if err != nil {
		t.Fatal(err)
	}
	n, err := d.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if n != len(devs) {
		t.Fatalf("found %d devices, expected %d", n, len(devs))
	}
	clock.reset()
	return d, bus
}

// index returns the index of dev in the directory.
func index(t *testing.T, d *Dev, dev *dsfamilytest.Device) int {
	for i := 0; i < d.Count(); i++ {
		if a, _ := d.Address(i); a == dev.Addr() {
			return i
		}
	}
	t.Fatalf("%s not found", dev)
	return -1
}

// newPlayback returns a directory holding the addresses, loaded from the
// store.
func newPlayback(t *testing.T, ops []onewiretest.IO, addrs ...onewire.Address) (*Dev, *onewiretest.Playback) {
	clock.reset()
	mem := eeprom.NewMem(64)
	for i, a := range addrs {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(a))
		if _, err := mem.WriteAt(b[:], int64(64-8*(i+1))); err != nil {
			t.Fatal(err)
		}
	}
	p := &onewiretest.Playback{Ops: ops}
	d, err := New(p, mem, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n, err := d.Load(); n != len(addrs) || err != nil {
		t.Fatal(n, err)
	}
	return d, p
}

type fakeClock struct {
	mu    sync.Mutex
	t     time.Time
	slept []time.Duration
}

// reset forgets the recorded sleeps. Time never goes backward.
func (c *fakeClock) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = nil
}

func (c *fakeClock) sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	c.slept = append(c.slept, d)
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

var clock = &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

func init() {
	sleep = clock.sleep
	now = clock.now
}
