// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dsfamilytest

import (
	"sync"

	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/onewire/onewiretest"
)

// Bus is a 1-wire bus with simulated devices attached.
//
// It implements onewire.Bus, onewire.BusSearcher and the slot level methods
// of a bit banging master. Every Tx is appended to Ops.
type Bus struct {
	sync.Mutex
	Devices []*Device
	Ops     []onewiretest.IO
	// Resets counts the reset pulses, including the ones issued by Tx.
	Resets int
}

// NewBus returns a bus with the devices attached.
func NewBus(devs ...*Device) *Bus {
	return &Bus{Devices: devs}
}

func (b *Bus) String() string {
	return "dsfamilytest"
}

// Halt implements conn.Resource.
func (b *Bus) Halt() error {
	return nil
}

// Tx implements onewire.Bus.
func (b *Bus) Tx(w, r []byte, pull onewire.Pullup) error {
	b.Lock()
	defer b.Unlock()
	if !b.reset() {
		return noDevicesError("dsfamilytest: no device present")
	}
	io := onewiretest.IO{Pull: pull}
	if len(w) != 0 {
		io.W = append([]byte(nil), w...)
	}
	for _, v := range w {
		b.writeByte(v)
	}
	for i := range r {
		r[i] = b.readByte()
	}
	if len(r) != 0 {
		io.R = append([]byte(nil), r...)
	}
	b.Ops = append(b.Ops, io)
	return nil
}

// Search implements onewire.Bus.
func (b *Bus) Search(alarmOnly bool) ([]onewire.Address, error) {
	return onewire.Search(b, alarmOnly)
}

// SearchTriplet implements onewire.BusSearcher.
func (b *Bus) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	b.Lock()
	defer b.Unlock()
	id := slotAll(b.Devices, 1)
	cmp := slotAll(b.Devices, 1)
	tr := onewire.TripletResult{GotZero: id == 0, GotOne: cmp == 0, Taken: 1}
	switch {
	case id != cmp:
		tr.Taken = id
	case id == 0:
		tr.Taken = direction & 1
	}
	slotAll(b.Devices, tr.Taken)
	return tr, nil
}

// Reset issues a reset pulse and reports the presence of any device.
func (b *Bus) Reset() (bool, error) {
	b.Lock()
	defer b.Unlock()
	return b.reset(), nil
}

// ReadBit runs a read slot.
func (b *Bus) ReadBit() (byte, error) {
	b.Lock()
	defer b.Unlock()
	return slotAll(b.Devices, 1), nil
}

// WriteBit runs a write slot.
func (b *Bus) WriteBit(v byte) error {
	b.Lock()
	defer b.Unlock()
	slotAll(b.Devices, v)
	return nil
}

// WriteByte writes v least significant bit first.
func (b *Bus) WriteByte(v byte) error {
	b.Lock()
	defer b.Unlock()
	b.writeByte(v)
	return nil
}

// ReadByte reads 8 bits, least significant bit first.
func (b *Bus) ReadByte() (byte, error) {
	b.Lock()
	defer b.Unlock()
	return b.readByte(), nil
}

//

func (b *Bus) reset() bool {
	b.Resets++
	return resetAll(b.Devices)
}

func (b *Bus) writeByte(v byte) {
	for i := 0; i < 8; i++ {
		slotAll(b.Devices, v>>uint(i))
	}
}

func (b *Bus) readByte() byte {
	var v byte
	for i := 0; i < 8; i++ {
		v |= slotAll(b.Devices, 1) << uint(i)
	}
	return v
}

// noDevicesError implements error and onewire.NoDevicesError.
type noDevicesError string

func (e noDevicesError) Error() string   { return string(e) }
func (e noDevicesError) BusError() bool  { return true }
func (e noDevicesError) NoDevices() bool { return true }

var _ onewire.Bus = &Bus{}
var _ onewire.BusSearcher = &Bus{}
