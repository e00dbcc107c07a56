// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds248x

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/onewire"
)

// PupOhm selects the passive pull-up resistor of the DS2483.
type PupOhm uint8

const (
	// R500Ω passive pull-up resistor.
	R500Ω PupOhm = 4
	// R1000Ω passive pull-up resistor.
	R1000Ω PupOhm = 6
)

// Opts contains options to pass to the constructor.
type Opts struct {
	// PassivePullup disables the active pull-up.
	PassivePullup bool

	// The remaining fields are only used by the DS2483. The value programmed
	// is the closest one the chip supports.
	ResetLow       time.Duration // 440µs..740µs
	PresenceDetect time.Duration // 58µs..76µs
	Write0Low      time.Duration // 52µs..70µs
	Write0Recovery time.Duration // 2750ns..25250ns
	PullupRes      PupOhm
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	ResetLow:       560 * time.Microsecond,
	PresenceDetect: 68 * time.Microsecond,
	Write0Low:      64 * time.Microsecond,
	Write0Recovery: 5250 * time.Nanosecond,
	PullupRes:      R1000Ω,
}

// Variant identifies the bridge chip found by New.
type Variant int

// Supported bridges.
const (
	DS2482x100 Variant = iota
	DS2482x800
	DS2483
)

func (v Variant) String() string {
	switch v {
	case DS2482x100:
		return "DS2482-100"
	case DS2482x800:
		return "DS2482-800"
	case DS2483:
		return "DS2483"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// New opens the 1-wire bridge at addr on the I²C bus and probes which chip
// it is.
//
// Valid I²C addresses are 0x18, 0x19, 0x20 and 0x21.
func New(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	switch addr {
	case 0x18, 0x19, 0x20, 0x21:
	default:
		return nil, errors.New("ds248x: given address not supported by device")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{
		c:      &i2c.Dev{Bus: b, Addr: addr},
		tReset: 2 * opts.ResetLow,
		tSlot:  opts.Write0Low + opts.Write0Recovery,
	}
	if err := d.init(opts); err != nil {
		return nil, err
	}
	return d, nil
}

// Dev is a DS2482-100, DS2482-800 or DS2483 bridge.
//
// It implements onewire.Bus and onewire.BusSearcher, plus the single slot
// operations ReadBit and WriteBit used to poll for the end of a temperature
// conversion.
//
// Dev uses a persistent error model: once the bridge itself fails, every
// later call returns that error and a new Dev must be created. Errors on the
// 1-wire side implement onewire.BusError and are not persistent.
type Dev struct {
	mu      sync.Mutex
	c       conn.Conn
	variant Variant
	confReg byte
	tReset  time.Duration // duration of a 1-wire reset
	tSlot   time.Duration // duration of a single 1-wire slot
	err     error
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{%s}", d.variant, d.c)
}

// Variant returns the bridge chip detected.
func (d *Dev) Variant() Variant {
	return d.variant
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Tx implements onewire.Bus.
//
// It resets the bus, writes w, reads r and, when power is
// onewire.StrongPullup, leaves the strong pull-up on after the last byte.
func (d *Dev) Tx(w, r []byte, power onewire.Pullup) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if present, err := d.reset(); err != nil {
		return err
	} else if !present {
		return noDevicesError("ds248x: no device present")
	}
	for i, v := range w {
		if power == onewire.StrongPullup && i == len(w)-1 && len(r) == 0 {
			d.strongPullup()
		}
		d.i2cTx([]byte{cmd1WWrite, v}, nil)
		d.waitIdle(7 * d.tSlot)
	}
	for i := range r {
		if power == onewire.StrongPullup && i == len(r)-1 {
			d.strongPullup()
		}
		d.i2cTx([]byte{cmd1WRead}, nil)
		d.waitIdle(7 * d.tSlot)
		d.i2cTx([]byte{cmdSetReadPtr, regRDR}, r[i:i+1])
	}
	return d.err
}

// Search implements onewire.Bus.
func (d *Dev) Search(alarmOnly bool) ([]onewire.Address, error) {
	return onewire.Search(d, alarmOnly)
}

// SearchTriplet implements onewire.BusSearcher.
//
// Use Search instead.
func (d *Dev) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	var dir byte
	if direction != 0 {
		dir = 0x80
	}
	d.i2cTx([]byte{cmd1WTriplet, dir}, nil)
	// The three slots overlap the status polling.
	status := d.waitIdle(0)
	tr := onewire.TripletResult{
		GotZero: status&statusSBR == 0,
		GotOne:  status&statusTSB == 0,
		Taken:   status >> 7,
	}
	return tr, d.err
}

// Reset issues a reset pulse and reports whether a device answered.
func (d *Dev) Reset() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reset()
}

// ReadBit runs a read slot and returns the bit sampled.
func (d *Dev) ReadBit() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bit(1)
}

// WriteBit runs a write slot with the least significant bit of v.
func (d *Dev) WriteBit(v byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.bit(v)
	return err
}

// SelectChannel selects one of the eight 1-wire channels of a DS2482-800.
// ch is clamped to [0, 7]. It does nothing on the other chips.
func (d *Dev) SelectChannel(ch int) error {
	if d.variant != DS2482x800 {
		return nil
	}
	if ch < 0 {
		ch = 0
	} else if ch > 7 {
		ch = 7
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.c.Tx([]byte{cmdChannelSelect, channels[ch].w}, nil); err != nil {
		return fmt.Errorf("ds248x: error while selecting channel: %w", err)
	}
	return nil
}

// Channel returns the channel selected on a DS2482-800, 0 on the other
// chips.
func (d *Dev) Channel() (int, error) {
	if d.variant != DS2482x800 {
		return 0, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var v [1]byte
	if err := d.c.Tx([]byte{cmdSetReadPtr, regCSR}, v[:]); err != nil {
		return 0, fmt.Errorf("ds248x: error while reading channel: %w", err)
	}
	for i, c := range channels {
		if c.r == v[0] {
			return i, nil
		}
	}
	return 0, fmt.Errorf("ds248x: invalid channel selection register value %#x", v[0])
}

//

func (d *Dev) reset() (bool, error) {
	d.i2cTx([]byte{cmd1WReset}, nil)
	status := d.waitIdle(d.tReset)
	if d.err != nil {
		return false, d.err
	}
	if status&statusSD != 0 {
		return false, shortedBusError("ds248x: bus has a short")
	}
	return status&statusPPD != 0, nil
}

func (d *Dev) bit(v byte) (byte, error) {
	var b byte
	if v&1 != 0 {
		b = 0x80
	}
	d.i2cTx([]byte{cmd1WBit, b}, nil)
	status := d.waitIdle(d.tSlot)
	if d.err != nil {
		return 0, d.err
	}
	if status&statusSBR != 0 {
		return 1, nil
	}
	return 0, nil
}

// strongPullup arms the strong pull-up for the next byte. The chip clears it
// on the next 1-wire command.
func (d *Dev) strongPullup() {
	d.i2cTx([]byte{cmdWriteConfig, d.confReg&^0x40 | 0x04}, nil)
}

// i2cTx runs the I²C transaction and persists the error.
func (d *Dev) i2cTx(w, r []byte) {
	if d.err != nil {
		return
	}
	d.err = d.c.Tx(w, r)
}

// waitIdle sleeps for delay, then polls the status register every tenth of
// delay until the 1-wire busy bit clears, for at most 3ms. It returns the last
// status read, 0 on error.
func (d *Dev) waitIdle(delay time.Duration) byte {
	if d.err != nil {
		return 0
	}
	deadline := now().Add(3 * time.Millisecond)
	sleep(delay)
	for {
		var status [1]byte
		d.i2cTx(nil, status[:])
		if status[0]&status1WB == 0 {
			return status[0]
		}
		if now().After(deadline) {
			d.err = errors.New("ds248x: timeout waiting for bus cycle to finish")
			return 0
		}
		sleep(delay / 10)
	}
}

func (d *Dev) init(opts *Opts) error {
	if err := d.c.Tx([]byte{cmdReset}, nil); err != nil {
		return fmt.Errorf("ds248x: error while resetting: %w", err)
	}
	var stat [1]byte
	if err := d.c.Tx([]byte{cmdSetReadPtr, regStatus}, stat[:]); err != nil {
		return fmt.Errorf("ds248x: error while reading status register: %w", err)
	}
	if stat[0] != 0x18 {
		return fmt.Errorf("ds248x: invalid status register value: %#x, expected 0x18", stat[0])
	}

	// Standard speed, no strong pull-up, no power down, active pull-up. The
	// high nibble is the complement of the low one.
	d.confReg = 0xe1
	if opts.PassivePullup {
		d.confReg ^= 0x11
	}
	var dcr [1]byte
	if err := d.c.Tx([]byte{cmdWriteConfig, d.confReg}, dcr[:]); err != nil {
		return fmt.Errorf("ds248x: error while writing device config register: %w", err)
	}
	if dcr[0] != d.confReg&0x0f {
		return fmt.Errorf("ds248x: failure to write device config register, wrote %#x got %#x back", d.confReg, dcr[0])
	}

	// Only the DS2483 has a port configuration register and only the
	// DS2482-800 a channel selection register; pointing the read pointer at
	// a missing register fails.
	switch {
	case d.c.Tx([]byte{cmdSetReadPtr, regPCR}, nil) == nil:
		d.variant = DS2483
		us := func(v time.Duration) time.Duration { return v / time.Microsecond }
		buf := []byte{cmdAdjPort,
			byte(0x00 | (us(opts.ResetLow)-430)/20&0x0f),
			byte(0x20 | (us(opts.PresenceDetect)-55)/2&0x0f),
			byte(0x40 | (us(opts.Write0Low)-51)/2&0x0f),
			byte(0x60 | ((opts.Write0Recovery-1250)/2500+5)&0x0f),
			byte(0x80 | opts.PullupRes&0x0f),
		}
		if err := d.c.Tx(buf, nil); err != nil {
			return fmt.Errorf("ds248x: error while setting port config values: %w", err)
		}
	case d.c.Tx([]byte{cmdSetReadPtr, regCSR}, nil) == nil:
		d.variant = DS2482x800
		if err := d.c.Tx([]byte{cmdChannelSelect, channels[0].w}, nil); err != nil {
			return fmt.Errorf("ds248x: error while selecting channel: %w", err)
		}
	default:
		d.variant = DS2482x100
	}
	return nil
}

// shortedBusError implements error and onewire.ShortedBusError.
type shortedBusError string

func (e shortedBusError) Error() string   { return string(e) }
func (e shortedBusError) IsShorted() bool { return true }
func (e shortedBusError) BusError() bool  { return true }

// noDevicesError implements error and onewire.NoDevicesError.
type noDevicesError string

func (e noDevicesError) Error() string   { return string(e) }
func (e noDevicesError) NoDevices() bool { return true }
func (e noDevicesError) BusError() bool  { return true }

var (
	sleep = time.Sleep
	now   = time.Now
)

const (
	cmdReset         = 0xf0 // reset the bridge
	cmdSetReadPtr    = 0xe1
	cmdWriteConfig   = 0xd2
	cmdAdjPort       = 0xc3 // DS2483
	cmdChannelSelect = 0xc3 // DS2482-800
	cmd1WReset       = 0xb4
	cmd1WBit         = 0x87 // single slot
	cmd1WWrite       = 0xa5
	cmd1WRead        = 0x96
	cmd1WTriplet     = 0x78 // two read slots and a write slot

	regStatus = 0xf0
	regRDR    = 0xe1 // read data
	regPCR    = 0xb4 // port configuration
	regCSR    = 0xd2 // channel selection

	status1WB = 0x01 // 1-wire busy
	statusPPD = 0x02 // presence pulse detected
	statusSD  = 0x04 // short detected
	statusSBR = 0x20 // single bit result
	statusTSB = 0x40 // triplet second bit
)

// channels holds the DS2482-800 channel selection codes, as written and as
// read back.
var channels = [8]struct{ w, r byte }{
	{0xf0, 0xb8},
	{0xe1, 0xb1},
	{0xd2, 0xaa},
	{0xc3, 0xa3},
	{0xb4, 0x9c},
	{0xa5, 0x95},
	{0x96, 0x8e},
	{0x87, 0x87},
}

var _ conn.Resource = &Dev{}
var _ onewire.Bus = &Dev{}
var _ onewire.BusSearcher = &Dev{}
