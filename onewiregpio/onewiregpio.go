// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/host/v3/cpu"
)

// Line is the part of a GPIO pin used to drive an open drain 1-wire line.
//
// Every gpio.PinIO satisfies it.
type Line interface {
	// In releases the line, the pull-up brings it high.
	In(pull gpio.Pull, edge gpio.Edge) error
	// Read samples the line.
	Read() gpio.Level
	// Out drives the line.
	Out(l gpio.Level) error
}

// Guard delimits the sections where a slot must not be stretched by the
// scheduler.
//
// Disable is called before the line is pulled low and Enable once the timed
// part of the slot is over, on every path.
type Guard interface {
	Disable()
	Enable()
}

// Timing contains the duration of each part of the 1-wire slots.
type Timing struct {
	ResetLow       time.Duration // line held low to reset the bus
	PresenceSample time.Duration // delay between release and presence sampling
	ResetRecovery  time.Duration // end of the presence window
	IdlePoll       time.Duration // delay between two idle checks before a reset
	IdleRetries    int           // idle checks before giving up on a reset

	Write1Low  time.Duration
	Write1High time.Duration
	Write0Low  time.Duration
	Write0High time.Duration

	ReadLow      time.Duration // line held low to start a read slot
	ReadSample   time.Duration // delay between release and sampling
	ReadRecovery time.Duration
}

// DefaultTiming is the standard speed timing.
var DefaultTiming = Timing{
	ResetLow:       480 * time.Microsecond,
	PresenceSample: 70 * time.Microsecond,
	ResetRecovery:  410 * time.Microsecond,
	IdlePoll:       2 * time.Microsecond,
	IdleRetries:    125,
	Write1Low:      10 * time.Microsecond,
	Write1High:     55 * time.Microsecond,
	Write0Low:      65 * time.Microsecond,
	Write0High:     5 * time.Microsecond,
	ReadLow:        3 * time.Microsecond,
	ReadSample:     10 * time.Microsecond,
	ReadRecovery:   53 * time.Microsecond,
}

// Opts contains options to pass to the constructor.
type Opts struct {
	Timing Timing // zero value means DefaultTiming
	// Pull is used when the line is released. Use gpio.Float with an external
	// pull-up resistor.
	Pull gpio.Pull
	// Spin busy waits for the duration. Defaults to cpu.Nanospin.
	Spin func(d time.Duration)
	// Guard defaults to pinning the goroutine to its OS thread.
	Guard Guard
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Timing: DefaultTiming,
	Pull:   gpio.PullUp,
	Spin:   cpu.Nanospin,
}

// New returns a 1-wire bus master bit banging the line.
//
// The line is released right away.
func New(l Line, opts *Opts) (*Bus, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	b := &Bus{line: l, t: opts.Timing, pull: opts.Pull, spin: opts.Spin, guard: opts.Guard}
	if b.t == (Timing{}) {
		b.t = DefaultTiming
	}
	if b.spin == nil {
		b.spin = cpu.Nanospin
	}
	if b.guard == nil {
		b.guard = threadGuard{}
	}
	if err := b.release(); err != nil {
		return nil, fmt.Errorf("onewiregpio: failed to release the line: %w", err)
	}
	return b, nil
}

// Bus is a 1-wire bus master driving a single GPIO line.
//
// It implements onewire.Bus and onewire.BusSearcher so it can be used with
// any 1-wire device driver. The slot level methods (Reset, WriteBit, ReadBit,
// WriteByte, ReadByte) are not serialized, callers mixing them with Tx must
// provide their own locking.
type Bus struct {
	mu    sync.Mutex
	line  Line
	t     Timing
	pull  gpio.Pull
	spin  func(time.Duration)
	guard Guard
}

func (b *Bus) String() string {
	if s, ok := b.line.(fmt.Stringer); ok {
		return "onewiregpio{" + s.String() + "}"
	}
	return "onewiregpio"
}

// Halt implements conn.Resource.
//
// It releases the line, ending a strong pull-up.
func (b *Bus) Halt() error {
	return b.release()
}

// Q implements onewire.Pins.
func (b *Bus) Q() gpio.PinIO {
	if p, ok := b.line.(gpio.PinIO); ok {
		return p
	}
	return gpio.INVALID
}

// Reset issues a reset pulse and reports whether at least one device answered
// with a presence pulse.
//
// A line that never goes idle high is reported as no presence.
func (b *Bus) Reset() (bool, error) {
	if err := b.release(); err != nil {
		return false, err
	}
	idle := false
	for i := 0; i < b.t.IdleRetries; i++ {
		if b.line.Read() == gpio.High {
			idle = true
			break
		}
		b.spin(b.t.IdlePoll)
	}
	if !idle {
		return false, nil
	}
	if err := b.atomically(func() error { return b.line.Out(gpio.Low) }); err != nil {
		return false, err
	}
	b.spin(b.t.ResetLow)
	present := false
	err := b.atomically(func() error {
		if err := b.release(); err != nil {
			return err
		}
		b.spin(b.t.PresenceSample)
		present = b.line.Read() == gpio.Low
		return nil
	})
	if err != nil {
		return false, err
	}
	b.spin(b.t.ResetRecovery)
	return present, nil
}

// WriteBit writes the lowest bit of v.
//
// The line is left driven high.
func (b *Bus) WriteBit(v byte) error {
	low, high := b.t.Write0Low, b.t.Write0High
	if v&1 != 0 {
		low, high = b.t.Write1Low, b.t.Write1High
	}
	err := b.atomically(func() error {
		if err := b.line.Out(gpio.Low); err != nil {
			return err
		}
		b.spin(low)
		return b.line.Out(gpio.High)
	})
	if err != nil {
		return err
	}
	b.spin(high)
	return nil
}

// ReadBit runs a read slot and returns the bit sampled, 0 or 1.
func (b *Bus) ReadBit() (byte, error) {
	var v byte
	err := b.atomically(func() error {
		if err := b.line.Out(gpio.Low); err != nil {
			return err
		}
		b.spin(b.t.ReadLow)
		if err := b.release(); err != nil {
			return err
		}
		b.spin(b.t.ReadSample)
		if b.line.Read() == gpio.High {
			v = 1
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	b.spin(b.t.ReadRecovery)
	return v, nil
}

// WriteByte writes v least significant bit first and releases the line.
func (b *Bus) WriteByte(v byte) error {
	return b.writeByte(v, false)
}

// WritePowered writes v like WriteByte but leaves the line driven high
// afterward, to power parasitic devices during a conversion or an EEPROM copy.
//
// The next slot or Halt releases the line.
func (b *Bus) WritePowered(v byte) error {
	return b.writeByte(v, true)
}

// ReadByte reads 8 bits, least significant bit first.
func (b *Bus) ReadByte() (byte, error) {
	var v byte
	for i := 0; i < 8; i++ {
		bit, err := b.ReadBit()
		if err != nil {
			return 0, err
		}
		v |= bit << uint(i)
	}
	return v, nil
}

// Tx implements onewire.Bus.
//
// It resets the bus, writes w then reads r. With onewire.StrongPullup the
// line is left driven high after the last byte.
func (b *Bus) Tx(w, r []byte, power onewire.Pullup) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	present, err := b.Reset()
	if err != nil {
		return err
	}
	if !present {
		return ErrNoPresence
	}
	for i, v := range w {
		keep := power == onewire.StrongPullup && i == len(w)-1 && len(r) == 0
		if err := b.writeByte(v, keep); err != nil {
			return err
		}
	}
	for i := range r {
		if r[i], err = b.ReadByte(); err != nil {
			return err
		}
	}
	if power == onewire.StrongPullup && len(r) != 0 {
		return b.line.Out(gpio.High)
	}
	return nil
}

// Search implements onewire.Bus.
//
// It enumerates the devices with Next. When no device answers the reset, the
// error implements onewire.NoDevicesError. An alarm search with no device in
// alarm returns no address and no error.
func (b *Bus) Search(alarmOnly bool) ([]onewire.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cmd := byte(SearchROM)
	if alarmOnly {
		cmd = AlarmSearch
	}
	var out []onewire.Address
	var s SearchState
	for {
		var a onewire.Address
		var err error
		if s, a, err = Next(b, s, cmd); err == nil {
			out = append(out, a)
			continue
		}
		switch {
		case errors.Is(err, ErrSearchDone):
			return out, nil
		case alarmOnly && len(out) == 0 && errors.Is(err, ErrSearchBus):
			return nil, nil
		}
		return out, err
	}
}

// SearchTriplet implements onewire.BusSearcher.
//
// It reads a bit and its complement, then writes the chosen direction. When
// both devices sets answered, direction is taken.
func (b *Bus) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	id, err := b.ReadBit()
	if err != nil {
		return onewire.TripletResult{}, err
	}
	cmp, err := b.ReadBit()
	if err != nil {
		return onewire.TripletResult{}, err
	}
	tr := onewire.TripletResult{GotZero: id == 0, GotOne: cmp == 0, Taken: 1}
	switch {
	case id != cmp:
		tr.Taken = id
	case id == 0:
		tr.Taken = direction & 1
	}
	return tr, b.WriteBit(tr.Taken)
}

//

func (b *Bus) writeByte(v byte, keepDriven bool) error {
	for i := 0; i < 8; i++ {
		if err := b.WriteBit(v >> uint(i)); err != nil {
			return err
		}
	}
	if keepDriven {
		return nil
	}
	return b.release()
}

func (b *Bus) release() error {
	return b.line.In(b.pull, gpio.NoEdge)
}

func (b *Bus) atomically(f func() error) error {
	b.guard.Disable()
	defer b.guard.Enable()
	return f()
}

// threadGuard keeps the goroutine on its OS thread during a slot.
type threadGuard struct{}

func (threadGuard) Disable() { runtime.LockOSThread() }
func (threadGuard) Enable()  { runtime.UnlockOSThread() }

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

// noDevicesError implements error and onewire.NoDevicesError.
type noDevicesError string

func (e noDevicesError) Error() string   { return string(e) }
func (e noDevicesError) BusError() bool  { return true }
func (e noDevicesError) NoDevices() bool { return true }

var _ conn.Resource = &Bus{}
var _ onewire.Bus = &Bus{}
var _ onewire.BusSearcher = &Bus{}
var _ onewire.Pins = &Bus{}
