// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package at24c drives an AT24Cxx serial EEPROM on I²C and exposes it as an
// eeprom.Store.
//
// Parts up to 256 bytes (AT24C01/02) use a single address byte, larger ones
// (AT24C32 to AT24C512) two.
package at24c

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/GermanBionicSystems/dsfamily/eeprom"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	// Size is the capacity in bytes.
	Size int
	// PageSize is the size of the write buffer. A write never crosses a page
	// boundary.
	PageSize int
}

// DefaultOpts matches an AT24C32, as found on DS3231 RTC boards.
var DefaultOpts = Opts{Size: 4096, PageSize: 32}

// New returns a handle to the EEPROM at addr, 0x50 to 0x57.
func New(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if addr < 0x50 || addr > 0x57 {
		return nil, errors.New("at24c: given address not supported by device")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Size <= 0 || opts.Size > 65536 {
		return nil, fmt.Errorf("at24c: invalid size %d", opts.Size)
	}
	if opts.PageSize <= 0 || opts.Size%opts.PageSize != 0 {
		return nil, fmt.Errorf("at24c: invalid page size %d", opts.PageSize)
	}
	return &Dev{c: &i2c.Dev{Bus: b, Addr: addr}, size: opts.Size, page: opts.PageSize}, nil
}

// Dev is an AT24Cxx EEPROM.
type Dev struct {
	mu   sync.Mutex
	c    conn.Conn
	size int
	page int
}

func (d *Dev) String() string {
	return fmt.Sprintf("AT24C{%s}", d.c)
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Size implements eeprom.Store.
func (d *Dev) Size() int {
	return d.size
}

// ReadAt implements io.ReaderAt with a sequential read.
func (d *Dev) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(d.size) {
		return 0, eeprom.ErrOutOfRange
	}
	n := len(p)
	if rem := d.size - int(off); n > rem {
		n = rem
	}
	if n != 0 {
		d.mu.Lock()
		err := d.c.Tx(d.addr(int(off)), p[:n])
		d.mu.Unlock()
		if err != nil {
			return 0, fmt.Errorf("at24c: read failed: %w", err)
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt. p is split at page boundaries and every
// page write waits for the internal write cycle.
func (d *Dev) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(d.size) {
		return 0, eeprom.ErrOutOfRange
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for n < len(p) {
		a := int(off) + n
		c := d.page - a%d.page
		if c > len(p)-n {
			c = len(p) - n
		}
		buf := append(d.addr(a), p[n:n+c]...)
		if err := d.c.Tx(buf, nil); err != nil {
			return n, fmt.Errorf("at24c: write failed: %w", err)
		}
		sleep(writeCycle)
		n += c
	}
	return n, nil
}

//

func (d *Dev) addr(a int) []byte {
	if d.size <= 256 {
		return []byte{byte(a)}
	}
	return []byte{byte(a >> 8), byte(a)}
}

// writeCycle is the maximum self-timed write cycle of the family.
const writeCycle = 5 * time.Millisecond

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ eeprom.Store = &Dev{}
