// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import (
	"encoding/binary"
	"errors"

	"github.com/GermanBionicSystems/dsfamily/common"
	"periph.io/x/conn/v3/onewire"
)

// ROM commands starting a search.
const (
	SearchROM   = 0xF0
	AlarmSearch = 0xEC
)

var (
	// ErrNoPresence is returned when no device answered the reset pulse.
	ErrNoPresence error = noDevicesError("onewiregpio: no device present")
	// ErrSearchBus is returned when a bit and its complement both read 1 or
	// the search produced an all zero ROM.
	ErrSearchBus error = busError("onewiregpio: no device answered during search")
	// ErrAddressCRC is returned when the ROM found fails its CRC.
	ErrAddressCRC error = busError("onewiregpio: CRC error during search")
	// ErrSearchDone is returned once the last device has been found.
	ErrSearchDone = errors.New("onewiregpio: search done")
)

// BitBus is the slot level access needed by a search.
type BitBus interface {
	Reset() (bool, error)
	WriteByte(v byte) error
	ReadBit() (byte, error)
	WriteBit(v byte) error
}

// SearchState carries the progress of a search between two calls to Next.
//
// The zero value starts a new search.
type SearchState struct {
	ROM                   [8]byte // last ROM found, family code first
	LastDiscrepancy       int     // 1 based bit position of the last branch where 0 was taken
	LastFamilyDiscrepancy int     // same, restricted to the family code bits
	LastDevice            bool    // the last ROM found was the last one
}

// Next runs one step of the ROM search and returns the updated state with the
// address found.
//
// cmd is SearchROM or AlarmSearch. Once the last device is found, the
// following call returns ErrSearchDone. On any error the returned state is
// the zero value so the search restarts from scratch.
func Next(bus BitBus, s SearchState, cmd byte) (SearchState, onewire.Address, error) {
	if s.LastDevice {
		return SearchState{}, 0, ErrSearchDone
	}
	present, err := bus.Reset()
	if err != nil {
		return SearchState{}, 0, err
	}
	if !present {
		return SearchState{}, 0, ErrNoPresence
	}
	if err := bus.WriteByte(cmd); err != nil {
		return SearchState{}, 0, err
	}
	lastZero := 0
	for n := 1; n <= 64; n++ {
		idx, mask := (n-1)/8, byte(1)<<uint((n-1)%8)
		id, err := bus.ReadBit()
		if err != nil {
			return SearchState{}, 0, err
		}
		cmp, err := bus.ReadBit()
		if err != nil {
			return SearchState{}, 0, err
		}
		var dir byte
		switch {
		case id == 1 && cmp == 1:
			return SearchState{}, 0, ErrSearchBus
		case id != cmp:
			dir = id
		default:
			// Both values are present on the bus.
			if n < s.LastDiscrepancy {
				if s.ROM[idx]&mask != 0 {
					dir = 1
				}
			} else if n == s.LastDiscrepancy {
				dir = 1
			}
			if dir == 0 {
				lastZero = n
				if lastZero < 9 {
					s.LastFamilyDiscrepancy = lastZero
				}
			}
		}
		if dir == 1 {
			s.ROM[idx] |= mask
		} else {
			s.ROM[idx] &^= mask
		}
		if err := bus.WriteBit(dir); err != nil {
			return SearchState{}, 0, err
		}
	}
	s.LastDiscrepancy = lastZero
	s.LastDevice = lastZero == 0
	if s.ROM == ([8]byte{}) {
		return SearchState{}, 0, ErrSearchBus
	}
	if !common.CheckCRC8(s.ROM[:]) {
		return SearchState{}, 0, ErrAddressCRC
	}
	return s, onewire.Address(binary.LittleEndian.Uint64(s.ROM[:])), nil
}
