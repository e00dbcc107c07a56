// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package eeprom defines the byte addressable persistent store used to keep
// tables across restarts, with in-memory and file backed implementations.
//
// Stores behave like EEPROM: fixed size, random access, and writes that do
// not change a byte are not counted against the cell's endurance.
package eeprom

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Store is a fixed size byte addressable persistent memory.
type Store interface {
	io.ReaderAt
	io.WriterAt
	// Size returns the number of addressable bytes.
	Size() int
}

// ErrOutOfRange is returned when an access falls outside of the store.
var ErrOutOfRange = errors.New("eeprom: access out of range")

// Erased is the value of a cell that was never written.
const Erased = 0xFF

// Mem is a Store held in memory.
//
// Writes counts the number of cells whose value actually changed, which is
// what wears a real EEPROM.
type Mem struct {
	mu     sync.Mutex
	b      []byte
	Writes int
}

// NewMem returns an erased in-memory store of size bytes.
func NewMem(size int) *Mem {
	m := &Mem{b: make([]byte, size)}
	for i := range m.b {
		m.b[i] = Erased
	}
	return m
}

// Size implements Store.
func (m *Mem) Size() int {
	return len(m.b)
}

// ReadAt implements io.ReaderAt.
func (m *Mem) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off > int64(len(m.b)) {
		return 0, ErrOutOfRange
	}
	n := copy(p, m.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (m *Mem) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(m.b)) {
		return 0, ErrOutOfRange
	}
	for i, v := range p {
		if m.b[int(off)+i] != v {
			m.b[int(off)+i] = v
			m.Writes++
		}
	}
	return len(p), nil
}

// Bytes returns a copy of the whole store.
func (m *Mem) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.b...)
}

func (m *Mem) String() string {
	return fmt.Sprintf("eeprom.Mem{%d}", len(m.b))
}

// File is a Store backed by a fixed size image file.
type File struct {
	f    *os.File
	size int
}

// OpenFile opens or creates the image at path.
//
// A new or shorter image is extended to size with erased cells. A longer
// image is left untouched, only its first size bytes are addressable.
func OpenFile(path string, size int) (*File, error) {
	if size <= 0 {
		return nil, errors.New("eeprom: invalid size")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if cur := fi.Size(); cur < int64(size) {
		fill := make([]byte, int64(size)-cur)
		for i := range fill {
			fill[i] = Erased
		}
		if _, err := f.WriteAt(fill, cur); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return &File{f: f, size: size}, nil
}

// Size implements Store.
func (f *File) Size() int {
	return f.size
}

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(f.size) {
		return 0, ErrOutOfRange
	}
	if max := int64(f.size) - off; int64(len(p)) > max {
		n, err := f.f.ReadAt(p[:max], off)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return f.f.ReadAt(p, off)
}

// WriteAt implements io.WriterAt.
//
// Only the bytes that differ from the image are written.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(f.size) {
		return 0, ErrOutOfRange
	}
	cur := make([]byte, len(p))
	if _, err := f.f.ReadAt(cur, off); err != nil {
		return 0, err
	}
	for i := 0; i < len(p); {
		if cur[i] == p[i] {
			i++
			continue
		}
		j := i
		for j < len(p) && cur[j] != p[j] {
			j++
		}
		if _, err := f.f.WriteAt(p[i:j], off+int64(i)); err != nil {
			return i, err
		}
		i = j
	}
	return len(p), nil
}

// Close closes the image file.
func (f *File) Close() error {
	return f.f.Close()
}

func (f *File) String() string {
	return "eeprom.File{" + f.f.Name() + "}"
}

var _ Store = &Mem{}
var _ Store = &File{}
