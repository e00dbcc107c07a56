// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package eeprom

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"
)

func TestMem(t *testing.T) {
	m := NewMem(16)
	if m.Size() != 16 {
		t.Fatalf("size %d", m.Size())
	}
	for i, b := range m.Bytes() {
		if b != Erased {
			t.Fatalf("cell %d not erased: %#x", i, b)
		}
	}
	if _, err := m.WriteAt([]byte{1, 2, 3}, 8); err != nil {
		t.Fatal(err)
	}
	if m.Writes != 3 {
		t.Fatalf("expected 3 writes, got %d", m.Writes)
	}
	// Rewriting identical content does not wear the cells.
	if _, err := m.WriteAt([]byte{1, 2, 4}, 8); err != nil {
		t.Fatal(err)
	}
	if m.Writes != 4 {
		t.Fatalf("expected 4 writes, got %d", m.Writes)
	}
	var buf [3]byte
	if _, err := m.ReadAt(buf[:], 8); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[:], []byte{1, 2, 4}) {
		t.Fatalf("read %#v", buf)
	}
}

func TestMem_bounds(t *testing.T) {
	m := NewMem(8)
	if _, err := m.WriteAt([]byte{1, 2}, 7); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := m.WriteAt([]byte{1}, -1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	var buf [4]byte
	if n, err := m.ReadAt(buf[:], 6); n != 2 || err != io.EOF {
		t.Fatalf("expected short read, got %d, %v", n, err)
	}
	if _, err := m.ReadAt(buf[:], 9); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.bin")
	f, err := OpenFile(path, 32)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte{0xde, 0xad, 0xbe, 0xef}, 28); err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte{0x00}, 32); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopen with a larger size, the old content survives and the extension
	// is erased.
	f, err = OpenFile(path, 40)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	buf := make([]byte, 12)
	if _, err := f.ReadAt(buf, 28); err != nil {
		t.Fatal(err)
	}
	expected := []byte{0xde, 0xad, 0xbe, 0xef, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	if !bytes.Equal(buf, expected) {
		t.Fatalf("read %#v, expected %#v", buf, expected)
	}
	if n, err := f.ReadAt(buf, 36); n != 4 || err != io.EOF {
		t.Fatalf("expected short read, got %d, %v", n, err)
	}
}

func TestOpenFile_invalid(t *testing.T) {
	if _, err := OpenFile(filepath.Join(t.TempDir(), "x"), 0); err == nil {
		t.Fatal("expected error")
	}
}
