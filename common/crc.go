// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages. For
// example, the CRC8 used by 1-wire ROM codes and scratchpads.
package common

// CRC8 calculates the Dallas/Maxim 1-wire CRC of the byte slice parameter and
// returns the calculated value.
//
// It is the reflected form of x^8+x^5+x^4+1 (0x8C), shifted in least
// significant bit first. The bitwise form is used instead of the usual 256
// byte table.
func CRC8(bytes []byte) byte {
	var crc byte
	for _, val := range bytes {
		for i := 0; i < 8; i++ {
			mix := (crc ^ val) & 0x01
			crc >>= 1
			if mix != 0 {
				crc ^= 0x8C
			}
			val >>= 1
		}
	}
	return crc
}

// CheckCRC8 returns true if the last byte of buf is the CRC8 of the bytes
// preceding it.
//
// An empty buffer never validates.
func CheckCRC8(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	return CRC8(buf[:len(buf)-1]) == buf[len(buf)-1]
}
