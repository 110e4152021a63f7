// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains the checksum and framing helpers shared by the
// node's drivers.
//
// Sensirion devices exchange data as 16-bit big-endian words, each followed
// by a CRC-8 of the two data bytes.
package common

// WordSize is the length of one framed word: two data bytes and a CRC.
const WordSize = 3

// CRC8 calculates the 8-bit CRC of the byte slice parameter and returns the
// calculated value. Polynomial 0x31, initial value 0xff, MSB first and no
// final XOR. An empty slice yields 0xff.
func CRC8(bytes []byte) byte {
	var crc byte = 0xff
	for _, val := range bytes {
		crc ^= val
		for range 8 {
			if (crc & 0x80) == 0 {
				crc <<= 1
			} else {
				crc = (byte)((crc << 1) ^ 0x31)
			}
		}
	}
	return crc
}

// PutWord writes v into dst as hi, lo, crc. dst must hold at least WordSize
// bytes.
func PutWord(dst []byte, v uint16) {
	dst[0] = byte(v >> 8)
	dst[1] = byte(v)
	dst[2] = CRC8(dst[:2])
}

// Word decodes a framed word from src. The second return value is false if
// the CRC byte does not match the data bytes.
func Word(src []byte) (uint16, bool) {
	return uint16(src[0])<<8 | uint16(src[1]), CRC8(src[:2]) == src[2]
}

// Words decodes every framed word in src. It returns the index of the first
// word with an invalid CRC, or -1 when all words are valid.
func Words(src []byte) ([]uint16, int) {
	result := make([]uint16, len(src)/WordSize)
	for ix := range result {
		w, ok := Word(src[ix*WordSize:])
		if !ok {
			return nil, ix
		}
		result[ix] = w
	}
	return result, -1
}
