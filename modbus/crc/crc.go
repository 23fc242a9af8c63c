// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

// CRC is a Modbus CRC-16 accumulator (polynomial 0xA001, seed 0xFFFF).
type CRC struct {
	high byte
	low  byte
}

var crcTable []uint16

func init() {
	crcTable = make([]uint16, 256)
	for i := 0; i < 256; i++ {
		v := uint16(i)
		for j := 0; j < 8; j++ {
			if v&1 != 0 {
				v = (v >> 1) ^ 0xA001
			} else {
				v >>= 1
			}
		}
		crcTable[i] = v
	}
}

func (crc *CRC) Reset() *CRC {
	crc.high = 0xFF
	crc.low = 0xFF
	return crc
}

func (crc *CRC) PushBytes(bs []byte) *CRC {
	for _, b := range bs {
		idx := crc.low ^ b
		v := crcTable[idx]
		crc.low = crc.high ^ byte(v)
		crc.high = byte(v >> 8)
	}
	return crc
}

// Value returns the checksum. The low byte goes on the wire first.
func (crc *CRC) Value() uint16 {
	return uint16(crc.high)<<8 | uint16(crc.low)
}
