// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package codec turns raw holding register values into engineering values.
package codec

import "strconv"

// Register groups carrying packed fixed-point values.
const (
	GroupSetValue  = "sval"
	GroupRealValue = "rval"
)

// IsFixedPoint reports whether registers of group hold packed fixed-point
// values.
func IsFixedPoint(group string) bool {
	return group == GroupSetValue || group == GroupRealValue
}

// Decode returns the engineering value of raw for a register of group.
//
// Fixed-point registers pack the integer part in the high hex digits and
// the hundredths in the last two hex digits, so 0x0A17 reads as 10.23.
// A raw value that fits in one byte is all hundredths. Registers of any
// other group are returned unchanged.
func Decode(raw uint16, group string) float64 {
	if !IsFixedPoint(group) || raw == 0 {
		return float64(raw)
	}

	var hi, lo uint64
	if raw > 0xFF {
		digits := strconv.FormatUint(uint64(raw), 16)
		split := len(digits) - 2
		// FormatUint only yields hex digits, so neither parse can fail.
		hi, _ = strconv.ParseUint(digits[:split], 16, 16)
		lo, _ = strconv.ParseUint(digits[split:], 16, 8)
	} else {
		lo = uint64(raw)
	}
	return float64(hi) + float64(lo)/100.0
}
