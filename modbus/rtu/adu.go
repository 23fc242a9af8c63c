// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"

	"github.com/ffutop/carlink/modbus"
	"github.com/ffutop/carlink/modbus/crc"
)

// ApplicationDataUnit is a PDU addressed to one slave on the bus.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// CRCError reports a frame whose checksum does not match its content.
type CRCError struct {
	Received uint16
	Expected uint16
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("modbus: response crc '%v' does not match expected '%v'", e.Received, e.Expected)
}

// Decode parses a raw RTU frame and checks its CRC.
func Decode(raw []byte) (adu *ApplicationDataUnit, err error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		err = fmt.Errorf("modbus: request length '%v' does not meet minimum '%v'", length, MinSize)
		return
	}

	var c crc.CRC
	c.Reset().PushBytes(raw[0 : length-2])
	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if checksum != c.Value() {
		err = &CRCError{Received: checksum, Expected: c.Value()}
		return
	}
	adu = &ApplicationDataUnit{}
	adu.SlaveID = raw[0]
	adu.Pdu.FunctionCode = raw[1]
	adu.Pdu.Data = raw[2 : length-2]
	return
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	length := len(adu.Pdu.Data) + 4
	if length > MaxSize {
		err = fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, MaxSize)
		return
	}
	raw = make([]byte, length)

	raw[0] = adu.SlaveID
	raw[1] = adu.Pdu.FunctionCode
	copy(raw[2:], adu.Pdu.Data)

	var c crc.CRC
	c.Reset().PushBytes(raw[0 : length-2])
	checksum := c.Value()

	raw[length-1] = byte(checksum >> 8)
	raw[length-2] = byte(checksum)
	return
}

// Verify verifies response length, slave id and function code.
func (adu *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) error {
	length := len(resp.Pdu.Data) + 4
	if length < MinSize {
		return fmt.Errorf("modbus: response length '%v' does not meet minimum '%v'", length, MinSize)
	}
	if adu.SlaveID != resp.SlaveID {
		return fmt.Errorf("modbus: response slave id '%v' does not match request '%v'", resp.SlaveID, adu.SlaveID)
	}
	if resp.Pdu.FunctionCode&^modbus.ExceptionBit != adu.Pdu.FunctionCode {
		return fmt.Errorf("modbus: response function '%v' does not match request '%v'", resp.Pdu.FunctionCode, adu.Pdu.FunctionCode)
	}
	return nil
}
