// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ffutop/carlink/modbus"
)

var ErrRequestTimedOut = errors.New("modbus: request timed out")

const (
	stateSlaveID = 1 << iota
	stateFunctionCode
	stateReadLength
	stateReadPayload
	stateCRC
)

type InvalidLengthError struct {
	Length byte
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("invalid length received: %d", e.Length)
}

// ShortFrameError reports a response that started but stopped before its
// CRC. Err is the read error that ended it.
type ShortFrameError struct {
	Received int
	Err      error
}

func (e *ShortFrameError) Error() string {
	return fmt.Sprintf("modbus: response cut short after %d bytes: %v", e.Received, e.Err)
}

func (e *ShortFrameError) Unwrap() error {
	return e.Err
}

// CalculateResponseLength returns the expected length of the response to a
// function code 3 or 6 request ADU. Other codes yield MinSize.
func CalculateResponseLength(adu []byte) int {
	length := MinSize
	switch adu[1] {
	case modbus.FuncCodeReadHoldingRegisters:
		count := int(binary.BigEndian.Uint16(adu[4:]))
		length += 1 + count*2
	case modbus.FuncCodeWriteSingleRegister:
		length += 4
	}
	return length
}

// FrameDelay returns the silent interval after sending chars characters at
// baudRate: 1.5 character times per character plus 3.5 between frames,
// fixed above 19200 baud.
func FrameDelay(baudRate, chars int) time.Duration {
	var characterDelay, frameDelay int

	if baudRate <= 0 || baudRate > 19200 {
		characterDelay = 750
		frameDelay = 1750
	} else {
		characterDelay = 15000000 / baudRate
		frameDelay = 35000000 / baudRate
	}
	return time.Duration(characterDelay*chars+frameDelay) * time.Microsecond
}

// CalculateRequestLength returns the total length of a request ADU from
// its first bytes. Function codes 15 and 16 carry a byte count at offset 6,
// so header must hold at least 7 bytes for them.
func CalculateRequestLength(funcCode byte, header []byte) (int, error) {
	switch funcCode {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister:
		// slave, function, address, quantity or value, crc
		return 8, nil
	case modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters:
		if len(header) < 7 {
			return 0, fmt.Errorf("modbus: need 7 bytes to size function code 0x%02X, got %d", funcCode, len(header))
		}
		// slave, function, address, quantity, byte count, values, crc
		return 7 + int(header[6]) + 2, nil
	}
	return 0, fmt.Errorf("modbus: unsupported function code 0x%02X", funcCode)
}

// ReadResponse reads the response to a function code 3 or 6 request
// incrementally from r. Bytes preceding the expected slave id are discarded
// as line noise. Once a frame has started, a read error or the deadline
// ends it with a *ShortFrameError.
func ReadResponse(slaveID, functionCode byte, r io.Reader, deadline time.Time) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is nil")
	}

	buf := make([]byte, 1)
	data := make([]byte, MaxSize)

	state := stateSlaveID
	var length, toRead byte
	var n, crcCount int

	for {
		if time.Now().After(deadline) {
			if n > 0 {
				return nil, &ShortFrameError{Received: n, Err: ErrRequestTimedOut}
			}
			return nil, ErrRequestTimedOut
		}

		if _, err := io.ReadAtLeast(r, buf, 1); err != nil {
			if n > 0 {
				return nil, &ShortFrameError{Received: n, Err: err}
			}
			return nil, err
		}

		switch state {
		case stateSlaveID:
			if buf[0] == slaveID {
				state = stateFunctionCode
				data[n] = buf[0]
				n++
			}
		case stateFunctionCode:
			switch buf[0] {
			case functionCode:
				switch functionCode {
				case modbus.FuncCodeReadHoldingRegisters:
					state = stateReadLength
				case modbus.FuncCodeWriteSingleRegister:
					state = stateReadPayload
					toRead = 4
				default:
					return nil, fmt.Errorf("modbus: function code 0x%02X not handled", functionCode)
				}
			case functionCode | modbus.ExceptionBit:
				state = stateReadPayload
				toRead = 1
			default:
				return nil, fmt.Errorf("modbus: unexpected function code 0x%02X in response", buf[0])
			}
			data[n] = buf[0]
			n++
		case stateReadLength:
			length = buf[0]
			if length > MaxSize-5 || length == 0 {
				return nil, &InvalidLengthError{Length: length}
			}
			toRead = length
			data[n] = length
			n++
			state = stateReadPayload
		case stateReadPayload:
			data[n] = buf[0]
			toRead--
			n++
			if toRead == 0 {
				state = stateCRC
			}
		case stateCRC:
			data[n] = buf[0]
			crcCount++
			n++
			if crcCount == 2 {
				return data[:n], nil
			}
		}
	}
}
