// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/ffutop/carlink/internal/fault"
	"github.com/ffutop/carlink/modbus"
)

// Operation names used in fault.Error.Op.
const (
	OpRead  = "read holding register"
	OpWrite = "write holding register"
)

// ReadRequest builds a function code 3 request for a single register.
func ReadRequest(register uint16) modbus.ProtocolDataUnit {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], register)
	binary.BigEndian.PutUint16(data[2:4], 1)
	return modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeReadHoldingRegisters, Data: data}
}

// WriteRequest builds a function code 6 request. The value is sent as is,
// without decimal scaling.
func WriteRequest(register, value uint16) modbus.ProtocolDataUnit {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], register)
	binary.BigEndian.PutUint16(data[2:4], value)
	return modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeWriteSingleRegister, Data: data}
}

// DecodeReadResponse extracts the register value from a function code 3
// response carrying one register.
func DecodeReadResponse(resp modbus.ProtocolDataUnit) (uint16, error) {
	if err := Exception(OpRead, resp); err != nil {
		return 0, err
	}
	if resp.FunctionCode != modbus.FuncCodeReadHoldingRegisters {
		return 0, fault.Newf(fault.KindLinkFraming, OpRead, "unexpected function code 0x%02X", resp.FunctionCode)
	}
	if len(resp.Data) != 3 || resp.Data[0] != 2 {
		return 0, fault.Newf(fault.KindLinkFraming, OpRead, "malformed response data % X", resp.Data)
	}
	return binary.BigEndian.Uint16(resp.Data[1:3]), nil
}

// CheckWriteResponse verifies that a function code 6 response echoes req.
func CheckWriteResponse(req, resp modbus.ProtocolDataUnit) error {
	if err := Exception(OpWrite, resp); err != nil {
		return err
	}
	if resp.FunctionCode != req.FunctionCode || !bytes.Equal(resp.Data, req.Data) {
		return fault.Newf(fault.KindLinkFraming, OpWrite, "response % X does not echo request % X", resp.Data, req.Data)
	}
	return nil
}

// Exception returns a DeviceNACK fault if resp is an exception response.
func Exception(op string, resp modbus.ProtocolDataUnit) error {
	if !resp.IsException() {
		return nil
	}
	code := resp.ExceptionCode()
	return &fault.Error{
		Op:   op,
		Kind: fault.KindDeviceNACK,
		Code: code,
		Err:  errors.New(modbus.ExceptionText(code)),
	}
}
