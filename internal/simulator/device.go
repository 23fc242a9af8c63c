// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package simulator stands in for transducer controllers on a bench: each
// Device answers holding register requests from its own register image.
package simulator

import (
	"encoding/binary"

	"github.com/ffutop/carlink/internal/simulator/model"
	"github.com/ffutop/carlink/internal/simulator/persistence"
	"github.com/ffutop/carlink/modbus"
)

// Device implements the Modbus protocol logic on top of a DataModel.
type Device struct {
	ID      byte
	model   *model.DataModel
	storage persistence.Storage
}

// NewDevice creates a Device answering as slave id. A nil storage keeps
// the registers in memory only.
func NewDevice(id byte, m *model.DataModel, storage persistence.Storage) *Device {
	if storage == nil {
		storage = persistence.NewMemoryStorage()
	}
	return &Device{ID: id, model: m, storage: storage}
}

// Model returns the register image the device serves.
func (d *Device) Model() *model.DataModel {
	return d.model
}

// Process executes the request against the register image and returns the
// response, which is an exception response for anything it cannot serve.
func (d *Device) Process(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		return d.handleReadHoldingRegisters(req)
	case modbus.FuncCodeWriteSingleRegister:
		return d.handleWriteSingleRegister(req)
	case modbus.FuncCodeWriteMultipleRegisters:
		return d.handleWriteMultipleRegisters(req)
	default:
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}
}

func (d *Device) handleReadHoldingRegisters(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > 125 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	data, err := d.model.ReadHoldingRegisters(address, quantity)
	if err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func (d *Device) handleWriteSingleRegister(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if err := d.model.WriteSingleRegister(address, value); err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	d.storage.OnWrite(address, 1)

	return req // Echo request
}

func (d *Device) handleWriteMultipleRegisters(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) < 6 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := req.Data[4]

	if quantity < 1 || quantity > 123 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if len(req.Data)-5 != int(byteCount) || int(byteCount) != int(quantity)*2 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	if err := d.model.WriteMultipleRegisters(address, quantity, req.Data[5:]); err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	d.storage.OnWrite(address, quantity)

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func exception(funcCode byte, code byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode | modbus.ExceptionBit,
		Data:         []byte{code},
	}
}
