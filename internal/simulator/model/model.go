// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"encoding/binary"
	"fmt"
	"sync"
)

const (
	MaxAddress = 65535

	// Size is the length in bytes of a register image.
	Size = (MaxAddress + 1) * 2
)

// DataModel holds the holding registers of one simulated controller.
// Registers are kept big-endian in a flat byte image covering the full
// 16-bit address space, so the image can live in a file or a mapping.
type DataModel struct {
	mu  sync.RWMutex
	img []byte
}

// NewDataModel creates a new memory model initialized to zero.
func NewDataModel() *DataModel {
	return &DataModel{img: make([]byte, Size)}
}

// FromImage returns a DataModel backed by img, which must be Size bytes.
// Writes to the model go straight to img.
func FromImage(img []byte) (*DataModel, error) {
	if len(img) != Size {
		return nil, fmt.Errorf("register image is %d bytes, want %d", len(img), Size)
	}
	return &DataModel{img: img}, nil
}

// Register returns the value of one holding register.
func (m *DataModel) Register(address uint16) uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return binary.BigEndian.Uint16(m.img[int(address)*2:])
}

// ReadHoldingRegisters reads a range of holding registers and returns them as BigEndian bytes.
func (m *DataModel) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}

	start := int(address) * 2
	result := make([]byte, int(quantity)*2)
	copy(result, m.img[start:start+len(result)])
	return result, nil
}

// WriteSingleRegister writes a single holding register.
func (m *DataModel) WriteSingleRegister(address uint16, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	binary.BigEndian.PutUint16(m.img[int(address)*2:], value)
	return nil
}

// WriteMultipleRegisters writes a range of holding registers from BigEndian bytes.
func (m *DataModel) WriteMultipleRegisters(address, quantity uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, quantity); err != nil {
		return err
	}
	if len(data) < int(quantity)*2 {
		return fmt.Errorf("insufficient data length")
	}

	start := int(address) * 2
	copy(m.img[start:start+int(quantity)*2], data)
	return nil
}

func validateRange(address, quantity uint16) error {
	if quantity == 0 {
		return fmt.Errorf("quantity must be greater than 0")
	}
	// address is 0-based.
	if int(address)+int(quantity) > MaxAddress+1 {
		return fmt.Errorf("address range out of bounds")
	}
	return nil
}
