// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package rtu

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/ffutop/carlink/internal/config"
	"github.com/ffutop/carlink/internal/fault"
	"github.com/ffutop/carlink/modbus"
	"github.com/grid-x/serial"
	"gotest.tools/v3/assert"
)

func TestScanLoop(t *testing.T) {
	input := withCRC(0x01, 0x03, 0x00, 0x0A, 0x00, 0x01)
	writer := &bytes.Buffer{}
	port := &mockPort{Reader: bytes.NewReader(input), Writer: writer}

	calls := 0
	handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (*modbus.ProtocolDataUnit, error) {
		calls++
		assert.Equal(t, slaveID, byte(0x01))
		assert.Equal(t, pdu.FunctionCode, byte(modbus.FuncCodeReadHoldingRegisters))
		assert.DeepEqual(t, pdu.Data, []byte{0x00, 0x0A, 0x00, 0x01})
		return &modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x02, 0x0A, 0x17}}, nil
	}

	s := &Server{Port: "mock"}
	assert.NilError(t, s.scanLoop(context.Background(), port, handler))
	assert.Equal(t, calls, 1)
	assert.DeepEqual(t, writer.Bytes(), withCRC(0x01, 0x03, 0x02, 0x0A, 0x17))
}

func TestScanLoop_FunctionCodes(t *testing.T) {
	tests := []struct {
		name     string
		funcCode byte
		reqPDU   []byte // Func + Data
	}{
		{"ReadCoils", 0x01, []byte{0x01, 0x00, 0x00, 0x00, 0x01}},
		{"WriteSingleRegister", 0x06, []byte{0x06, 0x00, 0x00, 0xAA, 0xBB}},
		{"WriteMultipleRegisters", 0x10, []byte{0x10, 0x00, 0x01, 0x00, 0x02, 0x04, 0x11, 0x22, 0x33, 0x44}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqADU := withCRC(append([]byte{0x01}, tt.reqPDU...)...)
			port := &mockPort{Reader: bytes.NewReader(reqADU), Writer: &bytes.Buffer{}}

			handled := false
			handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (*modbus.ProtocolDataUnit, error) {
				handled = true
				assert.Equal(t, pdu.FunctionCode, tt.funcCode)
				assert.DeepEqual(t, pdu.Data, tt.reqPDU[1:])
				return &modbus.ProtocolDataUnit{FunctionCode: tt.funcCode, Data: []byte{}}, nil
			}

			assert.NilError(t, (&Server{}).scanLoop(context.Background(), port, handler))
			assert.Assert(t, handled, "handler not called for %s", tt.name)
		})
	}
}

func TestScanLoop_SilentWithoutDevice(t *testing.T) {
	writer := &bytes.Buffer{}
	port := &mockPort{Reader: bytes.NewReader(withCRC(0x05, 0x03, 0x00, 0x0A, 0x00, 0x01)), Writer: writer}

	handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (*modbus.ProtocolDataUnit, error) {
		return nil, nil
	}
	assert.NilError(t, (&Server{}).scanLoop(context.Background(), port, handler))
	assert.Equal(t, writer.Len(), 0)
}

func TestScanLoop_DropsCorruptFrames(t *testing.T) {
	bad := withCRC(0x01, 0x03, 0x00, 0x0A, 0x00, 0x01)
	bad[len(bad)-1] ^= 0xFF
	good := withCRC(0x01, 0x06, 0x00, 0x0A, 0x00, 0x07)
	writer := &bytes.Buffer{}
	port := &mockPort{Reader: bytes.NewReader(append(bad, good...)), Writer: writer}

	var seen []byte
	handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (*modbus.ProtocolDataUnit, error) {
		seen = append(seen, pdu.FunctionCode)
		return &pdu, nil
	}
	assert.NilError(t, (&Server{}).scanLoop(context.Background(), port, handler))
	assert.DeepEqual(t, seen, []byte{0x06})
	assert.DeepEqual(t, writer.Bytes(), good)
}

func TestServe_OpenFailure(t *testing.T) {
	s := NewServer("/dev/ttyS9", config.SerialConfig{BaudRate: 9600})
	s.open = func(*serial.Config) (io.ReadWriteCloser, error) {
		return nil, errors.New("permission denied")
	}
	err := s.Serve(context.Background(), nil)
	assert.ErrorIs(t, err, fault.ErrPortUnavailable)
}

func TestServe_StopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	port := &mockPort{Reader: pr, Writer: io.Discard}
	s := NewServer("pipe", config.SerialConfig{BaudRate: 9600})
	s.open = func(*serial.Config) (io.ReadWriteCloser, error) {
		return pipePort{port, pw}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Serve(ctx, nil) }()
	cancel()
	assert.NilError(t, <-done)
}

// pipePort closes the writing end so a blocked Read returns.
type pipePort struct {
	*mockPort
	w *io.PipeWriter
}

func (p pipePort) Close() error {
	p.mockPort.Close()
	return p.w.Close()
}
