// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package goburrow

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ffutop/carlink/internal/config"
	"github.com/ffutop/carlink/internal/fault"
	"github.com/ffutop/carlink/modbus/crc"
	"github.com/ffutop/carlink/transport"
	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"
	"gotest.tools/v3/assert"
)

// fakeHandler frames a PDU as function code plus data and answers through
// reply, so the test drives goburrow's client logic without a port.
type fakeHandler struct {
	connectErr error
	reply      func(req []byte) ([]byte, error)
	closed     int
}

func (f *fakeHandler) Encode(pdu *modbus.ProtocolDataUnit) ([]byte, error) {
	return append([]byte{pdu.FunctionCode}, pdu.Data...), nil
}

func (f *fakeHandler) Decode(adu []byte) (*modbus.ProtocolDataUnit, error) {
	return &modbus.ProtocolDataUnit{FunctionCode: adu[0], Data: adu[1:]}, nil
}

func (f *fakeHandler) Verify(aduRequest, aduResponse []byte) error { return nil }

func (f *fakeHandler) Send(aduRequest []byte) ([]byte, error) { return f.reply(aduRequest) }

func (f *fakeHandler) Connect() error { return f.connectErr }

func (f *fakeHandler) Close() error {
	f.closed++
	return nil
}

func newFakeClient(f *fakeHandler) *Client {
	return &Client{newHandler: func(transport.Endpoint) handler { return f }}
}

var ep = transport.Endpoint{
	Port:    "/dev/ttyUSB1",
	SlaveID: 2,
	Serial:  &config.SerialConfig{BaudRate: 9600, DataBits: 8, Parity: "E", StopBits: 1, Timeout: time.Second},
}

func TestClient_Read(t *testing.T) {
	f := &fakeHandler{reply: func(req []byte) ([]byte, error) {
		assert.DeepEqual(t, req, []byte{0x03, 0x00, 0x0A, 0x00, 0x01})
		return []byte{0x03, 0x02, 0x0A, 0x17}, nil
	}}
	v, err := newFakeClient(f).ReadHoldingRegister(context.Background(), ep, 10)
	assert.NilError(t, err)
	assert.Equal(t, v, uint16(2583))
	assert.Equal(t, f.closed, 1)
}

func TestClient_Write(t *testing.T) {
	f := &fakeHandler{reply: func(req []byte) ([]byte, error) { return req, nil }}
	assert.NilError(t, newFakeClient(f).WriteHoldingRegister(context.Background(), ep, 20, 500))
	assert.Equal(t, f.closed, 1)

	f = &fakeHandler{reply: func(req []byte) ([]byte, error) {
		return []byte{0x06, 0x00, 0x14, 0x00, 0x00}, nil
	}}
	err := newFakeClient(f).WriteHoldingRegister(context.Background(), ep, 20, 500)
	assert.ErrorIs(t, err, fault.ErrLinkFraming)
}

func TestClient_Faults(t *testing.T) {
	tests := []struct {
		name  string
		reply func([]byte) ([]byte, error)
		want  *fault.Error
	}{
		{"Exception", func([]byte) ([]byte, error) { return []byte{0x83, 0x02}, nil }, fault.ErrDeviceNACK},
		{"Timeout", func([]byte) ([]byte, error) { return nil, serial.ErrTimeout }, fault.ErrLinkTimeout},
		{"Garbage", func([]byte) ([]byte, error) { return []byte{0x03, 0x05, 0x00}, nil }, fault.ErrLinkFraming},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeHandler{reply: tt.reply}
			_, err := newFakeClient(f).ReadHoldingRegister(context.Background(), ep, 10)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, f.closed, 1)
		})
	}
}

func TestClient_ExceptionCode(t *testing.T) {
	f := &fakeHandler{reply: func([]byte) ([]byte, error) { return []byte{0x86, 0x06}, nil }}
	err := newFakeClient(f).WriteHoldingRegister(context.Background(), ep, 20, 1)

	var fe *fault.Error
	assert.Assert(t, errors.As(err, &fe))
	assert.Equal(t, fe.Kind, fault.KindDeviceNACK)
	assert.Equal(t, fe.Code, byte(modbus.ExceptionCodeServerDeviceBusy))
}

func TestClient_ConnectFailure(t *testing.T) {
	f := &fakeHandler{connectErr: errors.New("no such device")}
	_, err := newFakeClient(f).ReadHoldingRegister(context.Background(), ep, 10)
	assert.ErrorIs(t, err, fault.ErrPortUnavailable)
	assert.Equal(t, f.closed, 0)
}

func TestClient_Misuse(t *testing.T) {
	f := &fakeHandler{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newFakeClient(f).ReadHoldingRegister(ctx, ep, 10)
	assert.ErrorIs(t, err, context.Canceled)

	noSerial := ep
	noSerial.Serial = nil
	_, err = newFakeClient(f).ReadHoldingRegister(context.Background(), noSerial, 10)
	assert.ErrorIs(t, err, fault.ErrInvalidDevice)
}

func TestNewRTUHandler(t *testing.T) {
	h, ok := newRTUHandler(ep).(*rtuHandler)
	assert.Assert(t, ok)
	assert.Equal(t, h.Address, "/dev/ttyUSB1")
	assert.Equal(t, h.BaudRate, 9600)
	assert.Equal(t, h.Parity, "E")
	assert.Equal(t, h.Timeout, time.Second)
	assert.Equal(t, h.SlaveId, byte(2))
	assert.Equal(t, h.IdleTimeout, time.Duration(0))
}

type mockPort struct {
	io.Reader
	written bytes.Buffer
	closed  int
}

func (m *mockPort) Write(p []byte) (int, error) { return m.written.Write(p) }

func (m *mockPort) Close() error {
	m.closed++
	return nil
}

type timeoutReader struct{}

func (timeoutReader) Read([]byte) (int, error) { return 0, serial.ErrTimeout }

func withCRC(frame ...byte) []byte {
	var c crc.CRC
	sum := c.Reset().PushBytes(frame).Value()
	return append(frame, byte(sum), byte(sum>>8))
}

// newPortClient drives goburrow's packager over port.
func newPortClient(port *mockPort, opened *serial.Config) *Client {
	return &Client{newHandler: func(ep transport.Endpoint) handler {
		h := newRTUHandler(ep).(*rtuHandler)
		h.open = func(c *serial.Config) (io.ReadWriteCloser, error) {
			if opened != nil {
				*opened = *c
			}
			return port, nil
		}
		return h
	}}
}

func TestRTUHandler_Read(t *testing.T) {
	port := &mockPort{Reader: bytes.NewReader(withCRC(0x02, 0x03, 0x02, 0x0A, 0x17))}
	var opened serial.Config
	fast := ep
	fast.Serial = &config.SerialConfig{BaudRate: 115200, DataBits: 8, Parity: "N", StopBits: 1, Timeout: time.Second}

	v, err := newPortClient(port, &opened).ReadHoldingRegister(context.Background(), fast, 10)
	assert.NilError(t, err)
	assert.Equal(t, v, uint16(2583))
	assert.DeepEqual(t, port.written.Bytes(), withCRC(0x02, 0x03, 0x00, 0x0A, 0x00, 0x01))
	assert.Equal(t, port.closed, 1)
	assert.Equal(t, opened.Address, "/dev/ttyUSB1")
	assert.Equal(t, opened.BaudRate, 115200)
}

func TestRTUHandler_Faults(t *testing.T) {
	tests := []struct {
		name   string
		reader io.Reader
		want   *fault.Error
	}{
		{"Silent", timeoutReader{}, fault.ErrLinkTimeout},
		{"CutShort", io.MultiReader(bytes.NewReader([]byte{0x02, 0x03, 0x02, 0x0A}), timeoutReader{}), fault.ErrLinkFraming},
		{"BadCRC", bytes.NewReader([]byte{0x02, 0x03, 0x02, 0x0A, 0x17, 0x00, 0x00}), fault.ErrLinkFraming},
		{"Exception", bytes.NewReader(withCRC(0x02, 0x83, 0x02)), fault.ErrDeviceNACK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &mockPort{Reader: tt.reader}
			_, err := newPortClient(port, nil).ReadHoldingRegister(context.Background(), ep, 10)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, port.closed, 1)
		})
	}
}

func TestRTUHandler_Write(t *testing.T) {
	req := withCRC(0x02, 0x06, 0x00, 0x14, 0x01, 0xF4)
	port := &mockPort{Reader: bytes.NewReader(req)}
	assert.NilError(t, newPortClient(port, nil).WriteHoldingRegister(context.Background(), ep, 20, 500))
	assert.DeepEqual(t, port.written.Bytes(), req)
}
