// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package goburrow is a transport backed by github.com/goburrow/modbus. It
// exists as a reference driver to cross-check the native RTU transport.
package goburrow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ffutop/carlink/internal/fault"
	rtupacket "github.com/ffutop/carlink/modbus/rtu"
	"github.com/ffutop/carlink/transport"
	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"
)

// Client implements transport.Transport. Like the native driver it opens
// the port for every call and closes it before returning. Request building,
// CRC and response checks are goburrow's; the port is goburrow/serial.
type Client struct {
	// newHandler is newRTUHandler outside tests.
	newHandler func(ep transport.Endpoint) handler
}

// handler is a goburrow client handler with an explicit port lifetime.
type handler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

var _ transport.Transport = (*Client)(nil)

// NewClient returns a Client.
func NewClient() *Client {
	return &Client{newHandler: newRTUHandler}
}

func newRTUHandler(ep transport.Endpoint) handler {
	h := modbus.NewRTUClientHandler(ep.Port)
	h.BaudRate = ep.Serial.BaudRate
	h.DataBits = ep.Serial.DataBits
	h.Parity = ep.Serial.Parity
	h.StopBits = ep.Serial.StopBits
	h.Timeout = ep.Serial.Timeout
	h.SlaveId = ep.SlaveID
	// The port is closed after every call, no idle timer needed.
	h.IdleTimeout = 0
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		h.Logger = slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug)
	}
	return &rtuHandler{RTUClientHandler: h, open: openPort}
}

func openPort(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.Open(c)
}

// rtuHandler frames requests with goburrow's RTU packager and exchanges
// them over a goburrow/serial port it owns. It replaces goburrow's own
// transporter so that a response cut short is told apart from silence.
type rtuHandler struct {
	*modbus.RTUClientHandler

	open func(*serial.Config) (io.ReadWriteCloser, error)
	port io.ReadWriteCloser
}

func (h *rtuHandler) Connect() error {
	port, err := h.open(&h.Config)
	if err != nil {
		return err
	}
	h.port = port
	return nil
}

func (h *rtuHandler) Close() error {
	if h.port == nil {
		return nil
	}
	err := h.port.Close()
	h.port = nil
	return err
}

// Send writes one request ADU and reads its response.
func (h *rtuHandler) Send(aduRequest []byte) ([]byte, error) {
	if h.port == nil {
		return nil, errors.New("goburrow: port not connected")
	}
	if h.Logger != nil {
		h.Logger.Printf("modbus: sending % x", aduRequest)
	}
	if _, err := h.port.Write(aduRequest); err != nil {
		return nil, err
	}

	bytesToRead := rtupacket.CalculateResponseLength(aduRequest)
	time.Sleep(rtupacket.FrameDelay(h.BaudRate, len(aduRequest)+bytesToRead))

	resp, err := rtupacket.ReadResponse(aduRequest[0], aduRequest[1], h.port, time.Now().Add(h.Timeout))
	if err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.Printf("modbus: received % x", resp)
	}
	return resp, nil
}

// ReadHoldingRegister reads one holding register.
func (c *Client) ReadHoldingRegister(ctx context.Context, ep transport.Endpoint, register uint16) (uint16, error) {
	var v uint16
	err := c.do(ctx, ep, transport.OpRead, func(mc modbus.Client) error {
		b, err := mc.ReadHoldingRegisters(register, 1)
		if err != nil {
			return err
		}
		if len(b) != 2 {
			return fault.Newf(fault.KindLinkFraming, transport.OpRead, "response has %d data bytes, want 2", len(b))
		}
		v = uint16(b[0])<<8 | uint16(b[1])
		return nil
	})
	return v, err
}

// WriteHoldingRegister writes one holding register.
func (c *Client) WriteHoldingRegister(ctx context.Context, ep transport.Endpoint, register, value uint16) error {
	// goburrow verifies the echoed value itself.
	return c.do(ctx, ep, transport.OpWrite, func(mc modbus.Client) error {
		_, err := mc.WriteSingleRegister(register, value)
		return err
	})
}

func (c *Client) do(ctx context.Context, ep transport.Endpoint, op string, fn func(modbus.Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ep.Serial == nil {
		return fault.Newf(fault.KindInvalidDevice, op, "endpoint %s has no serial config", ep)
	}

	h := c.newHandler(ep)
	if err := h.Connect(); err != nil {
		return fault.New(fault.KindPortUnavailable, op, fmt.Errorf("could not open %s: %w", ep.Port, err))
	}
	defer func() {
		if err := h.Close(); err != nil {
			slog.Debug("goburrow: closing serial port failed", "port", ep.Port, "err", err)
		}
	}()

	if err := fn(modbus.NewClient(h)); err != nil {
		return classify(op, err)
	}
	return nil
}

// classify maps goburrow errors onto the link fault taxonomy.
func classify(op string, err error) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	var me *modbus.ModbusError
	var short *rtupacket.ShortFrameError
	switch {
	case errors.As(err, &short):
		return fault.New(fault.KindLinkFraming, op, err)
	case errors.As(err, &me):
		return &fault.Error{Op: op, Kind: fault.KindDeviceNACK, Code: me.ExceptionCode, Err: err}
	case errors.Is(err, serial.ErrTimeout),
		errors.Is(err, rtupacket.ErrRequestTimedOut),
		errors.Is(err, os.ErrDeadlineExceeded):
		return fault.New(fault.KindLinkTimeout, op, err)
	default:
		return fault.New(fault.KindLinkFraming, op, err)
	}
}
