// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ffutop/carlink/internal/config"
	"github.com/ffutop/carlink/internal/fault"
	"github.com/ffutop/carlink/modbus"
	rtupacket "github.com/ffutop/carlink/modbus/rtu"
	"github.com/ffutop/carlink/transport"
	"github.com/grid-x/serial"
)

// Client implements transport.Transport as a Modbus RTU master.
// Every call opens the endpoint's serial port, performs one transaction and
// closes the port before returning.
type Client struct {
	rs485 config.RS485Config
	open  Opener
}

var _ transport.Transport = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithOpener replaces serial.Open, for example with a loopback port.
func WithOpener(open Opener) ClientOption {
	return func(c *Client) { c.open = open }
}

// NewClient allocates and initializes a RTU Client.
func NewClient(rs485 config.RS485Config, opts ...ClientOption) *Client {
	c := &Client{
		rs485: rs485,
		open:  openSerial,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReadHoldingRegister reads one holding register.
func (mb *Client) ReadHoldingRegister(ctx context.Context, ep transport.Endpoint, register uint16) (uint16, error) {
	resp, err := mb.Send(ctx, ep, transport.ReadRequest(register))
	if err != nil {
		return 0, err
	}
	return transport.DecodeReadResponse(resp)
}

// WriteHoldingRegister writes one holding register.
func (mb *Client) WriteHoldingRegister(ctx context.Context, ep transport.Endpoint, register, value uint16) error {
	req := transport.WriteRequest(register, value)
	resp, err := mb.Send(ctx, ep, req)
	if err != nil {
		return err
	}
	return transport.CheckWriteResponse(req, resp)
}

// Send performs one request/response exchange with the endpoint. The
// context is only consulted before the port is opened: an RTU transaction
// is not interruptible once the request is on the wire.
func (mb *Client) Send(ctx context.Context, ep transport.Endpoint, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	op := opName(pdu.FunctionCode)
	if err := ctx.Err(); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	if ep.Serial == nil {
		return modbus.ProtocolDataUnit{}, fault.Newf(fault.KindInvalidDevice, op, "endpoint %s has no serial config", ep)
	}

	// Wrap PDU into RTU ADU
	adu := &rtupacket.ApplicationDataUnit{
		SlaveID: ep.SlaveID,
		Pdu:     pdu,
	}
	aduBytes, err := adu.Encode()
	if err != nil {
		return modbus.ProtocolDataUnit{}, fault.New(fault.KindLinkFraming, op, err)
	}

	var respBytes []byte
	err = withPort(op, mb.open, serialConfig(ep, mb.rs485), func(port io.ReadWriter) (err error) {
		respBytes, err = mb.exchange(op, ep, port, aduBytes)
		return err
	})
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}

	// Decode Response
	respAdu, err := rtupacket.Decode(respBytes)
	if err != nil {
		return modbus.ProtocolDataUnit{}, fault.New(fault.KindLinkFraming, op, err)
	}
	if err := adu.Verify(respAdu); err != nil {
		return modbus.ProtocolDataUnit{}, fault.New(fault.KindLinkFraming, op, err)
	}
	return respAdu.Pdu, nil
}

func (mb *Client) exchange(op string, ep transport.Endpoint, port io.ReadWriter, aduRequest []byte) ([]byte, error) {
	slog.Debug("send to modbus slave", "port", ep.Port, "request", hex.EncodeToString(aduRequest))
	if _, err := port.Write(aduRequest); err != nil {
		return nil, fault.New(fault.KindPortUnavailable, op, err)
	}

	bytesToRead := rtupacket.CalculateResponseLength(aduRequest)
	time.Sleep(rtupacket.FrameDelay(ep.Serial.BaudRate, len(aduRequest)+bytesToRead))

	data, err := rtupacket.ReadResponse(aduRequest[0], aduRequest[1], port, time.Now().Add(ep.Serial.Timeout))
	if err != nil {
		return nil, classify(op, err)
	}
	slog.Debug("recv from modbus slave", "port", ep.Port, "response", hex.EncodeToString(data))
	return data, nil
}

// classify maps a read error onto the link fault taxonomy. Silence is a
// timeout; a frame that started and stopped is malformed.
func classify(op string, err error) error {
	var short *rtupacket.ShortFrameError
	switch {
	case errors.As(err, &short):
		return fault.New(fault.KindLinkFraming, op, err)
	case errors.Is(err, rtupacket.ErrRequestTimedOut),
		errors.Is(err, serial.ErrTimeout),
		errors.Is(err, os.ErrDeadlineExceeded):
		return fault.New(fault.KindLinkTimeout, op, err)
	default:
		return fault.New(fault.KindLinkFraming, op, err)
	}
}

func opName(functionCode byte) string {
	switch functionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		return transport.OpRead
	case modbus.FuncCodeWriteSingleRegister:
		return transport.OpWrite
	}
	return "modbus transaction"
}
