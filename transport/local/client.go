// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package local is a transport that hands requests straight to an
// in-process bus instead of a serial line.
package local

import (
	"context"
	"errors"

	"github.com/ffutop/carlink/internal/fault"
	"github.com/ffutop/carlink/modbus"
	"github.com/ffutop/carlink/transport"
)

var errNoResponse = errors.New("no response from slave")

// Client implements transport.Transport on top of a RequestHandler, for
// example simulator.Bus.Handle. The endpoint's port name is ignored.
type Client struct {
	handler transport.RequestHandler
}

var _ transport.Transport = (*Client)(nil)

// NewClient creates a new Local Client.
func NewClient(handler transport.RequestHandler) *Client {
	return &Client{handler: handler}
}

// ReadHoldingRegister reads one holding register.
func (c *Client) ReadHoldingRegister(ctx context.Context, ep transport.Endpoint, register uint16) (uint16, error) {
	resp, err := c.Send(ctx, ep, transport.OpRead, transport.ReadRequest(register))
	if err != nil {
		return 0, err
	}
	return transport.DecodeReadResponse(resp)
}

// WriteHoldingRegister writes one holding register.
func (c *Client) WriteHoldingRegister(ctx context.Context, ep transport.Endpoint, register, value uint16) error {
	req := transport.WriteRequest(register, value)
	resp, err := c.Send(ctx, ep, transport.OpWrite, req)
	if err != nil {
		return err
	}
	return transport.CheckWriteResponse(req, resp)
}

// Send processes the PDU locally. An address nobody answers fails the way
// a silent line does, with a timeout.
func (c *Client) Send(ctx context.Context, ep transport.Endpoint, op string, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if err := ctx.Err(); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	resp, err := c.handler(ctx, ep.SlaveID, pdu)
	if err != nil {
		return modbus.ProtocolDataUnit{}, fault.New(fault.KindLinkFraming, op, err)
	}
	if resp == nil {
		return modbus.ProtocolDataUnit{}, fault.New(fault.KindLinkTimeout, op, errNoResponse)
	}
	return *resp, nil
}
