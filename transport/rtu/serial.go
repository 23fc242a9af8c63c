// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/ffutop/carlink/internal/config"
	"github.com/ffutop/carlink/internal/fault"
	"github.com/ffutop/carlink/transport"
	"github.com/grid-x/serial"
)

// Opener opens a serial port. It is serial.Open in production and a fake
// in tests.
type Opener func(c *serial.Config) (io.ReadWriteCloser, error)

func openSerial(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.Open(c)
}

// serialConfig maps an endpoint and the client's RS-485 options to
// serial.Config.
func serialConfig(ep transport.Endpoint, rs485 config.RS485Config) *serial.Config {
	c := &serial.Config{
		Address:  ep.Port,
		BaudRate: ep.Serial.BaudRate,
		DataBits: ep.Serial.DataBits,
		StopBits: ep.Serial.StopBits,
		Parity:   ep.Serial.Parity,
		Timeout:  ep.Serial.Timeout,
	}
	if rs485.Enabled {
		c.RS485.Enabled = true
		c.RS485.DelayRtsBeforeSend = rs485.DelayRtsBeforeSend
		c.RS485.DelayRtsAfterSend = rs485.DelayRtsAfterSend
		c.RS485.RtsHighDuringSend = rs485.RtsHighDuringSend
		c.RS485.RtsHighAfterSend = rs485.RtsHighAfterSend
		c.RS485.RxDuringTx = rs485.RxDuringTx
	}
	return c
}

// withPort opens the endpoint's port, runs fn and closes the port again on
// every exit path. The bus is shared between devices, so no handle outlives
// a transaction.
func withPort(op string, open Opener, c *serial.Config, fn func(port io.ReadWriter) error) error {
	port, err := open(c)
	if err != nil {
		return fault.New(fault.KindPortUnavailable, op, fmt.Errorf("could not open %s: %w", c.Address, err))
	}
	defer func() {
		if cerr := port.Close(); cerr != nil {
			slog.Debug("modbus: closing serial port failed", "port", c.Address, "err", cerr)
		}
	}()
	return fn(port)
}
