// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"fmt"

	"github.com/ffutop/carlink/internal/config"
	"github.com/ffutop/carlink/modbus"
)

// Endpoint addresses one field device: a serial port, a slave address on
// the bus behind it, and the link settings to open the port with.
type Endpoint struct {
	Port    string
	SlaveID byte
	Serial  *config.SerialConfig
}

func (ep Endpoint) String() string {
	return fmt.Sprintf("%s#%d", ep.Port, ep.SlaveID)
}

// Transport performs single holding-register exchanges. Implementations
// hold no connection between calls and do not retry.
type Transport interface {
	// ReadHoldingRegister reads one register with function code 3.
	ReadHoldingRegister(ctx context.Context, ep Endpoint, register uint16) (uint16, error)
	// WriteHoldingRegister writes one register with function code 6.
	WriteHoldingRegister(ctx context.Context, ep Endpoint, register, value uint16) error
}

// RequestHandler handles a Modbus request addressed to slaveID and returns
// the response PDU. A nil PDU pointer with nil error means no device
// answers at that address.
type RequestHandler func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (*modbus.ProtocolDataUnit, error)
