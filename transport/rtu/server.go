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

	"github.com/ffutop/carlink/internal/config"
	"github.com/ffutop/carlink/internal/fault"
	"github.com/ffutop/carlink/modbus"
	rtupacket "github.com/ffutop/carlink/modbus/rtu"
	"github.com/ffutop/carlink/transport"
	"github.com/grid-x/serial"
)

// Server answers Modbus RTU requests on a serial port. It plays the field
// devices' side of the bus and is used to bench test the register layer
// without hardware.
type Server struct {
	Port   string
	Config config.SerialConfig

	open Opener
}

// NewServer creates a new RTU Server for the given port.
func NewServer(port string, cfg config.SerialConfig) *Server {
	return &Server{
		Port:   port,
		Config: cfg,
		open:   openSerial,
	}
}

// Serve opens the port and answers requests until ctx is done or the port
// reports end of file.
func (s *Server) Serve(ctx context.Context, handler transport.RequestHandler) error {
	port, err := s.open(&serial.Config{
		Address:  s.Port,
		BaudRate: s.Config.BaudRate,
		DataBits: s.Config.DataBits,
		StopBits: s.Config.StopBits,
		Parity:   s.Config.Parity,
		Timeout:  s.Config.Timeout, // Read timeout
	})
	if err != nil {
		return fault.Newf(fault.KindPortUnavailable, "serve", "could not open %s: %w", s.Port, err)
	}
	defer port.Close()
	slog.Info("RTU simulator listening", "port", s.Port, "baud_rate", s.Config.BaudRate)

	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()

	return s.scanLoop(ctx, port, handler)
}

func (s *Server) scanLoop(ctx context.Context, port io.ReadWriter, handler transport.RequestHandler) error {
	buf := make([]byte, rtupacket.MaxSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		// Read 1 byte to unblock
		n, err := port.Read(buf[:1])
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			continue
		}
		if n == 0 {
			continue
		}

		// Read header, 7 bytes cover the byte count of variable length requests
		current := 1
		need := 7
		for current < need {
			n, err := port.Read(buf[current:need])
			if err != nil {
				break
			}
			current += n
		}
		if current < 2 {
			continue
		}

		expectedLen, err := rtupacket.CalculateRequestLength(buf[1], buf[:current])
		if err != nil {
			slog.Debug("simulator: discarding frame", "err", err)
			continue
		}
		if expectedLen > len(buf) {
			continue
		}

		for current < expectedLen {
			n, err := port.Read(buf[current:expectedLen])
			if err != nil {
				break
			}
			current += n
		}
		if current != expectedLen {
			continue
		}

		req, err := rtupacket.Decode(buf[:expectedLen])
		if err != nil {
			slog.Debug("simulator: discarding frame", "frame", hex.EncodeToString(buf[:expectedLen]), "err", err)
			continue
		}
		// Decode aliases buf
		pdu := modbus.ProtocolDataUnit{
			FunctionCode: req.Pdu.FunctionCode,
			Data:         append([]byte(nil), req.Pdu.Data...),
		}

		resp, err := handler(ctx, req.SlaveID, pdu)
		if err != nil {
			slog.Error("simulator: handler failed", "slave_id", req.SlaveID, "err", err)
			continue
		}
		if resp == nil {
			// Nobody at this address, stay silent like the bus would.
			continue
		}

		raw, err := (&rtupacket.ApplicationDataUnit{SlaveID: req.SlaveID, Pdu: *resp}).Encode()
		if err != nil {
			slog.Error("simulator: encoding response failed", "slave_id", req.SlaveID, "err", err)
			continue
		}
		if _, err := port.Write(raw); err != nil {
			slog.Warn("simulator: writing response failed", "port", s.Port, "err", err)
		}
	}
}
