// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package session

import (
	"bytes"
	"context"
	"io"
	"sync"

	rtupacket "github.com/ffutop/carlink/modbus/rtu"
	"github.com/ffutop/carlink/transport"
	"github.com/grid-x/serial"
)

// loopback is a serial port whose far end is a request handler. Every
// frame written is answered into the read buffer; an empty buffer reads as
// a serial timeout.
type loopback struct {
	handler transport.RequestHandler
	buf     bytes.Buffer
	closed  bool
}

func (l *loopback) Write(p []byte) (int, error) {
	req, err := rtupacket.Decode(p)
	if err != nil {
		return len(p), nil
	}
	resp, err := l.handler(context.Background(), req.SlaveID, req.Pdu)
	if err != nil || resp == nil {
		return len(p), nil
	}
	raw, err := (&rtupacket.ApplicationDataUnit{SlaveID: req.SlaveID, Pdu: *resp}).Encode()
	if err != nil {
		return 0, err
	}
	l.buf.Write(raw)
	return len(p), nil
}

func (l *loopback) Read(p []byte) (int, error) {
	if l.buf.Len() == 0 {
		return 0, serial.ErrTimeout
	}
	return l.buf.Read(p)
}

func (l *loopback) Close() error {
	l.closed = true
	return nil
}

// loopbackOpener hands out a fresh loopback per open and remembers which
// ports were opened.
type loopbackOpener struct {
	handler transport.RequestHandler

	mu     sync.Mutex
	opened []*loopback
	ports  []string
}

func (o *loopbackOpener) Open(c *serial.Config) (io.ReadWriteCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	l := &loopback{handler: o.handler}
	o.opened = append(o.opened, l)
	o.ports = append(o.ports, c.Address)
	return l, nil
}

func (o *loopbackOpener) allClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, l := range o.opened {
		if !l.closed {
			return false
		}
	}
	return true
}
