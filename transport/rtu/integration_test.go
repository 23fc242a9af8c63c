// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

//go:build integration

// Run against a socat pty pair:
//
//	socat -d -d pty,raw,echo=0,link=/tmp/pts0 pty,raw,echo=0,link=/tmp/pts1 &
//	CARLINK_PTY_MASTER=/tmp/pts0 CARLINK_PTY_SLAVE=/tmp/pts1 go test -tags integration ./transport/rtu/
package rtu

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ffutop/carlink/internal/config"
	"github.com/ffutop/carlink/internal/simulator"
	"github.com/ffutop/carlink/internal/simulator/model"
	"github.com/ffutop/carlink/transport"
	"github.com/goburrow/modbus"
	goserial "github.com/goburrow/serial"
	"github.com/tbrandon/mbserver"
	"gotest.tools/v3/assert"
)

var ptySerial = config.SerialConfig{
	BaudRate: 19200,
	DataBits: 8,
	Parity:   "N",
	StopBits: 1,
	Timeout:  time.Second,
}

func ptyPair(t *testing.T) (master, slave string) {
	master, slave = os.Getenv("CARLINK_PTY_MASTER"), os.Getenv("CARLINK_PTY_SLAVE")
	if master == "" || slave == "" {
		t.Skip("CARLINK_PTY_MASTER and CARLINK_PTY_SLAVE not set")
	}
	return master, slave
}

// The client against an independent slave implementation.
func TestIntegration_ClientAgainstMbserver(t *testing.T) {
	master, slave := ptyPair(t)

	srv := mbserver.NewServer()
	srv.HoldingRegisters[10] = 2583
	err := srv.ListenRTU(&goserial.Config{
		Address:  slave,
		BaudRate: ptySerial.BaudRate,
		DataBits: ptySerial.DataBits,
		Parity:   ptySerial.Parity,
		StopBits: ptySerial.StopBits,
	})
	assert.NilError(t, err)
	defer srv.Close()

	ep := transport.Endpoint{Port: master, SlaveID: 1, Serial: &ptySerial}
	client := NewClient(config.RS485Config{})
	ctx := context.Background()

	v, err := client.ReadHoldingRegister(ctx, ep, 10)
	assert.NilError(t, err)
	assert.Equal(t, v, uint16(2583))

	assert.NilError(t, client.WriteHoldingRegister(ctx, ep, 20, 500))
	assert.Equal(t, srv.HoldingRegisters[20], uint16(500))
}

// The simulator server against an independent master implementation.
func TestIntegration_ServerAgainstGoburrow(t *testing.T) {
	master, slave := ptyPair(t)

	m := model.NewDataModel()
	assert.NilError(t, m.WriteSingleRegister(10, 2583))
	bus := simulator.NewBus(simulator.NewDevice(2, m, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(slave, ptySerial).Serve(ctx, bus.Handle) }()
	defer func() {
		cancel()
		assert.NilError(t, <-done)
	}()
	time.Sleep(100 * time.Millisecond)

	handler := modbus.NewRTUClientHandler(master)
	handler.BaudRate = ptySerial.BaudRate
	handler.DataBits = ptySerial.DataBits
	handler.Parity = ptySerial.Parity
	handler.StopBits = ptySerial.StopBits
	handler.SlaveId = 2
	handler.Timeout = ptySerial.Timeout
	assert.NilError(t, handler.Connect())
	defer handler.Close()
	client := modbus.NewClient(handler)

	results, err := client.ReadHoldingRegisters(10, 1)
	assert.NilError(t, err)
	assert.DeepEqual(t, results, []byte{0x0A, 0x17})

	_, err = client.WriteSingleRegister(20, 500)
	assert.NilError(t, err)
	assert.Equal(t, m.Register(20), uint16(500))
}
