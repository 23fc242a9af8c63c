// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ffutop/carlink/internal/config"
	"github.com/ffutop/carlink/internal/fault"
	"github.com/ffutop/carlink/internal/regmap"
	"github.com/ffutop/carlink/internal/simulator/persistence"
	"github.com/ffutop/carlink/modbus"
	"github.com/ffutop/carlink/transport"
)

// Bus is a set of simulated devices sharing one serial line. The device
// set is fixed at construction.
type Bus struct {
	devices map[byte]*Device
	ids     []byte
}

var _ transport.RequestHandler = (*Bus)(nil).Handle

// NewBus returns a Bus serving devices. A later device with the same ID
// replaces an earlier one.
func NewBus(devices ...*Device) *Bus {
	b := &Bus{devices: make(map[byte]*Device, len(devices))}
	for _, d := range devices {
		if _, ok := b.devices[d.ID]; !ok {
			b.ids = append(b.ids, d.ID)
		}
		b.devices[d.ID] = d
	}
	return b
}

// Open builds the bus described by cfg: one device per slave id, each with
// its own storage, seeded through regs.
func Open(cfg config.SimulatorConfig, regs *regmap.Map) (*Bus, error) {
	const op = "open simulator"

	ids, err := ParseSlaveIDs(cfg.SlaveIDs)
	if err != nil {
		return nil, fault.New(fault.KindConfigFormat, op, err)
	}

	devices := make([]*Device, 0, len(ids))
	closeAll := func() {
		for _, d := range devices {
			d.storage.Close()
		}
	}
	for _, id := range ids {
		storage, err := persistence.New(cfg.Persistence, id)
		if err != nil {
			closeAll()
			return nil, err
		}
		m, err := storage.Load()
		if err != nil {
			closeAll()
			return nil, fault.New(fault.KindConfigFormat, op, fmt.Errorf("slave %d: %w", id, err))
		}
		devices = append(devices, NewDevice(id, m, storage))
	}

	b := NewBus(devices...)
	if err := b.Seed(regs, cfg.Seed); err != nil {
		b.Close()
		return nil, err
	}
	slog.Info("simulator ready", "slave_ids", ids, "persistence", cfg.Persistence.Type)
	return b, nil
}

// Seed writes each seed value to the named register of every device.
func (b *Bus) Seed(regs *regmap.Map, seeds []config.SeedConfig) error {
	for _, s := range seeds {
		address, err := regs.Resolve(s.Register)
		if err != nil {
			return err
		}
		for _, id := range b.ids {
			d := b.devices[id]
			if err := d.model.WriteSingleRegister(address, s.Value); err != nil {
				return fault.New(fault.KindConfigFormat, "seed simulator", err)
			}
			d.storage.OnWrite(address, 1)
		}
		slog.Debug("simulator seeded", "register", s.Register, "address", address, "value", s.Value)
	}
	return nil
}

// Device returns the device answering as slave id.
func (b *Bus) Device(id byte) (*Device, bool) {
	d, ok := b.devices[id]
	return d, ok
}

// IDs returns the slave ids on the bus in configuration order.
func (b *Bus) IDs() []byte {
	return append([]byte(nil), b.ids...)
}

// Handle dispatches a request to the addressed device. Requests to an
// address nobody answers yield a nil response, as on a real line.
func (b *Bus) Handle(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (*modbus.ProtocolDataUnit, error) {
	d, ok := b.devices[slaveID]
	if !ok {
		return nil, nil
	}
	resp := d.Process(pdu)
	if resp.IsException() {
		slog.Debug("simulator: exception", "slave_id", slaveID, "function", pdu.FunctionCode, "code", resp.ExceptionCode())
	}
	return &resp, nil
}

// Close saves and closes every device's storage.
func (b *Bus) Close() error {
	var errs []error
	for _, id := range b.ids {
		s := b.devices[id].storage
		if err := s.Save(); err != nil {
			errs = append(errs, fmt.Errorf("slave %d: %w", id, err))
		}
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("slave %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
