// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package registry maps car numbers to the bus endpoints of their
// transducer controllers.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ffutop/carlink/internal/config"
	"github.com/ffutop/carlink/internal/fault"
	"github.com/ffutop/carlink/transport"
)

// Valid Modbus slave addresses. 0 is broadcast, 248-255 are reserved.
const (
	MinSlaveID = 1
	MaxSlaveID = 247
)

var (
	errEmptyPort      = errors.New("empty port name")
	errNoSerialConfig = errors.New("no serial config")
	errNotRegistered  = errors.New("not registered")
)

// Registry is safe for concurrent use. A Resolve racing a Register for the
// same id sees either the old or the new endpoint, never a mix.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]transport.Endpoint
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{devices: make(map[string]transport.Endpoint)}
}

// Register binds id to a slave on port, replacing any previous binding.
func (r *Registry) Register(id, port string, slave int, cfg *config.SerialConfig) error {
	const op = "register device"
	switch {
	case id == "":
		return fault.Newf(fault.KindInvalidDevice, op, "empty car number")
	case port == "":
		return &fault.Error{Op: op, Kind: fault.KindInvalidDevice, Device: id, Err: errEmptyPort}
	case slave < MinSlaveID || slave > MaxSlaveID:
		return &fault.Error{Op: op, Kind: fault.KindInvalidDevice, Device: id,
			Err: fmt.Errorf("slave address %d outside %d-%d", slave, MinSlaveID, MaxSlaveID)}
	case cfg == nil:
		return &fault.Error{Op: op, Kind: fault.KindInvalidDevice, Device: id, Err: errNoSerialConfig}
	}

	ep := transport.Endpoint{Port: port, SlaveID: byte(slave), Serial: cfg}
	r.mu.Lock()
	r.devices[id] = ep
	r.mu.Unlock()
	return nil
}

// Resolve returns the endpoint bound to id.
func (r *Registry) Resolve(id string) (transport.Endpoint, error) {
	r.mu.RLock()
	ep, ok := r.devices[id]
	r.mu.RUnlock()
	if !ok {
		return transport.Endpoint{}, &fault.Error{Op: "resolve device", Kind: fault.KindUnknownDevice, Device: id, Err: errNotRegistered}
	}
	return ep, nil
}

// Unregister removes id. It reports whether id was registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.devices[id]
	delete(r.devices, id)
	return ok
}

// IDs returns the registered car numbers in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}
