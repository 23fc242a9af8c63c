// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package session is the entry point of the register communication layer.
// A Session owns the register map and serial settings, keeps the car
// registry and serialises transactions per serial port.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/carlink/internal/codec"
	"github.com/ffutop/carlink/internal/config"
	"github.com/ffutop/carlink/internal/fault"
	"github.com/ffutop/carlink/internal/metrics"
	"github.com/ffutop/carlink/internal/regmap"
	"github.com/ffutop/carlink/internal/registry"
	"github.com/ffutop/carlink/transport"
	"github.com/google/uuid"
)

// Session is safe for concurrent use.
type Session struct {
	ID uuid.UUID

	regs    *regmap.Map
	serial  *config.SerialConfig
	devices *registry.Registry
	tr      transport.Transport
	metrics *metrics.Recorder
	log     *slog.Logger

	mu    sync.Mutex
	ports map[string]chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithMetrics records every transaction in r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Session) { s.metrics = r }
}

// WithLogger logs through l instead of slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// New returns a Session talking through tr. Every device registered later
// shares serial.
func New(regs *regmap.Map, serial config.SerialConfig, tr transport.Transport, opts ...Option) *Session {
	s := &Session{
		ID:      uuid.New(),
		regs:    regs,
		serial:  &serial,
		devices: registry.New(),
		tr:      tr,
		log:     slog.Default(),
		ports:   make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("session", s.ID.String())
	return s
}

// Registers returns the session's register map.
func (s *Session) Registers() *regmap.Map {
	return s.regs
}

// RegisterDevice binds car to slave on port, replacing an earlier binding.
func (s *Session) RegisterDevice(car, port string, slave int) error {
	if err := s.devices.Register(car, port, slave, s.serial); err != nil {
		return err
	}
	s.log.Info("device registered", "car", car, "port", port, "slave_id", slave)
	return nil
}

// UnregisterDevice forgets car. It reports whether car was registered.
func (s *Session) UnregisterDevice(car string) bool {
	ok := s.devices.Unregister(car)
	if ok {
		s.log.Info("device unregistered", "car", car)
	}
	return ok
}

// Devices returns the registered car numbers in sorted order.
func (s *Session) Devices() []string {
	return s.devices.IDs()
}

// DataRequest reads register name of car and returns its decoded value.
func (s *Session) DataRequest(ctx context.Context, car, name string) (v float64, err error) {
	defer s.observe(transport.OpRead, time.Now(), &err)

	ep, register, err := s.resolve(car, name)
	if err != nil {
		return 0, err
	}
	group, err := s.regs.GroupOf(name)
	if err != nil {
		return 0, fault.WithDevice(err, car, name)
	}

	var raw uint16
	err = s.withPort(ctx, ep.Port, func() (err error) {
		raw, err = s.tr.ReadHoldingRegister(ctx, ep, register)
		return err
	})
	if err != nil {
		return 0, fault.WithDevice(err, car, name)
	}

	v = codec.Decode(raw, group)
	s.log.Debug("data request", "car", car, "register", name, "raw", raw, "value", v)
	return v, nil
}

// Set writes the raw value to register name of car. No scaling is applied.
func (s *Session) Set(ctx context.Context, car, name string, value uint16) (err error) {
	defer s.observe(transport.OpWrite, time.Now(), &err)

	ep, register, err := s.resolve(car, name)
	if err != nil {
		return err
	}
	err = s.withPort(ctx, ep.Port, func() error {
		return s.tr.WriteHoldingRegister(ctx, ep, register, value)
	})
	if err != nil {
		return fault.WithDevice(err, car, name)
	}
	s.log.Debug("data set", "car", car, "register", name, "value", value)
	return nil
}

// DataSet is Set for callers that only need to know whether the write
// went through. Failures are logged with their kind and counted.
func (s *Session) DataSet(ctx context.Context, car, name string, value uint16) bool {
	if err := s.Set(ctx, car, name, value); err != nil {
		s.log.Warn("data set failed", "car", car, "register", name, "value", value,
			"kind", fault.KindOf(err).String(), "err", err)
		return false
	}
	return true
}

func (s *Session) resolve(car, name string) (transport.Endpoint, uint16, error) {
	ep, err := s.devices.Resolve(car)
	if err != nil {
		return transport.Endpoint{}, 0, fault.WithDevice(err, car, name)
	}
	register, err := s.regs.Resolve(name)
	if err != nil {
		return transport.Endpoint{}, 0, fault.WithDevice(err, car, name)
	}
	return ep, register, nil
}

// withPort runs fn while holding port's lock. Waiting for the lock gives
// up when ctx is done; a running transaction is never interrupted.
func (s *Session) withPort(ctx context.Context, port string, fn func() error) error {
	l := s.portLock(port)
	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l }()
	return fn()
}

func (s *Session) portLock(port string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ports[port]
	if !ok {
		l = make(chan struct{}, 1)
		s.ports[port] = l
	}
	return l
}

func (s *Session) observe(op string, start time.Time, err *error) {
	s.metrics.Observe(op, start, *err)
}
